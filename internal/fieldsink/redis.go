package fieldsink

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fieldTTL keeps abandoned sessions from accumulating forever.
const fieldTTL = 30 * 24 * time.Hour

// Redis keeps each session's fields in a hash at fields:<session_id>.
type Redis struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Redis{client: client}, nil
}

func (r *Redis) Close() {
	r.client.Close()
}

func (r *Redis) key(sessionID string) string {
	return "fields:" + sessionID
}

func (r *Redis) Set(ctx context.Context, sessionID, field, value string) error {
	key := r.key(sessionID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, field, value)
	pipe.Expire(ctx, key, fieldTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hset field %s: %w", field, err)
	}
	return nil
}

func (r *Redis) SetAll(ctx context.Context, sessionID string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	flat := make([]any, 0, len(fields)*2)
	for name, value := range fields {
		flat = append(flat, name, value)
	}

	key := r.key(sessionID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, flat...)
	pipe.Expire(ctx, key, fieldTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hset fields: %w", err)
	}
	return nil
}

func (r *Redis) GetAll(ctx context.Context, sessionID string) (map[string]string, error) {
	fields, err := r.client.HGetAll(ctx, r.key(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	return fields, nil
}

func (r *Redis) Get(ctx context.Context, sessionID, field string) (string, bool, error) {
	value, err := r.client.HGet(ctx, r.key(sessionID), field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
