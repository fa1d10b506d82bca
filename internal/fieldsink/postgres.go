package fieldsink

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores fields in the session_fields table, one row per
// (session_id, field_name), upserted on conflict.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Set(ctx context.Context, sessionID, field, value string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO session_fields (session_id, field_name, field_value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (session_id, field_name) DO UPDATE
		SET field_value = EXCLUDED.field_value, updated_at = now()
	`, sessionID, field, value)
	if err != nil {
		return fmt.Errorf("upsert field %s: %w", field, err)
	}
	return nil
}

// SetAll writes every field in one transaction so a partial submission
// never lands.
func (p *Postgres) SetAll(ctx context.Context, sessionID string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin field tx: %w", err)
	}
	defer tx.Rollback(ctx)

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		_, err := tx.Exec(ctx, `
			INSERT INTO session_fields (session_id, field_name, field_value, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (session_id, field_name) DO UPDATE
			SET field_value = EXCLUDED.field_value, updated_at = now()
		`, sessionID, name, fields[name])
		if err != nil {
			return fmt.Errorf("upsert field %s: %w", name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit field tx: %w", err)
	}

	slog.Debug("stored session fields", "session_id", sessionID, "count", len(fields))
	return nil
}

func (p *Postgres) GetAll(ctx context.Context, sessionID string) (map[string]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT field_name, field_value FROM session_fields WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		fields[name] = value
	}
	return fields, rows.Err()
}

func (p *Postgres) Get(ctx context.Context, sessionID, field string) (string, bool, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT field_value FROM session_fields WHERE session_id = $1 AND field_name = $2`,
		sessionID, field,
	)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == pgx.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}
