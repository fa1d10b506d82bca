package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kapa-moon/creativity-ai/internal/api"
	"github.com/kapa-moon/creativity-ai/internal/bridge"
	"github.com/kapa-moon/creativity-ai/internal/collector"
	"github.com/kapa-moon/creativity-ai/internal/completion"
	"github.com/kapa-moon/creativity-ai/internal/config"
	"github.com/kapa-moon/creativity-ai/internal/fieldsink"
	"github.com/kapa-moon/creativity-ai/internal/localstore"
	"github.com/kapa-moon/creativity-ai/internal/session"
	"github.com/kapa-moon/creativity-ai/internal/submission"
	"github.com/kapa-moon/creativity-ai/internal/trigger"
	"github.com/kapa-moon/creativity-ai/internal/widget"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	slog.Info("creativity-ai starting",
		"port", cfg.Port,
		"nats_url", cfg.NatsURL,
		"message_threshold", cfg.MessageThreshold,
		"continuous_update", cfg.ContinuousUpdate,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 1: Pick the field sink — Postgres, Redis, or in-memory.
	sink, err := openSink(ctx, cfg)
	if err != nil {
		slog.Error("failed to open field sink", "error", err)
		os.Exit(1)
	}
	defer sink.Close()

	// Step 2: Completion client, if a key is configured.
	var cc completion.Client
	if cfg.OpenAIKey != "" {
		cc = completion.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		slog.Info("completion client ready", "model", cfg.OpenAIModel)
	} else {
		slog.Warn("OPENAI_API_KEY not set, chat replies disabled")
	}

	// Step 3: Bridge transports. With NATS configured the widget and
	// collector talk across processes; without it they share a pair.
	widgetEnd, hostEnd, cleanup, err := openBridge(cfg)
	if err != nil {
		slog.Error("failed to open bridge", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Step 4: Host-side collector with a paste recorder for the page's
	// text fields.
	recorder := collector.NewPasteRecorder("", sink, nil, nil)
	coll := collector.New(collector.Config{
		Sink:      sink,
		Transport: hostEnd,
		Recorder:  recorder,
		Grace:     cfg.UnloadGrace,
	})

	// Step 5: Widget-side controller with a persisted session.
	store, err := localstore.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		slog.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	log := session.New(session.Config{
		Store:      store,
		StorageKey: localstore.KeyChatLogs,
	})

	var poster submission.Poster
	if cfg.LoggingEndpoint != "" {
		poster = submission.NewClient(cfg.LoggingEndpoint)
	}

	w := widget.New(widget.Config{
		Session:    log,
		Transport:  widgetEnd,
		Completion: cc,
		Poster:     poster,
		Detailed:   cfg.DetailedLogging,
		Trigger: trigger.Config{
			MessageThreshold: cfg.MessageThreshold,
			SettleDelay:      cfg.SettleDelay,
			InactivityQuiet:  cfg.InactivityQuiet,
			ContinuousUpdate: cfg.ContinuousUpdate,
		},
	})
	w.Begin()
	defer w.Close()

	nudger := widget.NewNudger(w, nil, nil)
	nudger.Start()
	defer nudger.Stop()

	// Step 6: HTTP API.
	srv := api.NewServer(sink, cc, cfg.Port)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("creativity-ai ready", "port", cfg.Port, "session_id", log.SessionID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	slog.Info("shutting down", "signal", sig)
	w.PageHidden()
	coll.Finalize(ctx)
	cancel()
	slog.Info("creativity-ai stopped")
}

func openSink(ctx context.Context, cfg config.Config) (fieldsink.Sink, error) {
	switch {
	case cfg.DatabaseURL != "":
		sink, err := fieldsink.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("field sink: postgres")
		return sink, nil
	case cfg.RedisAddr != "":
		sink, err := fieldsink.NewRedis(ctx, cfg.RedisAddr, os.Getenv("REDIS_PASSWORD"), cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		slog.Info("field sink: redis", "addr", cfg.RedisAddr)
		return sink, nil
	default:
		slog.Warn("no DATABASE_URL or REDIS_ADDR, using in-memory field sink")
		return fieldsink.NewMemory(), nil
	}
}

func openBridge(cfg config.Config) (widgetEnd, hostEnd bridge.Transport, cleanup func(), err error) {
	if cfg.NatsURL == "" {
		a, b := bridge.NewPair()
		return a, b, func() {}, nil
	}

	wt, err := bridge.ConnectNATS(cfg.NatsURL, bridge.SubjectToHost, bridge.SubjectToWidget)
	if err != nil {
		return nil, nil, nil, err
	}
	ht := bridge.NewNATSTransport(wt.Conn(), bridge.SubjectToWidget, bridge.SubjectToHost)
	slog.Info("bridge over NATS", "url", cfg.NatsURL)

	cleanup = func() {
		ht.Close()
		wt.Close()
	}
	return wt, ht, cleanup, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
