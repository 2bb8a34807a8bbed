package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wasinlab/linerelay/internal/agent"
	"github.com/wasinlab/linerelay/internal/config"
	"github.com/wasinlab/linerelay/internal/guard"
	"github.com/wasinlab/linerelay/internal/line"
	"github.com/wasinlab/linerelay/internal/providers"
	"github.com/wasinlab/linerelay/internal/store"
)

func runServe() {
	// Setup structured logging
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Durable store is best-effort: an unopenable database degrades to
	// in-memory dedup and context-free prompts instead of refusing to start.
	var dedupStore guard.DedupStore
	var memory agent.MemoryLog
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		slog.Warn("store unavailable, running degraded", "path", cfg.Store.Path, "error", err)
	} else {
		dedupStore = st
		memory = st
		defer st.Close()
	}

	// Backend and platform clients are constructed once and injected.
	backend := providers.NewGeminiClient(
		cfg.Backend.APIKey,
		cfg.Backend.Model,
		cfg.Backend.APIBase,
		time.Duration(cfg.Backend.TimeoutSeconds)*time.Second,
	)
	client := line.NewClient(cfg.Line.ChannelAccessToken, cfg.Line.APIBase)
	pipeline := agent.NewPipeline(backend, client, memory)

	handler := line.NewHandler(
		guard.NewDedupGuard(dedupStore),
		guard.NewThrottleGuard(),
		cfg.Line.ChannelSecret,
		cfg.Line.DestinationUserID,
		cfg.Server.RateLimitRPM,
		pipeline.Dispatch,
	)

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.WebhookPath, handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: mux,
	}

	go func() {
		slog.Info("webhook server listening", "addr", srv.Addr, "path", cfg.Server.WebhookPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("webhook server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown incomplete", "error", err)
	}
}
