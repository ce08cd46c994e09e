package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Vodeneev/ticketedge/internal/engine/engine"
	"github.com/Vodeneev/ticketedge/internal/pkg/access"
	"github.com/Vodeneev/ticketedge/internal/pkg/config"
	"github.com/Vodeneev/ticketedge/internal/pkg/logging"
	"github.com/Vodeneev/ticketedge/internal/pkg/rules"
	"github.com/Vodeneev/ticketedge/internal/pkg/source"
	"github.com/Vodeneev/ticketedge/internal/pkg/storage"
)

const (
	defaultConfigPath = "configs/local.yaml"
)

func main() {
	fmt.Println("Starting ticketedge engine...")

	var configPath string

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = defaultConfigPath
	}

	flag.StringVar(&configPath, "config", defaultConfig, "Path to config file (can be set via CONFIG_PATH env var)")
	flag.Parse()

	if err := run(configPath); err != nil {
		log.Fatalf("engine: %v", err)
	}
}

// run wires the engine from config and blocks until shutdown.
func run(configPath string) error {
	fmt.Printf("Loading config from: %s\n", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	_, logCloser, err := logging.Setup(cfg.Logging, "engine")
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logCloser.Close()

	registry, err := rules.LoadFile(cfg.Rules.Path)
	if err != nil {
		return fmt.Errorf("failed to load rulesets: %w", err)
	}
	if cfg.Rules.DefaultVersion != "" {
		if registry, err = registry.WithDefault(cfg.Rules.DefaultVersion); err != nil {
			return err
		}
	}
	slog.Info("Rulesets loaded", "versions", registry.Versions(), "default", registry.Default().Version)

	var deps engine.Deps

	if client := source.NewClient(cfg.Source); client != nil {
		deps.Source = client
		slog.Info("Using data provider", "url", cfg.Source.BaseURL)
	} else {
		slog.Warn("source.base_url is not set, fixture analysis is disabled")
	}

	if cfg.Postgres.DSN != "" {
		// NewPostgresStore also creates the schema.
		pgStore, err := storage.NewPostgresStore(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("failed to initialize PostgreSQL storage: %w", err)
		}
		defer func() {
			if err := pgStore.Close(); err != nil {
				slog.Error("engine: error closing PostgreSQL storage", "error", err)
			}
		}()
		deps.Store = pgStore
	}

	if cfg.Redis.Addr != "" {
		cache, err := storage.NewRedisCache(cfg.Redis)
		if err != nil {
			// The engine runs without a cache, every read goes to the provider
			slog.Warn("engine: redis unavailable, continuing without cache", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer cache.Close()
			deps.Cache = cache
			slog.Info("Redis cache initialized", "addr", cfg.Redis.Addr)
		}
	}

	if cfg.Alerts.TelegramBotToken != "" && cfg.Alerts.TelegramChatID != 0 {
		notifier, err := engine.NewTelegramNotifier(cfg.Alerts.TelegramBotToken, cfg.Alerts.TelegramChatID)
		if err != nil {
			slog.Warn("Failed to initialize Telegram notifier", "error", err)
		} else {
			defer notifier.Stop()
			deps.Notifier = notifier
		}
	}

	if len(cfg.Access.Tokens) > 0 {
		entitlements, err := access.NewStaticEntitlements(cfg.Access, nil)
		if err != nil {
			return err
		}
		deps.Authorizer = access.NewStaticAuthorizer(cfg.Access)
		deps.Entitlements = entitlements
		slog.Info("API authentication enabled", "tokens", len(cfg.Access.Tokens))
	} else {
		slog.Warn("access.tokens is empty, API authentication is disabled")
	}

	e, err := engine.New(cfg, registry, deps)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, stopping engine...")
		cancel()
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           e.Router(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	if err := e.Start(ctx); err != nil {
		slog.Error("Engine failed", "error", err)
		return err
	}

	slog.Info("ticketedge engine stopped")
	return nil
}
