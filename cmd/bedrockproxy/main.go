// Package main is the entry point for the Bedrock translation proxy.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bedrockproxy/config"
	"bedrockproxy/internal/bedrock"
	"bedrockproxy/internal/configstore"
	"bedrockproxy/internal/gateway"
	"bedrockproxy/internal/logging"
	"bedrockproxy/internal/server"
	"bedrockproxy/internal/version"
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Setup(os.Stdout, logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Pretty)

	slog.Info("starting bedrockproxy",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
		"region", cfg.Bedrock.Region,
	)

	store, err := newConfigStore(cfg)
	if err != nil {
		slog.Error("failed to initialize config store", "error", err)
		os.Exit(1)
	}

	invoker := bedrock.New(cfg.Bedrock.Region, cfg.Bedrock.APIKey)
	if cfg.Bedrock.BaseURL != "" {
		invoker.SetBaseURL(cfg.Bedrock.BaseURL)
	}

	gw := gateway.New(invoker, store)

	if cfg.Server.MasterKey == "" {
		slog.Warn("MASTER_KEY not set, accepting any well-formed bearer credential")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}

	srv := server.New(gw, &server.Config{
		MasterKey:       cfg.Server.MasterKey,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		BodySizeLimit:   cfg.Server.BodySizeLimit,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	slog.Info("starting server", "address", addr)

	if err := srv.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
		} else {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}
}

// newConfigStore wires the routing-config backend selected by the
// environment: Redis, JSON file, or built-in defaults.
func newConfigStore(cfg *config.Config) (*configstore.Store, error) {
	opts := []configstore.Option{configstore.WithTTL(cfg.Routing.RefreshTTL)}

	switch {
	case cfg.Routing.RedisURL != "":
		loader, err := configstore.NewRedisLoader(cfg.Routing.RedisURL, configstore.DefaultRedisKey)
		if err != nil {
			return nil, err
		}
		slog.Info("routing config backend", "backend", "redis", "key", configstore.DefaultRedisKey)
		return configstore.NewStore(loader, opts...), nil
	case cfg.Routing.File != "":
		slog.Info("routing config backend", "backend", "file", "path", cfg.Routing.File)
		return configstore.NewStore(configstore.FileLoader{Path: cfg.Routing.File}, opts...), nil
	default:
		slog.Info("routing config backend", "backend", "defaults")
		return configstore.NewStore(configstore.StaticLoader{}, opts...), nil
	}
}
