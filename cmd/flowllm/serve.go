package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/flowllm-go/flowllm/pkg/bootstrap"
	"github.com/flowllm-go/flowllm/pkg/config"
	"github.com/flowllm-go/flowllm/pkg/logger"
	"github.com/flowllm-go/flowllm/pkg/server/httpserver"
	"github.com/flowllm-go/flowllm/pkg/server/mcpserver"
	"github.com/flowllm-go/flowllm/pkg/svcctx"
)

const shutdownGracePeriod = 10 * time.Second

// ServeCmd starts the HTTP service adapter, or with --mcp the MCP adapter over
// stdio instead, in front of a ServiceContext populated from the loaded config.
type ServeCmd struct {
	MCP bool `help:"Serve the MCP tool-invocation adapter over stdio instead of HTTP."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		return err
	}
	logger.Init(level, os.Stderr, cli.LogFormat)
	log := logger.GetLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	sc := svcctx.Get(svcctx.Options{
		AppID:    cfg.AppID,
		Language: cfg.Language,
		PoolSize: cfg.PoolSize,
	})
	if err := bootstrap.Run(sc, cfg, log); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	if c.MCP {
		return c.serveMCP(ctx, sc, log)
	}
	return c.serveHTTP(ctx, sc, cfg, log)
}

func (c *ServeCmd) serveHTTP(ctx context.Context, sc *svcctx.ServiceContext, cfg *config.Config, log *slog.Logger) error {
	addr := cfg.Server.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}

	srv := httpserver.New(sc, httpserver.WithLogger(log))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (c *ServeCmd) serveMCP(ctx context.Context, sc *svcctx.ServiceContext, log *slog.Logger) error {
	srv, err := mcpserver.New("flowllm", version(), sc, mcpserver.WithLogger(log))
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- mcpserver.ServeStdio(srv) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// loadConfig discovers a .env file next to the config (or the working
// directory in zero-config mode), loads the YAML config, and layers any
// --set overrides on top.
func loadConfig(cli *CLI) (*config.Config, error) {
	dir := "."
	if cli.Config != "" {
		dir = filepath.Dir(cli.Config)
	}
	_ = config.LoadEnv(dir)

	var cfg *config.Config
	if cli.Config != "" {
		loaded, err := config.Load(cli.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
	}

	if err := config.ApplyOverrides(cfg, cli.Set); err != nil {
		return nil, err
	}
	return cfg, nil
}
