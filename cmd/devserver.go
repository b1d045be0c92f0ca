package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"accompany/internal/devserver"
	"accompany/internal/pkg/logx"
)

func devserverCommand() *cli.Command {
	return &cli.Command{
		Name:     "devserver",
		Usage:    "Run the in-memory development backend (REST API and STOMP broker)",
		Category: "Development",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Usage: "listen port (overrides PORT)"},
			&cli.BoolFlag{Name: "sharing", Usage: "create rooms with location sharing enabled", Value: true},
		},
		Action: runDevserver,
	}
}

func runDevserver(c *cli.Context) error {
	cfg := configFrom(c)
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}

	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := devserver.New(cfg, devserver.NewStore(c.Bool("sharing")))

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     srv.Handler(),
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logx.Info(fmt.Sprintf("accompany devserver starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			srv.Shutdown()
			return fmt.Errorf("server failed to start: %w", err)
		}
	case <-ctx.Done():
	}

	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}
	srv.Shutdown()

	logx.Info("Server exited properly")
	return nil
}
