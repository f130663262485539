package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agent-chat/internal/app"
	"github.com/zhouzirui/agent-chat/internal/config"
	"github.com/zhouzirui/agent-chat/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	l := logger.Configure(cfg.Log.Level, cfg.Log.Pretty)
	if envErr != nil {
		l.Warn().Err(envErr).Msg("no .env file, continuing with system environment variables only")
	}

	if err := cfg.Validate(); err != nil {
		l.Fatal().Err(err).Msg("invalid configuration")
	}

	services, err := app.Build(ctx, cfg, l)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to wire services")
	}

	router := services.Router(l)
	startServer(ctx, cfg.Server, router, l)

	// End any open remote session before exiting.
	endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	services.Conversation.Exit(endCtx)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, l zerolog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	l.Info().Str("addr", addr).Msg("agent chat server listening")
	if err := runServer(ctx, srv); err != nil {
		l.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
