package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fluxstudio/internal/console"
	"fluxstudio/internal/http/handlers"
	httpapi "fluxstudio/internal/http/httpapi"
	"fluxstudio/internal/infra"
	"fluxstudio/internal/providers/bfl"
	"fluxstudio/internal/tracker"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	client, err := bfl.NewClient(bfl.Options{
		APIKey:         cfg.BFLAPIKey,
		BaseURL:        cfg.BFLBaseURL,
		Model:          cfg.BFLModel,
		PollHosts:      cfg.BFLPollHosts,
		Logger:         &logger,
		RequestTimeout: cfg.BFLTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build FLUX client")
	}

	// The console tracks jobs straight against the upstream client.
	session := console.NewSession(client, tracker.Options{
		Interval:    cfg.PollInterval,
		MaxAttempts: cfg.PollMaxAttempts,
		Logger:      &logger,
	}, &logger)

	app := handlers.NewApp(cfg, &logger, client, session)
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("model", client.Model()).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := session.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("console run did not stop in time")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
