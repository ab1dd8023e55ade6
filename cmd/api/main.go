package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"

	"renderhub/internal/adapter/repo"
	"renderhub/internal/budget"
	"renderhub/internal/credentials"
	httpapi "renderhub/internal/http"
	"renderhub/internal/http/handlers"
	"renderhub/internal/infra"
	"renderhub/internal/infra/secretbox"
	"renderhub/internal/providers/video"
	"renderhub/internal/render"
	"renderhub/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	box, err := secretbox.New(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid credential encryption key")
	}

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	jobs := repo.NewRenderJobRepository(dbpool)
	ledger := repo.NewLedgerRepository(dbpool)
	workspaces := repo.NewWorkspaceRepository(dbpool)
	creds := repo.NewCredentialRepository(dbpool)

	gate := budget.NewGate(ledger, workspaces, logger)
	resolver := credentials.NewResolver(creds, box, logger)
	adapters := map[string]video.Adapter{
		"runway":    video.NewRunway(video.RunwayOptions{BaseURL: cfg.RunwayBaseURL, Logger: logger}),
		"stability": video.NewStability(video.StabilityOptions{BaseURL: cfg.StabilityBaseURL, Logger: logger}),
	}

	manager := render.NewManager(jobs, gate, resolver, adapters, store, logger)

	var amqpConn *amqp.Connection
	switch cfg.DispatchMode {
	case infra.DispatchModeSubstrate:
		amqpConn, err = amqp.Dial(cfg.AMQPURL)
		if err != nil {
			// The manager degrades per job when the substrate drops later; a
			// dead broker at boot falls back to direct execution entirely.
			logger.Warn().Err(err).Msg("dispatch substrate unreachable, using direct dispatch")
			manager.SetDispatcher(render.NewDirectDispatcher(manager, cfg.PollInterval, logger))
			break
		}
		dispatcher, derr := render.NewSubstrateDispatcher(amqpConn, cfg.DispatchQueue, logger)
		if derr != nil {
			logger.Fatal().Err(derr).Msg("failed to set up dispatch queue")
		}
		manager.SetDispatcher(dispatcher)
	case infra.DispatchModeDirect:
		manager.SetDispatcher(render.NewDirectDispatcher(manager, cfg.PollInterval, logger))
	}
	if amqpConn != nil {
		defer amqpConn.Close()
	}

	app := &handlers.App{
		Manager:     manager,
		Batcher:     render.NewBatcher(manager, cfg.BatchWindowSize, logger),
		Gate:        gate,
		Store:       store,
		Box:         box,
		Credentials: creds,
		Pool:        dbpool,
		Logger:      logger,
	}

	router := httpapi.NewRouter(app, cfg)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
