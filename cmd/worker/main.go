package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"

	"renderhub/internal/adapter/repo"
	"renderhub/internal/budget"
	"renderhub/internal/credentials"
	"renderhub/internal/infra"
	"renderhub/internal/infra/secretbox"
	"renderhub/internal/providers/video"
	"renderhub/internal/render"
	"renderhub/internal/storage"
)

const reconnectDelay = 5 * time.Second

type renderWorker struct {
	ctx          context.Context
	manager      *render.Manager
	dispatcher   *render.SubstrateDispatcher
	pollInterval time.Duration
	logger       infra.Logger
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	box, err := secretbox.New(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: invalid credential encryption key")
	}
	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	jobs := repo.NewRenderJobRepository(pool)
	ledger := repo.NewLedgerRepository(pool)
	workspaces := repo.NewWorkspaceRepository(pool)
	creds := repo.NewCredentialRepository(pool)

	gate := budget.NewGate(ledger, workspaces, logger)
	resolver := credentials.NewResolver(creds, box, logger)
	adapters := map[string]video.Adapter{
		"runway":    video.NewRunway(video.RunwayOptions{BaseURL: cfg.RunwayBaseURL, Logger: logger}),
		"stability": video.NewStability(video.StabilityOptions{BaseURL: cfg.StabilityBaseURL, Logger: logger}),
	}

	manager := render.NewManager(jobs, gate, resolver, adapters, store, logger)

	for {
		if err := runConsumer(ctx, cfg, manager, logger); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error().Err(err).Msg("worker: consumer stopped, reconnecting")
		}
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker: stopped")
			return
		case <-time.After(reconnectDelay):
		}
	}
	logger.Info().Msg("worker: stopped")
}

// runConsumer owns one broker connection. Returns when the connection drops
// or the context is canceled.
func runConsumer(ctx context.Context, cfg *infra.Config, manager *render.Manager, logger infra.Logger) error {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	dispatcher, err := render.NewSubstrateDispatcher(conn, cfg.DispatchQueue, logger)
	if err != nil {
		return err
	}
	manager.SetDispatcher(dispatcher)

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(cfg.BatchWindowSize, 0, false); err != nil {
		return err
	}
	deliveries, err := ch.Consume(cfg.DispatchQueue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	worker := &renderWorker{
		ctx:          ctx,
		manager:      manager,
		dispatcher:   dispatcher,
		pollInterval: cfg.PollInterval,
		logger:       logger,
	}
	logger.Info().Str("queue", cfg.DispatchQueue).Msg("worker: started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			worker.handle(delivery)
		}
	}
}

func (w *renderWorker) handle(delivery amqp.Delivery) {
	var event render.DispatchEvent
	if err := json.Unmarshal(delivery.Body, &event); err != nil {
		w.logger.Error().Err(err).Msg("worker: malformed dispatch event")
		_ = delivery.Reject(false)
		return
	}

	switch event.Step {
	case render.StepSubmit:
		if err := w.manager.RunSubmit(w.ctx, event.JobID); err != nil {
			var provErr *video.Error
			if errors.As(err, &provErr) && provErr.Retryable() {
				// The job is still QUEUED; redeliver the submit step after a
				// poll interval instead of failing it.
				w.logger.Warn().Err(err).Str("job_id", event.JobID).Msg("worker: transient submit failure, rescheduling")
				w.republishAfter(event, w.pollInterval)
				_ = delivery.Ack(false)
				return
			}
			w.logger.Error().Err(err).Str("job_id", event.JobID).Msg("worker: submit step failed")
			_ = delivery.Ack(false)
			return
		}
		w.schedulePoll(event)
	case render.StepPoll:
		done, err := w.manager.RunPoll(w.ctx, event.JobID)
		if err != nil {
			w.logger.Error().Err(err).Str("job_id", event.JobID).Msg("worker: poll step failed")
		}
		if !done {
			w.schedulePoll(event)
		}
	default:
		w.logger.Error().Str("step", string(event.Step)).Msg("worker: unknown dispatch step")
	}
	_ = delivery.Ack(false)
}

// schedulePoll re-publishes the event as a poll step after the configured
// interval. The broker carries the schedule, so a worker restart between
// polls loses nothing beyond one interval of latency.
func (w *renderWorker) schedulePoll(event render.DispatchEvent) {
	event.Step = render.StepPoll
	w.republishAfter(event, w.pollInterval)
}

func (w *renderWorker) republishAfter(event render.DispatchEvent, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if w.ctx.Err() != nil {
			return
		}
		if err := w.dispatcher.Dispatch(w.ctx, event); err != nil {
			w.logger.Error().Err(err).Str("job_id", event.JobID).Str("step", string(event.Step)).Msg("worker: failed to reschedule step")
		}
	})
}
