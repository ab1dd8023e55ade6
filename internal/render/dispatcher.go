package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"renderhub/internal/infra"
	"renderhub/internal/providers/video"
)

// Step names the lifecycle action a dispatch event asks for.
type Step string

const (
	StepSubmit Step = "submit"
	StepPoll   Step = "poll"
)

// DispatchEvent is the durable unit of work handed to the execution substrate.
type DispatchEvent struct {
	JobID       string `json:"job_id"`
	VersionID   string `json:"version_id,omitempty"`
	WorkspaceID string `json:"workspace_id"`
	Provider    string `json:"provider"`
	Step        Step   `json:"step"`
}

// Dispatcher hands a render step to whatever executes it.
type Dispatcher interface {
	Dispatch(ctx context.Context, event DispatchEvent) error
}

// SubstrateDispatcher publishes events to a durable message queue consumed by
// the worker process. Survives API restarts: an event accepted by the broker
// will eventually run.
type SubstrateDispatcher struct {
	conn   *amqp.Connection
	queue  string
	logger infra.Logger
}

// NewSubstrateDispatcher declares the queue and returns a publisher bound to
// it. The connection is owned by the caller.
func NewSubstrateDispatcher(conn *amqp.Connection, queue string, logger infra.Logger) (*SubstrateDispatcher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &SubstrateDispatcher{conn: conn, queue: queue, logger: logger}, nil
}

// Dispatch publishes one event. A channel is opened per publish; churn is low
// enough that pooling is not worth the bookkeeping.
func (d *SubstrateDispatcher) Dispatch(ctx context.Context, event DispatchEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal dispatch event: %w", err)
	}
	ch, err := d.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, "", d.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", d.queue, err)
	}
	d.logger.Debug().
		Str("event", "dispatch").
		Str("job_id", event.JobID).
		Str("step", string(event.Step)).
		Msg("event published")
	return nil
}

// DirectDispatcher executes steps synchronously in-process. Used when no
// message broker is configured; completed-but-unpersisted work is lost on
// crash, which is acceptable for development and single-node setups.
type DirectDispatcher struct {
	manager      *Manager
	pollInterval time.Duration
	logger       infra.Logger
}

func NewDirectDispatcher(manager *Manager, pollInterval time.Duration, logger infra.Logger) *DirectDispatcher {
	return &DirectDispatcher{manager: manager, pollInterval: pollInterval, logger: logger}
}

// Dispatch runs the submit inline and drives polling on a background goroutine
// until the job reaches a terminal state.
func (d *DirectDispatcher) Dispatch(ctx context.Context, event DispatchEvent) error {
	switch event.Step {
	case StepSubmit:
		if err := d.manager.RunSubmit(ctx, event.JobID); err != nil {
			var provErr *video.Error
			if errors.As(err, &provErr) && provErr.Retryable() {
				// Transient provider failure; keep resubmitting on the poll
				// cadence instead of failing the proposal.
				d.logger.Warn().Err(err).Str("job_id", event.JobID).Msg("transient submit failure, retrying")
				go d.submitLoop(event.JobID)
				return nil
			}
			return err
		}
		go d.pollLoop(event.JobID)
		return nil
	case StepPoll:
		go d.pollLoop(event.JobID)
		return nil
	default:
		return fmt.Errorf("unknown dispatch step %q", event.Step)
	}
}

// submitLoop re-runs the submit step until it sticks, then hands off to the
// poll loop. Non-retryable errors end the attempt; the manager already failed
// the job.
func (d *DirectDispatcher) submitLoop(jobID string) {
	ctx := context.Background()
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for range ticker.C {
		err := d.manager.RunSubmit(ctx, jobID)
		if err != nil {
			var provErr *video.Error
			if errors.As(err, &provErr) && provErr.Retryable() {
				continue
			}
			d.logger.Error().Err(err).Str("job_id", jobID).Msg("submit step failed")
			return
		}
		d.pollLoop(jobID)
		return
	}
}

func (d *DirectDispatcher) pollLoop(jobID string) {
	ctx := context.Background()
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for range ticker.C {
		done, err := d.manager.RunPoll(ctx, jobID)
		if err != nil {
			d.logger.Error().Err(err).Str("job_id", jobID).Msg("poll step failed")
		}
		if done {
			return
		}
	}
}
