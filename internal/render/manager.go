package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"renderhub/internal/budget"
	"renderhub/internal/domain"
	"renderhub/internal/infra"
	"renderhub/internal/providers/video"
	"renderhub/internal/recommend"
)

// Error codes recorded on failed jobs.
const (
	codeNoCredential  = "NO_CREDENTIAL"
	codeValidation    = "VALIDATION"
	codeProviderAuth  = "PROVIDER_AUTH"
	codeProviderInput = "PROVIDER_PAYLOAD"
	codeRateLimited   = "PROVIDER_RATE_LIMITED"
	codeUpstream      = "PROVIDER_UPSTREAM"
	codeNoOutput      = "NO_OUTPUT"
	codeStuck         = "STUCK"
)

// BudgetGate is the slice of the budget package the manager depends on.
type BudgetGate interface {
	Check(ctx context.Context, workspaceID string, estimatedCostUsd float64) (budget.Decision, error)
	RecordSubmission(ctx context.Context, workspaceID, provider string, spec domain.RenderSpec, estimatedCostUsd float64) (string, error)
	RecordBlocked(ctx context.Context, workspaceID, provider string, spec domain.RenderSpec, estimatedCostUsd float64, reason string) error
	RecordOutcome(ctx context.Context, entryID string, status domain.LedgerStatus, actualCostUsd *float64, errorMessage string) error
}

// CredentialResolver yields a usable API key for a provider, or nil.
type CredentialResolver interface {
	Resolve(ctx context.Context, provider, workspaceID string) (*domain.ResolvedCredential, error)
}

// ObjectStore persists downloaded provider payloads.
type ObjectStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// ProposeRequest is the orchestration entry point's input.
type ProposeRequest struct {
	WorkspaceID string
	ContentID   string
	VersionID   string
	Provider    string
	Spec        domain.RenderSpec
}

// Manager owns the render job state machine. It is the only component that
// mutates a job's status: on dispatch, on poll, on stuck-reset and on retry.
type Manager struct {
	jobs       domain.RenderJobRepository
	gate       BudgetGate
	resolver   CredentialResolver
	adapters   map[string]video.Adapter
	store      ObjectStore
	dispatcher Dispatcher
	logger     infra.Logger
	rates      map[string]float64
	now        func() time.Time
}

// NewManager wires the lifecycle manager. The dispatcher is attached
// separately because the direct dispatcher needs the manager itself.
func NewManager(
	jobs domain.RenderJobRepository,
	gate BudgetGate,
	resolver CredentialResolver,
	adapters map[string]video.Adapter,
	store ObjectStore,
	logger infra.Logger,
) *Manager {
	rates := map[string]float64{}
	for _, p := range recommend.DefaultCatalog() {
		rates[p.ID] = p.RatePerSecondUsd
	}
	return &Manager{
		jobs:     jobs,
		gate:     gate,
		resolver: resolver,
		adapters: adapters,
		store:    store,
		logger:   logger,
		rates:    rates,
		now:      time.Now,
	}
}

// SetDispatcher attaches the configured dispatcher.
func (m *Manager) SetDispatcher(d Dispatcher) { m.dispatcher = d }

// WithClock overrides the manager's clock. Tests only.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// EstimateCost prices a render from the provider's per-second rate.
func (m *Manager) EstimateCost(provider string, durationSeconds int) float64 {
	rate, ok := m.rates[provider]
	if !ok {
		rate = 0.50
	}
	return rate * float64(durationSeconds)
}

// Propose runs the full admission path for one render: validation, the active
// job invariant, the budget gate, job creation, ledger record and dispatch.
func (m *Manager) Propose(ctx context.Context, req ProposeRequest) (*domain.RenderJob, budget.Decision, error) {
	if err := req.Spec.Validate(); err != nil {
		return nil, budget.Decision{}, err
	}
	if _, ok := m.adapters[req.Provider]; !ok {
		return nil, budget.Decision{}, fmt.Errorf("%w: unknown provider %q", domain.ErrValidation, req.Provider)
	}

	if req.VersionID != "" {
		if err := m.clearVersionSlot(ctx, req.VersionID); err != nil {
			return nil, budget.Decision{}, err
		}
	}

	estimated := m.EstimateCost(req.Provider, req.Spec.DurationSeconds)
	decision, err := m.gate.Check(ctx, req.WorkspaceID, estimated)
	if err != nil {
		return nil, budget.Decision{}, err
	}
	if !decision.Allowed {
		if err := m.gate.RecordBlocked(ctx, req.WorkspaceID, req.Provider, req.Spec, estimated, decision.Reason); err != nil {
			m.logger.Error().Err(err).Str("workspace_id", req.WorkspaceID).Msg("failed to record blocked submission")
		}
		return nil, decision, fmt.Errorf("%w: %s", domain.ErrBudgetExceeded, decision.Reason)
	}

	job, err := m.createAndDispatch(ctx, req, estimated, 0)
	if err != nil {
		return nil, decision, err
	}
	return job, decision, nil
}

// clearVersionSlot enforces the one-active-job-per-version invariant. A stuck
// occupant is reset; a healthy one rejects the proposal.
func (m *Manager) clearVersionSlot(ctx context.Context, versionID string) error {
	active, err := m.jobs.FindActiveByVersion(ctx, versionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if !active.Stuck(m.now()) {
		return fmt.Errorf("%w: job %s is %s", domain.ErrActiveJobExists, active.ID, active.Status)
	}
	return m.failStuck(ctx, active)
}

// failStuck abandons a stale job. The remote provider task is not canceled.
func (m *Manager) failStuck(ctx context.Context, job *domain.RenderJob) error {
	job.ErrorCode = codeStuck
	job.ErrorMessage = fmt.Sprintf("reset: job stuck in %s for over %s", job.Status, domain.StuckThreshold)
	if err := m.transition(ctx, job, domain.RenderStatusFailed); err != nil {
		return err
	}
	m.finalizeLedger(ctx, job, domain.LedgerStatusFailed, nil, job.ErrorMessage)
	m.logger.Warn().
		Str("event", "job_reset").
		Str("job_id", job.ID).
		Str("provider", job.Provider).
		Msg("stuck job reset")
	return nil
}

func (m *Manager) createAndDispatch(ctx context.Context, req ProposeRequest, estimated float64, retryCount int) (*domain.RenderJob, error) {
	entryID, err := m.gate.RecordSubmission(ctx, req.WorkspaceID, req.Provider, req.Spec, estimated)
	if err != nil {
		return nil, err
	}
	now := m.now()
	job := &domain.RenderJob{
		ID:               uuid.NewString(),
		WorkspaceID:      req.WorkspaceID,
		ContentID:        req.ContentID,
		VersionID:        req.VersionID,
		Status:           domain.RenderStatusQueued,
		Provider:         req.Provider,
		Spec:             req.Spec,
		EstimatedCost:    estimated,
		RetryCount:       retryCount,
		LedgerEntryID:    entryID,
		CreatedAt:        now,
		LastTransitionAt: now,
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create render job: %w", err)
	}
	if err := m.dispatch(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// dispatch hands the job to the execution substrate. When the substrate is
// unreachable the call degrades: a direct synchronous submit if a credential
// exists, otherwise the offline placeholder path.
func (m *Manager) dispatch(ctx context.Context, job *domain.RenderJob) error {
	event := DispatchEvent{
		JobID:       job.ID,
		VersionID:   job.VersionID,
		WorkspaceID: job.WorkspaceID,
		Provider:    job.Provider,
		Step:        StepSubmit,
	}
	err := m.dispatcher.Dispatch(ctx, event)
	if err != nil && errors.Is(err, domain.ErrMissingCredential) {
		// Direct mode already ran the submit and failed the job; nothing to
		// degrade to.
		return err
	}
	if err == nil {
		m.logger.Info().
			Str("event", "dispatch_ok").
			Str("job_id", job.ID).
			Str("provider", job.Provider).
			Msg("job dispatched")
		return nil
	}
	m.logger.Warn().
		Err(err).
		Str("event", "dispatch_failed").
		Str("job_id", job.ID).
		Msg("dispatch substrate unreachable, degrading")

	cred, resolveErr := m.resolver.Resolve(ctx, job.Provider, job.WorkspaceID)
	if resolveErr != nil {
		return resolveErr
	}
	if cred == nil {
		return m.completePlaceholder(ctx, job)
	}
	return m.RunSubmit(ctx, job.ID)
}

// completePlaceholder synthesizes a finished job so downstream flows remain
// testable without credentials or a substrate. Never reachable when a real
// credential exists.
func (m *Manager) completePlaceholder(ctx context.Context, job *domain.RenderJob) error {
	job.Placeholder = true
	job.Progress = 100
	job.ProgressMessage = "placeholder render (offline mode)"
	job.OutputURL = fmt.Sprintf("placeholder/renders/%s/video.mp4", job.ID)
	if err := m.transition(ctx, job, domain.RenderStatusCompleted); err != nil {
		return err
	}
	zero := 0.0
	m.finalizeLedger(ctx, job, domain.LedgerStatusCompleted, &zero, "")
	m.logger.Info().
		Str("job_id", job.ID).
		Bool("placeholder", true).
		Msg("placeholder render completed")
	return nil
}

// RunSubmit is the substrate-invoked submit step. It is idempotent: a job that
// already left QUEUED is not resubmitted.
func (m *Manager) RunSubmit(ctx context.Context, jobID string) error {
	job, err := m.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.RenderStatusQueued || job.ProviderJobID != "" {
		return nil
	}

	adapter, ok := m.adapters[job.Provider]
	if !ok {
		return m.failJob(ctx, job, codeValidation, fmt.Sprintf("provider %q not configured", job.Provider))
	}
	cred, err := m.resolver.Resolve(ctx, job.Provider, job.WorkspaceID)
	if err != nil {
		return err
	}
	if cred == nil {
		if ferr := m.failJob(ctx, job, codeNoCredential, fmt.Sprintf("no API key configured for provider %q", job.Provider)); ferr != nil {
			return ferr
		}
		return fmt.Errorf("%w: provider %s, workspace %s", domain.ErrMissingCredential, job.Provider, job.WorkspaceID)
	}

	result, err := adapter.Submit(ctx, video.SubmitRequest{
		Prompt:          job.Spec.Prompt,
		DurationSeconds: job.Spec.DurationSeconds,
		AspectRatio:     job.Spec.AspectRatio,
		Model:           job.Spec.Model,
		APIKey:          cred.APIKey,
	})
	if err != nil {
		var provErr *video.Error
		if errors.As(err, &provErr) && provErr.Retryable() {
			// Transient: the job stays QUEUED so the substrate can redeliver
			// the submit step.
			return err
		}
		return m.failFromProviderError(ctx, job, err)
	}

	startedAt := m.now()
	if err := m.jobs.BindProviderJob(ctx, job.ID, result.ProviderJobID, result.ProviderStatus, startedAt); err != nil {
		return err
	}
	job.ProviderJobID = result.ProviderJobID
	job.ProviderStatus = result.ProviderStatus
	job.StartedAt = &startedAt
	if result.Status == domain.RenderStatusProcessing {
		return m.transition(ctx, job, domain.RenderStatusProcessing)
	}
	return nil
}

// RunPoll is the substrate-invoked poll step. Returns true when the job has
// reached a terminal state and no further polls are needed. Polls against a
// terminal job are no-ops, keeping the history monotonic.
func (m *Manager) RunPoll(ctx context.Context, jobID string) (bool, error) {
	job, err := m.jobs.GetByID(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status.Terminal() {
		return true, nil
	}
	if job.Stuck(m.now()) {
		if err := m.failStuck(ctx, job); err != nil {
			return false, err
		}
		return true, nil
	}
	if job.ProviderJobID == "" {
		return false, nil
	}

	adapter, ok := m.adapters[job.Provider]
	if !ok {
		return true, m.failJob(ctx, job, codeValidation, fmt.Sprintf("provider %q not configured", job.Provider))
	}
	apiKey := ""
	if cred, err := m.resolver.Resolve(ctx, job.Provider, job.WorkspaceID); err == nil && cred != nil {
		apiKey = cred.APIKey
	}

	result, err := adapter.Poll(ctx, job.ProviderJobID, apiKey)
	if err != nil {
		var provErr *video.Error
		if errors.As(err, &provErr) && provErr.Retryable() {
			// Transient: leave the job as-is for the substrate's next attempt.
			return false, err
		}
		return true, m.failFromProviderError(ctx, job, err)
	}

	job.ProviderStatus = result.ProviderStatus
	switch result.Status {
	case domain.RenderStatusQueued:
		return false, m.jobs.UpdateStatus(ctx, job)
	case domain.RenderStatusProcessing:
		if result.Progress > job.Progress {
			job.Progress = result.Progress
		}
		if job.Status == domain.RenderStatusQueued {
			return false, m.transition(ctx, job, domain.RenderStatusProcessing)
		}
		return false, m.jobs.UpdateStatus(ctx, job)
	case domain.RenderStatusCompleted:
		return true, m.completeFromPoll(ctx, job, adapter, result, apiKey)
	case domain.RenderStatusFailed:
		message := result.ErrorMessage
		if message == "" {
			message = "provider reported failure"
		}
		return true, m.failJob(ctx, job, codeUpstream, message)
	default:
		return false, nil
	}
}

// completeFromPoll finishes a job, performing the authenticated download first
// for providers that do not publish public URLs.
func (m *Manager) completeFromPoll(ctx context.Context, job *domain.RenderJob, adapter video.Adapter, result *video.PollResult, apiKey string) error {
	job.Progress = 100
	job.OutputURL = result.OutputURL
	job.ThumbnailURL = result.ThumbnailURL

	if job.OutputURL == "" {
		if dl, ok := adapter.(video.Downloader); ok {
			data, _, err := dl.Download(ctx, job.ProviderJobID, apiKey)
			if err != nil {
				return m.failFromProviderError(ctx, job, err)
			}
			key, err := m.store.Write(ctx, fmt.Sprintf("renders/%s/video.mp4", job.ID), data)
			if err != nil {
				return m.failJob(ctx, job, codeUpstream, fmt.Sprintf("persist output: %v", err))
			}
			job.OutputURL = key
		}
	}

	if !job.HasOutput() {
		// COMPLETED with nothing retrievable is a data-integrity failure.
		if err := m.failJob(ctx, job, codeNoOutput, "provider reported success but returned no output asset"); err != nil {
			return err
		}
		return fmt.Errorf("%w: job %s", domain.ErrNoOutput, job.ID)
	}

	if err := m.transition(ctx, job, domain.RenderStatusCompleted); err != nil {
		return err
	}
	m.finalizeLedger(ctx, job, domain.LedgerStatusCompleted, nil, "")
	return nil
}

// Retry re-queues a failed job. Only FAILED jobs may be retried; the error
// names the current status so the caller can explain the rejection. A retry
// contends for the version slot like any new proposal: a newer active job on
// the same version rejects it.
func (m *Manager) Retry(ctx context.Context, jobID string) (*domain.RenderJob, error) {
	job, err := m.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.RenderStatusFailed {
		return nil, fmt.Errorf("%w: job %s is %s, only FAILED jobs can be retried", domain.ErrInvalidRetry, job.ID, job.Status)
	}
	if job.VersionID != "" {
		if err := m.clearVersionSlot(ctx, job.VersionID); err != nil {
			return nil, err
		}
	}

	decision, err := m.gate.Check(ctx, job.WorkspaceID, job.EstimatedCost)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		if err := m.gate.RecordBlocked(ctx, job.WorkspaceID, job.Provider, job.Spec, job.EstimatedCost, decision.Reason); err != nil {
			m.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to record blocked retry")
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrBudgetExceeded, decision.Reason)
	}

	entryID, err := m.gate.RecordSubmission(ctx, job.WorkspaceID, job.Provider, job.Spec, job.EstimatedCost)
	if err != nil {
		return nil, err
	}

	job.RetryCount++
	job.LedgerEntryID = entryID
	job.ErrorCode = ""
	job.ErrorMessage = ""
	job.Progress = 0
	job.ProgressMessage = ""
	job.ProviderJobID = ""
	job.ProviderStatus = ""
	job.OutputURL = ""
	job.ThumbnailURL = ""
	job.StartedAt = nil
	job.CompletedAt = nil
	if err := m.transition(ctx, job, domain.RenderStatusQueued); err != nil {
		return nil, err
	}
	if err := m.dispatch(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ForceReset bypasses the stuck threshold for a PROCESSING or FAILED job,
// failing the old attempt and creating a fresh one in its place.
func (m *Manager) ForceReset(ctx context.Context, jobID string) (*domain.RenderJob, error) {
	job, err := m.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case domain.RenderStatusProcessing, domain.RenderStatusFailed:
	default:
		return nil, fmt.Errorf("%w: job %s is %s, only PROCESSING or FAILED jobs can be force reset", domain.ErrInvalidReset, job.ID, job.Status)
	}

	if job.Status == domain.RenderStatusProcessing {
		job.ErrorCode = codeStuck
		job.ErrorMessage = "reset: manual force reset"
		if err := m.transition(ctx, job, domain.RenderStatusFailed); err != nil {
			return nil, err
		}
		m.finalizeLedger(ctx, job, domain.LedgerStatusFailed, nil, job.ErrorMessage)
		m.logger.Warn().
			Str("event", "job_reset").
			Str("job_id", job.ID).
			Msg("job force reset")
	}

	// The fresh job takes the version slot, so a different active occupant
	// rejects the reset just like a proposal.
	if job.VersionID != "" {
		if err := m.clearVersionSlot(ctx, job.VersionID); err != nil {
			return nil, err
		}
	}

	return m.createAndDispatch(ctx, ProposeRequest{
		WorkspaceID: job.WorkspaceID,
		ContentID:   job.ContentID,
		VersionID:   job.VersionID,
		Provider:    job.Provider,
		Spec:        job.Spec,
	}, job.EstimatedCost, 0)
}

// GetJob loads a job, applying stuck-job recovery on access: a stale active
// job is failed and a fresh one is created and returned in its place.
func (m *Manager) GetJob(ctx context.Context, jobID string) (*domain.RenderJob, error) {
	job, err := m.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Stuck(m.now()) {
		return job, nil
	}
	if err := m.failStuck(ctx, job); err != nil {
		return nil, err
	}
	return m.createAndDispatch(ctx, ProposeRequest{
		WorkspaceID: job.WorkspaceID,
		ContentID:   job.ContentID,
		VersionID:   job.VersionID,
		Provider:    job.Provider,
		Spec:        job.Spec,
	}, job.EstimatedCost, 0)
}

// failJob records an error on the job and finalizes its ledger entry. A failed
// provider call fails the job, not the whole request pipeline.
func (m *Manager) failJob(ctx context.Context, job *domain.RenderJob, code, message string) error {
	job.ErrorCode = code
	job.ErrorMessage = message
	if err := m.transition(ctx, job, domain.RenderStatusFailed); err != nil {
		return err
	}
	m.finalizeLedger(ctx, job, domain.LedgerStatusFailed, nil, message)
	return nil
}

func (m *Manager) failFromProviderError(ctx context.Context, job *domain.RenderJob, err error) error {
	code := codeUpstream
	var provErr *video.Error
	if errors.As(err, &provErr) {
		switch provErr.Kind {
		case video.ErrorKindAuth:
			code = codeProviderAuth
		case video.ErrorKindPayload:
			code = codeProviderInput
		case video.ErrorKindRateLimited:
			code = codeRateLimited
		}
	}
	return m.failJob(ctx, job, code, err.Error())
}

// finalizeLedger records the outcome on the job's ledger entry, best effort.
func (m *Manager) finalizeLedger(ctx context.Context, job *domain.RenderJob, status domain.LedgerStatus, actual *float64, message string) {
	if job.LedgerEntryID == "" {
		return
	}
	if err := m.gate.RecordOutcome(ctx, job.LedgerEntryID, status, actual, message); err != nil {
		m.logger.Error().Err(err).
			Str("job_id", job.ID).
			Str("entry_id", job.LedgerEntryID).
			Msg("failed to finalize ledger entry")
	}
}

// transition validates and persists one edge of the status graph.
func (m *Manager) transition(ctx context.Context, job *domain.RenderJob, to domain.RenderStatus) error {
	if !validTransition(job.Status, to) {
		return fmt.Errorf("invalid transition %s -> %s for job %s", job.Status, to, job.ID)
	}
	now := m.now()
	job.Status = to
	job.LastTransitionAt = now
	switch to {
	case domain.RenderStatusProcessing:
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
	case domain.RenderStatusCompleted, domain.RenderStatusFailed:
		job.CompletedAt = &now
		if to == domain.RenderStatusCompleted && job.ActualCost == nil {
			cost := job.EstimatedCost
			if job.Placeholder {
				cost = 0
			}
			job.ActualCost = &cost
		}
	case domain.RenderStatusQueued:
		// Retry path: a fresh attempt for the same record.
	}
	return m.jobs.UpdateStatus(ctx, job)
}

// validTransition encodes the lifecycle graph. The only edge out of a terminal
// state is FAILED -> QUEUED via retry.
func validTransition(from, to domain.RenderStatus) bool {
	switch from {
	case domain.RenderStatusQueued:
		return to == domain.RenderStatusProcessing || to == domain.RenderStatusFailed || to == domain.RenderStatusCompleted
	case domain.RenderStatusProcessing:
		return to == domain.RenderStatusCompleted || to == domain.RenderStatusFailed
	case domain.RenderStatusFailed:
		return to == domain.RenderStatusQueued
	default:
		return false
	}
}

// DescribeError maps manager errors onto the user-facing taxonomy for API
// responses.
func DescribeError(err error) (status string, ok bool) {
	switch {
	case errors.Is(err, domain.ErrBudgetExceeded):
		return "budget_exceeded", true
	case errors.Is(err, domain.ErrActiveJobExists):
		return "active_job_exists", true
	case errors.Is(err, domain.ErrInvalidRetry), errors.Is(err, domain.ErrInvalidReset):
		return "invalid_state", true
	case errors.Is(err, domain.ErrValidation):
		return "validation", true
	case errors.Is(err, domain.ErrMissingCredential):
		return "missing_credential", true
	case errors.Is(err, domain.ErrNotFound):
		return "not_found", true
	}
	var provErr *video.Error
	if errors.As(err, &provErr) {
		return "provider_" + string(provErr.Kind), true
	}
	return "", false
}
