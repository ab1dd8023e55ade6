package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"renderhub/internal/domain"
	"renderhub/internal/infra"
)

// Decision is the budget gate's typed verdict. It carries the concrete figures
// so callers can present an actionable message instead of a bare rejection.
type Decision struct {
	Allowed       bool    `json:"allowed"`
	Reason        string  `json:"reason,omitempty"`
	MonthlySpent  float64 `json:"monthly_spent"`
	MonthlyLimit  float64 `json:"monthly_limit"`
	DailyAttempts int     `json:"daily_attempts"`
	DailyLimit    int     `json:"daily_limit"`
}

// Gate admits or rejects proposed renders against the workspace's monthly
// spend and daily attempt caps. Both checks run against one point-in-time read
// of the ledger; two near-simultaneous submissions may both pass, which is an
// accepted minor overage rather than a workspace-wide lock.
type Gate struct {
	ledger     domain.LedgerRepository
	workspaces domain.WorkspaceRepository
	logger     infra.Logger
	now        func() time.Time
}

// NewGate constructs a budget gate over the ledger and workspace settings.
func NewGate(ledger domain.LedgerRepository, workspaces domain.WorkspaceRepository, logger infra.Logger) *Gate {
	return &Gate{ledger: ledger, workspaces: workspaces, logger: logger, now: time.Now}
}

// WithClock overrides the gate's clock. Tests only.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Check reports whether a render estimated at estimatedCostUsd may proceed.
func (g *Gate) Check(ctx context.Context, workspaceID string, estimatedCostUsd float64) (Decision, error) {
	settings, err := g.workspaces.BudgetSettings(ctx, workspaceID)
	if err != nil {
		return Decision{}, fmt.Errorf("load budget settings: %w", err)
	}
	caps := settings.Normalized()

	ref := g.now()
	spent, err := g.ledger.SumEstimatedForMonth(ctx, workspaceID, ref)
	if err != nil {
		return Decision{}, fmt.Errorf("sum monthly spend: %w", err)
	}
	attempts, err := g.ledger.CountForDay(ctx, workspaceID, ref)
	if err != nil {
		return Decision{}, fmt.Errorf("count daily attempts: %w", err)
	}

	decision := Decision{
		Allowed:       true,
		MonthlySpent:  spent,
		MonthlyLimit:  caps.MonthlyBudgetUsd,
		DailyAttempts: attempts,
		DailyLimit:    caps.DailyAttemptsMax,
	}

	if spent+estimatedCostUsd > caps.MonthlyBudgetUsd {
		decision.Allowed = false
		decision.Reason = fmt.Sprintf(
			"monthly budget exceeded: $%.2f spent of $%.2f limit, render estimated at $%.2f",
			spent, caps.MonthlyBudgetUsd, estimatedCostUsd,
		)
	} else if attempts >= caps.DailyAttemptsMax {
		decision.Allowed = false
		decision.Reason = fmt.Sprintf(
			"daily attempt limit reached: %d of %d attempts used today",
			attempts, caps.DailyAttemptsMax,
		)
	}

	event := g.logger.Info().
		Str("event", "budget_check").
		Str("workspace_id", workspaceID).
		Float64("estimated_cost_usd", estimatedCostUsd).
		Float64("monthly_spent", spent).
		Float64("monthly_limit", caps.MonthlyBudgetUsd).
		Int("daily_attempts", attempts).
		Int("daily_limit", caps.DailyAttemptsMax).
		Bool("allowed", decision.Allowed)
	if !decision.Allowed {
		event = g.logger.Warn().
			Str("event", "budget_exceeded").
			Str("workspace_id", workspaceID).
			Str("reason", decision.Reason)
	}
	event.Msg("budget gate")

	return decision, nil
}

// RecordSubmission appends a submitted ledger entry and returns its id.
func (g *Gate) RecordSubmission(ctx context.Context, workspaceID, provider string, spec domain.RenderSpec, estimatedCostUsd float64) (string, error) {
	return g.record(ctx, workspaceID, provider, spec, estimatedCostUsd, domain.LedgerStatusSubmitted, "")
}

// RecordBlocked appends an observability-only entry for a rejected submission.
// Blocked entries never count toward spend or attempt totals.
func (g *Gate) RecordBlocked(ctx context.Context, workspaceID, provider string, spec domain.RenderSpec, estimatedCostUsd float64, reason string) error {
	_, err := g.record(ctx, workspaceID, provider, spec, estimatedCostUsd, domain.LedgerStatusBlocked, reason)
	return err
}

func (g *Gate) record(ctx context.Context, workspaceID, provider string, spec domain.RenderSpec, estimatedCostUsd float64, status domain.LedgerStatus, message string) (string, error) {
	entry := &domain.RenderLedgerEntry{
		ID:               uuid.NewString(),
		WorkspaceID:      workspaceID,
		Provider:         provider,
		DurationSeconds:  spec.DurationSeconds,
		AspectRatio:      spec.AspectRatio,
		PromptLength:     len(spec.Prompt),
		EstimatedCostUsd: estimatedCostUsd,
		Status:           status,
		ErrorMessage:     message,
		SubmittedAt:      g.now(),
	}
	if err := g.ledger.Append(ctx, entry); err != nil {
		return "", fmt.Errorf("append ledger entry: %w", err)
	}
	g.logger.Info().
		Str("event", "ledger_record").
		Str("entry_id", entry.ID).
		Str("workspace_id", workspaceID).
		Str("provider", provider).
		Str("status", string(status)).
		Float64("estimated_cost_usd", estimatedCostUsd).
		Msg("ledger entry recorded")
	return entry.ID, nil
}

// RecordOutcome finalizes one entry with the actual provider outcome. A nil
// actual cost falls back to the estimate (the repository applies the COALESCE).
func (g *Gate) RecordOutcome(ctx context.Context, entryID string, status domain.LedgerStatus, actualCostUsd *float64, errorMessage string) error {
	if status != domain.LedgerStatusCompleted && status != domain.LedgerStatusFailed {
		return fmt.Errorf("outcome status must be completed or failed, got %q", status)
	}
	if err := g.ledger.UpdateOutcome(ctx, entryID, status, actualCostUsd, errorMessage, g.now()); err != nil {
		return fmt.Errorf("update ledger outcome: %w", err)
	}
	g.logger.Info().
		Str("event", "ledger_record").
		Str("entry_id", entryID).
		Str("status", string(status)).
		Msg("ledger outcome recorded")
	return nil
}
