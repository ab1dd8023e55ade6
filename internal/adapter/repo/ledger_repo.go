package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"renderhub/internal/domain"
)

// LedgerRepositoryPG implements domain.LedgerRepository. Entries are
// append-only; aggregation queries read past rows and never rewrite them.
type LedgerRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new ledger repository backed by PostgreSQL.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepositoryPG {
	return &LedgerRepositoryPG{pool: pool}
}

// Append inserts one immutable accounting record.
func (r *LedgerRepositoryPG) Append(ctx context.Context, entry *domain.RenderLedgerEntry) error {
	query := `
INSERT INTO render_ledger (
    id, workspace_id, provider, duration_seconds, aspect_ratio, prompt_length,
    estimated_cost_usd, actual_cost_usd, status, error_message, submitted_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.WorkspaceID,
		entry.Provider,
		entry.DurationSeconds,
		entry.AspectRatio,
		entry.PromptLength,
		entry.EstimatedCostUsd,
		entry.ActualCostUsd,
		entry.Status,
		entry.ErrorMessage,
		entry.SubmittedAt,
	)
	return err
}

// UpdateOutcome finalizes a single entry once the provider outcome is known.
func (r *LedgerRepositoryPG) UpdateOutcome(ctx context.Context, entryID string, status domain.LedgerStatus, actualCostUsd *float64, errorMessage string, completedAt time.Time) error {
	query := `
UPDATE render_ledger
SET status = $2,
    actual_cost_usd = COALESCE($3, estimated_cost_usd),
    error_message = $4,
    completed_at = $5
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, entryID, status, actualCostUsd, errorMessage, completedAt)
	return err
}

// SumEstimatedForMonth totals estimated cost over non-blocked entries in the
// calendar month containing ref.
func (r *LedgerRepositoryPG) SumEstimatedForMonth(ctx context.Context, workspaceID string, ref time.Time) (float64, error) {
	query := `
SELECT COALESCE(SUM(estimated_cost_usd), 0)
FROM render_ledger
WHERE workspace_id = $1
  AND status <> 'blocked'
  AND submitted_at >= date_trunc('month', $2::timestamptz)
  AND submitted_at < date_trunc('month', $2::timestamptz) + interval '1 month';
`
	var total float64
	if err := r.pool.QueryRow(ctx, query, workspaceID, ref).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// CountForDay counts non-blocked entries submitted during the calendar day
// containing ref.
func (r *LedgerRepositoryPG) CountForDay(ctx context.Context, workspaceID string, ref time.Time) (int, error) {
	query := `
SELECT COUNT(*)
FROM render_ledger
WHERE workspace_id = $1
  AND status <> 'blocked'
  AND submitted_at >= date_trunc('day', $2::timestamptz)
  AND submitted_at < date_trunc('day', $2::timestamptz) + interval '1 day';
`
	var count int
	if err := r.pool.QueryRow(ctx, query, workspaceID, ref).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
