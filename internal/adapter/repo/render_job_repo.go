package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"renderhub/internal/domain"
)

// RenderJobRepositoryPG implements domain.RenderJobRepository.
type RenderJobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewRenderJobRepository creates a new render job repository backed by PostgreSQL.
func NewRenderJobRepository(pool *pgxpool.Pool) *RenderJobRepositoryPG {
	return &RenderJobRepositoryPG{pool: pool}
}

// Create inserts a new render job record. The insert is idempotent on id so a
// duplicate trigger from the dispatch substrate does not fail.
func (r *RenderJobRepositoryPG) Create(ctx context.Context, job *domain.RenderJob) error {
	query := `
INSERT INTO render_jobs (
    id, workspace_id, content_id, version_id, status, progress, progress_message,
    provider, prompt, duration_seconds, aspect_ratio, model, scene_number,
    estimated_cost, retry_count, ledger_entry_id, placeholder, output_url, thumbnail_url,
    created_at, last_transition_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
ON CONFLICT (id) DO NOTHING;
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.WorkspaceID,
		nullableString(job.ContentID),
		nullableString(job.VersionID),
		job.Status,
		job.Progress,
		job.ProgressMessage,
		job.Provider,
		job.Spec.Prompt,
		job.Spec.DurationSeconds,
		job.Spec.AspectRatio,
		job.Spec.Model,
		job.Spec.SceneNumber,
		job.EstimatedCost,
		job.RetryCount,
		nullableString(job.LedgerEntryID),
		job.Placeholder,
		job.OutputURL,
		job.ThumbnailURL,
		job.CreatedAt,
		job.LastTransitionAt,
	)
	return err
}

// GetByID fetches a render job by its identifier.
func (r *RenderJobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.RenderJob, error) {
	row := r.pool.QueryRow(ctx, selectJobColumns+` WHERE id = $1;`, jobID)
	return scanJob(row)
}

// FindActiveByVersion returns the QUEUED or PROCESSING job holding a content
// version's render slot.
func (r *RenderJobRepositoryPG) FindActiveByVersion(ctx context.Context, versionID string) (*domain.RenderJob, error) {
	row := r.pool.QueryRow(ctx, selectJobColumns+`
 WHERE version_id = $1 AND status IN ('QUEUED', 'PROCESSING')
 ORDER BY created_at DESC
 LIMIT 1;`, versionID)
	return scanJob(row)
}

// UpdateStatus persists a lifecycle transition and its bookkeeping fields.
func (r *RenderJobRepositoryPG) UpdateStatus(ctx context.Context, job *domain.RenderJob) error {
	query := `
UPDATE render_jobs
SET status = $2,
    progress = $3,
    progress_message = $4,
    error_code = $5,
    error_message = $6,
    provider_job_id = $17,
    provider_status = $7,
    actual_cost = $8,
    retry_count = $9,
    ledger_entry_id = COALESCE($10, ledger_entry_id),
    output_url = $11,
    thumbnail_url = $12,
    placeholder = $13,
    started_at = $14,
    completed_at = $15,
    last_transition_at = $16
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.Progress,
		job.ProgressMessage,
		job.ErrorCode,
		job.ErrorMessage,
		job.ProviderStatus,
		job.ActualCost,
		job.RetryCount,
		nullableString(job.LedgerEntryID),
		job.OutputURL,
		job.ThumbnailURL,
		job.Placeholder,
		job.StartedAt,
		job.CompletedAt,
		job.LastTransitionAt,
		nullableString(job.ProviderJobID),
	)
	return err
}

// BindProviderJob records the external task handle after submission.
func (r *RenderJobRepositoryPG) BindProviderJob(ctx context.Context, jobID, providerJobID, providerStatus string, startedAt time.Time) error {
	query := `
UPDATE render_jobs
SET provider_job_id = $2,
    provider_status = $3,
    started_at = COALESCE(started_at, $4)
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, providerJobID, providerStatus, startedAt)
	return err
}

const selectJobColumns = `
SELECT id, workspace_id, COALESCE(content_id, ''), COALESCE(version_id, ''),
       status, progress, progress_message, COALESCE(error_code, ''), COALESCE(error_message, ''),
       provider, COALESCE(provider_job_id, ''), COALESCE(provider_status, ''),
       prompt, duration_seconds, aspect_ratio, COALESCE(model, ''), scene_number,
       estimated_cost, actual_cost, retry_count, COALESCE(ledger_entry_id, ''), placeholder,
       COALESCE(output_url, ''), COALESCE(thumbnail_url, ''),
       created_at, COALESCE(last_transition_at, created_at), started_at, completed_at
FROM render_jobs`

func scanJob(row pgx.Row) (*domain.RenderJob, error) {
	var job domain.RenderJob
	if err := row.Scan(
		&job.ID,
		&job.WorkspaceID,
		&job.ContentID,
		&job.VersionID,
		&job.Status,
		&job.Progress,
		&job.ProgressMessage,
		&job.ErrorCode,
		&job.ErrorMessage,
		&job.Provider,
		&job.ProviderJobID,
		&job.ProviderStatus,
		&job.Spec.Prompt,
		&job.Spec.DurationSeconds,
		&job.Spec.AspectRatio,
		&job.Spec.Model,
		&job.Spec.SceneNumber,
		&job.EstimatedCost,
		&job.ActualCost,
		&job.RetryCount,
		&job.LedgerEntryID,
		&job.Placeholder,
		&job.OutputURL,
		&job.ThumbnailURL,
		&job.CreatedAt,
		&job.LastTransitionAt,
		&job.StartedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
