package domain

import (
	"context"
	"time"
)

// RenderJobRepository defines persistence for render jobs. Writes are
// upsert-style where noted so duplicate triggers from the execution substrate
// stay idempotent.
type RenderJobRepository interface {
	Create(ctx context.Context, job *RenderJob) error
	GetByID(ctx context.Context, jobID string) (*RenderJob, error)
	// FindActiveByVersion returns the QUEUED or PROCESSING job linked to a
	// content version, or ErrNotFound when the slot is free.
	FindActiveByVersion(ctx context.Context, versionID string) (*RenderJob, error)
	// UpdateStatus persists a lifecycle transition together with its
	// bookkeeping fields.
	UpdateStatus(ctx context.Context, job *RenderJob) error
	// BindProviderJob records the external task handle after submission.
	BindProviderJob(ctx context.Context, jobID, providerJobID, providerStatus string, startedAt time.Time) error
}

// LedgerRepository defines append-only persistence for accounting records.
type LedgerRepository interface {
	Append(ctx context.Context, entry *RenderLedgerEntry) error
	// UpdateOutcome finalizes a single entry; it never touches other rows.
	UpdateOutcome(ctx context.Context, entryID string, status LedgerStatus, actualCostUsd *float64, errorMessage string, completedAt time.Time) error
	// SumEstimatedForMonth totals estimated cost over non-blocked entries whose
	// submission falls inside the calendar month containing ref.
	SumEstimatedForMonth(ctx context.Context, workspaceID string, ref time.Time) (float64, error)
	// CountForDay counts non-blocked entries submitted during the calendar day
	// containing ref.
	CountForDay(ctx context.Context, workspaceID string, ref time.Time) (int, error)
}

// WorkspaceRepository exposes the budget-relevant slice of workspace settings.
type WorkspaceRepository interface {
	// BudgetSettings returns nil (no error) when the workspace carries no
	// override row.
	BudgetSettings(ctx context.Context, workspaceID string) (*WorkspaceBudgetSettings, error)
}

// CredentialRepository stores encrypted workspace keys and platform fallback keys.
type CredentialRepository interface {
	// WorkspaceKey returns ErrNotFound when the workspace holds no key for the
	// provider.
	WorkspaceKey(ctx context.Context, workspaceID, provider string) (*WorkspaceCredential, error)
	UpsertWorkspaceKey(ctx context.Context, cred *WorkspaceCredential) error
	// PlatformKey returns the shared fallback key for a provider, or
	// ErrNotFound.
	PlatformKey(ctx context.Context, provider string) (string, error)
	UpsertPlatformKey(ctx context.Context, provider, key string) error
}
