package domain

import (
	"fmt"
	"strings"
	"time"
)

// RenderStatus enumerates render job lifecycle states.
type RenderStatus string

const (
	RenderStatusQueued     RenderStatus = "QUEUED"
	RenderStatusProcessing RenderStatus = "PROCESSING"
	RenderStatusCompleted  RenderStatus = "COMPLETED"
	RenderStatusFailed     RenderStatus = "FAILED"
)

// Terminal reports whether the status admits no further provider-driven transitions.
func (s RenderStatus) Terminal() bool {
	return s == RenderStatusCompleted || s == RenderStatusFailed
}

// Active reports whether the job still occupies its content version's render slot.
func (s RenderStatus) Active() bool {
	return s == RenderStatusQueued || s == RenderStatusProcessing
}

// StuckThreshold is how long a job may sit in a non-terminal state before it is
// presumed abandoned by its provider.
const StuckThreshold = 5 * time.Minute

// RenderSpec is the typed per-job configuration validated at creation time.
type RenderSpec struct {
	Prompt          string
	DurationSeconds int
	AspectRatio     string
	Model           string
	SceneNumber     int
}

// Validate rejects malformed render requests before any money is committed.
func (s RenderSpec) Validate() error {
	if strings.TrimSpace(s.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrValidation)
	}
	if s.DurationSeconds <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %d", ErrValidation, s.DurationSeconds)
	}
	switch s.AspectRatio {
	case "16:9", "9:16", "1:1":
	default:
		return fmt.Errorf("%w: unsupported aspect ratio %q", ErrValidation, s.AspectRatio)
	}
	if s.SceneNumber < 0 {
		return fmt.Errorf("%w: scene number must not be negative", ErrValidation)
	}
	return nil
}

// RenderJob is one attempt to generate a video via an external provider.
// Jobs are never deleted; terminal states are retained for audit.
type RenderJob struct {
	ID          string
	WorkspaceID string
	ContentID   string
	VersionID   string

	Status          RenderStatus
	Progress        int
	ProgressMessage string
	ErrorCode       string
	ErrorMessage    string

	Provider       string
	ProviderJobID  string
	ProviderStatus string

	Spec RenderSpec

	EstimatedCost float64
	ActualCost    *float64
	RetryCount    int

	// LedgerEntryID links the job to the accounting record of its most recent
	// submission attempt.
	LedgerEntryID string

	OutputURL    string
	ThumbnailURL string

	// Placeholder marks a synthesized offline result. It is never set when a
	// real provider credential was available.
	Placeholder bool

	CreatedAt time.Time

	// LastTransitionAt is stamped on every status change, so a retried job's
	// staleness clock restarts at the retry rather than the original creation.
	LastTransitionAt time.Time

	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Stuck reports whether an active job has outlived the staleness threshold
// since its most recent lifecycle transition.
func (j *RenderJob) Stuck(now time.Time) bool {
	ref := j.LastTransitionAt
	if ref.IsZero() {
		ref = j.CreatedAt
	}
	return j.Status.Active() && now.Sub(ref) > StuckThreshold
}

// HasOutput reports whether the job carries at least one retrievable asset
// reference. A COMPLETED job without one is a data-integrity error.
func (j *RenderJob) HasOutput() bool {
	return strings.TrimSpace(j.OutputURL) != ""
}
