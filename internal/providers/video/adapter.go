package video

import (
	"context"

	"renderhub/internal/domain"
)

// SubmitRequest is the normalized render submission passed to any adapter.
// Adapters absorb provider quirks: prompt length limits, discrete duration
// sets and native aspect-ratio vocabularies.
type SubmitRequest struct {
	Prompt          string
	DurationSeconds int
	AspectRatio     string
	Model           string
	APIKey          string
}

// SubmitResult is the provider's acknowledgement of a new task.
type SubmitResult struct {
	ProviderJobID string
	// Status is QUEUED or PROCESSING depending on whether the provider starts
	// work synchronously.
	Status         domain.RenderStatus
	ProviderStatus string
}

// PollResult is one observation of a remote task, normalized to the canonical
// status vocabulary.
type PollResult struct {
	Status         domain.RenderStatus
	ProviderStatus string
	Progress       int
	OutputURL      string
	ThumbnailURL   string
	ErrorMessage   string
}

// Adapter normalizes one external video-generation API into the canonical
// submit/poll contract.
type Adapter interface {
	Name() string
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	Poll(ctx context.Context, providerJobID, apiKey string) (*PollResult, error)
}

// Downloader is implemented by providers whose finished output is an
// authenticated binary payload rather than a public URL. The dispatch layer
// downloads and persists the result before the job may be marked COMPLETED.
type Downloader interface {
	Download(ctx context.Context, providerJobID, apiKey string) (data []byte, contentType string, err error)
}
