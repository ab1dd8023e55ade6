package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/rs/zerolog"

	"renderhub/internal/domain"
)

func newTestStability(transport *captureTransport) *Stability {
	return NewStability(StabilityOptions{
		BaseURL:    "https://stability.test/v2beta",
		HTTPClient: &http.Client{Transport: transport},
		Logger:     zerolog.New(io.Discard),
	})
}

func TestStabilitySubmitStartsProcessing(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse("/v2beta/video/generate", http.StatusOK, map[string]any{"id": "gen-1"})
	adapter := newTestStability(transport)

	result, err := adapter.Submit(context.Background(), SubmitRequest{
		Prompt:          "product spin",
		DurationSeconds: 6,
		AspectRatio:     "1:1",
		APIKey:          "sk-test",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Status != domain.RenderStatusProcessing {
		t.Fatalf("Status = %q, want PROCESSING", result.Status)
	}
	if result.ProviderJobID != "gen-1" {
		t.Fatalf("ProviderJobID = %q", result.ProviderJobID)
	}

	var payload stabilitySubmitPayload
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Resolution != "768x768" {
		t.Fatalf("resolution = %q, want 768x768", payload.Resolution)
	}
	if payload.Duration != 4 && payload.Duration != 8 {
		t.Fatalf("duration = %d, want member of allowed set", payload.Duration)
	}
}

func TestStabilityPollInProgress(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse("/v2beta/video/result/gen-1", http.StatusAccepted, map[string]any{"status": "in-progress"})
	adapter := newTestStability(transport)

	result, err := adapter.Poll(context.Background(), "gen-1", "sk-test")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.Status != domain.RenderStatusProcessing {
		t.Fatalf("Status = %q, want PROCESSING", result.Status)
	}
}

func TestStabilityPollCompleteHasNoPublicURL(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse("/v2beta/video/result/gen-1", http.StatusOK, map[string]any{"status": "complete"})
	adapter := newTestStability(transport)

	result, err := adapter.Poll(context.Background(), "gen-1", "sk-test")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.Status != domain.RenderStatusCompleted {
		t.Fatalf("Status = %q, want COMPLETED", result.Status)
	}
	// The output is an authenticated payload: no public URL, the dispatcher
	// must download it.
	if result.OutputURL != "" {
		t.Fatalf("OutputURL = %q, want empty", result.OutputURL)
	}
}

func TestStabilityDownloadReturnsPayload(t *testing.T) {
	transport := newCaptureTransport()
	transport.setBinaryResponse("/v2beta/video/result/gen-1", "video/mp4", []byte{0x00, 0x01, 0x02})
	adapter := newTestStability(transport)

	data, contentType, err := adapter.Download(context.Background(), "gen-1", "sk-test")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(data, []byte{0x00, 0x01, 0x02}) {
		t.Fatalf("payload mismatch: %v", data)
	}
	if contentType != "video/mp4" {
		t.Fatalf("contentType = %q", contentType)
	}
	if got := transport.lastReq.Header.Get("Authorization"); got != "Bearer sk-test" {
		t.Fatalf("Authorization = %q", got)
	}
	if got := transport.lastReq.Header.Get("Accept"); got != "video/mp4" {
		t.Fatalf("Accept = %q", got)
	}
}

func TestStabilityPollClassifiesAuthError(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse("/v2beta/video/result/gen-1", http.StatusUnauthorized, map[string]any{"message": "bad key"})
	adapter := newTestStability(transport)

	_, err := adapter.Poll(context.Background(), "gen-1", "sk-test")
	var provErr *Error
	if !errors.As(err, &provErr) {
		t.Fatalf("expected *video.Error, got %T", err)
	}
	if provErr.Kind != ErrorKindAuth {
		t.Fatalf("Kind = %q, want auth", provErr.Kind)
	}
	if provErr.Retryable() {
		t.Fatal("auth errors must not be retryable")
	}
}
