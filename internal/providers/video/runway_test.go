package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"renderhub/internal/domain"
)

type captureTransport struct {
	responses map[string]responseStub
	lastBody  []byte
	lastReq   *http.Request
}

type responseStub struct {
	status int
	header http.Header
	body   []byte
}

func newCaptureTransport() *captureTransport {
	return &captureTransport{responses: map[string]responseStub{}}
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.lastReq = req
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		c.lastBody = body
	}
	if stub, ok := c.responses[req.URL.Path]; ok {
		return stub.toResponse(), nil
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("not found")),
	}, nil
}

func (c *captureTransport) setJSONResponse(path string, status int, payload any) {
	body, _ := json.Marshal(payload)
	c.responses[path] = responseStub{
		status: status,
		header: http.Header{"Content-Type": []string{"application/json"}},
		body:   body,
	}
}

func (c *captureTransport) setBinaryResponse(path string, contentType string, data []byte) {
	c.responses[path] = responseStub{
		status: http.StatusOK,
		header: http.Header{"Content-Type": []string{contentType}},
		body:   data,
	}
}

func (s responseStub) toResponse() *http.Response {
	header := http.Header{}
	for k, values := range s.header {
		cloned := make([]string, len(values))
		copy(cloned, values)
		header[k] = cloned
	}
	return &http.Response{
		StatusCode: s.status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(s.body)),
	}
}

func newTestRunway(transport *captureTransport) *Runway {
	return NewRunway(RunwayOptions{
		BaseURL:    "https://runway.test/v1",
		HTTPClient: &http.Client{Transport: transport},
		Logger:     zerolog.New(io.Discard),
	})
}

func TestRunwaySubmitTruncatesAndSnaps(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse("/v1/text_to_video", http.StatusOK, map[string]any{"id": "task-1"})
	adapter := newTestRunway(transport)

	result, err := adapter.Submit(context.Background(), SubmitRequest{
		Prompt:          strings.Repeat("x", 1500),
		DurationSeconds: 7,
		AspectRatio:     "9:16",
		APIKey:          "key",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.ProviderJobID != "task-1" {
		t.Fatalf("ProviderJobID = %q, want task-1", result.ProviderJobID)
	}
	if result.Status != domain.RenderStatusQueued {
		t.Fatalf("Status = %q, want QUEUED", result.Status)
	}

	var payload runwaySubmitPayload
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.PromptText) != runwayPromptLimit {
		t.Fatalf("prompt length = %d, want %d", len(payload.PromptText), runwayPromptLimit)
	}
	if payload.Duration != 5 {
		t.Fatalf("duration = %d, want snap to 5", payload.Duration)
	}
	if payload.Ratio != "720:1280" {
		t.Fatalf("ratio = %q, want 720:1280", payload.Ratio)
	}
	if got := transport.lastReq.Header.Get("Authorization"); got != "Bearer key" {
		t.Fatalf("Authorization = %q", got)
	}
}

func TestRunwaySubmitDefaultsUnknownRatio(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse("/v1/text_to_video", http.StatusOK, map[string]any{"id": "task-2"})
	adapter := newTestRunway(transport)

	if _, err := adapter.Submit(context.Background(), SubmitRequest{
		Prompt:          "clip",
		DurationSeconds: 10,
		AspectRatio:     "4:3",
		APIKey:          "key",
	}); err != nil {
		t.Fatalf("Submit should not fail for unknown ratio: %v", err)
	}
	var payload runwaySubmitPayload
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Ratio != "1280:720" {
		t.Fatalf("ratio = %q, want safe default 1280:720", payload.Ratio)
	}
}

func TestRunwaySubmitClassifiesErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		kind   ErrorKind
	}{
		{"auth", http.StatusUnauthorized, ErrorKindAuth},
		{"payload", http.StatusBadRequest, ErrorKindPayload},
		{"rate limited", http.StatusTooManyRequests, ErrorKindRateLimited},
		{"upstream", http.StatusBadGateway, ErrorKindUpstream},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport := newCaptureTransport()
			transport.setJSONResponse("/v1/text_to_video", tc.status, map[string]any{"error": "nope"})
			adapter := newTestRunway(transport)

			_, err := adapter.Submit(context.Background(), SubmitRequest{
				Prompt: "clip", DurationSeconds: 5, AspectRatio: "16:9", APIKey: "key",
			})
			var provErr *Error
			if !errors.As(err, &provErr) {
				t.Fatalf("expected *video.Error, got %T %v", err, err)
			}
			if provErr.Kind != tc.kind {
				t.Fatalf("Kind = %q, want %q", provErr.Kind, tc.kind)
			}
			if provErr.Message != "nope" {
				t.Fatalf("Message = %q, want vendor detail", provErr.Message)
			}
		})
	}
}

func TestRunwayPollNormalizesStatuses(t *testing.T) {
	cases := []struct {
		vendor string
		want   domain.RenderStatus
	}{
		{"PENDING", domain.RenderStatusQueued},
		{"THROTTLED", domain.RenderStatusQueued},
		{"RUNNING", domain.RenderStatusProcessing},
		{"SUCCEEDED", domain.RenderStatusCompleted},
		{"FAILED", domain.RenderStatusFailed},
		{"SOMETHING_NEW", domain.RenderStatusProcessing},
	}
	for _, tc := range cases {
		t.Run(tc.vendor, func(t *testing.T) {
			transport := newCaptureTransport()
			transport.setJSONResponse("/v1/tasks/task-9", http.StatusOK, map[string]any{
				"id":       "task-9",
				"status":   tc.vendor,
				"progress": 0.4,
				"output":   []string{"https://cdn.runway.test/out.mp4"},
				"failure":  "boom",
			})
			adapter := newTestRunway(transport)

			result, err := adapter.Poll(context.Background(), "task-9", "key")
			if err != nil {
				t.Fatalf("Poll: %v", err)
			}
			if result.Status != tc.want {
				t.Fatalf("Status = %q, want %q", result.Status, tc.want)
			}
			if result.ProviderStatus != tc.vendor {
				t.Fatalf("ProviderStatus = %q, want raw vendor status", result.ProviderStatus)
			}
		})
	}
}

func TestRunwayPollCarriesOutputAndFailure(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSONResponse("/v1/tasks/ok", http.StatusOK, map[string]any{
		"status": "SUCCEEDED",
		"output": []string{"https://cdn.runway.test/out.mp4", "https://cdn.runway.test/thumb.jpg"},
	})
	transport.setJSONResponse("/v1/tasks/bad", http.StatusOK, map[string]any{
		"status":  "FAILED",
		"failure": "content policy",
	})
	adapter := newTestRunway(transport)

	ok, err := adapter.Poll(context.Background(), "ok", "key")
	if err != nil {
		t.Fatalf("Poll ok: %v", err)
	}
	if ok.OutputURL != "https://cdn.runway.test/out.mp4" {
		t.Fatalf("OutputURL = %q", ok.OutputURL)
	}
	if ok.ThumbnailURL != "https://cdn.runway.test/thumb.jpg" {
		t.Fatalf("ThumbnailURL = %q", ok.ThumbnailURL)
	}
	if ok.Progress != 100 {
		t.Fatalf("Progress = %d, want 100", ok.Progress)
	}

	bad, err := adapter.Poll(context.Background(), "bad", "key")
	if err != nil {
		t.Fatalf("Poll bad: %v", err)
	}
	if bad.ErrorMessage != "content policy" {
		t.Fatalf("ErrorMessage = %q", bad.ErrorMessage)
	}
}

func TestSnapDuration(t *testing.T) {
	cases := []struct {
		requested, want int
	}{
		{1, 5}, {5, 5}, {7, 5}, {8, 10}, {10, 10}, {60, 10},
	}
	for _, tc := range cases {
		if got := snapDuration(tc.requested, runwayDurations); got != tc.want {
			t.Fatalf("snapDuration(%d) = %d, want %d", tc.requested, got, tc.want)
		}
	}
}
