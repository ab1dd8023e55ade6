package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"renderhub/internal/domain"
	"renderhub/internal/infra"
)

const (
	runwayPromptLimit  = 1000
	runwayDefaultModel = "gen3a_turbo"
	runwayAPIVersion   = "2024-11-06"
)

// runwayDurations is the discrete set of clip lengths the tasks API accepts.
var runwayDurations = []int{5, 10}

// runwayRatios maps canonical aspect tokens to Runway's native resolution
// vocabulary.
var runwayRatios = map[string]string{
	"16:9": "1280:720",
	"9:16": "720:1280",
	"1:1":  "960:960",
}

// Runway drives the Runway asynchronous tasks API. Submission returns a task
// id immediately; results arrive through polling and are public URLs.
type Runway struct {
	baseURL    string
	httpClient *http.Client
	logger     infra.Logger
}

// RunwayOptions configures the adapter.
type RunwayOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     infra.Logger
}

// NewRunway constructs the adapter with sane defaults.
func NewRunway(opts RunwayOptions) *Runway {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.dev.runwayml.com/v1"
	}
	return &Runway{baseURL: baseURL, httpClient: httpClient, logger: opts.Logger}
}

// Name fulfils the Adapter interface.
func (r *Runway) Name() string { return "runway" }

type runwaySubmitPayload struct {
	Model      string `json:"model"`
	PromptText string `json:"promptText"`
	Duration   int    `json:"duration"`
	Ratio      string `json:"ratio"`
}

type runwaySubmitResponse struct {
	ID string `json:"id"`
}

type runwayTaskResponse struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Progress float64  `json:"progress"`
	Output   []string `json:"output"`
	Failure  string   `json:"failure"`
}

// Submit creates a text-to-video task. Overlong prompts are truncated to the
// documented limit, durations snap to the allowed set and unrecognized aspect
// tokens fall back to widescreen with a warning rather than an error.
func (r *Runway) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if len(prompt) > runwayPromptLimit {
		r.logger.Warn().
			Str("event", "provider_submit").
			Str("provider", r.Name()).
			Int("prompt_length", len(prompt)).
			Int("limit", runwayPromptLimit).
			Msg("prompt truncated to provider limit")
		prompt = prompt[:runwayPromptLimit]
	}

	ratio, ok := runwayRatios[req.AspectRatio]
	if !ok {
		r.logger.Warn().
			Str("provider", r.Name()).
			Str("aspect_ratio", req.AspectRatio).
			Msg("unrecognized aspect ratio, defaulting to 1280:720")
		ratio = runwayRatios["16:9"]
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = runwayDefaultModel
	}

	payload := runwaySubmitPayload{
		Model:      model,
		PromptText: prompt,
		Duration:   snapDuration(req.DurationSeconds, runwayDurations),
		Ratio:      ratio,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Provider: r.Name(), Kind: ErrorKindPayload, Message: fmt.Sprintf("encode request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/text_to_video", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Provider: r.Name(), Kind: ErrorKindPayload, Message: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	httpReq.Header.Set("X-Runway-Version", runwayAPIVersion)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Provider: r.Name(), Kind: ErrorKindUpstream, Message: fmt.Sprintf("http request: %v", err)}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Provider: r.Name(), Kind: ErrorKindUpstream, Message: fmt.Sprintf("read response: %v", err)}
	}
	if resp.StatusCode >= 300 {
		return nil, classifyStatus(r.Name(), resp.StatusCode, errorDetail(raw))
	}

	var decoded runwaySubmitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &Error{Provider: r.Name(), Kind: ErrorKindUpstream, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if decoded.ID == "" {
		return nil, &Error{Provider: r.Name(), Kind: ErrorKindUpstream, Message: "empty task id"}
	}

	r.logger.Info().
		Str("event", "provider_submit").
		Str("provider", r.Name()).
		Str("provider_job_id", decoded.ID).
		Int("duration", payload.Duration).
		Str("ratio", ratio).
		Msg("task submitted")

	return &SubmitResult{
		ProviderJobID:  decoded.ID,
		Status:         domain.RenderStatusQueued,
		ProviderStatus: "PENDING",
	}, nil
}

// Poll reads the task state and normalizes Runway's vocabulary into the four
// canonical states.
func (r *Runway) Poll(ctx context.Context, providerJobID, apiKey string) (*PollResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/tasks/"+providerJobID, nil)
	if err != nil {
		return nil, &Error{Provider: r.Name(), Kind: ErrorKindPayload, Message: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("X-Runway-Version", runwayAPIVersion)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Provider: r.Name(), Kind: ErrorKindUpstream, Message: fmt.Sprintf("http request: %v", err)}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Provider: r.Name(), Kind: ErrorKindUpstream, Message: fmt.Sprintf("read response: %v", err)}
	}
	if resp.StatusCode >= 300 {
		return nil, classifyStatus(r.Name(), resp.StatusCode, errorDetail(raw))
	}

	var task runwayTaskResponse
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, &Error{Provider: r.Name(), Kind: ErrorKindUpstream, Message: fmt.Sprintf("decode response: %v", err)}
	}

	result := &PollResult{ProviderStatus: task.Status}
	switch strings.ToUpper(task.Status) {
	case "PENDING", "THROTTLED":
		result.Status = domain.RenderStatusQueued
	case "RUNNING":
		result.Status = domain.RenderStatusProcessing
		result.Progress = int(task.Progress * 100)
	case "SUCCEEDED":
		result.Status = domain.RenderStatusCompleted
		result.Progress = 100
		if len(task.Output) > 0 {
			result.OutputURL = task.Output[0]
		}
		if len(task.Output) > 1 {
			result.ThumbnailURL = task.Output[1]
		}
	case "FAILED":
		result.Status = domain.RenderStatusFailed
		result.ErrorMessage = task.Failure
	default:
		// Unknown vendor state: keep the job processing and let the next poll
		// or the stuck threshold decide.
		result.Status = domain.RenderStatusProcessing
	}

	r.logger.Info().
		Str("event", "provider_poll").
		Str("provider", r.Name()).
		Str("provider_job_id", providerJobID).
		Str("provider_status", task.Status).
		Str("status", string(result.Status)).
		Msg("task polled")

	return result, nil
}

// snapDuration picks the closest allowed clip length.
func snapDuration(requested int, allowed []int) int {
	best := allowed[0]
	for _, d := range allowed[1:] {
		if abs(requested-d) < abs(requested-best) {
			best = d
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// errorDetail extracts a vendor error message when the body is JSON, falling
// back to the raw text.
func errorDetail(raw []byte) string {
	var detail struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &detail); err == nil {
		if detail.Error != "" {
			return detail.Error
		}
		if detail.Message != "" {
			return detail.Message
		}
	}
	return strings.TrimSpace(string(raw))
}

var _ Adapter = (*Runway)(nil)
