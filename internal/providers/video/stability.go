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

const stabilityPromptLimit = 2048

var stabilityDurations = []int{4, 8}

// stabilityResolutions maps canonical aspect tokens to the resolution strings
// the generation endpoint expects.
var stabilityResolutions = map[string]string{
	"16:9": "1024x576",
	"9:16": "576x1024",
	"1:1":  "768x768",
}

// Stability drives the Stability video API. Unlike Runway, a finished
// generation is an authenticated binary payload: the result endpoint answers
// 202 while in progress and 200 with the MP4 bytes when done, so the adapter
// also implements Downloader and the dispatch layer persists the file before
// the job goes COMPLETED.
type Stability struct {
	baseURL    string
	httpClient *http.Client
	logger     infra.Logger
}

// StabilityOptions configures the adapter.
type StabilityOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     infra.Logger
}

// NewStability constructs the adapter with sane defaults.
func NewStability(opts StabilityOptions) *Stability {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.stability.ai/v2beta"
	}
	return &Stability{baseURL: baseURL, httpClient: httpClient, logger: opts.Logger}
}

// Name fulfils the Adapter interface.
func (s *Stability) Name() string { return "stability" }

type stabilitySubmitPayload struct {
	Prompt     string `json:"prompt"`
	Duration   int    `json:"duration"`
	Resolution string `json:"resolution"`
	Model      string `json:"model,omitempty"`
}

type stabilitySubmitResponse struct {
	ID string `json:"id"`
}

// Submit starts a generation and returns its id. The API begins work
// immediately, so the normalized status is PROCESSING.
func (s *Stability) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if len(prompt) > stabilityPromptLimit {
		s.logger.Warn().
			Str("event", "provider_submit").
			Str("provider", s.Name()).
			Int("prompt_length", len(prompt)).
			Int("limit", stabilityPromptLimit).
			Msg("prompt truncated to provider limit")
		prompt = prompt[:stabilityPromptLimit]
	}

	resolution, ok := stabilityResolutions[req.AspectRatio]
	if !ok {
		s.logger.Warn().
			Str("provider", s.Name()).
			Str("aspect_ratio", req.AspectRatio).
			Msg("unrecognized aspect ratio, defaulting to 1024x576")
		resolution = stabilityResolutions["16:9"]
	}

	payload := stabilitySubmitPayload{
		Prompt:     prompt,
		Duration:   snapDuration(req.DurationSeconds, stabilityDurations),
		Resolution: resolution,
		Model:      strings.TrimSpace(req.Model),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Provider: s.Name(), Kind: ErrorKindPayload, Message: fmt.Sprintf("encode request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/video/generate", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Provider: s.Name(), Kind: ErrorKindPayload, Message: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Provider: s.Name(), Kind: ErrorKindUpstream, Message: fmt.Sprintf("http request: %v", err)}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Provider: s.Name(), Kind: ErrorKindUpstream, Message: fmt.Sprintf("read response: %v", err)}
	}
	if resp.StatusCode >= 300 {
		return nil, classifyStatus(s.Name(), resp.StatusCode, errorDetail(raw))
	}

	var decoded stabilitySubmitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &Error{Provider: s.Name(), Kind: ErrorKindUpstream, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if decoded.ID == "" {
		return nil, &Error{Provider: s.Name(), Kind: ErrorKindUpstream, Message: "empty generation id"}
	}

	s.logger.Info().
		Str("event", "provider_submit").
		Str("provider", s.Name()).
		Str("provider_job_id", decoded.ID).
		Int("duration", payload.Duration).
		Str("resolution", resolution).
		Msg("generation submitted")

	return &SubmitResult{
		ProviderJobID:  decoded.ID,
		Status:         domain.RenderStatusProcessing,
		ProviderStatus: "in-progress",
	}, nil
}

// Poll checks the result endpoint. 202 means still generating; 200 means the
// MP4 is ready for an authenticated download.
func (s *Stability) Poll(ctx context.Context, providerJobID, apiKey string) (*PollResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.resultURL(providerJobID), nil)
	if err != nil {
		return nil, &Error{Provider: s.Name(), Kind: ErrorKindPayload, Message: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Provider: s.Name(), Kind: ErrorKindUpstream, Message: fmt.Sprintf("http request: %v", err)}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Provider: s.Name(), Kind: ErrorKindUpstream, Message: fmt.Sprintf("read response: %v", err)}
	}

	result := &PollResult{}
	switch {
	case resp.StatusCode == http.StatusAccepted:
		result.Status = domain.RenderStatusProcessing
		result.ProviderStatus = "in-progress"
	case resp.StatusCode == http.StatusOK:
		result.Status = domain.RenderStatusCompleted
		result.ProviderStatus = "complete"
		result.Progress = 100
	default:
		return nil, classifyStatus(s.Name(), resp.StatusCode, errorDetail(raw))
	}

	s.logger.Info().
		Str("event", "provider_poll").
		Str("provider", s.Name()).
		Str("provider_job_id", providerJobID).
		Str("provider_status", result.ProviderStatus).
		Str("status", string(result.Status)).
		Msg("generation polled")

	return result, nil
}

// Download fetches the finished MP4. Only valid once Poll reports COMPLETED.
func (s *Stability) Download(ctx context.Context, providerJobID, apiKey string) ([]byte, string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.resultURL(providerJobID), nil)
	if err != nil {
		return nil, "", &Error{Provider: s.Name(), Kind: ErrorKindPayload, Message: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Accept", "video/mp4")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", &Error{Provider: s.Name(), Kind: ErrorKindUpstream, Message: fmt.Sprintf("http request: %v", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, "", classifyStatus(s.Name(), resp.StatusCode, errorDetail(raw))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &Error{Provider: s.Name(), Kind: ErrorKindUpstream, Message: fmt.Sprintf("read payload: %v", err)}
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	return data, contentType, nil
}

func (s *Stability) resultURL(providerJobID string) string {
	return s.baseURL + "/video/result/" + providerJobID
}

var (
	_ Adapter    = (*Stability)(nil)
	_ Downloader = (*Stability)(nil)
)
