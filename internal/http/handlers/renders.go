package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"renderhub/internal/domain"
	"renderhub/internal/render"
)

type renderSpecPayload struct {
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"duration_seconds"`
	AspectRatio     string `json:"aspect_ratio"`
	Model           string `json:"model,omitempty"`
	SceneNumber     int    `json:"scene_number,omitempty"`
}

func (p renderSpecPayload) toSpec() domain.RenderSpec {
	return domain.RenderSpec{
		Prompt:          p.Prompt,
		DurationSeconds: p.DurationSeconds,
		AspectRatio:     p.AspectRatio,
		Model:           p.Model,
		SceneNumber:     p.SceneNumber,
	}
}

type createRenderRequest struct {
	WorkspaceID string            `json:"workspace_id"`
	ContentID   string            `json:"content_id"`
	VersionID   string            `json:"version_id"`
	Provider    string            `json:"provider"`
	Spec        renderSpecPayload `json:"spec"`
}

type jobResponse struct {
	ID              string     `json:"id"`
	WorkspaceID     string     `json:"workspace_id"`
	ContentID       string     `json:"content_id,omitempty"`
	VersionID       string     `json:"version_id,omitempty"`
	Status          string     `json:"status"`
	Provider        string     `json:"provider"`
	Progress        int        `json:"progress"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	ErrorCode       string     `json:"error_code,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ProviderJobID   string     `json:"provider_job_id,omitempty"`
	ProviderStatus  string     `json:"provider_status,omitempty"`
	EstimatedCost   float64    `json:"estimated_cost_usd"`
	ActualCost      *float64   `json:"actual_cost_usd,omitempty"`
	RetryCount      int        `json:"retry_count"`
	OutputURL       string     `json:"output_url,omitempty"`
	ThumbnailURL    string     `json:"thumbnail_url,omitempty"`
	Placeholder     bool       `json:"placeholder,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func toJobResponse(job *domain.RenderJob) jobResponse {
	return jobResponse{
		ID:              job.ID,
		WorkspaceID:     job.WorkspaceID,
		ContentID:       job.ContentID,
		VersionID:       job.VersionID,
		Status:          string(job.Status),
		Provider:        job.Provider,
		Progress:        job.Progress,
		ProgressMessage: job.ProgressMessage,
		ErrorCode:       job.ErrorCode,
		ErrorMessage:    job.ErrorMessage,
		ProviderJobID:   job.ProviderJobID,
		ProviderStatus:  job.ProviderStatus,
		EstimatedCost:   job.EstimatedCost,
		ActualCost:      job.ActualCost,
		RetryCount:      job.RetryCount,
		OutputURL:       job.OutputURL,
		ThumbnailURL:    job.ThumbnailURL,
		Placeholder:     job.Placeholder,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
	}
}

// CreateRender proposes one render job.
func (a *App) CreateRender(w http.ResponseWriter, r *http.Request) {
	var req createRenderRequest
	if err := decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.WorkspaceID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "workspace_id required")
		return
	}
	job, decision, err := a.Manager.Propose(r.Context(), render.ProposeRequest{
		WorkspaceID: req.WorkspaceID,
		ContentID:   req.ContentID,
		VersionID:   req.VersionID,
		Provider:    req.Provider,
		Spec:        req.Spec.toSpec(),
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{
		"job":    toJobResponse(job),
		"budget": decision,
	})
}

type batchRenderRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Items       []struct {
		ContentID string            `json:"content_id"`
		VersionID string            `json:"version_id"`
		Provider  string            `json:"provider"`
		Spec      renderSpecPayload `json:"spec"`
	} `json:"items"`
}

// BatchRenders proposes a batch of renders, admitted in submission windows.
func (a *App) BatchRenders(w http.ResponseWriter, r *http.Request) {
	var req batchRenderRequest
	if err := decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.WorkspaceID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "workspace_id required")
		return
	}
	if len(req.Items) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "items required")
		return
	}
	items := make([]render.BatchItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = render.BatchItem{
			ContentID: item.ContentID,
			VersionID: item.VersionID,
			Provider:  item.Provider,
			Spec:      item.Spec.toSpec(),
		}
	}
	results := a.Batcher.Submit(r.Context(), req.WorkspaceID, items)

	out := make([]map[string]any, len(results))
	for i, res := range results {
		entry := map[string]any{"index": res.Index}
		if res.Err != nil {
			code, ok := render.DescribeError(res.Err)
			if !ok {
				code = "internal"
			}
			entry["error"] = map[string]string{"code": code, "message": res.Err.Error()}
		} else {
			entry["job"] = toJobResponse(res.Job)
		}
		out[i] = entry
	}
	a.json(w, http.StatusAccepted, map[string]any{"results": out})
}

// GetRender returns the job, applying stuck-job recovery on read.
func (a *App) GetRender(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.Manager.GetJob(r.Context(), jobID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

// RetryRender re-queues a failed job through the budget gate.
func (a *App) RetryRender(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.Manager.Retry(r.Context(), jobID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusAccepted, toJobResponse(job))
}

// ResetRender force-resets a PROCESSING or FAILED job.
func (a *App) ResetRender(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.Manager.ForceReset(r.Context(), jobID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusAccepted, toJobResponse(job))
}

// DownloadRender streams a locally stored output asset.
func (a *App) DownloadRender(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Manager.GetJob(r.Context(), jobID)
	if err != nil {
		a.fail(w, err)
		return
	}
	if !job.HasOutput() || job.Placeholder {
		a.error(w, http.StatusNotFound, "not_found", "no downloadable output")
		return
	}
	data, err := a.Store.Read(r.Context(), job.OutputURL)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "output not stored locally")
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
