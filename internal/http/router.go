package httpapi

import (
	stdhttp "net/http"
	"time"

	"renderhub/internal/http/handlers"
	"renderhub/internal/infra"
	appmw "renderhub/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *handlers.App, cfg *infra.Config) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Logger)
	r.Use(appmw.CORS(cfg.AllowedOrigins))
	if cfg.RateLimitPerMinute > 0 {
		r.Use(appmw.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	}

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/renders", func(r chi.Router) {
		r.Post("/", app.CreateRender)
		r.Post("/batch", app.BatchRenders)
		r.Get("/{job_id}", app.GetRender)
		r.Post("/{job_id}/retry", app.RetryRender)
		r.Post("/{job_id}/reset", app.ResetRender)
		r.Get("/{job_id}/download", app.DownloadRender)
	})

	r.Post("/v1/providers/recommend", app.Recommend)

	r.Route("/v1/workspaces/{workspace_id}", func(r chi.Router) {
		r.Get("/budget", app.WorkspaceBudget)
		r.Post("/credentials", app.ConnectCredential)
	})

	return r
}
