package handlers

import (
	"net/http"

	"renderhub/internal/recommend"
)

type recommendRequest struct {
	Goal            string   `json:"goal"`
	Channels        []string `json:"channels"`
	DurationSeconds int      `json:"duration_seconds"`
	QualityTier     string   `json:"quality_tier"`
	BudgetBand      string   `json:"budget_band"`
}

// Recommend ranks the provider catalog for the requested campaign context.
func (a *App) Recommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.DurationSeconds <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "duration_seconds must be positive")
		return
	}
	ranking := recommend.Score(recommend.Context{
		Goal:            req.Goal,
		Channels:        req.Channels,
		DurationSeconds: req.DurationSeconds,
		QualityTier:     recommend.QualityTier(req.QualityTier),
		BudgetBand:      req.BudgetBand,
	})
	a.json(w, http.StatusOK, ranking)
}
