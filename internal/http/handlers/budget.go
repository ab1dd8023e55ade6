package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// WorkspaceBudget returns the workspace's current budget standing: spend and
// attempts against its limits, with no proposed render in the evaluation.
func (a *App) WorkspaceBudget(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspace_id")
	if workspaceID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "workspace_id required")
		return
	}
	decision, err := a.Gate.Check(r.Context(), workspaceID, 0)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"workspace_id":   workspaceID,
		"monthly_spent":  decision.MonthlySpent,
		"monthly_limit":  decision.MonthlyLimit,
		"daily_attempts": decision.DailyAttempts,
		"daily_limit":    decision.DailyLimit,
	})
}
