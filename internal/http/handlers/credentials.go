package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"renderhub/internal/domain"
)

type connectCredentialRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
}

// ConnectCredential stores a workspace's own provider key, encrypted at rest.
// The key is write-only: it is never returned by any endpoint.
func (a *App) ConnectCredential(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspace_id")
	if workspaceID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "workspace_id required")
		return
	}
	var req connectCredentialRequest
	if err := decode(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	provider := strings.TrimSpace(strings.ToLower(req.Provider))
	if provider == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "provider required")
		return
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "api_key required")
		return
	}

	ciphertext, err := a.Box.Seal([]byte(key))
	if err != nil {
		a.Logger.Error().Err(err).Str("workspace_id", workspaceID).Msg("credential encryption failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store credential")
		return
	}
	cred := &domain.WorkspaceCredential{
		WorkspaceID: workspaceID,
		Provider:    provider,
		Ciphertext:  ciphertext,
		Status:      domain.CredentialStatusConnected,
	}
	if err := a.Credentials.UpsertWorkspaceKey(r.Context(), cred); err != nil {
		a.Logger.Error().Err(err).Str("workspace_id", workspaceID).Msg("credential upsert failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store credential")
		return
	}
	a.json(w, http.StatusOK, map[string]string{
		"workspace_id": workspaceID,
		"provider":     provider,
		"status":       domain.CredentialStatusConnected,
	})
}
