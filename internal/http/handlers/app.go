package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"renderhub/internal/budget"
	"renderhub/internal/domain"
	"renderhub/internal/infra"
	"renderhub/internal/infra/secretbox"
	"renderhub/internal/render"
	"renderhub/internal/storage"
)

// App holds the handler dependencies.
type App struct {
	Manager     *render.Manager
	Batcher     *render.Batcher
	Gate        *budget.Gate
	Store       *storage.FileStore
	Box         *secretbox.Box
	Credentials domain.CredentialRepository
	Pool        *pgxpool.Pool
	Logger      infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": errCode, "message": message},
	})
}

// fail maps a domain error onto the HTTP taxonomy.
func (a *App) fail(w http.ResponseWriter, err error) {
	code, ok := render.DescribeError(err)
	if !ok {
		a.Logger.Error().Err(err).Msg("unhandled request error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	status := http.StatusInternalServerError
	switch code {
	case "not_found":
		status = http.StatusNotFound
	case "validation", "missing_credential", "provider_payload":
		status = http.StatusBadRequest
	case "budget_exceeded":
		status = http.StatusPaymentRequired
	case "active_job_exists", "invalid_state":
		status = http.StatusConflict
	case "provider_auth":
		status = http.StatusBadGateway
	case "provider_rate_limited", "provider_upstream":
		status = http.StatusBadGateway
	}
	a.error(w, status, code, err.Error())
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid payload")
	}
	return nil
}
