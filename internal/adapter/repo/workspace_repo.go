package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"renderhub/internal/domain"
)

// WorkspaceRepositoryPG implements domain.WorkspaceRepository.
type WorkspaceRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewWorkspaceRepository creates a workspace settings repository backed by PostgreSQL.
func NewWorkspaceRepository(pool *pgxpool.Pool) *WorkspaceRepositoryPG {
	return &WorkspaceRepositoryPG{pool: pool}
}

// BudgetSettings returns the workspace's budget override row, or nil when the
// workspace has none and the defaults apply.
func (r *WorkspaceRepositoryPG) BudgetSettings(ctx context.Context, workspaceID string) (*domain.WorkspaceBudgetSettings, error) {
	query := `
SELECT workspace_id, monthly_budget_usd, daily_attempts_max
FROM workspace_budget_settings
WHERE workspace_id = $1;
`
	row := r.pool.QueryRow(ctx, query, workspaceID)
	var settings domain.WorkspaceBudgetSettings
	if err := row.Scan(&settings.WorkspaceID, &settings.MonthlyBudgetUsd, &settings.DailyAttemptsMax); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &settings, nil
}
