package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"renderhub/internal/domain"
)

// CredentialRepositoryPG implements domain.CredentialRepository. Workspace keys
// are stored encrypted; platform fallback keys are deployment secrets held in
// their own table keyed by provider name.
type CredentialRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository creates a credential repository backed by PostgreSQL.
func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepositoryPG {
	return &CredentialRepositoryPG{pool: pool}
}

// WorkspaceKey fetches a workspace's encrypted provider key.
func (r *CredentialRepositoryPG) WorkspaceKey(ctx context.Context, workspaceID, provider string) (*domain.WorkspaceCredential, error) {
	query := `
SELECT workspace_id, provider, ciphertext, status
FROM workspace_credentials
WHERE workspace_id = $1 AND provider = $2;
`
	row := r.pool.QueryRow(ctx, query, workspaceID, provider)
	var cred domain.WorkspaceCredential
	if err := row.Scan(&cred.WorkspaceID, &cred.Provider, &cred.Ciphertext, &cred.Status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &cred, nil
}

// UpsertWorkspaceKey stores or replaces a workspace's encrypted provider key.
func (r *CredentialRepositoryPG) UpsertWorkspaceKey(ctx context.Context, cred *domain.WorkspaceCredential) error {
	query := `
INSERT INTO workspace_credentials (workspace_id, provider, ciphertext, status, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (workspace_id, provider)
DO UPDATE SET ciphertext = EXCLUDED.ciphertext, status = EXCLUDED.status, updated_at = NOW();
`
	_, err := r.pool.Exec(ctx, query, cred.WorkspaceID, cred.Provider, cred.Ciphertext, cred.Status)
	return err
}

// PlatformKey returns the shared fallback key for a provider.
func (r *CredentialRepositoryPG) PlatformKey(ctx context.Context, provider string) (string, error) {
	query := `
SELECT api_key
FROM platform_credentials
WHERE provider = $1;
`
	row := r.pool.QueryRow(ctx, query, provider)
	var key string
	if err := row.Scan(&key); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return strings.TrimSpace(key), nil
}

// UpsertPlatformKey stores or replaces the platform fallback key for a provider.
func (r *CredentialRepositoryPG) UpsertPlatformKey(ctx context.Context, provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("platform api key is required")
	}
	query := `
INSERT INTO platform_credentials (provider, api_key, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (provider)
DO UPDATE SET api_key = EXCLUDED.api_key, updated_at = NOW();
`
	_, err := r.pool.Exec(ctx, query, provider, key)
	return err
}
