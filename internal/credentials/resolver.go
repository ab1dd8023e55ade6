package credentials

import (
	"context"
	"errors"
	"strings"

	"renderhub/internal/domain"
	"renderhub/internal/infra"
	"renderhub/internal/infra/secretbox"
)

// Strategy is one tier of the credential lookup chain. A nil credential with a
// nil error means the tier has nothing to offer and the resolver moves on.
type Strategy interface {
	Resolve(ctx context.Context, provider, workspaceID string) (*domain.ResolvedCredential, error)
}

// Resolver walks an ordered list of strategies until one yields a key.
// Resolution never fails for a missing or corrupt key: the result is simply
// nil. The key itself is never logged.
type Resolver struct {
	strategies []Strategy
	logger     infra.Logger
}

// NewResolver wires the standard two-tier chain: the workspace's own encrypted
// key first, then the platform-wide fallback key.
func NewResolver(repo domain.CredentialRepository, box *secretbox.Box, logger infra.Logger) *Resolver {
	return &Resolver{
		strategies: []Strategy{
			&workspaceKeyStrategy{repo: repo, box: box, logger: logger},
			&platformKeyStrategy{repo: repo},
		},
		logger: logger,
	}
}

// NewResolverWithStrategies builds a resolver over an explicit chain. Used by
// tests and by deployments that disable one tier.
func NewResolverWithStrategies(logger infra.Logger, strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies, logger: logger}
}

// Resolve returns the first credential the chain produces, or nil when no tier
// holds a key for the provider.
func (r *Resolver) Resolve(ctx context.Context, provider, workspaceID string) (*domain.ResolvedCredential, error) {
	provider = strings.TrimSpace(provider)
	for _, s := range r.strategies {
		cred, err := s.Resolve(ctx, provider, workspaceID)
		if err != nil {
			return nil, err
		}
		if cred != nil {
			r.logger.Info().
				Str("provider", provider).
				Str("workspace_id", workspaceID).
				Str("source", string(cred.Source)).
				Msg("credential resolved")
			return cred, nil
		}
	}
	r.logger.Info().
		Str("provider", provider).
		Str("workspace_id", workspaceID).
		Msg("credential not found")
	return nil, nil
}

type workspaceKeyStrategy struct {
	repo   domain.CredentialRepository
	box    *secretbox.Box
	logger infra.Logger
}

func (s *workspaceKeyStrategy) Resolve(ctx context.Context, provider, workspaceID string) (*domain.ResolvedCredential, error) {
	if workspaceID == "" || s.box == nil {
		return nil, nil
	}
	cred, err := s.repo.WorkspaceKey(ctx, workspaceID, provider)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if cred.Status != domain.CredentialStatusConnected {
		return nil, nil
	}
	plaintext, err := s.box.Open(cred.Ciphertext)
	if err != nil {
		// A corrupt blob is treated as "no user key" so the platform tier can
		// still serve the call.
		s.logger.Warn().
			Str("provider", provider).
			Str("workspace_id", workspaceID).
			Msg("workspace credential decrypt failed, falling through")
		return nil, nil
	}
	key := strings.TrimSpace(string(plaintext))
	if key == "" {
		return nil, nil
	}
	return &domain.ResolvedCredential{APIKey: key, Source: domain.CredentialSourceUser}, nil
}

type platformKeyStrategy struct {
	repo domain.CredentialRepository
}

func (s *platformKeyStrategy) Resolve(ctx context.Context, provider, _ string) (*domain.ResolvedCredential, error) {
	key, err := s.repo.PlatformKey(ctx, provider)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if key == "" {
		return nil, nil
	}
	return &domain.ResolvedCredential{APIKey: key, Source: domain.CredentialSourcePlatform}, nil
}
