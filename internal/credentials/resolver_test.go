package credentials

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"renderhub/internal/domain"
	"renderhub/internal/infra/secretbox"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

type stubCredentialRepo struct {
	workspaceCred *domain.WorkspaceCredential
	workspaceErr  error
	platformKey   string
	platformErr   error
}

func (s *stubCredentialRepo) WorkspaceKey(ctx context.Context, workspaceID, provider string) (*domain.WorkspaceCredential, error) {
	if s.workspaceErr != nil {
		return nil, s.workspaceErr
	}
	if s.workspaceCred == nil {
		return nil, domain.ErrNotFound
	}
	return s.workspaceCred, nil
}

func (s *stubCredentialRepo) UpsertWorkspaceKey(ctx context.Context, cred *domain.WorkspaceCredential) error {
	return nil
}

func (s *stubCredentialRepo) PlatformKey(ctx context.Context, provider string) (string, error) {
	if s.platformErr != nil {
		return "", s.platformErr
	}
	if s.platformKey == "" {
		return "", domain.ErrNotFound
	}
	return s.platformKey, nil
}

func (s *stubCredentialRepo) UpsertPlatformKey(ctx context.Context, provider, key string) error {
	return nil
}

func testBox(t *testing.T) *secretbox.Box {
	t.Helper()
	box, err := secretbox.New(testKey)
	if err != nil {
		t.Fatalf("secretbox.New: %v", err)
	}
	return box
}

func sealed(t *testing.T, box *secretbox.Box, plaintext string) []byte {
	t.Helper()
	blob, err := box.Seal([]byte(plaintext))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return blob
}

func TestResolvePrefersConnectedWorkspaceKey(t *testing.T) {
	box := testBox(t)
	repo := &stubCredentialRepo{
		workspaceCred: &domain.WorkspaceCredential{
			WorkspaceID: "ws-1",
			Provider:    "runway",
			Ciphertext:  sealed(t, box, "user-key"),
			Status:      domain.CredentialStatusConnected,
		},
		platformKey: "platform-key",
	}
	resolver := NewResolver(repo, box, zerolog.New(io.Discard))

	cred, err := resolver.Resolve(context.Background(), "runway", "ws-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cred == nil {
		t.Fatal("expected credential")
	}
	if cred.APIKey != "user-key" {
		t.Fatalf("APIKey = %q, want user-key", cred.APIKey)
	}
	if cred.Source != domain.CredentialSourceUser {
		t.Fatalf("Source = %q, want user", cred.Source)
	}
}

func TestResolveSkipsDisconnectedWorkspaceKey(t *testing.T) {
	box := testBox(t)
	repo := &stubCredentialRepo{
		workspaceCred: &domain.WorkspaceCredential{
			WorkspaceID: "ws-1",
			Provider:    "runway",
			Ciphertext:  sealed(t, box, "user-key"),
			Status:      "revoked",
		},
		platformKey: "platform-key",
	}
	resolver := NewResolver(repo, box, zerolog.New(io.Discard))

	cred, err := resolver.Resolve(context.Background(), "runway", "ws-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cred == nil || cred.Source != domain.CredentialSourcePlatform {
		t.Fatalf("expected platform credential, got %+v", cred)
	}
	if cred.APIKey != "platform-key" {
		t.Fatalf("APIKey = %q, want platform-key", cred.APIKey)
	}
}

func TestResolveDecryptFailureFallsThrough(t *testing.T) {
	box := testBox(t)
	repo := &stubCredentialRepo{
		workspaceCred: &domain.WorkspaceCredential{
			WorkspaceID: "ws-1",
			Provider:    "runway",
			Ciphertext:  []byte("garbage"),
			Status:      domain.CredentialStatusConnected,
		},
		platformKey: "platform-key",
	}
	resolver := NewResolver(repo, box, zerolog.New(io.Discard))

	cred, err := resolver.Resolve(context.Background(), "runway", "ws-1")
	if err != nil {
		t.Fatalf("Resolve should not fail on corrupt ciphertext: %v", err)
	}
	if cred == nil || cred.Source != domain.CredentialSourcePlatform {
		t.Fatalf("expected platform fallback, got %+v", cred)
	}
}

func TestResolveReturnsNilWhenNoKeyExists(t *testing.T) {
	resolver := NewResolver(&stubCredentialRepo{}, testBox(t), zerolog.New(io.Discard))

	cred, err := resolver.Resolve(context.Background(), "runway", "ws-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cred != nil {
		t.Fatalf("expected nil credential, got %+v", cred)
	}
}
