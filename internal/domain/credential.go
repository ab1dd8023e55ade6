package domain

// CredentialSource identifies which tier of the lookup chain supplied a key.
type CredentialSource string

const (
	CredentialSourceUser     CredentialSource = "user"
	CredentialSourcePlatform CredentialSource = "platform"
)

// ResolvedCredential is a transient value object. It is recomputed per call and
// never persisted.
type ResolvedCredential struct {
	APIKey string
	Source CredentialSource
}

// WorkspaceCredential is the stored, encrypted form of a workspace's own
// provider key.
type WorkspaceCredential struct {
	WorkspaceID string
	Provider    string
	Ciphertext  []byte
	Status      string
}

// CredentialStatusConnected is the only connection status under which a
// workspace key participates in resolution.
const CredentialStatusConnected = "connected"
