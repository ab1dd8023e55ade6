package domain

import "time"

// LedgerStatus enumerates outcomes recorded against a ledger entry.
type LedgerStatus string

const (
	LedgerStatusSubmitted LedgerStatus = "submitted"
	LedgerStatusCompleted LedgerStatus = "completed"
	LedgerStatusFailed    LedgerStatus = "failed"
	// LedgerStatusBlocked records a submission the budget gate rejected. Blocked
	// entries are excluded from spend and attempt aggregation.
	LedgerStatusBlocked LedgerStatus = "blocked"
)

// RenderLedgerEntry is the immutable accounting record of one submission
// attempt. Entries are append-only: budget aggregation reads past entries and
// never rewrites them; only the outcome fields of a single entry are filled in
// once the provider reports a result.
type RenderLedgerEntry struct {
	ID               string
	WorkspaceID      string
	Provider         string
	DurationSeconds  int
	AspectRatio      string
	PromptLength     int
	EstimatedCostUsd float64
	ActualCostUsd    *float64
	Status           LedgerStatus
	ErrorMessage     string
	SubmittedAt      time.Time
	CompletedAt      *time.Time
}
