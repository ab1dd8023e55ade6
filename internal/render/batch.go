package render

import (
	"context"
	"sync"

	"renderhub/internal/budget"
	"renderhub/internal/domain"
	"renderhub/internal/infra"
)

// BatchItem is one render within a batch submission.
type BatchItem struct {
	ContentID string
	VersionID string
	Provider  string
	Spec      domain.RenderSpec
}

// BatchResult reports the outcome of one item. Items fail independently; a
// blocked or invalid render never aborts its siblings.
type BatchResult struct {
	Index    int
	Job      *domain.RenderJob
	Decision budget.Decision
	Err      error
}

// Batcher admits batch renders in fixed submission windows so a large batch
// cannot flood the provider APIs with simultaneous submits.
type Batcher struct {
	manager    *Manager
	windowSize int
	logger     infra.Logger
}

func NewBatcher(manager *Manager, windowSize int, logger infra.Logger) *Batcher {
	if windowSize < 1 {
		windowSize = 1
	}
	return &Batcher{manager: manager, windowSize: windowSize, logger: logger}
}

// Submit proposes every item, at most windowSize submissions in flight at a
// time. All submissions of a window complete before the next window starts;
// the gate is on submission, not on render completion. Results come back in
// item order.
func (b *Batcher) Submit(ctx context.Context, workspaceID string, items []BatchItem) []BatchResult {
	results := make([]BatchResult, len(items))
	for start := 0; start < len(items); start += b.windowSize {
		end := start + b.windowSize
		if end > len(items) {
			end = len(items)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				item := items[idx]
				job, decision, err := b.manager.Propose(ctx, ProposeRequest{
					WorkspaceID: workspaceID,
					ContentID:   item.ContentID,
					VersionID:   item.VersionID,
					Provider:    item.Provider,
					Spec:        item.Spec,
				})
				results[idx] = BatchResult{Index: idx, Job: job, Decision: decision, Err: err}
			}(i)
		}
		wg.Wait()
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	b.logger.Info().
		Str("event", "batch_submit").
		Str("workspace_id", workspaceID).
		Int("total", len(items)).
		Int("failed", failed).
		Msg("batch submission finished")
	return results
}
