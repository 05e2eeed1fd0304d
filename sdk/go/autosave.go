package taskdesksdk

import (
	"context"

	"taskdesk/internal/config"
	"taskdesk/internal/engine/autosave"
)

// DraftAutosaver queues completion and proposal draft edits and writes them
// to the server in the background. Edits for the same draft are coalesced so
// rapid typing produces one save, and failed saves stay queued so the caller
// can show an unsaved-changes indicator via Unsaved.
type DraftAutosaver struct {
	client *Client
	queue  *autosave.Queue
}

func NewDraftAutosaver(c *Client, cfg config.AutosaveConfig) *DraftAutosaver {
	return &DraftAutosaver{client: c, queue: autosave.New(cfg)}
}

// OnError registers a callback fired when a save exhausts its retries. The
// edit stays queued either way.
func (a *DraftAutosaver) OnError(fn func(key string, err error)) {
	a.queue.OnError = fn
}

// EditCompletion queues the latest state of a completion draft.
func (a *DraftAutosaver) EditCompletion(draft CompletionDraft) {
	a.queue.Enqueue("completion:"+draft.AssignmentID, func(ctx context.Context) error {
		_, err := a.client.SaveCompletionDraft(ctx, draft)
		return err
	})
}

// EditProposal queues the latest state of a proposal draft. Drafts without
// an ID are keyed by title so consecutive edits of a new draft coalesce.
func (a *DraftAutosaver) EditProposal(p Proposal, departmentIDs []string) {
	key := "proposal:" + p.ID
	if p.ID == "" {
		key = "proposal:new:" + p.Title
	}
	a.queue.Enqueue(key, func(ctx context.Context) error {
		_, err := a.client.SaveProposalDraft(ctx, p, departmentIDs)
		return err
	})
}

// Unsaved reports how many drafts still have edits not yet on the server.
func (a *DraftAutosaver) Unsaved() int {
	return a.queue.Pending()
}

// Run drains the queue with retry and backoff until ctx is canceled.
// Call it once, in its own goroutine.
func (a *DraftAutosaver) Run(ctx context.Context) {
	a.queue.Run(ctx)
}

// Flush writes everything queued right now, without retries. Use it before
// submit so the submitted draft is the one the user last saw.
func (a *DraftAutosaver) Flush(ctx context.Context) error {
	return a.queue.Flush(ctx)
}
