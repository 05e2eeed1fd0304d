// Package autosave is a save queue for draft edits. Saves are coalesced per
// key so only the latest edit for a form is written, retried with backoff
// when the store is unavailable, and kept pending so callers can surface an
// unsaved-changes indicator instead of losing edits silently.
package autosave

import (
	"context"
	"sync"
	"time"

	"taskdesk/internal/config"
)

// Saver persists one pending draft.
type Saver func(ctx context.Context) error

type Queue struct {
	MaxRetries int
	Backoff    time.Duration
	OnError    func(key string, err error)

	mu      sync.Mutex
	pending map[string]Saver
	order   []string
	wake    chan struct{}
}

func New(cfg config.AutosaveConfig) *Queue {
	backoff := time.Duration(cfg.BackoffSeconds) * time.Second
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Queue{
		MaxRetries: cfg.MaxRetries,
		Backoff:    backoff,
		pending:    map[string]Saver{},
		wake:       make(chan struct{}, 1),
	}
}

// Enqueue registers the latest save for a key, replacing any save already
// queued for it.
func (q *Queue) Enqueue(key string, save Saver) {
	q.mu.Lock()
	if _, ok := q.pending[key]; !ok {
		q.order = append(q.order, key)
	}
	q.pending[key] = save
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pending reports how many keys still have unsaved edits.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) next() (string, Saver, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return "", nil, false
	}
	key := q.order[0]
	q.order = q.order[1:]
	save := q.pending[key]
	delete(q.pending, key)
	return key, save, true
}

// attempt runs one save with retries. On exhaustion the save is re-queued
// unless a newer save for the key arrived meanwhile.
func (q *Queue) attempt(ctx context.Context, key string, save Saver) bool {
	var err error
	for try := 0; try <= q.MaxRetries; try++ {
		if try > 0 {
			select {
			case <-ctx.Done():
				q.requeue(key, save)
				return false
			case <-time.After(q.Backoff * time.Duration(try)):
			}
		}
		if err = save(ctx); err == nil {
			return true
		}
	}
	if q.OnError != nil {
		q.OnError(key, err)
	}
	q.requeue(key, save)
	return false
}

func (q *Queue) requeue(key string, save Saver) {
	q.mu.Lock()
	if _, ok := q.pending[key]; ok {
		q.mu.Unlock()
		return
	}
	q.pending[key] = save
	q.order = append(q.order, key)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue until the context is canceled.
func (q *Queue) Run(ctx context.Context) {
	for {
		key, save, ok := q.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
			}
			continue
		}
		if !q.attempt(ctx, key, save) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(q.Backoff):
			}
		}
	}
}

// Flush synchronously drains everything queued right now. Unlike Run it does
// not retry; the first failure is returned and the save stays pending.
func (q *Queue) Flush(ctx context.Context) error {
	for {
		key, save, ok := q.next()
		if !ok {
			return nil
		}
		if err := save(ctx); err != nil {
			q.requeue(key, save)
			return err
		}
	}
}
