package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"taskdesk/internal/config"
	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
)

// webhookDispatcher polls the event log and POSTs new events to the
// configured hooks. Each hook keeps its own cursor so a slow endpoint
// does not hold the others back.
type webhookDispatcher struct {
	engine   engine.Engine
	webhooks []config.WebhookConfig
	client   *http.Client

	mu      sync.Mutex
	cursors map[int]int64
}

func startWebhookDispatcher(ctx context.Context, e engine.Engine) {
	if e.Config == nil {
		return
	}
	var active []config.WebhookConfig
	for _, hook := range e.Config.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if hook.URL == "" {
			continue
		}
		active = append(active, hook)
	}
	if len(active) == 0 {
		return
	}
	d := &webhookDispatcher{
		engine:   e,
		webhooks: active,
		client:   &http.Client{Timeout: 30 * time.Second},
		cursors:  make(map[int]int64),
	}
	go d.run(ctx)
}

func (d *webhookDispatcher) run(ctx context.Context) {
	// Start from the current tail so restarts do not replay history.
	if latest, err := d.engine.Repo.LatestEventID(ctx); err == nil {
		for i := range d.webhooks {
			d.cursors[i] = latest
		}
	}
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.dispatchAll(ctx)
		}
	}
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for i, hook := range d.webhooks {
		d.dispatchWebhook(ctx, i, hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.WebhookConfig) {
	d.mu.Lock()
	cursor := d.cursors[idx]
	d.mu.Unlock()

	events, err := d.engine.Repo.EventsAfter(ctx, 100, cursor)
	if err != nil || len(events) == 0 {
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range events {
		if filter.match(evt.Type) {
			if err := d.postEvent(ctx, hook, evt); err != nil {
				// Leave the cursor where it is; the event is retried
				// on the next tick.
				return
			}
		}
		d.mu.Lock()
		d.cursors[idx] = evt.ID
		d.mu.Unlock()
	}
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

func (d *webhookDispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	payload := json.RawMessage(evt.Payload)
	if !json.Valid(payload) {
		payload = json.RawMessage("{}")
	}
	body, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	timeout := 10 * time.Second
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Taskdesk-Event", evt.Type)
	req.Header.Set("X-Taskdesk-Delivery", fmt.Sprintf("%d", evt.ID))
	if hook.Secret != "" {
		req.Header.Set("X-Taskdesk-Secret", hook.Secret)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned %d", hook.URL, resp.StatusCode)
	}
	return nil
}

// eventFilter matches event types; an empty filter matches everything.
// Entries may end in ".*" to match a prefix, e.g. "proposal.*".
type eventFilter struct {
	all      bool
	exact    map[string]bool
	prefixes []string
}

func newEventFilter(types []string) eventFilter {
	if len(types) == 0 {
		return eventFilter{all: true}
	}
	f := eventFilter{exact: make(map[string]bool)}
	for _, t := range types {
		if len(t) > 2 && t[len(t)-2:] == ".*" {
			f.prefixes = append(f.prefixes, t[:len(t)-1])
			continue
		}
		f.exact[t] = true
	}
	return f
}

func (f eventFilter) match(evtType string) bool {
	if f.all {
		return true
	}
	if f.exact[evtType] {
		return true
	}
	for _, p := range f.prefixes {
		if len(evtType) >= len(p) && evtType[:len(p)] == p {
			return true
		}
	}
	return false
}
