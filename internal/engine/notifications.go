package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"taskdesk/internal/domain"
	"taskdesk/internal/repo"
)

// notify inserts a notification row inside the caller's transaction so the
// triggering mutation and its notification commit together. Self-directed
// notifications are dropped silently.
func (e Engine) notify(ctx context.Context, tx *sql.Tx, userID, evtType, title, body, entityKind, entityID string) error {
	if userID == "" {
		return nil
	}
	n := domain.Notification{
		ID:         newID(),
		UserID:     userID,
		Type:       evtType,
		Title:      title,
		Body:       body,
		EntityKind: entityKind,
		EntityID:   entityID,
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
	}
	return e.Repo.InsertNotification(ctx, tx, n)
}

func (e Engine) ListNotifications(ctx context.Context, f repo.NotificationFilters) ([]domain.Notification, error) {
	return e.Repo.ListNotifications(ctx, f)
}

func (e Engine) MarkNotificationRead(ctx context.Context, id, userID string) error {
	return e.Repo.MarkNotificationRead(ctx, id, userID)
}

func (e Engine) CreateChatChannel(ctx context.Context, name, actorID string) (domain.ChatChannel, error) {
	if strings.TrimSpace(name) == "" {
		return domain.ChatChannel{}, ValidationError{Field: "name", Reason: "required"}
	}
	c := domain.ChatChannel{
		ID:        newID(),
		Name:      strings.TrimSpace(name),
		CreatedBy: actorID,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertChatChannel(ctx, c); err != nil {
		return c, err
	}
	return c, nil
}

func (e Engine) PostChatMessage(ctx context.Context, channelID, body, actorID string) (domain.ChatMessage, error) {
	if strings.TrimSpace(body) == "" {
		return domain.ChatMessage{}, ValidationError{Field: "body", Reason: "required"}
	}
	if _, err := e.Repo.GetChatChannel(ctx, channelID); err != nil {
		return domain.ChatMessage{}, err
	}
	m := domain.ChatMessage{
		ID:        newID(),
		ChannelID: channelID,
		UserID:    actorID,
		Body:      body,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertChatMessage(ctx, m); err != nil {
		return m, err
	}
	return m, nil
}
