package engine

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"taskdesk/internal/config"
	"taskdesk/internal/events"
	"taskdesk/internal/repo"
	"taskdesk/internal/storage"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Storage storage.Store
	Config  *config.Config
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config, store storage.Store) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Storage: store,
		Config:  cfg,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func newID() string {
	return ulid.Make().String()
}

// ValidationError carries a field-specific rejection so callers can show a
// message against the offending input rather than a generic failure.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
