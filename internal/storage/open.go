package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "agendabot/pkg/logx"
)

type EventStore interface {
	// PutEvent inserts or replaces the event keyed by (Owner, ID).
	PutEvent(ctx context.Context, e Event) error
	GetEvent(ctx context.Context, owner, id string) (Event, error)
	DeleteEvent(ctx context.Context, owner, id string) error
	// ListEvents returns matching events ordered by start.
	ListEvents(ctx context.Context, f EventFilter) ([]Event, error)
	AddComment(ctx context.Context, owner, eventID string, c Comment) error
}

type JobStore interface {
	CreateJob(ctx context.Context, j Job) error
	GetJob(ctx context.Context, id string) (Job, error)
	// ListJobs returns matching jobs ordered by target time.
	ListJobs(ctx context.Context, f JobFilter) ([]Job, error)
	// TransitionJob moves a job from one state to another only if it is currently in from.
	// It reports whether this caller won the transition.
	TransitionJob(ctx context.Context, id string, from, to JobState, at time.Time) (bool, error)
	// RecordAttempt bumps the retry counter and stores the last delivery error.
	RecordAttempt(ctx context.Context, id string, lastErr string, at time.Time) error
}

// Store is the persistence API used by the app, the scheduler and the delivery worker.
type Store interface {
	EventStore
	JobStore
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "mysql":
		return openMySQL(cfg, log)
	case "none":
		return nil, ErrDisabled
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
