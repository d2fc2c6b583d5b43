package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("storage: not found")
)

// Config configures storage.
//
// Driver is one of "memory", "file", "sqlite", "mysql". Path is used by file and sqlite,
// DSN by mysql.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

type EventKind string

const (
	KindEvent    EventKind = "event"
	KindReminder EventKind = "reminder"
)

// Comment is an ordered note attached to an event.
type Comment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Priority  string    `json:"priority,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
}

// Event is keyed by (Owner, ID).
type Event struct {
	ID         string    `json:"id"`
	Owner      string    `json:"owner"`
	Kind       EventKind `json:"kind"`
	Title      string    `json:"title"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end,omitempty"`
	Location   string    `json:"location,omitempty"`
	Contacts   []string  `json:"contacts,omitempty"`
	Priority   string    `json:"priority,omitempty"`
	Recurrence string    `json:"recurrence,omitempty"`
	Comments   []Comment `json:"comments,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// EffectiveEnd returns End, or Start when the event has no end.
func (e Event) EffectiveEnd() time.Time {
	if e.End.IsZero() {
		return e.Start
	}
	return e.End
}

// EventFilter selects an owner's events. A non-zero window keeps events overlapping [From, To).
type EventFilter struct {
	Owner string
	From  time.Time
	To    time.Time
}

func (f EventFilter) match(e Event) bool {
	if e.Owner != f.Owner {
		return false
	}
	if !f.To.IsZero() && !e.Start.Before(f.To) {
		return false
	}
	if !f.From.IsZero() {
		end := e.EffectiveEnd()
		if end.Equal(e.Start) {
			return !e.Start.Before(f.From)
		}
		return end.After(f.From)
	}
	return true
}

type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether no further transition is expected.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job is a persisted reminder delivery.
type Job struct {
	ID          string            `json:"id"`
	Owner       string            `json:"owner"`
	EventID     string            `json:"event_id,omitempty"`
	Due         time.Time         `json:"due"`
	Target      time.Time         `json:"target"`
	LeadMinutes int               `json:"lead_minutes"`
	Template    string            `json:"template"`
	Snapshot    map[string]string `json:"snapshot,omitempty"`
	RetryCount  int               `json:"retry_count"`
	MaxRetries  int               `json:"max_retries"`
	State       JobState          `json:"state"`
	LastError   string            `json:"last_error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// JobFilter selects jobs. Empty fields match everything.
type JobFilter struct {
	States  []JobState
	Owner   string
	EventID string
}

func (f JobFilter) match(j Job) bool {
	if f.Owner != "" && j.Owner != f.Owner {
		return false
	}
	if f.EventID != "" && j.EventID != f.EventID {
		return false
	}
	if len(f.States) == 0 {
		return true
	}
	for _, s := range f.States {
		if j.State == s {
			return true
		}
	}
	return false
}

// AuditEntry records a committed user action.
type AuditEntry struct {
	At       time.Time `json:"at"`
	Owner    string    `json:"owner"`
	Action   string    `json:"action"`
	Target   string    `json:"target,omitempty"`
	Intent   string    `json:"intent,omitempty"`
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms"`
	MetaJSON string    `json:"meta,omitempty"`
}
