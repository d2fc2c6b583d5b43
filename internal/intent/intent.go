// Package intent resolves what a message asks for by polling several
// classifier backends and aggregating their votes.
package intent

import (
	"context"
	"errors"
	"strings"
	"time"
)

type Intent string

const (
	CreateEvent    Intent = "create_event"
	CreateReminder Intent = "create_reminder"
	Update         Intent = "update"
	Delete         Intent = "delete"
	Query          Intent = "query"
	Help           Intent = "help"
	Unknown        Intent = "unknown"
)

// priority orders intents for tie-breaks; earlier wins.
var priority = []Intent{CreateEvent, CreateReminder, Update, Delete, Query, Help, Unknown}

// All returns every intent in tie-break order.
func All() []Intent { return append([]Intent(nil), priority...) }

func rank(i Intent) int {
	for n, p := range priority {
		if p == i {
			return n
		}
	}
	return len(priority)
}

func (i Intent) Valid() bool { return rank(i) < len(priority) }

// Parse accepts an intent name in any case, with spaces or dashes for underscores.
func Parse(s string) (Intent, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	i := Intent(s)
	return i, i.Valid()
}

// Writes reports whether the intent changes stored data.
func (i Intent) Writes() bool {
	switch i {
	case CreateEvent, CreateReminder, Update, Delete:
		return true
	}
	return false
}

var (
	ErrClassifierUnavailable = errors.New("intent: no classifier backend responded")
	ErrInvalidPrediction     = errors.New("intent: invalid prediction")
)

// Input is the context a backend may use besides the text.
type Input struct {
	Owner string
	Now   time.Time
}

type Prediction struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

func (p Prediction) validate() (Prediction, error) {
	if !p.Intent.Valid() {
		return p, ErrInvalidPrediction
	}
	p.Confidence = min(max(p.Confidence, 0), 1)
	return p, nil
}

// Backend is one independent classifier. Implementations must honor ctx.
type Backend interface {
	Name() string
	Classify(ctx context.Context, text string, in Input) (Prediction, error)
}

// Vote is a backend answer that arrived in time.
type Vote struct {
	Source     string        `json:"source"`
	Intent     Intent        `json:"intent"`
	Confidence float64       `json:"confidence"`
	Weight     float64       `json:"weight"`
	Latency    time.Duration `json:"latency"`
}

type Result struct {
	Intent     Intent
	Confidence float64
	// Agreement is the number of votes for the winning intent.
	Agreement  int
	Responded  int
	Configured int
	Votes      []Vote
	// Failures maps backend name to why it did not vote.
	Failures map[string]string
}
