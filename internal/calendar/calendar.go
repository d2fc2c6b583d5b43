// Package calendar supplies optional advisory data about days (holidays, office closures)
// that validation reports alongside a proposed event.
package calendar

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable means the provider could not answer. Callers treat it as "no advice".
var ErrUnavailable = errors.New("calendar: provider unavailable")

type Severity string

const (
	SeverityInfo           Severity = "info"
	SeverityWarn           Severity = "warn"
	SeverityBlockSuggested Severity = "block_suggested"
)

func (s Severity) valid() bool {
	switch s {
	case SeverityInfo, SeverityWarn, SeverityBlockSuggested:
		return true
	}
	return false
}

// Advisory describes one day. The zero value means the day has nothing notable.
type Advisory struct {
	Date     time.Time `json:"date"`
	Name     string    `json:"name,omitempty"`
	Severity Severity  `json:"severity,omitempty"`
	Note     string    `json:"note,omitempty"`
}

func (a Advisory) Empty() bool { return a.Name == "" }

type Provider interface {
	// Lookup returns the advisory for the calendar day containing date, in date's location.
	Lookup(ctx context.Context, date time.Time) (Advisory, error)
}

// Nop never has advice.
type Nop struct{}

func (Nop) Lookup(context.Context, time.Time) (Advisory, error) { return Advisory{}, nil }

func dayKey(t time.Time) string { return t.Format("2006-01-02") }
