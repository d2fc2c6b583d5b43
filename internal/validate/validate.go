// Package validate checks an interpreted request before anything is committed.
//
// Hard checks block the request and turn into a question about the first
// failed field. Soft checks (overlapping events, advisory
// days) only annotate it. Independently of both, the aggregate confidence over
// the fields the intent needs decides whether to ask a clarifying question.
package validate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agendabot/internal/calendar"
	"agendabot/internal/extract"
	"agendabot/internal/intent"
	"agendabot/internal/storage"
	logx "agendabot/pkg/logx"
)

var ErrValidationFailed = errors.New("validation failed")

const (
	DefaultPastGrace       = 5 * time.Minute
	DefaultThreshold       = 0.75
	DefaultDefaultDuration = time.Hour
)

// FieldIntent is the pseudo-field that carries the classifier's confidence.
const FieldIntent extract.Field = "intent"

type Config struct {
	// PastGrace is how far in the past a start may be before it is rejected.
	PastGrace time.Duration
	// Threshold is the minimum aggregate confidence that proceeds without a question.
	Threshold float64
	// DefaultDuration is the assumed length of an event without an end, for overlap checks.
	DefaultDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.PastGrace <= 0 {
		c.PastGrace = DefaultPastGrace
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = DefaultDefaultDuration
	}
	return c
}

type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
	SeverityInfo  Severity = "info"
)

// Issue codes.
const (
	CodeTitleMissing   = "title_missing"
	CodeStartMissing   = "start_missing"
	CodeStartInPast    = "start_in_past"
	CodeEndBeforeStart = "end_not_after_start"
	CodeOverlap        = "overlap"
	CodeAdvisory       = "advisory_day"
)

type Issue struct {
	Code     string        `json:"code"`
	Field    extract.Field `json:"field,omitempty"`
	Severity Severity      `json:"severity"`
	Message  string        `json:"message"`
}

type Request struct {
	Owner            string
	Intent           intent.Intent
	IntentConfidence float64
	Entities         extract.Entities
	Now              time.Time
	// IgnoreEventID leaves one event out of the overlap check (the one being updated).
	IgnoreEventID string
}

type Report struct {
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`

	Overlaps []storage.Event   `json:"overlaps,omitempty"`
	Advisory calendar.Advisory `json:"advisory,omitzero"`

	Confidence         float64       `json:"confidence"`
	Weakest            extract.Field `json:"weakest,omitempty"`
	NeedsClarification bool          `json:"needs_clarification"`
	Question           string        `json:"question,omitempty"`
}

func (r Report) OK() bool { return len(r.Errors) == 0 }

// Err returns nil when no hard check failed, else ErrValidationFailed wrapped with the
// failed checks.
func (r Report) Err() error {
	if r.OK() {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, is := range r.Errors {
		msgs[i] = is.Message
	}
	return fmt.Errorf("%w: %s", ErrValidationFailed, strings.Join(msgs, "; "))
}

type Validator struct {
	cfg    Config
	events storage.EventStore
	cal    calendar.Provider
	log    logx.Logger
}

// New builds a validator. events and cal may be nil, which disables the matching soft check.
func New(cfg Config, events storage.EventStore, cal calendar.Provider, log logx.Logger) *Validator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Validator{cfg: cfg.withDefaults(), events: events, cal: cal, log: log.Component("validate")}
}

func (v *Validator) Config() Config { return v.cfg }

func (v *Validator) Check(ctx context.Context, req Request) Report {
	var r Report
	if req.Intent == intent.CreateEvent || req.Intent == intent.CreateReminder || req.Intent == intent.Update {
		r.Errors = v.hard(req)
		if r.OK() {
			v.overlap(ctx, req, &r)
			v.advisory(ctx, req, &r)
		}
	}
	v.score(req, &r)
	if !r.OK() {
		v.clarifyFailure(req, &r)
	}
	return r
}

func (v *Validator) hard(req Request) []Issue {
	var out []Issue
	ent := req.Entities
	if strings.TrimSpace(ent.Title) == "" {
		out = append(out, Issue{Code: CodeTitleMissing, Field: extract.FieldTitle, Severity: SeverityError, Message: "title is empty"})
	}
	if ent.Start.IsZero() {
		out = append(out, Issue{Code: CodeStartMissing, Field: extract.FieldDate, Severity: SeverityError, Message: "no date or time found"})
		return out
	}
	if !ent.PastEntry && ent.Start.Before(req.Now.Add(-v.cfg.PastGrace)) {
		out = append(out, Issue{Code: CodeStartInPast, Field: extract.FieldDate, Severity: SeverityError,
			Message: fmt.Sprintf("%s is already in the past", ent.Start.Format("Mon 02 Jan 15:04"))})
	}
	if !ent.End.IsZero() && !ent.End.After(ent.Start) {
		out = append(out, Issue{Code: CodeEndBeforeStart, Field: extract.FieldEnd, Severity: SeverityError, Message: "end must be after start"})
	}
	return out
}

func (v *Validator) overlap(ctx context.Context, req Request, r *Report) {
	if v.events == nil || req.Owner == "" {
		return
	}
	start := req.Entities.Start
	end := req.Entities.End
	if end.IsZero() {
		end = start.Add(v.cfg.DefaultDuration)
	}
	evs, err := v.events.ListEvents(ctx, storage.EventFilter{Owner: req.Owner, From: start, To: end})
	if err != nil {
		v.log.Warn("overlap check skipped", logx.String("owner", req.Owner), logx.Err(err))
		return
	}
	for _, e := range evs {
		if e.ID == req.IgnoreEventID {
			continue
		}
		r.Overlaps = append(r.Overlaps, e)
		r.Warnings = append(r.Warnings, Issue{Code: CodeOverlap, Severity: SeverityWarn,
			Message: fmt.Sprintf("overlaps %q at %s", e.Title, e.Start.In(start.Location()).Format("15:04"))})
	}
}

func (v *Validator) advisory(ctx context.Context, req Request, r *Report) {
	if v.cal == nil {
		return
	}
	adv, err := v.cal.Lookup(ctx, req.Entities.Start)
	if err != nil {
		if errors.Is(err, calendar.ErrUnavailable) {
			v.log.Debug("calendar unavailable", logx.Err(err))
		} else {
			v.log.Warn("calendar lookup failed", logx.Err(err))
		}
		return
	}
	if adv.Empty() {
		return
	}
	r.Advisory = adv
	sev := SeverityInfo
	if adv.Severity == calendar.SeverityWarn || adv.Severity == calendar.SeverityBlockSuggested {
		sev = SeverityWarn
	}
	msg := adv.Name
	if adv.Severity == calendar.SeverityBlockSuggested {
		msg += " (you may want to pick another day)"
	}
	r.Warnings = append(r.Warnings, Issue{Code: CodeAdvisory, Field: extract.FieldDate, Severity: sev, Message: msg})
}
