package app

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"agendabot/internal/clock"
	"agendabot/internal/intent"
	"agendabot/internal/interpret"
	"agendabot/internal/observability"
	"agendabot/internal/reminder"
	"agendabot/internal/storage"
	logx "agendabot/pkg/logx"
)

// DefaultLookahead is the query window when a request names no day.
const DefaultLookahead = 7 * 24 * time.Hour

// Interpreter turns one message into an interpretation result.
type Interpreter interface {
	Run(ctx context.Context, req interpret.Request) interpret.Result
}

type HandlerDeps struct {
	Interpreter Interpreter
	Store       storage.Store
	Reminders   *reminder.Scheduler
	Metrics     *observability.Metrics
	Clock       clock.Clock
	Location    *time.Location
	Log         logx.Logger
	// EventLead is the reminder lead for create_event requests that name none.
	EventLead int
}

// Handler answers one chat message: a command, or free text that goes through
// interpretation and, when actionable, is committed to storage and the reminder scheduler.
type Handler struct {
	interp    Interpreter
	store     storage.Store
	reminders *reminder.Scheduler
	metrics   *observability.Metrics
	clock     clock.Clock
	loc       *time.Location
	log       logx.Logger
	eventLead int
}

func NewHandler(d HandlerDeps) *Handler {
	h := &Handler{
		interp:    d.Interpreter,
		store:     d.Store,
		reminders: d.Reminders,
		metrics:   d.Metrics,
		clock:     d.Clock,
		loc:       d.Location,
		log:       d.Log,
		eventLead: d.EventLead,
	}
	if h.clock == nil {
		h.clock = clock.System
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.log.IsZero() {
		h.log = logx.Nop()
	}
	h.log = h.log.Component("handler")
	return h
}

// action is what a committed request did, for the reply and the audit log.
type action struct {
	name   string
	target string
	jobs   int
	missed int
}

// Handle returns the reply for text sent by owner. An empty reply means no answer.
func (h *Handler) Handle(ctx context.Context, owner, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if strings.HasPrefix(text, "/") {
		return h.command(ctx, owner, text)
	}

	started := time.Now()
	res := h.interp.Run(ctx, interpret.Request{Text: text, Owner: owner, Location: h.loc, Now: h.clock.Now()})
	h.metrics.ObserveIntent(string(res.Intent.Intent), res.Intent.Confidence)

	switch {
	case res.Terminal:
		return "⚠️ Sorry, I couldn't process that message."
	case res.NeedsClarification():
		return "🤔 " + res.Question()
	}

	var (
		reply string
		act   action
		err   error
	)
	switch res.Intent.Intent {
	case intent.CreateEvent, intent.CreateReminder:
		reply, act, err = h.create(ctx, owner, res)
	case intent.Update:
		reply, act, err = h.update(ctx, owner, res)
	case intent.Delete:
		reply, act, err = h.delete(ctx, owner, res)
	case intent.Query:
		return h.query(ctx, owner, res)
	case intent.Help:
		return usage
	default:
		return "🤔 I'm not sure what you'd like me to do. " + usageHint
	}

	h.audit(ctx, owner, res, act, err, time.Since(started))
	if err != nil {
		h.log.Error("action failed", logx.String("owner", owner), logx.String("intent", string(res.Intent.Intent)), logx.Err(err))
		return "⚠️ Something went wrong while saving that. Please try again."
	}
	return reply
}

func (h *Handler) audit(ctx context.Context, owner string, res interpret.Result, act action, actErr error, took time.Duration) {
	if act.name == "" && actErr == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{
		"confidence": res.Validation.Confidence,
		"jobs":       act.jobs,
		"missed":     act.missed,
		"warnings":   len(res.Warnings),
	})
	e := storage.AuditEntry{
		At:       h.clock.Now().UTC(),
		Owner:    owner,
		Action:   act.name,
		Target:   act.target,
		Intent:   string(res.Intent.Intent),
		OK:       actErr == nil,
		TookMS:   took.Milliseconds(),
		MetaJSON: string(meta),
	}
	if e.Action == "" {
		e.Action = string(res.Intent.Intent)
	}
	if actErr != nil {
		e.Error = actErr.Error()
	}
	if err := h.store.AppendAudit(ctx, e); err != nil {
		h.log.Warn("audit append failed", logx.Err(err))
	}
}
