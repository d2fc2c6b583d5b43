package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"agendabot/internal/extract"
	"agendabot/internal/intent"
	"agendabot/internal/interpret"
	"agendabot/internal/reminder"
	"agendabot/internal/storage"
	logx "agendabot/pkg/logx"
)

// create stores the event and schedules one reminder per occurrence.
func (h *Handler) create(ctx context.Context, owner string, res interpret.Result) (string, action, error) {
	ent := res.Entities
	now := h.clock.Now()

	kind, lead := storage.KindEvent, h.eventLead
	if res.Intent.Intent == intent.CreateReminder {
		kind, lead = storage.KindReminder, 0
	}
	if ent.LeadMinutes != nil {
		lead = *ent.LeadMinutes
	}

	ev := storage.Event{
		ID:        uuid.NewString(),
		Owner:     owner,
		Kind:      kind,
		Title:     ent.Title,
		Start:     ent.Start,
		End:       ent.End,
		Location:  ent.Location,
		Contacts:  ent.Contacts,
		Priority:  string(ent.Priority),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	if ent.Recurrence != nil {
		ev.Recurrence = ent.Recurrence.String()
	}
	act := action{name: "create_" + string(kind), target: ev.ID}
	if err := h.store.PutEvent(ctx, ev); err != nil {
		return "", act, fmt.Errorf("store event: %w", err)
	}

	occurrences := []time.Time{ev.Start}
	if res.Plan != nil {
		if all := res.Plan.All(); len(all) > 0 {
			occurrences = all
		}
	}
	sched, err := h.scheduleAll(ctx, ev, lead, occurrences)
	act.jobs, act.missed = len(sched.outcomes), sched.missed
	if err != nil {
		return "", act, err
	}
	return formatCreated(ev, res, sched, h.loc), act, nil
}

type scheduled struct {
	outcomes []reminder.Outcome
	missed   int
}

func (h *Handler) scheduleAll(ctx context.Context, ev storage.Event, lead int, at []time.Time) (scheduled, error) {
	var out scheduled
	for _, due := range at {
		o, err := h.reminders.Schedule(ctx, reminder.Request{
			Owner:       ev.Owner,
			EventID:     ev.ID,
			Due:         due,
			LeadMinutes: lead,
			Snapshot:    snapshot(ev, due, h.loc),
		})
		switch {
		case errors.Is(err, reminder.ErrSchedulingSkipped):
			out.missed++
		case err != nil:
			return out, fmt.Errorf("schedule reminder: %w", err)
		default:
			out.outcomes = append(out.outcomes, o)
		}
	}
	return out, nil
}

func snapshot(ev storage.Event, due time.Time, loc *time.Location) map[string]string {
	s := map[string]string{
		"title": ev.Title,
		"time":  due.In(loc).Format("15:04"),
		"date":  due.In(loc).Format("Mon 02 Jan"),
	}
	if ev.Location != "" {
		s["location"] = ev.Location
	}
	return s
}

// update moves the best-matching event to the requested date and time and
// replaces its reminders.
func (h *Handler) update(ctx context.Context, owner string, res interpret.Result) (string, action, error) {
	ent := res.Entities
	act := action{name: "update_event"}
	ev, ok, err := h.findEvent(ctx, owner, ent)
	if err != nil || !ok {
		return notFound(ent.Title), act, err
	}
	act.target = ev.ID

	start := movedStart(ev.Start, ent, h.loc)
	if !ev.End.IsZero() {
		ev.End = start.Add(ev.End.Sub(ev.Start))
	}
	if !ent.End.IsZero() && ent.End.After(start) {
		ev.End = ent.End
	}
	ev.Start = start
	ev.UpdatedAt = h.clock.Now().UTC()
	if err := h.store.PutEvent(ctx, ev); err != nil {
		return "", act, fmt.Errorf("store event: %w", err)
	}

	lead := h.eventLead
	if ev.Kind == storage.KindReminder {
		lead = 0
	}
	if live, err := h.reminders.Upcoming(ctx, owner); err == nil {
		for _, j := range live {
			if j.EventID == ev.ID {
				lead = j.LeadMinutes
				break
			}
		}
	}
	if ent.LeadMinutes != nil {
		lead = *ent.LeadMinutes
	}
	if _, err := h.reminders.CancelEvent(ctx, owner, ev.ID); err != nil {
		return "", act, fmt.Errorf("cancel reminders: %w", err)
	}
	sched, err := h.scheduleAll(ctx, ev, lead, []time.Time{ev.Start})
	act.jobs, act.missed = len(sched.outcomes), sched.missed
	if err != nil {
		return "", act, err
	}
	return formatMoved(ev, sched, h.loc), act, nil
}

// movedStart combines the old start with the parts of the new one the text named.
func movedStart(old time.Time, ent extract.Entities, loc *time.Location) time.Time {
	old, next := old.In(loc), ent.Start.In(loc)
	y, m, d := next.Date()
	hh, mm := next.Hour(), next.Minute()
	if ent.Defaulted[extract.FieldDate] {
		y, m, d = old.Date()
	}
	if ent.Defaulted[extract.FieldTime] {
		hh, mm = old.Hour(), old.Minute()
	}
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

func (h *Handler) delete(ctx context.Context, owner string, res interpret.Result) (string, action, error) {
	act := action{name: "delete_event"}
	ev, ok, err := h.findEvent(ctx, owner, res.Entities)
	if err != nil || !ok {
		return notFound(res.Entities.Title), act, err
	}
	act.target = ev.ID
	n, err := h.reminders.CancelEvent(ctx, owner, ev.ID)
	if err != nil {
		return "", act, fmt.Errorf("cancel reminders: %w", err)
	}
	act.jobs = n
	if err := h.store.DeleteEvent(ctx, owner, ev.ID); err != nil {
		return "", act, fmt.Errorf("delete event: %w", err)
	}
	return formatDeleted(ev, n, h.loc), act, nil
}

func (h *Handler) query(ctx context.Context, owner string, res interpret.Result) string {
	ent := res.Entities
	from := h.clock.Now().In(h.loc)
	to := from.Add(DefaultLookahead)
	label := "the next 7 days"
	if !ent.Start.IsZero() && !ent.Defaulted[extract.FieldDate] {
		s := ent.Start.In(h.loc)
		from = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, h.loc)
		to = from.AddDate(0, 0, 1)
		label = from.Format("Mon 02 Jan")
		if !ent.RangeEnd.IsZero() {
			to = ent.RangeEnd
			label = from.Format("Mon 02 Jan") + " to " + to.Add(-time.Nanosecond).In(h.loc).Format("Mon 02 Jan")
		}
	}
	events, err := h.store.ListEvents(ctx, storage.EventFilter{Owner: owner, From: from, To: to})
	if err != nil {
		h.log.Error("list events failed", logx.String("owner", owner), logx.Err(err))
		return "⚠️ I couldn't read your agenda right now."
	}
	return formatAgenda(label, events, h.loc)
}

// findEvent picks the owner's upcoming event whose title shares the most words
// with the request. Ties go to the event closest to a date the request named,
// else to the earliest.
func (h *Handler) findEvent(ctx context.Context, owner string, ent extract.Entities) (storage.Event, bool, error) {
	events, err := h.store.ListEvents(ctx, storage.EventFilter{Owner: owner, From: h.clock.Now()})
	if err != nil {
		return storage.Event{}, false, err
	}
	hint := time.Time{}
	if !ent.Start.IsZero() && !ent.Defaulted[extract.FieldDate] {
		hint = ent.Start
	}
	ev, ok := bestMatch(events, ent.Title, hint)
	return ev, ok, nil
}

var matchStopwords = map[string]bool{
	"move": true, "reschedule": true, "change": true, "update": true, "postpone": true,
	"delete": true, "remove": true, "cancel": true, "drop": true,
	"the": true, "my": true, "to": true, "on": true, "at": true, "a": true, "an": true,
	"event": true, "reminder": true,
}

func titleWords(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) >= 2 && !matchStopwords[w] {
			out[w] = true
		}
	}
	return out
}

func bestMatch(events []storage.Event, query string, hint time.Time) (storage.Event, bool) {
	want := titleWords(query)
	best, bestScore := -1, 0
	var bestDist time.Duration
	for i, ev := range events {
		score := 0
		for w := range titleWords(ev.Title) {
			if want[w] {
				score++
			}
		}
		if score == 0 {
			continue
		}
		dist := time.Duration(0)
		if !hint.IsZero() {
			dist = absDuration(ev.Start.Sub(hint))
		}
		if score > bestScore || (score == bestScore && dist < bestDist) {
			best, bestScore, bestDist = i, score, dist
		}
	}
	if best < 0 {
		return storage.Event{}, false
	}
	return events[best], true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
