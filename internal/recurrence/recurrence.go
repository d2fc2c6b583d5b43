// Package recurrence expands a repeat rule into a finite, restartable sequence
// of occurrence instants. It never schedules or persists anything.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Frequency string

const (
	Hourly  Frequency = "hourly"
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
	// Cron repeats on a cron expression; Interval keeps every Nth firing.
	Cron Frequency = "cron"
)

const (
	DefaultHorizon        = 365 * 24 * time.Hour
	DefaultMaxOccurrences = 1000
)

var (
	ErrInvalidRule = errors.New("recurrence: invalid rule")

	cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// Rule describes how an event repeats. Zero Count and zero Until mean unbounded;
// the plan horizon still applies.
type Rule struct {
	Frequency Frequency `json:"frequency"`
	Interval  int       `json:"interval,omitempty"`
	Count     int       `json:"count,omitempty"`
	Until     time.Time `json:"until,omitzero"`
	Cron      string    `json:"cron,omitempty"`
}

func (r Rule) interval() int {
	if r.Interval <= 0 {
		return 1
	}
	return r.Interval
}

func (r Rule) Validate() error {
	switch r.Frequency {
	case Hourly, Daily, Weekly, Monthly, Yearly:
	case Cron:
		if _, err := cronParser.Parse(strings.TrimSpace(r.Cron)); err != nil {
			return fmt.Errorf("%w: cron %q: %v", ErrInvalidRule, r.Cron, err)
		}
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, r.Frequency)
	}
	if r.Interval < 0 || r.Count < 0 {
		return fmt.Errorf("%w: negative interval or count", ErrInvalidRule)
	}
	return nil
}

// String renders the rule the way a user would say it ("every 2 weeks").
func (r Rule) String() string {
	if r.Frequency == Cron {
		return "cron " + r.Cron
	}
	unit := map[Frequency]string{Hourly: "hour", Daily: "day", Weekly: "week", Monthly: "month", Yearly: "year"}[r.Frequency]
	if unit == "" {
		return string(r.Frequency)
	}
	s := "every " + unit
	if n := r.interval(); n > 1 {
		s = fmt.Sprintf("every %d %ss", n, unit)
	}
	if r.Count > 0 {
		s += fmt.Sprintf(", %d times", r.Count)
	}
	if !r.Until.IsZero() {
		s += " until " + r.Until.Format("2006-01-02")
	}
	return s
}

type Options struct {
	Horizon        time.Duration
	MaxOccurrences int
}

// Plan binds a rule to an anchor. Occurrences are at or after Anchor and strictly
// before Anchor+Horizon.
type Plan struct {
	Rule    Rule
	Anchor  time.Time
	Horizon time.Duration
	Max     int

	sched cron.Schedule
}

func NewPlan(rule Rule, anchor time.Time, opt Options) (Plan, error) {
	if err := rule.Validate(); err != nil {
		return Plan{}, err
	}
	if anchor.IsZero() {
		return Plan{}, fmt.Errorf("%w: anchor required", ErrInvalidRule)
	}
	p := Plan{Rule: rule, Anchor: anchor, Horizon: opt.Horizon, Max: opt.MaxOccurrences}
	if p.Horizon <= 0 {
		p.Horizon = DefaultHorizon
	}
	if p.Max <= 0 {
		p.Max = DefaultMaxOccurrences
	}
	if rule.Frequency == Cron {
		p.sched, _ = cronParser.Parse(strings.TrimSpace(rule.Cron))
	}
	return p, nil
}

// Iter returns a fresh iterator positioned at the anchor.
func (p Plan) Iter() *Iterator {
	return &Iterator{p: p, end: p.Anchor.Add(p.Horizon), cursor: p.Anchor.Add(-time.Nanosecond)}
}

// All drains a fresh iterator.
func (p Plan) All() []time.Time {
	var out []time.Time
	it := p.Iter()
	for t, ok := it.Next(); ok; t, ok = it.Next() {
		out = append(out, t)
	}
	return out
}

type Iterator struct {
	p       Plan
	end     time.Time
	step    int
	emitted int
	done    bool

	// cron state
	cursor time.Time
	fired  int
}

// Next returns the next occurrence, or false once any bound is reached.
func (it *Iterator) Next() (time.Time, bool) {
	if it.done {
		return time.Time{}, false
	}
	r := it.p.Rule
	if (r.Count > 0 && it.emitted >= r.Count) || it.emitted >= it.p.Max {
		it.done = true
		return time.Time{}, false
	}

	var t time.Time
	if r.Frequency == Cron {
		t = it.nextCron()
	} else {
		t = advance(it.p.Anchor, r.Frequency, it.step*r.interval())
		it.step++
	}
	if t.IsZero() || !t.Before(it.end) || (!r.Until.IsZero() && t.After(r.Until)) {
		it.done = true
		return time.Time{}, false
	}
	it.emitted++
	return t, true
}

func (it *Iterator) nextCron() time.Time {
	n := it.p.Rule.interval()
	for {
		t := it.p.sched.Next(it.cursor)
		if t.IsZero() || !t.Before(it.end) {
			return time.Time{}
		}
		it.cursor = t
		keep := it.fired%n == 0
		it.fired++
		if keep {
			return t
		}
	}
}

// advance moves anchor forward by n units. Days are added on the wall clock so a
// daily reminder keeps its local hour across DST changes.
func advance(anchor time.Time, f Frequency, n int) time.Time {
	switch f {
	case Hourly:
		return anchor.Add(time.Duration(n) * time.Hour)
	case Daily:
		return anchor.AddDate(0, 0, n)
	case Weekly:
		return anchor.AddDate(0, 0, 7*n)
	case Monthly:
		return addMonthsClamped(anchor, n)
	case Yearly:
		return addMonthsClamped(anchor, 12*n)
	}
	return time.Time{}
}

// addMonthsClamped keeps the anchor day, clamped to the target month's last day
// (Jan 31 + 1 month is Feb 28 or 29).
func addMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := DaysIn(first.Year(), first.Month())
	return first.AddDate(0, 0, min(d, last)-1)
}

func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
