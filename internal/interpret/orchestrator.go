// Package interpret runs a message through classification, extraction,
// validation and recurrence planning and returns one structured Result.
//
// Expected failures (empty text, no classifier, failed validation) never
// surface as Go errors from Run; they are recorded on the Result. A failed
// hard check is not terminal: it becomes a question about the failed field.
package interpret

import (
	"context"
	"fmt"
	"maps"
	"runtime/debug"
	"time"

	"agendabot/internal/clock"
	"agendabot/internal/eventbus"
	"agendabot/internal/extract"
	"agendabot/internal/intent"
	"agendabot/internal/recurrence"
	"agendabot/internal/validate"
	logx "agendabot/pkg/logx"
)

const defaultPreview = 5

type Request struct {
	Text     string
	Owner    string
	Location *time.Location
	// Now is the reference instant. Zero means the orchestrator clock.
	Now time.Time
}

// PhaseRun records how one phase went: "ok", "failed", "fatal" or "skipped".
type PhaseRun struct {
	Name    string        `json:"name"`
	Outcome string        `json:"outcome"`
	Took    time.Duration `json:"took"`
}

type Result struct {
	Text  string    `json:"text"`
	Owner string    `json:"owner"`
	Now   time.Time `json:"now"`

	Intent     intent.Result             `json:"intent"`
	Entities   extract.Entities          `json:"entities"`
	Confidence map[extract.Field]float64 `json:"confidence"`
	Validation validate.Report           `json:"validation"`
	Plan       *recurrence.Plan          `json:"-"`
	Upcoming   []time.Time               `json:"upcoming,omitempty"`

	Warnings []Warning  `json:"warnings,omitempty"`
	Errors   []error    `json:"-"`
	Terminal bool       `json:"terminal"`
	Phases   []PhaseRun `json:"phases"`
}

// NeedsClarification reports whether the caller should ask Question instead of acting.
func (r Result) NeedsClarification() bool {
	return !r.Terminal && (r.Validation.NeedsClarification || !r.Validation.OK())
}

func (r Result) Question() string { return r.Validation.Question }

// Actionable reports whether the result may be committed.
func (r Result) Actionable() bool {
	return !r.Terminal && !r.NeedsClarification() && r.Intent.Intent != intent.Unknown
}

// PhaseObserver is told how each phase went.
type PhaseObserver func(phase, outcome string, took time.Duration)

type Orchestrator struct {
	phases  []Phase
	log     logx.Logger
	bus     eventbus.Bus
	clock   clock.Clock
	loc     *time.Location
	observe PhaseObserver
}

type Option func(*Orchestrator)

func WithLogger(l logx.Logger) Option        { return func(o *Orchestrator) { o.log = l } }
func WithBus(b eventbus.Bus) Option          { return func(o *Orchestrator) { o.bus = b } }
func WithClock(c clock.Clock) Option         { return func(o *Orchestrator) { o.clock = c } }
func WithObserver(f PhaseObserver) Option    { return func(o *Orchestrator) { o.observe = f } }
func WithLocation(loc *time.Location) Option { return func(o *Orchestrator) { o.loc = loc } }

// New wires the standard phases: classify, extract, validate, recurrence.
func New(cls Classifier, ex Extractor, v Validator, rec recurrence.Options, opts ...Option) *Orchestrator {
	return NewWithPhases([]Phase{
		classifyPhase{cls: cls},
		extractPhase{ex: ex},
		validatePhase{v: v},
		recurrencePhase{opt: rec, preview: defaultPreview},
	}, opts...)
}

// NewWithPhases runs an explicit phase list in order.
func NewWithPhases(phases []Phase, opts ...Option) *Orchestrator {
	o := &Orchestrator{phases: phases, log: logx.Nop(), clock: clock.System, loc: time.UTC}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.Component("interpret")
	return o
}

func (o *Orchestrator) Phases() []string {
	out := make([]string, len(o.phases))
	for i, p := range o.phases {
		out[i] = p.Name()
	}
	return out
}

func (o *Orchestrator) Run(ctx context.Context, req Request) Result {
	if req.Location == nil {
		req.Location = o.loc
	}
	if req.Now.IsZero() {
		req.Now = o.clock.Now()
	}
	c := newContext(req)
	log := o.log.With(logx.String("owner", req.Owner))
	runs := make([]PhaseRun, 0, len(o.phases))

	for _, p := range o.phases {
		name := p.Name()
		if c.Terminal || !p.ShouldRun(c) {
			log.Debug("phase skipped", logx.String("phase", name), logx.Bool("terminal", c.Terminal))
			runs = append(runs, PhaseRun{Name: name, Outcome: "skipped"})
			o.emit(name, "skipped", 0)
			continue
		}
		c.phase = name
		start := time.Now()
		out := o.execute(ctx, p, c)
		took := time.Since(start)

		for _, w := range out.Warnings {
			if w.Phase == "" {
				w.Phase = name
			}
			c.Warnings = append(c.Warnings, w)
		}
		c.Errors = append(c.Errors, out.Errors...)

		status := "ok"
		switch {
		case out.Fatal:
			status = "fatal"
			c.Terminal = true
			log.Info("interpretation stopped", logx.String("phase", name), logx.Any("errors", errStrings(out.Errors)))
		case !out.Success:
			status = "failed"
			log.Warn("phase degraded", logx.String("phase", name), logx.Any("warnings", out.Warnings))
		}
		runs = append(runs, PhaseRun{Name: name, Outcome: status, Took: took})
		o.emit(name, status, took)
	}
	c.phase = ""

	res := Result{
		Text:       c.Text,
		Owner:      c.Owner,
		Now:        c.Now,
		Intent:     c.Intent,
		Entities:   c.Entities,
		Confidence: maps.Clone(c.ledger),
		Validation: c.Validation,
		Plan:       c.Plan,
		Upcoming:   c.Upcoming,
		Warnings:   c.Warnings,
		Errors:     c.Errors,
		Terminal:   c.Terminal,
		Phases:     runs,
	}
	for _, w := range res.Warnings {
		if w.Code == WarnFieldConflict {
			log.Debug("field conflict", logx.String("warning", w.String()))
		}
	}
	log.Debug("interpretation done",
		logx.String("intent", string(res.Intent.Intent)),
		logx.Float64("confidence", res.Validation.Confidence),
		logx.Bool("terminal", res.Terminal),
		logx.Bool("clarify", res.NeedsClarification()),
		logx.Int("warnings", len(res.Warnings)),
	)
	eventbus.Publish(o.bus, eventbus.InterpretCompleted, map[string]any{
		"owner":    res.Owner,
		"intent":   string(res.Intent.Intent),
		"terminal": res.Terminal,
		"clarify":  res.NeedsClarification(),
	})
	return res
}

// execute runs one phase; a panic becomes a fatal outcome.
func (o *Orchestrator) execute(ctx context.Context, p Phase, c *Context) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("phase panic", logx.String("phase", p.Name()), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			out = Outcome{Fatal: true, Errors: []error{fmt.Errorf("interpret: phase %s panicked: %v", p.Name(), r)}}
		}
	}()
	return p.Execute(ctx, c)
}

func (o *Orchestrator) emit(phase, outcome string, took time.Duration) {
	if o.observe != nil {
		o.observe(phase, outcome, took)
	}
}

func errStrings(errs []error) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}
