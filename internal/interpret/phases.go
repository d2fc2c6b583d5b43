package interpret

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agendabot/internal/extract"
	"agendabot/internal/intent"
	"agendabot/internal/recurrence"
	"agendabot/internal/validate"
)

var ErrEmptyText = errors.New("interpret: empty message")

// Outcome is what a phase reports back. Fatal stops the run.
type Outcome struct {
	Success  bool
	Fatal    bool
	Warnings []Warning
	Errors   []error
}

type Phase interface {
	Name() string
	ShouldRun(c *Context) bool
	Execute(ctx context.Context, c *Context) Outcome
}

type Classifier interface {
	Classify(ctx context.Context, text string, in intent.Input) (intent.Result, error)
}

type Extractor interface {
	Extract(text string, now time.Time) extract.Entities
}

type Validator interface {
	Check(ctx context.Context, req validate.Request) validate.Report
}

// Phase names, in run order.
const (
	PhaseClassify   = "classify"
	PhaseExtract    = "extract"
	PhaseValidate   = "validate"
	PhaseRecurrence = "recurrence"
)

type classifyPhase struct{ cls Classifier }

func (classifyPhase) Name() string            { return PhaseClassify }
func (classifyPhase) ShouldRun(*Context) bool { return true }

func (p classifyPhase) Execute(ctx context.Context, c *Context) Outcome {
	if strings.TrimSpace(c.Text) == "" {
		return Outcome{Fatal: true, Errors: []error{ErrEmptyText}}
	}
	res, err := p.cls.Classify(ctx, c.Text, intent.Input{Owner: c.Owner, Now: c.Now})
	if res.Intent == "" {
		res.Intent = intent.Unknown
	}
	c.SetIntent(res)
	if err != nil {
		return Outcome{
			Warnings: []Warning{{Code: WarnClassifierUnavailable, Field: FieldIntent, Message: err.Error()}},
			Errors:   []error{err},
		}
	}
	return Outcome{Success: true}
}

type extractPhase struct{ ex Extractor }

func (extractPhase) Name() string { return PhaseExtract }

// Help needs no entities.
func (extractPhase) ShouldRun(c *Context) bool { return c.Intent.Intent != intent.Help }

func (p extractPhase) Execute(_ context.Context, c *Context) Outcome {
	ent := p.ex.Extract(c.Text, c.Now)
	conf := ent.Confidence

	if ent.Title != "" {
		c.SetTitle(ent.Title, conf[extract.FieldTitle], ent.Defaulted[extract.FieldTitle])
	}
	if !ent.Start.IsZero() && c.SetStart(ent.Start, conf[extract.FieldDate], conf[extract.FieldTime], ent.Spans) {
		c.Entities.Defaulted[extract.FieldDate] = ent.Defaulted[extract.FieldDate]
		c.Entities.Defaulted[extract.FieldTime] = ent.Defaulted[extract.FieldTime]
		c.Entities.RangeEnd = ent.RangeEnd
	}
	if !ent.End.IsZero() {
		c.SetEnd(ent.End, conf[extract.FieldEnd])
	}
	if ent.Location != "" {
		c.SetLocation(ent.Location, conf[extract.FieldLocation])
	}
	if len(ent.Contacts) > 0 {
		c.SetContacts(ent.Contacts, conf[extract.FieldContacts])
	}
	if ent.Recurrence != nil {
		c.SetRecurrence(*ent.Recurrence, conf[extract.FieldRecurrence])
	}
	if ent.Has(extract.FieldPriority) {
		c.SetPriority(ent.Priority, conf[extract.FieldPriority])
	}
	if ent.LeadMinutes != nil {
		c.SetLeadMinutes(*ent.LeadMinutes, conf[extract.FieldLeadTime])
	}
	c.Entities.PastEntry = ent.PastEntry
	for f, sp := range ent.Spans {
		if _, ok := c.Entities.Spans[f]; !ok {
			c.Entities.Spans[f] = sp
		}
	}
	return Outcome{Success: true}
}

type validatePhase struct{ v Validator }

func (validatePhase) Name() string            { return PhaseValidate }
func (validatePhase) ShouldRun(*Context) bool { return true }

func (p validatePhase) Execute(ctx context.Context, c *Context) Outcome {
	rep := p.v.Check(ctx, validate.Request{
		Owner:            c.Owner,
		Intent:           c.Intent.Intent,
		IntentConfidence: c.Intent.Confidence,
		Entities:         c.Entities,
		Now:              c.Now,
	})
	c.Validation = rep
	var out Outcome
	for _, is := range rep.Warnings {
		out.Warnings = append(out.Warnings, Warning{Code: is.Code, Field: is.Field, Message: is.Message})
	}
	if err := rep.Err(); err != nil {
		out.Errors = []error{err}
		return out
	}
	out.Success = true
	return out
}

type recurrencePhase struct {
	opt     recurrence.Options
	preview int
}

func (recurrencePhase) Name() string { return PhaseRecurrence }

func (recurrencePhase) ShouldRun(c *Context) bool {
	return c.Entities.Recurrence != nil && !c.Entities.Start.IsZero() && c.Intent.Intent.Writes() && c.Validation.OK()
}

func (p recurrencePhase) Execute(_ context.Context, c *Context) Outcome {
	rule := *c.Entities.Recurrence
	plan, err := recurrence.NewPlan(rule, c.Entities.Start, p.opt)
	if err != nil {
		c.ClearRecurrence()
		return Outcome{Warnings: []Warning{{Code: WarnRecurrenceInvalid, Field: extract.FieldRecurrence, Message: err.Error()}}}
	}
	first, ok := plan.Iter().Next()
	if !ok {
		c.ClearRecurrence()
		return Outcome{Warnings: []Warning{{Code: WarnRecurrenceInvalid, Field: extract.FieldRecurrence,
			Message: fmt.Sprintf("%s has no occurrence within %s", rule, plan.Horizon)}}}
	}
	// A cron rule may first fire on a later day than the extracted start.
	if !first.Equal(c.Entities.Start) {
		conf, _ := c.Confidence(extract.FieldRecurrence)
		if c.SetStartDate(first, conf) {
			plan, _ = recurrence.NewPlan(rule, c.Entities.Start, p.opt)
		}
	}
	c.Plan = &plan

	it := plan.Iter()
	c.Upcoming = c.Upcoming[:0]
	for len(c.Upcoming) < p.preview {
		t, ok := it.Next()
		if !ok {
			break
		}
		c.Upcoming = append(c.Upcoming, t)
	}
	return Outcome{Success: true}
}
