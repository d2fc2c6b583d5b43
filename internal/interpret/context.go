package interpret

import (
	"fmt"
	"slices"
	"time"

	"agendabot/internal/extract"
	"agendabot/internal/intent"
	"agendabot/internal/recurrence"
	"agendabot/internal/validate"
)

// Warning codes.
const (
	WarnFieldConflict         = "field_conflict"
	WarnClassifierUnavailable = "classifier_unavailable"
	WarnRecurrenceInvalid     = "recurrence_invalid"
	WarnValidation            = "validation"
)

// FieldIntent is the ledger key for the resolved intent.
const FieldIntent = validate.FieldIntent

type Warning struct {
	Phase   string        `json:"phase"`
	Code    string        `json:"code"`
	Field   extract.Field `json:"field,omitempty"`
	Message string        `json:"message"`
}

func (w Warning) String() string {
	if w.Field != "" {
		return fmt.Sprintf("%s/%s[%s]: %s", w.Phase, w.Code, w.Field, w.Message)
	}
	return fmt.Sprintf("%s/%s: %s", w.Phase, w.Code, w.Message)
}

// Context is the state of one interpretation run. Resolved values are written
// through the Set methods, which keep a per-field confidence ledger: a value is
// only replaced by a strictly more confident one, and every refused write is
// kept as a field_conflict warning.
type Context struct {
	Text     string
	Owner    string
	Location *time.Location
	Now      time.Time

	Intent     intent.Result
	Entities   extract.Entities
	Validation validate.Report
	Plan       *recurrence.Plan
	// Upcoming previews the first occurrences of a recurring request.
	Upcoming []time.Time

	Warnings []Warning
	Errors   []error
	Terminal bool

	phase  string
	ledger map[extract.Field]float64
}

func newContext(req Request) *Context {
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Context{
		Text:     req.Text,
		Owner:    req.Owner,
		Location: loc,
		Now:      req.Now.In(loc),
		Intent:   intent.Result{Intent: intent.Unknown},
		Entities: extract.Entities{
			Priority:   extract.PriorityNormal,
			Confidence: map[extract.Field]float64{},
			Spans:      map[extract.Field][]extract.Span{},
			Defaulted:  map[extract.Field]bool{},
		},
		ledger: map[extract.Field]float64{},
	}
}

// Confidence returns the ledger entry for a field.
func (c *Context) Confidence(f extract.Field) (float64, bool) {
	v, ok := c.ledger[f]
	return v, ok
}

func (c *Context) warn(code string, f extract.Field, msg string) {
	c.Warnings = append(c.Warnings, Warning{Phase: c.phase, Code: code, Field: f, Message: msg})
}

// claim reserves f at conf. It fails when the field already holds an equal or
// higher confidence.
func (c *Context) claim(f extract.Field, conf float64, value any) bool {
	if prev, ok := c.ledger[f]; ok && prev >= conf {
		c.warn(WarnFieldConflict, f, fmt.Sprintf("kept value at %.2f, refused %v at %.2f", prev, value, conf))
		return false
	}
	c.ledger[f] = conf
	if f != FieldIntent {
		c.Entities.Confidence[f] = conf
	}
	return true
}

func (c *Context) SetIntent(r intent.Result) bool {
	if !c.claim(FieldIntent, r.Confidence, r.Intent) {
		return false
	}
	c.Intent = r
	return true
}

func (c *Context) SetTitle(title string, conf float64, defaulted bool) bool {
	if !c.claim(extract.FieldTitle, conf, fmt.Sprintf("%q", title)) {
		return false
	}
	c.Entities.Title = title
	c.Entities.Defaulted[extract.FieldTitle] = defaulted
	return true
}

// SetStart writes the start instant. The date and time halves are ledgered
// separately; the instant changes only when neither half is refused.
func (c *Context) SetStart(t time.Time, dateConf, timeConf float64, spans map[extract.Field][]extract.Span) bool {
	pd, hasD := c.ledger[extract.FieldDate]
	pt, hasT := c.ledger[extract.FieldTime]
	if (hasD && pd >= dateConf) || (hasT && pt >= timeConf) {
		c.warn(WarnFieldConflict, extract.FieldDate, fmt.Sprintf("kept %s, refused %s", c.Entities.Start.Format(time.RFC3339), t.Format(time.RFC3339)))
		return false
	}
	c.claim(extract.FieldDate, dateConf, nil)
	c.claim(extract.FieldTime, timeConf, nil)
	c.Entities.Start = t
	for _, f := range []extract.Field{extract.FieldDate, extract.FieldTime} {
		if sp, ok := spans[f]; ok {
			c.Entities.Spans[f] = slices.Clone(sp)
		}
	}
	return true
}

func (c *Context) SetEnd(t time.Time, conf float64) bool {
	if !c.claim(extract.FieldEnd, conf, t.Format(time.RFC3339)) {
		return false
	}
	c.Entities.End = t
	return true
}

func (c *Context) SetLocation(loc string, conf float64) bool {
	if !c.claim(extract.FieldLocation, conf, fmt.Sprintf("%q", loc)) {
		return false
	}
	c.Entities.Location = loc
	return true
}

func (c *Context) SetContacts(names []string, conf float64) bool {
	if !c.claim(extract.FieldContacts, conf, names) {
		return false
	}
	c.Entities.Contacts = slices.Clone(names)
	return true
}

func (c *Context) SetRecurrence(r recurrence.Rule, conf float64) bool {
	if !c.claim(extract.FieldRecurrence, conf, r.String()) {
		return false
	}
	c.Entities.Recurrence = &r
	return true
}

func (c *Context) SetPriority(p extract.Priority, conf float64) bool {
	if !c.claim(extract.FieldPriority, conf, p) {
		return false
	}
	c.Entities.Priority = p
	return true
}

func (c *Context) SetLeadMinutes(m int, conf float64) bool {
	if !c.claim(extract.FieldLeadTime, conf, m) {
		return false
	}
	c.Entities.LeadMinutes = &m
	return true
}

// ClearRecurrence drops a rule that could not be planned.
func (c *Context) ClearRecurrence() {
	c.Entities.Recurrence = nil
	delete(c.ledger, extract.FieldRecurrence)
	delete(c.Entities.Confidence, extract.FieldRecurrence)
}

// SetStartDate moves Start to day's calendar date, keeping its clock time.
// Only the date half is ledgered.
func (c *Context) SetStartDate(day time.Time, conf float64) bool {
	if c.Entities.Start.IsZero() {
		return false
	}
	if !c.claim(extract.FieldDate, conf, day.Format("2006-01-02")) {
		return false
	}
	s := c.Entities.Start
	y, m, d := day.In(s.Location()).Date()
	c.Entities.Start = time.Date(y, m, d, s.Hour(), s.Minute(), s.Second(), 0, s.Location())
	c.Entities.Defaulted[extract.FieldDate] = false
	return true
}
