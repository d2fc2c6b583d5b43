// Package extract pulls dates, times and entities out of free text.
//
// Extraction is deterministic: an ordered list of matchers runs over the
// normalized input, each proposing candidates with a byte span and a
// confidence. A candidate that overlaps text already consumed by an earlier
// matcher is discarded, so date matchers always win over time matchers for
// the same digits.
package extract

import (
	"sort"
	"time"

	"agendabot/internal/recurrence"
)

type Field string

const (
	FieldTitle      Field = "title"
	FieldDate       Field = "date"
	FieldTime       Field = "time"
	FieldEnd        Field = "end"
	FieldLocation   Field = "location"
	FieldContacts   Field = "contacts"
	FieldRecurrence Field = "recurrence"
	FieldPriority   Field = "priority"
	FieldLeadTime   Field = "lead_time"
)

type Priority string

const (
	PriorityNormal    Priority = "normal"
	PriorityImportant Priority = "important"
	PriorityUrgent    Priority = "urgent"
)

// Confidence levels shared by the matchers.
const (
	ConfExplicit  = 0.95
	ConfQualified = 0.90
	ConfKeyword   = 0.85
	ConfDateGuess = 0.75
	ConfInferred  = 0.75
	ConfTimeGuess = 0.70
	ConfFallback  = 0.40
)

// Span is a byte range of the normalized input.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

func (s Span) overlaps(o Span) bool { return s.Start < o.End && o.Start < s.End }

// Entities is everything the extractor resolved from one message. A zero Start
// means no instant was resolved; otherwise Spans[FieldDate] or Spans[FieldTime]
// names the text that produced it.
type Entities struct {
	Title       string
	Start       time.Time
	End         time.Time
	Location    string
	Contacts    []string
	Recurrence  *recurrence.Rule
	Priority    Priority
	LeadMinutes *int
	PastEntry   bool
	// RangeEnd is the exclusive end of a named period ("next week") when the
	// date came from one.
	RangeEnd time.Time

	Confidence map[Field]float64
	Spans      map[Field][]Span
	// Defaulted marks fields filled in by a fallback rather than by the text.
	Defaulted map[Field]bool
}

func newEntities() Entities {
	return Entities{
		Priority:   PriorityNormal,
		Confidence: map[Field]float64{},
		Spans:      map[Field][]Span{},
		Defaulted:  map[Field]bool{},
	}
}

func (e Entities) Has(f Field) bool {
	_, ok := e.Confidence[f]
	return ok
}

// StartSpans returns the spans behind Start, in text order.
func (e Entities) StartSpans() []Span {
	out := append(append([]Span(nil), e.Spans[FieldDate]...), e.Spans[FieldTime]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
