package extract

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

const mask = 0x00

type Options struct {
	// TwoDigitYearPivot: yy below it is 20yy, otherwise 19yy. Default 50.
	TwoDigitYearPivot int
	// WeekStart is the first day of "this week" / "next week". Zero is Sunday.
	WeekStart time.Weekday
	// Morning, Afternoon and Evening are {hour, minute} defaults for a bare
	// qualifier. Zero values take 08:00, 15:00 and 19:00.
	Morning   [2]int
	Afternoon [2]int
	Evening   [2]int
}

func (o Options) withDefaults() Options {
	if o.TwoDigitYearPivot <= 0 || o.TwoDigitYearPivot > 99 {
		o.TwoDigitYearPivot = 50
	}
	if o.Morning == [2]int{} {
		o.Morning = [2]int{8, 0}
	}
	if o.Afternoon == [2]int{} {
		o.Afternoon = [2]int{15, 0}
	}
	if o.Evening == [2]int{} {
		o.Evening = [2]int{19, 0}
	}
	return o
}

// candidate is one matcher proposal. field is the primary field; apply may
// resolve secondary fields through scan.resolve. An empty field only consumes
// the span and leaves bookkeeping to apply.
type candidate struct {
	span  Span
	field Field
	conf  float64
	apply func(*scan)
}

type matcher struct {
	name string
	find func(*scan) []candidate
}

// multi lists fields a message may resolve more than once.
var multi = map[Field]bool{FieldContacts: true}

type Extractor struct {
	opt      Options
	matchers []matcher
}

func New(opt Options) *Extractor {
	e := &Extractor{opt: opt.withDefaults()}
	e.matchers = []matcher{
		{"lead_time", findLeadTime},
		{"recurrence", findRecurrence},
		{"relative_offset", findRelativeOffset},
		{"numeric_date", findNumericDate},
		{"relative_day", findRelativeDay},
		{"explicit_time", findExplicitTime},
		{"bare_hour", findBareHour},
		{"day_part", findDayPart},
		{"priority", findPriority},
		{"location", findLocation},
		{"contacts", findContacts},
	}
	return e
}

// Order returns matcher names in execution order.
func (e *Extractor) Order() []string {
	out := make([]string, len(e.matchers))
	for i, m := range e.matchers {
		out[i] = m.name
	}
	return out
}

type civil struct {
	y  int
	m  time.Month
	d  int
	ok bool
}

func civilOf(t time.Time) civil {
	y, m, d := t.Date()
	return civil{y: y, m: m, d: d, ok: true}
}

type hm struct {
	h, m int
	ok   bool
}

// scan is the mutable state of one Extract call.
type scan struct {
	text string
	buf  []byte // text with consumed bytes masked out
	now  time.Time
	opt  Options
	ent  Entities

	consumed []Span

	date     civil
	clock    hm
	endClock hm
	duration time.Duration
	instant  time.Time
	dayPart  string
	weekdays bool
	count    int
	dateHint civil
	hintSpan Span
	rangeEnd civil
}

func (s *scan) masked() string { return string(s.buf) }

func (s *scan) free(sp Span) bool {
	for _, c := range s.consumed {
		if c.overlaps(sp) {
			return false
		}
	}
	return true
}

func (s *scan) span(start, end int) Span {
	return Span{Start: start, End: end, Text: s.text[start:end]}
}

// resolve records a field with its confidence and source span.
func (s *scan) resolve(f Field, conf float64, sp Span) {
	s.ent.Confidence[f] = conf
	if sp.End > sp.Start {
		s.ent.Spans[f] = append(s.ent.Spans[f], sp)
	}
}

func (s *scan) consume(sp Span) {
	s.consumed = append(s.consumed, sp)
	for i := sp.Start; i < sp.End; i++ {
		s.buf[i] = mask
	}
}

func (s *scan) today() civil { return civilOf(s.now) }

// Extract resolves entities from text relative to now. now carries the
// caller's location; all resolved instants are in that location.
func (e *Extractor) Extract(text string, now time.Time) Entities {
	text = norm.NFC.String(strings.TrimSpace(text))
	s := &scan{text: text, buf: []byte(text), now: now, opt: e.opt, ent: newEntities()}
	s.ent.PastEntry = pastEntryRe.MatchString(text)

	for _, m := range e.matchers {
		for _, c := range m.find(s) {
			if !s.free(c.span) {
				continue
			}
			if c.field != "" && !multi[c.field] && s.ent.Has(c.field) {
				continue
			}
			s.consume(c.span)
			if c.field != "" {
				s.resolve(c.field, c.conf, c.span)
			}
			if c.apply != nil {
				c.apply(s)
			}
		}
	}
	s.finalize()
	return s.ent
}

func (s *scan) finalize() {
	loc := s.now.Location()
	ent := &s.ent

	switch {
	case !s.instant.IsZero():
		ent.Start = s.instant
	case s.date.ok || s.clock.ok:
		date, clock := s.date, s.clock
		if !clock.ok && s.dayPart != "" {
			clock = s.dayPartClock(s.dayPart)
			ent.Confidence[FieldTime] = ConfInferred
			ent.Defaulted[FieldTime] = true
		}
		if !date.ok && s.dateHint.ok {
			date = s.dateHint
			s.resolve(FieldDate, ConfKeyword, s.hintSpan)
		}
		if !clock.ok {
			clock = hm{ok: true}
			ent.Confidence[FieldTime] = ConfTimeGuess
			ent.Defaulted[FieldTime] = true
		}
		if !date.ok {
			date = s.today()
			if !time.Date(date.y, date.m, date.d, clock.h, clock.m, 0, 0, loc).After(s.now) {
				date = civilOf(s.now.AddDate(0, 0, 1))
			}
			ent.Confidence[FieldDate] = ConfDateGuess
			ent.Defaulted[FieldDate] = true
		}
		ent.Start = time.Date(date.y, date.m, date.d, clock.h, clock.m, 0, 0, loc)
	case s.dateHint.ok:
		ent.Start = time.Date(s.dateHint.y, s.dateHint.m, s.dateHint.d, 0, 0, 0, 0, loc)
		s.resolve(FieldDate, ConfKeyword, s.hintSpan)
		ent.Confidence[FieldTime] = ConfTimeGuess
		ent.Defaulted[FieldTime] = true
	}

	if !ent.Start.IsZero() {
		switch {
		case s.endClock.ok:
			end := time.Date(ent.Start.Year(), ent.Start.Month(), ent.Start.Day(), s.endClock.h, s.endClock.m, 0, 0, loc)
			if !end.After(ent.Start) && s.endClock.h < 12 && ent.Start.Hour() >= 12 {
				end = end.Add(12 * time.Hour)
			}
			ent.End = end
		case s.duration > 0:
			ent.End = ent.Start.Add(s.duration)
		}
	} else {
		delete(ent.Confidence, FieldEnd)
		delete(ent.Spans, FieldEnd)
	}

	if s.rangeEnd.ok && !ent.Start.IsZero() {
		ent.RangeEnd = time.Date(s.rangeEnd.y, s.rangeEnd.m, s.rangeEnd.d, 0, 0, 0, 0, loc)
	}

	if ent.Recurrence != nil {
		if s.weekdays {
			ent.Recurrence.Cron = weekdayCron(hm{h: ent.Start.Hour(), m: ent.Start.Minute()})
		}
		if s.count > 0 {
			ent.Recurrence.Count = s.count
		}
	}

	s.finalizeTitle()
}

func (s *scan) dayPartClock(part string) hm {
	var c [2]int
	switch part {
	case "morning":
		c = s.opt.Morning
	case "afternoon":
		c = s.opt.Afternoon
	default:
		c = s.opt.Evening
	}
	return hm{h: c[0], m: c[1], ok: true}
}
