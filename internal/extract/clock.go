package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	hourPat   = `([01]?\d|2[0-3])`
	minutePat = `([0-5]\d)`
	meridiem  = `(?:\s*([ap])\.?m\b\.?)?`
	dayParts  = `(morning|afternoon|evening|night)`
)

var (
	rangeEndRe  = regexp.MustCompile(`(?i)` + hourPat + `:` + minutePat + `(\s*(?:-|–|until|till|to)\s*)` + hourPat + `:` + minutePat)
	untilRe     = regexp.MustCompile(`(?i)\b(?:until|till)\s+` + hourPat + `:` + minutePat + meridiem)
	durationRe  = regexp.MustCompile(`(?i)\bfor\s+(\d{1,3}|an?|one|half\s+an)\s+(minutes?|mins?|hours?|hrs?)\b`)
	hhmmRe      = regexp.MustCompile(`(?i)(?:\b(?:at|by|around)\s+)?\b` + hourPat + `:` + minutePat + meridiem)
	dottedRe    = regexp.MustCompile(`(?i)\b(?:at|by|around)\s+` + hourPat + `\.` + minutePat + meridiem)
	introHourRe = regexp.MustCompile(`(?i)\b(?:at|by|around)\s+(\d{1,2})` + meridiem + `(?:\s+o'?clock)?(?:\s+(?:in\s+the\s+)?` + dayParts + `)?\b`)
	ampmHourRe  = regexp.MustCompile(`(?i)\b(\d{1,2})\s*([ap])\.?m\b\.?`)
	partHourRe  = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(?:o'?clock\s+)?(?:in\s+the\s+)?` + dayParts + `\b`)
	afterDateRe = regexp.MustCompile(`(?i)^\s*,?\s*(\d{1,2})\b` + meridiem + `(?:\s+(?:in\s+the\s+)?` + dayParts + `)?`)
	dayPartRe   = regexp.MustCompile(`(?i)\b(?:in\s+the\s+|this\s+)?` + dayParts + `\b`)
)

// findExplicitTime resolves HH:MM times and the end of a range. End candidates
// come first so "14:00-15:00" leaves 14:00 for the start.
func findExplicitTime(s *scan) []candidate {
	text := s.masked()
	var out []candidate
	for _, m := range rangeEndRe.FindAllStringSubmatchIndex(text, -1) {
		h, _ := strconv.Atoi(text[m[8]:m[9]])
		mi, _ := strconv.Atoi(text[m[10]:m[11]])
		out = append(out, candidate{span: s.span(m[6], m[1]), field: FieldEnd, conf: ConfExplicit, apply: func(s *scan) {
			s.endClock = hm{h: h, m: mi, ok: true}
		}})
	}
	for _, m := range untilRe.FindAllStringSubmatchIndex(text, -1) {
		h, mi := clockFrom(text, m[2:])
		out = append(out, candidate{span: s.span(m[0], m[1]), field: FieldEnd, conf: ConfExplicit, apply: func(s *scan) {
			s.endClock = hm{h: h, m: mi, ok: true}
		}})
	}
	for _, m := range durationRe.FindAllStringSubmatchIndex(text, -1) {
		d := time.Duration(quantity(text[m[2]:m[3]]) * float64(unitDuration(text[m[4]:m[5]])))
		if d <= 0 {
			continue
		}
		out = append(out, candidate{span: s.span(m[0], m[1]), field: FieldEnd, conf: ConfQualified, apply: func(s *scan) {
			s.duration = d
		}})
	}
	for _, m := range hhmmRe.FindAllStringSubmatchIndex(text, -1) {
		if m[1] < len(text) && (isDigit(text[m[1]]) || text[m[1]] == ':') {
			continue
		}
		h, mi := clockFrom(text, m[2:])
		out = append(out, candidate{span: s.span(m[0], m[1]), field: FieldTime, conf: ConfExplicit, apply: func(s *scan) {
			s.clock = hm{h: h, m: mi, ok: true}
		}})
	}
	for _, m := range dottedRe.FindAllStringSubmatchIndex(text, -1) {
		if m[1] < len(text) && (isDigit(text[m[1]]) || (isDateGlue(text[m[1]]) && m[1]+1 < len(text) && isDigit(text[m[1]+1]))) {
			continue
		}
		h, mi := clockFrom(text, m[2:])
		out = append(out, candidate{span: s.span(m[0], m[1]), field: FieldTime, conf: ConfExplicit, apply: func(s *scan) {
			s.clock = hm{h: h, m: mi, ok: true}
		}})
	}
	return out
}

// clockFrom reads hour, minute and optional am/pm from three submatch pairs.
func clockFrom(text string, idx []int) (int, int) {
	h, _ := strconv.Atoi(text[idx[0]:idx[1]])
	mi, _ := strconv.Atoi(text[idx[2]:idx[3]])
	if idx[4] >= 0 {
		h = applyMeridiem(h, text[idx[4]:idx[5]])
	}
	return h, mi
}

func applyMeridiem(h int, ap string) int {
	switch strings.ToLower(ap) {
	case "a":
		if h == 12 {
			return 0
		}
	case "p":
		if h < 12 {
			return h + 12
		}
	}
	return h
}

// applyDayPart shifts an ambiguous 12-hour value into the named part of day.
func applyDayPart(h int, part string) int {
	switch strings.ToLower(part) {
	case "morning":
		if h == 12 {
			return 0
		}
	case "afternoon", "evening":
		if h < 12 {
			return h + 12
		}
	case "night":
		if h >= 6 && h < 12 {
			return h + 12
		}
	}
	return h
}

// hourCandidate builds a bare-hour candidate. Qualified hours (am/pm or a part
// of day) score higher than an hour that only has an introducer.
func (s *scan) hourCandidate(start, end int, hourRaw, ap, part string) (candidate, bool) {
	h, err := strconv.Atoi(hourRaw)
	if err != nil || h > 23 {
		return candidate{}, false
	}
	conf := ConfKeyword
	if ap != "" {
		if h < 1 || h > 12 {
			return candidate{}, false
		}
		h = applyMeridiem(h, ap)
		conf = ConfQualified
	}
	if part != "" {
		h = applyDayPart(h, part)
		conf = ConfQualified
	}
	return candidate{span: s.span(start, end), field: FieldTime, conf: conf, apply: func(s *scan) {
		s.clock = hm{h: h, ok: true}
	}}, true
}

func group(text string, m []int, i int) string {
	if m[2*i] < 0 {
		return ""
	}
	return text[m[2*i]:m[2*i+1]]
}

func findBareHour(s *scan) []candidate {
	text := s.masked()
	var out []candidate
	add := func(c candidate, ok bool) {
		if ok {
			out = append(out, c)
		}
	}
	for _, ds := range s.ent.Spans[FieldDate] {
		m := afterDateRe.FindStringSubmatchIndex(text[ds.End:])
		if m == nil {
			continue
		}
		rest := ds.End + m[1]
		if rest+1 < len(text) && strings.IndexByte(":./-", text[rest]) >= 0 && isDigit(text[rest+1]) {
			continue
		}
		add(s.hourCandidate(ds.End+m[2], rest, group(text[ds.End:], m, 1), group(text[ds.End:], m, 2), group(text[ds.End:], m, 3)))
	}
	for _, m := range introHourRe.FindAllStringSubmatchIndex(text, -1) {
		if m[1]+1 < len(text) && strings.IndexByte(":./", text[m[1]]) >= 0 && isDigit(text[m[1]+1]) {
			continue
		}
		add(s.hourCandidate(m[0], m[1], group(text, m, 1), group(text, m, 2), group(text, m, 3)))
	}
	for _, m := range ampmHourRe.FindAllStringSubmatchIndex(text, -1) {
		add(s.hourCandidate(m[0], m[1], group(text, m, 1), group(text, m, 2), ""))
	}
	for _, m := range partHourRe.FindAllStringSubmatchIndex(text, -1) {
		add(s.hourCandidate(m[0], m[1], group(text, m, 1), "", group(text, m, 2)))
	}
	return out
}

// findDayPart handles a part of day with no hour: it only resolves a time
// when nothing more explicit did.
func findDayPart(s *scan) []candidate {
	text := s.masked()
	var out []candidate
	for _, m := range dayPartRe.FindAllStringSubmatchIndex(text, -1) {
		part := strings.ToLower(text[m[2]:m[3]])
		out = append(out, candidate{span: s.span(m[0], m[1]), field: FieldTime, conf: ConfInferred, apply: func(s *scan) {
			s.clock = s.dayPartClock(part)
			s.ent.Defaulted[FieldTime] = true
		}})
	}
	return out
}

func weekdayCron(c hm) string {
	return fmt.Sprintf("%d %d * * 1-5", c.m, c.h)
}
