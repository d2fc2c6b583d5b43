package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"agendabot/internal/recurrence"
)

const weekdayNames = `(sunday|monday|tuesday|wednesday|thursday|friday|saturday)`

var (
	leadRe = regexp.MustCompile(`(?i)\b(\d{1,3}|an?|one|half\s+an)\s*(minutes?|mins?|m|hours?|hrs?|h)\s+(?:before(?:hand)?|earlier|ahead|in\s+advance|prior)\b`)

	everyNRe       = regexp.MustCompile(`(?i)\bevery\s+(\d{1,3})\s+(hours?|days?|weeks?|months?|years?)\b`)
	everyUnitRe    = regexp.MustCompile(`(?i)\bevery\s+(other\s+)?(hour|day|week|month|year)\b`)
	everyWeekdayRe = regexp.MustCompile(`(?i)\b(?:every\s+(other\s+)?` + weekdayNames + `|on\s+` + weekdayNames + `s)\b`)
	weekdaysOnlyRe = regexp.MustCompile(`(?i)\b(?:every|on)\s+weekdays?\b`)
	adverbRe       = regexp.MustCompile(`(?i)\b(hourly|daily|weekly|monthly|yearly|annually)\b`)
	timesRe        = regexp.MustCompile(`(?i)\b(?:for\s+)?(\d{1,3})\s+times\b`)

	priorityRe = regexp.MustCompile(`(?i)(!{3,})|\b(urgent(?:ly)?|asap|a\.s\.a\.p\.?|critical|important|high\s+priority)\b`)

	locationRe = regexp.MustCompile(`(?i)(?:\b(?:at|in)\s+the\s+|@)([\p{L}\p{N}][\p{L}\p{N}'’&-]*(?:\s+[\p{L}\p{N}'’&-]+){0,5}?)(?:\s*[,.;!?\x00]|\s*$|\s+(?:with|at|on|in|to|for|and|by|from|until|before|after)\b)`)
)

func findLeadTime(s *scan) []candidate {
	text := s.masked()
	var out []candidate
	for _, m := range leadRe.FindAllStringSubmatchIndex(text, -1) {
		mins := int(math.Round(quantity(text[m[2]:m[3]]) * unitDuration(text[m[4]:m[5]]).Minutes()))
		out = append(out, candidate{span: s.span(m[0], m[1]), field: FieldLeadTime, conf: ConfExplicit, apply: func(s *scan) {
			s.ent.LeadMinutes = &mins
		}})
	}
	return out
}

var frequencyOf = map[string]recurrence.Frequency{
	"hour": recurrence.Hourly, "day": recurrence.Daily, "week": recurrence.Weekly,
	"month": recurrence.Monthly, "year": recurrence.Yearly,
	"hourly": recurrence.Hourly, "daily": recurrence.Daily, "weekly": recurrence.Weekly,
	"monthly": recurrence.Monthly, "yearly": recurrence.Yearly, "annually": recurrence.Yearly,
}

func unitFrequency(unit string) recurrence.Frequency {
	return frequencyOf[strings.TrimSuffix(strings.ToLower(unit), "s")]
}

func findRecurrence(s *scan) []candidate {
	text := s.masked()
	var out []candidate
	rule := func(m []int, r recurrence.Rule, extra func(*scan)) {
		out = append(out, candidate{span: s.span(m[0], m[1]), field: FieldRecurrence, conf: ConfQualified, apply: func(s *scan) {
			r := r
			s.ent.Recurrence = &r
			if extra != nil {
				extra(s)
			}
		}})
	}
	for _, m := range everyNRe.FindAllStringSubmatchIndex(text, -1) {
		n, _ := strconv.Atoi(text[m[2]:m[3]])
		rule(m, recurrence.Rule{Frequency: unitFrequency(text[m[4]:m[5]]), Interval: max(n, 1)}, nil)
	}
	for _, m := range weekdaysOnlyRe.FindAllStringSubmatchIndex(text, -1) {
		rule(m, recurrence.Rule{Frequency: recurrence.Cron}, func(s *scan) { s.weekdays = true })
	}
	for _, m := range everyWeekdayRe.FindAllStringSubmatchIndex(text, -1) {
		interval := 1
		if m[2] >= 0 {
			interval = 2
		}
		name := group(text, m, 2)
		if name == "" {
			name = group(text, m, 3)
		}
		wd := weekdays[strings.ToLower(name)]
		sp := s.span(m[0], m[1])
		rule(m, recurrence.Rule{Frequency: recurrence.Weekly, Interval: interval}, func(s *scan) {
			s.dateHint = s.nextWeekday(wd)
			s.hintSpan = sp
		})
	}
	for _, m := range everyUnitRe.FindAllStringSubmatchIndex(text, -1) {
		interval := 1
		if m[2] >= 0 {
			interval = 2
		}
		rule(m, recurrence.Rule{Frequency: unitFrequency(text[m[4]:m[5]]), Interval: interval}, nil)
	}
	for _, m := range adverbRe.FindAllStringSubmatchIndex(text, -1) {
		rule(m, recurrence.Rule{Frequency: frequencyOf[strings.ToLower(text[m[2]:m[3]])], Interval: 1}, nil)
	}
	for _, m := range timesRe.FindAllStringSubmatchIndex(text, -1) {
		n, _ := strconv.Atoi(text[m[2]:m[3]])
		sp := s.span(m[0], m[1])
		out = append(out, candidate{span: sp, apply: func(s *scan) {
			s.count = n
			s.ent.Spans[FieldRecurrence] = append(s.ent.Spans[FieldRecurrence], sp)
		}})
	}
	return out
}

func findPriority(s *scan) []candidate {
	text := s.masked()
	var out []candidate
	for _, m := range priorityRe.FindAllStringSubmatchIndex(text, -1) {
		p := PriorityUrgent
		if m[4] >= 0 {
			switch w := strings.ToLower(text[m[4]:m[5]]); {
			case w == "important", strings.HasPrefix(w, "high"):
				p = PriorityImportant
			}
		}
		out = append(out, candidate{span: s.span(m[0], m[1]), field: FieldPriority, conf: ConfQualified, apply: func(s *scan) {
			s.ent.Priority = p
		}})
	}
	return out
}

func findLocation(s *scan) []candidate {
	text := s.masked()
	var out []candidate
	for _, m := range locationRe.FindAllStringSubmatchIndex(text, -1) {
		place := strings.TrimSpace(text[m[2]:m[3]])
		if place == "" {
			continue
		}
		out = append(out, candidate{span: s.span(m[0], m[3]), field: FieldLocation, conf: ConfKeyword, apply: func(s *scan) {
			s.ent.Location = place
		}})
	}
	return out
}

var (
	contactIntroducers = []string{"with", "עם"}
	contactStopwords   = map[string]bool{
		"me": true, "my": true, "the": true, "a": true, "an": true, "us": true, "him": true, "her": true,
		"them": true, "you": true, "your": true, "our": true, "his": true, "their": true, "it": true,
		"this": true, "that": true, "everyone": true, "everybody": true, "someone": true,
	}
)

// findContacts scans runes rather than using a regexp word boundary, which
// only understands ASCII letters.
func findContacts(s *scan) []candidate {
	text := s.masked()
	var out []candidate
	for i := 0; i < len(text); {
		n := introducerAt(text, i)
		if n == 0 {
			_, size := utf8.DecodeRuneInString(text[i:])
			i += size
			continue
		}
		names, end := readContactNames(text, i+n)
		if len(names) > 0 {
			out = append(out, candidate{span: s.span(i, end), field: FieldContacts, conf: ConfKeyword, apply: func(s *scan) {
				for _, name := range names {
					s.ent.Contacts = appendUnique(s.ent.Contacts, name)
				}
			}})
			i = end
			continue
		}
		i += n
	}
	return out
}

// introducerAt returns the length of an introducer word starting at i, or 0.
// The word must not continue a preceding word and must be followed by space.
func introducerAt(text string, i int) int {
	if i > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:i])
		if unicode.IsLetter(prev) {
			return 0
		}
	}
	for _, w := range contactIntroducers {
		if len(text)-i <= len(w) || !strings.EqualFold(text[i:i+len(w)], w) {
			continue
		}
		next, _ := utf8.DecodeRuneInString(text[i+len(w):])
		if unicode.IsSpace(next) {
			return len(w)
		}
	}
	return 0
}

func readContactNames(text string, pos int) ([]string, int) {
	var names []string
	end := pos
	for {
		p := skipSpace(text, pos)
		word, wend := readWord(text, p)
		if word == "" || contactStopwords[strings.ToLower(word)] {
			break
		}
		if len(names) > 0 && startsLower(word) && startsUpper(names[0]) {
			break
		}
		name := word
		for startsUpper(word) {
			q := skipSpace(text, wend)
			next, nend := readWord(text, q)
			if next == "" || !startsUpper(next) {
				break
			}
			name, wend = name+" "+next, nend
		}
		names = append(names, name)
		end = wend

		q := skipSpace(text, wend)
		switch {
		case strings.HasPrefix(strings.ToLower(text[q:]), "and ") || strings.HasPrefix(text[q:], "& "):
			pos = q + strings.IndexByte(text[q:], ' ')
			continue
		case strings.HasPrefix(text[q:], "ו"):
			if w, _ := readWord(text, q+len("ו")); w != "" {
				pos = q + len("ו")
				continue
			}
		}
		break
	}
	return names, end
}

func skipSpace(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}

// readWord reads a run of letters and combining marks; an apostrophe or hyphen
// is kept only between letters.
func readWord(text string, i int) (string, int) {
	start := i
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case unicode.IsLetter(r) || unicode.Is(unicode.Mn, r):
			i += size
			continue
		case (r == '\'' || r == '’' || r == '-') && i > start:
			if next, _ := utf8.DecodeRuneInString(text[i+size:]); unicode.IsLetter(next) {
				i += size
				continue
			}
		}
		break
	}
	return text[start:i], i
}

func startsUpper(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsUpper(r)
}

func startsLower(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsLower(r)
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return list
		}
	}
	return append(list, v)
}
