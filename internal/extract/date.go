package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	offsetRe      = regexp.MustCompile(`(?i)\bin\s+(\d{1,4}|an?|one|half\s+an)\s+(minutes?|mins?|hours?|hrs?|days?|weeks?)\b`)
	numericDateRe = regexp.MustCompile(`(?i)(?:\bon\s+)?(\d{1,2})[./-](\d{1,2})(?:[./-](\d{4}|\d{2}))?`)
	unitAfterRe   = regexp.MustCompile(`(?i)^\s*(?:(?:hours?|hrs?|h|minutes?|mins?|days?)\b|%)`)
	relDayRe      = regexp.MustCompile(`(?i)\b(?:on\s+)?(the\s+day\s+after\s+tomorrow|day\s+after\s+tomorrow|today|tonight|tomorrow|yesterday|this\s+week|next\s+week|this\s+month|next\s+month)\b`)
	weekdayRe     = regexp.MustCompile(`(?i)\b(?:on\s+)?(?:(next|this|coming)\s+)?(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
	timeWordRe    = regexp.MustCompile(`(?i)\b(?:at|by|around)\s+$`)
	pastEntryRe   = regexp.MustCompile(`(?i)^\s*(?:log|record|note\s+that|i\s+had|i\s+went)\b`)
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

// quantity parses "15", "a", "an", "one" and "half an".
func quantity(raw string) float64 {
	raw = strings.ToLower(strings.Join(strings.Fields(raw), " "))
	switch raw {
	case "a", "an", "one":
		return 1
	case "half an":
		return 0.5
	}
	n, _ := strconv.Atoi(raw)
	return float64(n)
}

func unitDuration(unit string) time.Duration {
	switch u := strings.ToLower(unit); {
	case strings.HasPrefix(u, "w"):
		return 7 * 24 * time.Hour
	case strings.HasPrefix(u, "d"):
		return 24 * time.Hour
	case strings.HasPrefix(u, "h"):
		return time.Hour
	default:
		return time.Minute
	}
}

func findRelativeOffset(s *scan) []candidate {
	var out []candidate
	for _, m := range offsetRe.FindAllStringSubmatchIndex(s.masked(), -1) {
		qty := quantity(s.text[m[2]:m[3]])
		unit := unitDuration(s.text[m[4]:m[5]])
		if qty <= 0 {
			continue
		}
		sp := s.span(m[0], m[1])
		out = append(out, candidate{span: sp, field: FieldDate, conf: ConfQualified, apply: func(s *scan) {
			if unit >= 24*time.Hour {
				s.date = civilOf(s.now.AddDate(0, 0, int(qty)*int(unit/(24*time.Hour))))
				return
			}
			s.instant = s.now.Add(time.Duration(qty * float64(unit)))
			s.resolve(FieldTime, ConfQualified, sp)
		}})
	}
	return out
}

func findNumericDate(s *scan) []candidate {
	text := s.masked()
	var out []candidate
	for _, m := range numericDateRe.FindAllStringSubmatchIndex(text, -1) {
		if m[2] > 0 && isDateGlue(text[m[2]-1]) {
			continue
		}
		if m[1] < len(text) {
			next := text[m[1]]
			if isDigit(next) || (strings.IndexByte("./-:", next) >= 0 && m[1]+1 < len(text) && isDigit(text[m[1]+1])) {
				continue
			}
			if unitAfterRe.MatchString(text[m[1]:]) {
				continue
			}
		}
		day, _ := strconv.Atoi(text[m[2]:m[3]])
		month, _ := strconv.Atoi(text[m[4]:m[5]])
		yearRaw := ""
		if m[6] >= 0 {
			yearRaw = text[m[6]:m[7]]
		}
		// "at 10.30" is a dotted time.
		if yearRaw == "" && timeWordRe.MatchString(text[:m[2]]) {
			continue
		}
		c, ok := s.resolveNumericDate(day, month, yearRaw)
		if !ok {
			continue
		}
		out = append(out, candidate{span: s.span(m[0], m[1]), field: FieldDate, conf: ConfExplicit, apply: func(s *scan) {
			s.date = c
		}})
	}
	return out
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isDateGlue(b byte) bool { return isDigit(b) || strings.IndexByte("./-:", b) >= 0 }

// resolveNumericDate applies the two-digit year pivot and, for a date without
// a year, rolls forward to next year once the day has passed.
func (s *scan) resolveNumericDate(day, month int, yearRaw string) (civil, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return civil{}, false
	}
	year := s.now.Year()
	switch len(yearRaw) {
	case 0:
		if time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Before(dateOnly(s.today())) {
			year++
		}
	case 2:
		yy, _ := strconv.Atoi(yearRaw)
		if yy < s.opt.TwoDigitYearPivot {
			year = 2000 + yy
		} else {
			year = 1900 + yy
		}
	case 4:
		year, _ = strconv.Atoi(yearRaw)
	default:
		return civil{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != time.Month(month) {
		return civil{}, false
	}
	return civil{y: year, m: time.Month(month), d: day, ok: true}, true
}

func dateOnly(c civil) time.Time { return time.Date(c.y, c.m, c.d, 0, 0, 0, 0, time.UTC) }

func civilAdd(c civil, days int) civil { return civilOf(dateOnly(c).AddDate(0, 0, days)) }

func (s *scan) weekStart(c civil) civil {
	back := (int(dateOnly(c).Weekday()) - int(s.opt.WeekStart) + 7) % 7
	return civilAdd(c, -back)
}

func findRelativeDay(s *scan) []candidate {
	text := s.masked()
	var out []candidate
	for _, m := range relDayRe.FindAllStringSubmatchIndex(text, -1) {
		key := strings.ToLower(strings.Join(strings.Fields(text[m[2]:m[3]]), " "))
		key = strings.TrimPrefix(key, "the ")
		conf := ConfQualified
		if strings.HasSuffix(key, "week") || strings.HasSuffix(key, "month") {
			conf = ConfKeyword
		}
		out = append(out, candidate{span: s.span(m[0], m[1]), field: FieldDate, conf: conf, apply: func(s *scan) {
			s.applyRelativeDay(key)
		}})
	}
	for _, m := range weekdayRe.FindAllStringSubmatchIndex(text, -1) {
		qual := ""
		if m[2] >= 0 {
			qual = strings.ToLower(text[m[2]:m[3]])
		}
		wd := weekdays[strings.ToLower(text[m[4]:m[5]])]
		out = append(out, candidate{span: s.span(m[0], m[1]), field: FieldDate, conf: ConfQualified, apply: func(s *scan) {
			if qual == "next" {
				s.date = s.weekdayNextWeek(wd)
				return
			}
			s.date = s.nextWeekday(wd)
		}})
	}
	return out
}

func (s *scan) applyRelativeDay(key string) {
	today := s.today()
	switch key {
	case "today":
		s.date = today
	case "tonight":
		s.date = today
		s.dayPart = "evening"
	case "tomorrow":
		s.date = civilAdd(today, 1)
	case "day after tomorrow":
		s.date = civilAdd(today, 2)
	case "yesterday":
		s.date = civilAdd(today, -1)
		s.ent.PastEntry = true
	case "this week":
		s.date = s.weekStart(today)
		s.rangeEnd = civilAdd(s.date, 7)
	case "next week":
		s.date = civilAdd(s.weekStart(today), 7)
		s.rangeEnd = civilAdd(s.date, 7)
	case "this month":
		s.date = civilOf(time.Date(today.y, today.m, 1, 0, 0, 0, 0, time.UTC))
		s.rangeEnd = civilOf(time.Date(today.y, today.m+1, 1, 0, 0, 0, 0, time.UTC))
	case "next month":
		s.date = civilOf(time.Date(today.y, today.m+1, 1, 0, 0, 0, 0, time.UTC))
		s.rangeEnd = civilOf(time.Date(today.y, today.m+2, 1, 0, 0, 0, 0, time.UTC))
	}
}

// nextWeekday returns the next wd on or after today.
func (s *scan) nextWeekday(wd time.Weekday) civil {
	today := s.today()
	delta := (int(wd) - int(dateOnly(today).Weekday()) + 7) % 7
	return civilAdd(today, delta)
}

// weekdayNextWeek returns wd within the week after the current one.
func (s *scan) weekdayNextWeek(wd time.Weekday) civil {
	next := civilAdd(s.weekStart(s.today()), 7)
	return civilAdd(next, (int(wd)-int(s.opt.WeekStart)+7)%7)
}
