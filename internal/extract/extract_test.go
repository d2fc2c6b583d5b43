package extract

import (
	"reflect"
	"testing"
	"time"

	"agendabot/internal/recurrence"
)

var plus2 = time.FixedZone("+02:00", 2*60*60)

// Wednesday 1 October 2025, 10:00 local.
var testNow = time.Date(2025, 10, 1, 10, 0, 0, 0, plus2)

func extract(t *testing.T, text string) Entities {
	t.Helper()
	return New(Options{}).Extract(text, testNow)
}

func wantStart(t *testing.T, e Entities, want time.Time) {
	t.Helper()
	if !e.Start.Equal(want) {
		t.Fatalf("start: got %v want %v", e.Start, want)
	}
}

func TestScenario(t *testing.T) {
	t.Parallel()

	e := extract(t, "meeting on 18.10 at 14 with Moti, bring cash")
	wantStart(t, e, time.Date(2025, 10, 18, 14, 0, 0, 0, plus2))
	if e.Title != "meeting, bring cash" {
		t.Fatalf("title %q", e.Title)
	}
	if !reflect.DeepEqual(e.Contacts, []string{"Moti"}) {
		t.Fatalf("contacts %v", e.Contacts)
	}
	if e.Confidence[FieldDate] < 0.95 || e.Confidence[FieldTime] < 0.85 {
		t.Fatalf("confidence %v", e.Confidence)
	}
	if len(e.Spans[FieldDate]) == 0 || len(e.Spans[FieldTime]) == 0 {
		t.Fatalf("resolved instant without spans: %v", e.Spans)
	}
}

func TestSeparatorInvariance(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"dentist 18.10", "dentist 18/10", "dentist 18-10"} {
		e := extract(t, in)
		if e.Start.Month() != time.October || e.Start.Day() != 18 {
			t.Fatalf("%q: got %v", in, e.Start)
		}
		if e.Confidence[FieldDate] != ConfExplicit {
			t.Fatalf("%q: date confidence %v", in, e.Confidence[FieldDate])
		}
	}
}

func TestDateBeforeTimeOrdering(t *testing.T) {
	t.Parallel()

	e := extract(t, "standup 18.10 14")
	wantStart(t, e, time.Date(2025, 10, 18, 14, 0, 0, 0, plus2))
	if e.Spans[FieldDate][0].Text != "18.10" || e.Spans[FieldTime][0].Text != "14" {
		t.Fatalf("spans %+v", e.Spans)
	}

	order := New(Options{}).Order()
	idx := map[string]int{}
	for i, n := range order {
		idx[n] = i
	}
	for _, date := range []string{"numeric_date", "relative_day", "relative_offset"} {
		for _, tm := range []string{"explicit_time", "bare_hour", "day_part"} {
			if idx[date] >= idx[tm] {
				t.Fatalf("%s must run before %s: %v", date, tm, order)
			}
		}
	}
}

func TestNumericDateYears(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Time
	}{
		{"party 3.11.2026", time.Date(2026, 11, 3, 0, 0, 0, 0, plus2)},
		{"party 3/11/26", time.Date(2026, 11, 3, 0, 0, 0, 0, plus2)},
		{"party 3/11/75", time.Date(1975, 11, 3, 0, 0, 0, 0, plus2)},
		{"party 5.9", time.Date(2026, 9, 5, 0, 0, 0, 0, plus2)}, // already past this year
		{"party 1.10", time.Date(2025, 10, 1, 0, 0, 0, 0, plus2)},
	}
	for _, tc := range cases {
		e := extract(t, tc.in)
		if !e.Start.Equal(tc.want) {
			t.Fatalf("%q: got %v want %v", tc.in, e.Start, tc.want)
		}
		if e.Confidence[FieldTime] != ConfTimeGuess || !e.Defaulted[FieldTime] {
			t.Fatalf("%q: missing time should default with low confidence", tc.in)
		}
	}

	if e := extract(t, "note 31.02"); !e.Start.IsZero() {
		t.Fatalf("invalid date resolved to %v", e.Start)
	}
	if e := extract(t, "run 1.5 hours"); e.Has(FieldDate) {
		t.Fatalf("decimal duration read as a date")
	}
}

func TestRelativeDays(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Time
	}{
		{"gym today at 18:30", time.Date(2025, 10, 1, 18, 30, 0, 0, plus2)},
		{"gym tomorrow at 7am", time.Date(2025, 10, 2, 7, 0, 0, 0, plus2)},
		{"gym the day after tomorrow at 9", time.Date(2025, 10, 3, 9, 0, 0, 0, plus2)},
		{"review next week", time.Date(2025, 10, 5, 0, 0, 0, 0, plus2)},
		{"invoice next month", time.Date(2025, 11, 1, 0, 0, 0, 0, plus2)},
		{"call dad on friday at 17:00", time.Date(2025, 10, 3, 17, 0, 0, 0, plus2)},
		{"call dad next wednesday at 17:00", time.Date(2025, 10, 8, 17, 0, 0, 0, plus2)},
		{"call dad next friday at 17:00", time.Date(2025, 10, 10, 17, 0, 0, 0, plus2)},
		{"call dad this friday at 17:00", time.Date(2025, 10, 3, 17, 0, 0, 0, plus2)},
		{"call dad next sunday at 17:00", time.Date(2025, 10, 5, 17, 0, 0, 0, plus2)},
	}
	for _, tc := range cases {
		e := extract(t, tc.in)
		if !e.Start.Equal(tc.want) {
			t.Fatalf("%q: got %v want %v", tc.in, e.Start, tc.want)
		}
	}
}

func TestPeriodsAnchorAtFirstDay(t *testing.T) {
	t.Parallel()

	midMonth := time.Date(2025, 10, 15, 10, 0, 0, 0, plus2)
	cases := []struct {
		name     string
		opt      Options
		in       string
		now      time.Time
		start    time.Time
		rangeEnd time.Time
	}{
		{"this week", Options{}, "review this week", testNow,
			time.Date(2025, 9, 28, 0, 0, 0, 0, plus2), time.Date(2025, 10, 5, 0, 0, 0, 0, plus2)},
		{"this week from monday", Options{WeekStart: time.Monday}, "review this week", testNow,
			time.Date(2025, 9, 29, 0, 0, 0, 0, plus2), time.Date(2025, 10, 6, 0, 0, 0, 0, plus2)},
		{"this month", Options{}, "budget this month", midMonth,
			time.Date(2025, 10, 1, 0, 0, 0, 0, plus2), time.Date(2025, 11, 1, 0, 0, 0, 0, plus2)},
		{"next month", Options{}, "budget next month", midMonth,
			time.Date(2025, 11, 1, 0, 0, 0, 0, plus2), time.Date(2025, 12, 1, 0, 0, 0, 0, plus2)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e := New(tc.opt).Extract(tc.in, tc.now)
			wantStart(t, e, tc.start)
			if !e.RangeEnd.Equal(tc.rangeEnd) {
				t.Fatalf("range end %v want %v", e.RangeEnd, tc.rangeEnd)
			}
		})
	}
}

func TestResolvedStartHasSpan(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"gym every monday",
		"gym every monday at 18:00",
		"gym every other friday",
		"meeting on 18.10 at 14",
		"call mom in 2 hours",
		"call mom in 3 days",
		"review next week",
		"lunch tomorrow",
		"dentist at 9",
	} {
		e := extract(t, in)
		if e.Start.IsZero() {
			t.Fatalf("%q: no start", in)
		}
		if len(e.StartSpans()) == 0 {
			t.Fatalf("%q: start %v has no source span (spans %v)", in, e.Start, e.Spans)
		}
	}

	e := extract(t, "gym every monday")
	wantStart(t, e, time.Date(2025, 10, 6, 0, 0, 0, 0, plus2))
	if sp := e.Spans[FieldDate]; len(sp) != 1 || sp[0].Text != "every monday" {
		t.Fatalf("date spans %v", sp)
	}
}

func TestPercentIsNotADate(t *testing.T) {
	t.Parallel()

	e := extract(t, "the 10.5% raise on 12.11")
	wantStart(t, e, time.Date(2025, 11, 12, 0, 0, 0, 0, plus2))
	if e.Title != "the 10.5% raise" {
		t.Fatalf("title %q", e.Title)
	}
}

func TestDottedTimeAfterAt(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Time
	}{
		{"call at 14.30", time.Date(2025, 10, 1, 14, 30, 0, 0, plus2)},
		{"meeting on 18.10 at 10.15", time.Date(2025, 10, 18, 10, 15, 0, 0, plus2)},
		{"standup tomorrow around 9.45", time.Date(2025, 10, 2, 9, 45, 0, 0, plus2)},
	}
	for _, tc := range cases {
		e := extract(t, tc.in)
		wantStart(t, e, tc.want)
		if e.Confidence[FieldTime] != ConfExplicit || e.Defaulted[FieldTime] {
			t.Fatalf("%q: time confidence %v", tc.in, e.Confidence[FieldTime])
		}
	}
}

func TestWeekStartOption(t *testing.T) {
	t.Parallel()

	e := New(Options{WeekStart: time.Monday}).Extract("review next week", testNow)
	wantStart(t, e, time.Date(2025, 10, 6, 0, 0, 0, 0, plus2))
	if !e.RangeEnd.Equal(time.Date(2025, 10, 13, 0, 0, 0, 0, plus2)) {
		t.Fatalf("range end %v", e.RangeEnd)
	}
}

func TestTimes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Time
		conf float64
	}{
		{"call at 16:45", time.Date(2025, 10, 1, 16, 45, 0, 0, plus2), ConfExplicit},
		{"call at 9:15", time.Date(2025, 10, 2, 9, 15, 0, 0, plus2), ConfExplicit},
		{"call at 3pm", time.Date(2025, 10, 1, 15, 0, 0, 0, plus2), ConfQualified},
		{"call tomorrow at 7 in the evening", time.Date(2025, 10, 2, 19, 0, 0, 0, plus2), ConfQualified},
		{"call tomorrow morning", time.Date(2025, 10, 2, 8, 0, 0, 0, plus2), ConfInferred},
		{"call tomorrow afternoon", time.Date(2025, 10, 2, 15, 0, 0, 0, plus2), ConfInferred},
		{"call tonight", time.Date(2025, 10, 1, 19, 0, 0, 0, plus2), ConfInferred},
	}
	for _, tc := range cases {
		e := extract(t, tc.in)
		if !e.Start.Equal(tc.want) {
			t.Fatalf("%q: got %v want %v", tc.in, e.Start, tc.want)
		}
		if e.Confidence[FieldTime] != tc.conf {
			t.Fatalf("%q: time confidence %v want %v", tc.in, e.Confidence[FieldTime], tc.conf)
		}
	}
}

func TestMissingDateRollsToTomorrow(t *testing.T) {
	t.Parallel()

	e := extract(t, "take pills at 08:00")
	wantStart(t, e, time.Date(2025, 10, 2, 8, 0, 0, 0, plus2))
	if e.Confidence[FieldDate] != ConfDateGuess || !e.Defaulted[FieldDate] {
		t.Fatalf("date should be a default: %v", e.Confidence)
	}
}

func TestRangesAndDurations(t *testing.T) {
	t.Parallel()

	e := extract(t, "workshop tomorrow 14:00-15:30")
	wantStart(t, e, time.Date(2025, 10, 2, 14, 0, 0, 0, plus2))
	if !e.End.Equal(time.Date(2025, 10, 2, 15, 30, 0, 0, plus2)) {
		t.Fatalf("end %v", e.End)
	}

	e = extract(t, "workshop tomorrow at 10:00 for 2 hours")
	if e.End.Sub(e.Start) != 2*time.Hour {
		t.Fatalf("duration end %v start %v", e.End, e.Start)
	}
}

func TestRelativeOffset(t *testing.T) {
	t.Parallel()

	e := extract(t, "check the oven in 30 minutes")
	wantStart(t, e, testNow.Add(30*time.Minute))
	if e.Title != "check the oven" {
		t.Fatalf("title %q", e.Title)
	}

	e = extract(t, "renew passport in 3 days")
	if e.Start.Day() != 4 || !e.Defaulted[FieldTime] {
		t.Fatalf("day offset %v", e.Start)
	}
}

func TestLeadTimeAndPriority(t *testing.T) {
	t.Parallel()

	e := extract(t, "remind me to submit the report tomorrow at 09:00, 15 minutes before, urgent")
	if e.LeadMinutes == nil || *e.LeadMinutes != 15 {
		t.Fatalf("lead %v", e.LeadMinutes)
	}
	if e.Priority != PriorityUrgent {
		t.Fatalf("priority %v", e.Priority)
	}
	if e.Title != "submit the report" {
		t.Fatalf("title %q", e.Title)
	}

	e = extract(t, "important: board meeting tomorrow at 10:00, an hour before")
	if e.Priority != PriorityImportant || e.LeadMinutes == nil || *e.LeadMinutes != 60 {
		t.Fatalf("priority %v lead %v", e.Priority, e.LeadMinutes)
	}
}

func TestRecurrence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want recurrence.Rule
	}{
		{"water plants every day at 08:00", recurrence.Rule{Frequency: recurrence.Daily, Interval: 1}},
		{"payroll every 2 weeks on friday", recurrence.Rule{Frequency: recurrence.Weekly, Interval: 2}},
		{"backup monthly", recurrence.Rule{Frequency: recurrence.Monthly, Interval: 1}},
		{"yoga every monday at 18:00 for 4 times", recurrence.Rule{Frequency: recurrence.Weekly, Interval: 1, Count: 4}},
		{"standup every weekday at 09:30", recurrence.Rule{Frequency: recurrence.Cron, Cron: "30 9 * * 1-5"}},
	}
	for _, tc := range cases {
		e := extract(t, tc.in)
		if e.Recurrence == nil || !reflect.DeepEqual(*e.Recurrence, tc.want) {
			t.Fatalf("%q: got %+v want %+v", tc.in, e.Recurrence, tc.want)
		}
	}

	e := extract(t, "yoga every monday at 18:00")
	wantStart(t, e, time.Date(2025, 10, 6, 18, 0, 0, 0, plus2))
}

func TestLocation(t *testing.T) {
	t.Parallel()

	e := extract(t, "dinner at the Blue Door with Dana at 19:30")
	if e.Location != "Blue Door" {
		t.Fatalf("location %q", e.Location)
	}
	if !reflect.DeepEqual(e.Contacts, []string{"Dana"}) {
		t.Fatalf("contacts %v", e.Contacts)
	}
	if e.Title != "dinner" {
		t.Fatalf("title %q", e.Title)
	}
}

func TestContactsAnyScript(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []string
	}{
		{"coffee with דני!", []string{"דני"}},
		{"lunch with Ярослав, tomorrow", []string{"Ярослав"}},
		{"sync with Moti and Dana", []string{"Moti", "Dana"}},
		{"call with Anna Schmidt & Li", []string{"Anna Schmidt", "Li"}},
		{"פגישה עם דני ורונית", []string{"דני", "רונית"}},
		{"lunch with my team", nil},
		{"notwith Dana", nil},
	}
	for _, tc := range cases {
		e := extract(t, tc.in)
		if !reflect.DeepEqual(e.Contacts, tc.want) {
			t.Fatalf("%q: got %#v want %#v", tc.in, e.Contacts, tc.want)
		}
	}
}

func TestTitleFallback(t *testing.T) {
	t.Parallel()

	e := extract(t, "remind me tomorrow at 10:00")
	if e.Title != "Reminder" || e.Confidence[FieldTitle] != ConfFallback {
		t.Fatalf("title %q conf %v", e.Title, e.Confidence[FieldTitle])
	}
	e = extract(t, "tomorrow at 10:00")
	if e.Title != "Event" {
		t.Fatalf("title %q", e.Title)
	}
}

func TestPastEntry(t *testing.T) {
	t.Parallel()

	if e := extract(t, "log gym session yesterday at 18:00"); !e.PastEntry {
		t.Fatalf("expected past entry")
	}
	if e := extract(t, "gym tomorrow"); e.PastEntry {
		t.Fatalf("unexpected past entry")
	}
}

func TestNFCNormalization(t *testing.T) {
	t.Parallel()

	e := extract(t, "drinks with Rene\u0301 at 20:00")
	if !reflect.DeepEqual(e.Contacts, []string{"Ren\u00e9"}) {
		t.Fatalf("contacts %q", e.Contacts)
	}
}
