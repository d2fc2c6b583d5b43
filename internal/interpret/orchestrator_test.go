package interpret

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"agendabot/internal/extract"
	"agendabot/internal/intent"
	"agendabot/internal/recurrence"
	"agendabot/internal/validate"
	logx "agendabot/pkg/logx"
)

var plus2 = time.FixedZone("+02:00", 2*60*60)

// Wednesday 1 October 2025, 10:00 local.
var wed = time.Date(2025, 10, 1, 10, 0, 0, 0, plus2)

type fakeClassifier struct {
	res   intent.Result
	err   error
	calls atomic.Int32
}

func (f *fakeClassifier) Classify(context.Context, string, intent.Input) (intent.Result, error) {
	f.calls.Add(1)
	return f.res, f.err
}

func classifier(i intent.Intent, conf float64) *fakeClassifier {
	return &fakeClassifier{res: intent.Result{Intent: i, Confidence: conf, Agreement: 3, Responded: 3, Configured: 3}}
}

func newOrchestrator(cls Classifier, opts ...Option) *Orchestrator {
	v := validate.New(validate.Config{}, nil, nil, logx.Nop())
	return New(cls, extract.New(extract.Options{}), v, recurrence.Options{}, opts...)
}

func outcomes(r Result) []string {
	out := make([]string, len(r.Phases))
	for i, p := range r.Phases {
		out[i] = p.Name + ":" + p.Outcome
	}
	return out
}

func TestPhaseOrder(t *testing.T) {
	t.Parallel()

	got := newOrchestrator(classifier(intent.Help, 1)).Phases()
	want := []string{PhaseClassify, PhaseExtract, PhaseValidate, PhaseRecurrence}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("phases %v", got)
	}
}

func TestEmptyTextIsFatal(t *testing.T) {
	t.Parallel()

	cls := classifier(intent.CreateEvent, 0.99)
	res := newOrchestrator(cls).Run(context.Background(), Request{Text: "  \n", Now: wed})
	if !res.Terminal || len(res.Errors) != 1 || !errors.Is(res.Errors[0], ErrEmptyText) {
		t.Fatalf("unexpected %+v", res)
	}
	if cls.calls.Load() != 0 {
		t.Fatalf("classifier called for empty text")
	}
	want := []string{"classify:fatal", "extract:skipped", "validate:skipped", "recurrence:skipped"}
	if got := outcomes(res); !reflect.DeepEqual(got, want) {
		t.Fatalf("phases %v", got)
	}
	if res.Actionable() || res.NeedsClarification() {
		t.Fatalf("terminal result must not be actionable")
	}
}

func TestScenarioIsActionable(t *testing.T) {
	t.Parallel()

	var seen []string
	o := newOrchestrator(classifier(intent.CreateEvent, 0.95), WithObserver(func(p, out string, _ time.Duration) {
		seen = append(seen, p+":"+out)
	}))
	res := o.Run(context.Background(), Request{Text: "meeting on 18.10 at 14 with Moti, bring cash", Owner: "42", Location: plus2, Now: wed})
	if !res.Actionable() {
		t.Fatalf("expected actionable, got %+v", res.Validation)
	}
	if !res.Entities.Start.Equal(time.Date(2025, 10, 18, 14, 0, 0, 0, plus2)) {
		t.Fatalf("start %v", res.Entities.Start)
	}
	if res.Entities.Title != "meeting, bring cash" || !reflect.DeepEqual(res.Entities.Contacts, []string{"Moti"}) {
		t.Fatalf("entities %+v", res.Entities)
	}
	if res.Confidence[FieldIntent] != 0.95 || res.Confidence[extract.FieldDate] != extract.ConfExplicit {
		t.Fatalf("ledger %v", res.Confidence)
	}
	want := []string{"classify:ok", "extract:ok", "validate:ok", "recurrence:skipped"}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("observer saw %v", seen)
	}
}

func TestValidationFailureAsksAboutField(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      intent.Intent
		text    string
		weakest extract.Field
		code    string
	}{
		{"no date", intent.CreateReminder, "remind me to call mom", extract.FieldDate, validate.CodeStartMissing},
		{"past start", intent.CreateEvent, "dentist today at 08:00 every day", extract.FieldDate, validate.CodeStartInPast},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res := newOrchestrator(classifier(tc.in, 0.95)).Run(context.Background(),
				Request{Text: tc.text, Location: plus2, Now: wed})
			if res.Terminal {
				t.Fatalf("failed check must not be terminal: %+v", res)
			}
			if len(res.Errors) != 1 || !errors.Is(res.Errors[0], validate.ErrValidationFailed) {
				t.Fatalf("errors %v", res.Errors)
			}
			if res.Validation.Errors[0].Code != tc.code {
				t.Fatalf("code %q, want %q", res.Validation.Errors[0].Code, tc.code)
			}
			if !res.NeedsClarification() || res.Actionable() {
				t.Fatalf("want clarification, got clarify=%v actionable=%v", res.NeedsClarification(), res.Actionable())
			}
			if res.Validation.Weakest != tc.weakest || res.Question() == "" {
				t.Fatalf("weakest %q question %q", res.Validation.Weakest, res.Question())
			}
			want := []string{"classify:ok", "extract:ok", "validate:failed", "recurrence:skipped"}
			if got := outcomes(res); !reflect.DeepEqual(got, want) {
				t.Fatalf("phases %v", got)
			}
			if res.Plan != nil {
				t.Fatalf("recurrence planned after a failed check")
			}
		})
	}
}

func TestClassifierUnavailableDegrades(t *testing.T) {
	t.Parallel()

	cls := &fakeClassifier{res: intent.Result{Intent: intent.Unknown}, err: intent.ErrClassifierUnavailable}
	res := newOrchestrator(cls).Run(context.Background(), Request{Text: "dentist tomorrow at 10:00", Now: wed})
	if res.Terminal {
		t.Fatalf("classifier outage must not be fatal")
	}
	if !res.NeedsClarification() || res.Validation.Weakest != FieldIntent || res.Question() == "" {
		t.Fatalf("expected an intent question, got %+v", res.Validation)
	}
	if len(res.Warnings) == 0 || res.Warnings[0].Code != WarnClassifierUnavailable || res.Warnings[0].Phase != PhaseClassify {
		t.Fatalf("warnings %+v", res.Warnings)
	}
	if res.Phases[0].Outcome != "failed" || res.Phases[1].Outcome != "ok" {
		t.Fatalf("phases %v", outcomes(res))
	}
}

func TestHelpSkipsExtraction(t *testing.T) {
	t.Parallel()

	res := newOrchestrator(classifier(intent.Help, 0.95)).Run(context.Background(), Request{Text: "how does this work tomorrow", Now: wed})
	if res.Phases[1].Outcome != "skipped" || !res.Entities.Start.IsZero() {
		t.Fatalf("extract ran for help: %v", outcomes(res))
	}
	if !res.Actionable() {
		t.Fatalf("help should be actionable: %+v", res.Validation)
	}
}

func TestRecurrenceMovesDefaultedDate(t *testing.T) {
	t.Parallel()

	sat := time.Date(2025, 10, 4, 10, 0, 0, 0, plus2)
	res := newOrchestrator(classifier(intent.CreateReminder, 0.95)).Run(context.Background(),
		Request{Text: "standup every weekday at 09:30", Location: plus2, Now: sat})
	mon := time.Date(2025, 10, 6, 9, 30, 0, 0, plus2)
	if !res.Entities.Start.Equal(mon) {
		t.Fatalf("start %v want %v", res.Entities.Start, mon)
	}
	if res.Plan == nil || len(res.Upcoming) != defaultPreview || !res.Upcoming[0].Equal(mon) {
		t.Fatalf("plan %+v upcoming %v", res.Plan, res.Upcoming)
	}
	if res.Upcoming[4].Weekday() != time.Friday {
		t.Fatalf("fifth occurrence %v", res.Upcoming[4])
	}
	for _, w := range res.Warnings {
		if w.Code == WarnFieldConflict {
			t.Fatalf("unexpected conflict %v", w)
		}
	}
}

func TestRecurrenceKeepsExplicitDate(t *testing.T) {
	t.Parallel()

	res := newOrchestrator(classifier(intent.CreateReminder, 0.95)).Run(context.Background(),
		Request{Text: "standup every weekday at 09:30 from 4.10", Location: plus2, Now: wed})
	sat := time.Date(2025, 10, 4, 9, 30, 0, 0, plus2)
	if !res.Entities.Start.Equal(sat) {
		t.Fatalf("explicit date overwritten: %v", res.Entities.Start)
	}
	var conflict bool
	for _, w := range res.Warnings {
		if w.Code == WarnFieldConflict && w.Phase == PhaseRecurrence && w.Field == extract.FieldDate {
			conflict = true
		}
	}
	if !conflict {
		t.Fatalf("refused write not recorded: %+v", res.Warnings)
	}
	if res.Upcoming[0].Weekday() != time.Monday {
		t.Fatalf("first occurrence %v", res.Upcoming[0])
	}
}

type funcPhase struct {
	name string
	run  func(*Context) Outcome
}

func (f funcPhase) Name() string                                  { return f.name }
func (f funcPhase) ShouldRun(*Context) bool                       { return true }
func (f funcPhase) Execute(_ context.Context, c *Context) Outcome { return f.run(c) }

func TestLedgerNeverDowngrades(t *testing.T) {
	t.Parallel()

	o := NewWithPhases([]Phase{
		funcPhase{"first", func(c *Context) Outcome {
			c.SetTitle("dentist", 0.9, false)
			return Outcome{Success: true}
		}},
		funcPhase{"second", func(c *Context) Outcome {
			if c.SetTitle("reminder", 0.4, true) || c.SetTitle("Dentist", 0.9, false) {
				t.Errorf("lower or equal confidence overwrote the title")
			}
			if !c.SetTitle("Dr. Levi", 0.95, false) {
				t.Errorf("higher confidence was refused")
			}
			return Outcome{Success: true}
		}},
	})
	res := o.Run(context.Background(), Request{Text: "x", Now: wed})
	if res.Entities.Title != "Dr. Levi" || res.Confidence[extract.FieldTitle] != 0.95 {
		t.Fatalf("title %q at %v", res.Entities.Title, res.Confidence[extract.FieldTitle])
	}
	var n int
	for _, w := range res.Warnings {
		if w.Code == WarnFieldConflict && w.Phase == "second" {
			n++
		}
	}
	if n != 2 {
		t.Fatalf("want 2 conflict warnings, got %+v", res.Warnings)
	}
}

func TestPhasePanicIsFatal(t *testing.T) {
	t.Parallel()

	ran := false
	o := NewWithPhases([]Phase{
		funcPhase{"boom", func(*Context) Outcome { panic("nil map") }},
		funcPhase{"after", func(*Context) Outcome { ran = true; return Outcome{Success: true} }},
	})
	res := o.Run(context.Background(), Request{Text: "x", Now: wed})
	if !res.Terminal || ran || !strings.Contains(res.Errors[0].Error(), "nil map") {
		t.Fatalf("unexpected %+v ran=%v", res, ran)
	}
}
