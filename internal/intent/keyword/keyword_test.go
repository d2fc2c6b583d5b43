package keyword

import (
	"context"
	"testing"

	"agendabot/internal/intent"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	b := New("")
	cases := []struct {
		text string
		want intent.Intent
	}{
		{"Remind me to call mom at 18:00", intent.CreateReminder},
		{"remind me to cancel the gym membership", intent.CreateReminder},
		{"Cancel my reminder for tomorrow", intent.Delete},
		{"Please reschedule the dentist to Friday", intent.Update},
		{"What's on tomorrow?", intent.Query},
		{"meeting with Dana on 18.10 at 14", intent.CreateEvent},
		{"HELP", intent.Help},
		{"תזכיר לי לקנות חלב", intent.CreateReminder},
		{"18.10 14:00", intent.CreateEvent},
		{"banana", intent.Unknown},
	}
	for _, tc := range cases {
		p, err := b.Classify(context.Background(), tc.text, intent.Input{})
		if err != nil {
			t.Fatalf("%q: %v", tc.text, err)
		}
		if p.Intent != tc.want {
			t.Fatalf("%q: got %s want %s", tc.text, p.Intent, tc.want)
		}
		if p.Confidence <= 0 || p.Confidence > 1 {
			t.Fatalf("%q: confidence %v", tc.text, p.Confidence)
		}
	}
}

func TestClassifyHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New("kw").Classify(ctx, "help", intent.Input{}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestKeywordOnlyEnsembleIsUnanimous(t *testing.T) {
	t.Parallel()

	e := intent.NewEnsemble([]intent.Member{{Backend: New("kw")}})
	res, err := e.Classify(context.Background(), "meeting on 18.10 at 14 with Moti, bring cash", intent.Input{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Intent != intent.CreateEvent || res.Agreement != 1 || res.Responded != 1 {
		t.Fatalf("unexpected %+v", res)
	}
	if res.Confidence < 0.95 {
		t.Fatalf("confidence %v below the unanimous floor", res.Confidence)
	}
}
