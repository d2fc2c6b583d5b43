package eventbus

import "testing"

func TestPublishSubscribe(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(2)
	defer unsub()

	Publish(b, ReminderFailed, "j1")
	e := <-ch
	if e.Type != ReminderFailed || e.Data != "j1" || e.Time.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	if got := (<-ch).Type; got != "a" {
		t.Fatalf("got %q", got)
	}
	select {
	case e := <-ch:
		t.Fatalf("expected drop, got %+v", e)
	default:
	}
}

func TestMatches(t *testing.T) {
	t.Parallel()

	cases := []struct {
		typ, prefix string
		want        bool
	}{
		{ReminderFailed, "reminder", true},
		{ReminderFailed, "reminder.failed", true},
		{"reminders.x", "reminder", false},
		{TaskStarted, "", true},
	}
	for _, tc := range cases {
		if got := (Event{Type: tc.typ}).Matches(tc.prefix); got != tc.want {
			t.Fatalf("%q matches %q = %v", tc.typ, tc.prefix, got)
		}
	}
}

func TestPublishNilBus(t *testing.T) {
	t.Parallel()
	Publish(nil, TaskStarted, nil)
}
