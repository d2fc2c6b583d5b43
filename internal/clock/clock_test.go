package clock

import (
	"testing"
	"time"
)

func TestManual(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	m := NewManual(base)
	m.Advance(90 * time.Minute)
	if got := m.Now(); !got.Equal(base.Add(90 * time.Minute)) {
		t.Fatalf("got %v", got)
	}
}

func TestStartOfDay(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("+02", 2*3600)
	// 23:30 UTC is already the next day at +02:00.
	in := time.Date(2025, 10, 17, 23, 30, 0, 0, time.UTC)
	got := StartOfDay(in, loc)
	want := time.Date(2025, 10, 18, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}
