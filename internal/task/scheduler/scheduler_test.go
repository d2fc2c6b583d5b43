package scheduler

import (
	"context"
	"testing"
	"time"

	"agendabot/internal/task/engine"
	logx "agendabot/pkg/logx"
)

func newTestScheduler(t *testing.T) *Service {
	t.Helper()
	eng := engine.New(engine.Config{Enabled: true, Workers: 1}, logx.Nop(), nil)
	eng.Start(context.Background())
	s := New(Config{Timezone: "UTC"}, eng, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
		eng.Stop(ctx)
	})
	return s
}

func TestAddOnceFiresIntoEngine(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t)
	fired := make(chan struct{}, 1)
	err := s.AddOnce("job-1", time.Now().Add(20*time.Millisecond), engine.Task{
		Name: "reminder.deliver",
		Run:  func(ctx context.Context) error { fired <- struct{}{}; return nil },
	})
	if err != nil {
		t.Fatalf("AddOnce: %v", err)
	}
	if !s.Armed("job-1") {
		t.Fatalf("expected timer armed")
	}
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not fire")
	}
	if s.Armed("job-1") {
		t.Fatalf("fired timer should be disarmed")
	}
}

func TestRemoveDisarms(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t)
	fired := make(chan struct{}, 1)
	_ = s.AddOnce("job-2", time.Now().Add(50*time.Millisecond), engine.Task{
		Run: func(ctx context.Context) error { fired <- struct{}{}; return nil },
	})
	if !s.Remove("job-2") {
		t.Fatalf("expected removal")
	}
	if s.Remove("job-2") {
		t.Fatalf("second removal should report false")
	}
	select {
	case <-fired:
		t.Fatalf("removed timer fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestAddOnceReplacesExistingKey(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t)
	first := time.Now().Add(time.Hour)
	second := time.Now().Add(2 * time.Hour)
	noop := engine.Task{Run: func(context.Context) error { return nil }}
	_ = s.AddOnce("job-3", first, noop)
	_ = s.AddOnce("job-3", second, noop)
	at, ok := s.NextAt("job-3")
	if !ok || !at.Equal(second) {
		t.Fatalf("expected replaced time, got %v %v", at, ok)
	}
	if got := s.Snapshot().Armed; got != 1 {
		t.Fatalf("armed=%d", got)
	}
}

func TestAddOnceBeforeStartArmsOnStart(t *testing.T) {
	t.Parallel()

	eng := engine.New(engine.Config{Enabled: true, Workers: 1}, logx.Nop(), nil)
	eng.Start(context.Background())
	s := New(Config{}, eng, logx.Nop(), nil)
	fired := make(chan struct{}, 1)
	_ = s.AddOnce("early", time.Now(), engine.Task{Run: func(context.Context) error { fired <- struct{}{}; return nil }})

	select {
	case <-fired:
		t.Fatalf("fired before Start")
	case <-time.After(50 * time.Millisecond):
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())
	defer eng.Stop(context.Background())
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer not armed by Start")
	}
}

func TestAddCronValidatesAndLists(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t)
	if err := s.AddCron("sweep", "not a spec", time.Second, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := s.AddCron("sweep", "@every 5m", time.Second, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("AddCron: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Name != "sweep" || snap.Schedules[0].Next.IsZero() {
		t.Fatalf("unexpected schedules %+v", snap.Schedules)
	}
	if !s.Remove("sweep") || len(s.Snapshot().Schedules) != 0 {
		t.Fatalf("cron schedule not removed")
	}
}

func TestNextRuns(t *testing.T) {
	t.Parallel()

	s := New(Config{Timezone: "UTC"}, nil, logx.Nop(), nil)
	from := time.Date(2026, 1, 5, 8, 30, 0, 0, time.UTC)
	runs, err := s.NextRuns("0 9 * * *", from, 2)
	if err != nil {
		t.Fatalf("NextRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].Hour() != 9 || runs[0].Day() != 5 || runs[1].Day() != 6 {
		t.Fatalf("unexpected runs %v", runs)
	}
}
