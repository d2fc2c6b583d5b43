package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "agendabot/pkg/logx"
)

func startEngine(t *testing.T, cfg Config) *Service {
	t.Helper()
	cfg.Enabled = true
	s := New(cfg, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatalf("task did not finish")
		return Result{}
	}
}

func TestRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1})
	var seen []int
	done := make(chan Result, 1)
	err := s.Enqueue(Task{
		Name: "flaky",
		Run: func(ctx context.Context) error {
			seen = append(seen, Attempt(ctx))
			if len(seen) < 3 {
				return errors.New("transient")
			}
			return nil
		},
		Opt:    TaskOptions{RetryMax: 3, RetryBase: time.Millisecond, RetryJitter: -1},
		OnDone: func(r Result) { done <- r },
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	r := waitResult(t, done)
	if r.Err != nil || r.Attempts != 3 {
		t.Fatalf("unexpected result %+v", r)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Fatalf("attempt numbers %v", seen)
	}
}

func TestRetriesExhausted(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1})
	var runs atomic.Int32
	done := make(chan Result, 1)
	_ = s.Enqueue(Task{
		Name:   "down",
		Run:    func(ctx context.Context) error { runs.Add(1); return errors.New("unreachable") },
		Opt:    TaskOptions{RetryMax: 3, RetryBase: time.Millisecond, RetryJitter: -1},
		OnDone: func(r Result) { done <- r },
	})
	r := waitResult(t, done)
	if r.Err == nil || r.Attempts != 4 || runs.Load() != 4 {
		t.Fatalf("expected 1 attempt + 3 retries, got %+v runs=%d", r, runs.Load())
	}
}

func TestNoRetryStopsImmediately(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1})
	sentinel := errors.New("cancelled")
	done := make(chan Result, 1)
	_ = s.Enqueue(Task{
		Name:   "perm",
		Run:    func(ctx context.Context) error { return NoRetry(sentinel) },
		Opt:    TaskOptions{RetryMax: 3, RetryBase: time.Millisecond},
		OnDone: func(r Result) { done <- r },
	})
	r := waitResult(t, done)
	if !errors.Is(r.Err, sentinel) || r.Attempts != 1 {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestPanicBecomesError(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1})
	done := make(chan Result, 1)
	_ = s.Enqueue(Task{
		Name:   "panicky",
		Run:    func(ctx context.Context) error { panic("boom") },
		Opt:    TaskOptions{RetryMax: -1},
		OnDone: func(r Result) { done <- r },
	})
	r := waitResult(t, done)
	if r.Err == nil || r.Attempts != 1 {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestOverlapSkip(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1})
	release := make(chan struct{})
	done := make(chan Result, 1)
	task := Task{
		Name:   "deliver",
		Key:    "job-1",
		Run:    func(ctx context.Context) error { <-release; return nil },
		Opt:    TaskOptions{Overlap: OverlapSkipIfRunning},
		OnDone: func(r Result) { done <- r },
	}
	if err := s.Enqueue(task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := s.Enqueue(task); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("expected overlap skip, got %v", err)
	}
	close(release)
	waitResult(t, done)
	if err := s.Enqueue(Task{Name: "deliver", Key: "job-1", Run: func(context.Context) error { return nil }, Opt: TaskOptions{Overlap: OverlapSkipIfRunning}}); err != nil {
		t.Fatalf("gate not released: %v", err)
	}
}

func TestEnqueueDisabled(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(), nil)
	if err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("got %v", err)
	}
}

func TestBackoffDelayDoubles(t *testing.T) {
	t.Parallel()

	opt := TaskOptions{RetryMax: 3, RetryBase: 2 * time.Second, RetryMaxDelay: 8 * time.Second, RetryJitter: -1}.withDefaults(Config{})
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := backoffDelay(opt, i+1, nil); got != w {
			t.Fatalf("retry %d: got %v want %v", i+1, got, w)
		}
	}
}

func TestRetryAfterHintIsCapped(t *testing.T) {
	t.Parallel()

	opt := TaskOptions{RetryBase: time.Second, RetryMaxDelay: 3 * time.Second, RetryJitter: -1}.withDefaults(Config{})
	err := RetryAfter(errors.New("429"), time.Minute)
	if got := backoffDelayWithHint(opt, 1, err, nil); got != 3*time.Second {
		t.Fatalf("got %v", got)
	}
}
