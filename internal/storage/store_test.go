package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "agendabot/pkg/logx"
)

func openers(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"file": func(t *testing.T) Store {
			st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "agenda.json")}, logx.Nop())
			if err != nil {
				t.Fatalf("open file: %v", err)
			}
			return st
		},
		"sqlite": func(t *testing.T) Store {
			st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "agenda.db")}, logx.Nop())
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return st
		},
	}
}

func TestStoreContract(t *testing.T) {
	t.Parallel()

	for name, open := range openers(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			st := open(t)
			defer st.Close()

			t.Run("events", func(t *testing.T) { testEvents(t, st) })
			t.Run("jobs", func(t *testing.T) { testJobs(t, st) })
			t.Run("cas", func(t *testing.T) { testTransitionRace(t, st) })
		})
	}
}

func testEvents(t *testing.T, st Store) {
	ctx := context.Background()
	base := time.Date(2025, 10, 18, 12, 0, 0, 0, time.UTC)

	evs := []Event{
		{ID: "e1", Owner: "u1", Kind: KindEvent, Title: "meeting", Start: base, End: base.Add(time.Hour), Contacts: []string{"Moti"}},
		{ID: "e2", Owner: "u1", Kind: KindReminder, Title: "call", Start: base.Add(3 * time.Hour)},
		{ID: "e3", Owner: "u2", Kind: KindEvent, Title: "other", Start: base},
	}
	for _, e := range evs {
		if err := st.PutEvent(ctx, e); err != nil {
			t.Fatalf("put %s: %v", e.ID, err)
		}
	}

	got, err := st.GetEvent(ctx, "u1", "e1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "meeting" || !got.Start.Equal(base) || len(got.Contacts) != 1 || got.Contacts[0] != "Moti" {
		t.Fatalf("unexpected event %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("created_at not set")
	}

	if _, err := st.GetEvent(ctx, "u2", "e1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("events must be owner-scoped, got %v", err)
	}

	window, err := st.ListEvents(ctx, EventFilter{Owner: "u1", From: base.Add(30 * time.Minute), To: base.Add(4 * time.Hour)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(window) != 2 || window[0].ID != "e1" || window[1].ID != "e2" {
		t.Fatalf("unexpected window %+v", window)
	}

	after, err := st.ListEvents(ctx, EventFilter{Owner: "u1", From: base.Add(2 * time.Hour)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(after) != 1 || after[0].ID != "e2" {
		t.Fatalf("unexpected list %+v", after)
	}

	for i, text := range []string{"first", "second"} {
		c := Comment{ID: text, Text: text, Timestamp: base.Add(time.Duration(i) * time.Minute), Priority: "normal", Tags: []string{"t"}}
		if err := st.AddComment(ctx, "u1", "e1", c); err != nil {
			t.Fatalf("comment: %v", err)
		}
	}
	got, _ = st.GetEvent(ctx, "u1", "e1")
	if len(got.Comments) != 2 || got.Comments[0].Text != "first" || got.Comments[1].Text != "second" {
		t.Fatalf("comments out of order: %+v", got.Comments)
	}

	got.Title = "moved"
	got.Start = base.Add(24 * time.Hour)
	if err := st.PutEvent(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	upd, _ := st.GetEvent(ctx, "u1", "e1")
	if upd.Title != "moved" || len(upd.Comments) != 2 {
		t.Fatalf("update lost data: %+v", upd)
	}

	if err := st.DeleteEvent(ctx, "u1", "e2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.DeleteEvent(ctx, "u1", "e2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func testJobs(t *testing.T, st Store) {
	ctx := context.Background()
	now := time.Date(2025, 10, 18, 11, 0, 0, 0, time.UTC)

	j := Job{
		ID: "j1", Owner: "u1", EventID: "e1", Due: now.Add(time.Hour), Target: now.Add(45 * time.Minute),
		LeadMinutes: 15, Template: "meeting", Snapshot: map[string]string{"title": "meeting"},
		MaxRetries: 3, State: JobPending,
	}
	if err := st.CreateJob(ctx, j); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.CreateJob(ctx, j); err == nil {
		t.Fatalf("duplicate id accepted")
	}

	ok, err := st.TransitionJob(ctx, "j1", JobPending, JobRunning, now)
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	ok, err = st.TransitionJob(ctx, "j1", JobPending, JobRunning, now)
	if err != nil || ok {
		t.Fatalf("second claim must lose: ok=%v err=%v", ok, err)
	}
	if _, err := st.TransitionJob(ctx, "missing", JobPending, JobRunning, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing job: %v", err)
	}

	if err := st.RecordAttempt(ctx, "j1", "timeout", now); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	got, err := st.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != JobRunning || got.RetryCount != 1 || got.LastError != "timeout" || got.Snapshot["title"] != "meeting" {
		t.Fatalf("unexpected job %+v", got)
	}

	pending, err := st.ListJobs(ctx, JobFilter{States: []JobState{JobPending}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, p := range pending {
		if p.ID == "j1" {
			t.Fatalf("running job listed as pending")
		}
	}
	byEvent, _ := st.ListJobs(ctx, JobFilter{Owner: "u1", EventID: "e1"})
	if len(byEvent) != 1 {
		t.Fatalf("by event: %+v", byEvent)
	}

	if err := st.AppendAudit(ctx, AuditEntry{Owner: "u1", Action: "create_event", OK: true}); err != nil {
		t.Fatalf("audit: %v", err)
	}
}

func testTransitionRace(t *testing.T, st Store) {
	ctx := context.Background()
	if err := st.CreateJob(ctx, Job{ID: "race", Owner: "u1", Template: "x", State: JobPending}); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := st.TransitionJob(ctx, "race", JobPending, JobRunning, time.Now())
			if err != nil {
				t.Errorf("transition: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestFileStoreReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "agenda.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if err := st.CreateJob(ctx, Job{ID: "j1", Owner: "u1", Template: "x", State: JobPending}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.TransitionJob(ctx, "j1", JobPending, JobCancelled, time.Now()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_ = st.Close()

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	j, err := st2.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if j.State != JobCancelled {
		t.Fatalf("state not persisted: %s", j.State)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Open(Config{Driver: "mysql"}, logx.Nop()); err == nil {
		t.Fatalf("mysql without dsn must fail")
	}
}
