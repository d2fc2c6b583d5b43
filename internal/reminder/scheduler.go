package reminder

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"agendabot/internal/eventbus"
	"agendabot/internal/storage"
	logx "agendabot/pkg/logx"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusImmediate Status = "immediate"
	StatusMissed    Status = "missed"
)

type Request struct {
	Owner       string
	EventID     string
	Due         time.Time
	LeadMinutes int
	Template    string
	Snapshot    map[string]string
}

// Outcome reports what Schedule did. Request is the caller's request as given.
type Outcome struct {
	Status      Status
	JobID       string
	Target      time.Time
	Delay       time.Duration
	LeadMinutes int
	// Armed is false for a job beyond the arm window; the sweep arms it later.
	Armed   bool
	Request Request
}

type Scheduler struct {
	cfg    Config
	store  storage.JobStore
	timers Timers
	worker *Worker
	deps
}

func NewScheduler(cfg Config, store storage.JobStore, timers Timers, worker *Worker, opts ...Option) *Scheduler {
	return &Scheduler{cfg: cfg.withDefaults(), store: store, timers: timers, worker: worker, deps: buildDeps(opts)}
}

func (s *Scheduler) Config() Config { return s.cfg }

// Start resets jobs left running by a previous process, arms what is due
// within the arm window and registers the periodic sweep.
func (s *Scheduler) Start(ctx context.Context) error {
	reset, err := s.resetRunning(ctx)
	if err != nil {
		return fmt.Errorf("reminder: reset running jobs: %w", err)
	}
	armed, err := s.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reminder: reconcile: %w", err)
	}
	if err := s.timers.AddCron(SweepName, s.cfg.SweepSchedule, time.Minute, func(ctx context.Context) error {
		_, err := s.Reconcile(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("reminder: sweep schedule: %w", err)
	}
	s.log.Info("reminder scheduler started", logx.Int("reset", reset), logx.Int("armed", armed), logx.String("sweep", s.cfg.SweepSchedule))
	return nil
}

func (s *Scheduler) resetRunning(ctx context.Context) (int, error) {
	jobs, err := s.store.ListJobs(ctx, storage.JobFilter{States: []storage.JobState{storage.JobRunning}})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range jobs {
		ok, err := s.store.TransitionJob(ctx, j.ID, storage.JobRunning, storage.JobPending, s.clock.Now())
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Schedule persists a reminder and arms its timer. A target more than the
// missed window in the past is not persisted; the Outcome is missed and the
// error wraps ErrSchedulingSkipped.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (Outcome, error) {
	out := Outcome{Request: req}
	if strings.TrimSpace(req.Owner) == "" {
		return out, errors.New("reminder: owner required")
	}
	if req.Due.IsZero() {
		return out, errors.New("reminder: due time required")
	}

	lead := min(max(req.LeadMinutes, 0), s.cfg.MaxLeadMinutes)
	now := s.clock.Now()
	target := req.Due.Add(-time.Duration(lead) * time.Minute).UTC()
	out.LeadMinutes, out.Target = lead, target

	late := now.Sub(target)
	switch {
	case late > s.cfg.MissedWindow:
		out.Status = StatusMissed
		s.log.Info("reminder missed", logx.String("owner", req.Owner), logx.Time("target", target), logx.Duration("late", late))
		eventbus.Publish(s.bus, eventbus.ReminderMissed, Event{Owner: req.Owner, EventID: req.EventID, Target: target})
		s.emit(StageMissed)
		return out, fmt.Errorf("%w by %s", ErrSchedulingSkipped, late.Round(time.Second))
	case late >= 0:
		out.Status = StatusImmediate
	default:
		out.Status = StatusScheduled
		out.Delay = -late
	}

	job := storage.Job{
		ID:          uuid.NewString(),
		Owner:       req.Owner,
		EventID:     req.EventID,
		Due:         req.Due.UTC(),
		Target:      target,
		LeadMinutes: lead,
		Template:    req.Template,
		Snapshot:    maps.Clone(req.Snapshot),
		MaxRetries:  s.cfg.MaxRetries,
		State:       storage.JobPending,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return out, fmt.Errorf("reminder: persist: %w", err)
	}
	out.JobID = job.ID

	if out.Delay <= s.cfg.ArmWindow {
		if err := s.arm(job.ID, out.Delay); err != nil {
			// The job is stored; the sweep retries arming.
			s.log.Warn("reminder arm failed", logx.String("job", job.ID), logx.Err(err))
		} else {
			out.Armed = true
		}
	}
	s.log.Debug("reminder scheduled",
		logx.String("job", job.ID),
		logx.String("status", string(out.Status)),
		logx.Time("target", target),
		logx.Duration("delay", out.Delay),
		logx.Bool("armed", out.Armed),
	)
	eventbus.Publish(s.bus, eventbus.ReminderScheduled, eventOf(job, ""))
	s.emit(StageScheduled)
	return out, nil
}

// arm starts the timer. delay comes from the injected clock; the timer itself
// runs on the wall clock.
func (s *Scheduler) arm(id string, delay time.Duration) error {
	if err := s.timers.AddOnce(id, time.Now().Add(max(delay, 0)), s.worker.Task(id)); err != nil {
		return err
	}
	s.emit(StageArmed)
	return nil
}

// Reconcile arms every pending job inside the arm window that has no timer.
// Overdue jobs are armed to fire at once. It returns how many were armed.
func (s *Scheduler) Reconcile(ctx context.Context) (int, error) {
	jobs, err := s.store.ListJobs(ctx, storage.JobFilter{States: []storage.JobState{storage.JobPending}})
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	n := 0
	for _, j := range jobs {
		delay := j.Target.Sub(now)
		if delay > s.cfg.ArmWindow || s.timers.Armed(j.ID) {
			continue
		}
		if err := s.arm(j.ID, delay); err != nil {
			s.log.Warn("reminder arm failed", logx.String("job", j.ID), logx.Err(err))
			continue
		}
		n++
	}
	if n > 0 {
		s.log.Info("reminders armed by sweep", logx.Int("armed", n), logx.Int("pending", len(jobs)))
	}
	return n, nil
}

// Cancel moves a pending or running job to cancelled and disarms its timer.
// A non-empty owner must match the job's owner.
func (s *Scheduler) Cancel(ctx context.Context, owner, id string) error {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if owner != "" && job.Owner != owner {
		return storage.ErrNotFound
	}
	for _, from := range []storage.JobState{storage.JobPending, storage.JobRunning} {
		won, err := s.store.TransitionJob(ctx, id, from, storage.JobCancelled, s.clock.Now())
		if err != nil {
			return err
		}
		if won {
			s.timers.Remove(id)
			s.log.Debug("reminder cancelled", logx.String("job", id), logx.String("from", string(from)))
			eventbus.Publish(s.bus, eventbus.ReminderCancelled, eventOf(job, ""))
			s.emit(StageCancelled)
			return nil
		}
	}
	cur, _ := s.store.GetJob(ctx, id)
	return fmt.Errorf("%w (state %s)", ErrNotCancellable, cur.State)
}

// CancelEvent cancels every live job of an event and returns how many were cancelled.
func (s *Scheduler) CancelEvent(ctx context.Context, owner, eventID string) (int, error) {
	jobs, err := s.store.ListJobs(ctx, storage.JobFilter{
		Owner:   owner,
		EventID: eventID,
		States:  []storage.JobState{storage.JobPending, storage.JobRunning},
	})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range jobs {
		if err := s.Cancel(ctx, owner, j.ID); err == nil {
			n++
		} else if !errors.Is(err, ErrNotCancellable) {
			return n, err
		}
	}
	return n, nil
}

// Resolve finds an owner's live job by full ID or by its short prefix.
func (s *Scheduler) Resolve(ctx context.Context, owner, ref string) (storage.Job, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return storage.Job{}, storage.ErrNotFound
	}
	jobs, err := s.store.ListJobs(ctx, storage.JobFilter{Owner: owner, States: []storage.JobState{storage.JobPending, storage.JobRunning}})
	if err != nil {
		return storage.Job{}, err
	}
	var hit []storage.Job
	for _, j := range jobs {
		if j.ID == ref {
			return j, nil
		}
		if strings.HasPrefix(j.ID, ref) {
			hit = append(hit, j)
		}
	}
	if len(hit) != 1 {
		return storage.Job{}, storage.ErrNotFound
	}
	return hit[0], nil
}

// Upcoming lists an owner's live jobs ordered by target.
func (s *Scheduler) Upcoming(ctx context.Context, owner string) ([]storage.Job, error) {
	return s.store.ListJobs(ctx, storage.JobFilter{Owner: owner, States: []storage.JobState{storage.JobPending, storage.JobRunning}})
}
