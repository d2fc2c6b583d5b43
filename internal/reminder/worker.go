package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"agendabot/internal/eventbus"
	"agendabot/internal/storage"
	"agendabot/internal/task/engine"
	logx "agendabot/pkg/logx"
)

// Worker turns a fired timer into a delivery. The first attempt claims the
// job (pending to running); every attempt re-reads it and stops once it is
// no longer running.
type Worker struct {
	cfg   Config
	store storage.JobStore
	msg   Messenger
	deps
}

func NewWorker(cfg Config, store storage.JobStore, msg Messenger, opts ...Option) *Worker {
	return &Worker{cfg: cfg.withDefaults(), store: store, msg: msg, deps: buildDeps(opts)}
}

// TaskOptions is the retry policy of a delivery: fixed doubling backoff, no jitter.
func (w *Worker) TaskOptions() engine.TaskOptions {
	retries := w.cfg.MaxRetries
	if retries == 0 {
		retries = -1
	}
	return engine.TaskOptions{
		Overlap:       engine.OverlapSkipIfRunning,
		RetryMax:      retries,
		RetryBase:     w.cfg.RetryBase,
		RetryMaxDelay: w.cfg.RetryMaxDelay,
		RetryJitter:   -1,
	}
}

// Task builds the engine task that delivers job id.
func (w *Worker) Task(id string) engine.Task {
	return engine.Task{
		ID:      id,
		Name:    deliveryName,
		Key:     "reminder:" + id,
		Timeout: w.cfg.DeliveryTimeout,
		Opt:     w.TaskOptions(),
		Run:     func(ctx context.Context) error { return w.attempt(ctx, id) },
		OnDone:  func(res engine.Result) { w.done(id, res) },
	}
}

func (w *Worker) attempt(ctx context.Context, id string) error {
	now := w.clock.Now()
	n := engine.Attempt(ctx)
	if n <= 1 {
		won, err := w.store.TransitionJob(ctx, id, storage.JobPending, storage.JobRunning, now)
		if err != nil {
			// Still pending; the sweep will arm it again.
			return engine.NoRetry(fmt.Errorf("%w: claim: %v", errSkipped, err))
		}
		if !won {
			return engine.NoRetry(errSkipped)
		}
	} else {
		w.emit(StageRetried)
	}

	job, err := w.store.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return engine.NoRetry(fmt.Errorf("%w: %v", errSkipped, err))
		}
		return err
	}
	if job.State != storage.JobRunning {
		w.log.Info("reminder stopped before delivery", logx.String("job", id), logx.String("state", string(job.State)), logx.Int("attempt", n))
		return engine.NoRetry(errSkipped)
	}

	if err := w.msg.Deliver(ctx, job.Owner, Render(job)); err != nil {
		if rerr := w.store.RecordAttempt(ctx, id, err.Error(), w.clock.Now()); rerr != nil {
			w.log.Warn("record attempt failed", logx.String("job", id), logx.Err(rerr))
		}
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

func (w *Worker) done(id string, res engine.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.DeliveryTimeout)
	defer cancel()
	now := w.clock.Now()

	switch {
	case res.Err == nil:
		if _, err := w.store.TransitionJob(ctx, id, storage.JobRunning, storage.JobCompleted, now); err != nil {
			w.log.Warn("job state update failed", logx.String("job", id), logx.Err(err))
		}
		job, _ := w.store.GetJob(ctx, id)
		w.log.Debug("reminder delivered", logx.String("job", id), logx.Int("attempts", res.Attempts))
		eventbus.Publish(w.bus, eventbus.ReminderDelivered, eventOf(job, ""))
		w.emit(StageDelivered)
		return

	case errors.Is(res.Err, errSkipped):
		w.log.Debug("reminder task skipped", logx.String("job", id), logx.Err(res.Err))
		return

	case errors.Is(res.Err, engine.ErrStale), errors.Is(res.Err, engine.ErrStopping), errors.Is(res.Err, context.Canceled):
		// Pending jobs are re-armed by the sweep, running ones are reset at startup.
		w.log.Info("reminder delivery interrupted", logx.String("job", id), logx.Err(res.Err))
		return
	}

	won, err := w.store.TransitionJob(ctx, id, storage.JobRunning, storage.JobFailed, now)
	if err != nil {
		w.log.Warn("job state update failed", logx.String("job", id), logx.Err(err))
	}
	if !won && err == nil {
		// Cancelled while retrying.
		return
	}
	job, _ := w.store.GetJob(ctx, id)
	w.log.Error("reminder delivery failed",
		logx.String("job", id),
		logx.String("owner", job.Owner),
		logx.Int("attempts", res.Attempts),
		logx.Err(res.Err),
	)
	eventbus.Publish(w.bus, eventbus.ReminderFailed, eventOf(job, res.Err.Error()))
	w.emit(StageFailed)
	if w.alert != nil {
		msg := fmt.Sprintf("Reminder %s for %s failed after %d attempts: %s", ShortID(id), job.Owner, res.Attempts, res.Err)
		if err := w.alert.Alert(ctx, msg); err != nil {
			w.log.Warn("operator alert failed", logx.String("job", id), logx.Err(err))
		}
	}
}

func eventOf(j storage.Job, errText string) Event {
	return Event{JobID: j.ID, Owner: j.Owner, EventID: j.EventID, Target: j.Target, Error: errText}
}

// ShortID is the prefix shown to users and accepted by /cancel.
func ShortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
