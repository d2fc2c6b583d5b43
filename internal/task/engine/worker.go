package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"time"

	"agendabot/internal/eventbus"
	logx "agendabot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue chan queuedTask) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case qt := <-queue:
			s.inFlight.Add(1)
			s.execOne(ctx, stopCh, qt, rng)
			s.inFlight.Add(-1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, stopCh <-chan struct{}, qt queuedTask, rng *rand.Rand) {
	// The gate opens before OnDone so a callback may enqueue the same key again.
	releaseGate := func() {
		if qt.gated {
			s.gate.release(qt.task.Key)
			qt.gated = false
		}
	}
	defer releaseGate()
	start := time.Now()
	queueDelay := max(start.Sub(qt.enqueuedAt), 0)

	s.mu.Lock()
	maxDelay := s.cfg.MaxQueueDelay
	s.mu.Unlock()

	if maxDelay > 0 && queueDelay > maxDelay {
		s.onDropped(qt.task, "stale_queue_delay", &s.droppedStale, queueDelay)
		s.remember(HistoryItem{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay, Error: ErrStale.Error()})
		releaseGate()
		s.finish(qt.task, Result{ID: qt.task.ID, Name: qt.task.Name, Err: ErrStale, QueueDelay: queueDelay})
		return
	}

	eventbus.Publish(s.bus, eventbus.TaskStarted, TaskEvent{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay})

	var err error
	attempts := 0
	maxAttempts := 1 + qt.opt.RetryMax
attemptLoop:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		err = s.runAttempt(ctx, qt, attempt)
		if err == nil {
			break
		}
		var nr noRetryError
		if errors.As(err, &nr) {
			err = nr.err
			break
		}
		if attempt >= maxAttempts {
			break
		}

		delay := backoffDelayWithHint(qt.opt, attempt, err, rng)
		s.log.Debug("task retry scheduled", logx.String("task", qt.task.Name), logx.Int("attempt", attempt+1), logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			err = ctx.Err()
			break attemptLoop
		case <-stopCh:
			tmr.Stop()
			err = ErrStopping
			break attemptLoop
		case <-tmr.C:
		}
	}

	dur := time.Since(start)
	item := HistoryItem{ID: qt.task.ID, Name: qt.task.Name, Started: start, Duration: dur, QueueDelay: queueDelay, Attempts: attempts}
	ev := TaskEvent{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay, Duration: dur, Attempts: attempts}
	if err != nil {
		item.Error, ev.Error = err.Error(), err.Error()
		s.log.Warn("task failed", logx.String("task", qt.task.Name), logx.String("id", qt.task.ID), logx.Err(err), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		eventbus.Publish(s.bus, eventbus.TaskFailed, ev)
	} else {
		s.log.Debug("task completed", logx.String("task", qt.task.Name), logx.String("id", qt.task.ID), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		eventbus.Publish(s.bus, eventbus.TaskFinished, ev)
	}
	s.remember(item)
	releaseGate()
	s.finish(qt.task, Result{ID: qt.task.ID, Name: qt.task.Name, Attempts: attempts, Err: err, QueueDelay: queueDelay, Duration: dur})
}

// runAttempt executes one attempt; a panic becomes an error so a bad task cannot kill a worker.
func (s *Service) runAttempt(ctx context.Context, qt queuedTask, attempt int) (err error) {
	runCtx := context.WithValue(ctx, attemptKey{}, attempt)
	if qt.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, qt.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("task panic", logx.String("task", qt.task.Name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	return qt.task.Run(runCtx)
}

func (s *Service) finish(t Task, res Result) {
	if t.OnDone == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task OnDone panic", logx.String("task", t.Name), logx.Any("panic", r))
		}
	}()
	t.OnDone(res)
}

func backoffDelayWithHint(opt TaskOptions, retry int, err error, rng *rand.Rand) time.Duration {
	var ra RetryAfterError
	if errors.As(err, &ra) {
		return jitter(min(ra.RetryAfter(), opt.RetryMaxDelay), opt, rng)
	}
	return backoffDelay(opt, retry, rng)
}

// backoffDelay returns base * 2^(retry-1), capped at RetryMaxDelay, with optional jitter.
func backoffDelay(opt TaskOptions, retry int, rng *rand.Rand) time.Duration {
	d := opt.RetryBase
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= opt.RetryMaxDelay {
			d = opt.RetryMaxDelay
			break
		}
	}
	return jitter(min(d, opt.RetryMaxDelay), opt, rng)
}

func jitter(d time.Duration, opt TaskOptions, rng *rand.Rand) time.Duration {
	if opt.RetryJitter <= 0 || rng == nil || d <= 0 {
		return d
	}
	r := (rng.Float64()*2 - 1) * opt.RetryJitter
	return min(max(time.Duration(float64(d)*(1+r)), 0), opt.RetryMaxDelay)
}
