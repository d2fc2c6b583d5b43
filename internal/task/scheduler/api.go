package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agendabot/internal/task/engine"
	logx "agendabot/pkg/logx"

	"github.com/robfig/cron/v3"
)

// AddCron registers a named cron job. Firings skip while the previous run is
// still queued or running.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) error {
	return s.AddCronOpt(name, spec, timeout, engine.TaskOptions{Overlap: engine.OverlapSkipIfRunning}, job)
}

// AddCronOpt is AddCron with explicit task options. Registering an existing
// name replaces the old schedule.
func (s *Service) AddCronOpt(name, spec string, timeout time.Duration, opt engine.TaskOptions, job func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeCronLocked(name)
	s.defs = append(s.defs, cronDef{name: name, spec: spec, timeout: timeout, job: job, opt: opt})
	if s.c == nil {
		return nil
	}
	d := &s.defs[len(s.defs)-1]
	if err := s.addCronLocked(d); err != nil {
		return err
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec), logx.Time("next", s.c.Entry(d.entryID).Next))
	return nil
}

func (s *Service) addCronLocked(d *cronDef) error {
	name, timeout, job, opt := d.name, d.timeout, d.job, d.opt
	eid, err := s.c.AddFunc(d.spec, func() {
		s.enqueue(engine.Task{Name: name, Key: "cron:" + name, Timeout: timeout, Run: job, Opt: opt})
	})
	if err != nil {
		return err
	}
	d.entryID = eid
	return nil
}

func (s *Service) removeCronLocked(name string) bool {
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

// AddOnce arms a one-shot timer under key that enqueues task at the given time.
// Re-arming an existing key replaces it. A time in the past fires immediately.
func (s *Service) AddOnce(key string, at time.Time, task engine.Task) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("key required")
	}
	if at.IsZero() {
		return errors.New("at required")
	}
	if task.Run == nil {
		return errors.New("task Run is nil")
	}
	if task.Name == "" {
		task.Name = key
	}
	if task.Key == "" {
		task.Key = key
	}

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if old, ok := s.once[key]; ok && old.timer != nil {
		old.timer.Stop()
	}
	d := &onceDef{at: at, task: task}
	s.once[key] = d
	if s.started {
		s.armLocked(key, d)
	}
	return nil
}

// armLocked starts the runtime timer for d. Call with s.tmu held.
func (s *Service) armLocked(key string, d *onceDef) {
	s.onceVer++
	ver := s.onceVer
	d.ver = ver
	delay := max(time.Until(d.at), 0)
	d.timer = time.AfterFunc(delay, func() {
		s.tmu.Lock()
		cur, ok := s.once[key]
		if !ok || cur.ver != ver {
			s.tmu.Unlock()
			return
		}
		delete(s.once, key)
		task := cur.task
		s.tmu.Unlock()
		s.enqueue(task)
	})
}

// Armed reports whether a one-shot timer is waiting under key.
func (s *Service) Armed(key string) bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	_, ok := s.once[key]
	return ok
}

// NextAt returns when the one-shot timer under key fires.
func (s *Service) NextAt(key string) (time.Time, bool) {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	d, ok := s.once[key]
	if !ok {
		return time.Time{}, false
	}
	return d.at, true
}

// Remove disarms the one-shot timer or cron schedule registered under name.
// It reports whether anything was removed.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	removed := s.removeCronLocked(name)
	s.mu.Unlock()

	s.tmu.Lock()
	if d, ok := s.once[name]; ok {
		if d.timer != nil {
			d.timer.Stop()
		}
		delete(s.once, name)
		removed = true
	}
	s.tmu.Unlock()

	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

func (s *Service) enqueue(t engine.Task) {
	if s.engine == nil {
		return
	}
	s.reportEnqueueError(t.Name, s.engine.Enqueue(t))
}

// NextRuns previews the next n firings of a cron spec in the scheduler timezone.
func (s *Service) NextRuns(spec string, from time.Time, n int) ([]time.Time, error) {
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	s.mu.Unlock()
	return nextRuns(sched, from.In(loc), n), nil
}

func nextRuns(sched cron.Schedule, t time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out
}
