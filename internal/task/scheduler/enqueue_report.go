package scheduler

import (
	"errors"
	"time"

	"agendabot/internal/task/engine"
	logx "agendabot/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

// reportEnqueueError logs a failed trigger at most once per throttle window per name.
// Overlap skips are routine and only reach debug.
func (s *Service) reportEnqueueError(name string, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, engine.ErrOverlapSkip):
		s.log.Debug("trigger skipped; previous run still active", logx.String("name", name))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last, seen := s.lastEnqWarn[name]
	throttled := seen && now.Sub(last) < enqueueWarnThrottle
	if !throttled {
		s.lastEnqWarn[name] = now
	}
	s.enqMu.Unlock()
	if throttled {
		return
	}
	s.log.Warn("trigger could not enqueue task", logx.String("name", name), logx.Err(err))
}
