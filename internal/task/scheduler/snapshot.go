package scheduler

import "time"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	loc := s.loc
	c := s.c
	items := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		items = append(items, it)
	}
	eng := s.engine
	s.mu.Unlock()

	if loc == nil {
		loc = time.Local
	}
	s.tmu.Lock()
	armed := len(s.once)
	s.tmu.Unlock()

	snap := Snapshot{Timezone: loc.String(), Schedules: items, Armed: armed}
	if eng != nil {
		snap.Engine = eng.Snapshot()
	}
	return snap
}
