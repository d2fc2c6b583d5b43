package storage

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"
)

type memStore struct {
	mu     sync.Mutex
	events map[string]Event // owner + "\x00" + id
	jobs   map[string]Job
	audit  []AuditEntry
}

// NewMemory returns a process-local store.
func NewMemory() Store { return newMemStore() }

func newMemStore() *memStore {
	return &memStore{events: map[string]Event{}, jobs: map[string]Job{}}
}

func eventKey(owner, id string) string { return owner + "\x00" + id }

func cloneEvent(e Event) Event {
	e.Contacts = slices.Clone(e.Contacts)
	if e.Comments != nil {
		cs := make([]Comment, len(e.Comments))
		for i, c := range e.Comments {
			c.Tags = slices.Clone(c.Tags)
			cs[i] = c
		}
		e.Comments = cs
	}
	return e
}

func cloneJob(j Job) Job {
	j.Snapshot = maps.Clone(j.Snapshot)
	return j
}

func (s *memStore) PutEvent(_ context.Context, e Event) error {
	if e.Owner == "" || e.ID == "" {
		return errors.New("storage: event owner and id are required")
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	k := eventKey(e.Owner, e.ID)
	if prev, ok := s.events[k]; ok && e.CreatedAt.IsZero() {
		e.CreatedAt = prev.CreatedAt
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	s.events[k] = cloneEvent(e)
	return nil
}

func (s *memStore) GetEvent(_ context.Context, owner, id string) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventKey(owner, id)]
	if !ok {
		return Event{}, ErrNotFound
	}
	return cloneEvent(e), nil
}

func (s *memStore) DeleteEvent(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := eventKey(owner, id)
	if _, ok := s.events[k]; !ok {
		return ErrNotFound
	}
	delete(s.events, k)
	return nil
}

func (s *memStore) ListEvents(_ context.Context, f EventFilter) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0)
	for _, e := range s.events {
		if f.match(e) {
			out = append(out, cloneEvent(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func (s *memStore) AddComment(_ context.Context, owner, eventID string, c Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := eventKey(owner, eventID)
	e, ok := s.events[k]
	if !ok {
		return ErrNotFound
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	c.Tags = slices.Clone(c.Tags)
	e.Comments = append(slices.Clone(e.Comments), c)
	e.UpdatedAt = time.Now().UTC()
	s.events[k] = e
	return nil
}

func (s *memStore) CreateJob(_ context.Context, j Job) error {
	if j.ID == "" {
		return errors.New("storage: job id is required")
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; ok {
		return errors.New("storage: duplicate job id " + j.ID)
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = j.CreatedAt
	}
	s.jobs[j.ID] = cloneJob(j)
	return nil
}

func (s *memStore) GetJob(_ context.Context, id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return cloneJob(j), nil
}

func (s *memStore) ListJobs(_ context.Context, f JobFilter) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0)
	for _, j := range s.jobs {
		if f.match(j) {
			out = append(out, cloneJob(j))
		}
	}
	sort.SliceStable(out, func(i, k int) bool {
		if out[i].Target.Equal(out[k].Target) {
			return out[i].ID < out[k].ID
		}
		return out[i].Target.Before(out[k].Target)
	})
	return out, nil
}

func (s *memStore) TransitionJob(_ context.Context, id string, from, to JobState, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	if j.State != from {
		return false, nil
	}
	j.State = to
	j.UpdatedAt = at.UTC()
	s.jobs[id] = j
	return true, nil
}

func (s *memStore) RecordAttempt(_ context.Context, id string, lastErr string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	j.RetryCount++
	j.LastError = lastErr
	j.UpdatedAt = at.UTC()
	s.jobs[id] = j
	return nil
}

func (s *memStore) AppendAudit(_ context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	s.mu.Lock()
	s.audit = append(s.audit, e)
	s.mu.Unlock()
	return nil
}

func (s *memStore) Close() error { return nil }
