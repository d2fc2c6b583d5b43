package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "agendabot/pkg/logx"
)

// fileStore keeps the working set in memory and mirrors it to disk.
//
// Files:
//   - <prefix>.snapshot.json (events + jobs, rewritten via tmp + rename after each mutation)
//   - <prefix>.audit.jsonl   (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	// wmu serializes mutate+flush so the snapshot never lags a later write.
	wmu sync.Mutex
	mem *memStore

	snapshotPath string
	auditFile    *os.File
}

type fileSnapshot struct {
	Version int     `json:"version"`
	Events  []Event `json:"events"`
	Jobs    []Job   `json:"jobs"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	mem := newMemStore()
	snapPath := prefix + ".snapshot.json"
	if err := loadSnapshot(snapPath, mem); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		mem:          mem,
		snapshotPath: snapPath,
		auditFile:    af,
	}, nil
}

func loadSnapshot(path string, mem *memStore) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var snap fileSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return err
	}
	for _, e := range snap.Events {
		mem.events[eventKey(e.Owner, e.ID)] = e
	}
	for _, j := range snap.Jobs {
		mem.jobs[j.ID] = j
	}
	return nil
}

func (s *fileStore) flushLocked() error {
	s.mem.mu.Lock()
	snap := fileSnapshot{Version: 1}
	for _, e := range s.mem.events {
		snap.Events = append(snap.Events, e)
	}
	for _, j := range s.mem.jobs {
		snap.Jobs = append(snap.Jobs, j)
	}
	b, err := json.Marshal(snap)
	s.mem.mu.Unlock()
	if err != nil {
		return err
	}

	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.snapshotPath)
}

func (s *fileStore) mutate(fn func() error) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := fn(); err != nil {
		return err
	}
	if err := s.flushLocked(); err != nil {
		s.log.Warn("storage snapshot write failed", logx.String("path", s.snapshotPath), logx.Err(err))
		return err
	}
	return nil
}

func (s *fileStore) PutEvent(ctx context.Context, e Event) error {
	return s.mutate(func() error { return s.mem.PutEvent(ctx, e) })
}

func (s *fileStore) GetEvent(ctx context.Context, owner, id string) (Event, error) {
	return s.mem.GetEvent(ctx, owner, id)
}

func (s *fileStore) DeleteEvent(ctx context.Context, owner, id string) error {
	return s.mutate(func() error { return s.mem.DeleteEvent(ctx, owner, id) })
}

func (s *fileStore) ListEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	return s.mem.ListEvents(ctx, f)
}

func (s *fileStore) AddComment(ctx context.Context, owner, eventID string, c Comment) error {
	return s.mutate(func() error { return s.mem.AddComment(ctx, owner, eventID, c) })
}

func (s *fileStore) CreateJob(ctx context.Context, j Job) error {
	return s.mutate(func() error { return s.mem.CreateJob(ctx, j) })
}

func (s *fileStore) GetJob(ctx context.Context, id string) (Job, error) {
	return s.mem.GetJob(ctx, id)
}

func (s *fileStore) ListJobs(ctx context.Context, f JobFilter) ([]Job, error) {
	return s.mem.ListJobs(ctx, f)
}

func (s *fileStore) TransitionJob(ctx context.Context, id string, from, to JobState, at time.Time) (bool, error) {
	var won bool
	err := s.mutate(func() error {
		var err error
		won, err = s.mem.TransitionJob(ctx, id, from, to, at)
		return err
	})
	return won, err
}

func (s *fileStore) RecordAttempt(ctx context.Context, id string, lastErr string, at time.Time) error {
	return s.mutate(func() error { return s.mem.RecordAttempt(ctx, id, lastErr, at) })
}

func (s *fileStore) AppendAudit(_ context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Close() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}
