package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "agendabot/pkg/logx"
)

// dialect captures the few places where sqlite and mysql differ.
type dialect struct {
	name string
	// lockRead is appended to read-modify-write selects inside a transaction.
	lockRead string
}

// sqlStore implements Store on database/sql. Times are stored as unix milliseconds.
type sqlStore struct {
	db  *sql.DB
	d   dialect
	log logx.Logger
}

const eventCols = `owner, id, kind, title, start_ms, end_ms, location, contacts, priority, recurrence, comments, created_ms, updated_ms`
const jobCols = `id, owner, event_id, due_ms, target_ms, lead_minutes, template, snapshot, retry_count, max_retries, state, last_error, created_ms, updated_ms`

func toMS(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMS(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func marshalJSON(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return string(b), nil
}

func unmarshalJSON(ns sql.NullString, out any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), out)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (Event, error) {
	var (
		e                                   Event
		kind                                string
		startMS, endMS, createdMS, updateMS int64
		location, priority, recurrence      sql.NullString
		contacts, comments                  sql.NullString
	)
	if err := r.Scan(&e.Owner, &e.ID, &kind, &e.Title, &startMS, &endMS, &location, &contacts,
		&priority, &recurrence, &comments, &createdMS, &updateMS); err != nil {
		return Event{}, err
	}
	e.Kind = EventKind(kind)
	e.Start, e.End = fromMS(startMS), fromMS(endMS)
	e.Location, e.Priority, e.Recurrence = location.String, priority.String, recurrence.String
	e.CreatedAt, e.UpdatedAt = fromMS(createdMS), fromMS(updateMS)
	if err := unmarshalJSON(contacts, &e.Contacts); err != nil {
		return Event{}, fmt.Errorf("decode contacts: %w", err)
	}
	if err := unmarshalJSON(comments, &e.Comments); err != nil {
		return Event{}, fmt.Errorf("decode comments: %w", err)
	}
	return e, nil
}

func scanJob(r rowScanner) (Job, error) {
	var (
		j                                    Job
		state                                string
		eventID, snapshot, lastErr           sql.NullString
		dueMS, targetMS, createdMS, updateMS int64
	)
	if err := r.Scan(&j.ID, &j.Owner, &eventID, &dueMS, &targetMS, &j.LeadMinutes, &j.Template,
		&snapshot, &j.RetryCount, &j.MaxRetries, &state, &lastErr, &createdMS, &updateMS); err != nil {
		return Job{}, err
	}
	j.EventID, j.LastError = eventID.String, lastErr.String
	j.State = JobState(state)
	j.Due, j.Target = fromMS(dueMS), fromMS(targetMS)
	j.CreatedAt, j.UpdatedAt = fromMS(createdMS), fromMS(updateMS)
	if err := unmarshalJSON(snapshot, &j.Snapshot); err != nil {
		return Job{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return j, nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) insertEvent(ctx context.Context, tx *sql.Tx, e Event) error {
	contacts, err := marshalJSON(e.Contacts)
	if err != nil {
		return err
	}
	comments, err := marshalJSON(e.Comments)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO events(`+eventCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.Owner, e.ID, string(e.Kind), e.Title, toMS(e.Start), toMS(e.End), nullStr(e.Location),
		contacts, nullStr(e.Priority), nullStr(e.Recurrence), comments, toMS(e.CreatedAt), toMS(e.UpdatedAt),
	)
	return err
}

func (s *sqlStore) PutEvent(ctx context.Context, e Event) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.Owner == "" || e.ID == "" {
		return errors.New("storage: event owner and id are required")
	}
	now := time.Now().UTC()
	e.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if e.CreatedAt.IsZero() {
		var created int64
		err := tx.QueryRowContext(ctx,
			`SELECT created_ms FROM events WHERE owner = ? AND id = ?`+s.d.lockRead, e.Owner, e.ID).Scan(&created)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			e.CreatedAt = now
		case err != nil:
			return err
		default:
			e.CreatedAt = fromMS(created)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE owner = ? AND id = ?`, e.Owner, e.ID); err != nil {
		return err
	}
	if err := s.insertEvent(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqlStore) GetEvent(ctx context.Context, owner, id string) (Event, error) {
	if s == nil || s.db == nil {
		return Event{}, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+eventCols+` FROM events WHERE owner = ? AND id = ?`, owner, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	return e, err
}

func (s *sqlStore) DeleteEvent(ctx context.Context, owner, id string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) ListEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	q := `SELECT ` + eventCols + ` FROM events WHERE owner = ?`
	args := []any{f.Owner}
	if !f.To.IsZero() {
		q += ` AND start_ms < ?`
		args = append(args, toMS(f.To))
	}
	if !f.From.IsZero() {
		q += ` AND (CASE WHEN end_ms > start_ms THEN end_ms > ? ELSE start_ms >= ? END)`
		args = append(args, toMS(f.From), toMS(f.From))
	}
	q += ` ORDER BY start_ms, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqlStore) AddComment(ctx context.Context, owner, eventID string, c Comment) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var raw sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT comments FROM events WHERE owner = ? AND id = ?`+s.d.lockRead, owner, eventID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	var comments []Comment
	if err := unmarshalJSON(raw, &comments); err != nil {
		return err
	}
	comments = append(comments, c)
	enc, err := marshalJSON(comments)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE events SET comments = ?, updated_ms = ? WHERE owner = ? AND id = ?`,
		enc, toMS(time.Now()), owner, eventID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqlStore) CreateJob(ctx context.Context, j Job) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if j.ID == "" {
		return errors.New("storage: job id is required")
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = j.CreatedAt
	}
	snap, err := marshalJSON(j.Snapshot)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs(`+jobCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.Owner, nullStr(j.EventID), toMS(j.Due), toMS(j.Target), j.LeadMinutes, j.Template, snap,
		j.RetryCount, j.MaxRetries, string(j.State), nullStr(j.LastError), toMS(j.CreatedAt), toMS(j.UpdatedAt),
	)
	return err
}

func (s *sqlStore) GetJob(ctx context.Context, id string) (Job, error) {
	if s == nil || s.db == nil {
		return Job{}, ErrDisabled
	}
	j, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return j, err
}

func (s *sqlStore) ListJobs(ctx context.Context, f JobFilter) ([]Job, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	q := `SELECT ` + jobCols + ` FROM jobs WHERE 1=1`
	var args []any
	if f.Owner != "" {
		q += ` AND owner = ?`
		args = append(args, f.Owner)
	}
	if f.EventID != "" {
		q += ` AND event_id = ?`
		args = append(args, f.EventID)
	}
	if len(f.States) > 0 {
		q += ` AND state IN (?` + strings.Repeat(",?", len(f.States)-1) + `)`
		for _, st := range f.States {
			args = append(args, string(st))
		}
	}
	q += ` ORDER BY target_ms, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *sqlStore) TransitionJob(ctx context.Context, id string, from, to JobState, at time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, updated_ms = ? WHERE id = ? AND state = ?`,
		string(to), toMS(at), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.GetJob(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *sqlStore) RecordAttempt(ctx context.Context, id string, lastErr string, at time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET retry_count = retry_count + 1, last_error = ?, updated_ms = ? WHERE id = ?`,
		nullStr(lastErr), toMS(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	ok := 0
	if e.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at_ms, owner, action, target, intent, ok, err, took_ms, meta) VALUES(?,?,?,?,?,?,?,?,?)`,
		toMS(e.At), e.Owner, e.Action, nullStr(e.Target), nullStr(e.Intent), ok, nullStr(e.Error), e.TookMS, nullStr(e.MetaJSON),
	)
	return err
}

// execScript runs a ;-separated schema script one statement at a time; the mysql driver
// rejects multi-statement Exec unless multiStatements is set in the DSN.
func execScript(ctx context.Context, db *sql.DB, script string) error {
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
