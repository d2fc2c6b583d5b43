// Package storage persists events, reminder jobs and the audit trail.
//
// Drivers:
//   - "memory": process-local maps (tests, throwaway runs)
//   - "file":   JSON snapshot rewritten atomically on every mutation + audit JSON Lines
//   - "sqlite": SQLite via modernc.org/sqlite (pure Go)
//   - "mysql":  MySQL via go-sql-driver/mysql
//
// Job records are authoritative: scheduler timers and delivery workers only move a job between
// states through TransitionJob, an atomic compare-and-set.
package storage
