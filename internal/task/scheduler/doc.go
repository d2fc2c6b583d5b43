// Package scheduler turns time into engine tasks.
//
// It owns two kinds of triggers: named cron schedules (robfig/cron) and
// one-shot timers keyed by an arbitrary string. Neither executes work itself;
// every firing becomes an engine.Task on the task engine.
package scheduler
