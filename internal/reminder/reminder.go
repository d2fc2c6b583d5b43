// Package reminder persists reminder jobs, arms their timers and delivers them.
//
// The stored job is authoritative. Timers are disposable handles keyed by job
// ID: a lost timer is re-armed by the reconciliation sweep, and a stale one
// finds the job no longer pending and does nothing.
package reminder

import (
	"context"
	"errors"
	"time"

	"agendabot/internal/clock"
	"agendabot/internal/eventbus"
	"agendabot/internal/task/engine"
	logx "agendabot/pkg/logx"
)

var (
	// ErrSchedulingSkipped is returned with a missed Outcome.
	ErrSchedulingSkipped = errors.New("reminder: target time already passed")
	// ErrDeliveryFailed wraps the messenger error of a failed attempt.
	ErrDeliveryFailed = errors.New("reminder: delivery failed")
	ErrNotCancellable = errors.New("reminder: job is no longer pending")

	// errSkipped ends a delivery task without touching the job.
	errSkipped = errors.New("reminder: job not claimable")
)

const (
	DefaultMaxLead         = 120
	DefaultMissedWindow    = 5 * time.Minute
	DefaultArmWindow       = 48 * time.Hour
	DefaultSweepSchedule   = "@every 5m"
	DefaultMaxRetries      = 3
	DefaultRetryBase       = 2 * time.Second
	DefaultRetryMaxDelay   = 8 * time.Second
	DefaultDeliveryTimeout = 30 * time.Second

	// SweepName is the cron schedule name of the reconciliation sweep.
	SweepName    = "reminder.sweep"
	deliveryName = "reminder.deliver"
)

// Config is shared by Scheduler and Worker.
//
// MaxRetries 0 takes the default; a negative value disables retries.
type Config struct {
	MaxLeadMinutes  int
	MissedWindow    time.Duration
	ArmWindow       time.Duration
	SweepSchedule   string
	MaxRetries      int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DeliveryTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxLeadMinutes <= 0 {
		c.MaxLeadMinutes = DefaultMaxLead
	}
	if c.MissedWindow <= 0 {
		c.MissedWindow = DefaultMissedWindow
	}
	if c.ArmWindow <= 0 {
		c.ArmWindow = DefaultArmWindow
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = DefaultSweepSchedule
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = DefaultMaxRetries
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = DefaultDeliveryTimeout
	}
	return c
}

// Messenger sends a rendered reminder to its owner.
type Messenger interface {
	Deliver(ctx context.Context, owner, text string) error
}

// Alerter tells the operator about a reminder that could not be delivered.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// Timers is the one-shot and cron timer facility the scheduler arms.
type Timers interface {
	AddOnce(key string, at time.Time, task engine.Task) error
	AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) error
	Remove(name string) bool
	Armed(key string) bool
}

// Lifecycle stages passed to an Observer.
const (
	StageScheduled = "scheduled"
	StageMissed    = "missed"
	StageArmed     = "armed"
	StageDelivered = "delivered"
	StageRetried   = "retried"
	StageFailed    = "failed"
	StageCancelled = "cancelled"
)

type Observer func(stage string)

type deps struct {
	clock   clock.Clock
	log     logx.Logger
	bus     eventbus.Bus
	alert   Alerter
	observe Observer
}

type Option func(*deps)

func WithClock(c clock.Clock) Option  { return func(d *deps) { d.clock = c } }
func WithLogger(l logx.Logger) Option { return func(d *deps) { d.log = l } }
func WithBus(b eventbus.Bus) Option   { return func(d *deps) { d.bus = b } }
func WithAlerter(a Alerter) Option    { return func(d *deps) { d.alert = a } }
func WithObserver(o Observer) Option  { return func(d *deps) { d.observe = o } }

func buildDeps(opts []Option) deps {
	d := deps{clock: clock.System, log: logx.Nop()}
	for _, o := range opts {
		o(&d)
	}
	d.log = d.log.Component("reminder")
	return d
}

func (d deps) emit(stage string) {
	if d.observe != nil {
		d.observe(stage)
	}
}

// Event is the payload of reminder.* bus events.
type Event struct {
	JobID   string    `json:"job_id"`
	Owner   string    `json:"owner"`
	EventID string    `json:"event_id,omitempty"`
	Target  time.Time `json:"target"`
	Error   string    `json:"error,omitempty"`
}
