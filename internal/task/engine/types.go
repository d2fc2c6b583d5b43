package engine

import (
	"context"
	"sync"
	"time"
)

// Config controls the task execution engine. The app maps config.task_engine into it.
type Config struct {
	Enabled   bool
	Workers   int
	QueueSize int

	// DefaultTimeout applies per attempt when Task.Timeout is 0.
	DefaultTimeout time.Duration
	// MaxQueueDelay drops tasks queued longer than this. 0 disables.
	MaxQueueDelay time.Duration

	HistorySize int
	RetryMax    int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	if c.RetryMax == 0 {
		c.RetryMax = 3
	}
	return c
}

type OverlapPolicy int

const (
	OverlapAllow OverlapPolicy = iota
	// OverlapSkipIfRunning refuses a task while another with the same key is queued or running.
	OverlapSkipIfRunning
)

// TaskOptions tune retries for one task.
//
// RetryMax 0 takes the engine default, a negative value disables retries.
// RetryJitter 0 takes the default 20%, a negative value disables jitter.
type TaskOptions struct {
	Overlap       OverlapPolicy
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	RetryJitter   float64
}

func (o TaskOptions) withDefaults(cfg Config) TaskOptions {
	switch {
	case o.RetryMax == 0:
		o.RetryMax = max(cfg.RetryMax, 0)
	case o.RetryMax < 0:
		o.RetryMax = 0
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 15 * time.Second
	}
	switch {
	case o.RetryJitter == 0:
		o.RetryJitter = 0.2
	case o.RetryJitter < 0:
		o.RetryJitter = 0
	}
	return o
}

// Result describes a finished task (after all attempts).
type Result struct {
	ID         string
	Name       string
	Attempts   int
	Err        error
	QueueDelay time.Duration
	Duration   time.Duration
}

// Task is a unit of work executed by the engine.
//
// Key groups tasks for the overlap policy; it defaults to Name. OnDone runs once on the
// worker goroutine after the last attempt, or when the task is dropped as stale.
type Task struct {
	ID      string
	Name    string
	Key     string
	Timeout time.Duration
	Run     func(ctx context.Context) error
	Opt     TaskOptions
	OnDone  func(Result)
}

type attemptKey struct{}

// Attempt returns the 1-based attempt number of the running task, or 0 outside the engine.
func Attempt(ctx context.Context) int {
	n, _ := ctx.Value(attemptKey{}).(int)
	return n
}

// keyedGate tracks in-flight keys for OverlapSkipIfRunning.
type keyedGate struct {
	mu       sync.Mutex
	inflight map[string]bool
}

func (g *keyedGate) tryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight == nil {
		g.inflight = map[string]bool{}
	}
	if g.inflight[key] {
		return false
	}
	g.inflight[key] = true
	return true
}

func (g *keyedGate) release(key string) {
	g.mu.Lock()
	delete(g.inflight, key)
	g.mu.Unlock()
}

type HistoryItem struct {
	ID         string
	Name       string
	Started    time.Time
	QueueDelay time.Duration
	Duration   time.Duration
	Attempts   int
	Error      string
}

// TaskEvent is published on the event bus for task lifecycle events.
type TaskEvent struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Attempts   int           `json:"attempts"`
	Error      string        `json:"error,omitempty"`
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Enabled          bool
	Workers          int
	QueueLen         int
	QueueCap         int
	InFlight         int
	Dropped          uint64
	DroppedQueueFull uint64
	DroppedStale     uint64
	History          []HistoryItem
}
