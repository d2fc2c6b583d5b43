package scheduler

import (
	"context"
	"sync"
	"time"

	"agendabot/internal/eventbus"
	"agendabot/internal/task/engine"
	logx "agendabot/pkg/logx"

	"github.com/robfig/cron/v3"
)

type Config struct {
	// Timezone is an IANA name used to evaluate cron specs. Empty means Local.
	Timezone string
}

type cronDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     func(ctx context.Context) error
	opt     engine.TaskOptions
	entryID cron.EntryID
}

// onceDef is a single armed timer. ver guards against a stopped timer whose
// callback already started running.
type onceDef struct {
	at    time.Time
	task  engine.Task
	timer *time.Timer
	ver   uint64
}

type Service struct {
	mu     sync.Mutex
	log    logx.Logger
	cfg    Config
	loc    *time.Location
	bus    eventbus.Bus
	engine *engine.Service
	parser cron.Parser
	c      *cron.Cron
	defs   []cronDef

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time

	tmu     sync.Mutex
	once    map[string]*onceDef
	onceVer uint64
	started bool
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Timezone  string
	Schedules []ScheduleInfo
	// Armed is the number of one-shot timers currently waiting.
	Armed  int
	Engine engine.Snapshot
}
