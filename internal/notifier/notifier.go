// Package notifier is the outbound message pipeline.
//
// Chat replies and operator alerts go through a bounded queue drained by a small worker
// pool. Sends share one token-bucket rate limit and are retried with jittered backoff.
// Alerts with identical text are suppressed for DedupWindow. Reminder deliveries bypass
// the queue: Deliver sends synchronously so the caller owns retry and failure handling.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"agendabot/internal/eventbus"
	rtsup "agendabot/internal/runtime/supervisor"
	kit "agendabot/internal/transport"
	logx "agendabot/pkg/logx"
)

var (
	ErrDisabled    = errors.New("notifier disabled")
	ErrQueueFull   = errors.New("notifier queue full")
	ErrStopped     = errors.New("notifier stopped")
	ErrNoOperator  = errors.New("notifier: no operator chat configured")
	ErrInvalidChat = errors.New("notifier: owner is not a chat id")
)

// Config controls the async pipeline.
type Config struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	DedupWindow   time.Duration
	DedupEntries  int
	SendTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 512
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	c.RetryMax = max(c.RetryMax, 0)
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	c.DedupWindow = max(c.DedupWindow, 0)
	if c.DedupEntries <= 0 {
		c.DedupEntries = 2000
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

type Kind string

const (
	KindReply Kind = "reply"
	KindAlert Kind = "alert"
)

type Notification struct {
	Kind    Kind
	Target  kit.ChatTarget
	Text    string
	Options *kit.SendOptions
}

// Event is the payload of notifier.* bus events.
type Event struct {
	Kind   Kind      `json:"kind"`
	ChatID int64     `json:"chat_id"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}

type Service struct {
	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus

	mu       sync.Mutex
	cfg      Config
	limiter  *rate.Limiter
	dedup    *expirable.LRU[string, struct{}]
	operator kit.ChatTarget

	accepting bool
	sendWG    sync.WaitGroup
	queue     chan Notification
	sup       *rtsup.Supervisor
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log.Component("notifier"), bus: bus}
	s.Apply(cfg)
	return s
}

// Apply swaps limits at runtime. Queue size and worker count take effect on the next Start.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cfg
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	if s.dedup == nil || prev.DedupWindow != cfg.DedupWindow || prev.DedupEntries != cfg.DedupEntries {
		s.dedup = nil
		if cfg.DedupWindow > 0 {
			s.dedup = expirable.NewLRU[string, struct{}](cfg.DedupEntries, nil, cfg.DedupWindow)
		}
	}
}

// SetOperator sets the chat that receives alerts. A zero chat id disables alerts.
func (s *Service) SetOperator(chatID int64) {
	s.mu.Lock()
	s.operator = kit.ChatTarget{ChatID: chatID}
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	q := make(chan Notification, s.cfg.QueueSize)
	s.queue = q
	s.accepting = true
	workers := s.cfg.Workers
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	for i := range workers {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			return s.workerLoop(c, q)
		}, rtsup.WithPublishFirstError(true))
	}
}

// Stop stops intake and drains the queue until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil || !s.accepting {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.mu.Unlock()

	s.sendWG.Wait()
	close(q)
	if err := sup.Wait(ctx); err != nil {
		sup.Cancel()
	}

	s.mu.Lock()
	s.queue = nil
	s.sup = nil
	s.mu.Unlock()
}

// Notify queues n. Alerts suppressed by dedup return nil.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting {
		s.mu.Unlock()
		return ErrStopped
	}
	q, dedup := s.queue, s.dedup
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	if n.Kind == KindAlert && dedup != nil {
		key := dedupKey(n)
		if dedup.Contains(key) {
			return nil
		}
		dedup.Add(key, struct{}{})
	}

	select {
	case q <- n:
		return nil
	default:
		s.publish(eventbus.NotifierFailed, n, ErrQueueFull)
		return ErrQueueFull
	}
}

// Reply queues a chat reply.
func (s *Service) Reply(ctx context.Context, to kit.ChatTarget, text string) error {
	return s.Notify(ctx, Notification{Kind: KindReply, Target: to, Text: text})
}

// Alert queues text for the operator chat.
func (s *Service) Alert(ctx context.Context, text string) error {
	s.mu.Lock()
	op := s.operator
	s.mu.Unlock()
	if op.ChatID == 0 {
		return ErrNoOperator
	}
	return s.Notify(ctx, Notification{Kind: KindAlert, Target: op, Text: "🚨 " + text})
}

// Deliver sends text to the chat named by owner right away, subject to the rate limit.
// It does not retry.
func (s *Service) Deliver(ctx context.Context, owner, text string) error {
	chatID, err := strconv.ParseInt(owner, 10, 64)
	if err != nil || chatID == 0 {
		return fmt.Errorf("%w: %q", ErrInvalidChat, owner)
	}
	s.mu.Lock()
	lim, timeout := s.limiter, s.cfg.SendTimeout
	s.mu.Unlock()
	if err := lim.Wait(ctx); err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err = s.adapter.SendText(cctx, kit.ChatTarget{ChatID: chatID}, text, nil)
	return err
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Notification) error {
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case n, ok := <-q:
			if !ok {
				return nil
			}
			s.sendWithRetry(ctx, n)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, n Notification) {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()

	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		cctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := s.adapter.SendText(cctx, n.Target, n.Text, n.Options)
		cancel()
		if err == nil {
			return
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", attempts))
		if attempt == attempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	// Alerts are not logged at warn level: the log sink would forward them back here.
	if n.Kind == KindAlert {
		s.log.Debug("operator alert dropped", logx.Err(lastErr))
	} else {
		s.log.Warn("reply dropped", logx.Int64("chat_id", n.Target.ChatID), logx.Err(lastErr))
	}
	s.publish(eventbus.NotifierFailed, n, lastErr)
}

func (s *Service) publish(typ string, n Notification, err error) {
	ev := Event{Kind: n.Kind, ChatID: n.Target.ChatID, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	eventbus.Publish(s.bus, typ, ev)
}

func dedupKey(n Notification) string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%d:%d|%s", n.Kind, n.Target.ChatID, n.Target.ThreadID, n.Text)
	return strconv.FormatUint(h.Sum64(), 16)
}

// retryDelay is the wait before attempt+1: base doubled per attempt, capped, jittered by ±30%.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(min(d, cfg.RetryMaxDelay)) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}
