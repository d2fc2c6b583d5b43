package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"agendabot/internal/eventbus"
	kit "agendabot/internal/transport"
	logx "agendabot/pkg/logx"
)

type sent struct {
	to   kit.ChatTarget
	text string
}

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []sent
	failN int
	calls int
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Message) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                      { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failN {
		return kit.MessageRef{}, errors.New("telegram: 502")
	}
	f.sent = append(f.sent, sent{to: to, text: text})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: f.calls}, nil
}

func (f *fakeAdapter) snapshot() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func testConfig() Config {
	return Config{
		Enabled:       true,
		RatePerSec:    1000,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
		DedupWindow:   time.Minute,
	}
}

func waitSent(t *testing.T, f *fakeAdapter, n int) []sent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("sent %d messages, want %d", len(f.snapshot()), n)
	return nil
}

func TestReplyDelivered(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	s := New(testConfig(), ad, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	to := kit.ChatTarget{ChatID: 42}
	if err := s.Reply(context.Background(), to, "saved"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	got := waitSent(t, ad, 1)
	if got[0].to != to || got[0].text != "saved" {
		t.Fatalf("sent %+v", got[0])
	}
}

func TestRetryThenSuccess(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{failN: 2}
	s := New(testConfig(), ad, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	_ = s.Reply(context.Background(), kit.ChatTarget{ChatID: 1}, "x")
	waitSent(t, ad, 1)
	ad.mu.Lock()
	calls := ad.calls
	ad.mu.Unlock()
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestExhaustedRetriesPublishFailure(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	ad := &fakeAdapter{failN: 10}
	s := New(testConfig(), ad, logx.Nop(), bus)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	_ = s.Reply(context.Background(), kit.ChatTarget{ChatID: 7}, "x")
	select {
	case ev := <-events:
		if ev.Type != eventbus.NotifierFailed {
			t.Fatalf("event = %s", ev.Type)
		}
		if data, ok := ev.Data.(Event); !ok || data.ChatID != 7 || data.Error == "" {
			t.Fatalf("data = %#v", ev.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no failure event")
	}
}

func TestAlertDedup(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	s := New(testConfig(), ad, logx.Nop(), nil)
	s.SetOperator(99)
	s.Start(context.Background())

	ctx := context.Background()
	for range 3 {
		if err := s.Alert(ctx, "disk full"); err != nil {
			t.Fatalf("alert: %v", err)
		}
	}
	_ = s.Alert(ctx, "other")
	s.Stop(ctx)

	got := ad.snapshot()
	if len(got) != 2 {
		t.Fatalf("sent %d alerts, want 2: %+v", len(got), got)
	}
	for _, m := range got {
		if m.to.ChatID != 99 {
			t.Fatalf("alert went to %d", m.to.ChatID)
		}
	}
}

func TestAlertWithoutOperator(t *testing.T) {
	t.Parallel()

	s := New(testConfig(), &fakeAdapter{}, logx.Nop(), nil)
	if err := s.Alert(context.Background(), "x"); !errors.Is(err, ErrNoOperator) {
		t.Fatalf("err = %v", err)
	}
}

func TestNotifyStates(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Enabled = false
	off := New(cfg, &fakeAdapter{}, logx.Nop(), nil)
	if err := off.Reply(context.Background(), kit.ChatTarget{ChatID: 1}, "x"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled: err = %v", err)
	}

	idle := New(testConfig(), &fakeAdapter{}, logx.Nop(), nil)
	if err := idle.Reply(context.Background(), kit.ChatTarget{ChatID: 1}, "x"); !errors.Is(err, ErrStopped) {
		t.Fatalf("not started: err = %v", err)
	}
}

func TestDeliverParsesOwner(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	s := New(testConfig(), ad, logx.Nop(), nil)
	if err := s.Deliver(context.Background(), "12345", "⏰ Dentist"); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	got := ad.snapshot()
	if len(got) != 1 || got[0].to.ChatID != 12345 {
		t.Fatalf("sent %+v", got)
	}
	if err := s.Deliver(context.Background(), "alice", "x"); !errors.Is(err, ErrInvalidChat) {
		t.Fatalf("err = %v", err)
	}
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()

	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 8; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > cfg.RetryMaxDelay {
			t.Fatalf("attempt %d: delay %s out of range", attempt, d)
		}
	}
	if d := retryDelay(cfg, 1); d < 70*time.Millisecond || d > 130*time.Millisecond {
		t.Fatalf("first delay %s", d)
	}
}
