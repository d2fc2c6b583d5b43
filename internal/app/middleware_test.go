package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	kit "agendabot/internal/transport"
	logx "agendabot/pkg/logx"
)

func TestChainOrder(t *testing.T) {
	t.Parallel()
	var trace []string
	mark := func(name string) middleware {
		return func(next handlerFunc) handlerFunc {
			return func(ctx context.Context, req *request) error {
				trace = append(trace, name)
				return next(ctx, req)
			}
		}
	}
	h := chain(func(context.Context, *request) error {
		trace = append(trace, "handler")
		return nil
	}, mark("a"), mark("b"))
	if err := h(context.Background(), newRequest(kit.Message{}, logx.Nop())); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(trace, ","); got != "a,b,handler" {
		t.Fatalf("order = %s", got)
	}
}

func TestWithAccess(t *testing.T) {
	t.Parallel()
	ok := func(context.Context, *request) error { return nil }
	open := withAccess(nil)(ok)
	closed := withAccess(map[int64]bool{7: true})(ok)

	if err := open(context.Background(), newRequest(kit.Message{FromID: 1}, logx.Nop())); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := closed(context.Background(), newRequest(kit.Message{FromID: 7}, logx.Nop())); err != nil {
		t.Fatalf("allowed: %v", err)
	}
	if err := closed(context.Background(), newRequest(kit.Message{FromID: 8}, logx.Nop())); !errors.Is(err, errForbidden) {
		t.Fatalf("stranger: %v", err)
	}
}

func TestWithRateLimitPerUser(t *testing.T) {
	t.Parallel()
	h := withRateLimit(newUserLimiter(1, 2))(func(context.Context, *request) error { return nil })
	call := func(user int64) error {
		return h(context.Background(), newRequest(kit.Message{FromID: user}, logx.Nop()))
	}
	for i := range 2 {
		if err := call(1); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if err := call(1); !errors.Is(err, errRateLimited) {
		t.Fatalf("third call: %v", err)
	}
	if err := call(2); err != nil {
		t.Fatalf("other user: %v", err)
	}
}

func TestWithRecoverAndTimeout(t *testing.T) {
	t.Parallel()
	boom := withRecover()(func(context.Context, *request) error { panic("boom") })
	if err := boom(context.Background(), newRequest(kit.Message{}, logx.Nop())); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("recover: %v", err)
	}

	var deadline time.Time
	h := withTimeout(time.Second)(func(ctx context.Context, _ *request) error {
		deadline, _ = ctx.Deadline()
		return nil
	})
	_ = h(context.Background(), newRequest(kit.Message{}, logx.Nop()))
	if deadline.IsZero() {
		t.Fatal("no deadline set")
	}
}

func TestHandlerEndpointUsesChatAsOwner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	req := newRequest(kit.Message{ChatID: 42, FromID: 1, Text: "/list"}, logx.Nop())
	if req.owner != "42" {
		t.Fatalf("owner = %q", req.owner)
	}
	if err := handlerEndpoint(f.h)(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if req.reply != "📭 No upcoming reminders." {
		t.Fatalf("reply = %q", req.reply)
	}
}
