package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	kit "agendabot/internal/transport"
	logx "agendabot/pkg/logx"
)

const (
	DefaultHandleTimeout = 30 * time.Second
	DefaultRatePerMinute = 20
	DefaultRateBurst     = 5
)

var (
	errForbidden   = errors.New("sender not allowed")
	errRateLimited = errors.New("sender rate limited")
)

// request is one inbound message on its way through the middleware chain.
type request struct {
	msg   kit.Message
	owner string
	log   logx.Logger
	reply string
}

type handlerFunc func(ctx context.Context, req *request) error

type middleware func(next handlerFunc) handlerFunc

func chain(h handlerFunc, m ...middleware) handlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func withTimeout(d time.Duration) middleware {
	return func(next handlerFunc) handlerFunc {
		return func(ctx context.Context, req *request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func withRecover() middleware {
	return func(next handlerFunc) handlerFunc {
		return func(ctx context.Context, req *request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					req.log.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func withRequestLog() middleware {
	return func(next handlerFunc) handlerFunc {
		return func(ctx context.Context, req *request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)
			fields := []logx.Field{
				logx.Int64("chat_id", req.msg.ChatID),
				logx.Int64("from_id", req.msg.FromID),
				logx.Int("text_len", len(req.msg.Text)),
				logx.Duration("dur", d),
			}
			switch {
			case errors.Is(err, errForbidden), errors.Is(err, errRateLimited):
				req.log.Debug("request dropped", append(fields, logx.Err(err))...)
			case err != nil:
				req.log.Warn("request failed", append(fields, logx.Err(err))...)
			case d >= 2*time.Second:
				req.log.Info("request ok", fields...)
			default:
				req.log.Debug("request ok", fields...)
			}
			return err
		}
	}
}

// withAccess drops messages from senders outside allowed. An empty set allows everyone.
func withAccess(allowed map[int64]bool) middleware {
	return func(next handlerFunc) handlerFunc {
		return func(ctx context.Context, req *request) error {
			if len(allowed) > 0 && !allowed[req.msg.FromID] {
				return errForbidden
			}
			return next(ctx, req)
		}
	}
}

// userLimiter hands out one token bucket per sender. Idle buckets expire.
type userLimiter struct {
	every rate.Limit
	burst int
	cache *expirable.LRU[int64, *rate.Limiter]
}

func newUserLimiter(perMinute float64, burst int) *userLimiter {
	if perMinute <= 0 {
		perMinute = DefaultRatePerMinute
	}
	if burst <= 0 {
		burst = DefaultRateBurst
	}
	return &userLimiter{
		every: rate.Limit(perMinute / 60),
		burst: burst,
		cache: expirable.NewLRU[int64, *rate.Limiter](4096, nil, 30*time.Minute),
	}
}

func (u *userLimiter) allow(user int64) bool {
	l, ok := u.cache.Get(user)
	if !ok {
		l = rate.NewLimiter(u.every, u.burst)
		u.cache.Add(user, l)
	}
	return l.Allow()
}

// withRateLimit drops messages from a sender over its budget.
func withRateLimit(u *userLimiter) middleware {
	return func(next handlerFunc) handlerFunc {
		return func(ctx context.Context, req *request) error {
			if !u.allow(req.msg.FromID) {
				return errRateLimited
			}
			return next(ctx, req)
		}
	}
}

// handlerEndpoint runs the Handler and stores its reply on the request.
func handlerEndpoint(h *Handler) handlerFunc {
	return func(ctx context.Context, req *request) error {
		req.reply = h.Handle(ctx, req.owner, req.msg.Text)
		return nil
	}
}

func newRequest(msg kit.Message, log logx.Logger) *request {
	owner := strconv.FormatInt(msg.ChatID, 10)
	return &request{
		msg:   msg,
		owner: owner,
		log:   log.With(logx.String("owner", owner)),
	}
}
