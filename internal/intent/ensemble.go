package intent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	logx "agendabot/pkg/logx"

	"golang.org/x/sync/errgroup"
)

const DefaultTimeout = 3 * time.Second

// Member is a configured backend with its vote weight and timeout.
type Member struct {
	Backend Backend
	Weight  float64
	Timeout time.Duration
}

// Observer receives one call per backend per classification.
// outcome is "ok", "timeout", "error" or "invalid".
type Observer func(backend, outcome string, took time.Duration)

type Ensemble struct {
	members []Member
	tiers   Tiers
	timeout time.Duration
	log     logx.Logger
	observe Observer
}

type Option func(*Ensemble)

func WithTiers(t Tiers) Option { return func(e *Ensemble) { e.tiers = t } }

// WithTimeout sets the per-backend timeout used when a member has none.
func WithTimeout(d time.Duration) Option { return func(e *Ensemble) { e.timeout = d } }

func WithLogger(l logx.Logger) Option { return func(e *Ensemble) { e.log = l } }

func WithObserver(o Observer) Option { return func(e *Ensemble) { e.observe = o } }

func NewEnsemble(members []Member, opts ...Option) *Ensemble {
	e := &Ensemble{members: members, tiers: DefaultTiers(), timeout: DefaultTimeout, log: logx.Nop()}
	for _, o := range opts {
		o(e)
	}
	e.tiers = e.tiers.withDefaults()
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	e.log = e.log.Component("intent")
	return e
}

// Size is the configured backend count.
func (e *Ensemble) Size() int { return len(e.members) }

func (e *Ensemble) Names() []string {
	out := make([]string, len(e.members))
	for i, m := range e.members {
		out[i] = m.Backend.Name()
	}
	return out
}

type outcome struct {
	vote *Vote
	fail string
}

// Classify asks every backend concurrently and aggregates whatever arrives
// before each backend's timeout. It returns ErrClassifierUnavailable, with an
// unknown result, when nothing arrived.
func (e *Ensemble) Classify(ctx context.Context, text string, in Input) (Result, error) {
	outs := make([]outcome, len(e.members))
	var g errgroup.Group
	for i, m := range e.members {
		g.Go(func() error {
			outs[i] = e.ask(ctx, m, text, in)
			return nil
		})
	}
	_ = g.Wait()

	votes := make([]Vote, 0, len(outs))
	failures := map[string]string{}
	for i, o := range outs {
		if o.vote != nil {
			votes = append(votes, *o.vote)
			continue
		}
		failures[e.members[i].Backend.Name()] = o.fail
	}

	res, err := Aggregate(votes, len(e.members), e.tiers)
	if len(failures) > 0 {
		res.Failures = failures
	}
	if err != nil {
		e.log.Warn("no classifier backend responded", logx.Int("configured", len(e.members)), logx.Any("failures", failures))
		return res, err
	}
	e.log.Debug("intent resolved",
		logx.String("intent", string(res.Intent)),
		logx.Float64("confidence", res.Confidence),
		logx.Int("agreement", res.Agreement),
		logx.Int("responded", res.Responded),
		logx.Int("configured", res.Configured),
	)
	return res, nil
}

// ask runs one backend under its own timeout. The call runs in its own
// goroutine so a backend that ignores ctx still cannot hold up the ensemble.
func (e *Ensemble) ask(ctx context.Context, m Member, text string, in Input) outcome {
	name := m.Backend.Name()
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		p   Prediction
		err error
	}
	ch := make(chan reply, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("classifier backend panic", logx.String("backend", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				ch <- reply{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		p, err := m.Backend.Classify(cctx, text, in)
		ch <- reply{p: p, err: err}
	}()

	var r reply
	select {
	case r = <-ch:
	case <-cctx.Done():
		r = reply{err: cctx.Err()}
	}
	took := time.Since(start)

	if r.err != nil {
		kind := "error"
		if errors.Is(r.err, context.DeadlineExceeded) {
			kind = "timeout"
		}
		e.emit(name, kind, took)
		e.log.Debug("classifier backend failed", logx.String("backend", name), logx.String("outcome", kind), logx.Err(r.err), logx.Duration("took", took))
		return outcome{fail: kind + ": " + r.err.Error()}
	}
	p, err := r.p.validate()
	if err != nil {
		e.emit(name, "invalid", took)
		return outcome{fail: fmt.Sprintf("invalid: intent %q", r.p.Intent)}
	}
	e.emit(name, "ok", took)
	w := m.Weight
	if w <= 0 {
		w = 1
	}
	return outcome{vote: &Vote{Source: name, Intent: p.Intent, Confidence: p.Confidence, Weight: w, Latency: took}}
}

func (e *Ensemble) emit(backend, outcome string, took time.Duration) {
	if e.observe != nil {
		e.observe(backend, outcome, took)
	}
}
