// Package bus routes published events to every subscriber whose rule matches.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dejobratic/orderbus/internal/events"
	"github.com/dejobratic/orderbus/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrHandlerPanic is wrapped in the Result of a target that panicked.
	ErrHandlerPanic = errors.New("handler panicked")
	// ErrRouterClosed is returned by Publish once Drain has started.
	ErrRouterClosed = errors.New("router is draining")
)

// DispatchError describes a single target failing during fan-out.
type DispatchError struct {
	Rule   string
	Target string
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to %s (rule %s): %v", e.Target, e.Rule, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Result is the outcome of delivering one event to one target.
type Result struct {
	Rule       string
	Target     string
	EventID    string
	DetailType string
	Duration   time.Duration
	Err        error
}

// OK reports whether the target handled the event without error.
func (r Result) OK() bool {
	return r.Err == nil
}

// Observer receives dispatch outcomes. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	ObserveDispatch(ctx context.Context, result Result)
	ObserveUnrouted(ctx context.Context, event events.Event)
}

// Router evaluates published events against an immutable RuleSet and invokes
// each matching target in its own goroutine.
type Router struct {
	rules     *RuleSet
	observers []Observer
	logger    *slog.Logger

	// mu orders Publish's inflight.Add against Drain closing the router.
	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

type Option func(*Router)

func WithObserver(o Observer) Option {
	return func(r *Router) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRouter(rules *RuleSet, opts ...Option) *Router {
	r := &Router{
		rules:  rules,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish validates event and schedules delivery to every matching target.
// It returns before any target runs; only validation failures and
// ErrRouterClosed are reported.
func (r *Router) Publish(ctx context.Context, event events.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRouterClosed
	}

	ctx, span := telemetry.StartEventSpan(ctx, "Router.Publish", event, trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	matched := r.rules.match(event)
	telemetry.AddSpanAttributes(span, attribute.Int("event.matched_rules", len(matched)))

	if len(matched) == 0 {
		r.logger.DebugContext(ctx, "event matched no rule",
			"event_id", event.ID.String(),
			"source", event.Source,
			"detail_type", event.DetailType,
		)
		for _, o := range r.observers {
			o.ObserveUnrouted(ctx, event)
		}
		return nil
	}

	// Fan-out outlives the publisher's request.
	dispatchCtx := context.WithoutCancel(ctx)
	for _, rule := range matched {
		r.inflight.Add(1)
		go r.dispatch(dispatchCtx, rule, event.Clone())
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (r *Router) dispatch(ctx context.Context, rule boundRule, event events.Event) {
	defer r.inflight.Done()

	ctx, span := telemetry.StartEventSpan(ctx, "Router.Dispatch", event, trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("bus.rule", rule.Name),
		attribute.String("bus.target", rule.Target),
	)

	start := time.Now()
	err := invoke(ctx, rule.handler, event)

	result := Result{
		Rule:       rule.Name,
		Target:     rule.Target,
		EventID:    event.ID.String(),
		DetailType: event.DetailType,
		Duration:   time.Since(start),
	}

	if err != nil {
		result.Err = &DispatchError{Rule: rule.Name, Target: rule.Target, Err: err}
		telemetry.RecordSpanError(span, result.Err)
		r.logger.ErrorContext(ctx, "event dispatch failed",
			"error", err,
			"rule", rule.Name,
			"target", rule.Target,
			"event_id", result.EventID,
			"detail_type", event.DetailType,
		)
	} else {
		telemetry.SetSpanSuccess(span)
	}

	for _, o := range r.observers {
		o.ObserveDispatch(ctx, result)
	}
}

func invoke(ctx context.Context, h Handler, event events.Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()
	return h.Handle(ctx, event)
}

// Drain stops the router accepting events and blocks until every in-flight
// dispatch has finished or ctx is done.
func (r *Router) Drain(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain router: %w", ctx.Err())
	}
}

// RuleSet returns the routing table the router was built with.
func (r *Router) RuleSet() *RuleSet {
	return r.rules
}
