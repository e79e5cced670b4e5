// Package updater coalesces changed addresses into one flush per microtask
// checkpoint and delivers the affected bindings to a Sink.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wcstack/statecore/pkg/address"
	"github.com/wcstack/statecore/pkg/ctxlog"
	"github.com/wcstack/statecore/pkg/loop"
	"github.com/wcstack/statecore/pkg/metrics"
)

// ErrFlushPanic wraps a panic raised by a resolver or sink during a flush.
var ErrFlushPanic = errors.New("updater: flush panicked")

// Binding is an observer of one address.
type Binding interface {
	Target() *address.AbsoluteStateAddress
}

// Resolver produces the current value of an address at flush time.
type Resolver interface {
	Resolve(addr *address.AbsoluteStateAddress) (any, error)
}

type ResolverFunc func(addr *address.AbsoluteStateAddress) (any, error)

func (f ResolverFunc) Resolve(addr *address.AbsoluteStateAddress) (any, error) { return f(addr) }

type OnErrorFunc func(err error)

// Stamp tracks changes to one state instance. Revision counts enqueued
// changes; Version counts wholesale replacements of the state.
type Stamp struct {
	Version  uint64
	Revision uint64
}

type Queue struct {
	scheduler loop.Scheduler
	resolver  Resolver
	sink      Sink
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	onError   OnErrorFunc

	bindings map[*address.AbsoluteStateAddress][]Binding
	stamps   map[string]*Stamp
	pending  *Pending
}

type Option func(*Queue)

func WithSink(sink Sink) Option { return func(q *Queue) { q.sink = sink } }

func WithLogger(logger *slog.Logger) Option { return func(q *Queue) { q.logger = logger } }

func WithMetrics(m *metrics.Metrics) Option { return func(q *Queue) { q.metrics = m } }

func WithTracer(tracer trace.Tracer) Option { return func(q *Queue) { q.tracer = tracer } }

// WithOnError receives errors raised during a flush, where there is no
// caller to return them to.
func WithOnError(fn OnErrorFunc) Option { return func(q *Queue) { q.onError = fn } }

func New(scheduler loop.Scheduler, resolver Resolver, opts ...Option) *Queue {
	q := &Queue{
		scheduler: scheduler,
		resolver:  resolver,
		logger:    ctxlog.Discard,
		bindings:  map[*address.AbsoluteStateAddress][]Binding{},
		stamps:    map[string]*Stamp{},
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.tracer == nil {
		q.tracer = otel.Tracer("github.com/wcstack/statecore/pkg/updater")
	}
	return q
}

// Enqueue adds addr to the pending batch, scheduling a flush if none is
// pending. All enqueues before the next checkpoint share the returned Pending.
func (q *Queue) Enqueue(addr *address.AbsoluteStateAddress) *Pending {
	q.stamp(addr.StateName()).Revision++
	if q.pending == nil {
		q.pending = newPending()
		q.scheduler.QueueMicrotask(q.flush)
	}
	q.pending.add(addr)
	return q.pending
}

// Pending returns the batch waiting for the next checkpoint, or nil.
func (q *Queue) Pending() *Pending { return q.pending }

// BumpVersion records a wholesale replacement of stateName.
func (q *Queue) BumpVersion(stateName string) Stamp {
	s := q.stamp(stateName)
	s.Version++
	return *s
}

func (q *Queue) Stamp(stateName string) Stamp {
	if s, ok := q.stamps[stateName]; ok {
		return *s
	}
	return Stamp{}
}

func (q *Queue) stamp(stateName string) *Stamp {
	s, ok := q.stamps[stateName]
	if !ok {
		s = &Stamp{}
		q.stamps[stateName] = s
	}
	return s
}

// Bind registers b for notifications about b.Target(). Binding the same
// value twice has no effect.
func (q *Queue) Bind(b Binding) {
	target := b.Target()
	for _, existing := range q.bindings[target] {
		if existing == b {
			return
		}
	}
	q.bindings[target] = append(q.bindings[target], b)
}

func (q *Queue) Unbind(b Binding) bool {
	target := b.Target()
	list := q.bindings[target]
	for i, existing := range list {
		if existing == b {
			list = append(list[:i:i], list[i+1:]...)
			if len(list) == 0 {
				delete(q.bindings, target)
			} else {
				q.bindings[target] = list
			}
			return true
		}
	}
	return false
}

// Bindings returns the bindings registered for addr.
func (q *Queue) Bindings(addr *address.AbsoluteStateAddress) []Binding {
	return q.bindings[addr]
}

// BoundAddresses returns every address of stateName with at least one
// binding.
func (q *Queue) BoundAddresses(stateName string) []*address.AbsoluteStateAddress {
	var out []*address.AbsoluteStateAddress
	for addr := range q.bindings {
		if addr.StateName() == stateName {
			out = append(out, addr)
		}
	}
	return out
}

func (q *Queue) flush() {
	p := q.pending
	q.pending = nil

	ctx, span := q.tracer.Start(context.Background(), "statecore.flush",
		trace.WithAttributes(
			attribute.String("batch_id", p.id.String()),
			attribute.Int("addresses", len(p.order)),
		),
	)
	defer span.End()
	ctx = ctxlog.WithLogger(ctx, q.logger)
	logger := ctxlog.FromContext(ctx)

	var errs []error
	defer func() {
		if r := recover(); r != nil {
			errs = append(errs, q.fail(logger, span, "flush panic", fmt.Errorf("%w: %v", ErrFlushPanic, r)))
			p.resolve(errors.Join(errs...))
			panic(r)
		}
	}()
	seen := mapset.NewThreadUnsafeSet[Binding]()
	notifications := make([]Notification, 0, len(p.order))
	for _, addr := range p.order {
		for _, b := range q.bindings[addr] {
			if !seen.Add(b) {
				continue
			}
			value, err := q.resolver.Resolve(b.Target())
			if err != nil {
				errs = append(errs, q.fail(logger, span, "resolve binding", err))
				continue
			}
			notifications = append(notifications, Notification{Binding: b, Value: value})
		}
	}

	f := Flush{ID: p.id, Addresses: p.order, Notifications: notifications}
	if q.sink != nil {
		if err := q.sink.Notify(ctx, f); err != nil {
			errs = append(errs, q.fail(logger, span, "notify sink", err))
		}
	}

	if q.metrics != nil {
		q.metrics.Flushes.Inc()
		q.metrics.Notifications.Add(float64(len(notifications)))
		q.metrics.BatchSize.Observe(float64(len(p.order)))
	}
	span.SetAttributes(attribute.Int("notifications", len(notifications)))
	logger.Debug("flushed updates",
		"batch", p.id,
		"addresses", len(p.order),
		"notifications", len(notifications),
	)

	p.resolve(errors.Join(errs...))
	if len(errs) == 0 {
		span.SetStatus(codes.Ok, "")
	}
}

func (q *Queue) fail(logger *slog.Logger, span trace.Span, what string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, what)
	logger.Error("flush failed", "step", what, "error", err)
	if q.metrics != nil {
		q.metrics.FlushErrors.Inc()
	}
	if q.onError != nil {
		q.onError(err)
	}
	return err
}

// Pending is one batch waiting for its flush.
type Pending struct {
	id    uuid.UUID
	done  chan struct{}
	addrs mapset.Set[*address.AbsoluteStateAddress]
	order []*address.AbsoluteStateAddress
	err   error
}

func newPending() *Pending {
	return &Pending{
		id:    uuid.New(),
		done:  make(chan struct{}),
		addrs: mapset.NewThreadUnsafeSet[*address.AbsoluteStateAddress](),
	}
}

func (p *Pending) add(addr *address.AbsoluteStateAddress) {
	if p.addrs.Add(addr) {
		p.order = append(p.order, addr)
	}
}

func (p *Pending) resolve(err error) {
	p.err = err
	close(p.done)
}

func (p *Pending) ID() uuid.UUID { return p.id }

// Done is closed once the batch has been flushed.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err reports the errors raised by the flush. It is nil until Done is closed.
func (p *Pending) Err() error { return p.err }

// Addresses returns the distinct addresses collected so far, in enqueue order.
func (p *Pending) Addresses() []*address.AbsoluteStateAddress { return p.order }
