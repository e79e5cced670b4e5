package updater

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wcstack/statecore/pkg/address"
)

// Notification pairs a binding with the value it should now show.
type Notification struct {
	Binding Binding
	Value   any
}

// Flush is one coalesced batch. Addresses are the distinct addresses that
// were enqueued; Notifications the bindings they affected, each at most once.
type Flush struct {
	ID            uuid.UUID
	Addresses     []*address.AbsoluteStateAddress
	Notifications []Notification
}

// Sink applies flushes to some output medium.
type Sink interface {
	Notify(ctx context.Context, flush Flush) error
}

type SinkFunc func(ctx context.Context, flush Flush) error

func (f SinkFunc) Notify(ctx context.Context, flush Flush) error { return f(ctx, flush) }

// MultiSink fans a flush out to several sinks. Every sink is called even if
// an earlier one fails.
type MultiSink []Sink

func (m MultiSink) Notify(ctx context.Context, flush Flush) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, flush); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoOpSink discards every flush.
type NoOpSink struct{}

func (NoOpSink) Notify(context.Context, Flush) error { return nil }
