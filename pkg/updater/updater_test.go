package updater

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wcstack/statecore/pkg/address"
	"github.com/wcstack/statecore/pkg/loop"
	"github.com/wcstack/statecore/pkg/metrics"
	"github.com/wcstack/statecore/pkg/pathinfo"
)

type binding struct {
	name   string
	target *address.AbsoluteStateAddress
}

func (b *binding) Target() *address.AbsoluteStateAddress { return b.target }

type recorder struct {
	flushes []Flush
}

func (r *recorder) Notify(_ context.Context, f Flush) error {
	r.flushes = append(r.flushes, f)
	return nil
}

func values(m map[string]any) ResolverFunc {
	return func(addr *address.AbsoluteStateAddress) (any, error) {
		v, ok := m[addr.PathInfo().Path]
		if !ok {
			return nil, errors.New("no value for " + addr.String())
		}
		return v, nil
	}
}

func TestQueueCoalescesWithinOneTurn(t *testing.T) {
	f := address.NewFactory()
	total := f.GetAbsolute("cart", pathinfo.Get("total"), nil)

	l := loop.New(nil)
	rec := &recorder{}
	q := New(l, values(map[string]any{"total": 12}), WithSink(rec))
	b := &binding{name: "total-text", target: total}
	q.Bind(b)

	var p1, p2 *Pending
	l.Run(func() {
		p1 = q.Enqueue(total)
		p2 = q.Enqueue(total)
		assert.Empty(t, rec.flushes)
	})

	assert.Same(t, p1, p2)
	require.Len(t, rec.flushes, 1)
	assert.Equal(t, p1.ID(), rec.flushes[0].ID)
	assert.Equal(t, []*address.AbsoluteStateAddress{total}, rec.flushes[0].Addresses)
	require.Len(t, rec.flushes[0].Notifications, 1)
	assert.Same(t, b, rec.flushes[0].Notifications[0].Binding)
	assert.Equal(t, 12, rec.flushes[0].Notifications[0].Value)

	select {
	case <-p1.Done():
	default:
		t.Fatal("pending batch was not resolved")
	}
	assert.NoError(t, p1.Err())
	assert.Nil(t, q.Pending())
}

func TestQueueNotifiesEachBindingOnce(t *testing.T) {
	f := address.NewFactory()
	a := f.GetAbsolute("s", pathinfo.Get("a"), nil)
	c := f.GetAbsolute("s", pathinfo.Get("c"), nil)

	l := loop.New(nil)
	rec := &recorder{}
	q := New(l, values(map[string]any{"a": 1, "c": 3}), WithSink(rec))
	ba := &binding{name: "a", target: a}
	bc := &binding{name: "c", target: c}
	q.Bind(ba)
	q.Bind(ba)
	q.Bind(bc)
	assert.Len(t, q.Bindings(a), 1)

	l.Run(func() {
		q.Enqueue(c)
		q.Enqueue(a)
		q.Enqueue(c)
	})

	require.Len(t, rec.flushes, 1)
	got := rec.flushes[0].Notifications
	require.Len(t, got, 2)
	assert.Same(t, bc, got[0].Binding)
	assert.Same(t, ba, got[1].Binding)
}

func TestQueueSeparateTurnsFlushSeparately(t *testing.T) {
	f := address.NewFactory()
	a := f.GetAbsolute("s", pathinfo.Get("a"), nil)

	l := loop.New(nil)
	rec := &recorder{}
	q := New(l, values(map[string]any{"a": 1}), WithSink(rec))

	var first, second *Pending
	l.Run(func() { first = q.Enqueue(a) })
	l.Run(func() { second = q.Enqueue(a) })

	assert.NotEqual(t, first.ID(), second.ID())
	assert.Len(t, rec.flushes, 2)
}

func TestQueueStamps(t *testing.T) {
	f := address.NewFactory()
	a := f.GetAbsolute("s", pathinfo.Get("a"), nil)
	other := f.GetAbsolute("t", pathinfo.Get("a"), nil)

	q := New(loop.New(nil), values(nil))
	q.Enqueue(a)
	q.Enqueue(a)
	q.Enqueue(other)

	assert.Equal(t, Stamp{Revision: 2}, q.Stamp("s"))
	assert.Equal(t, Stamp{Revision: 1}, q.Stamp("t"))
	assert.Equal(t, Stamp{Version: 1, Revision: 2}, q.BumpVersion("s"))
	assert.Equal(t, Stamp{}, q.Stamp("unknown"))
}

func TestQueueFlushErrors(t *testing.T) {
	f := address.NewFactory()
	a := f.GetAbsolute("s", pathinfo.Get("a"), nil)
	missing := f.GetAbsolute("s", pathinfo.Get("missing"), nil)

	l := loop.New(nil)
	rec := &recorder{}
	var reported []error
	reg := prometheus.NewRegistry()
	q := New(l, values(map[string]any{"a": 1}),
		WithSink(MultiSink{rec, SinkFunc(func(context.Context, Flush) error { return errors.New("sink down") })}),
		WithOnError(func(err error) { reported = append(reported, err) }),
		WithMetrics(metrics.New(reg)),
	)
	q.Bind(&binding{target: a})
	q.Bind(&binding{target: missing})

	var p *Pending
	l.Run(func() {
		p = q.Enqueue(a)
		q.Enqueue(missing)
	})

	require.Len(t, rec.flushes, 1)
	assert.Len(t, rec.flushes[0].Notifications, 1)
	assert.Len(t, reported, 2)
	require.Error(t, p.Err())
	assert.Contains(t, p.Err().Error(), "sink down")
	assert.Contains(t, p.Err().Error(), "no value for missing@s")
}

func TestQueueUnbind(t *testing.T) {
	f := address.NewFactory()
	a := f.GetAbsolute("s", pathinfo.Get("a"), nil)

	q := New(loop.New(nil), values(nil))
	b1 := &binding{target: a}
	b2 := &binding{target: a}
	q.Bind(b1)
	q.Bind(b2)

	assert.True(t, q.Unbind(b1))
	assert.False(t, q.Unbind(b1))
	assert.Equal(t, []Binding{b2}, q.Bindings(a))
	assert.ElementsMatch(t, []*address.AbsoluteStateAddress{a}, q.BoundAddresses("s"))

	assert.True(t, q.Unbind(b2))
	assert.Empty(t, q.BoundAddresses("s"))
}

func TestQueuePanickingSinkSettlesPending(t *testing.T) {
	f := address.NewFactory()
	a := f.GetAbsolute("s", pathinfo.Get("a"), nil)

	var recovered []any
	l := loop.New(func(r any) { recovered = append(recovered, r) })
	var reported []error
	q := New(l, values(map[string]any{"a": 1}),
		WithSink(SinkFunc(func(context.Context, Flush) error { panic("sink exploded") })),
		WithOnError(func(err error) { reported = append(reported, err) }),
	)
	q.Bind(&binding{target: a})

	var p *Pending
	l.Run(func() { p = q.Enqueue(a) })

	select {
	case <-p.Done():
	default:
		t.Fatal("pending was not settled")
	}
	assert.ErrorIs(t, p.Err(), ErrFlushPanic)
	assert.Contains(t, p.Err().Error(), "sink exploded")
	assert.Len(t, reported, 1)
	assert.Equal(t, []any{"sink exploded"}, recovered)
	assert.Nil(t, q.Pending())
}
