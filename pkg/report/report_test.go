package report

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wcstack/statecore/pkg/address"
	"github.com/wcstack/statecore/pkg/listindex"
	"github.com/wcstack/statecore/pkg/pathinfo"
	"github.com/wcstack/statecore/pkg/updater"
)

type label struct {
	name   string
	target *address.AbsoluteStateAddress
}

func (l *label) Target() *address.AbsoluteStateAddress { return l.target }
func (l *label) Label() string { return l.name }

type anonymous struct {
	target *address.AbsoluteStateAddress
}

func (a anonymous) Target() *address.AbsoluteStateAddress { return a.target }

func sampleFlush() updater.Flush {
	f := address.NewFactory()
	arena := listindex.NewArena()
	outer := arena.New(nil, 1)
	inner := arena.New(outer, 0)

	total := f.GetAbsolute("cart", pathinfo.Get("total"), nil)
	cell := f.GetAbsolute("grid", pathinfo.Get("rows.*.cells.*"), inner)
	return updater.Flush{
		ID:        uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		Addresses: []*address.AbsoluteStateAddress{total, cell, total},
		Notifications: []updater.Notification{
			{Binding: &label{name: "total-text", target: total}, Value: 13.5},
			{Binding: anonymous{target: cell}, Value: "x"},
		},
	}
}

func TestFlush(t *testing.T) {
	got := Flush(sampleFlush())

	want := "flush 00000000-0000-0000-0000-000000000001 addresses=3 notifications=2\n" +
		"  total-text cart total #" + strconv.FormatUint(pathinfo.Get("total").ID, 16) + " = 13.5\n" +
		"  report.anonymous grid rows.*.cells.*[1,0] #" + strconv.FormatUint(pathinfo.Get("rows.*.cells.*").ID, 16) + " = x\n"
	assert.Equal(t, want, got)
}

func TestFlushEmpty(t *testing.T) {
	got := Flush(updater.Flush{ID: uuid.Nil})
	assert.Equal(t, "flush 00000000-0000-0000-0000-000000000000 addresses=0 notifications=0\n", got)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)
	require.NoError(t, sink.Notify(context.Background(), sampleFlush()))
	assert.Equal(t, Flush(sampleFlush()), buf.String())

	err := NewWriterSink(failingWriter{}).Notify(context.Background(), sampleFlush())
	assert.EqualError(t, err, "disk full")
}
