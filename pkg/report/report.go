// Package report renders flushes as text.
package report

//go:generate qtc -file=report.qtpl

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wcstack/statecore/pkg/updater"
)

// View is the template input for one flush.
type View struct {
	ID        string
	Addresses int
	Rows      []Row
}

// Row is one notification.
type Row struct {
	Binding string
	State   string
	Path    string
	Indexes string
	Key     string
	Value   string
}

// NewView flattens f into printable rows, in notification order.
func NewView(f updater.Flush) *View {
	v := &View{
		ID:        f.ID.String(),
		Addresses: len(f.Addresses),
		Rows:      make([]Row, 0, len(f.Notifications)),
	}
	for _, n := range f.Notifications {
		target := n.Binding.Target()
		row := Row{
			Binding: bindingName(n.Binding),
			State:   target.StateName(),
			Path:    target.PathInfo().Path,
			Key:     strconv.FormatUint(target.PathInfo().ID, 16),
			Value:   fmt.Sprint(n.Value),
		}
		if li := target.ListIndex(); li != nil {
			row.Indexes = formatIndexes(li.Indexes())
		}
		v.Rows = append(v.Rows, row)
	}
	return v
}

func bindingName(b updater.Binding) string {
	if named, ok := b.(interface{ Label() string }); ok {
		return named.Label()
	}
	if s, ok := b.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", b)
}

func formatIndexes(indexes []int) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, idx := range indexes {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(idx))
	}
	sb.WriteByte(']')
	return sb.String()
}

// Flush renders f.
func Flush(f updater.Flush) string {
	return Report(NewView(f))
}

// WriterSink writes a report of every flush to W.
type WriterSink struct {
	W io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{W: w}
}

func (s *WriterSink) Notify(_ context.Context, f updater.Flush) error {
	_, err := io.WriteString(s.W, Flush(f))
	return err
}
