package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckpointDrainsInOrder(t *testing.T) {
	l := New(nil)
	var got []int
	l.Run(func() {
		l.QueueMicrotask(func() {
			got = append(got, 1)
			l.QueueMicrotask(func() { got = append(got, 3) })
		})
		l.QueueMicrotask(func() { got = append(got, 2) })
		assert.Empty(t, got)
		assert.True(t, l.Pending())
	})
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.False(t, l.Pending())
}

func TestNestedCheckpointIsNoop(t *testing.T) {
	l := New(nil)
	var got []string
	l.QueueMicrotask(func() {
		l.QueueMicrotask(func() { got = append(got, "inner") })
		l.Checkpoint()
		got = append(got, "outer")
	})
	l.Checkpoint()
	assert.Equal(t, []string{"outer", "inner"}, got)
}

func TestPanickingMicrotask(t *testing.T) {
	var recovered []any
	l := New(func(r any) { recovered = append(recovered, r) })
	ran := false
	l.QueueMicrotask(func() { panic("boom") })
	l.QueueMicrotask(func() { ran = true })
	l.Checkpoint()
	assert.Equal(t, []any{"boom"}, recovered)
	assert.True(t, ran)
}
