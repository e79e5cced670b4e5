// Package loop is a single-threaded task loop with a microtask queue. The
// microtask checkpoint after each task is the only point at which deferred
// work runs.
package loop

type Microtask func()

// Scheduler accepts work to run at the next microtask checkpoint.
type Scheduler interface {
	QueueMicrotask(task Microtask)
}

type queued struct {
	task Microtask
	next *queued
}

type Loop struct {
	head, tail *queued
	draining   bool
	onPanic    func(recovered any)
}

// New creates a loop. onPanic, when non-nil, receives the value of a
// microtask that panicked; the remaining microtasks still run.
func New(onPanic func(recovered any)) *Loop {
	return &Loop{onPanic: onPanic}
}

func (l *Loop) QueueMicrotask(task Microtask) {
	q := &queued{task: task}
	if l.tail != nil {
		l.tail.next = q
	} else {
		l.head = q
	}
	l.tail = q
}

// Pending reports whether microtasks are waiting for a checkpoint.
func (l *Loop) Pending() bool {
	return l.head != nil
}

// Checkpoint drains the microtask queue in FIFO order, including microtasks
// queued while draining. A nested Checkpoint call is a no-op.
func (l *Loop) Checkpoint() {
	if l.draining {
		return
	}
	l.draining = true
	defer func() { l.draining = false }()

	for l.head != nil {
		q := l.head
		l.head = q.next
		if l.head == nil {
			l.tail = nil
		}
		l.run(q.task)
	}
}

func (l *Loop) run(task Microtask) {
	if l.onPanic != nil {
		defer func() {
			if r := recover(); r != nil {
				l.onPanic(r)
			}
		}()
	}
	task()
}

// Run executes task to completion and then reaches a microtask checkpoint.
func (l *Loop) Run(task func()) {
	task()
	l.Checkpoint()
}
