package utils

import (
	"sync"
	"time"
)

// Task is a repeating scheduled job with a cancellable handle. It replaces
// the self-rescheduling "retry after N ms" closures of ad-hoc polling: the
// interval is fixed, Stop is idempotent, and Kick runs the job immediately
// without disturbing the schedule.
type Task struct {
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	ticker  *time.Ticker
	kick    chan struct{}
	done    chan struct{}
	stopped bool
}

// Repeat starts fn on a fixed interval. fn runs on a single goroutine, so a
// slow run delays the next tick instead of overlapping it.
func Repeat(interval time.Duration, fn func()) *Task {
	t := &Task{
		interval: interval,
		fn:       fn,
		ticker:   time.NewTicker(interval),
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go t.loop()
	return t
}

func (t *Task) loop() {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			t.fn()
		case <-t.kick:
			t.fn()
		}
	}
}

// Kick schedules an immediate run. No-op if one is already pending or the
// task is stopped.
func (t *Task) Kick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

// Stop cancels the task. Safe to call more than once.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	t.ticker.Stop()
	close(t.done)
}

// Debouncer coalesces bursts of Trigger calls into a single fn invocation a
// fixed delay after the last call. Used for viewport settling, sidebar
// auto-refresh and filter input.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger restarts the delay; fn fires once the delay elapses with no
// further triggers.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

// Stop cancels any pending invocation.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
