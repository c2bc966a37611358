package scheduler

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pushbricks/pushbricks/logger"
)

// Looper is a Scheduler backed by a single goroutine. Posting is safe from
// any goroutine, including from a task running on the loop.
type Looper struct {
	log logger.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ Scheduler = (*Looper)(nil)

// NewLooper starts a looper. Call Close to stop it.
func NewLooper(log logger.Logger) *Looper {
	if log == nil {
		log = logger.Nop()
	}
	l := &Looper{
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.loop()
	return l
}

// Post queues task. Tasks posted after Close are dropped.
func (l *Looper) Post(task func()) {
	if task == nil {
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// PostDelayed queues task once delay has elapsed. A non-positive delay posts immediately.
func (l *Looper) PostDelayed(task func(), delay time.Duration) Timer {
	dt := &delayedTask{}
	if task == nil {
		dt.stopped = true
		return dt
	}

	run := func() {
		if dt.claim() {
			task()
		}
	}

	if delay <= 0 {
		l.Post(run)
		return dt
	}

	dt.mu.Lock()
	dt.timer = time.AfterFunc(delay, func() { l.Post(run) })
	dt.mu.Unlock()
	return dt
}

// Close stops the loop and drops queued tasks. It does not wait for a
// running task to finish, so it is safe to call from a task.
func (l *Looper) Close() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.mu.Unlock()

	l.closeOnce.Do(func() { close(l.done) })
}

// Pending returns the number of queued immediate tasks.
func (l *Looper) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Looper) loop() {
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}

		for {
			task, ok := l.next()
			if !ok {
				break
			}
			l.run(task)
		}
	}
}

func (l *Looper) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

func (l *Looper) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().
				Err(fmt.Errorf("panic: %v", r)).
				Str("stack", string(debug.Stack())).
				Msg("Scheduled task panicked")
		}
	}()
	task()
}

type delayedTask struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	started bool
}

// claim marks the task as started unless it was stopped first.
func (dt *delayedTask) claim() bool {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	if dt.stopped {
		return false
	}
	dt.started = true
	return true
}

func (dt *delayedTask) Stop() bool {
	dt.mu.Lock()
	if dt.stopped || dt.started {
		dt.mu.Unlock()
		return false
	}
	dt.stopped = true
	t := dt.timer
	dt.mu.Unlock()

	if t != nil {
		t.Stop()
	}
	return true
}
