package httpclient

import (
	"context"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pushbricks/pushbricks/logger"
	"github.com/pushbricks/pushbricks/scheduler"
)

const testURL = "https://hub.example.com/things"

// fakeCall is one CallAsync recorded by fakeClient.
type fakeCall struct {
	ctx context.Context
	req *Request
	cb  Callback

	mu        sync.Mutex
	cancelled bool
}

func (c *fakeCall) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
}

func (c *fakeCall) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// fakeClient records calls. respond, when set, runs synchronously inside
// CallAsync with the zero-based attempt number.
type fakeClient struct {
	mu       sync.Mutex
	calls    []*fakeCall
	closed   int
	reopened int
	respond  func(attempt int, req *Request, cb Callback)
}

func (f *fakeClient) CallAsync(ctx context.Context, req *Request, cb Callback) Call {
	call := &fakeCall{ctx: ctx, req: req, cb: cb}

	f.mu.Lock()
	attempt := len(f.calls)
	f.calls = append(f.calls, call)
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		respond(attempt, req, cb)
	}
	return call
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Reopen() {
	f.mu.Lock()
	f.reopened++
	f.mu.Unlock()
}

func (f *fakeClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeClient) call(i int) *fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

// fakeScheduler queues tasks until the test fires them.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	sched   *fakeScheduler
	task    func()
	delay   time.Duration
	stopped bool
	ran     bool
}

var _ scheduler.Scheduler = (*fakeScheduler)(nil)

func (s *fakeScheduler) Post(task func()) {
	s.PostDelayed(task, 0)
}

func (s *fakeScheduler) PostDelayed(task func(), delay time.Duration) scheduler.Timer {
	t := &fakeTimer{sched: s, task: task, delay: delay}
	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()
	return t
}

func (t *fakeTimer) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	if t.ran || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// fireNext runs the oldest task that is neither stopped nor run.
func (s *fakeScheduler) fireNext() bool {
	s.mu.Lock()
	var next *fakeTimer
	for _, t := range s.timers {
		if !t.ran && !t.stopped {
			next = t
			break
		}
	}
	if next != nil {
		next.ran = true
	}
	s.mu.Unlock()

	if next == nil {
		return false
	}
	next.task()
	return true
}

// drain fires tasks until none are left.
func (s *fakeScheduler) drain() {
	for s.fireNext() {
	}
}

func (s *fakeScheduler) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.delay)
	}
	return out
}

func (s *fakeScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.ran && !t.stopped {
			n++
		}
	}
	return n
}

// recordingCallback captures every notification.
type recordingCallback struct {
	mu        sync.Mutex
	successes []*Response
	failures  []error
	notified  chan struct{}
}

func newRecordingCallback() *recordingCallback {
	return &recordingCallback{notified: make(chan struct{}, 16)}
}

func (r *recordingCallback) OnCallSucceeded(resp *Response) {
	r.mu.Lock()
	r.successes = append(r.successes, resp)
	r.mu.Unlock()
	r.notified <- struct{}{}
}

func (r *recordingCallback) OnCallFailed(err error) {
	r.mu.Lock()
	r.failures = append(r.failures, err)
	r.mu.Unlock()
	r.notified <- struct{}{}
}

func (r *recordingCallback) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.successes) + len(r.failures)
}

func (r *recordingCallback) success(t *testing.T) *Response {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.successes, 1)
	require.Empty(t, r.failures)
	return r.successes[0]
}

func (r *recordingCallback) failure(t *testing.T) error {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.failures, 1)
	require.Empty(t, r.successes)
	return r.failures[0]
}

// wait blocks until one notification arrives.
func (r *recordingCallback) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.notified:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

// assertSilent fails if a notification arrives within d.
func (r *recordingCallback) assertSilent(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case <-r.notified:
		t.Fatal("unexpected callback")
	case <-time.After(d):
	}
}

// fakeLogEvent implements logger.LogEvent for testing
type fakeLogEvent struct {
	logger *fakeLogger
	level  string
	fields map[string]any
}

func (e *fakeLogEvent) Msg(msg string) {
	e.logger.mu.Lock()
	defer e.logger.mu.Unlock()
	e.logger.events = append(e.logger.events, loggedEvent{
		level:   e.level,
		fields:  maps.Clone(e.fields),
		message: msg,
	})
}

func (e *fakeLogEvent) Msgf(format string, _ ...any) {
	// For testing, we'll just capture the format as the message
	e.Msg(format)
}

func (e *fakeLogEvent) Err(err error) logger.LogEvent {
	e.fields["error"] = err
	return e
}

func (e *fakeLogEvent) Str(key, value string) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Int(key string, value int) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Int64(key string, value int64) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Bool(key string, value bool) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Dur(key string, d time.Duration) logger.LogEvent {
	e.fields[key] = d
	return e
}

func (e *fakeLogEvent) Interface(key string, i any) logger.LogEvent {
	e.fields[key] = i
	return e
}

func (e *fakeLogEvent) Bytes(key string, val []byte) logger.LogEvent {
	e.fields[key] = val
	return e
}

// fakeLogger implements logger.Logger for testing
type fakeLogger struct {
	mu     sync.Mutex
	events []loggedEvent
}

type loggedEvent struct {
	level   string
	fields  map[string]any
	message string
}

func (l *fakeLogger) event(level string) logger.LogEvent {
	return &fakeLogEvent{logger: l, level: level, fields: make(map[string]any)}
}

func (l *fakeLogger) Info() logger.LogEvent  { return l.event("info") }
func (l *fakeLogger) Error() logger.LogEvent { return l.event("error") }
func (l *fakeLogger) Debug() logger.LogEvent { return l.event("debug") }
func (l *fakeLogger) Warn() logger.LogEvent  { return l.event("warn") }
func (l *fakeLogger) Fatal() logger.LogEvent { return l.event("fatal") }

func (l *fakeLogger) WithContext(_ any) logger.Logger {
	// For testing, return the same logger
	return l
}

func (l *fakeLogger) WithFields(_ map[string]any) logger.Logger {
	// For testing, return the same logger
	return l
}

func (l *fakeLogger) eventsByLevel(level string) []loggedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var events []loggedEvent
	for _, event := range l.events {
		if event.level == level {
			events = append(events, event)
		}
	}
	return events
}
