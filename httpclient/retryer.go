package httpclient

import (
	"context"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pushbricks/pushbricks/httpclient/internal/tracking"
	"github.com/pushbricks/pushbricks/logger"
	"github.com/pushbricks/pushbricks/scheduler"
)

// RetryerOption configures a Retryer.
type RetryerOption func(*Retryer)

// WithRetryIntervals replaces the backoff table. Its length is the retry limit.
func WithRetryIntervals(intervals ...time.Duration) RetryerOption {
	return func(r *Retryer) {
		if len(intervals) > 0 {
			r.intervals = append([]time.Duration(nil), intervals...)
		}
	}
}

// Retryer re-submits recoverable failures to the wrapped client after a
// jittered delay, and reports each logical call exactly once.
type Retryer struct {
	Decorator

	sched     scheduler.Scheduler
	log       logger.Logger
	intervals []time.Duration

	mu    sync.Mutex
	calls map[*retryableCall]struct{}
}

var _ Client = (*Retryer)(nil)

// NewRetryer wraps inner. Delayed re-submissions run on sched.
func NewRetryer(inner Client, sched scheduler.Scheduler, log logger.Logger, opts ...RetryerOption) *Retryer {
	if log == nil {
		log = logger.Nop()
	}
	r := &Retryer{
		Decorator: NewDecorator(inner),
		sched:     sched,
		log:       log,
		intervals: append([]time.Duration(nil), DefaultRetryIntervals...),
		calls:     make(map[*retryableCall]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sched == nil {
		r.sched = scheduler.NewLooper(log)
	}
	return r
}

// CallAsync forwards the first attempt immediately.
func (r *Retryer) CallAsync(ctx context.Context, req *Request, cb Callback) Call {
	if ctx == nil {
		ctx = context.Background()
	}
	if cb == nil {
		cb = CallbackFuncs{}
	}
	call := &retryableCall{
		retryer: r,
		ctx:     ctx,
		req:     req,
		cb:      cb,
		backoff: newTableBackOff(r.intervals, newCallRand()),
	}
	r.track(call)
	call.submit()
	return call
}

// Close cancels every logical call still pending, then closes the inner client.
func (r *Retryer) Close() error {
	r.mu.Lock()
	pending := make([]*retryableCall, 0, len(r.calls))
	for call := range r.calls {
		pending = append(pending, call)
	}
	r.mu.Unlock()

	for _, call := range pending {
		call.Cancel()
	}
	return r.Inner().Close()
}

func (r *Retryer) track(call *retryableCall) {
	r.mu.Lock()
	r.calls[call] = struct{}{}
	r.mu.Unlock()
}

func (r *Retryer) untrack(call *retryableCall) {
	r.mu.Lock()
	delete(r.calls, call)
	r.mu.Unlock()
}

type retryableCall struct {
	retryer *Retryer
	ctx     context.Context
	req     *Request
	cb      Callback
	backoff backoff.BackOff

	mu         sync.Mutex
	done       bool
	cancelled  bool
	generation int
	retries    int
	inner      Call
	timer      scheduler.Timer
}

// Cancel stops a pending retry and the running attempt. Nothing is delivered afterwards.
func (c *retryableCall) Cancel() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	c.cancelled = true
	timer, inner := c.timer, c.inner
	c.timer, c.inner = nil, nil
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if inner != nil {
		inner.Cancel()
	}
	c.retryer.untrack(c)
}

func (c *retryableCall) submit() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.generation++
	gen := c.generation
	c.timer = nil
	c.mu.Unlock()

	// The inner client may report before CallAsync returns.
	inner := c.retryer.Inner().CallAsync(c.ctx, c.req, &attemptCallback{call: c, generation: gen})

	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		inner.Cancel()
		return
	}
	if c.generation == gen && !c.done {
		c.inner = inner
	}
	c.mu.Unlock()
}

func (c *retryableCall) complete(gen int, resp *Response, err error) {
	c.mu.Lock()
	if c.done || gen != c.generation {
		c.mu.Unlock()
		return
	}

	if err == nil {
		c.done = true
		c.mu.Unlock()
		c.retryer.untrack(c)
		c.cb.OnCallSucceeded(resp)
		return
	}

	delay, retry := c.nextDelay(err)
	if !retry {
		c.done = true
		c.mu.Unlock()
		c.retryer.untrack(c)
		c.cb.OnCallFailed(err)
		return
	}
	c.retries++
	attempt := c.retries
	c.inner = nil
	c.mu.Unlock()

	status := 0
	if failed, ok := ResponseFromError(err); ok {
		status = failed.StatusCode()
	}
	c.retryer.log.Warn().
		Err(err).
		Str("method", c.req.Method).
		Str("url", c.req.URL).
		Int("retry", attempt).
		Dur("delay", delay).
		Msg("Scheduling HTTP call retry")
	tracking.RecordRetry(c.ctx, c.req.Method, attempt, status)

	timer := c.retryer.sched.PostDelayed(c.submit, delay)

	c.mu.Lock()
	if c.generation == gen && !c.done {
		c.timer = timer
		c.mu.Unlock()
		return
	}
	stale := c.cancelled && c.generation == gen
	c.mu.Unlock()
	if stale {
		timer.Stop()
	}
}

// nextDelay must be called with c.mu held.
func (c *retryableCall) nextDelay(err error) (time.Duration, bool) {
	if !IsRecoverable(err) {
		return 0, false
	}
	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		return 0, false
	}
	if hint, ok := retryAfterHint(err); ok {
		return hint, true
	}
	return delay, true
}

// retryAfterHint reads x-ms-retry-after-ms from the failed response.
func retryAfterHint(err error) (time.Duration, bool) {
	resp, ok := ResponseFromError(err)
	if !ok {
		return 0, false
	}
	raw, ok := resp.Header(HeaderRetryAfterMs)
	if !ok {
		return 0, false
	}
	ms, parseErr := strconv.ParseInt(raw, 10, 64)
	if parseErr != nil || ms < 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

type attemptCallback struct {
	call       *retryableCall
	generation int
}

func (a *attemptCallback) OnCallSucceeded(resp *Response) {
	a.call.complete(a.generation, resp, nil)
}

func (a *attemptCallback) OnCallFailed(err error) {
	a.call.complete(a.generation, nil, err)
}

// tableBackOff walks a fixed interval table, returning a delay in
// [interval/2, interval) for each entry and backoff.Stop once exhausted.
type tableBackOff struct {
	intervals []time.Duration
	rng       *rand.Rand
	attempt   int
}

var _ backoff.BackOff = (*tableBackOff)(nil)

func newTableBackOff(intervals []time.Duration, rng *rand.Rand) *tableBackOff {
	return &tableBackOff{intervals: intervals, rng: rng}
}

func (b *tableBackOff) NextBackOff() time.Duration {
	if b.attempt >= len(b.intervals) {
		return backoff.Stop
	}
	interval := b.intervals[b.attempt]
	b.attempt++

	half := interval / 2
	if half <= 0 {
		return interval
	}
	return half + time.Duration(b.rng.Int64N(int64(half)))
}

func (b *tableBackOff) Reset() { b.attempt = 0 }

func newCallRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
