// Package netadapter exposes the asynchronous client chain as blocking,
// context-aware calls.
package netadapter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/pushbricks/pushbricks/httpclient"
	"github.com/pushbricks/pushbricks/logger"
)

// ErrCancelled is reported by a Future cancelled before its call completed.
var ErrCancelled = errors.New("netadapter: call cancelled")

// Failure is returned for every failed call. Outcome tells retriable
// failures (already retried by the chain) apart from immediate ones.
type Failure struct {
	Outcome httpclient.Outcome
	Err     error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("call failed (%s): %v", f.Outcome, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// StatusCode returns the HTTP status of the failure, or 0 for transport errors.
func (f *Failure) StatusCode() int {
	if resp, ok := httpclient.ResponseFromError(f.Err); ok {
		return resp.StatusCode()
	}
	return 0
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithRateLimit limits submissions to r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(a *Adapter) {
		a.limiter = rate.NewLimiter(r, burst)
	}
}

// WithLogger sets the adapter logger.
func WithLogger(log logger.Logger) Option {
	return func(a *Adapter) {
		if log != nil {
			a.log = log
		}
	}
}

// Adapter issues calls through a httpclient.Client and waits for them.
// It does not retry; retries belong to the client chain.
type Adapter struct {
	client  httpclient.Client
	limiter *rate.Limiter
	log     logger.Logger
}

// New wraps client.
func New(client httpclient.Client, opts ...Option) *Adapter {
	a := &Adapter{client: client, log: logger.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Get(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	return a.Do(ctx, httpclient.MethodGet, req)
}

func (a *Adapter) Put(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	return a.Do(ctx, httpclient.MethodPut, req)
}

func (a *Adapter) Post(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	return a.Do(ctx, httpclient.MethodPost, req)
}

func (a *Adapter) Delete(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	return a.Do(ctx, httpclient.MethodDelete, req)
}

// Do sends req with method and blocks until it completes or ctx is done.
// On ctx cancellation the call is cancelled and ctx.Err() returned.
func (a *Adapter) Do(ctx context.Context, method string, req *httpclient.Request) (*httpclient.Response, error) {
	if req == nil {
		return nil, &Failure{Outcome: httpclient.OutcomeImmediateFailure, Err: httpclient.NewValidationError("request is required", "request")}
	}
	withMethod := *req
	withMethod.Method = method
	return a.Submit(ctx, &withMethod).Wait(ctx)
}

// Submit starts req and returns without waiting. The rate limit, when set,
// is applied before submission and may block until ctx is done.
func (a *Adapter) Submit(ctx context.Context, req *httpclient.Request) *Future {
	f := newFuture()
	if ctx == nil {
		ctx = context.Background()
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			a.log.Warn().Err(err).Msg("Rate limit wait aborted")
			f.resolve(nil, err)
			return f
		}
	}

	f.attach(a.client.CallAsync(ctx, req, f))
	return f
}

// Future is the pending result of a submitted call.
type Future struct {
	done chan struct{}
	once sync.Once

	resp *httpclient.Response
	err  error

	mu        sync.Mutex
	call      httpclient.Call
	cancelled bool
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks for the result. If ctx ends first the call is cancelled.
func (f *Future) Wait(ctx context.Context) (*httpclient.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		f.Cancel()
		return nil, ctx.Err()
	}
}

// Cancel cancels the underlying call. A Future not yet resolved resolves with ErrCancelled.
func (f *Future) Cancel() {
	f.mu.Lock()
	f.cancelled = true
	call := f.call
	f.mu.Unlock()

	if call != nil {
		call.Cancel()
	}
	f.resolve(nil, ErrCancelled)
}

func (f *Future) attach(call httpclient.Call) {
	f.mu.Lock()
	f.call = call
	cancelled := f.cancelled
	f.mu.Unlock()

	if cancelled {
		call.Cancel()
	}
}

func (f *Future) resolve(resp *httpclient.Response, err error) {
	f.once.Do(func() {
		f.resp, f.err = resp, err
		close(f.done)
	})
}

func (f *Future) OnCallSucceeded(resp *httpclient.Response) {
	f.resolve(resp, nil)
}

func (f *Future) OnCallFailed(err error) {
	f.resolve(nil, &Failure{Outcome: httpclient.ClassifyError(err), Err: err})
}
