// Package httpclient implements the asynchronous, decorator-based HTTP client
// used to talk to the push hub: a transport that performs one exchange per
// call, a retrying decorator, and the status-code policy both rely on.
package httpclient

import (
	"context"
	"maps"
)

// HTTP methods accepted by CallAsync.
const (
	MethodGet    = "GET"
	MethodPut    = "PUT"
	MethodPost   = "POST"
	MethodDelete = "DELETE"
)

// Header names the client reads or writes.
const (
	HeaderContentType     = "Content-Type"
	HeaderContentEncoding = "Content-Encoding"
	HeaderRetryAfterMs    = "x-ms-retry-after-ms"

	ContentTypeJSON = "application/json"
	EncodingGzip    = "gzip"
)

// Client submits logical calls. Implementations never block in CallAsync and
// report the outcome through exactly one Callback method.
//
// ctx supplies request-scoped values such as the request ID. Cancellation
// goes through the returned Call, not through ctx.
type Client interface {
	CallAsync(ctx context.Context, req *Request, cb Callback) Call
	// Close cancels every call still tracked by the client.
	Close() error
	// Reopen makes a closed client accept calls again.
	Reopen()
}

// Request describes one logical call.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	// Template builds the body of POST and PUT requests, once per attempt.
	Template CallTemplate
}

func (r *Request) cloneHeaders() map[string]string {
	headers := make(map[string]string, len(r.Headers)+2)
	maps.Copy(headers, r.Headers)
	return headers
}

// Callback receives the single terminal notification of a call.
type Callback interface {
	OnCallSucceeded(resp *Response)
	OnCallFailed(err error)
}

// CallbackFuncs adapts a pair of functions to Callback. Nil fields are ignored.
type CallbackFuncs struct {
	Succeeded func(resp *Response)
	Failed    func(err error)
}

func (f CallbackFuncs) OnCallSucceeded(resp *Response) {
	if f.Succeeded != nil {
		f.Succeeded(resp)
	}
}

func (f CallbackFuncs) OnCallFailed(err error) {
	if f.Failed != nil {
		f.Failed(err)
	}
}

// Call is the cancellation handle of an in-flight logical call.
type Call interface {
	Cancel()
}

// CallTemplate produces the request body. BuildRequestBody runs once per
// physical attempt so signatures and timestamps stay fresh across retries.
type CallTemplate interface {
	BuildRequestBody() (string, error)
}

// BeforeCallHook is an optional CallTemplate extension invoked with the final
// URL and the mutable header map right before the body is sent.
type BeforeCallHook interface {
	OnBeforeCalling(url string, headers map[string]string)
}

// TemplateFunc adapts a body builder function to CallTemplate.
type TemplateFunc func() (string, error)

func (f TemplateFunc) BuildRequestBody() (string, error) { return f() }

// Decorator wraps an inner Client and forwards everything to it. Embed it and
// override CallAsync to intercept calls.
type Decorator struct {
	inner Client
}

// NewDecorator wraps inner.
func NewDecorator(inner Client) Decorator {
	return Decorator{inner: inner}
}

// Inner returns the wrapped client.
func (d Decorator) Inner() Client { return d.inner }

func (d Decorator) CallAsync(ctx context.Context, req *Request, cb Callback) Call {
	return d.inner.CallAsync(ctx, req, cb)
}

func (d Decorator) Close() error { return d.inner.Close() }

func (d Decorator) Reopen() { d.inner.Reopen() }

type noopCall struct{}

func (noopCall) Cancel() {}
