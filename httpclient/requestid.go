package httpclient

import (
	"context"

	"github.com/pushbricks/pushbricks/trace"
)

// RequestIDClient stamps every logical call with an X-Request-ID header and
// stores the same ID in the context passed down the chain.
type RequestIDClient struct {
	Decorator
}

// NewRequestIDClient wraps inner.
func NewRequestIDClient(inner Client) *RequestIDClient {
	return &RequestIDClient{Decorator: NewDecorator(inner)}
}

func (rc *RequestIDClient) CallAsync(ctx context.Context, req *Request, cb Callback) Call {
	if req == nil {
		return rc.Inner().CallAsync(ctx, req, cb)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	id, ok := headerValue(req.Headers, trace.HeaderXRequestID)
	if !ok || id == "" {
		id = trace.EnsureRequestID(ctx)
	}

	stamped := *req
	stamped.Headers = req.cloneHeaders()
	stamped.Headers[trace.HeaderXRequestID] = id
	return rc.Inner().CallAsync(trace.WithRequestID(ctx, id), &stamped, cb)
}
