package httpclient

import (
	"context"
	"strconv"
	"time"

	"github.com/pushbricks/pushbricks/logger"
	"github.com/pushbricks/pushbricks/trace"
)

// LoggingClient logs every call passing through it. Placed under a Retryer it
// logs each physical attempt.
type LoggingClient struct {
	Decorator

	log                logger.Logger
	logPayloads        bool
	maxPayloadLogBytes int
}

// NewLoggingClient wraps inner. A nil cfg disables payload logging.
func NewLoggingClient(inner Client, log logger.Logger, cfg *Config) *LoggingClient {
	if log == nil {
		log = logger.Nop()
	}
	lc := &LoggingClient{
		Decorator:          NewDecorator(inner),
		log:                log,
		maxPayloadLogBytes: defaultMaxPayloadLogBytes,
	}
	if cfg != nil {
		lc.logPayloads = cfg.LogPayloads
		if cfg.MaxPayloadLogBytes > 0 {
			lc.maxPayloadLogBytes = cfg.MaxPayloadLogBytes
		}
	}
	return lc
}

func (lc *LoggingClient) CallAsync(ctx context.Context, req *Request, cb Callback) Call {
	if req == nil {
		return lc.Inner().CallAsync(ctx, req, cb)
	}
	requestID := requestIDOf(ctx, req)
	lc.logRequest(req, requestID)

	logged := *req
	if req.Template != nil && lc.logPayloads {
		logged.Template = wrapLoggingTemplate(req.Template, lc, &logged, requestID)
	}
	return lc.Inner().CallAsync(ctx, &logged, &loggingCallback{
		client:    lc,
		inner:     cb,
		req:       &logged,
		requestID: requestID,
		start:     time.Now(),
	})
}

func (lc *LoggingClient) logRequest(req *Request, requestID string) {
	event := lc.log.Info().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("url", req.URL).
		Str("request_id", requestID)
	if len(req.Headers) > 0 {
		event = event.Int("header_count", len(req.Headers))
	}
	event.Msg("HTTP call started")

	if lc.logPayloads && len(req.Headers) > 0 {
		lc.log.Debug().
			Str("direction", "outbound").
			Str("method", req.Method).
			Str("request_id", requestID).
			Interface("headers", req.Headers).
			Msg("HTTP call started")
	}
}

func (lc *LoggingClient) logBody(req *Request, requestID, body string) {
	preview, truncated := lc.preview(body)
	lc.log.Debug().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("request_id", requestID).
		Int("body_size", len(body)).
		Str("body_truncated", strconv.FormatBool(truncated)).
		Bytes("body_preview", preview).
		Msg("HTTP call body")
}

func (lc *LoggingClient) logResponse(req *Request, requestID string, elapsed time.Duration, resp *Response, err error) {
	status := 0
	if resp != nil {
		status = resp.StatusCode()
	} else if failed, ok := ResponseFromError(err); ok {
		resp = failed
		status = failed.StatusCode()
	}

	event := lc.log.Info()
	if err != nil {
		event = lc.log.Warn().Err(err)
	}
	event = event.
		Str("direction", "inbound").
		Str("method", req.Method).
		Str("url", req.URL).
		Str("request_id", requestID).
		Dur("elapsed", elapsed)
	if status > 0 {
		event = event.Int("status", status)
	}
	if resp != nil && resp.Body() != "" {
		event = event.Int("body_size", len(resp.Body()))
	}
	event.Msg("HTTP call completed")

	if lc.logPayloads && resp != nil {
		preview, truncated := lc.preview(resp.Body())
		lc.log.Debug().
			Str("direction", "inbound").
			Int("status", status).
			Str("request_id", requestID).
			Interface("headers", resp.Headers()).
			Int("body_size", len(resp.Body())).
			Str("body_truncated", strconv.FormatBool(truncated)).
			Bytes("body_preview", preview).
			Msg("HTTP call completed")
	}
}

func (lc *LoggingClient) preview(body string) ([]byte, bool) {
	if len(body) > lc.maxPayloadLogBytes {
		return []byte(body[:lc.maxPayloadLogBytes]), true
	}
	return []byte(body), false
}

type loggingCallback struct {
	client    *LoggingClient
	inner     Callback
	req       *Request
	requestID string
	start     time.Time
}

func (c *loggingCallback) OnCallSucceeded(resp *Response) {
	c.client.logResponse(c.req, c.requestID, time.Since(c.start), resp, nil)
	if c.inner != nil {
		c.inner.OnCallSucceeded(resp)
	}
}

func (c *loggingCallback) OnCallFailed(err error) {
	c.client.logResponse(c.req, c.requestID, time.Since(c.start), nil, err)
	if c.inner != nil {
		c.inner.OnCallFailed(err)
	}
}

// loggingTemplate logs each built body. The hook variant keeps BeforeCallHook visible.
type loggingTemplate struct {
	inner     CallTemplate
	client    *LoggingClient
	req       *Request
	requestID string
}

func (t *loggingTemplate) BuildRequestBody() (string, error) {
	body, err := t.inner.BuildRequestBody()
	if err == nil {
		t.client.logBody(t.req, t.requestID, body)
	}
	return body, err
}

type loggingHookTemplate struct {
	*loggingTemplate
	hook BeforeCallHook
}

func (t *loggingHookTemplate) OnBeforeCalling(url string, headers map[string]string) {
	t.hook.OnBeforeCalling(url, headers)
}

func wrapLoggingTemplate(inner CallTemplate, lc *LoggingClient, req *Request, requestID string) CallTemplate {
	base := &loggingTemplate{inner: inner, client: lc, req: req, requestID: requestID}
	if hook, ok := inner.(BeforeCallHook); ok {
		return &loggingHookTemplate{loggingTemplate: base, hook: hook}
	}
	return base
}

func requestIDOf(ctx context.Context, req *Request) string {
	if id, ok := headerValue(req.Headers, trace.HeaderXRequestID); ok {
		return id
	}
	if id, ok := trace.RequestIDFromContext(ctx); ok {
		return id
	}
	return ""
}
