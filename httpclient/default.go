package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/semaphore"

	"github.com/pushbricks/pushbricks/httpclient/internal/tracking"
	"github.com/pushbricks/pushbricks/logger"
	"github.com/pushbricks/pushbricks/scheduler"
)

// DefaultOption configures a DefaultClient.
type DefaultOption func(*DefaultClient)

// WithHTTPClient replaces the underlying *http.Client. Config.Timeout is not
// applied to a supplied client.
func WithHTTPClient(hc *http.Client) DefaultOption {
	return func(c *DefaultClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithScheduler sets the looper used to deliver failures that never reach the
// network, such as saturation and validation errors.
func WithScheduler(s scheduler.Scheduler) DefaultOption {
	return func(c *DefaultClient) {
		if s != nil {
			c.sched = s
		}
	}
}

// DefaultClient performs exactly one physical exchange per CallAsync on a
// bounded pool of goroutines.
type DefaultClient struct {
	cfg        *Config
	log        logger.Logger
	httpClient *http.Client
	sched      scheduler.Scheduler
	workers    *semaphore.Weighted

	mu    sync.Mutex
	calls map[*transportCall]struct{}
}

var _ Client = (*DefaultClient)(nil)

// NewDefaultClient creates the transport. A nil cfg means DefaultConfig.
func NewDefaultClient(cfg *Config, log logger.Logger, opts ...DefaultOption) *DefaultClient {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}

	c := &DefaultClient{
		cfg:     cfg,
		log:     log,
		workers: semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		calls:   make(map[*transportCall]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if c.sched == nil {
		c.sched = scheduler.NewLooper(log)
	}
	return c
}

// CallAsync starts one exchange and returns immediately.
func (c *DefaultClient) CallAsync(ctx context.Context, req *Request, cb Callback) Call {
	if ctx == nil {
		ctx = context.Background()
	}
	if cb == nil {
		cb = CallbackFuncs{}
	}

	attemptCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	call := &transportCall{client: c, cb: cb, ctx: attemptCtx, cancel: cancel}

	if err := validateRequest(req); err != nil {
		c.post(call, err)
		return call
	}
	call.req = &Request{
		URL:      req.URL,
		Method:   strings.ToUpper(req.Method),
		Headers:  req.cloneHeaders(),
		Template: req.Template,
	}

	c.track(call)
	if !c.workers.TryAcquire(1) {
		c.untrack(call)
		tracking.RecordSaturation(attemptCtx, call.req.Method)
		c.log.Warn().
			Str("method", call.req.Method).
			Str("url", call.req.URL).
			Int("max_concurrency", c.cfg.MaxConcurrency).
			Msg("HTTP worker pool saturated")
		c.post(call, NewSaturationError(nil))
		return call
	}

	tracking.AddInFlight(attemptCtx, call.req.Method, 1)
	go call.run()
	return call
}

// Close cancels every call still tracked and clears the set. Calling it again is a no-op.
func (c *DefaultClient) Close() error {
	c.mu.Lock()
	pending := make([]*transportCall, 0, len(c.calls))
	for call := range c.calls {
		pending = append(pending, call)
	}
	clear(c.calls)
	c.mu.Unlock()

	for _, call := range pending {
		call.Cancel()
	}
	if len(pending) > 0 {
		c.log.Debug().Int("cancelled", len(pending)).Msg("HTTP client closed with calls in flight")
	}
	return nil
}

// Reopen is a no-op: the transport keeps accepting calls after Close.
func (c *DefaultClient) Reopen() {}

// InFlight returns the number of tracked calls.
func (c *DefaultClient) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *DefaultClient) track(call *transportCall) {
	c.mu.Lock()
	c.calls[call] = struct{}{}
	c.mu.Unlock()
}

func (c *DefaultClient) untrack(call *transportCall) {
	c.mu.Lock()
	delete(c.calls, call)
	c.mu.Unlock()
}

func (c *DefaultClient) finish(call *transportCall) {
	c.untrack(call)
	c.workers.Release(1)
	tracking.AddInFlight(call.ctx, call.req.Method, -1)
	call.cancel()
}

// post delivers a failure through the scheduler so CallAsync never invokes the callback itself.
func (c *DefaultClient) post(call *transportCall, err error) {
	c.sched.Post(func() {
		if call.markProduced() {
			call.cb.OnCallFailed(err)
		}
		call.cancel()
	})
}

func (c *DefaultClient) exchange(ctx context.Context, req *Request) (resp *Response, err error) {
	start := time.Now()
	ctx, span := tracking.StartAttemptSpan(ctx, req.Method, req.URL)
	defer func() {
		status := 0
		if resp != nil {
			status = resp.StatusCode()
		} else if failed, ok := ResponseFromError(err); ok {
			status = failed.StatusCode()
		}
		tracking.EndAttemptSpan(span, status, err)
		tracking.RecordAttempt(ctx, tracking.AttemptResult{
			Method:     req.Method,
			StatusCode: status,
			Duration:   time.Since(start),
			ErrorType:  errorTypeLabel(status, err),
		})
	}()

	headers := req.Headers
	body, hasBody, err := buildBody(req)
	if err != nil {
		return nil, err
	}

	var payload io.Reader
	if hasBody {
		raw := []byte(body)
		if c.cfg.Compression && len(raw) >= CompressionThreshold {
			if raw, err = gzipBody(raw); err != nil {
				return nil, NewTemplateError("failed to compress request body", "compress", err)
			}
			headers[HeaderContentEncoding] = EncodingGzip
		}
		payload = bytes.NewReader(raw)
	}
	if !hasHeader(headers, HeaderContentType) {
		headers[HeaderContentType] = ContentTypeJSON
	}
	if err = runBeforeCallHook(req, headers); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, payload)
	if err != nil {
		return nil, NewValidationError(err.Error(), "url")
	}
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, wrapTransportError(err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, wrapTransportError(err)
	}

	resp = newResponseFromHTTP(httpResp, string(data))
	if !IsSuccessStatus(resp.StatusCode()) {
		return nil, NewHTTPError(resp)
	}
	return resp, nil
}

type transportCall struct {
	client *DefaultClient
	req    *Request
	cb     Callback
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	produced  bool
	cancelled bool
}

// Cancel stops the exchange. A result produced before Cancel is still delivered.
func (t *transportCall) Cancel() {
	t.mu.Lock()
	if t.produced || t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	t.mu.Unlock()
	t.cancel()
}

func (t *transportCall) markProduced() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}
	t.produced = true
	return true
}

func (t *transportCall) run() {
	resp, err := t.attempt()
	if !t.markProduced() {
		return
	}
	if err != nil {
		t.cb.OnCallFailed(err)
		return
	}
	t.cb.OnCallSucceeded(resp)
}

func (t *transportCall) attempt() (*Response, error) {
	defer t.client.finish(t)
	return t.client.exchange(t.ctx, t.req)
}

func validateRequest(req *Request) error {
	if req == nil {
		return NewValidationError("request is required", "request")
	}
	if req.Method == "" {
		return NewValidationError("method is required", "method")
	}
	if req.URL == "" {
		return NewValidationError("URL is required", "url")
	}
	parsed, err := url.Parse(req.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return NewValidationError(fmt.Sprintf("URL must be absolute: %q", req.URL), "url")
	}
	return nil
}

// buildBody runs the template for POST and PUT. A missing template means no body.
func buildBody(req *Request) (body string, hasBody bool, err error) {
	if req.Template == nil || (req.Method != MethodPost && req.Method != MethodPut) {
		return "", false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			body, hasBody = "", false
			err = NewTemplateError("request body template panicked", "build", fmt.Errorf("%v", r))
		}
	}()
	body, err = req.Template.BuildRequestBody()
	if err != nil {
		return "", false, NewTemplateError("failed to build request body", "build", err)
	}
	return body, true, nil
}

func runBeforeCallHook(req *Request, headers map[string]string) (err error) {
	hook, ok := req.Template.(BeforeCallHook)
	if !ok {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = NewTemplateError("before-call hook panicked", "hook", fmt.Errorf("%v", r))
		}
	}()
	hook.OnBeforeCalling(req.URL, headers)
	return nil
}

func gzipBody(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func hasHeader(headers map[string]string, key string) bool {
	_, ok := headerValue(headers, key)
	return ok
}

func headerValue(headers map[string]string, key string) (string, bool) {
	if value, ok := headers[key]; ok {
		return value, true
	}
	for k, value := range headers {
		if strings.EqualFold(k, key) {
			return value, true
		}
	}
	return "", false
}

func wrapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError("request timed out", err)
	}
	return NewNetworkError("request failed", err)
}

func errorTypeLabel(status int, err error) string {
	if err == nil {
		return ""
	}
	if status > 0 {
		return fmt.Sprintf("%d", status)
	}
	var ce ClientError
	if errors.As(err, &ce) {
		return ce.Type().String()
	}
	return "error"
}
