package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushbricks/pushbricks/logger"
	"github.com/pushbricks/pushbricks/scheduler"
)

type capturedRequest struct {
	method  string
	headers http.Header
	body    []byte
}

// recordingServer captures every request it receives.
type recordingServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []capturedRequest
}

func newRecordingServer(t *testing.T, handler http.HandlerFunc) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rs.mu.Lock()
		rs.requests = append(rs.requests, capturedRequest{method: r.Method, headers: r.Header.Clone(), body: body})
		rs.mu.Unlock()
		if handler != nil {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) received() []capturedRequest {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]capturedRequest(nil), rs.requests...)
}

func newTestDefaultClient(t *testing.T, cfg *Config) *DefaultClient {
	t.Helper()
	looper := scheduler.NewLooper(logger.Nop())
	t.Cleanup(looper.Close)
	return NewDefaultClient(cfg, logger.Nop(), WithScheduler(looper))
}

func TestDefaultClientSuccess(t *testing.T) {
	server := newRecordingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("ETag", "abc")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	c := newTestDefaultClient(t, nil)
	cb := newRecordingCallback()

	c.CallAsync(context.Background(), &Request{URL: server.URL, Method: MethodGet}, cb)
	cb.wait(t)

	resp := cb.success(t)
	assert.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, "ok", resp.Body())
	etag, ok := resp.Header("ETag")
	assert.True(t, ok)
	assert.Equal(t, "abc", etag)
	assert.Eventually(t, func() bool { return c.InFlight() == 0 }, time.Second, 5*time.Millisecond)
}

func TestDefaultClientNon2xxIsHTTPError(t *testing.T) {
	server := newRecordingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(HeaderRetryAfterMs, "1234")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("busy"))
	})
	c := newTestDefaultClient(t, nil)
	cb := newRecordingCallback()

	c.CallAsync(context.Background(), &Request{URL: server.URL, Method: MethodDelete}, cb)
	cb.wait(t)

	err := cb.failure(t)
	resp, ok := ResponseFromError(err)
	require.True(t, ok)
	assert.Equal(t, 503, resp.StatusCode())
	assert.Equal(t, "busy", resp.Body())
	hint, ok := resp.Header(HeaderRetryAfterMs)
	assert.True(t, ok)
	assert.Equal(t, "1234", hint)
}

func TestDefaultClientTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := newTestDefaultClient(t, nil)
	cb := newRecordingCallback()

	c.CallAsync(context.Background(), &Request{URL: url, Method: MethodGet}, cb)
	cb.wait(t)

	err := cb.failure(t)
	assert.True(t, IsErrorType(err, NetworkError), "got %v", err)
	assert.True(t, IsRecoverable(err))
}

func TestDefaultClientTimeout(t *testing.T) {
	release := make(chan struct{})
	server := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	t.Cleanup(func() { close(release) })

	cfg := DefaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	c := newTestDefaultClient(t, cfg)
	cb := newRecordingCallback()

	c.CallAsync(context.Background(), &Request{URL: server.URL, Method: MethodGet}, cb)
	cb.wait(t)

	err := cb.failure(t)
	assert.True(t, IsErrorType(err, TimeoutError), "got %v", err)
	assert.True(t, IsRecoverable(err))
}

func TestDefaultClientCompressionThreshold(t *testing.T) {
	tests := []struct {
		name        string
		size        int
		compression bool
		gzipped     bool
	}{
		{"below threshold", CompressionThreshold - 1, true, false},
		{"at threshold", CompressionThreshold, true, true},
		{"above threshold", CompressionThreshold + 600, true, true},
		{"compression disabled", CompressionThreshold + 600, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newRecordingServer(t, nil)
			cfg := DefaultConfig()
			cfg.Compression = tt.compression
			c := newTestDefaultClient(t, cfg)
			cb := newRecordingCallback()

			body := strings.Repeat("a", tt.size)
			c.CallAsync(context.Background(), &Request{
				URL:      server.URL,
				Method:   MethodPost,
				Template: TemplateFunc(func() (string, error) { return body, nil }),
			}, cb)
			cb.wait(t)
			cb.success(t)

			received := server.received()
			require.Len(t, received, 1)
			if !tt.gzipped {
				assert.Empty(t, received[0].headers.Get(HeaderContentEncoding))
				assert.Equal(t, body, string(received[0].body))
				return
			}

			assert.Equal(t, EncodingGzip, received[0].headers.Get(HeaderContentEncoding))
			zr, err := gzip.NewReader(strings.NewReader(string(received[0].body)))
			require.NoError(t, err)
			decoded, err := io.ReadAll(zr)
			require.NoError(t, err)
			assert.Equal(t, body, string(decoded))
		})
	}
}

func TestDefaultClientContentType(t *testing.T) {
	t.Run("defaults to JSON", func(t *testing.T) {
		server := newRecordingServer(t, nil)
		c := newTestDefaultClient(t, nil)
		cb := newRecordingCallback()

		c.CallAsync(context.Background(), &Request{URL: server.URL, Method: MethodGet}, cb)
		cb.wait(t)

		assert.Equal(t, ContentTypeJSON, server.received()[0].headers.Get(HeaderContentType))
	})

	t.Run("caller value kept", func(t *testing.T) {
		server := newRecordingServer(t, nil)
		c := newTestDefaultClient(t, nil)
		cb := newRecordingCallback()

		c.CallAsync(context.Background(), &Request{
			URL:     server.URL,
			Method:  MethodGet,
			Headers: map[string]string{"content-type": "text/plain"},
		}, cb)
		cb.wait(t)

		assert.Equal(t, "text/plain", server.received()[0].headers.Get(HeaderContentType))
	})
}

func TestDefaultClientDoesNotMutateCallerHeaders(t *testing.T) {
	server := newRecordingServer(t, nil)
	c := newTestDefaultClient(t, nil)
	cb := newRecordingCallback()

	headers := map[string]string{"X-Custom": "1"}
	c.CallAsync(context.Background(), &Request{URL: server.URL, Method: MethodGet, Headers: headers}, cb)
	cb.wait(t)

	assert.Equal(t, map[string]string{"X-Custom": "1"}, headers)
	assert.Equal(t, "1", server.received()[0].headers.Get("X-Custom"))
}

type signingTemplate struct {
	body      string
	builds    atomic.Int32
	hookURL   string
	hookCalls atomic.Int32
}

func (s *signingTemplate) BuildRequestBody() (string, error) {
	s.builds.Add(1)
	return s.body, nil
}

func (s *signingTemplate) OnBeforeCalling(url string, headers map[string]string) {
	s.hookCalls.Add(1)
	s.hookURL = url
	headers["Authorization"] = "SharedAccessSignature sr=x&sig=y"
}

func TestDefaultClientBeforeCallHook(t *testing.T) {
	server := newRecordingServer(t, nil)
	c := newTestDefaultClient(t, nil)

	t.Run("hook signs PUT", func(t *testing.T) {
		cb := newRecordingCallback()
		template := &signingTemplate{body: `{"installationId":"1"}`}

		c.CallAsync(context.Background(), &Request{URL: server.URL + "/put", Method: MethodPut, Template: template}, cb)
		cb.wait(t)
		cb.success(t)

		assert.Equal(t, int32(1), template.builds.Load())
		assert.Equal(t, int32(1), template.hookCalls.Load())
		assert.Equal(t, server.URL+"/put", template.hookURL)
		last := server.received()[len(server.received())-1]
		assert.Equal(t, "SharedAccessSignature sr=x&sig=y", last.headers.Get("Authorization"))
		assert.Equal(t, template.body, string(last.body))
	})

	t.Run("hook runs for GET without building a body", func(t *testing.T) {
		cb := newRecordingCallback()
		template := &signingTemplate{body: "ignored"}

		c.CallAsync(context.Background(), &Request{URL: server.URL + "/get", Method: MethodGet, Template: template}, cb)
		cb.wait(t)
		cb.success(t)

		assert.Equal(t, int32(0), template.builds.Load())
		assert.Equal(t, int32(1), template.hookCalls.Load())
		last := server.received()[len(server.received())-1]
		assert.Empty(t, last.body)
		assert.NotEmpty(t, last.headers.Get("Authorization"))
	})
}

func TestDefaultClientTemplateFailures(t *testing.T) {
	tests := []struct {
		name     string
		template CallTemplate
	}{
		{"template error", TemplateFunc(func() (string, error) { return "", errors.New("marshal failed") })},
		{"template panic", TemplateFunc(func() (string, error) { panic("boom") })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newRecordingServer(t, nil)
			c := newTestDefaultClient(t, nil)
			cb := newRecordingCallback()

			c.CallAsync(context.Background(), &Request{URL: server.URL, Method: MethodPost, Template: tt.template}, cb)
			cb.wait(t)

			err := cb.failure(t)
			assert.True(t, IsErrorType(err, TemplateError), "got %v", err)
			assert.False(t, IsRecoverable(err))
			assert.Empty(t, server.received())
		})
	}
}

func TestDefaultClientValidation(t *testing.T) {
	tests := []struct {
		name string
		req  *Request
	}{
		{"nil request", nil},
		{"missing method", &Request{URL: testURL}},
		{"missing URL", &Request{Method: MethodGet}},
		{"relative URL", &Request{URL: "/installations/1", Method: MethodGet}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestDefaultClient(t, nil)
			cb := newRecordingCallback()

			c.CallAsync(context.Background(), tt.req, cb)
			cb.wait(t)

			assert.True(t, IsErrorType(cb.failure(t), ValidationError))
			assert.Equal(t, 0, c.InFlight())
		})
	}
}

func TestDefaultClientCancel(t *testing.T) {
	started := make(chan struct{}, 1)
	server := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-r.Context().Done()
	})
	c := newTestDefaultClient(t, nil)
	cb := newRecordingCallback()

	call := c.CallAsync(context.Background(), &Request{URL: server.URL, Method: MethodGet}, cb)
	<-started
	assert.Equal(t, 1, c.InFlight())

	call.Cancel()
	cb.assertSilent(t, 200*time.Millisecond)
	assert.Eventually(t, func() bool { return c.InFlight() == 0 }, time.Second, 5*time.Millisecond)
}

func TestDefaultClientCancelAfterResultStillDelivers(t *testing.T) {
	server := newRecordingServer(t, nil)
	c := newTestDefaultClient(t, nil)

	delivered := make(chan struct{})
	handle := make(chan Call, 1)
	cb := CallbackFuncs{Succeeded: func(*Response) {
		// Cancel arriving once the result is produced is a no-op.
		(<-handle).Cancel()
		close(delivered)
	}}

	handle <- c.CallAsync(context.Background(), &Request{URL: server.URL, Method: MethodGet}, cb)
	select {
	case <-delivered:
	case <-time.After(5 * time.Second):
		t.Fatal("result was not delivered")
	}
}

func TestDefaultClientCloseCancelsInFlight(t *testing.T) {
	started := make(chan struct{}, 4)
	server := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-r.Context().Done()
	})
	c := newTestDefaultClient(t, nil)
	cb := newRecordingCallback()

	for range 3 {
		c.CallAsync(context.Background(), &Request{URL: server.URL, Method: MethodGet}, cb)
	}
	for range 3 {
		<-started
	}
	assert.Equal(t, 3, c.InFlight())

	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.InFlight())
	require.NoError(t, c.Close())
	cb.assertSilent(t, 200*time.Millisecond)

	// Reopen is a no-op and the client keeps working.
	c.Reopen()
	okServer := newRecordingServer(t, nil)
	c.CallAsync(context.Background(), &Request{URL: okServer.URL, Method: MethodGet}, cb)
	cb.wait(t)
	cb.success(t)
}

func TestDefaultClientSaturation(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	server := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})

	cfg := DefaultConfig()
	cfg.MaxConcurrency = 1
	c := newTestDefaultClient(t, cfg)

	first := newRecordingCallback()
	c.CallAsync(context.Background(), &Request{URL: server.URL, Method: MethodGet}, first)
	<-started

	second := newRecordingCallback()
	c.CallAsync(context.Background(), &Request{URL: server.URL, Method: MethodGet}, second)
	second.wait(t)

	err := second.failure(t)
	assert.True(t, IsErrorType(err, SaturationError), "got %v", err)
	assert.ErrorIs(t, err, ErrWorkersSaturated)
	assert.False(t, IsRecoverable(err))

	close(release)
	first.wait(t)
	first.success(t)
}

func TestDefaultClientSaturationFailureIsCancellable(t *testing.T) {
	sched := &fakeScheduler{}
	cfg := DefaultConfig()
	cfg.MaxConcurrency = 1
	c := NewDefaultClient(cfg, logger.Nop(), WithScheduler(sched))

	// Hold the only worker so the call is refused.
	require.True(t, c.workers.TryAcquire(1))
	defer c.workers.Release(1)

	cb := newRecordingCallback()
	call := c.CallAsync(context.Background(), &Request{URL: testURL, Method: MethodGet}, cb)
	assert.Equal(t, 0, cb.total(), "failure must not be delivered synchronously")

	call.Cancel()
	sched.drain()
	assert.Equal(t, 0, cb.total())
}
