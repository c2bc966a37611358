package installation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushbricks/pushbricks/httpclient"
	"github.com/pushbricks/pushbricks/logger"
	"github.com/pushbricks/pushbricks/netadapter"
	"github.com/pushbricks/pushbricks/scheduler"
)

const testHub = "demo-hub"

// fakeHub stores installations in memory and fails the first failPuts PUTs with 503.
type fakeHub struct {
	mu        sync.Mutex
	docs      map[string]string
	auth      []string
	failPuts  int
	putBodies []string
}

func (h *fakeHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.auth = append(h.auth, r.Header.Get("Authorization"))
	if r.URL.Query().Get("api-version") != DefaultAPIVersion {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	prefix := "/" + testHub + "/installations/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, prefix)

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		h.putBodies = append(h.putBodies, string(body))
		if h.failPuts > 0 {
			h.failPuts--
			w.Header().Set(httpclient.HeaderRetryAfterMs, "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		h.docs[id] = string(body)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		doc, ok := h.docs[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(doc))
	case http.MethodDelete:
		if _, ok := h.docs[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(h.docs, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, hub *fakeHub, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	looper := scheduler.NewLooper(logger.Nop())
	t.Cleanup(looper.Close)
	chain := httpclient.NewBuilder(logger.Nop()).
		WithScheduler(looper).
		WithRetry(true, 2*time.Millisecond, 2*time.Millisecond, 2*time.Millisecond).
		Build()

	cs, err := ParseConnectionString("Endpoint=" + server.URL + "/;SharedAccessKeyName=Full;SharedAccessKey=secret")
	require.NoError(t, err)
	c, err := NewClient(cs, testHub, chain, opts...)
	require.NoError(t, err)
	return c
}

func TestClientLifecycle(t *testing.T) {
	hub := &fakeHub{docs: map[string]string{}}
	c := newTestClient(t, hub)
	ctx := context.Background()

	inst := NewInstallation(PlatformFCMV1, "fcm-token", "news")
	require.NoError(t, c.Upsert(ctx, inst))

	got, err := c.Get(ctx, inst.InstallationID)
	require.NoError(t, err)
	assert.Equal(t, inst, got)

	require.NoError(t, c.Delete(ctx, inst.InstallationID))
	_, err = c.Get(ctx, inst.InstallationID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is not an error.
	require.NoError(t, c.Delete(ctx, inst.InstallationID))

	hub.mu.Lock()
	defer hub.mu.Unlock()
	for _, auth := range hub.auth {
		assert.True(t, strings.HasPrefix(auth, "SharedAccessSignature sr="), "got %q", auth)
	}
}

func TestClientUpsertRetriesWithFreshBody(t *testing.T) {
	hub := &fakeHub{docs: map[string]string{}, failPuts: 2}
	c := newTestClient(t, hub)

	inst := NewInstallation(PlatformAPNS, "apns-token")
	require.NoError(t, c.Upsert(context.Background(), inst))

	hub.mu.Lock()
	defer hub.mu.Unlock()
	require.Len(t, hub.putBodies, 3)
	var decoded Installation
	require.NoError(t, json.Unmarshal([]byte(hub.putBodies[2]), &decoded))
	assert.Equal(t, inst.InstallationID, decoded.InstallationID)
	assert.Len(t, hub.auth, 3)
	assert.Contains(t, hub.docs, inst.InstallationID)
}

func TestClientUpsertGivesUp(t *testing.T) {
	hub := &fakeHub{docs: map[string]string{}, failPuts: 10}
	c := newTestClient(t, hub)

	err := c.Upsert(context.Background(), NewInstallation(PlatformADM, "adm-token"))

	var failure *netadapter.Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, httpclient.OutcomeRetriable, failure.Outcome)
	assert.Equal(t, 503, failure.StatusCode())
	hub.mu.Lock()
	assert.Len(t, hub.putBodies, 4)
	hub.mu.Unlock()
}

func TestClientUpsertValidates(t *testing.T) {
	hub := &fakeHub{docs: map[string]string{}}
	c := newTestClient(t, hub)

	err := c.Upsert(context.Background(), &Installation{InstallationID: "x", Platform: "wns", PushChannel: "c"})

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	hub.mu.Lock()
	assert.Empty(t, hub.auth, "nothing is sent")
	hub.mu.Unlock()
}

func TestClientURL(t *testing.T) {
	hub := &fakeHub{docs: map[string]string{}}
	c := newTestClient(t, hub, WithAPIVersion("2021-01"))

	assert.True(t, strings.HasSuffix(c.URL("a b"), "/demo-hub/installations/a%20b?api-version=2021-01"))
}

func TestNewClientValidation(t *testing.T) {
	cs := ConnectionString{Endpoint: "https://demo/", SharedAccessKeyName: "k", SharedAccessKey: "v"}
	chain := httpclient.NewBuilder(logger.Nop()).Build()

	_, err := NewClient(cs, "", chain)
	assert.Error(t, err)
	_, err = NewClient(cs, testHub, nil)
	assert.Error(t, err)
	_, err = NewClient(ConnectionString{}, testHub, chain)
	assert.ErrorIs(t, err, ErrInvalidConnectionString)
}

func TestClientRequiresIDs(t *testing.T) {
	hub := &fakeHub{docs: map[string]string{}}
	c := newTestClient(t, hub)

	assert.Error(t, c.Delete(context.Background(), ""))
	_, err := c.Get(context.Background(), "")
	assert.Error(t, err)
	assert.Error(t, c.Upsert(context.Background(), nil))
}
