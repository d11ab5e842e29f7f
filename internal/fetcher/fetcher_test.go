package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/catalog-ingest/internal/model"
)

// memAudit collects APICall records in memory.
type memAudit struct {
	mu    sync.Mutex
	calls []model.APICall
}

func (m *memAudit) AppendAPICall(_ context.Context, call model.APICall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return nil
}

func (m *memAudit) all() []model.APICall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.APICall(nil), m.calls...)
}

func newTestClient(audit AuditSink) *Client {
	return New(Options{
		UserAgent:      "test-agent",
		Timeout:        5 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		RatePerHost:    1000,
		RateBurst:      1000,
	}, audit)
}

func TestGet_PreferredVersionAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "4", r.Header.Get("x-v"))
		w.Header().Set("x-v", "4")
		w.Header().Set("ETag", `"tag-1"`)
		w.Write([]byte(`{"data":{"products":[]}}`))
	}))
	defer srv.Close()

	audit := &memAudit{}
	c := newTestClient(audit)

	resp, err := c.Get(context.Background(), Request{
		RunID:      "run-1",
		ProviderID: "prov-a",
		Endpoint:   "banking:get-products",
		URL:        srv.URL + "/products",
		Versions:   []int{4, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 4, resp.RespondedVersion)
	assert.Equal(t, `"tag-1"`, resp.ETag)
	assert.JSONEq(t, `{"data":{"products":[]}}`, string(resp.Body))

	calls := audit.all()
	require.Len(t, calls, 1)
	assert.Equal(t, "run-1", calls[0].RunID)
	assert.Equal(t, 4, calls[0].RequestedVersion)
	assert.Equal(t, http.StatusOK, calls[0].HTTPStatus)
	assert.Empty(t, calls[0].Error)
}

func TestGet_VersionFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := strconv.Atoi(r.Header.Get("x-v"))
		if v > 2 {
			w.WriteHeader(http.StatusNotAcceptable)
			return
		}
		w.Header().Set("x-v", "2")
		w.Write([]byte(`{"data":{"products":[]}}`))
	}))
	defer srv.Close()

	audit := &memAudit{}
	c := newTestClient(audit)

	resp, err := c.Get(context.Background(), Request{
		ProviderID: "prov-a",
		Endpoint:   "banking:get-products",
		URL:        srv.URL,
		Versions:   []int{4, 3, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.RespondedVersion)

	// One audit record per attempt: 406 for v4, 406 for v3, 200 for v2.
	calls := audit.all()
	require.Len(t, calls, 3)
	assert.Equal(t, http.StatusNotAcceptable, calls[0].HTTPStatus)
	assert.Equal(t, 4, calls[0].RequestedVersion)
	assert.Equal(t, http.StatusNotAcceptable, calls[1].HTTPStatus)
	assert.Equal(t, 3, calls[1].RequestedVersion)
	assert.Equal(t, http.StatusOK, calls[2].HTTPStatus)
	assert.Equal(t, 2, calls[2].RequestedVersion)
}

func TestGet_AllVersionsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotAcceptable)
	}))
	defer srv.Close()

	audit := &memAudit{}
	c := newTestClient(audit)

	_, err := c.Get(context.Background(), Request{URL: srv.URL, Versions: []int{2, 1}})
	require.Error(t, err)

	var te *TerminalError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusNotAcceptable, te.LastStatus)
	assert.Len(t, audit.all(), 2)
}

func TestGet_RetriesTransientThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	audit := &memAudit{}
	c := newTestClient(audit)

	resp, err := c.Get(context.Background(), Request{URL: srv.URL, Versions: []int{1}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// All three attempts audited, including the failed ones.
	calls := audit.all()
	require.Len(t, calls, 3)
	assert.Equal(t, http.StatusBadGateway, calls[0].HTTPStatus)
	assert.Equal(t, http.StatusBadGateway, calls[1].HTTPStatus)
	assert.Equal(t, http.StatusOK, calls[2].HTTPStatus)
}

func TestGet_TransientExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	audit := &memAudit{}
	c := newTestClient(audit)

	_, err := c.Get(context.Background(), Request{URL: srv.URL, Versions: []int{2, 1}})
	require.Error(t, err)

	var te *TerminalError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusServiceUnavailable, te.LastStatus)

	// Retry exhaustion terminates the call without advancing to version 1.
	assert.Len(t, audit.all(), 3)
	for _, call := range audit.all() {
		assert.Equal(t, 2, call.RequestedVersion)
	}
}

func TestGet_HonorsRetryAfterOn429(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	audit := &memAudit{}
	c := newTestClient(audit)

	resp, err := c.Get(context.Background(), Request{URL: srv.URL, Versions: []int{1}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestGet_TransportError(t *testing.T) {
	audit := &memAudit{}
	c := newTestClient(audit)

	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := c.Get(context.Background(), Request{URL: url, Versions: []int{1}})
	require.Error(t, err)

	var te *TerminalError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 0, te.LastStatus)

	// Connection refused is transient, so every retry attempt is audited.
	calls := audit.all()
	require.Len(t, calls, 3)
	for _, call := range calls {
		assert.Equal(t, 0, call.HTTPStatus)
		assert.NotEmpty(t, call.Error)
	}
}

func TestGet_NonRetryableStatusReturnedToCaller(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errors":[{"code":"missing"}]}`))
	}))
	defer srv.Close()

	audit := &memAudit{}
	c := newTestClient(audit)

	resp, err := c.Get(context.Background(), Request{URL: srv.URL, Versions: []int{1}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	calls := audit.all()
	require.Len(t, calls, 1)
	assert.NotEmpty(t, calls[0].Error)
}

func TestGet_NoVersions(t *testing.T) {
	c := newTestClient(&memAudit{})
	_, err := c.Get(context.Background(), Request{URL: "http://localhost", Versions: nil})
	require.Error(t, err)
}

func TestRetryAfterHeader(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "12")
	assert.Equal(t, 12*time.Second, retryAfter(h))

	h.Set("Retry-After", time.Now().Add(30*time.Second).UTC().Format(http.TimeFormat))
	d := retryAfter(h)
	assert.Greater(t, d, 20*time.Second)
	assert.LessOrEqual(t, d, 30*time.Second)

	h.Set("Retry-After", "garbage")
	assert.Equal(t, time.Duration(0), retryAfter(h))
}
