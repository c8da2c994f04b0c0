package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperboria-dev/cjdns/internal/admin"
	"github.com/hyperboria-dev/cjdns/internal/audit"
	"github.com/hyperboria-dev/cjdns/internal/auth"
	"github.com/hyperboria-dev/cjdns/internal/level"
	"github.com/hyperboria-dev/cjdns/internal/logging"
	"github.com/hyperboria-dev/cjdns/internal/ratelimit"
)

type fakeAudit struct {
	events []audit.Event
	err    error
	limit  int
}

func (f *fakeAudit) Recent(_ context.Context, limit int) ([]audit.Event, error) {
	f.limit = limit
	return f.events, f.err
}

type testEnv struct {
	srv         *httptest.Server
	broadcaster *logging.Broadcaster
	streams     *admin.Streams
	client      *admin.Client
}

func newTestEnv(t *testing.T, issuer *auth.Issuer, lister AuditLister) *testEnv {
	t.Helper()

	streams := admin.NewStreams(16)
	adm := admin.New(nil, streams)
	b := logging.NewBroadcaster(adm, logging.Config{})
	logging.Register(adm, b)

	s := New(Config{
		Admin:       adm,
		Streams:     streams,
		Broadcaster: b,
		Issuer:      issuer,
		Audit:       lister,
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		b.Close()
	})

	c := admin.NewClient(ts.URL, "")
	c.HTTP = ts.Client()
	return &testEnv{srv: ts, broadcaster: b, streams: streams, client: c}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp, err := env.client.HTTP.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "OK", body["status"])
	assert.EqualValues(t, 0, body["subscriptions"])
}

func TestSubscribeAndStreamOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := env.client.Stream(ctx, "tx-1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.streams.Listeners() == 1 }, time.Second, 10*time.Millisecond)

	resp, err := env.client.Call(ctx, logging.SubscribeFunction, admin.Args{"level": "INFO", "file": "Router.c"}, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "none", resp["error"])
	streamID, _ := resp["streamId"].(string)
	require.Len(t, streamID, 16)

	env.broadcaster.Emit(level.Debug, "Router.c", 3, "too quiet")
	env.broadcaster.Emit(level.Warn, "Switch.c", 4, "other file")
	env.broadcaster.Emit(level.Warn, "Router.c", 5, "route %d lost", 7)

	select {
	case msg := <-msgs:
		var push map[string]any
		require.NoError(t, json.Unmarshal(msg, &push))
		assert.Equal(t, "WARN", push["level"])
		assert.Equal(t, "Router.c", push["file"])
		assert.Equal(t, "route 7 lost", push["message"])
		assert.EqualValues(t, 5, push["line"])
	case <-time.After(2 * time.Second):
		t.Fatal("no push received")
	}

	resp, err = env.client.Call(ctx, logging.UnsubscribeFunction, admin.Args{"streamId": streamID}, "tx-2")
	require.NoError(t, err)
	assert.Equal(t, "none", resp["error"])
	assert.Equal(t, 0, env.broadcaster.Len())

	cancel()
	require.Eventually(t, func() bool { return env.streams.Listeners() == 0 }, time.Second, 10*time.Millisecond)
}

func TestCallErrors(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed body", `{`, http.StatusBadRequest},
		{"missing function", `{"txid":"t"}`, http.StatusBadRequest},
		{"unknown function", `{"q":"Nope","txid":"t"}`, http.StatusNotFound},
		{"bad argument type", `{"q":"AdminLog_subscribe","txid":"t","args":{"line":"x"}}`, http.StatusBadRequest},
		{"missing required argument", `{"q":"AdminLog_unsubscribe","txid":"t"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := env.client.HTTP.Post(env.srv.URL+"/admin/call", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)

			var body errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestCallAssignsTxID(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp, err := env.client.HTTP.Post(env.srv.URL+"/admin/call", "application/json",
		strings.NewReader(`{"q":"AdminLog_subscribe","args":{"line":3}}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Txid"))

	subs := env.broadcaster.Subscriptions()
	require.Len(t, subs, 1)
	assert.Equal(t, resp.Header.Get("X-Txid"), subs[0].TxID)
	assert.Equal(t, 3, subs[0].Line)
}

func TestStreamRequiresTxID(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp, err := env.client.HTTP.Get(env.srv.URL + "/admin/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubscriptionsAndStats(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	_, err := env.client.Call(ctx, logging.SubscribeFunction, admin.Args{"level": "ERROR", "file": "a.c", "line": 9}, "tx")
	require.NoError(t, err)

	resp, err := env.client.HTTP.Get(env.srv.URL + "/admin/subscriptions")
	require.NoError(t, err)
	defer resp.Body.Close()

	var subs []subscriptionView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&subs))
	require.Len(t, subs, 1)
	assert.Equal(t, "ERROR", subs[0].Level)
	assert.Equal(t, "a.c", subs[0].File)
	assert.Equal(t, 9, subs[0].Line)
	assert.Equal(t, "tx", subs[0].TxID)

	statsResp, err := env.client.HTTP.Get(env.srv.URL + "/admin/stats")
	require.NoError(t, err)
	defer statsResp.Body.Close()

	var stats struct {
		Broadcaster logging.Stats `json:"broadcaster"`
	}
	require.NoError(t, json.NewDecoder(statsResp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Broadcaster.Subscriptions)
	assert.Equal(t, logging.DefaultMaxSubscriptions, stats.Broadcaster.MaxSubscriptions)
}

func TestFunctionsOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	fns, err := env.client.Functions(context.Background())
	require.NoError(t, err)
	assert.Contains(t, fns, logging.SubscribeFunction)
	assert.True(t, fns[logging.UnsubscribeFunction]["streamId"].Required)
}

func TestRequireAuth(t *testing.T) {
	issuer, err := auth.NewIssuer("secret")
	require.NoError(t, err)
	env := newTestEnv(t, issuer, nil)
	ctx := context.Background()

	_, err = env.client.Functions(ctx)
	assert.ErrorContains(t, err, "401")

	env.client.Token = "not-a-token"
	_, err = env.client.Functions(ctx)
	assert.ErrorContains(t, err, "401")

	token, _, err := issuer.Issue("operator", time.Minute)
	require.NoError(t, err)
	env.client.Token = token
	_, err = env.client.Functions(ctx)
	assert.NoError(t, err)

	// Health stays open for probes.
	resp, err := env.client.HTTP.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAudit(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t, nil, nil)
		resp, err := env.client.HTTP.Get(env.srv.URL + "/admin/audit")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("lists events", func(t *testing.T) {
		lister := &fakeAudit{events: []audit.Event{{Action: audit.ActionSubscribed, StreamID: "00000000000000ff"}}}
		env := newTestEnv(t, nil, lister)

		resp, err := env.client.HTTP.Get(env.srv.URL + "/admin/audit?limit=5")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 5, lister.limit)
		var events []audit.Event
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
		require.Len(t, events, 1)
		assert.Equal(t, "00000000000000ff", events[0].StreamID)
	})

	t.Run("store failure", func(t *testing.T) {
		env := newTestEnv(t, nil, &fakeAudit{err: errors.New("db down")})
		resp, err := env.client.HTTP.Get(env.srv.URL + "/admin/audit")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestShutdownEndsStreams(t *testing.T) {
	streams := admin.NewStreams(1)
	adm := admin.New(nil, streams)
	b := logging.NewBroadcaster(adm, logging.Config{})
	defer b.Close()
	s := New(Config{Addr: "127.0.0.1:0", Admin: adm, Streams: streams, Broadcaster: b})

	ts := httptest.NewUnstartedServer(s.Handler())
	ts.Config = s.server
	ts.Start()
	defer ts.Close()

	c := admin.NewClient(ts.URL, "")
	c.HTTP = ts.Client()
	msgs, err := c.Stream(context.Background(), "tx")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	for range msgs {
	}
	assert.Equal(t, 0, streams.Listeners())
}

type fakeLimiter struct {
	blocked  bool
	failures []string
}

func (f *fakeLimiter) Check(_ context.Context, ip string) error {
	if f.blocked {
		return ratelimit.ErrTooManyFailures
	}
	return nil
}

func (f *fakeLimiter) RecordFailure(_ context.Context, ip string) error {
	f.failures = append(f.failures, ip)
	return nil
}

func TestRequireAuthRateLimited(t *testing.T) {
	issuer, err := auth.NewIssuer("secret")
	require.NoError(t, err)

	limiter := &fakeLimiter{}
	streams := admin.NewStreams(1)
	adm := admin.New(nil, streams)
	b := logging.NewBroadcaster(adm, logging.Config{})
	defer b.Close()
	h := New(Config{Admin: adm, Streams: streams, Broadcaster: b, Issuer: issuer, Limiter: limiter}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/admin/functions", nil)
	req.Header.Set("Authorization", "Bearer forged")
	req.RemoteAddr = "192.0.2.7:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, []string{"192.0.2.7"}, limiter.failures)

	limiter.blocked = true
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Len(t, limiter.failures, 1)
}

func TestRateLimitIgnoresForwardingHeaders(t *testing.T) {
	issuer, err := auth.NewIssuer("secret")
	require.NoError(t, err)

	limiter := &fakeLimiter{}
	streams := admin.NewStreams(1)
	adm := admin.New(nil, streams)
	b := logging.NewBroadcaster(adm, logging.Config{})
	defer b.Close()
	h := New(Config{Admin: adm, Streams: streams, Broadcaster: b, Issuer: issuer, Limiter: limiter}).Handler()

	for _, forwarded := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		req := httptest.NewRequest(http.MethodGet, "/admin/functions", nil)
		req.Header.Set("Authorization", "Bearer forged")
		req.Header.Set("X-Forwarded-For", forwarded)
		req.Header.Set("X-Real-IP", forwarded)
		req.RemoteAddr = "192.0.2.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	assert.Equal(t, []string{"192.0.2.7", "192.0.2.7", "192.0.2.7"}, limiter.failures)
}

func TestPeerIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", peerIP(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", peerIP(req))
}
