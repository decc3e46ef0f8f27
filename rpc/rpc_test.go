package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ndidplatform/idp-agent/config"
	"github.com/ndidplatform/idp-agent/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWait = 2 * time.Second
	testTick = 10 * time.Millisecond
)

// upstreamRecorder fakes the trust-network API over HTTP.
type upstreamRecorder struct {
	mu         sync.Mutex
	identities []map[string]any
	responses  []map[string]any
	failWith   int
}

func (u *upstreamRecorder) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /identity", func(w http.ResponseWriter, r *http.Request) {
		u.record(w, r, &u.identities)
	})
	mux.HandleFunc("POST /idp/response", func(w http.ResponseWriter, r *http.Request) {
		u.record(w, r, &u.responses)
	})
	return mux
}

func (u *upstreamRecorder) record(w http.ResponseWriter, r *http.Request, into *[]map[string]any) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.failWith != 0 {
		http.Error(w, "upstream rejected", u.failWith)
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	*into = append(*into, body)
	w.WriteHeader(http.StatusOK)
}

func (u *upstreamRecorder) responseCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.responses)
}

type testServer struct {
	rpc      *RPC
	server   *httptest.Server
	upstream *upstreamRecorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	upstream := &upstreamRecorder{}
	upstreamServer := httptest.NewServer(upstream.handler())
	t.Cleanup(upstreamServer.Close)

	cfg := &config.Config{
		Mode:     config.LocalMode,
		Service:  config.ServiceConfig{Mode: "local"},
		Upstream: config.UpstreamConfig{BaseURL: upstreamServer.URL},
		Database: config.DatabaseConfig{Backend: "memory"},
	}

	s, err := New(cfg, http.DefaultTransport)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = s.Broker.Run(ctx) }()

	server := httptest.NewServer(s.Handler())
	t.Cleanup(server.Close)

	return &testServer{rpc: s, server: server, upstream: upstream}
}

func (ts *testServer) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := http.Post(ts.server.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return res
}

func (ts *testServer) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	res, err := http.Get(ts.server.URL + path)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

func (ts *testServer) onboard(t *testing.T, namespace, identifier string) string {
	t.Helper()
	res := ts.postJSON(t, "/identity", map[string]string{
		"namespace":  namespace,
		"identifier": identifier,
	})
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	_, userID := ts.get(t, fmt.Sprintf("/getUserId/%s/%s", namespace, identifier))
	require.NotEqual(t, "0", userID)
	return userID
}

func (ts *testServer) fireCallback(t *testing.T, namespace, identifier, requestID string) {
	t.Helper()
	res := ts.postJSON(t, "/callback", proto.CallbackEvent{
		Namespace:  namespace,
		Identifier: identifier,
		RequestID:  requestID,
		Payload: proto.RequestPayload{
			RequestID:      requestID,
			Namespace:      namespace,
			Identifier:     identifier,
			RequestMessage: "login request",
			MinIAL:         3,
			MinAAL:         3,
		},
	})
	defer res.Body.Close()
	require.Equal(t, http.StatusAccepted, res.StatusCode)
}

func (ts *testServer) pending(t *testing.T, namespace, identifier string) []proto.AuthRequest {
	t.Helper()
	res, body := ts.get(t, fmt.Sprintf("/requests/%s/%s", namespace, identifier))
	require.Equal(t, http.StatusOK, res.StatusCode)

	var reqs []proto.AuthRequest
	require.NoError(t, json.Unmarshal([]byte(body), &reqs))
	return reqs
}

func TestUserIDSentinel(t *testing.T) {
	ts := newTestServer(t)

	res, body := ts.get(t, "/getUserId/ns1/stranger")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "0", body)
}

func TestOnboardAndListRequests(t *testing.T) {
	ts := newTestServer(t)

	userID := ts.onboard(t, "ns1", "alice")
	assert.NotEmpty(t, userID)

	// Freshly onboarded users have no pending requests.
	assert.Empty(t, ts.pending(t, "ns1", "alice"))

	// A second onboarding for the same identity is a conflict.
	res := ts.postJSON(t, "/identity", map[string]string{"namespace": "ns1", "identifier": "alice"})
	defer res.Body.Close()
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestCallbackToDecisionFlow(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.onboard(t, "ns1", "alice")

	ts.fireCallback(t, "ns1", "alice", "R1")

	require.Eventually(t, func() bool {
		return len(ts.rpc.Broker.Requests.ListByUser(userID)) == 1
	}, testWait, testTick)

	reqs := ts.pending(t, "ns1", "alice")
	require.Len(t, reqs, 1)
	assert.Equal(t, "R1", reqs[0].RequestID)

	res := ts.postJSON(t, "/accept", map[string]string{"userId": userID, "requestId": "R1"})
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	assert.Equal(t, 1, ts.upstream.responseCount())
	assert.Empty(t, ts.pending(t, "ns1", "alice"))
}

func TestCallbackForUnknownIdentity(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.onboard(t, "ns1", "alice")

	ts.fireCallback(t, "ns9", "stranger", "R1")

	// The event is accepted at the edge but discarded by ingress.
	assert.Never(t, func() bool {
		return len(ts.rpc.Broker.Requests.ListByUser(userID)) > 0
	}, 100*time.Millisecond, testTick)
}

func TestDecisionUnknownRequest(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.onboard(t, "ns1", "alice")

	res := ts.postJSON(t, "/reject", map[string]string{"userId": userID, "requestId": "never"})
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	var rpcErr proto.WebRPCError
	require.NoError(t, json.NewDecoder(res.Body).Decode(&rpcErr))
	assert.Equal(t, "UnknownRequest", rpcErr.Name)

	assert.Equal(t, 0, ts.upstream.responseCount())
}

func TestDecisionUpstreamFailure(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.onboard(t, "ns1", "alice")

	ts.fireCallback(t, "ns1", "alice", "R1")
	require.Eventually(t, func() bool {
		return len(ts.rpc.Broker.Requests.ListByUser(userID)) == 1
	}, testWait, testTick)

	ts.upstream.mu.Lock()
	ts.upstream.failWith = http.StatusInternalServerError
	ts.upstream.mu.Unlock()

	res := ts.postJSON(t, "/accept", map[string]string{"userId": userID, "requestId": "R1"})
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)

	// Fail-open: the request is retired even though upstream failed.
	assert.Empty(t, ts.pending(t, "ns1", "alice"))
}

func TestOnboardUpstreamFailure(t *testing.T) {
	ts := newTestServer(t)

	ts.upstream.mu.Lock()
	ts.upstream.failWith = http.StatusBadRequest
	ts.upstream.mu.Unlock()

	res := ts.postJSON(t, "/identity", map[string]string{"namespace": "ns2", "identifier": "bob"})
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)

	// No partial registration.
	_, body := ts.get(t, "/getUserId/ns2/bob")
	assert.Equal(t, "0", body)
}

func TestOnboardFromForm(t *testing.T) {
	ts := newTestServer(t)

	form := strings.NewReader("namespace=ns1&identifier=carol")
	res, err := http.Post(ts.server.URL+"/identity", "application/x-www-form-urlencoded", form)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	_, userID := ts.get(t, "/getUserId/ns1/carol")
	assert.NotEqual(t, "0", userID)
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t)

	res, body := ts.get(t, "/status")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "uptime")
	assert.Contains(t, body, "ver")
}
