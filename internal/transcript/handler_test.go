package transcript

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/relay"
)

type recordingDeliverer struct {
	mu      sync.Mutex
	outcome relay.Outcome
	got     []delivery
}

type delivery struct {
	identity string
	env      relay.Envelope
}

func (d *recordingDeliverer) DeliverEnvelope(_ context.Context, identity string, env relay.Envelope) relay.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, delivery{identity: identity, env: env})
	return d.outcome
}

func (d *recordingDeliverer) deliveries() []delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]delivery(nil), d.got...)
}

func newTestServer(t *testing.T, d relay.Deliverer) (*httptest.Server, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	filter, err := NewFilter(nil)
	require.NoError(t, err)
	resolver, err := auth.NewResolver(config.Config{AuthMode: config.AuthModeNone, IdentityHeader: "X-Relay-User"})
	require.NoError(t, err)

	mux := http.NewServeMux()
	guard := httpserver.Guard{Resolver: resolver, Metrics: m, Logger: logger}
	NewHandler(NewPusher(d, filter, logger, m), guard, logger, m).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, m
}

func post(t *testing.T, url, identity, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if identity != "" {
		req.Header.Set("X-Relay-User", identity)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestPush_DeliversToCallerOwnIdentity(t *testing.T) {
	d := &recordingDeliverer{outcome: relay.Delivered}
	srv, m := newTestServer(t, d)

	status, body := post(t, srv.URL+"/api/transcripts", "jeff", `{"text":"Let's review the roadmap."}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, map[string]any{"delivered": true, "outcome": "delivered"}, body)

	got := d.deliveries()
	require.Len(t, got, 1)
	require.Equal(t, "jeff", got[0].identity)
	require.Equal(t, relay.NewTranscriptEnvelope("Let's review the roadmap."), got[0].env)
	require.Equal(t, uint64(1), m.Get(metrics.TranscriptPushed))
}

func TestPush_FilteredNeverDelivers(t *testing.T) {
	d := &recordingDeliverer{outcome: relay.Delivered}
	srv, m := newTestServer(t, d)

	status, body := post(t, srv.URL+"/api/transcripts", "jeff", `{"text":"Thank you."}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, map[string]any{"delivered": false, "filtered": true}, body)
	require.Empty(t, d.deliveries())
	require.Equal(t, uint64(1), m.Get(metrics.TranscriptFiltered))
}

func TestPush_OfflineSpeaker(t *testing.T) {
	srv, _ := newTestServer(t, &recordingDeliverer{outcome: relay.TargetOffline})

	status, body := post(t, srv.URL+"/api/transcripts", "jeff", `{"text":"is anyone there"}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, map[string]any{"delivered": false, "outcome": "target_offline"}, body)
}

func TestPush_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t, &recordingDeliverer{})

	status, body := post(t, srv.URL+"/api/transcripts", "jeff", `{"text":`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "bad_request", body["code"])

	status, _ = post(t, srv.URL+"/api/transcripts", "", `{"text":"hello there"}`)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestChunk(t *testing.T) {
	d := &recordingDeliverer{}
	srv, m := newTestServer(t, d)

	status, _ := post(t, srv.URL+"/api/calls/call-1/transcript", "jeff", `{"text":"first words"}`)
	require.Equal(t, http.StatusNoContent, status)
	require.Equal(t, uint64(1), m.Get(metrics.TranscriptChunk))
	require.Empty(t, d.deliveries())

	status, body := post(t, srv.URL+"/api/calls/call-1/transcript", "jeff", `{"text":""}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, body["message"], "text")
}
