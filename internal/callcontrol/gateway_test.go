package callcontrol

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/relay"
)

// memConn is an always-open relay.Conn that records what it was sent.
type memConn struct {
	id string

	mu   sync.Mutex
	sent [][]byte
}

func (c *memConn) ID() string   { return c.id }
func (c *memConn) IsOpen() bool { return true }

func (c *memConn) Send(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *memConn) last(t *testing.T) map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent)
	var body map[string]any
	require.NoError(t, json.Unmarshal(c.sent[len(c.sent)-1], &body))
	return body
}

func (c *memConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func newTestGateway(t *testing.T) (*Gateway, *relay.Router, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	router := relay.NewRouter(relay.RouterConfig{Metrics: m})
	ids := []string{"call-1", "call-2", "call-3"}
	n := 0
	gw := NewGateway(GatewayConfig{
		Deliverer: router,
		Metrics:   m,
		NewCallID: func() string {
			id := ids[n%len(ids)]
			n++
			return id
		},
	})
	return gw, router, m
}

func registerConn(t *testing.T, router *relay.Router, identity string) *memConn {
	t.Helper()
	c := &memConn{id: identity + "-conn"}
	_, err := router.Registry().Register(identity, c)
	require.NoError(t, err)
	return c
}

func TestGateway_RingAnswerHangupScenario(t *testing.T) {
	gw, router, m := newTestGateway(t)
	jeff := registerConn(t, router, "jeff")
	bob := registerConn(t, router, "bob")
	ctx := context.Background()

	callID, outcome := gw.Ring(ctx, "jeff", "bob")
	require.Equal(t, relay.Delivered, outcome)
	require.Equal(t, relay.CallID("call-1"), callID)
	require.Equal(t, map[string]any{
		"type": "CALL", "action": "RING", "sender": "jeff", "receiver": "bob", "callId": "call-1",
	}, bob.last(t))

	require.Equal(t, relay.Delivered, gw.Answer(ctx, callID, "jeff", "bob"))
	require.Equal(t, map[string]any{
		"type": "CALL", "action": "ANSWERED", "callId": "call-1", "responder": "bob",
	}, jeff.last(t))

	require.Equal(t, relay.Delivered, gw.Hangup(ctx, callID, "jeff"))
	require.Equal(t, map[string]any{"type": "CALL", "action": "HANGUP", "callId": "call-1"}, jeff.last(t))

	// Hangup leaves both registrations alone.
	require.Equal(t, map[string]string{"jeff": "jeff-conn", "bob": "bob-conn"}, router.Registry().Snapshot())

	require.Equal(t, uint64(1), m.Get(metrics.CallRing))
	require.Equal(t, uint64(1), m.Get(metrics.CallAnswer))
	require.Equal(t, uint64(1), m.Get(metrics.CallHangup))
}

func TestGateway_RingToOfflineReceiver(t *testing.T) {
	gw, router, _ := newTestGateway(t)
	jeff := registerConn(t, router, "jeff")

	_, outcome := gw.Ring(context.Background(), "jeff", "bob")
	require.Equal(t, relay.TargetOffline, outcome)
	require.Zero(t, jeff.count())
}

func TestGateway_AnswerForUnknownCallIsStillDelivered(t *testing.T) {
	gw, router, _ := newTestGateway(t)
	jeff := registerConn(t, router, "jeff")

	require.Equal(t, relay.Delivered, gw.Answer(context.Background(), "never-rung", "jeff", "bob"))
	require.Equal(t, "never-rung", jeff.last(t)["callId"])
}

func TestGateway_CallIDsAreUnique(t *testing.T) {
	router := relay.NewRouter(relay.RouterConfig{})
	registerConn(t, router, "bob")
	gw := NewGateway(GatewayConfig{Deliverer: router})

	seen := map[relay.CallID]bool{}
	for i := 0; i < 100; i++ {
		id, _ := gw.Ring(context.Background(), "jeff", "bob")
		require.NotEmpty(t, id)
		require.False(t, seen[id], "duplicate call id %q", id)
		seen[id] = true
	}
}
