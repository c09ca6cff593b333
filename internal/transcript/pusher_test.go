package transcript

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/relay"
)

type sinkConn struct {
	mu   sync.Mutex
	sent [][]byte
}

func (c *sinkConn) ID() string   { return "sink" }
func (c *sinkConn) IsOpen() bool { return true }

func (c *sinkConn) Send(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func TestPusher_ThroughRouter(t *testing.T) {
	router := relay.NewRouter(relay.RouterConfig{})
	conn := &sinkConn{}
	_, err := router.Registry().Register("jeff", conn)
	require.NoError(t, err)

	filter, err := NewFilter(nil)
	require.NoError(t, err)
	p := NewPusher(router, filter, nil, nil)
	ctx := context.Background()

	outcome, err := p.Push(ctx, "jeff", "ship it on friday")
	require.NoError(t, err)
	require.Equal(t, relay.Delivered, outcome)

	_, err = p.Push(ctx, "jeff", "Thank you.")
	require.ErrorIs(t, err, ErrFiltered)

	outcome, err = p.Push(ctx, "nobody", "ship it on friday")
	require.NoError(t, err)
	require.Equal(t, relay.TargetOffline, outcome)

	require.Len(t, conn.sent, 1)
	var body map[string]any
	require.NoError(t, json.Unmarshal(conn.sent[0], &body))
	require.Equal(t, map[string]any{"type": "TRANSCRIPT", "text": "ship it on friday", "sender": "AI"}, body)
}
