package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/metrics"
)

// DefaultSendTimeout bounds a single outbound write when the router is built
// without an explicit timeout.
const DefaultSendTimeout = 5 * time.Second

// Outcome is the result of pushing an envelope to an identity. None of the
// outcomes is an error for the caller.
type Outcome int

const (
	Delivered Outcome = iota
	TargetOffline
	SendFailed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case TargetOffline:
		return "target_offline"
	case SendFailed:
		return "send_failed"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "delivered":
		*o = Delivered
	case "target_offline":
		*o = TargetOffline
	case "send_failed":
		*o = SendFailed
	default:
		return fmt.Errorf("unknown delivery outcome %q", b)
	}
	return nil
}

// Deliverer is the capability handed to collaborators outside the relay:
// push this envelope to this identity.
type Deliverer interface {
	DeliverEnvelope(ctx context.Context, identity string, env Envelope) Outcome
}

// Deliver writes data to the connection registered under identity. The write
// is bounded by the router's send timeout. The router never closes the target
// connection; a transport may close itself when a write leaves it unusable.
func (r *Router) Deliver(ctx context.Context, identity string, data []byte) Outcome {
	outcome := r.deliver(ctx, identity, data)
	switch outcome {
	case Delivered:
		r.metrics.Inc(metrics.DeliverDelivered)
	case TargetOffline:
		r.metrics.Inc(metrics.DeliverTargetOffline)
	case SendFailed:
		r.metrics.Inc(metrics.DeliverSendFailed)
	}
	return outcome
}

func (r *Router) deliver(ctx context.Context, identity string, data []byte) Outcome {
	conn, ok := r.registry.Lookup(identity)
	if !ok {
		return TargetOffline
	}
	if !conn.IsOpen() {
		r.evict(conn)
		return TargetOffline
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()

	if err := conn.Send(sendCtx, data); err != nil {
		if errors.Is(err, ErrConnClosed) {
			r.evict(conn)
			return TargetOffline
		}
		r.log.Debug("relay send failed", "identity", identity, "conn_id", conn.ID(), "err", err)
		return SendFailed
	}
	return Delivered
}

// DeliverEnvelope serialises env and delivers it. Serialisation failures are
// reported as SendFailed.
func (r *Router) DeliverEnvelope(ctx context.Context, identity string, env Envelope) Outcome {
	data, err := env.Marshal()
	if err != nil {
		r.log.Error("failed to encode envelope", "kind", env.Kind(), "err", err)
		r.metrics.Inc(metrics.DeliverSendFailed)
		return SendFailed
	}
	return r.Deliver(ctx, identity, data)
}

// evict drops the registry entry of a connection found closed during
// delivery. The close handler will do the same; whichever runs first wins.
func (r *Router) evict(conn Conn) {
	if identity, ok := r.registry.Unregister(conn.ID()); ok {
		r.metrics.Inc(metrics.Unregistered)
		r.log.Debug("evicted closed connection", "identity", identity, "conn_id", conn.ID())
	}
}
