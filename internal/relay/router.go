package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/metrics"
)

type RouterConfig struct {
	Registry    *Registry
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	SendTimeout time.Duration
}

// Router interprets inbound envelopes and owns the delivery primitive used by
// both peer-to-peer forwarding and server-originated notifications.
type Router struct {
	registry    *Registry
	log         *slog.Logger
	metrics     *metrics.Metrics
	sendTimeout time.Duration
}

func NewRouter(cfg RouterConfig) *Router {
	r := &Router{
		registry:    cfg.Registry,
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
		sendTimeout: cfg.SendTimeout,
	}
	if r.registry == nil {
		r.registry = NewRegistry()
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.sendTimeout <= 0 {
		r.sendTimeout = DefaultSendTimeout
	}
	return r
}

func (r *Router) Registry() *Registry { return r.registry }

// Route handles one message received on from. It returns an error wrapping
// ErrMalformedEnvelope for input it cannot interpret; the caller should drop
// the message and keep reading.
func (r *Router) Route(ctx context.Context, from Conn, data []byte) error {
	env, err := ParseEnvelope(data)
	if err != nil {
		r.metrics.Inc(metrics.MalformedEnvelope)
		return err
	}

	switch env.Kind() {
	case KindRegister:
		return r.handleRegister(from, env)
	case KindCall:
		return r.handleCall(ctx, from, env, data)
	default:
		// Transcripts only flow server to client; anything else is a kind this
		// relay does not know yet.
		r.metrics.Inc(metrics.UnknownKind)
		r.log.Debug("ignoring envelope", "conn_id", from.ID(), "type", env.Type)
		return nil
	}
}

func (r *Router) handleRegister(from Conn, env Envelope) error {
	identity := env.RegisterIdentity()
	if identity == "" {
		r.metrics.Inc(metrics.MalformedEnvelope)
		return fmt.Errorf("%w: register without username", ErrMalformedEnvelope)
	}

	res, err := r.registry.Register(identity, from)
	if err != nil {
		r.metrics.Inc(metrics.MalformedEnvelope)
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	r.metrics.Inc(metrics.Registered)
	if res.SupersededConnID != "" {
		r.metrics.Inc(metrics.Superseded)
		r.log.Debug("identity superseded",
			"identity", identity,
			"conn_id", from.ID(),
			"superseded_conn_id", res.SupersededConnID,
		)
	}
	r.log.Info("identity registered", "identity", identity, "conn_id", from.ID())
	return nil
}

// handleCall forwards the original bytes, not a re-encoding, so fields this
// relay does not model reach the peer intact.
func (r *Router) handleCall(ctx context.Context, from Conn, env Envelope, data []byte) error {
	if env.Receiver == "" {
		r.metrics.Inc(metrics.MalformedEnvelope)
		return fmt.Errorf("%w: call without receiver", ErrMalformedEnvelope)
	}

	outcome := r.Deliver(ctx, env.Receiver, data)
	r.metrics.Inc(metrics.CallForwarded)
	r.log.Debug("call envelope forwarded",
		"conn_id", from.ID(),
		"action", ParseAction(env.Action),
		"receiver", env.Receiver,
		"call_id", env.CallID,
		"outcome", outcome,
	)
	return nil
}
