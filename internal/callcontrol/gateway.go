// Package callcontrol issues the RING, ANSWERED and HANGUP notifications that
// set up and tear down a call. It keeps no call state: every operation builds
// one envelope and hands it to the relay's delivery primitive.
package callcontrol

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/relay"
)

type GatewayConfig struct {
	Deliverer relay.Deliverer
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	// NewCallID defaults to random UUIDs.
	NewCallID func() string
}

type Gateway struct {
	deliverer relay.Deliverer
	log       *slog.Logger
	metrics   *metrics.Metrics
	newCallID func() string
}

func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewCallID == nil {
		cfg.NewCallID = uuid.NewString
	}
	return &Gateway{
		deliverer: cfg.Deliverer,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		newCallID: cfg.NewCallID,
	}
}

// Ring mints a call id and notifies receiver that initiator is calling.
func (g *Gateway) Ring(ctx context.Context, initiator, receiver string) (relay.CallID, relay.Outcome) {
	callID := relay.CallID(g.newCallID())
	env := relay.NewCallEnvelope(relay.ActionRing, callID)
	env.Sender = initiator
	env.Receiver = receiver

	outcome := g.deliverer.DeliverEnvelope(ctx, receiver, env)
	g.metrics.Inc(metrics.CallRing)
	g.log.Info("call ring", "call_id", callID, "initiator", initiator, "receiver", receiver, "outcome", outcome)
	return callID, outcome
}

// Answer tells caller that responder accepted callID. callID is not checked
// against issued rings.
func (g *Gateway) Answer(ctx context.Context, callID relay.CallID, caller, responder string) relay.Outcome {
	env := relay.NewCallEnvelope(relay.ActionAnswered, callID)
	env.Responder = responder

	outcome := g.deliverer.DeliverEnvelope(ctx, caller, env)
	g.metrics.Inc(metrics.CallAnswer)
	g.log.Info("call answered", "call_id", callID, "caller", caller, "responder", responder, "outcome", outcome)
	return outcome
}

// Hangup tells peer that callID ended. Registrations are untouched.
func (g *Gateway) Hangup(ctx context.Context, callID relay.CallID, peer string) relay.Outcome {
	outcome := g.deliverer.DeliverEnvelope(ctx, peer, relay.NewCallEnvelope(relay.ActionHangup, callID))
	g.metrics.Inc(metrics.CallHangup)
	g.log.Info("call hangup", "call_id", callID, "peer", peer, "outcome", outcome)
	return outcome
}
