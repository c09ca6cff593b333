package callcontrol

import (
	"net/http"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/relay"
)

type ringRequest struct {
	Receiver string `query:"receiver" validate:"required,max=256"`
}

type answerRequest struct {
	CallID string `query:"callId" validate:"required,max=128"`
	Caller string `query:"caller" validate:"required,max=256"`
}

type hangupRequest struct {
	CallID string `query:"callId" validate:"required,max=128"`
	Peer   string `query:"peer" validate:"required,max=256"`
}

// Response is the body of every call-control endpoint.
type Response struct {
	CallID  relay.CallID  `json:"callId,omitempty"`
	Outcome relay.Outcome `json:"outcome"`
	Code    string        `json:"code,omitempty"`
}

type Handler struct {
	gw    *Gateway
	guard httpserver.Guard
}

func NewHandler(gw *Gateway, guard httpserver.Guard) *Handler {
	return &Handler{gw: gw, guard: guard}
}

func (h *Handler) Register(reg httpserver.Registrar) {
	reg.Handle("POST /call/ring", h.guard.Wrap(h.ring))
	reg.Handle("POST /call/answer", h.guard.Wrap(h.answer))
	reg.Handle("POST /call/hangup", h.guard.Wrap(h.hangup))
}

func (h *Handler) ring(w http.ResponseWriter, r *http.Request, identity string) {
	q := r.URL.Query()
	req := ringRequest{Receiver: q.Get("receiver")}
	if err := httpserver.Validate(req); err != nil {
		httpserver.WriteBadRequest(w, err)
		return
	}
	callID, outcome := h.gw.Ring(r.Context(), identity, req.Receiver)
	writeOutcome(w, callID, outcome)
}

func (h *Handler) answer(w http.ResponseWriter, r *http.Request, identity string) {
	q := r.URL.Query()
	req := answerRequest{CallID: q.Get("callId"), Caller: q.Get("caller")}
	if err := httpserver.Validate(req); err != nil {
		httpserver.WriteBadRequest(w, err)
		return
	}
	callID := relay.CallID(req.CallID)
	writeOutcome(w, callID, h.gw.Answer(r.Context(), callID, req.Caller, identity))
}

func (h *Handler) hangup(w http.ResponseWriter, r *http.Request, _ string) {
	q := r.URL.Query()
	req := hangupRequest{CallID: q.Get("callId"), Peer: q.Get("peer")}
	if err := httpserver.Validate(req); err != nil {
		httpserver.WriteBadRequest(w, err)
		return
	}
	callID := relay.CallID(req.CallID)
	writeOutcome(w, callID, h.gw.Hangup(r.Context(), callID, req.Peer))
}

func writeOutcome(w http.ResponseWriter, callID relay.CallID, outcome relay.Outcome) {
	resp := Response{CallID: callID, Outcome: outcome}
	status := http.StatusOK
	switch outcome {
	case relay.TargetOffline:
		status = http.StatusNotFound
		resp.Code = "peer_unreachable"
	case relay.SendFailed:
		status = http.StatusBadGateway
		resp.Code = "peer_unreachable"
	}
	httpserver.WriteJSON(w, status, resp)
}
