package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed set of envelope types the router understands. Anything
// else parses as KindUnknown and is ignored.
type Kind int

const (
	KindUnknown Kind = iota
	KindRegister
	KindCall
	KindTranscript
)

func ParseKind(raw string) Kind {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "REGISTER":
		return KindRegister
	case "CALL":
		return KindCall
	case "TRANSCRIPT":
		return KindTranscript
	default:
		return KindUnknown
	}
}

func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "REGISTER"
	case KindCall:
		return "CALL"
	case KindTranscript:
		return "TRANSCRIPT"
	default:
		return "UNKNOWN"
	}
}

// Action qualifies a CALL envelope.
type Action string

const (
	ActionOffer        Action = "OFFER"
	ActionAnswer       Action = "ANSWER"
	ActionICECandidate Action = "ICE_CANDIDATE"
	ActionRing         Action = "RING"
	ActionAnswered     Action = "ANSWERED"
	ActionHangup       Action = "HANGUP"
)

// ParseAction upper-cases raw. Unrecognised actions are returned as-is; the
// router never interprets them.
func ParseAction(raw string) Action {
	return Action(strings.ToUpper(strings.TrimSpace(raw)))
}

// SenderAI is the sender stamped on transcript envelopes.
const SenderAI = "AI"

// CallID is an opaque call correlation token. Older clients send numeric
// ids, so both JSON strings and numbers are accepted; it is always emitted as
// a string.
type CallID string

func (c *CallID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*c = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*c = CallID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("callId must be a string or a number")
	}
	*c = CallID(n.String())
	return nil
}

// Envelope is the unit of routed data.
type Envelope struct {
	Type      string          `json:"type"`
	Action    string          `json:"action,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	Receiver  string          `json:"receiver,omitempty"`
	CallID    CallID          `json:"callId,omitempty"`
	Responder string          `json:"responder,omitempty"`
	Username  string          `json:"username,omitempty"`
	Text      string          `json:"text,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func (e Envelope) Kind() Kind { return ParseKind(e.Type) }

// RegisterIdentity is the identity a REGISTER envelope claims: username, or
// sender for clients that only set that.
func (e Envelope) RegisterIdentity() string {
	if e.Username != "" {
		return e.Username
	}
	return e.Sender
}

func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return env, nil
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// NewCallEnvelope builds a CALL envelope with the given action.
func NewCallEnvelope(action Action, callID CallID) Envelope {
	return Envelope{Type: KindCall.String(), Action: string(action), CallID: callID}
}

// NewTranscriptEnvelope builds the envelope pushed to a user when the
// transcription pipeline produced text for them.
func NewTranscriptEnvelope(text string) Envelope {
	return Envelope{Type: KindTranscript.String(), Text: text, Sender: SenderAI}
}
