package signaling

import (
	"net/http"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/config"
)

// Authorizer decides whether a WebSocket upgrade may proceed. The returned
// identity binds the socket: REGISTER may only claim that identity. An empty
// identity leaves the socket free to register under any name.
type Authorizer interface {
	Authorize(r *http.Request) (identity string, err error)
}

type AllowAllAuthorizer struct{}

func (AllowAllAuthorizer) Authorize(*http.Request) (string, error) {
	return "", nil
}

// AuthAuthorizer enforces AUTH_MODE=api_key|jwt on the upgrade request.
// Browsers cannot set headers on a WebSocket upgrade, so the resolver's query
// parameter fallbacks (apiKey, token, user) are what they normally use.
type AuthAuthorizer struct {
	resolver auth.Resolver
}

func (a AuthAuthorizer) Authorize(r *http.Request) (string, error) {
	return a.resolver.Resolve(r)
}

// NewAuthorizer returns AllowAllAuthorizer for AUTH_MODE=none. In that mode
// the identity header is only a hint and sockets keep registering by username.
func NewAuthorizer(cfg config.Config) (Authorizer, error) {
	if cfg.AuthMode == config.AuthModeNone || cfg.AuthMode == "" {
		return AllowAllAuthorizer{}, nil
	}
	resolver, err := auth.NewResolver(cfg)
	if err != nil {
		return nil, err
	}
	return AuthAuthorizer{resolver: resolver}, nil
}
