package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/config"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrMissingIdentity    = errors.New("missing identity")
)

// Resolver maps an inbound request (WebSocket upgrade or HTTP API call) to
// the identity it acts as.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// IdentityQueryParam is accepted alongside the identity header because
// browsers cannot set headers on a WebSocket upgrade.
const IdentityQueryParam = "user"

func NewResolver(cfg config.Config) (Resolver, error) {
	header := cfg.IdentityHeader
	if header == "" {
		header = config.DefaultIdentityHeader
	}
	switch cfg.AuthMode {
	case config.AuthModeNone, "":
		return headerResolver{header: header}, nil
	case config.AuthModeAPIKey:
		return apiKeyResolver{
			verifier: NewAPIKeyVerifier(cfg.APIKey),
			identity: headerResolver{header: header},
		}, nil
	case config.AuthModeJWT:
		return jwtResolver{verifier: NewJWTVerifier(cfg.JWTSecret)}, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
	}
}

// IsAuthError reports whether err should be answered with 401.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingCredentials) || errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrMissingIdentity)
}

// CredentialFromRequest prefers headers over query parameters.
func CredentialFromRequest(mode config.AuthMode, r *http.Request) (string, error) {
	switch mode {
	case config.AuthModeAPIKey:
		if apiKey := strings.TrimSpace(r.Header.Get("X-API-Key")); apiKey != "" {
			return apiKey, nil
		}
	case config.AuthModeJWT:
		if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
			return token, nil
		}
	}
	return CredentialFromQuery(mode, r.URL.Query())
}

func CredentialFromQuery(mode config.AuthMode, q url.Values) (string, error) {
	switch mode {
	case config.AuthModeNone:
		return "", nil
	case config.AuthModeAPIKey:
		if apiKey := q.Get("apiKey"); apiKey != "" {
			return apiKey, nil
		}
		return "", ErrMissingCredentials
	case config.AuthModeJWT:
		if token := q.Get("token"); token != "" {
			return token, nil
		}
		return "", ErrMissingCredentials
	default:
		return "", fmt.Errorf("unsupported auth mode %q", mode)
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type headerResolver struct {
	header string
}

func (h headerResolver) Resolve(r *http.Request) (string, error) {
	if id := strings.TrimSpace(r.Header.Get(h.header)); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(r.URL.Query().Get(IdentityQueryParam)); id != "" {
		return id, nil
	}
	return "", ErrMissingIdentity
}

type jwtResolver struct {
	verifier JWTVerifier
}

func (j jwtResolver) Resolve(r *http.Request) (string, error) {
	token, err := CredentialFromRequest(config.AuthModeJWT, r)
	if err != nil {
		return "", err
	}
	return j.verifier.Subject(token)
}
