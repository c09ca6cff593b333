package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/config"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// APIKeyVerifier compares digests so the comparison time does not depend on
// the configured key's length.
type APIKeyVerifier struct {
	digest [sha256.Size]byte
	set    bool
}

func NewAPIKeyVerifier(key string) APIKeyVerifier {
	if key == "" {
		return APIKeyVerifier{}
	}
	return APIKeyVerifier{digest: sha256.Sum256([]byte(key)), set: true}
}

func (v APIKeyVerifier) Verify(apiKey string) error {
	if apiKey == "" || !v.set {
		return ErrInvalidCredentials
	}
	got := sha256.Sum256([]byte(apiKey))
	if subtle.ConstantTimeCompare(got[:], v.digest[:]) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// apiKeyResolver gates the identity header behind a shared key; the key says
// nothing about who the caller is.
type apiKeyResolver struct {
	verifier APIKeyVerifier
	identity headerResolver
}

func (a apiKeyResolver) Resolve(r *http.Request) (string, error) {
	cred, err := CredentialFromRequest(config.AuthModeAPIKey, r)
	if err != nil {
		return "", err
	}
	if err := a.verifier.Verify(cred); err != nil {
		return "", err
	}
	return a.identity.Resolve(r)
}
