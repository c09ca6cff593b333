// Package turnrest mints coturn-compatible ephemeral TURN credentials
// (draft-uberti-behave-turn-rest):
//
//	username   = <unix_expiry>:<prefix>:<tag>
//	credential = base64(hmac_sha1(shared_secret, username))
//
// The tag is the caller's identity when it is usable, otherwise a random
// UUID, so TURN allocations can be traced back to a signaling user.
package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

const maxTagLen = 64

type Config struct {
	SharedSecret   string
	TTLSeconds     int64
	UsernamePrefix string
	Now            func() time.Time
	NewTag         func() string
}

type Generator struct {
	sharedSecret   []byte
	ttl            time.Duration
	usernamePrefix string
	now            func() time.Time
	newTag         func() string
}

type Credentials struct {
	Username   string
	Credential string
	ExpiresAt  time.Time
}

func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.SharedSecret == "" {
		return nil, errors.New("shared secret is required")
	}
	if cfg.TTLSeconds <= 0 {
		return nil, errors.New("TTLSeconds must be > 0")
	}
	if cfg.UsernamePrefix == "" {
		return nil, errors.New("UsernamePrefix is required")
	}
	if strings.Contains(cfg.UsernamePrefix, ":") {
		return nil, errors.New("UsernamePrefix must not contain ':'")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewTag == nil {
		cfg.NewTag = uuid.NewString
	}
	return &Generator{
		sharedSecret:   []byte(cfg.SharedSecret),
		ttl:            time.Duration(cfg.TTLSeconds) * time.Second,
		usernamePrefix: cfg.UsernamePrefix,
		now:            cfg.Now,
		newTag:         cfg.NewTag,
	}, nil
}

// TTL is how long minted credentials stay valid.
func (g *Generator) TTL() time.Duration { return g.ttl }

// Generate mints credentials tagged with identity. Identities that cannot be
// embedded in a TURN username fall back to a random tag.
func (g *Generator) Generate(identity string) Credentials {
	tag := identity
	if !validTag(tag) {
		tag = g.newTag()
	}
	expiresAt := g.now().UTC().Add(g.ttl).Truncate(time.Second)
	username := fmt.Sprintf("%d:%s:%s", expiresAt.Unix(), g.usernamePrefix, tag)
	return Credentials{
		Username:   username,
		Credential: sign(g.sharedSecret, username),
		ExpiresAt:  expiresAt,
	}
}

// Inject returns a copy of servers with creds set on every TURN entry.
func (g *Generator) Inject(servers []webrtc.ICEServer, creds Credentials, isTURN func(webrtc.ICEServer) bool) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, len(servers))
	for i, server := range servers {
		out[i] = server
		if isTURN(server) {
			out[i].Username = creds.Username
			out[i].Credential = creds.Credential
		}
	}
	return out
}

func validTag(tag string) bool {
	if tag == "" || len(tag) > maxTagLen {
		return false
	}
	for i := 0; i < len(tag); i++ {
		c := tag[i]
		if c <= ' ' || c >= 0x7f || c == ':' {
			return false
		}
	}
	return true
}

func sign(sharedSecret []byte, username string) string {
	mac := hmac.New(sha1.New, sharedSecret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
