package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func fixedGenerator(t *testing.T, ttl int64, now time.Time) *Generator {
	t.Helper()
	g, err := NewGenerator(Config{
		SharedSecret:   "shared-secret",
		TTLSeconds:     ttl,
		UsernamePrefix: "aero",
		Now:            func() time.Time { return now },
		NewTag:         func() string { return "random-tag" },
	})
	require.NoError(t, err)
	return g
}

func TestGenerate_DeterministicWithFixedTime(t *testing.T) {
	g := fixedGenerator(t, 3600, time.Unix(1_700_000_000, 0).UTC())

	creds := g.Generate("jeff")

	require.Equal(t, int64(1_700_003_600), creds.ExpiresAt.Unix())
	wantUsername := "1700003600:aero:jeff"
	require.Equal(t, wantUsername, creds.Username)
	require.Equal(t, expectedCredential(t, []byte("shared-secret"), wantUsername), creds.Credential)
}

func TestGenerate_UnusableIdentityGetsRandomTag(t *testing.T) {
	g := fixedGenerator(t, 10, time.Unix(42, 0).UTC())

	for _, identity := range []string{"", "a:b", "has space", strings.Repeat("x", maxTagLen+1)} {
		creds := g.Generate(identity)
		require.True(t, strings.HasSuffix(creds.Username, ":aero:random-tag"), "identity %q: Username=%q", identity, creds.Username)
	}
}

func TestGenerate_CredentialBase64AndHMACSHA1(t *testing.T) {
	g := fixedGenerator(t, 1, time.Unix(0, 0).UTC())

	creds := g.Generate("sid")

	decoded, err := base64.StdEncoding.DecodeString(creds.Credential)
	require.NoError(t, err)
	require.Len(t, decoded, sha1.Size)
	mac := hmac.New(sha1.New, []byte("shared-secret"))
	_, _ = mac.Write([]byte(creds.Username))
	require.True(t, hmac.Equal(decoded, mac.Sum(nil)), "decoded HMAC mismatch")
}

func TestNewGenerator_Validation(t *testing.T) {
	tests := []Config{
		{TTLSeconds: 1, UsernamePrefix: "aero"},
		{SharedSecret: "s", UsernamePrefix: "aero"},
		{SharedSecret: "s", TTLSeconds: 1},
		{SharedSecret: "s", TTLSeconds: 1, UsernamePrefix: "a:b"},
	}
	for i, cfg := range tests {
		_, err := NewGenerator(cfg)
		require.Error(t, err, "case %d", i)
	}
}

func TestInject_OnlyTURNEntries(t *testing.T) {
	g := fixedGenerator(t, 60, time.Unix(0, 0).UTC())
	servers := []webrtc.ICEServer{
		{URLs: []string{"stun:stun.example.com"}},
		{URLs: []string{"turn:turn.example.com"}},
	}
	creds := g.Generate("u")
	isTURN := func(s webrtc.ICEServer) bool { return strings.HasPrefix(s.URLs[0], "turn:") }

	out := g.Inject(servers, creds, isTURN)
	require.Empty(t, out[0].Username, "stun entry got credentials")
	require.Nil(t, out[0].Credential, "stun entry got credentials")
	require.Equal(t, creds.Username, out[1].Username)
	require.Equal(t, creds.Credential, out[1].Credential)
	require.Empty(t, servers[1].Username, "input slice was mutated")
}

func expectedCredential(t *testing.T, sharedSecret []byte, username string) string {
	t.Helper()
	mac := hmac.New(sha1.New, sharedSecret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
