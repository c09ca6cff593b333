package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/samber/lo"
)

const (
	envICEServersJSON = "AERO_ICE_SERVERS_JSON"
	envStunURLs       = "AERO_STUN_URLS"
	envTurnURLs       = "AERO_TURN_URLS"
	envTurnUsername   = "AERO_TURN_USERNAME"
	envTurnCredential = "AERO_TURN_CREDENTIAL"
)

// iceSource is the raw ICE configuration before validation. The JSON form
// wins over the convenience variables when both are set.
type iceSource struct {
	serversJSON    string
	stunURLs       string
	turnURLs       string
	turnUsername   string
	turnCredential string
}

func (s iceSource) parse(turnCredsInjected bool) ([]webrtc.ICEServer, error) {
	if raw := strings.TrimSpace(s.serversJSON); raw != "" {
		servers, err := ParseICEServersJSON(raw, turnCredsInjected)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
		return servers, nil
	}
	return ParseICEServersFromConvenienceEnv(s.stunURLs, s.turnURLs, s.turnUsername, s.turnCredential, turnCredsInjected)
}

type iceServerJSON struct {
	URLs       stringOrStrings `json:"urls"`
	Username   string          `json:"username,omitempty"`
	Credential string          `json:"credential,omitempty"`
}

// stringOrStrings mirrors RTCIceServer.urls, which may be a single URL.
type stringOrStrings []string

func (s *stringOrStrings) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*s = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// ParseICEServersJSON parses a browser-style RTCIceServer list. When
// turnCredsInjected is set, TURN entries may omit credentials because
// /webrtc/ice fills them in per request.
func ParseICEServersJSON(raw string, turnCredsInjected bool) ([]webrtc.ICEServer, error) {
	var entries []iceServerJSON
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}

	out := make([]webrtc.ICEServer, 0, len(entries))
	for i, entry := range entries {
		server := webrtc.ICEServer{
			URLs:     splitList(strings.Join(entry.URLs, ",")),
			Username: strings.TrimSpace(entry.Username),
		}
		if strings.TrimSpace(entry.Credential) != "" {
			server.Credential = entry.Credential
		}
		if err := validateICEServer(server, turnCredsInjected); err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}
		out = append(out, server)
	}
	return out, nil
}

// ParseICEServersFromConvenienceEnv builds at most one STUN and one TURN
// entry from comma-separated URL lists.
func ParseICEServersFromConvenienceEnv(stunURLs, turnURLs, turnUsername, turnCredential string, turnCredsInjected bool) ([]webrtc.ICEServer, error) {
	var servers []webrtc.ICEServer

	if urls := splitList(stunURLs); len(urls) > 0 {
		server := webrtc.ICEServer{URLs: urls}
		if err := validateICEServer(server, turnCredsInjected); err != nil {
			return nil, fmt.Errorf("%s: %w", envStunURLs, err)
		}
		servers = append(servers, server)
	}

	if urls := splitList(turnURLs); len(urls) > 0 {
		turnUsername = strings.TrimSpace(turnUsername)
		turnCredential = strings.TrimSpace(turnCredential)
		server := webrtc.ICEServer{URLs: urls}
		switch {
		case turnUsername != "" && turnCredential != "":
			server.Username = turnUsername
			server.Credential = turnCredential
		case turnCredsInjected && turnUsername == "" && turnCredential == "":
		default:
			return nil, fmt.Errorf("%s/%s: both must be set when %s is set", envTurnUsername, envTurnCredential, envTurnURLs)
		}
		if err := validateICEServer(server, turnCredsInjected); err != nil {
			return nil, fmt.Errorf("%s: %w", envTurnURLs, err)
		}
		servers = append(servers, server)
	}

	return servers, nil
}

func splitList(value string) []string {
	return lo.Compact(lo.Map(strings.Split(value, ","), func(part string, _ int) string {
		return strings.TrimSpace(part)
	}))
}

func validateICEServer(server webrtc.ICEServer, turnCredsInjected bool) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}

	for _, url := range server.URLs {
		if !isAllowedICEScheme(url) {
			return fmt.Errorf("unsupported url scheme: %q", url)
		}
	}
	if !IsTURNServer(server) || turnCredsInjected {
		return nil
	}

	if server.Username == "" {
		return errors.New("turn urls require username")
	}
	if cred, ok := server.Credential.(string); !ok || strings.TrimSpace(cred) == "" {
		return errors.New("turn urls require credential")
	}
	return nil
}

func isAllowedICEScheme(url string) bool {
	scheme, _, ok := strings.Cut(url, ":")
	if !ok {
		return false
	}
	switch strings.ToLower(scheme) {
	case "stun", "stuns", "turn", "turns":
		return true
	default:
		return false
	}
}

// IsTURNServer reports whether any of server's URLs is a turn: or turns: URL.
func IsTURNServer(server webrtc.ICEServer) bool {
	return lo.ContainsBy(server.URLs, func(url string) bool {
		scheme, _, _ := strings.Cut(strings.TrimSpace(url), ":")
		scheme = strings.ToLower(scheme)
		return scheme == "turn" || scheme == "turns"
	})
}
