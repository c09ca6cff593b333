// Package origin validates browser Origin headers against the relay's
// allow-list. It is shared by the WebSocket upgrade and the HTTP CORS layer.
package origin

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// NormalizeHeader validates a browser Origin header and returns
// scheme://host[:port] plus the host[:port] part. Default ports are dropped.
// The opaque origin "null" is returned as-is with an empty host.
func NormalizeHeader(originHeader string) (normalizedOrigin string, host string, ok bool) {
	trimmed := strings.TrimSpace(originHeader)
	switch trimmed {
	case "":
		return "", "", false
	case "null":
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" || u.ForceQuery {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}
	host, ok = normalizeAuthority(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// IsAllowed reports whether normalizedOrigin may talk to a relay reached at
// requestHost. With a non-empty allow-list, only listed origins (or "*") pass.
// Otherwise the origin must name the same host:port as the request; the
// scheme is ignored because TLS is often terminated in front of the relay.
func IsAllowed(normalizedOrigin, originHost, requestHost string, allowedOrigins []string) bool {
	if len(allowedOrigins) > 0 {
		for _, allowed := range allowedOrigins {
			if allowed == "*" || allowed == normalizedOrigin {
				return true
			}
		}
		return false
	}

	scheme, _, found := strings.Cut(normalizedOrigin, "://")
	if !found || (scheme != "http" && scheme != "https") {
		return false
	}
	reqHost, ok := normalizeAuthority(requestHost, scheme)
	return ok && originHost == reqHost
}

// CheckRequest applies IsAllowed to r. Requests without an Origin header are
// not from a browser and are allowed. The normalized origin is returned so
// callers can echo it in CORS headers.
func CheckRequest(r *http.Request, allowedOrigins []string) (normalizedOrigin string, ok bool) {
	raw := strings.TrimSpace(r.Header.Get("Origin"))
	if raw == "" {
		return "", true
	}
	normalized, host, ok := NormalizeHeader(raw)
	if !ok {
		return "", false
	}
	return normalized, IsAllowed(normalized, host, r.Host, allowedOrigins)
}

// normalizeAuthority lower-cases host[:port], validates the port and drops it
// when it is the scheme's default.
func normalizeAuthority(authority, scheme string) (string, bool) {
	authority = strings.ToLower(strings.TrimSpace(authority))
	if authority == "" {
		return "", false
	}
	bracketed := strings.HasPrefix(authority, "[")
	if !bracketed && strings.Count(authority, ":") > 1 {
		// Unbracketed IPv6 literals are not valid authorities.
		return "", false
	}
	if bracketed && !strings.Contains(authority, "]") {
		return "", false
	}

	u := url.URL{Host: authority}
	hostname, rawPort := u.Hostname(), u.Port()
	if hostname == "" || !validHostname(hostname, bracketed) {
		return "", false
	}
	if strings.HasSuffix(authority, ":") {
		return "", false
	}
	if rest := strings.TrimPrefix(authority, "["+hostname+"]"); bracketed && rest != "" && !strings.HasPrefix(rest, ":") {
		return "", false
	}

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host += ":" + strconv.FormatUint(port, 10)
	}
	return host, true
}

func validHostname(hostname string, bracketed bool) bool {
	for _, c := range hostname {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '.', c == '_':
		case c == ':' && bracketed:
		default:
			return false
		}
	}
	return true
}
