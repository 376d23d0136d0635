// Package origin validates browser Origin headers for the websocket upgrade.
package origin

import (
	"net/url"
	"strconv"
	"strings"
)

// Normalize validates an Origin header and returns it in canonical
// scheme://host[:port] form. Default ports are stripped. The special value
// "null" (sandboxed documents, file://) is returned as-is.
func Normalize(header string) (string, bool) {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return "", false
	}
	if trimmed == "null" {
		return "null", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", false
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	if p := u.Port(); p != "" {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		if !((scheme == "http" && n == 80) || (scheme == "https" && n == 443)) {
			host += ":" + p
		}
	}

	return scheme + "://" + host, true
}

// Allowed reports whether a normalized origin may open a connection.
//
// With a non-empty allowlist, each entry must be "*" or a normalized origin.
// With an empty allowlist the policy is same-host: the origin's host[:port]
// must match the request Host header. Scheme is deliberately not compared
// because a TLS-terminating proxy may downgrade the request to plain HTTP.
func Allowed(normalizedOrigin, requestHost string, allowlist []string) bool {
	if len(allowlist) > 0 {
		for _, a := range allowlist {
			if a == "*" || a == normalizedOrigin {
				return true
			}
		}
		return false
	}

	var scheme, originHost string
	switch {
	case strings.HasPrefix(normalizedOrigin, "http://"):
		scheme, originHost = "http", normalizedOrigin[len("http://"):]
	case strings.HasPrefix(normalizedOrigin, "https://"):
		scheme, originHost = "https", normalizedOrigin[len("https://"):]
	default:
		// "null" never matches a host-based request.
		return false
	}

	reqURL, err := url.Parse(scheme + "://" + strings.ToLower(strings.TrimSpace(requestHost)))
	if err != nil || reqURL.Hostname() == "" {
		return false
	}
	host := reqURL.Hostname()
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if p := reqURL.Port(); p != "" {
		if !((scheme == "http" && p == "80") || (scheme == "https" && p == "443")) {
			host += ":" + p
		}
	}
	return originHost == host
}
