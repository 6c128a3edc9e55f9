package sitemap

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// DeriveStaging swaps the host of live for stagingHost. A live URL without a
// scheme gets https; path and query are kept, userinfo and fragment dropped.
// stagingHost may carry a scheme or trailing slash, which are ignored, and may
// be an internationalized name.
func DeriveStaging(live, stagingHost string) (string, error) {
	s := strings.TrimSpace(live)
	if s == "" {
		return "", fmt.Errorf("empty live url")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse live url %q: %w", live, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("live url %q has no host", live)
	}

	host, err := NormalizeHost(stagingHost)
	if err != nil {
		return "", err
	}

	u.Host = host
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

// NormalizeHost reduces a staging host argument to an ASCII host[:port].
func NormalizeHost(raw string) (string, error) {
	h := strings.TrimSpace(raw)
	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	if h == "" {
		return "", fmt.Errorf("empty staging host")
	}

	name, port := h, ""
	if hn, p, err := net.SplitHostPort(h); err == nil {
		name, port = hn, p
	}
	if net.ParseIP(strings.Trim(name, "[]")) != nil {
		return h, nil
	}
	ascii, err := idna.Lookup.ToASCII(strings.ToLower(name))
	if err != nil {
		return "", fmt.Errorf("staging host %q: %w", raw, err)
	}
	if port != "" {
		return net.JoinHostPort(ascii, port), nil
	}
	return ascii, nil
}
