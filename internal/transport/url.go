package transport

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// socketPathSuffix is the fixed transport path appended to the configured base URL.
const socketPathSuffix = "/socket/v1"

// deriveSocketURL computes the dial URL from the configured base URL.
// Scheme normalization: ws(s) is treated as http(s) for origin purposes, then
// mapped back to ws(s) for dialing. The transport path suffix is appended to
// whatever path the base carries.
func deriveSocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrap(err, "parse socket base url")
	}
	if u.Host == "" {
		return "", errors.Errorf("socket base url %q has no host", base)
	}
	switch u.Scheme {
	case "ws", "http":
		u.Scheme = "ws"
	case "wss", "https":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("socket base url %q has unsupported scheme", base)
	}
	u.Path = strings.TrimRight(u.Path, "/") + socketPathSuffix
	return u.String(), nil
}
