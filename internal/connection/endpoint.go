package connection

import (
	"fmt"
	"net/url"
	"strings"
)

// restSuffix is the REST API path segment stripped from the backend URL.
const restSuffix = "/api"

// Endpoint derives the push endpoint URL from the backend REST base URL.
//
//	https://erp.example.com/api   + /ws/sync → wss://erp.example.com/ws/sync
//	http://localhost:8000/api/    + /ws/sync → ws://localhost:8000/ws/sync
//	https://example.com/erp/api   + /ws/sync → wss://example.com/erp/ws/sync
func Endpoint(baseURL, pushPath string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBackendURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidBackendURL, baseURL)
	}

	var scheme string
	switch strings.ToLower(u.Scheme) {
	case "https":
		scheme = "wss"
	case "http":
		scheme = "ws"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBackendURL, u.Scheme)
	}

	prefix := strings.TrimRight(u.Path, "/")
	prefix = strings.TrimSuffix(prefix, restSuffix)

	if pushPath == "" {
		pushPath = DefaultPushPath
	}
	if !strings.HasPrefix(pushPath, "/") {
		pushPath = "/" + pushPath
	}

	out := url.URL{
		Scheme: scheme,
		Host:   u.Host,
		Path:   prefix + pushPath,
	}
	return out.String(), nil
}
