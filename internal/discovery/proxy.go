package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

// proxyPrefix is the path prefix the API server routes to the reverse
// proxy handler.
const proxyPrefix = "/proxy"

// ProxyRewriter builds same-origin endpoint URLs that route device traffic
// through the hub, for browser-class consumers that cannot reach device
// servers directly. The rewrite is deterministic and reversible: the
// original address and port are recoverable from the rewritten URL alone.
type ProxyRewriter struct {
	// Base is the hub's public origin, like "http://hub.local:8080".
	// Empty means path-only URLs relative to the serving origin.
	Base string
}

// Rewrite returns the proxied endpoint URL for a device server.
func (p ProxyRewriter) Rewrite(address string, port int) string {
	return fmt.Sprintf("%s%s/%s/%d", strings.TrimSuffix(p.Base, "/"), proxyPrefix, address, port)
}

// Resolve recovers the original address and port from a rewritten URL.
// It accepts both absolute URLs and the path-only form.
func (p ProxyRewriter) Resolve(endpoint string) (string, int, error) {
	path := endpoint
	if base := strings.TrimSuffix(p.Base, "/"); base != "" && strings.HasPrefix(path, base) {
		path = strings.TrimPrefix(path, base)
	}
	rest, ok := strings.CutPrefix(path, proxyPrefix+"/")
	if !ok {
		return "", 0, fmt.Errorf("%w: %q is not a proxy endpoint", ErrInvalidAddress, endpoint)
	}

	address, portStr, ok := strings.Cut(strings.Trim(rest, "/"), "/")
	if !ok || address == "" {
		return "", 0, fmt.Errorf("%w: %q is not a proxy endpoint", ErrInvalidAddress, endpoint)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("%w: bad port in %q", ErrInvalidAddress, endpoint)
	}
	return address, port, nil
}
