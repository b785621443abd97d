package api

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/astrohub/astrohub-core/internal/auth"
)

// handleProxy reverse-proxies requests to a known Alpaca server, so that
// browser-class consumers confined to the hub's origin can still talk to
// device servers. The target must be a server the hub already knows about;
// arbitrary hosts are refused.
//
// The route sits outside the authenticated API group because external
// Alpaca tools cannot attach Authorization headers, so auth is a bearer
// token in either the header or the access_token query parameter.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.proxyClaims(r); !ok {
		writeUnauthorized(w, "missing or invalid access token")
		return
	}

	address := chi.URLParam(r, "address")
	port, err := strconv.Atoi(chi.URLParam(r, "port"))
	if err != nil || port < 1 || port > 65535 {
		writeBadRequest(w, "port must be numeric")
		return
	}

	if s.discovery == nil || !s.knownServer(address, port) {
		writeNotFound(w, "unknown server")
		return
	}

	target := &url.URL{
		Scheme: "http",
		Host:   address + ":" + strconv.Itoa(port),
	}
	prefix := "/proxy/" + address + "/" + strconv.Itoa(port)

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, prefix)
			if pr.Out.URL.Path == "" {
				pr.Out.URL.Path = "/"
			}
			pr.Out.Host = target.Host
			// Don't forward hub credentials to the device server.
			pr.Out.Header.Del("Authorization")
			q := pr.Out.URL.Query()
			q.Del("access_token")
			pr.Out.URL.RawQuery = q.Encode()
		},
		ErrorHandler: func(w http.ResponseWriter, _ *http.Request, err error) {
			s.logger.Warn("proxy request failed", "target", target.Host, "error", err)
			writeError(w, http.StatusBadGateway, ErrCodeUpstream, "device server unreachable")
		},
	}

	proxy.ServeHTTP(w, r)
}

// proxyClaims extracts and validates the caller's token from the
// Authorization header or the access_token query parameter.
func (s *Server) proxyClaims(r *http.Request) (*auth.CustomClaims, bool) {
	token := ""
	if header := r.Header.Get("Authorization"); header != "" {
		if t, ok := strings.CutPrefix(header, "Bearer "); ok {
			token = t
		}
	}
	if token == "" {
		token = r.URL.Query().Get("access_token")
	}
	if token == "" {
		return nil, false
	}

	claims, err := auth.ParseToken(token, s.secCfg.JWT.Secret)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// knownServer reports whether address:port matches a current descriptor.
func (s *Server) knownServer(address string, port int) bool {
	for _, desc := range s.discovery.Descriptors() {
		if desc.Address == address && desc.Port == port {
			return true
		}
	}
	return false
}
