package server

import (
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// allowedOrigin accepts requests without an Origin header, which is what
// non-browser clients send, and browser requests from loopback pages.
func allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// isJSON reports whether the request declares a JSON body. Browsers can
// only send cross-origin requests without a preflight for form and plain
// text content types.
func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
