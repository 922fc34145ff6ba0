// Package proxy is the reverse-proxy half of the gateway: once the sidecar
// API layer has issued a visa, ordinary requests carrying it are forwarded
// here to the protected destination.
package proxy

import (
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// Destination is a reverse proxy target: the gateway listens on a protected
// public destination but may forward to a different internal one.
type Destination struct {
	proxy *httputil.ReverseProxy
}

// NewDestination builds a reverse proxy forwarding to internalURL. It strips
// headers that could identify or correlate the originating client or leak
// the toll/visa protocol upstream.
func NewDestination(internalURL string) (*Destination, error) {
	target, err := url.Parse(internalURL)
	if err != nil {
		return nil, err
	}

	rp := httputil.NewSingleHostReverseProxy(target)

	base := rp.Director
	rp.Director = func(req *http.Request) {
		base(req)
		req.Header.Del("X-Forwarded-For")
		req.Header.Del("X-Forwarded-Host")
		req.Header.Del("X-Forwarded-Proto")
		req.Header.Del("X-Real-Ip")
		req.Header.Del("Forwarded")
		req.Header.Del("Via")
		// The toll/visa protocol is a gateway concern; the protected
		// destination never needs to see it.
		req.Header.Del("X-Keeper-Token")
		req.Header.Del("Payment-Signature")
		req.Host = target.Host
	}

	rp.ErrorHandler = func(w http.ResponseWriter, _ *http.Request, err error) {
		slog.Error("upstream destination error", "err", err)
		http.Error(w, "destination unavailable", http.StatusBadGateway)
	}

	return &Destination{proxy: rp}, nil
}

// ServeHTTP forwards the request to the protected destination.
func (d *Destination) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	d.proxy.ServeHTTP(w, req)
}

// Router dispatches a request to the Destination registered for its Host,
// matching the gate the sidecar API already cleared it against.
type Router struct {
	byHost map[string]*Destination
}

// NewRouter builds an empty Router.
func NewRouter() *Router {
	return &Router{byHost: make(map[string]*Destination)}
}

// Register adds a proxy destination under host (the public gate
// destination's host:port, matching what clients send as the Host header).
func (r *Router) Register(host string, dest *Destination) {
	r.byHost[host] = dest
}

// ServeHTTP forwards to the Destination matching the request's Host, or
// responds 404 if no gate claims that destination. A Host without a port
// also matches a destination registered under that host with port 80.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	dest, ok := r.byHost[req.Host]
	if !ok {
		if _, _, err := net.SplitHostPort(req.Host); err != nil {
			dest, ok = r.byHost[net.JoinHostPort(req.Host, "80")]
		}
	}
	if !ok {
		http.NotFound(w, req)
		return
	}
	dest.ServeHTTP(w, req)
}
