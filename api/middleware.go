package api

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/ascendise/tollkeeper-gateway/internal/engine"
	"github.com/ascendise/tollkeeper-gateway/internal/signing"
	"github.com/ascendise/tollkeeper-gateway/internal/suspect"
)

// Gatekeeper is the sidecar middleware: wraps next, answering every request
// with a toll challenge until the suspect presents a valid visa, using the
// familiar 402-style challenge/pay pattern for HTTP payment gates.
type Gatekeeper struct {
	tollkeeper   *engine.Tollkeeper
	baseURL      string
	realIPHeader string
	next         http.Handler
}

// NewGatekeeper builds a Gatekeeper in front of next.
func NewGatekeeper(tollkeeper *engine.Tollkeeper, baseURL, realIPHeader string, next http.Handler) *Gatekeeper {
	return &Gatekeeper{tollkeeper: tollkeeper, baseURL: baseURL, realIPHeader: realIPHeader, next: next}
}

func (g *Gatekeeper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s := g.buildSuspect(r)

	var visa *signing.Signed[engine.Visa]
	if token := r.Header.Get("X-Keeper-Token"); token != "" {
		parsed, err := parseVisaHeaderValue(token)
		if err == nil {
			visa = &parsed
		}
	}

	err := g.tollkeeper.CheckAccess(s, visa)
	if err == nil {
		g.next.ServeHTTP(w, r)
		return
	}

	var denied *engine.AccessDeniedError
	var notFound *engine.DestinationNotFoundError
	switch {
	case errors.As(err, &denied):
		slog.Info("toll issued", "client_ip", s.ClientIP, "destination", s.Destination.String())
		writeCORSHeaders(w, "GET, POST")
		w.Header().Set("Content-Type", "application/hal+json")
		w.WriteHeader(http.StatusPaymentRequired)
		writeJSON(w, newTollEnvelope(denied.Toll, g.baseURL))
	case errors.As(err, &notFound):
		slog.Debug("no gate for destination", "destination", s.Destination.String())
		http.NotFound(w, r)
	default:
		slog.Error("access check failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// buildSuspect extracts a Suspect from an inbound request, honoring
// RealIPHeader when configured.
func (g *Gatekeeper) buildSuspect(r *http.Request) suspect.Suspect {
	clientIP := g.clientIP(r)
	return suspect.Suspect{
		ClientIP:    clientIP,
		UserAgent:   r.UserAgent(),
		Destination: destinationFromRequest(r),
	}
}

func (g *Gatekeeper) clientIP(r *http.Request) string {
	if g.realIPHeader != "" {
		if v := r.Header.Get(g.realIPHeader); v != "" {
			first, _, _ := strings.Cut(v, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func destinationFromRequest(r *http.Request) suspect.Destination {
	host := r.Host
	port := uint16(80)
	if h, p, err := net.SplitHostPort(host); err == nil {
		host = h
		if n, convErr := strconv.ParseUint(p, 10, 16); convErr == nil {
			port = uint16(n)
		}
	}
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	return suspect.NewDestination(host, port, path)
}
