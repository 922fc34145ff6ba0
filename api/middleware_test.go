package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ascendise/tollkeeper-gateway/internal/clock"
	"github.com/ascendise/tollkeeper-gateway/internal/description"
	"github.com/ascendise/tollkeeper-gateway/internal/engine"
	"github.com/ascendise/tollkeeper-gateway/internal/hashcash"
	"github.com/ascendise/tollkeeper-gateway/internal/signing"
	"github.com/ascendise/tollkeeper-gateway/internal/suspect"
)

func newTestTollkeeper(t *testing.T) *engine.Tollkeeper {
	t.Helper()
	order := &engine.Order{
		ID:           "bots",
		Descriptions: []description.Description{description.Stub{IsMatch: true}},
		Policy:       engine.Blacklist,
		Declaration:  hashcash.New(2, time.Hour, clock.System{}, 0),
	}
	gate, err := engine.NewGate("ext", suspect.NewDestination("example.com", 80, "/"), []*engine.Order{order})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	provider := signing.NewInMemoryProvider([]byte("verysecretkey1234"))
	tk, err := engine.NewTollkeeper([]*engine.Gate{gate}, provider, clock.System{})
	if err != nil {
		t.Fatalf("NewTollkeeper: %v", err)
	}
	return tk
}

func TestGatekeeperRespondsWithToll(t *testing.T) {
	tk := newTestTollkeeper(t)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("inner handler should not be reached when a toll is owed")
	})
	gk := NewGatekeeper(tk, "http://localhost:8080", "", inner)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/hello", nil)
	req.Host = "example.com"
	req.RemoteAddr = "1.2.3.4:5555"
	rec := httptest.NewRecorder()
	gk.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/hal+json" {
		t.Errorf("Content-Type = %q, want application/hal+json", ct)
	}
}

func TestGatekeeperPassesThroughWithValidVisa(t *testing.T) {
	tk := newTestTollkeeper(t)
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	gk := NewGatekeeper(tk, "http://localhost:8080", "", inner)

	s := suspect.Suspect{ClientIP: "1.2.3.4", UserAgent: "", Destination: suspect.NewDestination("example.com", 80, "/hello")}
	visa := engine.Visa{
		OrderID: engine.OrderIdentifier{GateID: "ext", OrderID: "bots"},
		Suspect: s,
		Expires: time.Now().Add(time.Hour),
	}
	signed := signing.Sign[engine.Visa](visa, visaKeyForTest(t))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/hello", nil)
	req.Host = "example.com"
	req.RemoteAddr = "1.2.3.4:5555"
	req.Header.Set("X-Keeper-Token", visaHeaderValue(signed))
	rec := httptest.NewRecorder()
	gk.ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected inner handler to be called with a valid visa")
	}
}

func TestGatekeeperUnknownDestination(t *testing.T) {
	tk := newTestTollkeeper(t)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	gk := NewGatekeeper(tk, "http://localhost:8080", "", inner)

	req := httptest.NewRequest(http.MethodGet, "http://other.example/hello", nil)
	req.Host = "other.example"
	req.RemoteAddr = "1.2.3.4:5555"
	rec := httptest.NewRecorder()
	gk.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown destination, got %d", rec.Code)
	}
}

func TestGatekeeperRealIPHeader(t *testing.T) {
	tk := newTestTollkeeper(t)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	gk := NewGatekeeper(tk, "http://localhost:8080", "X-Forwarded-For", inner)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/hello", nil)
	req.Host = "example.com"
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
	got := gk.clientIP(req)
	if got != "9.9.9.9" {
		t.Errorf("clientIP = %q, want 9.9.9.9 (from X-Forwarded-For)", got)
	}
}

// visaKeyForTest repeats the tollkeeper's deterministic HKDF derivation for
// the secret newTestTollkeeper configures, yielding the same visa-signing
// key without reaching into unexported state.
func visaKeyForTest(t *testing.T) []byte {
	t.Helper()
	key, err := signing.DeriveKey([]byte("verysecretkey1234"), []byte("tollkeeper.visa.v1"))
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	return key
}
