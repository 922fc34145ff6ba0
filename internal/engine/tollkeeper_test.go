package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/ascendise/tollkeeper-gateway/internal/description"
	"github.com/ascendise/tollkeeper-gateway/internal/signing"
	"github.com/ascendise/tollkeeper-gateway/internal/suspect"
)

type fixedProvider struct{ key []byte }

func (p fixedProvider) ReadSecretKey() []byte { return p.key }

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func newTestTollkeeper(t *testing.T, decl *stubDeclaration) *Tollkeeper {
	t.Helper()
	order := &Order{
		ID:           "bots",
		Descriptions: []description.Description{description.Stub{IsMatch: true}},
		Policy:       Blacklist,
		Declaration:  decl,
	}
	gate, err := NewGate("ext", suspect.NewDestination("example.com", 80, "/"), []*Order{order})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	tk, err := NewTollkeeper([]*Gate{gate}, fixedProvider{key: []byte("verysecretkey")}, fixedClock{at: time.Date(2025, 5, 6, 20, 24, 6, 0, time.UTC)})
	if err != nil {
		t.Fatalf("NewTollkeeper: %v", err)
	}
	return tk
}

func TestNewTollkeeperRejectsNoGates(t *testing.T) {
	_, err := NewTollkeeper(nil, fixedProvider{key: []byte("key")}, fixedClock{})
	if err != ErrNoGates {
		t.Errorf("expected ErrNoGates, got %v", err)
	}
}

func TestCheckAccessDeniedReturnsSignedToll(t *testing.T) {
	tk := newTestTollkeeper(t, &stubDeclaration{})
	s := suspect.Suspect{ClientIP: "1.2.3.4", UserAgent: "Bot", Destination: suspect.NewDestination("example.com", 80, "/hello")}
	err := tk.CheckAccess(s, nil)
	var denied *AccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected AccessDeniedError, got %v", err)
	}
	if _, verifyErr := denied.Toll.Verify(tk.tollKey); verifyErr != nil {
		t.Errorf("toll should verify under the tollkeeper's own key: %v", verifyErr)
	}
}

func TestCheckAccessUnknownDestination(t *testing.T) {
	tk := newTestTollkeeper(t, &stubDeclaration{})
	s := suspect.Suspect{ClientIP: "1.2.3.4", UserAgent: "Bot", Destination: suspect.NewDestination("other.example", 80, "/")}
	err := tk.CheckAccess(s, nil)
	var notFound *DestinationNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected DestinationNotFoundError, got %v", err)
	}
}

func TestPayTollForgeryRejected(t *testing.T) {
	tk := newTestTollkeeper(t, &stubDeclaration{})
	s := suspect.Suspect{ClientIP: "1.2.3.4", UserAgent: "Bot", Destination: suspect.NewDestination("example.com", 80, "/hello")}
	toll := Toll{Recipient: s, OrderID: OrderIdentifier{GateID: "ext", OrderID: "bots"}, Challenge: Challenge{{Key: "stub", Value: "1"}}}
	forged := signing.New[Toll](toll, []byte("garbage"))

	_, err := tk.PayToll(s, SignedPayment{Toll: forged, Value: "irrelevant"})
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestPayTollMismatchedSuspect(t *testing.T) {
	payDecl := &acceptingDeclaration{}
	tk := newTestTollkeeper(t, &stubDeclaration{})
	// Swap in a declaration that always accepts, to isolate the suspect check.
	tk.gates[0].Orders[0].Declaration = payDecl

	bob := suspect.Suspect{ClientIP: "1.2.3.4", UserAgent: "Bob", Destination: suspect.NewDestination("example.com", 80, "/hello")}
	alice := suspect.Suspect{ClientIP: "5.6.7.8", UserAgent: "Alice", Destination: suspect.NewDestination("example.com", 80, "/hello")}

	toll := Toll{Recipient: bob, OrderID: OrderIdentifier{GateID: "ext", OrderID: "bots"}, Challenge: nil}
	signedToll := signing.Sign[Toll](toll, tk.tollKey)

	_, err := tk.PayToll(alice, SignedPayment{Toll: signedToll, Value: "anything"})
	var mismatched *MismatchedSuspectError
	if !errors.As(err, &mismatched) {
		t.Fatalf("expected MismatchedSuspectError, got %v", err)
	}
	if _, newToll := mismatched.NewToll.Deconstruct(); newToll.Recipient != alice {
		t.Errorf("replacement toll recipient = %+v, want %+v", newToll.Recipient, alice)
	}
}

func TestPayTollMissingGate(t *testing.T) {
	tk := newTestTollkeeper(t, &stubDeclaration{})
	s := suspect.Suspect{ClientIP: "1.2.3.4", UserAgent: "Bot", Destination: suspect.NewDestination("example.com", 80, "/hello")}
	toll := Toll{Recipient: s, OrderID: OrderIdentifier{GateID: "nonexistent", OrderID: "bots"}, Challenge: nil}
	signedToll := signing.Sign[Toll](toll, tk.tollKey)

	_, err := tk.PayToll(s, SignedPayment{Toll: signedToll, Value: "x"})
	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	var missingGate *MissingGateError
	if !errors.As(gatewayErr.Err, &missingGate) {
		t.Errorf("expected wrapped MissingGateError, got %v", gatewayErr.Err)
	}
}

// acceptingDeclaration always accepts payment, isolating tests that exercise
// the steps of PayToll before the declaration is consulted.
type acceptingDeclaration struct{}

func (acceptingDeclaration) Declare(s suspect.Suspect, orderID OrderIdentifier) Toll {
	return Toll{Recipient: s, OrderID: orderID}
}

func (acceptingDeclaration) Pay(payment Payment, s suspect.Suspect) (Visa, *DeclarationError) {
	return Visa{OrderID: payment.Toll.OrderID, Suspect: s, Expires: time.Now().Add(time.Hour)}, nil
}
