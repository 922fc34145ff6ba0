package engine

import (
	"errors"
	"fmt"

	"github.com/ascendise/tollkeeper-gateway/internal/signing"
	"github.com/ascendise/tollkeeper-gateway/internal/suspect"
)

// ErrInvalidSignature is the sole terminal case of payment handling that
// never mints a replacement toll: a forged Signed[Toll] never yields a Visa
// and never produces a replacement Toll.
var ErrInvalidSignature = errors.New("tollkeeper: invalid signature")

// DeclarationError is returned by a Declaration's Pay method when a payment
// is rejected. It always carries a freshly minted, unsigned replacement
// toll for the current suspect — the engine never merely says "no".
type DeclarationError struct {
	Payment Payment
	NewToll Toll
}

func (e *DeclarationError) Error() string {
	return "tollkeeper: payment rejected, replacement toll issued"
}

// AccessDeniedError is returned by CheckAccess when the suspect owes a toll.
type AccessDeniedError struct {
	Toll signing.Signed[Toll]
}

func (e *AccessDeniedError) Error() string {
	return "tollkeeper: access denied, toll payment required"
}

// DestinationNotFoundError is returned by CheckAccess when no gate protects
// the suspect's destination.
type DestinationNotFoundError struct {
	Destination suspect.Destination
}

func (e *DestinationNotFoundError) Error() string {
	return fmt.Sprintf("tollkeeper: no gate found for destination %s", e.Destination)
}

// InvalidPaymentError is returned by PayToll when the presented payment
// fails the declaration's challenge check (wrong stamp, expired, replayed).
// NewToll is bound to the current suspect's destination and identity, never
// echoed from the failed request.
type InvalidPaymentError struct {
	Payment Payment
	NewToll signing.Signed[Toll]
}

func (e *InvalidPaymentError) Error() string {
	return "tollkeeper: invalid payment, replacement toll issued"
}

// MismatchedSuspectError is returned by PayToll when the toll being paid was
// issued to a different suspect than the one presenting payment. NewToll is
// bound to the actual accessor.
type MismatchedSuspectError struct {
	Expected suspect.Suspect
	NewToll  signing.Signed[Toll]
}

func (e *MismatchedSuspectError) Error() string {
	return "tollkeeper: toll was issued for a different suspect, replacement toll issued"
}

// MissingGateError is returned by PayToll when the toll's gate no longer
// exists in the running configuration.
type MissingGateError struct {
	GateID string
}

func (e *MissingGateError) Error() string {
	return fmt.Sprintf("tollkeeper: gate %q not found", e.GateID)
}

// MissingOrderError is returned by PayToll when the toll's order no longer
// exists within its gate.
type MissingOrderError struct {
	GateID  string
	OrderID string
}

func (e *MissingOrderError) Error() string {
	return fmt.Sprintf("tollkeeper: order %q not found in gate %q", e.OrderID, e.GateID)
}

// GatewayError wraps a Missing{Gate,Order}Error: configuration changed
// between toll issuance and payment. Not a client-authored condition — the
// caller should retry.
type GatewayError struct {
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("tollkeeper: gateway error: %s", e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
