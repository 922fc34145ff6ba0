package engine

import (
	"errors"

	"github.com/ascendise/tollkeeper-gateway/internal/clock"
	"github.com/ascendise/tollkeeper-gateway/internal/signing"
	"github.com/ascendise/tollkeeper-gateway/internal/suspect"
)

// ErrNoGates is returned by NewTollkeeper when constructed with no gates —
// a Tollkeeper with nothing to protect.
var ErrNoGates = errors.New("tollkeeper: no gates configured")

// tollKeyInfo and visaKeyInfo are the HKDF domain-separation labels used to
// derive independent sub-keys for Toll- and Visa-signing from one
// operator-configured secret (see DESIGN.md, internal/signing package).
var (
	tollKeyInfo = []byte("tollkeeper.toll.v1")
	visaKeyInfo = []byte("tollkeeper.visa.v1")
)

// SignedPayment is the wire-level payment: a signed toll plus the client's
// declaration-specific answer value.
type SignedPayment struct {
	Toll  signing.Signed[Toll]
	Value string
}

// Tollkeeper is the top-level facade: it finds the matching gate, drives
// CheckAccess and PayToll, and owns all envelope signing.
type Tollkeeper struct {
	gates   []*Gate
	keys    signing.SecretKeyProvider
	clock   clock.Clock
	tollKey []byte
	visaKey []byte
}

// NewTollkeeper builds a Tollkeeper over gates, deriving its Toll/Visa
// signing sub-keys from keys via HKDF. Returns ErrNoGates if gates is empty.
func NewTollkeeper(gates []*Gate, keys signing.SecretKeyProvider, clk clock.Clock) (*Tollkeeper, error) {
	if len(gates) == 0 {
		return nil, ErrNoGates
	}
	tk := &Tollkeeper{gates: gates, keys: keys, clock: clk}
	if err := tk.deriveKeys(); err != nil {
		return nil, err
	}
	return tk, nil
}

func (t *Tollkeeper) deriveKeys() error {
	secret := t.keys.ReadSecretKey()
	tollKey, err := signing.DeriveKey(secret, tollKeyInfo)
	if err != nil {
		return err
	}
	visaKey, err := signing.DeriveKey(secret, visaKeyInfo)
	if err != nil {
		return err
	}
	t.tollKey = tollKey
	t.visaKey = visaKey
	return nil
}

func (t *Tollkeeper) findGate(destination suspect.Destination) *Gate {
	for _, g := range t.gates {
		if g.Destination.Contains(destination) {
			return g
		}
	}
	return nil
}

func (t *Tollkeeper) findGateByID(gateID string) *Gate {
	for _, g := range t.gates {
		if g.ID == gateID {
			return g
		}
	}
	return nil
}

// CheckAccess finds the gate protecting suspect's destination and passes the
// suspect (and any presented visa) through its orders. Returns nil on
// allow, *AccessDeniedError carrying a freshly signed toll on deny, or
// *DestinationNotFoundError when no gate matches.
func (t *Tollkeeper) CheckAccess(s suspect.Suspect, visa *signing.Signed[Visa]) error {
	gate := t.findGate(s.Destination)
	if gate == nil {
		return &DestinationNotFoundError{Destination: s.Destination}
	}
	now := t.clock.Now()
	toll := gate.Pass(now, s, visa, t.visaKey)
	if toll == nil {
		return nil
	}
	signed := signing.Sign[Toll](*toll, t.tollKey)
	return &AccessDeniedError{Toll: signed}
}

// PayToll verifies a SignedPayment's outer signature, locates the gate and
// order the toll names, checks the presenting suspect matches the toll's
// recipient, and delegates to the order's declaration. It follows the
// payment state machine:
//
//	Received --(outer verify ok)--> Routed --(gate ok)--> Located
//	  --(order ok)--> Owned --(suspect ok)--> Charged
//	  --(declaration ok)--> Issued(Signed<Visa>)
func (t *Tollkeeper) PayToll(s suspect.Suspect, payment SignedPayment) (signing.Signed[Visa], error) {
	var zero signing.Signed[Visa]

	toll, err := payment.Toll.Verify(t.tollKey)
	if err != nil {
		// Rule 1: never mint a replacement toll from unverified input.
		return zero, ErrInvalidSignature
	}

	reconstructed := Payment{Toll: toll, Value: payment.Value}

	gate := t.findGateByID(toll.OrderID.GateID)
	if gate == nil {
		return zero, &GatewayError{Err: &MissingGateError{GateID: toll.OrderID.GateID}}
	}
	var order *Order
	for _, o := range gate.Orders {
		if o.ID == toll.OrderID.OrderID {
			order = o
			break
		}
	}
	if order == nil {
		return zero, &GatewayError{Err: &MissingOrderError{GateID: toll.OrderID.GateID, OrderID: toll.OrderID.OrderID}}
	}

	if !s.Equal(toll.Recipient) {
		newToll := order.Declaration.Declare(s, toll.OrderID)
		signedNewToll := signing.Sign[Toll](newToll, t.tollKey)
		return zero, &MismatchedSuspectError{Expected: toll.Recipient, NewToll: signedNewToll}
	}

	visa, payErr := order.Declaration.Pay(reconstructed, s)
	if payErr != nil {
		signedNewToll := signing.Sign[Toll](payErr.NewToll, t.tollKey)
		return zero, &InvalidPaymentError{Payment: payErr.Payment, NewToll: signedNewToll}
	}

	return signing.Sign[Visa](visa, t.visaKey), nil
}
