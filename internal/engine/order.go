package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/ascendise/tollkeeper-gateway/internal/description"
	"github.com/ascendise/tollkeeper-gateway/internal/signing"
	"github.com/ascendise/tollkeeper-gateway/internal/suspect"
)

// Policy decides whether a matching suspect needs a toll or is waved
// through.
type Policy int

const (
	// Blacklist requires a toll from suspects matching any description.
	Blacklist Policy = iota
	// Whitelist requires a toll from suspects matching none of the
	// descriptions.
	Whitelist
)

// Order is one (descriptions, policy, declaration) rule inside a Gate.
type Order struct {
	ID           string
	Descriptions []description.Description
	Policy       Policy
	Declaration  Declaration
}

// NewOrder builds an Order. Identifiers are either caller-supplied (the
// config loader passes the TOML table key) or, when id is empty, a fresh
// UUID.
func NewOrder(id string, descriptions []description.Description, policy Policy, declaration Declaration) *Order {
	if id == "" {
		id = uuid.NewString()
	}
	return &Order{ID: id, Descriptions: descriptions, Policy: policy, Declaration: declaration}
}

// Examination is the outcome of Order.Examine.
type Examination struct {
	Toll          *Toll
	AccessGranted bool
}

// Examine decides whether suspect owes a toll under this order, given an
// optional presented visa, the signing key used to verify it, now (the
// injected clock reading), and the owning gate's ID.
func (o *Order) Examine(now time.Time, s suspect.Suspect, visa *signing.Signed[Visa], secretKey []byte, gateID string) Examination {
	matches := o.isMatch(s)
	requireToll := (matches && o.Policy == Blacklist) || (!matches && o.Policy == Whitelist)

	var toll *Toll
	if requireToll && !o.hasValidVisa(now, s, visa, secretKey) {
		t := o.Declaration.Declare(s, OrderIdentifier{GateID: gateID, OrderID: o.ID})
		toll = &t
	}

	accessGranted := toll == nil && matches
	return Examination{Toll: toll, AccessGranted: accessGranted}
}

func (o *Order) isMatch(s suspect.Suspect) bool {
	for _, d := range o.Descriptions {
		if d.Matches(s) {
			return true
		}
	}
	return false
}

// hasValidVisa accepts a presented visa only when its signature verifies,
// it names this order, the suspect identity matches exactly, its
// destination covers the accessed destination, and it has not expired.
func (o *Order) hasValidVisa(now time.Time, s suspect.Suspect, signed *signing.Signed[Visa], secretKey []byte) bool {
	if signed == nil {
		return false
	}
	v, err := signed.Verify(secretKey)
	if err != nil {
		return false
	}
	if v.OrderID.OrderID != o.ID {
		return false
	}
	if v.Suspect.ClientIP != s.ClientIP || v.Suspect.UserAgent != s.UserAgent {
		return false
	}
	if !v.Suspect.Destination.Contains(s.Destination) {
		return false
	}
	return v.Expires.After(now)
}
