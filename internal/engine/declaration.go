package engine

import "github.com/ascendise/tollkeeper-gateway/internal/suspect"

// Declaration mints and verifies Tolls for one Order. It owns the types it
// produces with no back-reference; Hashcash is the only variant today, but
// the seam is open-ended.
type Declaration interface {
	// Declare mints a fresh Toll for suspect, scoped to orderID.
	Declare(s suspect.Suspect, orderID OrderIdentifier) Toll

	// Pay verifies payment against suspect and either issues a Visa or
	// returns a *DeclarationError carrying a fresh replacement toll.
	Pay(payment Payment, s suspect.Suspect) (Visa, *DeclarationError)
}
