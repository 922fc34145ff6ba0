package hashcash

import (
	"crypto/sha1"
	"strconv"
	"time"

	"github.com/ascendise/tollkeeper-gateway/internal/clock"
	"github.com/ascendise/tollkeeper-gateway/internal/engine"
	"github.com/ascendise/tollkeeper-gateway/internal/ledger"
	"github.com/ascendise/tollkeeper-gateway/internal/suspect"
)

// grace is the time latitude afforded to skewed clients on both edges of
// the validity window.
const grace = 5 * time.Second

// stampWidth is the declared width of the Hashcash date field, always 12
// (YYMMDDhhmmss).
const stampWidth = 12

// Declaration implements engine.Declaration with the Hashcash proof-of-work
// scheme: mint + verify + double-spend ledger.
type Declaration struct {
	difficulty uint8
	expiry     time.Duration
	clock      clock.Clock
	ledger     *ledger.Ledger
}

// New builds a Hashcash Declaration of the given difficulty (zero bits
// required) and expiry (visa and stamp validity window), using clk for time
// and a ledger bounded at ledgerCapacity (0 selects ledger.DefaultCapacity).
func New(difficulty uint8, expiry time.Duration, clk clock.Clock, ledgerCapacity int) *Declaration {
	return &Declaration{
		difficulty: difficulty,
		expiry:     expiry,
		clock:      clk,
		ledger:     ledger.New(ledgerCapacity),
	}
}

// Declare mints a Toll whose challenge map carries, in order: ver, bits,
// width, resource, ext.
func (d *Declaration) Declare(s suspect.Suspect, orderID engine.OrderIdentifier) engine.Toll {
	challenge := d.generateChallenge(s)
	return engine.Toll{Recipient: s, OrderID: orderID, Challenge: challenge}
}

func (d *Declaration) generateChallenge(s suspect.Suspect) engine.Challenge {
	var challenge engine.Challenge
	challenge = challenge.With("ver", "1")
	challenge = challenge.With("bits", strconv.Itoa(int(d.difficulty)))
	challenge = challenge.With("width", strconv.Itoa(stampWidth))
	challenge = challenge.With("resource", formatResource(s.Destination))
	challenge = challenge.With("ext", "suspect.ip="+s.ClientIP)
	return challenge
}

// Pay verifies payment against suspect in a fixed order: ledger membership,
// stamp parse, date window, challenge binding, proof-of-work, then ledger
// insertion. Any failure yields a fresh toll for the current suspect (never
// the one in the stale payment).
func (d *Declaration) Pay(payment engine.Payment, s suspect.Suspect) (engine.Visa, *engine.DeclarationError) {
	stampValue := payment.Value

	// Oversized stamps are thrown out before any parsing cost is incurred.
	if len(stampValue) > ledger.StampSizeLimit {
		return engine.Visa{}, d.invalidPayment(s, payment)
	}

	if d.ledger.IsSpent(stampValue) {
		return engine.Visa{}, d.invalidPayment(s, payment)
	}

	parsed, err := parseStamp(stampValue)
	if err != nil {
		return engine.Visa{}, d.invalidPayment(s, payment)
	}

	now := d.clock.Now()
	minValidDate := now.Add(-d.expiry - grace)
	maxValidDate := now.Add(grace)
	if parsed.date.Before(minValidDate) || parsed.date.After(maxValidDate) {
		return engine.Visa{}, d.invalidPayment(s, payment)
	}

	if !d.isMatchingChallenge(s, parsed) {
		return engine.Visa{}, d.invalidPayment(s, payment)
	}

	digest := sha1.Sum([]byte(stampValue))
	if !hasLeadingZeroBits(digest, parsed.bits) {
		return engine.Visa{}, d.invalidPayment(s, payment)
	}

	if insertErr := d.ledger.Insert(stampValue); insertErr != nil {
		return engine.Visa{}, d.invalidPayment(s, payment)
	}

	visa := engine.Visa{
		OrderID: payment.Toll.OrderID,
		Suspect: s,
		Expires: now.Add(d.expiry),
	}
	return visa, nil
}

func (d *Declaration) isMatchingChallenge(s suspect.Suspect, parsed *stamp) bool {
	if parsed.bits != d.difficulty {
		return false
	}
	if parsed.resource != s.Destination {
		return false
	}
	ip, ok := parsed.ext["suspect.ip"]
	return ok && ip == s.ClientIP
}

func (d *Declaration) invalidPayment(s suspect.Suspect, payment engine.Payment) *engine.DeclarationError {
	newToll := d.Declare(s, payment.Toll.OrderID)
	return &engine.DeclarationError{Payment: payment, NewToll: newToll}
}
