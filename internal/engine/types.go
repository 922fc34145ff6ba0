// Package engine implements the access-control core: Order, Gate,
// Tollkeeper, and the Toll/Payment/Visa data model that flows between them.
package engine

import (
	"fmt"
	"time"

	"github.com/ascendise/tollkeeper-gateway/internal/suspect"
)

// OrderIdentifier names the (gate, order) pair a Toll or Visa belongs to.
type OrderIdentifier struct {
	GateID  string
	OrderID string
}

// String externalizes the identifier as "gate_id#order_id".
func (o OrderIdentifier) String() string {
	return fmt.Sprintf("%s#%s", o.GateID, o.OrderID)
}

// AsBytes is the canonical byte serialization: the external string form.
func (o OrderIdentifier) AsBytes() []byte {
	return []byte(o.String())
}

// ChallengeEntry is one key/value pair in a Toll's challenge, preserving
// insertion order — never a hashed map, whose iteration order would make
// signatures nondeterministic.
type ChallengeEntry struct {
	Key   string
	Value string
}

// Challenge is an insertion-ordered map<string,string>.
type Challenge []ChallengeEntry

// Get returns the value for key and whether it was present.
func (c Challenge) Get(key string) (string, bool) {
	for _, e := range c {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// With returns a copy of c with key=value appended.
func (c Challenge) With(key, value string) Challenge {
	out := make(Challenge, len(c), len(c)+1)
	copy(out, c)
	return append(out, ChallengeEntry{Key: key, Value: value})
}

// AsBytes serializes entries in insertion order as "key=value;" each.
func (c Challenge) AsBytes() []byte {
	var buf []byte
	for _, e := range c {
		buf = append(buf, e.Key...)
		buf = append(buf, '=')
		buf = append(buf, e.Value...)
		buf = append(buf, ';')
	}
	return buf
}

// Toll is a challenge issued when access is denied. Immutable once minted.
type Toll struct {
	Recipient suspect.Suspect
	OrderID   OrderIdentifier
	Challenge Challenge
}

// AsBytes is AsBytes(recipient) ∥ AsBytes(order_id) ∥ AsBytes(challenge).
func (t Toll) AsBytes() []byte {
	buf := append([]byte{}, t.Recipient.AsBytes()...)
	buf = append(buf, t.OrderID.AsBytes()...)
	buf = append(buf, t.Challenge.AsBytes()...)
	return buf
}

// Payment is a client-submitted answer to a Toll's challenge.
type Payment struct {
	Toll  Toll
	Value string
}

// Visa is a server-issued bearer credential granting future access for the
// same suspect and order, with an absolute expiry.
type Visa struct {
	OrderID OrderIdentifier
	Suspect suspect.Suspect
	Expires time.Time
}

// AsBytes is AsBytes(order_id) ∥ AsBytes(suspect) ∥ expires as RFC3339 UTC.
func (v Visa) AsBytes() []byte {
	buf := append([]byte{}, v.OrderID.AsBytes()...)
	buf = append(buf, v.Suspect.AsBytes()...)
	buf = append(buf, v.Expires.UTC().Format(time.RFC3339)...)
	return buf
}
