package engine

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ascendise/tollkeeper-gateway/internal/signing"
	"github.com/ascendise/tollkeeper-gateway/internal/suspect"
)

// ErrNoOrders is returned by NewGate when constructed with an empty orders
// list — a Gate with nothing to protect with.
var ErrNoOrders = errors.New("tollkeeper: gate has no orders")

// Gate binds a destination prefix to an ordered list of orders.
type Gate struct {
	ID          string
	Destination suspect.Destination
	Orders      []*Order
}

// NewGate validates the non-empty-orders invariant before returning a Gate.
// Identifiers are either caller-supplied (config) or, when id is empty, a
// fresh UUID.
func NewGate(id string, destination suspect.Destination, orders []*Order) (*Gate, error) {
	if len(orders) == 0 {
		return nil, ErrNoOrders
	}
	if id == "" {
		id = uuid.NewString()
	}
	return &Gate{ID: id, Destination: destination, Orders: orders}, nil
}

// Pass walks orders in priority order. The first order that grants access
// short-circuits to nil (allow); the first order that returns a toll
// short-circuits to that toll (deny); exhausting the list allows.
func (g *Gate) Pass(now time.Time, s suspect.Suspect, visa *signing.Signed[Visa], secretKey []byte) *Toll {
	for _, order := range g.Orders {
		exam := order.Examine(now, s, visa, secretKey, g.ID)
		if exam.AccessGranted {
			return nil
		}
		if exam.Toll != nil {
			return exam.Toll
		}
	}
	return nil
}
