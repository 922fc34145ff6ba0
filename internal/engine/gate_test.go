package engine

import (
	"testing"
	"time"

	"github.com/ascendise/tollkeeper-gateway/internal/description"
	"github.com/ascendise/tollkeeper-gateway/internal/suspect"
)

func TestNewGateRejectsEmptyOrders(t *testing.T) {
	_, err := NewGate("ext", suspect.NewDestination("example.com", 80, "/"), nil)
	if err != ErrNoOrders {
		t.Errorf("expected ErrNoOrders, got %v", err)
	}
}

func TestGatePassShortCircuitsOnFirstGrant(t *testing.T) {
	grant := &Order{ID: "open", Descriptions: []description.Description{description.Stub{IsMatch: true}}, Policy: Whitelist, Declaration: &stubDeclaration{}}
	deny := &Order{ID: "closed", Descriptions: []description.Description{description.Stub{IsMatch: true}}, Policy: Blacklist, Declaration: &stubDeclaration{}}
	gate, err := NewGate("ext", suspect.NewDestination("example.com", 80, "/"), []*Order{grant, deny})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	s := suspect.Suspect{ClientIP: "1.2.3.4", UserAgent: "Bot", Destination: suspect.NewDestination("example.com", 80, "/hello")}
	toll := gate.Pass(time.Now(), s, nil, []byte("key"))
	if toll != nil {
		t.Error("expected nil toll: first order already granted access")
	}
}

func TestGatePassAbstainingOrderFallsThrough(t *testing.T) {
	abstain := &Order{ID: "open", Descriptions: []description.Description{description.Stub{IsMatch: false}}, Policy: Blacklist, Declaration: &stubDeclaration{}}
	deny := &Order{ID: "closed", Descriptions: []description.Description{description.Stub{IsMatch: true}}, Policy: Blacklist, Declaration: &stubDeclaration{}}
	gate, err := NewGate("ext", suspect.NewDestination("example.com", 80, "/"), []*Order{abstain, deny})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	s := suspect.Suspect{ClientIP: "1.2.3.4", UserAgent: "Bot", Destination: suspect.NewDestination("example.com", 80, "/hello")}
	toll := gate.Pass(time.Now(), s, nil, []byte("key"))
	if toll == nil {
		t.Error("an abstaining first order must leave later orders a chance to deny")
	}
}

func TestGatePassReturnsFirstToll(t *testing.T) {
	deny := &Order{ID: "closed", Descriptions: []description.Description{description.Stub{IsMatch: true}}, Policy: Blacklist, Declaration: &stubDeclaration{}}
	grant := &Order{ID: "open", Descriptions: []description.Description{description.Stub{IsMatch: false}}, Policy: Blacklist, Declaration: &stubDeclaration{}}
	gate, err := NewGate("ext", suspect.NewDestination("example.com", 80, "/"), []*Order{deny, grant})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	s := suspect.Suspect{ClientIP: "1.2.3.4", UserAgent: "Bot", Destination: suspect.NewDestination("example.com", 80, "/hello")}
	toll := gate.Pass(time.Now(), s, nil, []byte("key"))
	if toll == nil {
		t.Fatal("expected a toll from the denying order")
	}
}

func TestGatePassExhaustsToAccess(t *testing.T) {
	grant := &Order{ID: "open", Descriptions: []description.Description{description.Stub{IsMatch: false}}, Policy: Blacklist, Declaration: &stubDeclaration{}}
	gate, err := NewGate("ext", suspect.NewDestination("example.com", 80, "/"), []*Order{grant})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	s := suspect.Suspect{ClientIP: "1.2.3.4", UserAgent: "Bot", Destination: suspect.NewDestination("example.com", 80, "/hello")}
	if toll := gate.Pass(time.Now(), s, nil, []byte("key")); toll != nil {
		t.Error("expected access once orders are exhausted without a deny")
	}
}
