// TOML gate/order/description loading: secret key provider, gates with an
// optional internal destination, shared orders and descriptions referenced
// by ID.
package config

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ascendise/tollkeeper-gateway/internal/clock"
	"github.com/ascendise/tollkeeper-gateway/internal/description"
	"github.com/ascendise/tollkeeper-gateway/internal/engine"
	"github.com/ascendise/tollkeeper-gateway/internal/hashcash"
	"github.com/ascendise/tollkeeper-gateway/internal/signing"
	"github.com/ascendise/tollkeeper-gateway/internal/suspect"
)

// GateRoute binds a gate's public destination host:port to the internal
// URL the reverse proxy forwards to, once the sidecar API has cleared a
// request against that gate.
type GateRoute struct {
	GateID      string
	PublicHost  string
	InternalURL string
}

// GatesFile is the raw shape of a gates.toml document.
type GatesFile struct {
	SecretKeyProvider secretKeyProviderSpec `toml:"secret_key_provider"`
	Descriptions      map[string]descSpec   `toml:"descriptions"`
	Orders            map[string]orderSpec  `toml:"orders"`
	Gates             map[string]gateSpec   `toml:"gates"`
}

type secretKeyProviderSpec struct {
	// InMemory is a hex-encoded secret, matching the operator-facing
	// secret_key_provider = { InMemory = "<key>" } configuration form.
	// When empty, the gateway falls back to Config.SecretKey (the
	// SECRET_KEY env var).
	InMemory string `toml:"InMemory"`
}

type descSpec struct {
	Type    string `toml:"type"` // "stub" | "regex"
	IsMatch bool   `toml:"is_match"`
	Field   string `toml:"field"`
	Pattern string `toml:"pattern"`
	Negate  bool   `toml:"negate"`
}

type declarationSpec struct {
	Type           string `toml:"type"` // "hashcash"
	Difficulty     int    `toml:"difficulty"`
	Expiry         string `toml:"expiry"` // "<int><s|m|h|d>"
	LedgerCapacity int    `toml:"ledger_capacity"`
}

type orderSpec struct {
	Descriptions []string        `toml:"descriptions"`
	AccessPolicy string          `toml:"access_policy"` // "blacklist" | "whitelist"
	Declaration  declarationSpec `toml:"declaration"`
}

type gateSpec struct {
	Destination         string   `toml:"destination"`
	InternalDestination string   `toml:"internal_destination"`
	Orders              []string `toml:"orders"`
}

// LoadGates reads and builds the engine topology from a TOML file at path.
// fallbackSecret is used when the file's [secret_key_provider] is empty.
func LoadGates(path string, clk clock.Clock, fallbackSecret []byte) ([]*engine.Gate, []GateRoute, signing.SecretKeyProvider, error) {
	var file GatesFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, nil, nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	secret := fallbackSecret
	if file.SecretKeyProvider.InMemory != "" {
		decoded, err := decodeHexSecret(file.SecretKeyProvider.InMemory)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("config: secret_key_provider.InMemory: %w", err)
		}
		secret = decoded
	}
	if len(secret) == 0 {
		return nil, nil, nil, fmt.Errorf("config: no secret key configured (set SECRET_KEY or [secret_key_provider])")
	}
	provider := signing.NewInMemoryProvider(secret)

	descriptions, err := buildDescriptions(file.Descriptions)
	if err != nil {
		return nil, nil, nil, err
	}
	orders, err := buildOrders(file.Orders, descriptions, clk)
	if err != nil {
		return nil, nil, nil, err
	}
	gates, routes, err := buildGates(file.Gates, orders)
	if err != nil {
		return nil, nil, nil, err
	}
	return gates, routes, provider, nil
}

func decodeHexSecret(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) < 16 {
		return nil, fmt.Errorf("secret must be at least 16 bytes (32 hex chars)")
	}
	return b, nil
}

func buildDescriptions(specs map[string]descSpec) (map[string]description.Description, error) {
	out := make(map[string]description.Description, len(specs))
	for id, spec := range specs {
		switch spec.Type {
		case "stub":
			out[id] = description.Stub{IsMatch: spec.IsMatch}
		case "regex":
			field := description.Field(spec.Field)
			d, err := description.NewRegex(field, spec.Pattern, spec.Negate)
			if err != nil {
				return nil, fmt.Errorf("config: description %q: %w", id, err)
			}
			out[id] = d
		default:
			return nil, fmt.Errorf("config: description %q: unknown type %q", id, spec.Type)
		}
	}
	return out, nil
}

func buildOrders(specs map[string]orderSpec, descriptions map[string]description.Description, clk clock.Clock) (map[string]*engine.Order, error) {
	out := make(map[string]*engine.Order, len(specs))
	for id, spec := range specs {
		policy, err := parsePolicy(spec.AccessPolicy)
		if err != nil {
			return nil, fmt.Errorf("config: order %q: %w", id, err)
		}
		descs := make([]description.Description, 0, len(spec.Descriptions))
		for _, descID := range spec.Descriptions {
			d, ok := descriptions[descID]
			if !ok {
				return nil, fmt.Errorf("config: order %q references unknown description %q", id, descID)
			}
			descs = append(descs, d)
		}
		decl, err := buildDeclaration(spec.Declaration, clk)
		if err != nil {
			return nil, fmt.Errorf("config: order %q: %w", id, err)
		}
		out[id] = engine.NewOrder(id, descs, policy, decl)
	}
	return out, nil
}

func parsePolicy(s string) (engine.Policy, error) {
	switch strings.ToLower(s) {
	case "blacklist":
		return engine.Blacklist, nil
	case "whitelist":
		return engine.Whitelist, nil
	default:
		return 0, fmt.Errorf("unknown access_policy %q (want \"blacklist\" or \"whitelist\")", s)
	}
}

func buildDeclaration(spec declarationSpec, clk clock.Clock) (engine.Declaration, error) {
	switch strings.ToLower(spec.Type) {
	case "hashcash":
		if spec.Difficulty < 0 || spec.Difficulty > 32 {
			return nil, fmt.Errorf("hashcash difficulty %d out of range [0,32]", spec.Difficulty)
		}
		expiry, err := parseDuration(spec.Expiry)
		if err != nil {
			return nil, fmt.Errorf("hashcash expiry: %w", err)
		}
		return hashcash.New(uint8(spec.Difficulty), expiry, clk, spec.LedgerCapacity), nil
	default:
		return nil, fmt.Errorf("unknown declaration type %q", spec.Type)
	}
}

var durationPattern = regexp.MustCompile(`^(\d+)(s|m|h|d)$`)

// parseDuration parses the "<integer><s|m|h|d>" form used throughout the
// config file for toll and visa validity windows.
func parseDuration(s string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q (want e.g. \"30s\", \"5m\", \"1h\", \"2d\")", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, err
	}
	unit := map[string]time.Duration{
		"s": time.Second,
		"m": time.Minute,
		"h": time.Hour,
		"d": 24 * time.Hour,
	}[m[2]]
	return time.Duration(n) * unit, nil
}

func buildGates(specs map[string]gateSpec, orders map[string]*engine.Order) ([]*engine.Gate, []GateRoute, error) {
	ids := make([]string, 0, len(specs))
	for id := range specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	gates := make([]*engine.Gate, 0, len(specs))
	routes := make([]GateRoute, 0, len(specs))
	for _, id := range ids {
		spec := specs[id]
		dest, err := parseDestination(spec.Destination)
		if err != nil {
			return nil, nil, fmt.Errorf("config: gate %q: %w", id, err)
		}
		gateOrders := make([]*engine.Order, 0, len(spec.Orders))
		for _, orderID := range spec.Orders {
			o, ok := orders[orderID]
			if !ok {
				return nil, nil, fmt.Errorf("config: gate %q references unknown order %q", id, orderID)
			}
			gateOrders = append(gateOrders, o)
		}
		gate, err := engine.NewGate(id, dest, gateOrders)
		if err != nil {
			return nil, nil, fmt.Errorf("config: gate %q: %w", id, err)
		}
		gates = append(gates, gate)

		if spec.InternalDestination != "" {
			routes = append(routes, GateRoute{
				GateID:      id,
				PublicHost:  fmt.Sprintf("%s:%d", dest.Host, dest.Port),
				InternalURL: spec.InternalDestination,
			})
		}
	}
	return gates, routes, nil
}

var destinationPattern = regexp.MustCompile(`^([^:/]+)(?::(\d+))?(/.*)?$`)

// parseDestination parses "host[:port][/path]" into a suspect.Destination.
func parseDestination(s string) (suspect.Destination, error) {
	m := destinationPattern.FindStringSubmatch(s)
	if m == nil {
		return suspect.Destination{}, fmt.Errorf("invalid destination %q", s)
	}
	var port uint16
	if m[2] != "" {
		p, err := strconv.ParseUint(m[2], 10, 16)
		if err != nil {
			return suspect.Destination{}, fmt.Errorf("invalid port in destination %q: %w", s, err)
		}
		port = uint16(p)
	}
	return suspect.NewDestination(m[1], port, m[3]), nil
}
