// Package api is the sidecar HTTP API: it turns engine.Tollkeeper's
// CheckAccess/PayToll results into the HAL-style JSON and X-Keeper-Token
// wire forms.
package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ascendise/tollkeeper-gateway/internal/engine"
	"github.com/ascendise/tollkeeper-gateway/internal/signing"
	"github.com/ascendise/tollkeeper-gateway/internal/suspect"
)

// suspectJSON mirrors Suspect's wire shape inside a Toll.
type suspectJSON struct {
	ClientIP    string `json:"client_ip"`
	UserAgent   string `json:"user_agent"`
	Destination string `json:"destination"`
}

// challengeJSON flattens an ordered Challenge into a plain object. JSON
// objects do not preserve member order, so decoding goes through
// challengeFromJSON to rebuild the exact insertion order the toll was
// signed over.
type challengeJSON map[string]string

// challengeKeyOrder is the order the declaration mints challenge entries in.
var challengeKeyOrder = []string{"ver", "bits", "width", "resource", "ext"}

// challengeFromJSON rebuilds an ordered Challenge from its decoded JSON
// form: known keys in mint order first, then any remaining keys sorted, so
// the reconstructed bytes match the signature computed at mint time.
func challengeFromJSON(m challengeJSON) engine.Challenge {
	var challenge engine.Challenge
	seen := make(map[string]bool, len(m))
	for _, k := range challengeKeyOrder {
		if v, ok := m[k]; ok {
			challenge = challenge.With(k, v)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(m))
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		challenge = challenge.With(k, m[k])
	}
	return challenge
}

// tollJSON is the wire form of a signed Toll:
// `{"recipient":..., "order_id":"gate#order", "challenge":{...}, "signature":"..."}`.
type tollJSON struct {
	Recipient suspectJSON   `json:"recipient"`
	OrderID   string        `json:"order_id"`
	Challenge challengeJSON `json:"challenge"`
	Signature string        `json:"signature"`
}

func tollToJSON(signed signing.Signed[engine.Toll]) tollJSON {
	sig, toll := signed.Deconstruct()
	challenge := make(challengeJSON, len(toll.Challenge))
	for _, entry := range toll.Challenge {
		challenge[entry.Key] = entry.Value
	}
	return tollJSON{
		Recipient: suspectJSON{
			ClientIP:    toll.Recipient.ClientIP,
			UserAgent:   toll.Recipient.UserAgent,
			Destination: toll.Recipient.Destination.String(),
		},
		OrderID:   toll.OrderID.String(),
		Challenge: challenge,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}
}

// tollEnvelope is the top-level HAL document returned for an access-denied
// response: `{"toll": {...}, "_links": {"pay": "<api_base>/api/pay/"}}`.
type tollEnvelope struct {
	Toll  tollJSON          `json:"toll"`
	Links map[string]string `json:"_links"`
}

func newTollEnvelope(signed signing.Signed[engine.Toll], baseURL string) tollEnvelope {
	return tollEnvelope{
		Toll: tollToJSON(signed),
		Links: map[string]string{
			"pay": strings.TrimSuffix(baseURL, "/") + "/api/pay/",
		},
	}
}

// paymentRequest is the body POSTed to /api/pay/: the Toll exactly as
// returned by a prior 402 response, plus the client's answer value.
type paymentRequest struct {
	Toll  tollJSON `json:"toll"`
	Value string   `json:"value"`
}

// parsePaymentRequest decodes body into an engine.SignedPayment, trusting
// nothing about the signature's validity — that is checked downstream by
// Tollkeeper.PayToll.
func parsePaymentRequest(body []byte) (engine.SignedPayment, error) {
	var req paymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return engine.SignedPayment{}, fmt.Errorf("malformed payment body: %w", err)
	}

	orderID, err := parseOrderID(req.Toll.OrderID)
	if err != nil {
		return engine.SignedPayment{}, err
	}
	sig, err := base64.StdEncoding.DecodeString(req.Toll.Signature)
	if err != nil {
		return engine.SignedPayment{}, fmt.Errorf("malformed toll signature: %w", err)
	}

	toll := engine.Toll{
		Recipient: suspect.Suspect{
			ClientIP:    req.Toll.Recipient.ClientIP,
			UserAgent:   req.Toll.Recipient.UserAgent,
			Destination: parseDestinationString(req.Toll.Recipient.Destination),
		},
		OrderID:   orderID,
		Challenge: challengeFromJSON(req.Toll.Challenge),
	}
	signed := signing.New[engine.Toll](toll, sig)
	return engine.SignedPayment{Toll: signed, Value: req.Value}, nil
}

func parseOrderID(s string) (engine.OrderIdentifier, error) {
	gateID, orderID, ok := strings.Cut(s, "#")
	if !ok {
		return engine.OrderIdentifier{}, fmt.Errorf("malformed order_id %q", s)
	}
	return engine.OrderIdentifier{GateID: gateID, OrderID: orderID}, nil
}

// parseDestinationString parses "host:port/path" as written by
// suspect.Destination.String.
func parseDestinationString(s string) suspect.Destination {
	host, rest, ok := strings.Cut(s, ":")
	if !ok {
		return suspect.NewDestination(s, 0, "/")
	}
	portStr, path, ok := strings.Cut(rest, "/")
	if !ok {
		portStr = rest
		path = "/"
	} else {
		path = "/" + path
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return suspect.NewDestination(host, uint16(port), path)
}

// visaHeaderValue renders a Signed[Visa] as the X-Keeper-Token value:
// base64(visa-json) "." base64(signature).
func visaHeaderValue(signed signing.Signed[engine.Visa]) string {
	sig, visa := signed.Deconstruct()
	payload := map[string]string{
		"ip":       visa.Suspect.ClientIP,
		"ua":       visa.Suspect.UserAgent,
		"dest":     visa.Suspect.Destination.String(),
		"order_id": visa.OrderID.String(),
		"expires":  visa.Expires.UTC().Format(time.RFC3339),
	}
	payloadJSON, _ := json.Marshal(payload)
	return base64.StdEncoding.EncodeToString(payloadJSON) + "." + base64.StdEncoding.EncodeToString(sig)
}

// parseVisaHeaderValue parses the X-Keeper-Token header value back into a
// Signed[Visa]. Verification is the caller's responsibility.
func parseVisaHeaderValue(value string) (signing.Signed[engine.Visa], error) {
	var zero signing.Signed[engine.Visa]
	payloadB64, sigB64, ok := strings.Cut(value, ".")
	if !ok {
		return zero, fmt.Errorf("malformed X-Keeper-Token")
	}
	payloadJSON, err := base64.StdEncoding.DecodeString(payloadB64)
	if err != nil {
		return zero, fmt.Errorf("malformed X-Keeper-Token payload: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return zero, fmt.Errorf("malformed X-Keeper-Token signature: %w", err)
	}
	var payload struct {
		IP      string `json:"ip"`
		UA      string `json:"ua"`
		Dest    string `json:"dest"`
		OrderID string `json:"order_id"`
		Expires string `json:"expires"`
	}
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return zero, fmt.Errorf("malformed X-Keeper-Token payload: %w", err)
	}
	orderID, err := parseOrderID(payload.OrderID)
	if err != nil {
		return zero, err
	}
	expires, err := time.Parse(time.RFC3339, payload.Expires)
	if err != nil {
		return zero, fmt.Errorf("malformed X-Keeper-Token expiry: %w", err)
	}
	visa := engine.Visa{
		OrderID: orderID,
		Suspect: suspect.Suspect{
			ClientIP:    payload.IP,
			UserAgent:   payload.UA,
			Destination: parseDestinationString(payload.Dest),
		},
		Expires: expires,
	}
	return signing.New[engine.Visa](visa, sig), nil
}
