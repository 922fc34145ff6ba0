package api

import (
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"

	"github.com/ascendise/tollkeeper-gateway/internal/engine"
	"github.com/ascendise/tollkeeper-gateway/internal/suspect"
)

// Handlers bundles the sidecar API's HTTP endpoints: toll payment, the
// human-facing challenge page, and CORS preflight.
type Handlers struct {
	tollkeeper    *engine.Tollkeeper
	realIPHeader  string
	baseURL       string
	challengeTmpl *template.Template
}

// NewHandlers builds Handlers over tollkeeper. challengeTmpl may be nil, in
// which case /api/challenge responds 404 (no web UI configured).
func NewHandlers(tollkeeper *engine.Tollkeeper, baseURL, realIPHeader string, challengeTmpl *template.Template) *Handlers {
	return &Handlers{tollkeeper: tollkeeper, baseURL: baseURL, realIPHeader: realIPHeader, challengeTmpl: challengeTmpl}
}

func writeCORSHeaders(w http.ResponseWriter, methods string) {
	h := w.Header()
	h.Set("Access-Control-Allow-Headers", "*")
	h.Set("Access-Control-Allow-Methods", methods)
	h.Set("Access-Control-Allow-Origin", "*")
}

func writeJSON(w http.ResponseWriter, v any) {
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

// errorEnvelope is the HAL-style error document for a rejected payment.
type errorEnvelope struct {
	Error   string    `json:"error"`
	Message string    `json:"message"`
	NewToll *tollJSON `json:"new_toll,omitempty"`
}

// PayToll handles POST /api/pay/: verify a Toll payment and, on success,
// issue a visa as an X-Keeper-Token header.
func (h *Handlers) PayToll(w http.ResponseWriter, r *http.Request) {
	writeCORSHeaders(w, "POST")
	w.Header().Set("Content-Type", "application/hal+json")

	if r.Method == http.MethodOptions {
		w.Header().Set("Accept", "application/json")
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, errorEnvelope{Error: "Malformed Request", Message: err.Error()})
		return
	}
	payment, err := parsePaymentRequest(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, errorEnvelope{Error: "Malformed Request", Message: err.Error()})
		return
	}

	// The presenting suspect's identity comes from the live request; its
	// destination is read from the payment's claimed toll recipient (the
	// signed toll's Recipient.Destination), not from anything the client
	// asserts separately — tampering with it invalidates the outer toll
	// signature instead.
	_, claimedToll := payment.Toll.Deconstruct()
	s := suspect.Suspect{
		ClientIP:    h.clientIP(r),
		UserAgent:   r.UserAgent(),
		Destination: claimedToll.Recipient.Destination,
	}

	visa, payErr := h.tollkeeper.PayToll(s, payment)
	if payErr != nil {
		slog.Info("payment rejected", "client_ip", s.ClientIP, "err", payErr)
		h.writePaymentError(w, payErr)
		return
	}
	slog.Info("payment accepted", "client_ip", s.ClientIP, "destination", s.Destination.String())

	w.Header().Set("X-Keeper-Token", visaHeaderValue(visa))
	w.WriteHeader(http.StatusOK)
	writeJSON(w, map[string]string{
		"token":       visaHeaderValue(visa),
		"header_name": "X-Keeper-Token",
	})
}

func (h *Handlers) writePaymentError(w http.ResponseWriter, err error) {
	var invalidPayment *engine.InvalidPaymentError
	var mismatched *engine.MismatchedSuspectError
	var gatewayErr *engine.GatewayError

	switch {
	case errors.Is(err, engine.ErrInvalidSignature):
		w.WriteHeader(http.StatusUnprocessableEntity)
		writeJSON(w, errorEnvelope{
			Error:   "Invalid Signature!",
			Message: "Issued toll signature is not valid. Content was probably modified or the key rotated.",
		})
	case errors.As(err, &invalidPayment):
		toll := tollToJSON(invalidPayment.NewToll)
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, errorEnvelope{
			Error:   "Challenge Failed!",
			Message: "'" + invalidPayment.Payment.Value + "' was not the right answer. Try again with the new toll.",
			NewToll: &toll,
		})
	case errors.As(err, &mismatched):
		toll := tollToJSON(mismatched.NewToll)
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, errorEnvelope{
			Error:   "Mismatched Recipient!",
			Message: "Toll was issued for a different recipient. A new toll was issued for the current recipient.",
			NewToll: &toll,
		})
	case errors.As(err, &gatewayErr):
		w.WriteHeader(http.StatusConflict)
		writeJSON(w, errorEnvelope{
			Error:   "Gateway Error!",
			Message: "Toll no longer matches any configured order. Retry the request.",
		})
	default:
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(w, errorEnvelope{Error: "Internal Error", Message: err.Error()})
	}
}

func (h *Handlers) clientIP(r *http.Request) string {
	g := Gatekeeper{realIPHeader: h.realIPHeader}
	return g.clientIP(r)
}

// ChallengePage serves GET /api/challenge: an HTML page that receives only
// the API base URL; its script (web/static carries the solving helper)
// fetches a toll and runs the proof-of-work client-side.
func (h *Handlers) ChallengePage(w http.ResponseWriter, r *http.Request) {
	if h.challengeTmpl == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = h.challengeTmpl.Execute(w, map[string]string{
		"BaseURL": h.baseURL,
	})
}
