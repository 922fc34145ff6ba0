package api

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// debugJWTSecret signs the throwaway inspection JWT below. It carries no
// authority over the tollkeeper's own HMAC envelopes — a fixed process-local
// key is fine since nothing ever trusts this token back.
var debugJWTSecret = []byte("tollkeeper-debug-inspection-only")

type visaClaims struct {
	jwt.RegisteredClaims
	ClientIP    string `json:"client_ip"`
	UserAgent   string `json:"user_agent"`
	Destination string `json:"destination"`
	OrderID     string `json:"order_id"`
}

// DebugVisa handles GET /api/debug/visa: it decodes the caller's
// X-Keeper-Token and re-wraps it as a JWT purely so operators can paste it
// into jwt.io-style tooling. The wire protocol itself is never a JWT — this
// is an inspection convenience, not a trust boundary.
func (h *Handlers) DebugVisa(w http.ResponseWriter, r *http.Request) {
	writeCORSHeaders(w, "GET")
	w.Header().Set("Content-Type", "application/json")

	token := r.Header.Get("X-Keeper-Token")
	if token == "" {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, errorEnvelope{Error: "Missing Token", Message: "no X-Keeper-Token header present"})
		return
	}
	signed, err := parseVisaHeaderValue(token)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, errorEnvelope{Error: "Malformed Token", Message: err.Error()})
		return
	}
	_, visa := signed.Deconstruct()

	claims := visaClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(visa.Expires),
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
		},
		ClientIP:    visa.Suspect.ClientIP,
		UserAgent:   visa.Suspect.UserAgent,
		Destination: visa.Suspect.Destination.String(),
		OrderID:     visa.OrderID.String(),
	}
	debugToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedDebugToken, err := debugToken.SignedString(debugJWTSecret)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(w, errorEnvelope{Error: "Internal Error", Message: err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	writeJSON(w, map[string]string{"debug_jwt": signedDebugToken})
}
