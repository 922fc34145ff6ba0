// Package signing implements the Signed[T] envelope: an HMAC-SHA256
// signature over a type's canonical byte serialization, making Tolls,
// Visas, and Payments tamper-evident.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrInvalidSignature is returned by Verify when the signature does not
// match the value under the given key.
var ErrInvalidSignature = errors.New("tollkeeper: invalid signature")

// AsBytes produces the canonical byte serialization of a value. Bytes-equal
// values must produce bytes-equal output — never iterate a Go map directly
// when implementing this for a composite type; use an ordered representation.
type AsBytes interface {
	AsBytes() []byte
}

// Signed wraps a value with an HMAC-SHA256 signature over its canonical
// bytes.
type Signed[T AsBytes] struct {
	value     T
	signature []byte
}

// New builds a Signed with a caller-supplied signature that may be invalid.
// Used on wire-deserialization paths, where the signature travels alongside
// the value and is checked later with Verify.
func New[T AsBytes](value T, signature []byte) Signed[T] {
	return Signed[T]{value: value, signature: signature}
}

// Sign produces a Signed with a correct HMAC-SHA256 signature over value's
// canonical bytes, under secretKey.
func Sign[T AsBytes](value T, secretKey []byte) Signed[T] {
	return Signed[T]{value: value, signature: compute(value, secretKey)}
}

// Verify returns the wrapped value only if the signature matches value's
// canonical bytes under secretKey.
func (s Signed[T]) Verify(secretKey []byte) (T, error) {
	expected := compute(s.value, secretKey)
	if !hmac.Equal(expected, s.signature) {
		var zero T
		return zero, ErrInvalidSignature
	}
	return s.value, nil
}

// Deconstruct returns the raw signature and value without verifying —
// intended for wire serialization or error reporting, where the caller will
// verify later (or never needs to trust the value).
func (s Signed[T]) Deconstruct() ([]byte, T) {
	return s.signature, s.value
}

// Signature returns the raw signature bytes.
func (s Signed[T]) Signature() []byte {
	return s.signature
}

// SignatureBase64 returns the signature, base64-standard-encoded, for wire
// transport.
func (s Signed[T]) SignatureBase64() string {
	return base64.StdEncoding.EncodeToString(s.signature)
}

func compute[T AsBytes](value T, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(value.AsBytes())
	return mac.Sum(nil)
}

// DeriveKey splits one operator-supplied secret into independent sub-keys
// per signed-value family (e.g. "toll" vs "visa"), via HKDF-SHA256, so a
// leak or cryptanalytic weakness specific to one envelope family can't be
// replayed against the other. info should be a short, constant, ASCII label
// unique to the caller (e.g. []byte("tollkeeper.toll.v1")).
func DeriveKey(secret, info []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, info)
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
