// Package suspect holds the value types that identify a party accessing a
// guarded destination: Destination and Suspect.
package suspect

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Destination identifies a protected host/port/path triple.
type Destination struct {
	Host string
	Port uint16
	Path string
}

// NewDestination builds a Destination, applying the default port 80 when
// zero and the default path "/" when empty.
func NewDestination(host string, port uint16, path string) Destination {
	if port == 0 {
		port = 80
	}
	if path == "" {
		path = "/"
	}
	return Destination{Host: host, Port: port, Path: path}
}

// String renders "host:port/path", the form used by regex description
// matching and the JSON wire types. Hashcash resource fields use the
// different "host(port)path" form.
func (d Destination) String() string {
	return fmt.Sprintf("%s:%d%s", d.Host, d.Port, d.Path)
}

// AsBytes is the canonical byte serialization used by the signed envelope:
// host ∥ port (big-endian u16) ∥ path.
func (d Destination) AsBytes() []byte {
	buf := make([]byte, 0, len(d.Host)+2+len(d.Path))
	buf = append(buf, d.Host...)
	var portBytes [2]byte
	binary.BigEndian.PutUint16(portBytes[:], d.Port)
	buf = append(buf, portBytes[:]...)
	buf = append(buf, d.Path...)
	return buf
}

// Contains reports whether other names a resource reachable through d: same
// host and port, and d.Path is a path-segment prefix of other.Path. A
// trailing slash on either side is normalized away before comparison, and
// comparison is by path segment, never by substring.
func (d Destination) Contains(other Destination) bool {
	if d.Host != other.Host || d.Port != other.Port {
		return false
	}
	selfSegs := pathSegments(d.Path)
	otherSegs := pathSegments(other.Path)
	if len(selfSegs) > len(otherSegs) {
		return false
	}
	for i, seg := range selfSegs {
		if otherSegs[i] != seg {
			return false
		}
	}
	return true
}

func pathSegments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return []string{}
	}
	return strings.Split(p, "/")
}

// Suspect identifies the party requesting access.
type Suspect struct {
	ClientIP    string
	UserAgent   string
	Destination Destination
}

// AsBytes is the canonical byte serialization: client_ip ∥ user_agent ∥
// AsBytes(destination).
func (s Suspect) AsBytes() []byte {
	buf := make([]byte, 0, len(s.ClientIP)+len(s.UserAgent)+len(s.Destination.Host)+len(s.Destination.Path)+2)
	buf = append(buf, s.ClientIP...)
	buf = append(buf, s.UserAgent...)
	buf = append(buf, s.Destination.AsBytes()...)
	return buf
}

// Equal reports field-by-field equality for the Suspect value type.
func (s Suspect) Equal(other Suspect) bool {
	return s.ClientIP == other.ClientIP &&
		s.UserAgent == other.UserAgent &&
		s.Destination == other.Destination
}
