// Package hashcash implements the Hashcash-style Declaration: toll minting,
// stamp parsing/verification, and visa issuance.
package hashcash

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ascendise/tollkeeper-gateway/internal/suspect"
)

// dateLayout is Go's reference-time spelling of Hashcash's YYMMDDhhmmss,
// parsed/formatted as UTC.
const dateLayout = "060102150405"

var resourcePattern = regexp.MustCompile(`^(.+)\((\d+)\)(/.*)$`)

// stamp is a parsed Hashcash wire stamp:
// ver:bits:date:resource:ext:rand:counter
type stamp struct {
	raw      string
	ver      uint8
	bits     uint8
	date     time.Time
	resource suspect.Destination
	ext      map[string]string
	rand     string
	counter  string
}

// errMalformedStamp is returned for any structural parse failure.
var errMalformedStamp = fmt.Errorf("tollkeeper: malformed stamp")

// parseStamp parses raw into a stamp, or returns errMalformedStamp.
func parseStamp(raw string) (*stamp, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 7 {
		return nil, errMalformedStamp
	}
	ver, bits, date, resource, ext, rand, counter := parts[0], parts[1], parts[2], parts[3], parts[4], parts[5], parts[6]

	if ver != "1" {
		return nil, errMalformedStamp
	}
	bitsVal, err := strconv.ParseUint(bits, 10, 8)
	if err != nil {
		return nil, errMalformedStamp
	}
	parsedDate, err := parseStampDate(date)
	if err != nil {
		return nil, errMalformedStamp
	}
	parsedResource, err := parseResource(resource)
	if err != nil {
		return nil, errMalformedStamp
	}
	parsedExt, err := parseExt(ext)
	if err != nil {
		return nil, errMalformedStamp
	}

	return &stamp{
		raw:      raw,
		ver:      1,
		bits:     uint8(bitsVal),
		date:     parsedDate,
		resource: parsedResource,
		ext:      parsedExt,
		rand:     rand,
		counter:  counter,
	}, nil
}

func parseStampDate(s string) (time.Time, error) {
	if len(s) != 12 {
		return time.Time{}, errMalformedStamp
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, errMalformedStamp
	}
	return t.UTC(), nil
}

// parseResource parses "<host>(<port>)<path>", the same format the toll
// mint writes into the challenge's resource field.
func parseResource(s string) (suspect.Destination, error) {
	m := resourcePattern.FindStringSubmatch(s)
	if m == nil {
		return suspect.Destination{}, errMalformedStamp
	}
	port, err := strconv.ParseUint(m[2], 10, 16)
	if err != nil {
		return suspect.Destination{}, errMalformedStamp
	}
	return suspect.NewDestination(m[1], uint16(port), m[3]), nil
}

// parseExt parses a ";"-joined list of "key=value" pairs. An empty string is
// a valid, empty extension set.
func parseExt(s string) (map[string]string, error) {
	ext := make(map[string]string)
	if s == "" {
		return ext, nil
	}
	for _, kv := range strings.Split(s, ";") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, errMalformedStamp
		}
		ext[parts[0]] = parts[1]
	}
	return ext, nil
}

// formatResource renders a Destination as the "<host>(<port>)<path>" form
// used both in mint challenges and stamp resource fields.
func formatResource(d suspect.Destination) string {
	return fmt.Sprintf("%s(%d)%s", d.Host, d.Port, d.Path)
}

// hasLeadingZeroBits reports whether digest begins with at least bits zero
// bits, counted most-significant-bit-first across bytes.
func hasLeadingZeroBits(digest [20]byte, bits uint8) bool {
	zeroBitsLeft := bits
	for _, b := range digest {
		if zeroBitsLeft == 0 {
			break
		}
		expected := zeroBitsLeft
		if expected > 8 {
			expected = 8
		}
		shift := 8 - expected
		if b>>shift != 0 {
			return false
		}
		zeroBitsLeft -= expected
	}
	return zeroBitsLeft == 0
}
