// Package description implements the predicate types gates use to decide
// whether a suspect matches a rule.
package description

import (
	"fmt"
	"regexp"

	"github.com/ascendise/tollkeeper-gateway/internal/suspect"
)

// Field names the Suspect attribute a Regex description matches against.
type Field string

const (
	FieldClientIP    Field = "client_ip"
	FieldUserAgent   Field = "user_agent"
	FieldDestination Field = "destination"
)

// Description is a predicate over a Suspect.
type Description interface {
	Matches(s suspect.Suspect) bool
}

// Stub is a constant-answer description, useful for tests and for
// catch-all orders.
type Stub struct {
	IsMatch bool
}

// Matches always returns IsMatch.
func (s Stub) Matches(suspect.Suspect) bool {
	return s.IsMatch
}

// Regex matches a Suspect field against a compiled pattern, optionally
// negated.
type Regex struct {
	field   Field
	negate  bool
	pattern *regexp.Regexp
}

// NewRegex compiles pattern for field, returning an error if the pattern is
// invalid. Patterns are rejected at configuration time, never at request
// time.
func NewRegex(field Field, pattern string, negate bool) (Regex, error) {
	switch field {
	case FieldClientIP, FieldUserAgent, FieldDestination:
	default:
		return Regex{}, fmt.Errorf("tollkeeper: unknown description field %q", field)
	}
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return Regex{}, fmt.Errorf("tollkeeper: invalid regex pattern %q: %w", pattern, err)
	}
	return Regex{field: field, negate: negate, pattern: compiled}, nil
}

// Matches applies the compiled pattern to the selected field, inverting the
// result when negate is set. All three fields are always present on a
// Suspect, so there is no "field absent" branch to special-case.
func (r Regex) Matches(s suspect.Suspect) bool {
	value := r.fieldValue(s)
	matched := r.pattern.MatchString(value)
	if r.negate {
		return !matched
	}
	return matched
}

func (r Regex) fieldValue(s suspect.Suspect) string {
	switch r.field {
	case FieldClientIP:
		return s.ClientIP
	case FieldUserAgent:
		return s.UserAgent
	case FieldDestination:
		return s.Destination.String()
	default:
		return ""
	}
}
