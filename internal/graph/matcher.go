package graph

import (
	"fmt"
	"strings"
)

// Matcher decides whether a view definition refers to a relation name.
type Matcher interface {
	References(definition, name string) bool
}

// SubstringMatcher treats any occurrence of name inside the definition as a
// reference. Names that prefix other identifiers produce false positives.
type SubstringMatcher struct{}

func (SubstringMatcher) References(definition, name string) bool {
	return name != "" && strings.Contains(definition, name)
}

// IdentifierMatcher only accepts occurrences of name that are not part of a
// longer identifier. Matching is case-insensitive, as PostgreSQL folds
// unquoted identifiers.
type IdentifierMatcher struct{}

func (IdentifierMatcher) References(definition, name string) bool {
	if name == "" {
		return false
	}
	def := strings.ToLower(definition)
	needle := strings.ToLower(name)
	for from := 0; from < len(def); {
		i := strings.Index(def[from:], needle)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(needle)
		if (start == 0 || !isIdentByte(def[start-1])) && (end == len(def) || !isIdentByte(def[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' ||
		('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9') ||
		b >= 0x80
}

// MatcherByName returns the matcher registered under name.
func MatcherByName(name string) (Matcher, error) {
	switch name {
	case "", "substring":
		return SubstringMatcher{}, nil
	case "identifier":
		return IdentifierMatcher{}, nil
	default:
		return nil, fmt.Errorf("unknown matcher: %s (supported: substring, identifier)", name)
	}
}
