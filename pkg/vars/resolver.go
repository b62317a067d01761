// Package vars implements recursive template-variable substitution.
//
// Two reference spellings are recognized: {name} and %(name)s. Substitution
// is textual and recursive: a substituted value is itself resolved before it
// is spliced in, so variables may reference other variables to any depth.
// Resolution is idempotent because fully resolved strings contain no
// reference tokens.
package vars

import (
	"regexp"
	"strings"

	"github.com/simflow/simflow/pkg/errdefs"
)

// Lookup supplies values for variable references found in template text.
type Lookup interface {
	// Value returns the raw (possibly unresolved) value for name.
	// ok is false when the name is unknown to this lookup.
	Value(name string) (value string, ok bool)

	// Optional reports whether an unknown name resolves to the empty
	// string instead of failing resolution.
	Optional(name string) bool
}

// MapLookup is a Lookup over a plain map. Unknown names are never optional.
type MapLookup map[string]string

// Value implements Lookup.
func (m MapLookup) Value(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// Optional implements Lookup.
func (m MapLookup) Optional(string) bool { return false }

// Reference tokens: {name} and %(name)s. A brace token may not contain
// braces, so nested or unbalanced braces pass through untouched.
var tokenPattern = regexp.MustCompile(`\{([^{}]+)\}|%\(([^()]+)\)s`)

// Resolve substitutes every recognized reference token in text using lookup,
// recursively resolving substituted values. It fails with a config error
// naming the offending token when lookup cannot supply a value for a
// non-optional reference, and with a cyclic-reference error when resolving a
// variable requires resolving itself, directly or transitively.
func Resolve(text string, lookup Lookup) (string, error) {
	return resolve(text, lookup, nil)
}

// HasReferences reports whether text contains any reference token.
func HasReferences(text string) bool {
	return tokenPattern.MatchString(text)
}

func resolve(text string, lookup Lookup, active []string) (string, error) {
	if !strings.ContainsAny(text, "{%") {
		return text, nil
	}

	var resolveErr error

	result := tokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		if resolveErr != nil {
			return match
		}

		name := tokenName(match)

		for _, a := range active {
			if a == name {
				resolveErr = errdefs.NewConfigError(
					"cyclic variable reference: "+strings.Join(append(active, name), " -> "), nil).
					WithCode(errdefs.CodeCyclicReference).
					WithName(name)
				return match
			}
		}

		value, ok := lookup.Value(name)
		if !ok {
			if lookup.Optional(name) {
				return ""
			}
			resolveErr = errdefs.NewConfigError("undefined variable reference", nil).
				WithCode(errdefs.CodeRequiredMissing).
				WithName(name)
			return match
		}

		resolved, err := resolve(value, lookup, append(active, name))
		if err != nil {
			resolveErr = err
			return match
		}
		return resolved
	})

	if resolveErr != nil {
		return "", resolveErr
	}
	return result, nil
}

func tokenName(match string) string {
	groups := tokenPattern.FindStringSubmatch(match)
	if groups[1] != "" {
		return groups[1]
	}
	return groups[2]
}
