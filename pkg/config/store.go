// Package config implements the layered, cascading configuration store.
//
// Configuration is read from INI-style files stacked into layers of
// increasing precedence: bundled defaults, platform defaults, an optional
// site file, the user file, and finally command-line overrides. Environment
// variables sit below all file layers as a pseudo-layer addressable with the
// "$" prefix. For a requested (section, key), layers are scanned from
// highest to lowest precedence; within each layer the section is consulted
// first and then that same layer's DEFAULT section. The first layer
// producing a value wins.
//
// The Store is constructed once per invocation and is immutable thereafter,
// so it is safe for concurrent readers.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/simflow/simflow/pkg/errdefs"
	"github.com/simflow/simflow/pkg/vars"
)

// Store is the immutable, layered key/value store. Values are resolved
// lazily: raw values may reference other variables with {name} or %(name)s
// tokens, substituted recursively against the store itself.
type Store struct {
	layers []*Layer // lowest to highest precedence
}

// Raw returns the unresolved value for (section, key), or ok=false when no
// layer supplies one.
func (s *Store) Raw(section, key string) (string, bool) {
	for i := len(s.layers) - 1; i >= 0; i-- {
		if v, ok := s.layers[i].value(section, key); ok {
			return v, true
		}
	}
	// Sim.ProjectName defaults to the section (project) name itself when
	// no layer defines it.
	if key == ProjectNameKey && section != DefaultSection {
		return section, true
	}
	return "", false
}

// Get returns the resolved value for (section, key). ok is false when the
// key is absent from every layer after DEFAULT fallback; err is non-nil only
// when the key exists but resolution fails (undefined reference or cycle).
func (s *Store) Get(section, key string) (value string, ok bool, err error) {
	raw, ok := s.Raw(section, key)
	if !ok {
		return "", false, nil
	}
	value, err = vars.Resolve(raw, s.lookup(section))
	if err != nil {
		return "", true, err
	}
	return value, true, nil
}

// GetRequired returns the resolved value for (section, key), failing with a
// required-missing config error when no layer supplies the key.
func (s *Store) GetRequired(section, key string) (string, error) {
	value, ok, err := s.Get(section, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errdefs.NewConfigError("required configuration variable is not defined", nil).
			WithCode(errdefs.CodeRequiredMissing).
			WithName(key).
			WithSection(section)
	}
	return value, nil
}

// GetDefault returns the resolved value, or fallback when the key is absent.
func (s *Store) GetDefault(section, key, fallback string) (string, error) {
	value, ok, err := s.Get(section, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return fallback, nil
	}
	return value, nil
}

// GetBool coerces the value to a boolean. Accepted spellings, case
// insensitive: true/yes/on/1 and false/no/off/0.
func (s *Store) GetBool(section, key string) (bool, error) {
	value, err := s.GetRequired(section, key)
	if err != nil {
		return false, err
	}
	b, err := ParseBool(value)
	if err != nil {
		return false, err.(*errdefs.Error).WithName(key).WithSection(section)
	}
	return b, nil
}

// GetInt coerces the value to an integer.
func (s *Store) GetInt(section, key string) (int, error) {
	value, err := s.GetRequired(section, key)
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(value))
	if convErr != nil {
		return 0, errdefs.NewConfigError(fmt.Sprintf("value %q is not an integer", value), convErr).
			WithCode(errdefs.CodeCoercionFailed).
			WithName(key).
			WithSection(section)
	}
	return n, nil
}

// GetFloat coerces the value to a float.
func (s *Store) GetFloat(section, key string) (float64, error) {
	value, err := s.GetRequired(section, key)
	if err != nil {
		return 0, err
	}
	f, convErr := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if convErr != nil {
		return 0, errdefs.NewConfigError(fmt.Sprintf("value %q is not a number", value), convErr).
			WithCode(errdefs.CodeCoercionFailed).
			WithName(key).
			WithSection(section)
	}
	return f, nil
}

// Has reports whether (section, key) is defined in any layer.
func (s *Store) Has(section, key string) bool {
	_, ok := s.Raw(section, key)
	return ok
}

// Sections returns the union of section names across all layers, DEFAULT
// excluded, sorted.
func (s *Store) Sections() []string {
	set := map[string]struct{}{}
	for _, layer := range s.layers {
		for _, name := range layer.sectionNames() {
			if name != DefaultSection {
				set[name] = struct{}{}
			}
		}
	}
	return sortedNames(set)
}

// Keys returns every key visible from section across all layers, including
// DEFAULT fallback keys, sorted.
func (s *Store) Keys(section string) []string {
	set := map[string]struct{}{}
	for _, layer := range s.layers {
		layer.keysVisible(section, set)
	}
	return sortedNames(set)
}

// SectionValues returns the fully resolved view of a section: every visible
// key mapped to its resolved value. Keys whose values fail to resolve are
// reported via the returned error.
func (s *Store) SectionValues(section string) (map[string]string, error) {
	out := map[string]string{}
	for _, key := range s.Keys(section) {
		value, _, err := s.Get(section, key)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

// Lookup returns a vars.Lookup bound to section, for resolving template text
// against this store. Environment references ($NAME) that are undefined are
// treated as optional and resolve to the empty string, matching shell
// behavior.
func (s *Store) Lookup(section string) vars.Lookup {
	return s.lookup(section)
}

func (s *Store) lookup(section string) sectionLookup {
	return sectionLookup{store: s, section: section}
}

type sectionLookup struct {
	store   *Store
	section string
}

func (l sectionLookup) Value(name string) (string, bool) {
	return l.store.Raw(l.section, name)
}

func (l sectionLookup) Optional(name string) bool {
	return strings.HasPrefix(name, EnvPrefix)
}

// ParseBool converts the accepted boolean spellings. Any other value yields
// a coercion config error.
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return false, errdefs.NewConfigError(fmt.Sprintf("value %q is not a boolean", value), nil).
		WithCode(errdefs.CodeCoercionFailed)
}
