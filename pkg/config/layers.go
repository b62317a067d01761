package config

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/go-ini/ini"

	"github.com/simflow/simflow/pkg/errdefs"
)

// DefaultSection is the per-layer fallback section name.
const DefaultSection = "DEFAULT"

// EnvPrefix is the distinguishing prefix under which environment variables
// are addressable, as in a shell: {$HOME} reads the HOME environment variable.
const EnvPrefix = "$"

// Layer is one named configuration source: a mapping from section name to
// key/value pairs of raw (unresolved) strings, with an implicit DEFAULT
// section. Layers are ordered lowest to highest precedence in a Store.
type Layer struct {
	name     string
	sections map[string]map[string]string
}

func newLayer(name string) *Layer {
	return &Layer{
		name:     name,
		sections: map[string]map[string]string{DefaultSection: {}},
	}
}

// Name returns the layer's name, used in diagnostics.
func (l *Layer) Name() string { return l.name }

func (l *Layer) set(section, key, value string) {
	sec, ok := l.sections[section]
	if !ok {
		sec = map[string]string{}
		l.sections[section] = sec
	}
	sec[key] = value
}

// value looks up key in section, falling back to this same layer's DEFAULT
// section. This ordering is what lets a higher layer's project section beat
// that layer's own DEFAULT, which in turn beats any lower layer.
func (l *Layer) value(section, key string) (string, bool) {
	if sec, ok := l.sections[section]; ok {
		if v, ok := sec[key]; ok {
			return v, true
		}
	}
	if v, ok := l.sections[DefaultSection][key]; ok {
		return v, true
	}
	return "", false
}

func (l *Layer) sectionNames() []string {
	names := make([]string, 0, len(l.sections))
	for name := range l.sections {
		names = append(names, name)
	}
	return names
}

// keysVisible collects every key reachable from section in this layer,
// including DEFAULT fallback keys.
func (l *Layer) keysVisible(section string, into map[string]struct{}) {
	for key := range l.sections[DefaultSection] {
		into[key] = struct{}{}
	}
	if sec, ok := l.sections[section]; ok {
		for key := range sec {
			into[key] = struct{}{}
		}
	}
}

// Loader assembles configuration layers and produces an immutable Store.
// Layers are added lowest precedence first; the environment pseudo-layer is
// placed below all file layers and command-line overrides above them.
type Loader struct {
	layers    []*Layer
	overrides *Layer
	environ   []string
}

// NewLoader creates a Loader seeded with the environment pseudo-layer and
// the built-in Home and User values.
func NewLoader() *Loader {
	return &Loader{
		overrides: newLayer("overrides"),
		environ:   os.Environ(),
	}
}

// AddSource parses INI data from memory and appends it as the next layer.
func (ld *Loader) AddSource(name string, data []byte) error {
	layer, err := parseINI(name, data)
	if err != nil {
		return err
	}
	ld.layers = append(ld.layers, layer)
	return nil
}

// AddFile parses an INI file and appends it as the next layer. A missing
// file is an error only when required is true; otherwise it is skipped.
func (ld *Loader) AddFile(name, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return errdefs.NewConfigError(fmt.Sprintf("cannot read config file %s", path), err).
			WithCode(errdefs.CodeFormat)
	}
	return ld.AddSource(name, data)
}

// Set records a command-line override, which takes precedence over every
// file layer. spec is of the form "key=value" or "section:key=value"; a
// bare key sets the value in DEFAULT. A colon separates the section because
// variable names themselves contain dots (e.g. Sim.SandboxDir).
func (ld *Loader) Set(spec string) error {
	eq := strings.IndexByte(spec, '=')
	if eq < 1 {
		return errdefs.NewConfigError(fmt.Sprintf("malformed override %q, want [section:]key=value", spec), nil).
			WithCode(errdefs.CodeFormat)
	}
	key, value := spec[:eq], spec[eq+1:]

	section := DefaultSection
	if colon := strings.IndexByte(key, ':'); colon > 0 {
		section, key = key[:colon], key[colon+1:]
	}

	ld.overrides.set(section, key, value)
	return nil
}

// SetValue records a command-line override with an explicit section.
func (ld *Loader) SetValue(section, key, value string) {
	if section == "" {
		section = DefaultSection
	}
	ld.overrides.set(section, key, value)
}

// Load finalizes the layer stack and returns the immutable Store.
func (ld *Loader) Load() (*Store, error) {
	env := newLayer("environment")
	for _, kv := range ld.environ {
		eq := strings.IndexByte(kv, '=')
		if eq < 1 {
			continue
		}
		env.set(DefaultSection, EnvPrefix+kv[:eq], kv[eq+1:])
	}

	builtin := newLayer("builtin")
	if home, err := os.UserHomeDir(); err == nil {
		builtin.set(DefaultSection, "Home", home)
	}
	if user := os.Getenv("USER"); user != "" {
		builtin.set(DefaultSection, "User", user)
	} else {
		builtin.set(DefaultSection, "User", "unknown")
	}
	builtin.set(DefaultSection, "Platform", runtime.GOOS)

	// Lowest to highest: environment, builtins, files in the order added,
	// then command-line overrides.
	stack := make([]*Layer, 0, len(ld.layers)+3)
	stack = append(stack, env, builtin)
	stack = append(stack, ld.layers...)
	stack = append(stack, ld.overrides)

	return &Store{layers: stack}, nil
}

// parseINI reads INI data into a Layer. Keys are case-sensitive; values are
// kept raw so the Store can interpolate them across layers.
func parseINI(name string, data []byte) (*Layer, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment: true,
	}, data)
	if err != nil {
		return nil, errdefs.NewConfigError(fmt.Sprintf("cannot parse config source %s", name), err).
			WithCode(errdefs.CodeFormat)
	}

	layer := newLayer(name)
	for _, section := range file.Sections() {
		sectionName := section.Name()
		if sectionName == ini.DefaultSection {
			sectionName = DefaultSection
		}
		for _, key := range section.Keys() {
			layer.set(sectionName, key.Name(), key.Value())
		}
	}
	return layer, nil
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
