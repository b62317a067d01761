package template

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/simflow/simflow/pkg/config"
	"github.com/simflow/simflow/pkg/errdefs"
)

var validate = validator.New()

// Document shapes as written in scenarios.yaml. Lists are held as raw YAML
// nodes so conditional and comment wrappers can be resolved before decoding.
type setupDoc struct {
	Name         string      `yaml:"name"`
	DefaultGroup string      `yaml:"default-group"`
	Iterators    []yaml.Node `yaml:"iterators"`
	Groups       []yaml.Node `yaml:"groups"`
}

type groupDecl struct {
	Name           string      `yaml:"name" validate:"required"`
	UseGroupDir    bool        `yaml:"use-group-dir"`
	GroupSubdir    string      `yaml:"group-subdir"`
	Default        bool        `yaml:"default"`
	Iterator       string      `yaml:"iterator"`
	BaselineSource string      `yaml:"baseline-source"`
	Scenarios      []yaml.Node `yaml:"scenarios"`
}

type scenarioDecl struct {
	Name     string      `yaml:"name" validate:"required"`
	Baseline bool        `yaml:"baseline"`
	Active   *bool       `yaml:"active"`
	Iterator string      `yaml:"iterator"`
	Subdir   string      `yaml:"subdir"`
	Actions  []yaml.Node `yaml:"actions"`
}

// LoadSetupFile reads and expands a scenario setup file. Conditional
// wrappers are evaluated against the store using the given project section.
func LoadSetupFile(path string, store *config.Store, section string) (*Setup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.NewTemplateError(fmt.Sprintf("cannot read scenario setup file %s", path), err).
			WithCode(errdefs.CodeFormat)
	}
	return LoadSetup(data, store, section)
}

// LoadSetup parses, conditionally filters, validates, and iterator-expands
// a scenario setup document.
func LoadSetup(data []byte, store *config.Store, section string) (*Setup, error) {
	var doc setupDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errdefs.NewTemplateError("malformed scenario setup document", err).
			WithCode(errdefs.CodeFormat)
	}

	setup := &Setup{
		Name:         doc.Name,
		DefaultGroup: doc.DefaultGroup,
		Iterators:    map[string]*Iterator{},
		index:        map[string]*Group{},
	}

	iterNodes, err := flattenNodes(doc.Iterators, store, section)
	if err != nil {
		return nil, err
	}
	for i := range iterNodes {
		var it Iterator
		if err := iterNodes[i].Decode(&it); err != nil {
			return nil, errdefs.NewTemplateError("malformed iterator declaration", err).
				WithCode(errdefs.CodeMalformedIterator)
		}
		if err := validate.Struct(&it); err != nil {
			return nil, errdefs.NewTemplateError("invalid iterator declaration", err).
				WithCode(errdefs.CodeMalformedIterator)
		}
		if _, exists := setup.Iterators[it.Name]; exists {
			return nil, errdefs.NewTemplateError("iterator is declared twice", nil).
				WithCode(errdefs.CodeDuplicateName).
				WithName(it.Name)
		}
		if err := it.compile(); err != nil {
			return nil, err
		}
		setup.Iterators[it.Name] = &it
	}

	groupNodes, err := flattenNodes(doc.Groups, store, section)
	if err != nil {
		return nil, err
	}

	ex := expander{setup: setup, store: store, section: section, dict: map[string]string{}}
	for i := range groupNodes {
		var decl groupDecl
		if err := groupNodes[i].Decode(&decl); err != nil {
			return nil, errdefs.NewTemplateError("malformed scenario group declaration", err).
				WithCode(errdefs.CodeFormat)
		}
		if err := validate.Struct(&decl); err != nil {
			return nil, errdefs.NewTemplateError("invalid scenario group declaration", err).
				WithCode(errdefs.CodeFormat)
		}
		if err := ex.expandGroup(&decl); err != nil {
			return nil, err
		}
	}

	if setup.DefaultGroup == "" && len(setup.Groups) > 0 {
		for _, g := range setup.Groups {
			if g.IsDefault {
				setup.DefaultGroup = g.Name
				break
			}
		}
		if setup.DefaultGroup == "" {
			setup.DefaultGroup = setup.Groups[0].Name
		}
	}

	return setup, nil
}

// expander carries the iterator substitution dictionary through the
// generalized nested loop over iterator values.
type expander struct {
	setup   *Setup
	store   *config.Store
	section string
	dict    map[string]string
}

// forEach runs fn once per combination of the named iterators' values,
// outermost first, or exactly once when iterRef is empty. iterRef may be a
// comma-delimited list of iterator names.
func (ex *expander) forEach(iterRef string, fn func() error) error {
	if strings.TrimSpace(iterRef) == "" {
		return fn()
	}

	names := SplitAndStrip(iterRef, ",")
	var loop func(depth int) error
	loop = func(depth int) error {
		if depth == len(names) {
			return fn()
		}
		it, ok := ex.setup.Iterators[names[depth]]
		if !ok {
			return errdefs.NewTemplateError("reference to undeclared iterator", nil).
				WithCode(errdefs.CodeMalformedIterator).
				WithName(names[depth])
		}
		for _, value := range it.Sequence() {
			ex.dict[it.Name] = value
			if err := loop(depth + 1); err != nil {
				return err
			}
		}
		delete(ex.dict, it.Name)
		return nil
	}
	return loop(0)
}

func (ex *expander) expandGroup(decl *groupDecl) error {
	return ex.forEach(decl.Iterator, func() error {
		name := FormatTokens(decl.Name, ex.dict)
		if _, exists := ex.setup.index[name]; exists {
			return errdefs.NewTemplateError("scenario group name is not unique after expansion", nil).
				WithCode(errdefs.CodeDuplicateName).
				WithName(name)
		}

		group := &Group{
			Name:        name,
			UseGroupDir: decl.UseGroupDir || decl.GroupSubdir != "",
			GroupSubdir: FormatTokens(decl.GroupSubdir, ex.dict),
			IsDefault:   decl.Default,
			index:       map[string]*Scenario{},
		}

		if src := FormatTokens(decl.BaselineSource, ex.dict); src != "" {
			parts := strings.SplitN(src, "/", 2)
			if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
				return errdefs.NewTemplateError(
					fmt.Sprintf("baseline source %q should be of the form group/scenario", src), nil).
					WithCode(errdefs.CodeFormat).
					WithName(name)
			}
			group.BaselineSource = &BaselineRef{GroupName: parts[0], ScenarioName: parts[1]}
		}

		scenarioNodes, err := flattenNodes(decl.Scenarios, ex.store, ex.section)
		if err != nil {
			return err
		}
		for i := range scenarioNodes {
			var sdecl scenarioDecl
			if err := scenarioNodes[i].Decode(&sdecl); err != nil {
				return errdefs.NewTemplateError("malformed scenario declaration", err).
					WithCode(errdefs.CodeFormat).
					WithSection(name)
			}
			if err := validate.Struct(&sdecl); err != nil {
				return errdefs.NewTemplateError("invalid scenario declaration", err).
					WithCode(errdefs.CodeFormat).
					WithSection(name)
			}
			if err := ex.expandScenario(group, &sdecl); err != nil {
				return err
			}
		}

		if group.Baseline == "" {
			return errdefs.NewTemplateError("scenario group declares no baseline scenario", nil).
				WithCode(errdefs.CodeMissingBaseline).
				WithName(name)
		}

		ex.setup.Groups = append(ex.setup.Groups, group)
		ex.setup.index[name] = group
		return nil
	})
}

func (ex *expander) expandScenario(group *Group, decl *scenarioDecl) error {
	actions, err := decodeActions(decl.Actions, ex.store, ex.section)
	if err != nil {
		return err
	}

	return ex.forEach(decl.Iterator, func() error {
		name := FormatTokens(decl.Name, ex.dict)
		if _, exists := group.index[name]; exists {
			return errdefs.NewTemplateError("scenario name is not unique after expansion", nil).
				WithCode(errdefs.CodeDuplicateName).
				WithName(name).
				WithSection(group.Name)
		}

		subdir := decl.Subdir
		if subdir == "" {
			subdir = decl.Name
		}

		scenario := &Scenario{
			Name:       name,
			IsBaseline: decl.Baseline,
			Active:     decl.Active == nil || *decl.Active,
			Subdir:     FormatTokens(subdir, ex.dict),
			Actions:    cloneActions(actions),
		}
		for i := range scenario.Actions {
			scenario.Actions[i].format(ex.dict)
		}

		if scenario.IsBaseline {
			if group.Baseline != "" {
				return errdefs.NewTemplateError("scenario group declares multiple baselines", nil).
					WithCode(errdefs.CodeDuplicateName).
					WithName(group.Name)
			}
			group.Baseline = name
		}

		group.Scenarios = append(group.Scenarios, scenario)
		group.index[name] = scenario
		return nil
	})
}

func cloneActions(actions []Action) []Action {
	if len(actions) == 0 {
		return nil
	}
	out := make([]Action, len(actions))
	for i, a := range actions {
		out[i] = a
		out[i].Then = cloneActions(a.Then)
		out[i].Else = cloneActions(a.Else)
	}
	return out
}
