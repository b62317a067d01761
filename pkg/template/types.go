package template

import (
	"regexp"
	"strings"
)

// ActionKind discriminates the Action variant.
type ActionKind string

const (
	ActionAdd      ActionKind = "add"
	ActionInsert   ActionKind = "insert"
	ActionReplace  ActionKind = "replace"
	ActionDelete   ActionKind = "delete"
	ActionFunction ActionKind = "function"
	ActionIf       ActionKind = "if"
)

// Action is one entry in a scenario's ordered action list. The populated
// fields depend on Kind:
//
//	Add:      Name, File, Dynamic
//	Insert:   Name, After, File, Dynamic
//	Replace:  Name, File, Dynamic
//	Delete:   Name
//	Function: Name, Args, Dynamic
//	If:       Value1, Value2, Matches, Then, Else
type Action struct {
	Kind    ActionKind
	Name    string
	File    string
	After   string
	Args    string
	Dynamic bool

	Value1  string
	Value2  string
	Matches bool
	Then    []Action
	Else    []Action
}

// format substitutes iterator values into the action's string fields,
// recursing into If branches. Unknown tokens are left in place; they are
// deferred variables (scenarioDir, baselineDir) resolved at planning time.
func (a *Action) format(dict map[string]string) {
	a.Name = FormatTokens(a.Name, dict)
	a.File = FormatTokens(a.File, dict)
	a.After = FormatTokens(a.After, dict)
	a.Args = FormatTokens(a.Args, dict)
	a.Value1 = FormatTokens(a.Value1, dict)
	a.Value2 = FormatTokens(a.Value2, dict)
	for i := range a.Then {
		a.Then[i].format(dict)
	}
	for i := range a.Else {
		a.Else[i].format(dict)
	}
}

// Scenario is one concrete scenario after iterator expansion.
type Scenario struct {
	Name       string
	IsBaseline bool
	Active     bool
	Subdir     string
	Actions    []Action
}

// BaselineRef names another group's baseline scenario, from which this
// group's baseline inherits its initial component list.
type BaselineRef struct {
	GroupName    string
	ScenarioName string
}

// Group is one concrete scenario group after iterator expansion. Exactly
// one of its scenarios is the baseline.
type Group struct {
	Name           string
	UseGroupDir    bool
	GroupSubdir    string
	IsDefault      bool
	BaselineSource *BaselineRef
	Scenarios      []*Scenario
	Baseline       string // name of the baseline scenario

	index map[string]*Scenario
}

// Scenario returns the named scenario, or nil.
func (g *Group) Scenario(name string) *Scenario {
	return g.index[name]
}

// ScenarioNames returns the scenario names in declaration order.
func (g *Group) ScenarioNames() []string {
	names := make([]string, len(g.Scenarios))
	for i, s := range g.Scenarios {
		names[i] = s.Name
	}
	return names
}

// Setup is the fully expanded scenario setup document.
type Setup struct {
	Name         string
	DefaultGroup string
	Iterators    map[string]*Iterator
	Groups       []*Group

	index map[string]*Group
}

// Group returns the named group, or nil.
func (s *Setup) Group(name string) *Group {
	return s.index[name]
}

// GroupNames returns the group names in declaration order.
func (s *Setup) GroupNames() []string {
	names := make([]string, len(s.Groups))
	for i, g := range s.Groups {
		names[i] = g.Name
	}
	return names
}

// RunFor restricts a step to baseline scenarios, policy scenarios, or all.
type RunFor string

const (
	RunForAll      RunFor = "all"
	RunForBaseline RunFor = "baseline"
	RunForPolicy   RunFor = "policy"
)

// StepDecl is one step declaration as written in the workflow file. Seq 0
// means auto-assigned. An empty Command in an override declaration deletes
// the matching default step.
type StepDecl struct {
	Name     string `yaml:"name" validate:"required"`
	Seq      int    `yaml:"seq"`
	RunFor   RunFor `yaml:"runFor"`
	Group    string `yaml:"group"`
	Optional bool   `yaml:"optional"`
	Command  string `yaml:"command"`
}

// VarDecl is a user variable declaration. When Eval is set the value is
// substituted against the variable dictionary at planning time; otherwise
// it is kept literal.
type VarDecl struct {
	Name  string `yaml:"name" validate:"required"`
	Value string `yaml:"value"`
	Eval  bool   `yaml:"eval"`
}

// TextEntry is one line of a temporary-file declaration, optionally tagged
// so project declarations can override individual default lines.
type TextEntry struct {
	Tag   string `yaml:"tag"`
	Value string `yaml:"value"`
}

// TmpFileDecl declares a named temporary file whose rendered content is
// materialized for collaborators; the variable named by VarName receives
// the generated path.
type TmpFileDecl struct {
	VarName string      `yaml:"varName" validate:"required"`
	Dir     string      `yaml:"dir"`
	Eval    *bool       `yaml:"eval"`    // default true
	Delete  *bool       `yaml:"delete"`  // default true
	Replace bool        `yaml:"replace"` // discard default text entries
	Text    []TextEntry `yaml:"text"`
}

// EvalEnabled reports whether {name} substitution applies to the text.
func (t *TmpFileDecl) EvalEnabled() bool { return t.Eval == nil || *t.Eval }

// DeleteEnabled reports whether the collaborator should remove the file
// after the run.
func (t *TmpFileDecl) DeleteEnabled() bool { return t.Delete == nil || *t.Delete }

// Project is one project declaration with its merged defaults.
type Project struct {
	Name          string
	Subdir        string
	ScenariosFile string
	DefaultSteps  []StepDecl
	Steps         []StepDecl
	Vars          []VarDecl
	TmpFiles      []TmpFileDecl
}

// Workflow is the loaded workflow document.
type Workflow struct {
	Projects []*Project

	index map[string]*Project
}

// Project returns the named project, or nil.
func (w *Workflow) Project(name string) *Project {
	return w.index[name]
}

// ProjectNames returns the project names in declaration order.
func (w *Workflow) ProjectNames() []string {
	names := make([]string, len(w.Projects))
	for i, p := range w.Projects {
		names[i] = p.Name
	}
	return names
}

var bracePattern = regexp.MustCompile(`\{([^{}]+)\}`)

// FormatTokens replaces every {name} token whose name appears in dict,
// leaving unknown tokens untouched for later resolution.
func FormatTokens(s string, dict map[string]string) string {
	if s == "" || !strings.ContainsRune(s, '{') {
		return s
	}
	return bracePattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := dict[name]; ok {
			return value
		}
		return match
	})
}

// SplitAndStrip splits s on delim and trims surrounding whitespace from
// each element. Empty elements are preserved.
func SplitAndStrip(s, delim string) []string {
	items := strings.Split(s, delim)
	for i := range items {
		items[i] = strings.TrimSpace(items[i])
	}
	return items
}
