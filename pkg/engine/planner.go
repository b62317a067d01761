package engine

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/simflow/simflow/pkg/config"
	"github.com/simflow/simflow/pkg/errdefs"
	"github.com/simflow/simflow/pkg/template"
	"github.com/simflow/simflow/pkg/vars"
)

// Planner renders a compiled project into an executable Plan.
type Planner struct {
	store   *config.Store
	section string
	log     zerolog.Logger
}

// NewPlanner returns a planner bound to the store section of the project
// being planned.
func NewPlanner(store *config.Store, section string, log zerolog.Logger) *Planner {
	return &Planner{store: store, section: section, log: log}
}

// Plan resolves every selected scenario into a PlanNode with fully
// substituted step commands. Planning is atomic: any resolution failure
// aborts with no partial plan.
func (p *Planner) Plan(c *Compiled, opts PlanOptions) (*Plan, error) {
	groups, err := p.selectGroups(c.Setup, opts.Groups)
	if err != nil {
		return nil, err
	}

	sel := Selection{Steps: opts.Steps, Skip: opts.Skip}
	if err := c.Steps.Validate(sel); err != nil {
		return nil, err
	}

	sandboxDir, err := p.store.GetRequired(p.section, "Sim.SandboxDir")
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Project:     c.Project.Name,
		Distributed: opts.Distribute,
		CreatedAt:   time.Now().UTC(),
	}

	for _, group := range groups {
		scenarios, err := selectScenarios(group, opts.Scenarios)
		if err != nil {
			return nil, err
		}

		baselineToken := ""
		for _, scenario := range scenarios {
			node, err := p.planNode(c, group, scenario, sandboxDir, sel, opts.Distribute)
			if err != nil {
				return nil, err
			}
			if opts.Distribute {
				if scenario.IsBaseline {
					baselineToken = node.Token
				} else {
					if baselineToken == "" {
						p.log.Warn().
							Str("group", group.Name).
							Str("scenario", scenario.Name).
							Msg("baseline not selected; node submits without a dependency token")
					}
					node.DependsOn = baselineToken
				}
			}
			plan.Nodes = append(plan.Nodes, node)
			p.log.Debug().
				Str("group", group.Name).
				Str("scenario", scenario.Name).
				Int("steps", len(node.Steps)).
				Msg("planned scenario")
		}
	}

	return plan, nil
}

// selectGroups resolves the group selection: the named groups, or the
// setup's default group when none are named.
func (p *Planner) selectGroups(setup *template.Setup, names []string) ([]*template.Group, error) {
	if len(names) == 0 {
		group := setup.Group(setup.DefaultGroup)
		if group == nil {
			return nil, errdefs.NewSchedulingError("scenario setup declares no groups", nil).
				WithCode(errdefs.CodeUnknownSelection)
		}
		return []*template.Group{group}, nil
	}

	out := make([]*template.Group, 0, len(names))
	for _, name := range names {
		group := setup.Group(name)
		if group == nil {
			return nil, errdefs.NewSchedulingError("selection names an undeclared scenario group", nil).
				WithCode(errdefs.CodeUnknownSelection).
				WithName(name)
		}
		out = append(out, group)
	}
	return out, nil
}

// selectScenarios returns the group's scenarios to plan, baseline first.
// Inactive scenarios are planned only when named explicitly.
func selectScenarios(group *template.Group, names []string) ([]*template.Scenario, error) {
	if len(names) == 0 {
		out := make([]*template.Scenario, 0, len(group.Scenarios))
		if baseline := group.Scenario(group.Baseline); baseline != nil {
			out = append(out, baseline)
		}
		for _, s := range group.Scenarios {
			if !s.IsBaseline && s.Active {
				out = append(out, s)
			}
		}
		return out, nil
	}

	selected := map[string]bool{}
	for _, name := range names {
		if group.Scenario(name) == nil {
			return nil, errdefs.NewSchedulingError("selection names an undeclared scenario", nil).
				WithCode(errdefs.CodeUnknownSelection).
				WithName(name).
				WithSection(group.Name)
		}
		selected[name] = true
	}

	var out []*template.Scenario
	if selected[group.Baseline] {
		out = append(out, group.Scenario(group.Baseline))
	}
	for _, s := range group.Scenarios {
		if !s.IsBaseline && selected[s.Name] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (p *Planner) planNode(
	c *Compiled,
	group *template.Group,
	scenario *template.Scenario,
	sandboxDir string,
	sel Selection,
	distribute bool,
) (*PlanNode, error) {
	result := c.Graph.Result(group.Name, scenario.Name)
	if result == nil {
		return nil, errdefs.NewSchedulingError("scenario has no interpreted result", nil).
			WithCode(errdefs.CodeUnknownSelection).
			WithName(scenario.Name).
			WithSection(group.Name)
	}

	auto, err := p.autoVars(c, group, scenario, sandboxDir)
	if err != nil {
		return nil, err
	}
	userVars, err := p.userVars(c.Project, auto)
	if err != nil {
		return nil, err
	}

	node := &PlanNode{
		ID:         group.Name + "/" + scenario.Name,
		Group:      group.Name,
		Scenario:   scenario.Name,
		IsBaseline: scenario.IsBaseline,
		Baseline:   group.Baseline,
		Components: result.Components.Components(),
		Calls:      result.Calls,
	}
	if distribute {
		node.Token = uuid.NewString()
	}

	node.Artifacts, err = p.renderArtifacts(c.Project, auto, userVars, sandboxDir)
	if err != nil {
		return nil, err
	}
	artifactVars := map[string]string{}
	for _, a := range node.Artifacts {
		artifactVars[a.VarName] = a.Path
	}

	steps, err := c.Steps.FilterFor(scenario.IsBaseline, group.Name, sel)
	if err != nil {
		return nil, err
	}
	for _, step := range steps {
		stepVars := map[string]string{"step": step.Name}
		lookup := chainLookup{
			maps:  []map[string]string{stepVars, artifactVars, userVars, auto},
			store: p.store, section: p.section,
		}
		command, err := vars.Resolve(step.Command, lookup)
		if err != nil {
			return nil, err
		}
		node.Steps = append(node.Steps, PlannedStep{
			Name: step.Name, Seq: step.Seq, Optional: step.Optional, Command: command,
		})
	}

	return node, nil
}

// autoVars builds the per-scenario automatic variable set layered over the
// configuration store during command resolution.
func (p *Planner) autoVars(
	c *Compiled,
	group *template.Group,
	scenario *template.Scenario,
	sandboxDir string,
) (map[string]string, error) {
	groupDir := ""
	if group.UseGroupDir {
		groupDir = group.GroupSubdir
		if groupDir == "" {
			groupDir = group.Name
		}
	}

	baseline := group.Scenario(group.Baseline)
	scenarioDir := filepath.Join(sandboxDir, groupDir, scenario.Subdir)
	baselineDir := filepath.Join(sandboxDir, groupDir, baseline.Subdir)

	return map[string]string{
		"project":        c.Project.Name,
		"projectSubdir":  c.Project.Subdir,
		"scenario":       scenario.Name,
		"scenarioSubdir": scenario.Subdir,
		"scenarioGroup":  group.Name,
		"srcGroupDir":    groupDir,
		"baseline":       group.Baseline,
		"reference":      group.Baseline,
		"sandboxDir":     sandboxDir,
		"scenarioDir":    scenarioDir,
		"baselineDir":    baselineDir,
		"diffsDir":       filepath.Join(scenarioDir, "diffs"),
		"batchDir":       filepath.Join(scenarioDir, "batch"),
		"SEP":            string(os.PathSeparator),
		"PSEP":           string(os.PathListSeparator),
	}, nil
}

// userVars resolves the project's variable declarations. Declarations with
// eval set are substituted against the automatic variables and the store;
// others are kept literal.
func (p *Planner) userVars(project *template.Project, auto map[string]string) (map[string]string, error) {
	out := map[string]string{}
	for _, decl := range project.Vars {
		value := decl.Value
		if decl.Eval {
			lookup := chainLookup{
				maps:  []map[string]string{out, auto},
				store: p.store, section: p.section,
			}
			resolved, err := vars.Resolve(value, lookup)
			if err != nil {
				return nil, err
			}
			value = resolved
		}
		out[decl.Name] = value
	}
	return out, nil
}

// renderArtifacts renders the project's temporary-file declarations into
// plan artifacts with deterministic paths under the sandbox.
func (p *Planner) renderArtifacts(
	project *template.Project,
	auto, userVars map[string]string,
	sandboxDir string,
) ([]Artifact, error) {
	var out []Artifact
	for _, decl := range project.TmpFiles {
		dir := decl.Dir
		if dir == "" {
			dir = filepath.Join(sandboxDir, "tmp")
		}

		lookup := chainLookup{
			maps:  []map[string]string{userVars, auto},
			store: p.store, section: p.section,
		}
		if decl.Dir != "" {
			resolved, err := vars.Resolve(dir, lookup)
			if err != nil {
				return nil, err
			}
			dir = resolved
		}

		lines := make([]string, 0, len(decl.Text))
		for _, entry := range decl.Text {
			line := entry.Value
			if decl.EvalEnabled() {
				resolved, err := vars.Resolve(line, lookup)
				if err != nil {
					return nil, err
				}
				line = resolved
			}
			lines = append(lines, line)
		}

		out = append(out, Artifact{
			VarName: decl.VarName,
			Path:    filepath.Join(dir, decl.VarName+".txt"),
			Content: strings.Join(lines, "\n"),
			Delete:  decl.DeleteEnabled(),
		})
	}
	return out, nil
}

// chainLookup resolves variable references against the layered maps in
// order, falling back to the configuration store.
type chainLookup struct {
	maps    []map[string]string
	store   *config.Store
	section string
}

func (l chainLookup) Value(name string) (string, bool) {
	for _, m := range l.maps {
		if v, ok := m[name]; ok {
			return v, true
		}
	}
	return l.store.Raw(l.section, name)
}

func (l chainLookup) Optional(name string) bool {
	return strings.HasPrefix(name, config.EnvPrefix)
}
