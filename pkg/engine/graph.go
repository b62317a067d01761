package engine

import (
	"strings"

	"github.com/simflow/simflow/pkg/errdefs"
	"github.com/simflow/simflow/pkg/template"
)

// ScenarioGraph holds the interpreted component lists for every active
// scenario, with baseline inheritance across groups already resolved.
type ScenarioGraph struct {
	Setup *template.Setup

	// results maps group name to scenario name to interpretation. The
	// baseline's entry is its final state, which seeds the group's policy
	// scenarios and any group that names it as baseline source.
	results map[string]map[string]*Interpretation
}

// Result returns the interpretation for a scenario, or nil.
func (g *ScenarioGraph) Result(group, scenario string) *Interpretation {
	return g.results[group][scenario]
}

type graphColor int

const (
	colorWhite graphColor = iota // unvisited
	colorGray                    // on the current resolution path
	colorBlack                   // fully resolved
)

type graphBuilder struct {
	setup    *template.Setup
	registry *Registry
	results  map[string]map[string]*Interpretation
	colors   map[string]graphColor
	path     []string
}

// BuildGraph interprets every active scenario of the setup. Groups are
// resolved in baseline-source dependency order using depth-first traversal
// with three-color marking, so a baseline chain like a -> b -> a is
// reported as a cycle rather than recursing forever.
func BuildGraph(setup *template.Setup, reg *Registry) (*ScenarioGraph, error) {
	b := &graphBuilder{
		setup:    setup,
		registry: reg,
		results:  make(map[string]map[string]*Interpretation, len(setup.Groups)),
		colors:   make(map[string]graphColor, len(setup.Groups)),
	}
	for _, group := range setup.Groups {
		if err := b.resolve(group); err != nil {
			return nil, err
		}
	}
	return &ScenarioGraph{Setup: setup, results: b.results}, nil
}

func (b *graphBuilder) resolve(group *template.Group) error {
	switch b.colors[group.Name] {
	case colorBlack:
		return nil
	case colorGray:
		cycle := append(b.path, group.Name)
		return errdefs.NewTemplateError(
			"baseline sources form a cycle: "+strings.Join(cycle, " -> "), nil).
			WithCode(errdefs.CodeCyclicBaseline).
			WithName(group.Name)
	}

	b.colors[group.Name] = colorGray
	b.path = append(b.path, group.Name)

	initial, err := b.baselineSeed(group)
	if err != nil {
		return err
	}

	baseline := group.Scenario(group.Baseline)
	baselineResult, err := Interpret(initial.Components, baseline.Actions, b.registry)
	if err != nil {
		return err
	}

	groupResults := map[string]*Interpretation{group.Baseline: baselineResult}
	for _, scenario := range group.Scenarios {
		if scenario.IsBaseline || !scenario.Active {
			continue
		}
		result, err := Interpret(baselineResult.Components, scenario.Actions, b.registry)
		if err != nil {
			return err
		}
		groupResults[scenario.Name] = result
	}

	b.results[group.Name] = groupResults
	b.path = b.path[:len(b.path)-1]
	b.colors[group.Name] = colorBlack
	return nil
}

// baselineSeed returns the component list the group's baseline starts
// from: empty unless the group names a baseline source, in which case it
// is the referenced baseline's final state.
func (b *graphBuilder) baselineSeed(group *template.Group) (*Interpretation, error) {
	if group.BaselineSource == nil {
		return &Interpretation{Components: NewComponentList()}, nil
	}

	ref := group.BaselineSource
	source := b.setup.Group(ref.GroupName)
	if source == nil {
		return nil, errdefs.NewTemplateError("baseline source names an unknown group", nil).
			WithCode(errdefs.CodeUnknownComponent).
			WithName(ref.GroupName).
			WithSection(group.Name)
	}
	if err := b.resolve(source); err != nil {
		return nil, err
	}

	scenario := source.Scenario(ref.ScenarioName)
	if scenario == nil {
		return nil, errdefs.NewTemplateError("baseline source names an unknown scenario", nil).
			WithCode(errdefs.CodeUnknownComponent).
			WithName(ref.GroupName + "/" + ref.ScenarioName).
			WithSection(group.Name)
	}
	if !scenario.IsBaseline {
		return nil, errdefs.NewTemplateError("baseline source must name the source group's baseline", nil).
			WithCode(errdefs.CodeMissingBaseline).
			WithName(ref.GroupName + "/" + ref.ScenarioName).
			WithSection(group.Name)
	}

	return b.results[ref.GroupName][ref.ScenarioName].Clone(), nil
}
