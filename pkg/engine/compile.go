package engine

import (
	"github.com/rs/zerolog"

	"github.com/simflow/simflow/pkg/config"
	"github.com/simflow/simflow/pkg/errdefs"
	"github.com/simflow/simflow/pkg/template"
	"github.com/simflow/simflow/pkg/vars"
)

// Compiled bundles everything planning needs for one project: the merged
// project declaration, the expanded scenario setup, the interpreted
// scenario graph, and the merged step set.
type Compiled struct {
	Project *template.Project
	Setup   *template.Setup
	Graph   *ScenarioGraph
	Steps   *StepSet
}

// Compile loads and validates the project's workflow and scenario setup
// documents against the configuration store. All template, config, and
// scheduling errors surface here; a returned Compiled is fully consistent.
func Compile(store *config.Store, projectName string, log zerolog.Logger) (*Compiled, error) {
	section := store.ProjectSection(projectName)

	workflowFile, err := store.GetRequired(section, "Sim.ProjectFile")
	if err != nil {
		return nil, err
	}
	workflow, err := template.LoadWorkflowFile(workflowFile, store, section)
	if err != nil {
		return nil, err
	}

	name := projectName
	if name == "" {
		name = section
	}
	project := workflow.Project(name)
	if project == nil {
		return nil, errdefs.NewSchedulingError("workflow file declares no such project", nil).
			WithCode(errdefs.CodeUnknownSelection).
			WithName(name)
	}

	setupFile := project.ScenariosFile
	if setupFile == "" {
		if setupFile, err = store.GetRequired(section, "Sim.ScenarioSetupFile"); err != nil {
			return nil, err
		}
	} else if resolved, rerr := resolvePath(store, section, setupFile); rerr == nil {
		setupFile = resolved
	} else {
		return nil, rerr
	}

	setup, err := template.LoadSetupFile(setupFile, store, section)
	if err != nil {
		return nil, err
	}

	graph, err := BuildGraph(setup, NewRegistry())
	if err != nil {
		return nil, err
	}

	steps, err := MergeSteps(project.DefaultSteps, project.Steps)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("project", project.Name).
		Str("workflowFile", workflowFile).
		Str("setupFile", setupFile).
		Int("groups", len(setup.Groups)).
		Int("steps", len(steps.Steps())).
		Msg("compiled project")

	return &Compiled{Project: project, Setup: setup, Graph: graph, Steps: steps}, nil
}

// resolvePath substitutes configuration references in a path taken from a
// template document, so scenarios-file may use {Sim.ProjectDir} and friends.
func resolvePath(store *config.Store, section, path string) (string, error) {
	return vars.Resolve(path, store.Lookup(section))
}
