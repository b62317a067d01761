package engine

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/simflow/simflow/pkg/config"
	"github.com/simflow/simflow/pkg/errdefs"
	"github.com/simflow/simflow/pkg/template"
)

const plannerSetupDoc = `
default-group: taxes
groups:
  - name: taxes
    scenarios:
      - name: base
        baseline: true
        actions:
          - add: {name: energy, file: energy.yaml}
      - name: tax-25
        actions:
          - function: {name: taxCarbon, args: "rate=25"}
      - name: tax-50
        actions:
          - function: {name: taxCarbon, args: "rate=50"}
`

func compiledFixture(t *testing.T, store *config.Store, project *template.Project, setupDoc string, steps []template.StepDecl) *Compiled {
	t.Helper()
	setup, err := template.LoadSetup([]byte(setupDoc), store, "paper1")
	if err != nil {
		t.Fatalf("LoadSetup failed: %v", err)
	}
	graph, err := BuildGraph(setup, NewRegistry())
	if err != nil {
		t.Fatalf("BuildGraph failed: %v", err)
	}
	stepSet, err := MergeSteps(steps, nil)
	if err != nil {
		t.Fatalf("MergeSteps failed: %v", err)
	}
	return &Compiled{Project: project, Setup: setup, Graph: graph, Steps: stepSet}
}

func plannerFixture(t *testing.T) (*Planner, *Compiled) {
	t.Helper()
	store := engineStore(t, "[DEFAULT]\nSim.SandboxDir = /sandboxes/paper1\nSim.Shock = 2030\n")
	project := &template.Project{
		Name:   "paper1",
		Subdir: "paper1",
		Vars: []template.VarDecl{
			{Name: "years", Value: "2010-2100"},
			{Name: "outDir", Value: "{scenarioDir}/out", Eval: true},
		},
	}
	steps := []template.StepDecl{
		{Name: "setup", Seq: 1, RunFor: template.RunForBaseline, Command: "setup -s {scenario} -d {scenarioDir}"},
		{Name: "run", Seq: 2, RunFor: template.RunForAll, Command: "run -y {years} -o {outDir}"},
		{Name: "diff", Seq: 3, RunFor: template.RunForPolicy, Command: "diff {baselineDir} {scenarioDir} -x {Sim.Shock}"},
	}
	compiled := compiledFixture(t, store, project, plannerSetupDoc, steps)
	return NewPlanner(store, "paper1", zerolog.Nop()), compiled
}

func TestPlanBaselineBeforePolicies(t *testing.T) {
	planner, compiled := plannerFixture(t)

	plan, err := planner.Plan(compiled, PlanOptions{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	ids := make([]string, len(plan.Nodes))
	for i, n := range plan.Nodes {
		ids[i] = n.ID
	}
	want := []string{"taxes/base", "taxes/tax-25", "taxes/tax-50"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("node order (-want +got):\n%s", diff)
	}
	if !plan.Nodes[0].IsBaseline || plan.Nodes[1].IsBaseline {
		t.Error("baseline flag wrong")
	}
	if plan.Nodes[1].Baseline != "base" {
		t.Errorf("policy baseline = %q", plan.Nodes[1].Baseline)
	}
}

func TestPlanResolvesCommands(t *testing.T) {
	planner, compiled := plannerFixture(t)

	plan, err := planner.Plan(compiled, PlanOptions{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	base := plan.Nodes[0]
	if len(base.Steps) != 2 {
		t.Fatalf("baseline steps = %+v", base.Steps)
	}
	if got, want := base.Steps[0].Command, "setup -s base -d /sandboxes/paper1/base"; got != want {
		t.Errorf("setup command = %q, want %q", got, want)
	}
	if got, want := base.Steps[1].Command, "run -y 2010-2100 -o /sandboxes/paper1/base/out"; got != want {
		t.Errorf("run command = %q, want %q", got, want)
	}

	policy := plan.Nodes[1]
	last := policy.Steps[len(policy.Steps)-1]
	if got, want := last.Command, "diff /sandboxes/paper1/base /sandboxes/paper1/tax-25 -x 2030"; got != want {
		t.Errorf("diff command = %q, want %q", got, want)
	}

	for _, node := range plan.Nodes {
		for _, step := range node.Steps {
			if strings.ContainsAny(step.Command, "{}") {
				t.Errorf("unresolved reference in %q", step.Command)
			}
		}
	}
}

func TestPlanCarriesInterpretation(t *testing.T) {
	planner, compiled := plannerFixture(t)

	plan, err := planner.Plan(compiled, PlanOptions{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	policy := plan.Nodes[1]
	if len(policy.Components) != 1 || policy.Components[0].Name != "energy" {
		t.Errorf("components = %+v", policy.Components)
	}
	if len(policy.Calls) != 1 || policy.Calls[0].Args != "rate=25" {
		t.Errorf("calls = %+v", policy.Calls)
	}
}

func TestPlanDistributedTokens(t *testing.T) {
	planner, compiled := plannerFixture(t)

	plan, err := planner.Plan(compiled, PlanOptions{Distribute: true})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if !plan.Distributed {
		t.Error("plan not marked distributed")
	}

	base := plan.Nodes[0]
	if base.Token == "" || base.DependsOn != "" {
		t.Errorf("baseline token/deps: %+v", base)
	}
	for _, node := range plan.Nodes[1:] {
		if node.DependsOn != base.Token {
			t.Errorf("policy %s depends on %q, want %q", node.ID, node.DependsOn, base.Token)
		}
		if node.Token == "" || node.Token == base.Token {
			t.Errorf("policy token %q not unique", node.Token)
		}
	}
}

func TestPlanDistributedWithoutBaselineWarns(t *testing.T) {
	store := engineStore(t, "[DEFAULT]\nSim.SandboxDir = /sb\nSim.Shock = 2030\n")
	project := &template.Project{Name: "paper1"}
	steps := []template.StepDecl{
		{Name: "run", Seq: 1, RunFor: template.RunForAll, Command: "run {scenario}"},
	}
	compiled := compiledFixture(t, store, project, plannerSetupDoc, steps)

	var buf bytes.Buffer
	planner := NewPlanner(store, "paper1", zerolog.New(&buf))
	plan, err := planner.Plan(compiled, PlanOptions{
		Distribute: true,
		Scenarios:  []string{"tax-25"},
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	node := plan.Nodes[0]
	if node.Token == "" {
		t.Error("distributed node should carry a token")
	}
	if node.DependsOn != "" {
		t.Errorf("no baseline planned, DependsOn = %q", node.DependsOn)
	}
	if !strings.Contains(buf.String(), "without a dependency token") {
		t.Errorf("missing warning, log = %s", buf.String())
	}
}

func TestPlanSequentialHasNoTokens(t *testing.T) {
	planner, compiled := plannerFixture(t)

	plan, err := planner.Plan(compiled, PlanOptions{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	for _, node := range plan.Nodes {
		if node.Token != "" || node.DependsOn != "" {
			t.Errorf("sequential node carries tokens: %+v", node)
		}
	}
}

func TestPlanScenarioSelection(t *testing.T) {
	planner, compiled := plannerFixture(t)

	plan, err := planner.Plan(compiled, PlanOptions{Scenarios: []string{"tax-50"}})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan.Nodes) != 1 || plan.Nodes[0].ID != "taxes/tax-50" {
		t.Errorf("nodes = %+v", plan.Nodes)
	}

	_, err = planner.Plan(compiled, PlanOptions{Scenarios: []string{"ghost"}})
	if !errdefs.HasCode(err, errdefs.CodeUnknownSelection) {
		t.Errorf("unknown scenario: %v", err)
	}
	_, err = planner.Plan(compiled, PlanOptions{Groups: []string{"ghost"}})
	if !errdefs.HasCode(err, errdefs.CodeUnknownSelection) {
		t.Errorf("unknown group: %v", err)
	}
	_, err = planner.Plan(compiled, PlanOptions{Steps: []string{"ghost"}})
	if !errdefs.HasCode(err, errdefs.CodeUnknownSelection) {
		t.Errorf("unknown step: %v", err)
	}
}

func TestPlanUnresolvableCommandAborts(t *testing.T) {
	store := engineStore(t, "[DEFAULT]\nSim.SandboxDir = /sb\n")
	project := &template.Project{Name: "paper1"}
	steps := []template.StepDecl{
		{Name: "bad", Seq: 1, RunFor: template.RunForAll, Command: "use {Undefined.Var}"},
	}
	compiled := compiledFixture(t, store, project, plannerSetupDoc, steps)

	planner := NewPlanner(store, "paper1", zerolog.Nop())
	_, err := planner.Plan(compiled, PlanOptions{})
	if !errdefs.HasCode(err, errdefs.CodeRequiredMissing) {
		t.Errorf("expected REQUIRED_MISSING, got %v", err)
	}
}

func TestPlanRendersArtifacts(t *testing.T) {
	store := engineStore(t, "[DEFAULT]\nSim.SandboxDir = /sb\n")
	project := &template.Project{
		Name: "paper1",
		TmpFiles: []template.TmpFileDecl{{
			VarName: "queryFile",
			Text: []template.TextEntry{
				{Value: "query for {scenario}"},
				{Value: "static line"},
			},
		}},
	}
	steps := []template.StepDecl{
		{Name: "query", Seq: 1, RunFor: template.RunForAll, Command: "query -f {queryFile}"},
	}
	compiled := compiledFixture(t, store, project, plannerSetupDoc, steps)

	planner := NewPlanner(store, "paper1", zerolog.Nop())
	plan, err := planner.Plan(compiled, PlanOptions{Scenarios: []string{"base"}})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	node := plan.Nodes[0]
	if len(node.Artifacts) != 1 {
		t.Fatalf("artifacts = %+v", node.Artifacts)
	}
	a := node.Artifacts[0]
	if a.Path != "/sb/tmp/queryFile.txt" {
		t.Errorf("artifact path = %q", a.Path)
	}
	if a.Content != "query for base\nstatic line" {
		t.Errorf("artifact content = %q", a.Content)
	}
	if !a.Delete {
		t.Error("delete should default to true")
	}
	if got, want := node.Steps[0].Command, "query -f /sb/tmp/queryFile.txt"; got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
}

func TestPlanGroupDirectoryLayout(t *testing.T) {
	doc := `
groups:
  - name: g1
    use-group-dir: true
    group-subdir: src1
    scenarios:
      - {name: base, baseline: true}
      - {name: pol}
`
	store := engineStore(t, "[DEFAULT]\nSim.SandboxDir = /sb\n")
	project := &template.Project{Name: "p"}
	steps := []template.StepDecl{
		{Name: "echo", Seq: 1, RunFor: template.RunForAll, Command: "echo {scenarioDir} {baselineDir}"},
	}
	compiled := compiledFixture(t, store, project, doc, steps)

	planner := NewPlanner(store, "paper1", zerolog.Nop())
	plan, err := planner.Plan(compiled, PlanOptions{Groups: []string{"g1"}})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	policy := plan.Nodes[1]
	if got, want := policy.Steps[0].Command, "echo /sb/src1/pol /sb/src1/base"; got != want {
		t.Errorf("group dir layout: %q, want %q", got, want)
	}
}
