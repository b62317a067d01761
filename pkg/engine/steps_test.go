package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/simflow/simflow/pkg/errdefs"
	"github.com/simflow/simflow/pkg/template"
)

func stepNames(steps []Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}

func TestMergeStepsAutoSeq(t *testing.T) {
	defaults := []template.StepDecl{
		{Name: "setup", Seq: 1, RunFor: template.RunForAll, Command: "setup"},
		{Name: "run", RunFor: template.RunForAll, Command: "run"},      // auto: 2
		{Name: "query", Seq: 10, RunFor: template.RunForAll, Command: "query"},
		{Name: "plot", RunFor: template.RunForAll, Command: "plot"},    // auto: 11
	}

	set, err := MergeSteps(defaults, nil)
	if err != nil {
		t.Fatalf("MergeSteps failed: %v", err)
	}

	steps := set.Steps()
	seqs := make([]int, len(steps))
	for i, s := range steps {
		seqs[i] = s.Seq
	}
	if diff := cmp.Diff([]int{1, 2, 10, 11}, seqs); diff != "" {
		t.Errorf("auto seq (-want +got):\n%s", diff)
	}
}

func TestMergeStepsOverrideReplacesCommand(t *testing.T) {
	defaults := []template.StepDecl{
		{Name: "setup", Seq: 1, RunFor: template.RunForAll, Command: "default-setup"},
		{Name: "run", Seq: 2, RunFor: template.RunForAll, Command: "default-run"},
	}
	overrides := []template.StepDecl{
		{Name: "run", Seq: 2, RunFor: template.RunForAll, Command: "custom-run"},
	}

	set, err := MergeSteps(defaults, overrides)
	if err != nil {
		t.Fatalf("MergeSteps failed: %v", err)
	}

	steps := set.Steps()
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if steps[1].Command != "custom-run" {
		t.Errorf("override command lost: %+v", steps[1])
	}
	if steps[0].Command != "default-setup" {
		t.Errorf("untouched default changed: %+v", steps[0])
	}
}

func TestMergeStepsOverrideKeepsFlags(t *testing.T) {
	defaults := []template.StepDecl{
		{Name: "setup", Seq: 1, RunFor: template.RunForAll, Optional: true, Command: "old"},
		{Name: "diff", Seq: 2, RunFor: template.RunForAll, Group: "tax-.*", Command: "diff"},
	}
	overrides := []template.StepDecl{
		{Name: "setup", Seq: 1, RunFor: template.RunForAll, Command: "new"},
		{Name: "diff", Seq: 2, RunFor: template.RunForAll, Command: "diff-v2"},
	}

	set, err := MergeSteps(defaults, overrides)
	if err != nil {
		t.Fatalf("MergeSteps failed: %v", err)
	}

	steps := set.Steps()
	if steps[0].Command != "new" || !steps[0].Optional {
		t.Errorf("optional flag lost on override: %+v", steps[0])
	}
	if steps[1].Command != "diff-v2" || steps[1].Group != "tax-.*" {
		t.Errorf("group restriction lost on override: %+v", steps[1])
	}
}

func TestMergeStepsSeqlessOverrideMatchesByName(t *testing.T) {
	defaults := []template.StepDecl{
		{Name: "run", Seq: 5, RunFor: template.RunForAll, Command: "default-run"},
	}
	overrides := []template.StepDecl{
		{Name: "run", RunFor: template.RunForAll, Command: "custom-run"},
	}

	set, err := MergeSteps(defaults, overrides)
	if err != nil {
		t.Fatalf("MergeSteps failed: %v", err)
	}
	steps := set.Steps()
	if len(steps) != 1 || steps[0].Seq != 5 || steps[0].Command != "custom-run" {
		t.Errorf("seqless override: %+v", steps)
	}
}

func TestMergeStepsEmptyCommandDeletes(t *testing.T) {
	defaults := []template.StepDecl{
		{Name: "setup", Seq: 1, RunFor: template.RunForAll, Command: "setup"},
		{Name: "diff", Seq: 2, RunFor: template.RunForPolicy, Command: "diff"},
	}
	overrides := []template.StepDecl{
		{Name: "diff", Seq: 2, RunFor: template.RunForPolicy},
	}

	set, err := MergeSteps(defaults, overrides)
	if err != nil {
		t.Fatalf("MergeSteps failed: %v", err)
	}
	if diff := cmp.Diff([]string{"setup"}, stepNames(set.Steps())); diff != "" {
		t.Errorf("delete law (-want +got):\n%s", diff)
	}
}

func TestMergeStepsUnmatchedOverrideAppends(t *testing.T) {
	defaults := []template.StepDecl{
		{Name: "setup", Seq: 1, RunFor: template.RunForAll, Command: "setup"},
	}
	overrides := []template.StepDecl{
		{Name: "extra", RunFor: template.RunForAll, Command: "extra"},
	}

	set, err := MergeSteps(defaults, overrides)
	if err != nil {
		t.Fatalf("MergeSteps failed: %v", err)
	}
	steps := set.Steps()
	if len(steps) != 2 || steps[1].Name != "extra" || steps[1].Seq != 2 {
		t.Errorf("appended override: %+v", steps)
	}
}

func TestMergeStepsErrors(t *testing.T) {
	dup := []template.StepDecl{
		{Name: "s", Seq: 1, RunFor: template.RunForAll, Command: "a"},
		{Name: "s", Seq: 1, RunFor: template.RunForAll, Command: "b"},
	}
	if _, err := MergeSteps(dup, nil); !errdefs.HasCode(err, errdefs.CodeMergeAmbiguity) {
		t.Errorf("duplicate defaults: %v", err)
	}

	defaults := []template.StepDecl{{Name: "s", Seq: 1, RunFor: template.RunForAll, Command: "a"}}
	danglingDelete := []template.StepDecl{{Name: "ghost", Seq: 1, RunFor: template.RunForAll}}
	if _, err := MergeSteps(defaults, danglingDelete); !errdefs.HasCode(err, errdefs.CodeMergeAmbiguity) {
		t.Errorf("dangling delete: %v", err)
	}
}

func makeStepSet(t *testing.T) *StepSet {
	t.Helper()
	set, err := MergeSteps([]template.StepDecl{
		{Name: "setup", Seq: 1, RunFor: template.RunForBaseline, Command: "setup"},
		{Name: "run", Seq: 2, RunFor: template.RunForAll, Command: "run"},
		{Name: "diff", Seq: 3, RunFor: template.RunForPolicy, Command: "diff"},
		{Name: "export", Seq: 4, RunFor: template.RunForAll, Optional: true, Command: "export"},
		{Name: "grouped", Seq: 5, RunFor: template.RunForAll, Group: "tax-.*", Command: "grouped"},
	}, nil)
	if err != nil {
		t.Fatalf("MergeSteps failed: %v", err)
	}
	return set
}

func TestFilterForRunKind(t *testing.T) {
	set := makeStepSet(t)

	baseline, err := set.FilterFor(true, "other", Selection{})
	if err != nil {
		t.Fatalf("FilterFor failed: %v", err)
	}
	if diff := cmp.Diff([]string{"setup", "run"}, stepNames(baseline)); diff != "" {
		t.Errorf("baseline steps (-want +got):\n%s", diff)
	}

	policy, err := set.FilterFor(false, "other", Selection{})
	if err != nil {
		t.Fatalf("FilterFor failed: %v", err)
	}
	if diff := cmp.Diff([]string{"run", "diff"}, stepNames(policy)); diff != "" {
		t.Errorf("policy steps (-want +got):\n%s", diff)
	}
}

func TestFilterForGroupRestriction(t *testing.T) {
	set := makeStepSet(t)

	matched, err := set.FilterFor(false, "tax-high", Selection{})
	if err != nil {
		t.Fatalf("FilterFor failed: %v", err)
	}
	if diff := cmp.Diff([]string{"run", "diff", "grouped"}, stepNames(matched)); diff != "" {
		t.Errorf("regexp group match (-want +got):\n%s", diff)
	}
}

func TestFilterForSelection(t *testing.T) {
	set := makeStepSet(t)

	// Optional steps run only when named explicitly.
	named, err := set.FilterFor(false, "g", Selection{Steps: []string{"export", "run"}})
	if err != nil {
		t.Fatalf("FilterFor failed: %v", err)
	}
	if diff := cmp.Diff([]string{"run", "export"}, stepNames(named)); diff != "" {
		t.Errorf("include selection (-want +got):\n%s", diff)
	}

	skipped, err := set.FilterFor(false, "g", Selection{Skip: []string{"diff"}})
	if err != nil {
		t.Fatalf("FilterFor failed: %v", err)
	}
	if diff := cmp.Diff([]string{"run"}, stepNames(skipped)); diff != "" {
		t.Errorf("skip selection (-want +got):\n%s", diff)
	}

	_, err = set.FilterFor(false, "g", Selection{Steps: []string{"ghost"}})
	if !errdefs.HasCode(err, errdefs.CodeUnknownSelection) {
		t.Errorf("unknown include: %v", err)
	}
	_, err = set.FilterFor(false, "g", Selection{Skip: []string{"ghost"}})
	if !errdefs.HasCode(err, errdefs.CodeUnknownSelection) {
		t.Errorf("unknown skip: %v", err)
	}
}

func TestStepSetNames(t *testing.T) {
	set, err := MergeSteps([]template.StepDecl{
		{Name: "run", Seq: 1, RunFor: template.RunForBaseline, Command: "a"},
		{Name: "run", Seq: 2, RunFor: template.RunForPolicy, Command: "b"},
		{Name: "diff", Seq: 3, RunFor: template.RunForAll, Command: "c"},
	}, nil)
	if err != nil {
		t.Fatalf("MergeSteps failed: %v", err)
	}
	if diff := cmp.Diff([]string{"run", "diff"}, set.Names()); diff != "" {
		t.Errorf("unique names (-want +got):\n%s", diff)
	}
}
