package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/simflow/simflow/pkg/errdefs"
	"github.com/simflow/simflow/pkg/template"
)

func TestInterpretMutations(t *testing.T) {
	initial := NewComponentList()
	mustAdd(t, initial, "energy", "land")

	actions := []template.Action{
		{Kind: template.ActionAdd, Name: "water", File: "water.yaml"},
		{Kind: template.ActionInsert, Name: "solar", After: "energy", File: "solar.yaml"},
		{Kind: template.ActionReplace, Name: "land", File: "land-v2.yaml"},
		{Kind: template.ActionDelete, Name: "energy"},
		{Kind: template.ActionFunction, Name: "setStopYear", Args: "2100"},
	}

	result, err := Interpret(initial, actions, NewRegistry())
	if err != nil {
		t.Fatalf("Interpret failed: %v", err)
	}

	if diff := cmp.Diff([]string{"solar", "land", "water"}, result.Components.Names()); diff != "" {
		t.Errorf("components (-want +got):\n%s", diff)
	}
	if land, _ := result.Components.Get("land"); land.File != "land-v2.yaml" {
		t.Errorf("replace lost: %+v", land)
	}
	wantCalls := []FunctionCall{{Name: "setStopYear", Args: "2100"}}
	if diff := cmp.Diff(wantCalls, result.Calls); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}

	// The initial list must be untouched.
	if diff := cmp.Diff([]string{"energy", "land"}, initial.Names()); diff != "" {
		t.Errorf("initial list mutated (-want +got):\n%s", diff)
	}
}

func TestInterpretIfBranching(t *testing.T) {
	thenAction := []template.Action{{Kind: template.ActionFunction, Name: "taxCarbon", Args: "r=1"}}
	elseAction := []template.Action{{Kind: template.ActionFunction, Name: "protectLand"}}

	tests := []struct {
		name    string
		value1  string
		value2  string
		matches bool
		want    string
	}{
		{"member chooses then", "25", "10, 25, 50", true, "taxCarbon"},
		{"non-member chooses else", "99", "10,25,50", true, "protectLand"},
		{"inverted membership", "25", "10,25,50", false, "protectLand"},
		{"inverted non-member", "99", "10,25,50", false, "taxCarbon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actions := []template.Action{{
				Kind: template.ActionIf, Value1: tt.value1, Value2: tt.value2,
				Matches: tt.matches, Then: thenAction, Else: elseAction,
			}}
			result, err := Interpret(NewComponentList(), actions, NewRegistry())
			if err != nil {
				t.Fatalf("Interpret failed: %v", err)
			}
			if len(result.Calls) != 1 || result.Calls[0].Name != tt.want {
				t.Errorf("calls = %+v, want %s", result.Calls, tt.want)
			}
		})
	}
}

func TestInterpretUnknownFunction(t *testing.T) {
	actions := []template.Action{{Kind: template.ActionFunction, Name: "conjureDragons"}}

	_, err := Interpret(NewComponentList(), actions, NewRegistry())
	if !errdefs.HasCode(err, errdefs.CodeUnknownFunction) {
		t.Errorf("expected UNKNOWN_FUNCTION, got %v", err)
	}
}

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry()

	if _, ok := reg.Lookup("taxCarbon"); !ok {
		t.Error("builtin taxCarbon missing")
	}
	if err := reg.Register(Capability{Name: "localTweak"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, ok := reg.Lookup("localTweak"); !ok {
		t.Error("registered capability missing")
	}
	if err := reg.Register(Capability{Name: "taxCarbon"}); !errdefs.HasCode(err, errdefs.CodeDuplicateName) {
		t.Errorf("duplicate register: %v", err)
	}
}
