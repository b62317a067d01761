package engine

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/simflow/simflow/pkg/errdefs"
	"github.com/simflow/simflow/pkg/template"
)

// Step is a schedulable workflow step after default/override merging.
type Step struct {
	Name     string          `json:"name"`
	Seq      int             `json:"seq"`
	RunFor   template.RunFor `json:"runFor"`
	Group    string          `json:"group,omitempty"`
	Optional bool            `json:"optional,omitempty"`
	Command  string          `json:"command"`

	declOrder int
}

// identity is the merge key. Two declarations with the same identity refer
// to the same step; the override's command wins.
type stepIdentity struct {
	Name   string
	Seq    int
	RunFor template.RunFor
}

// StepSet is the merged, seq-ordered step list for one project.
type StepSet struct {
	steps []Step
}

// MergeSteps combines a project's step declarations with the defaults.
// Sequence numbers left at zero are auto-assigned as one past the highest
// assigned so far, interleaving with explicit numbers in declaration
// order. An override matching a default by (name, seq, runFor) replaces
// its command; an override whose seq is omitted matches by (name, runFor)
// alone and keeps the default's seq. An empty override command deletes the
// step. Unmatched overrides are appended.
func MergeSteps(defaults, overrides []template.StepDecl) (*StepSet, error) {
	var steps []Step
	index := map[stepIdentity]int{}
	loose := map[string]int{} // (name, runFor) -> position, for seq-less overrides
	maxSeq := 0

	looseKey := func(name string, runFor template.RunFor) string {
		return name + "\x00" + string(runFor)
	}

	for i, d := range defaults {
		seq := d.Seq
		if seq == 0 {
			seq = maxSeq + 1
		}
		if seq > maxSeq {
			maxSeq = seq
		}
		id := stepIdentity{d.Name, seq, d.RunFor}
		if _, dup := index[id]; dup {
			return nil, errdefs.NewSchedulingError(
				fmt.Sprintf("step declared twice with seq %d and runFor %s", seq, d.RunFor), nil).
				WithCode(errdefs.CodeMergeAmbiguity).
				WithName(d.Name)
		}
		index[id] = len(steps)
		loose[looseKey(d.Name, d.RunFor)] = len(steps)
		steps = append(steps, Step{
			Name: d.Name, Seq: seq, RunFor: d.RunFor,
			Group: d.Group, Optional: d.Optional, Command: d.Command,
			declOrder: i,
		})
	}

	deleted := map[int]bool{}
	for i, o := range overrides {
		pos := -1
		if o.Seq != 0 {
			if p, ok := index[stepIdentity{o.Name, o.Seq, o.RunFor}]; ok {
				pos = p
			}
		} else if p, ok := loose[looseKey(o.Name, o.RunFor)]; ok {
			pos = p
		}

		if pos >= 0 {
			if deleted[pos] {
				return nil, errdefs.NewSchedulingError("step overridden after deletion", nil).
					WithCode(errdefs.CodeMergeAmbiguity).
					WithName(o.Name)
			}
			if o.Command == "" {
				deleted[pos] = true
				continue
			}
			// A matching override replaces only the command text; group
			// and optional keep the default's values.
			steps[pos].Command = o.Command
			continue
		}

		if o.Command == "" {
			return nil, errdefs.NewSchedulingError("deletion override matches no default step", nil).
				WithCode(errdefs.CodeMergeAmbiguity).
				WithName(o.Name)
		}

		seq := o.Seq
		if seq == 0 {
			seq = maxSeq + 1
		}
		if seq > maxSeq {
			maxSeq = seq
		}
		id := stepIdentity{o.Name, seq, o.RunFor}
		if _, dup := index[id]; dup {
			return nil, errdefs.NewSchedulingError(
				fmt.Sprintf("step declared twice with seq %d and runFor %s", seq, o.RunFor), nil).
				WithCode(errdefs.CodeMergeAmbiguity).
				WithName(o.Name)
		}
		index[id] = len(steps)
		steps = append(steps, Step{
			Name: o.Name, Seq: seq, RunFor: o.RunFor,
			Group: o.Group, Optional: o.Optional, Command: o.Command,
			declOrder: len(defaults) + i,
		})
	}

	kept := make([]Step, 0, len(steps))
	for i, s := range steps {
		if !deleted[i] {
			kept = append(kept, s)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Seq != kept[j].Seq {
			return kept[i].Seq < kept[j].Seq
		}
		return kept[i].declOrder < kept[j].declOrder
	})

	return &StepSet{steps: kept}, nil
}

// Steps returns the merged steps in execution order.
func (s *StepSet) Steps() []Step {
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}

// Names returns unique step names in execution order.
func (s *StepSet) Names() []string {
	seen := map[string]bool{}
	var names []string
	for _, step := range s.steps {
		if !seen[step.Name] {
			seen[step.Name] = true
			names = append(names, step.Name)
		}
	}
	return names
}

// Selection restricts which steps are scheduled. Optional steps run only
// when named explicitly in Steps.
type Selection struct {
	Steps []string
	Skip  []string
}

// Validate checks that every selected name refers to a declared step.
func (s *StepSet) Validate(sel Selection) error {
	known := map[string]bool{}
	for _, step := range s.steps {
		known[step.Name] = true
	}
	for _, name := range append(append([]string{}, sel.Steps...), sel.Skip...) {
		if !known[name] {
			return errdefs.NewSchedulingError("selection names an undeclared step", nil).
				WithCode(errdefs.CodeUnknownSelection).
				WithName(name)
		}
	}
	return nil
}

// FilterFor returns the steps to run for one scenario: eligible by runFor
// kind and group, restricted by the selection.
func (s *StepSet) FilterFor(isBaseline bool, group string, sel Selection) ([]Step, error) {
	if err := s.Validate(sel); err != nil {
		return nil, err
	}

	include := map[string]bool{}
	for _, name := range sel.Steps {
		include[name] = true
	}
	skip := map[string]bool{}
	for _, name := range sel.Skip {
		skip[name] = true
	}

	var out []Step
	for _, step := range s.steps {
		switch step.RunFor {
		case template.RunForBaseline:
			if !isBaseline {
				continue
			}
		case template.RunForPolicy:
			if isBaseline {
				continue
			}
		}
		ok, err := groupMatches(step.Group, group)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if len(include) > 0 && !include[step.Name] {
			continue
		}
		if step.Optional && !include[step.Name] {
			continue
		}
		if skip[step.Name] {
			continue
		}
		out = append(out, step)
	}
	return out, nil
}

// groupMatches reports whether a step's group restriction admits the
// active group: unset always matches, then exact equality, then the
// restriction interpreted as a regular expression anchored at both ends.
func groupMatches(restriction, group string) (bool, error) {
	if restriction == "" || restriction == group {
		return true, nil
	}
	re, err := regexp.Compile("^(?:" + restriction + ")$")
	if err != nil {
		return false, errdefs.NewSchedulingError(
			fmt.Sprintf("step group restriction %q is not a valid pattern", restriction), err).
			WithCode(errdefs.CodeFormat)
	}
	return re.MatchString(group), nil
}
