package engine

import (
	"sort"

	"github.com/simflow/simflow/pkg/errdefs"
	"github.com/simflow/simflow/pkg/template"
)

// FunctionCall is a recorded invocation of a named setup capability. Calls
// are opaque to the engine: they are validated against the registry and
// passed through to the executing collaborator in action order.
type FunctionCall struct {
	Name    string `json:"name"`
	Args    string `json:"args,omitempty"`
	Dynamic bool   `json:"dynamic,omitempty"`
}

// Capability describes one function a collaborator can perform during
// scenario setup. Capabilities are plain records, not behavior.
type Capability struct {
	Name        string
	Description string
}

// Registry maps capability names to their descriptors.
type Registry struct {
	caps map[string]Capability
}

// NewRegistry returns a registry seeded with the builtin capability set.
func NewRegistry() *Registry {
	r := &Registry{caps: make(map[string]Capability, len(builtinCapabilities))}
	for _, c := range builtinCapabilities {
		r.caps[c.Name] = c
	}
	return r
}

// Register adds a capability, failing on a duplicate name.
func (r *Registry) Register(c Capability) error {
	if _, exists := r.caps[c.Name]; exists {
		return errdefs.NewTemplateError("capability already registered", nil).
			WithCode(errdefs.CodeDuplicateName).
			WithName(c.Name)
	}
	r.caps[c.Name] = c
	return nil
}

// Lookup returns the named capability descriptor.
func (r *Registry) Lookup(name string) (Capability, bool) {
	c, ok := r.caps[name]
	return c, ok
}

// Names returns the registered capability names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Interpretation is the outcome of running a scenario's action list: the
// final component list plus the function calls recorded along the way.
type Interpretation struct {
	Components *ComponentList
	Calls      []FunctionCall
}

// Clone returns an independent copy.
func (in *Interpretation) Clone() *Interpretation {
	calls := make([]FunctionCall, len(in.Calls))
	copy(calls, in.Calls)
	return &Interpretation{Components: in.Components.Clone(), Calls: calls}
}

// Interpret applies an action list to a starting component list. The
// initial list is not modified. If actions choose a branch by membership:
// value2 is split on commas and the then branch runs when
// (value1 in values) equals matches.
func Interpret(initial *ComponentList, actions []template.Action, reg *Registry) (*Interpretation, error) {
	result := &Interpretation{Components: initial.Clone()}
	if err := result.apply(actions, reg); err != nil {
		return nil, err
	}
	return result, nil
}

func (in *Interpretation) apply(actions []template.Action, reg *Registry) error {
	for i := range actions {
		a := &actions[i]
		switch a.Kind {
		case template.ActionAdd:
			if err := in.Components.Add(Component{Name: a.Name, File: a.File, Dynamic: a.Dynamic}); err != nil {
				return err
			}

		case template.ActionInsert:
			if err := in.Components.InsertAfter(a.After, Component{Name: a.Name, File: a.File, Dynamic: a.Dynamic}); err != nil {
				return err
			}

		case template.ActionReplace:
			if err := in.Components.Replace(Component{Name: a.Name, File: a.File, Dynamic: a.Dynamic}); err != nil {
				return err
			}

		case template.ActionDelete:
			if err := in.Components.Delete(a.Name); err != nil {
				return err
			}

		case template.ActionFunction:
			if _, ok := reg.Lookup(a.Name); !ok {
				return errdefs.NewTemplateError("call to unknown setup function", nil).
					WithCode(errdefs.CodeUnknownFunction).
					WithName(a.Name)
			}
			in.Calls = append(in.Calls, FunctionCall{Name: a.Name, Args: a.Args, Dynamic: a.Dynamic})

		case template.ActionIf:
			values := template.SplitAndStrip(a.Value2, ",")
			found := false
			for _, v := range values {
				if v == a.Value1 {
					found = true
					break
				}
			}
			branch := a.Else
			if found == a.Matches {
				branch = a.Then
			}
			if err := in.apply(branch, reg); err != nil {
				return err
			}

		default:
			return errdefs.NewTemplateError("unknown action kind", nil).
				WithCode(errdefs.CodeFormat).
				WithName(string(a.Kind))
		}
	}
	return nil
}

// builtinCapabilities is the fixed set of setup functions collaborators
// implement. The engine records calls to them; it never executes them.
var builtinCapabilities = []Capability{
	{Name: "replaceValue", Description: "replace a value at a path in a component file"},
	{Name: "stringReplace", Description: "textual replacement within a component file"},
	{Name: "setConfigValue", Description: "set a named value in the run configuration"},
	{Name: "multiply", Description: "scale values at a path by a factor"},
	{Name: "add", Description: "add an offset to values at a path"},
	{Name: "setStopYear", Description: "set the final simulated year"},
	{Name: "setStopPeriod", Description: "set the final simulated period"},
	{Name: "setClimateOutputInterval", Description: "set climate output frequency"},
	{Name: "setupSolver", Description: "configure solver parameters"},
	{Name: "protectLand", Description: "protect a fraction of land classes"},
	{Name: "dropLandProtection", Description: "remove land protection"},
	{Name: "protectionScenario", Description: "apply a named land protection scenario"},
	{Name: "taxCarbon", Description: "apply a carbon tax trajectory"},
	{Name: "taxBioCarbon", Description: "apply a biogenic carbon tax"},
	{Name: "addMarketConstraint", Description: "constrain a market quantity"},
	{Name: "delMarketConstraint", Description: "remove a market constraint"},
	{Name: "setPriceElasticity", Description: "set demand price elasticity"},
	{Name: "setInterpolationFunction", Description: "set an interpolation rule between periods"},
	{Name: "setRegionPopulation", Description: "override a region's population"},
	{Name: "freezeRegionPopulation", Description: "hold a region's population constant"},
	{Name: "freezeGlobalPopulation", Description: "hold global population constant"},
	{Name: "setGlobalTechNonEnergyCost", Description: "set a technology's non-energy cost"},
	{Name: "setGlobalTechShutdownRate", Description: "set a technology's shutdown rate"},
	{Name: "setGlobalTechShareWeight", Description: "set a global technology share weight"},
	{Name: "setRegionalShareWeights", Description: "set regional share weights"},
	{Name: "setEnergyTechnologyCoefficients", Description: "set technology input coefficients"},
	{Name: "insertStubTechParameter", Description: "insert a stub technology parameter"},
	{Name: "insertStubTechRetirement", Description: "insert a stub technology retirement rule"},
	{Name: "insertSubsectorParameter", Description: "insert a subsector parameter"},
	{Name: "writePolicyMarketFile", Description: "emit a policy market definition"},
}
