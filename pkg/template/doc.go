// Package template loads and expands the two declarative documents that
// drive the engine: the scenario setup file (iterators, scenario groups,
// scenarios, and their action lists) and the workflow file (projects with
// default and override step lists, user variables, and temporary-file
// declarations).
//
// Processing happens in a fixed order. Conditional-inclusion wrappers are
// evaluated first, against the configuration store, so that no later stage
// needs to be conditional-aware. Iterator expansion then turns each
// parameterized group or scenario template into concrete instances, one per
// iterator value, in value order. The resulting Setup and Workflow values
// are immutable and are consumed by pkg/engine.
package template
