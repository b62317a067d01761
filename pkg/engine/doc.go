// Package engine compiles expanded templates into an executable plan.
//
// The pipeline is pure: interpretation of scenario action lists produces
// component lists and ordered function calls, baseline inheritance is
// resolved across scenario groups, step lists are merged and filtered per
// scenario, and the planner renders fully resolved command lines into an
// immutable Plan. No file is created and no command is run; execution
// belongs to external collaborators consuming the plan.
package engine
