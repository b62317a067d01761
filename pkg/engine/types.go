package engine

import (
	"time"
)

// PlannedStep is one fully resolved command for one scenario. Commands
// contain no remaining variable references.
type PlannedStep struct {
	Name     string `json:"name"`
	Seq      int    `json:"seq"`
	Optional bool   `json:"optional,omitempty"`
	Command  string `json:"command"`
}

// Artifact is a rendered temporary file the executing collaborator must
// materialize at Path before running the node's steps. The engine renders
// content into the plan; it never writes the file itself.
type Artifact struct {
	VarName string `json:"varName"`
	Path    string `json:"path"`
	Content string `json:"content"`
	Delete  bool   `json:"delete"`
}

// PlanNode is the unit of work for one scenario: its component list, the
// setup function calls, and the resolved step commands.
type PlanNode struct {
	ID         string        `json:"id"`
	Group      string        `json:"group"`
	Scenario   string        `json:"scenario"`
	IsBaseline bool          `json:"isBaseline"`
	Baseline   string        `json:"baseline"`
	Components []Component   `json:"components"`
	Calls      []FunctionCall `json:"calls,omitempty"`
	Steps      []PlannedStep `json:"steps"`
	Artifacts  []Artifact    `json:"artifacts,omitempty"`

	// Token identifies this node's submission in distributed mode; policy
	// nodes carry DependsOn = their baseline node's token.
	Token     string `json:"token,omitempty"`
	DependsOn string `json:"dependsOn,omitempty"`
}

// Plan is the immutable output of planning: every selected scenario's node
// in execution order (each group's baseline before its policies).
type Plan struct {
	Project     string      `json:"project"`
	Distributed bool        `json:"distributed"`
	CreatedAt   time.Time   `json:"createdAt"`
	Nodes       []*PlanNode `json:"nodes"`
}

// PlanOptions selects and shapes what is planned. Empty Groups means the
// setup's default group; empty Scenarios means every active scenario of
// the selected groups.
type PlanOptions struct {
	Distribute bool
	Groups     []string
	Scenarios  []string
	Steps      []string
	Skip       []string
}
