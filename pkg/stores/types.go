package stores

import (
	"time"
)

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// PlanRecord is a stored plan. Payload is the plan's JSON encoding; the
// remaining columns are denormalized for listing without decoding.
type PlanRecord struct {
	ID          string    `json:"id"`
	Project     string    `json:"project"`
	Distributed bool      `json:"distributed"`
	NodeCount   int       `json:"node_count"`
	Payload     string    `json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
}

// RunRecord tracks one execution of a stored plan by an external runner.
type RunRecord struct {
	ID          string     `json:"id"`
	PlanID      string     `json:"plan_id"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
