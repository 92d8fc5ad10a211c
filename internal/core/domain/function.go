package domain

// =============================================================================
// Remote Function State
// =============================================================================

// LifecycleState is the overall state the control plane reports for a function.
type LifecycleState string

const (
	StatePending  LifecycleState = "Pending"
	StateActive   LifecycleState = "Active"
	StateInactive LifecycleState = "Inactive"
	StateFailed   LifecycleState = "Failed"
)

// UpdateStatus is the status of the most recent code or configuration update.
type UpdateStatus string

const (
	UpdateInProgress UpdateStatus = "InProgress"
	UpdateSuccessful UpdateStatus = "Successful"
	UpdateFailed     UpdateStatus = "Failed"
)

// FunctionState is a point-in-time snapshot. It is superseded by every poll
// and never cached.
type FunctionState struct {
	State            LifecycleState `json:"state" yaml:"state"`
	LastUpdateStatus UpdateStatus   `json:"last_update_status" yaml:"last_update_status"`
	Reason           string         `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// =============================================================================
// Artifact Location
// =============================================================================

// ArtifactLocation points the control plane at a stored artifact.
type ArtifactLocation struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Key    string `json:"key" yaml:"key"`
}
