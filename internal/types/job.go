// Package types defines the shared data model for provisioning jobs.
package types

import "fmt"

// JobStatus represents the execution state of a job.
type JobStatus string

// Job status constants. QUEUED is the initial state; COMPLETED, FAILED and
// CANCELLED are terminal and admit no further transitions.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// ParseJobStatus converts a string representation of a job status to JobStatus
func ParseJobStatus(str string) (JobStatus, error) {
	switch JobStatus(str) {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return JobStatus(str), nil
	}
	return "", fmt.Errorf("invalid job status: %s", str)
}

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// transition. The state machine never revisits a prior state.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case JobStatusQueued:
		return next == JobStatusRunning || next == JobStatusFailed || next == JobStatusCancelled
	case JobStatusRunning:
		return next.IsTerminal()
	}
	return false
}

// JobAction represents the operation a job performs against a resource.
type JobAction string

// Job action constants
const (
	ActionCreate  JobAction = "create"
	ActionDestroy JobAction = "destroy"
	ActionUpdate  JobAction = "update"
)

// ParseJobAction converts a string representation of an action to JobAction
func ParseJobAction(str string) (JobAction, error) {
	switch JobAction(str) {
	case ActionCreate, ActionDestroy, ActionUpdate:
		return JobAction(str), nil
	}
	return "", fmt.Errorf("invalid job action: %s", str)
}

// ResourceType identifies the kind of infrastructure a job provisions.
type ResourceType string

// Supported resource types
const (
	ResourceEC2        ResourceType = "ec2"
	ResourceS3         ResourceType = "s3"
	ResourceVPC        ResourceType = "vpc"
	ResourceRDS        ResourceType = "rds"
	ResourceWebApp     ResourceType = "web_app"
	ResourceAPIService ResourceType = "api_service"
)

// ParseResourceType converts a string to a ResourceType
func ParseResourceType(str string) (ResourceType, error) {
	switch ResourceType(str) {
	case ResourceEC2, ResourceS3, ResourceVPC, ResourceRDS, ResourceWebApp, ResourceAPIService:
		return ResourceType(str), nil
	}
	return "", fmt.Errorf("unsupported resource type: %s", str)
}
