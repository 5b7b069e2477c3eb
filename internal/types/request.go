package types

import (
	"time"

	"github.com/google/uuid"
)

// Default values applied when a request omits them.
const (
	DefaultEnvironment = "dev"
	DefaultRegion      = "us-east-1"
)

// JobRequest is the immutable description of one unit of provisioning work.
// It is the wire contract between submission and the worker: created once at
// submission, serialized onto the queue, and never mutated afterwards.
type JobRequest struct {
	JobID        string                 `json:"job_id"`
	Action       JobAction              `json:"action"`
	ResourceType ResourceType           `json:"resource_type"`
	Name         string                 `json:"name"`
	Environment  string                 `json:"environment"`
	Region       string                 `json:"region"`
	Config       map[string]interface{} `json:"config"`
	Tags         map[string]string      `json:"tags"`
	CreatedAt    time.Time              `json:"created_at"`
	ParentJobID  string                 `json:"parent_job_id,omitempty"`
	Force        bool                   `json:"force,omitempty"`
}

// NewJobRequest builds a JobRequest with a generated job id and defaults
// filled in for environment and region.
func NewJobRequest(action JobAction, resourceType ResourceType, name string) *JobRequest {
	return &JobRequest{
		JobID:        uuid.NewString(),
		Action:       action,
		ResourceType: resourceType,
		Name:         name,
		Environment:  DefaultEnvironment,
		Region:       DefaultRegion,
		Config:       map[string]interface{}{},
		Tags:         map[string]string{},
		CreatedAt:    time.Now().UTC(),
	}
}
