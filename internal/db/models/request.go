// Package models defines the gorm models persisted in postgres.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ApprovalStatus represents where a provisioning request sits in the
// approval workflow. It is distinct from the job's execution status: only
// approved requests ever enter the job pipeline.
type ApprovalStatus int

// Approval status constants
const (
	// ApprovalStatusUnknown represents an unknown or invalid approval status
	ApprovalStatusUnknown ApprovalStatus = iota
	// ApprovalStatusPending indicates the request awaits a decision
	ApprovalStatusPending
	// ApprovalStatusApproved indicates the request was approved
	ApprovalStatusApproved
	// ApprovalStatusRejected indicates the request was rejected
	ApprovalStatusRejected
)

var approvalStatusNames = []string{"unknown", "pending", "approved", "rejected"}

// ParseApprovalStatus converts a string to an ApprovalStatus
func ParseApprovalStatus(str string) (ApprovalStatus, error) {
	for i, name := range approvalStatusNames {
		if name == str {
			return ApprovalStatus(i), nil
		}
	}
	return ApprovalStatusUnknown, fmt.Errorf("invalid approval status: %s", str)
}

func (s ApprovalStatus) String() string {
	if int(s) >= len(approvalStatusNames) {
		return approvalStatusNames[0]
	}
	return approvalStatusNames[s]
}

// MarshalJSON implements the json.Marshaler interface for ApprovalStatus
func (s ApprovalStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for ApprovalStatus
func (s *ApprovalStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	status, err := ParseApprovalStatus(str)
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// ErrAlreadyDecided is returned when approving or rejecting a request that
// already has a decision. A request may be approved or rejected at most once.
var ErrAlreadyDecided = errors.New("request already approved or rejected")

// ProvisioningRequest is a provisioning request going through the approval
// workflow before it may become a job.
type ProvisioningRequest struct {
	gorm.Model
	RequestID       string          `json:"request_id" gorm:"uniqueIndex;not null"`
	Requester       string          `json:"requester" gorm:"not null;index"`
	Approver        string          `json:"approver,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty" gorm:"type:text"`
	ApprovalStatus  ApprovalStatus  `json:"approval_status" gorm:"index"`
	JobID           string          `json:"job_id,omitempty" gorm:"index"`
	Action          string          `json:"action" gorm:"not null"`
	ResourceType    string          `json:"resource_type" gorm:"not null;index"`
	ResourceName    string          `json:"resource_name" gorm:"not null"`
	Environment     string          `json:"environment"`
	Region          string          `json:"region"`
	Config          json.RawMessage `json:"config,omitempty" gorm:"type:jsonb"`
	Tags            json.RawMessage `json:"tags,omitempty" gorm:"type:jsonb"`
	DecidedAt       *time.Time      `json:"decided_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at" gorm:"index"`
}

// Approve records an approval decision. It fails if the request already has
// a decision.
func (r *ProvisioningRequest) Approve(approver string) error {
	if r.ApprovalStatus != ApprovalStatusPending {
		return ErrAlreadyDecided
	}
	now := time.Now().UTC()
	r.ApprovalStatus = ApprovalStatusApproved
	r.Approver = approver
	r.DecidedAt = &now
	return nil
}

// Reject records a rejection decision. It fails if the request already has a
// decision. A rejected request never produces a job.
func (r *ProvisioningRequest) Reject(approver, reason string) error {
	if r.ApprovalStatus != ApprovalStatusPending {
		return ErrAlreadyDecided
	}
	now := time.Now().UTC()
	r.ApprovalStatus = ApprovalStatusRejected
	r.Approver = approver
	r.RejectionReason = reason
	r.DecidedAt = &now
	return nil
}
