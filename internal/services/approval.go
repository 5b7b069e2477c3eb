package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/stackdhq/stackd/internal/db/models"
	"github.com/stackdhq/stackd/internal/logger"
	"github.com/stackdhq/stackd/internal/queue"
	"github.com/stackdhq/stackd/internal/types"
)

// RequestStore is the persistence contract for provisioning requests.
// *repos.RequestRepository satisfies it.
type RequestStore interface {
	Save(ctx context.Context, req *models.ProvisioningRequest) error
	FindByID(ctx context.Context, requestID string) (*models.ProvisioningRequest, error)
	FindByRequester(ctx context.Context, requester string) ([]models.ProvisioningRequest, error)
	Update(ctx context.Context, req *models.ProvisioningRequest) error
	ListPending(ctx context.Context) ([]models.ProvisioningRequest, error)
}

// Approval manages the request approval workflow. Only approved requests
// enter the job pipeline; a rejected request never produces a job record.
type Approval struct {
	requests RequestStore
	orch     *Orchestrator
}

// NewApprovalService creates a new approval service instance
func NewApprovalService(requests RequestStore, orch *Orchestrator) *Approval {
	return &Approval{requests: requests, orch: orch}
}

// SubmitRequest records a pending provisioning request awaiting approval.
func (a *Approval) SubmitRequest(ctx context.Context, requester string, jobReq *types.JobRequest) (*models.ProvisioningRequest, error) {
	configJSON, err := json.Marshal(jobReq.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	tagsJSON, err := json.Marshal(jobReq.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}

	req := &models.ProvisioningRequest{
		RequestID:      uuid.NewString(),
		Requester:      requester,
		ApprovalStatus: models.ApprovalStatusPending,
		Action:         string(jobReq.Action),
		ResourceType:   string(jobReq.ResourceType),
		ResourceName:   jobReq.Name,
		Environment:    jobReq.Environment,
		Region:         jobReq.Region,
		Config:         configJSON,
		Tags:           tagsJSON,
	}
	if err := a.requests.Save(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to save request: %w", err)
	}
	logger.Infof("Provisioning request %s submitted by %s", req.RequestID, requester)
	return req, nil
}

// Approve marks a pending request approved and submits it as a job. A
// request may be decided at most once.
func (a *Approval) Approve(ctx context.Context, requestID, approver string) (*models.ProvisioningRequest, error) {
	req, err := a.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	jobReq, err := a.toJobRequest(req)
	if err != nil {
		return nil, err
	}
	if err := req.Approve(approver); err != nil {
		return nil, err
	}

	// The decision and the job id are persisted before the enqueue. A
	// failed enqueue then shows up as a FAILED job record on an approved
	// request, never as a still-pending request that could be approved a
	// second time.
	req.JobID = jobReq.JobID
	if err := a.requests.Update(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to update request: %w", err)
	}

	if _, err := a.orch.Submit(ctx, jobReq, queue.PriorityDefault); err != nil {
		return nil, fmt.Errorf("approved request %s could not be queued: %w", requestID, err)
	}
	logger.Infof("Request %s approved by %s, job %s queued", requestID, approver, jobReq.JobID)
	return req, nil
}

// Reject marks a pending request rejected. A request may be decided at most
// once.
func (a *Approval) Reject(ctx context.Context, requestID, approver, reason string) (*models.ProvisioningRequest, error) {
	req, err := a.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := req.Reject(approver, reason); err != nil {
		return nil, err
	}
	if err := a.requests.Update(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to update request: %w", err)
	}
	logger.Infof("Request %s rejected by %s", requestID, approver)
	return req, nil
}

// GetRequest returns one request by id.
func (a *Approval) GetRequest(ctx context.Context, requestID string) (*models.ProvisioningRequest, error) {
	return a.requests.FindByID(ctx, requestID)
}

// ListRequests returns requests, filtered by requester when non-empty,
// otherwise all pending requests.
func (a *Approval) ListRequests(ctx context.Context, requester string) ([]models.ProvisioningRequest, error) {
	if requester != "" {
		return a.requests.FindByRequester(ctx, requester)
	}
	return a.requests.ListPending(ctx)
}

func (a *Approval) toJobRequest(req *models.ProvisioningRequest) (*types.JobRequest, error) {
	action, err := types.ParseJobAction(req.Action)
	if err != nil {
		return nil, err
	}
	resourceType, err := types.ParseResourceType(req.ResourceType)
	if err != nil {
		return nil, err
	}

	jobReq := types.NewJobRequest(action, resourceType, req.ResourceName)
	if req.Environment != "" {
		jobReq.Environment = req.Environment
	}
	if req.Region != "" {
		jobReq.Region = req.Region
	}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &jobReq.Config); err != nil {
			return nil, fmt.Errorf("malformed request config: %w", err)
		}
	}
	if len(req.Tags) > 0 {
		if err := json.Unmarshal(req.Tags, &jobReq.Tags); err != nil {
			return nil, fmt.Errorf("malformed request tags: %w", err)
		}
	}
	return jobReq, nil
}
