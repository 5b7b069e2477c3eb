// Package repos provides database repositories.
package repos

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/stackdhq/stackd/internal/db/models"
)

// ErrRequestNotFound is returned when no request matches the given id.
var ErrRequestNotFound = errors.New("request not found")

// RequestRepository provides access to provisioning request persistence.
type RequestRepository struct {
	db *gorm.DB
}

// NewRequestRepository creates a new request repository instance
func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Save persists a new provisioning request.
func (r *RequestRepository) Save(ctx context.Context, req *models.ProvisioningRequest) error {
	if req.RequestID == "" {
		return fmt.Errorf("request_id is required")
	}
	return r.db.WithContext(ctx).Create(req).Error
}

// FindByID retrieves a request by its request id.
func (r *RequestRepository) FindByID(ctx context.Context, requestID string) (*models.ProvisioningRequest, error) {
	var req models.ProvisioningRequest
	err := r.db.WithContext(ctx).
		Where(&models.ProvisioningRequest{RequestID: requestID}).
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return &req, nil
}

// FindByRequester retrieves all requests submitted by a user, newest first.
func (r *RequestRepository) FindByRequester(ctx context.Context, requester string) ([]models.ProvisioningRequest, error) {
	var reqs []models.ProvisioningRequest
	err := r.db.WithContext(ctx).
		Where(&models.ProvisioningRequest{Requester: requester}).
		Order("created_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return reqs, nil
}

// Update persists changes to an existing request.
func (r *RequestRepository) Update(ctx context.Context, req *models.ProvisioningRequest) error {
	return r.db.WithContext(ctx).Save(req).Error
}

// ListPending retrieves all requests awaiting a decision, oldest first.
func (r *RequestRepository) ListPending(ctx context.Context) ([]models.ProvisioningRequest, error) {
	var reqs []models.ProvisioningRequest
	err := r.db.WithContext(ctx).
		Where(&models.ProvisioningRequest{ApprovalStatus: models.ApprovalStatusPending}).
		Order("created_at ASC").
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	return reqs, nil
}
