// Package client provides the API client for interacting with the stackd API
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/stackdhq/stackd/internal/api/v1/handlers"
	"github.com/stackdhq/stackd/internal/db/models"
	"github.com/stackdhq/stackd/internal/types"
)

// DefaultBaseURL is the base URL used when no option overrides it.
const DefaultBaseURL = "http://localhost:8080"

// DefaultTimeout is the default timeout for API requests
const DefaultTimeout = 30 * time.Second

// Client is the interface for API client
type Client interface {
	// Health Check
	HealthCheck(ctx context.Context) (map[string]string, error)

	// Job Endpoints
	CreateInfrastructure(ctx context.Context, req handlers.InfrastructureRequest) (string, error)
	DeleteInfrastructure(ctx context.Context, req handlers.InfrastructureRequest) (string, error)
	GetJob(ctx context.Context, jobID string) (*types.JobRecord, error)
	GetJobLogs(ctx context.Context, jobID string) ([]types.LogEntry, error)
	ListJobs(ctx context.Context, limit int) ([]*types.JobRecord, error)
	CancelJob(ctx context.Context, jobID string) error

	// Approval Endpoints
	SubmitRequest(ctx context.Context, req handlers.SubmitRequestBody) (*models.ProvisioningRequest, error)
	GetRequest(ctx context.Context, requestID string) (*models.ProvisioningRequest, error)
	ListRequests(ctx context.Context, requester string) ([]models.ProvisioningRequest, error)
	ApproveRequest(ctx context.Context, requestID, approver string) (*models.ProvisioningRequest, error)
	RejectRequest(ctx context.Context, requestID, approver, reason string) (*models.ProvisioningRequest, error)
}

var _ Client = &APIClient{}

// Options contains configuration options for the API client
type Options struct {
	// BaseURL is the base URL of the API
	BaseURL string

	// Timeout is the request timeout
	Timeout time.Duration
}

// DefaultOptions returns the default client options
func DefaultOptions() *Options {
	return &Options{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// APIClient implements the Client interface
type APIClient struct {
	baseURL string
	timeout time.Duration
}

// NewClient creates a new API client with the given options
func NewClient(opts *Options) (Client, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	return &APIClient{
		baseURL: opts.BaseURL,
		timeout: opts.Timeout,
	}, nil
}

// createAgent creates a new Fiber Agent for the given method and endpoint
func (c *APIClient) createAgent(ctx context.Context, method, endpoint string, body interface{}) (*fiber.Agent, error) {
	fullURL := c.baseURL + endpoint

	var agent *fiber.Agent
	switch method {
	case http.MethodGet:
		agent = fiber.Get(fullURL)
	case http.MethodPost:
		agent = fiber.Post(fullURL)
	case http.MethodPut:
		agent = fiber.Put(fullURL)
	case http.MethodDelete:
		agent = fiber.Delete(fullURL)
	default:
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}

	if deadline, ok := ctx.Deadline(); ok {
		agent.Timeout(time.Until(deadline))
	} else {
		agent.Timeout(c.timeout)
	}

	agent.Set("Content-Type", "application/json")
	agent.Set("Accept", "application/json")

	if body != nil {
		agent.JSON(body)
	}

	return agent, nil
}

// doRequest sends the request and decodes the Data field of the response
// envelope into v.
func (c *APIClient) doRequest(agent *fiber.Agent, v interface{}) error {
	statusCode, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("error sending request: %w", errs[0])
	}

	var envelope handlers.Response
	if len(body) > 0 {
		if err := json.Unmarshal(body, &envelope); err != nil && statusCode < 300 {
			return fmt.Errorf("error decoding response: %w", err)
		}
	}

	if statusCode < 200 || statusCode >= 300 {
		msg := envelope.Error
		if msg == "" {
			msg = string(body)
		}
		return &fiber.Error{
			Code:    statusCode,
			Message: msg,
		}
	}

	if v == nil || envelope.Data == nil {
		return nil
	}
	dataJSON, err := json.Marshal(envelope.Data)
	if err != nil {
		return fmt.Errorf("error marshaling data: %w", err)
	}
	if err := json.Unmarshal(dataJSON, v); err != nil {
		return fmt.Errorf("error decoding data: %w", err)
	}
	return nil
}

// executeRequest creates an agent, sends the request, and processes the response
func (c *APIClient) executeRequest(ctx context.Context, method, endpoint string, body, response interface{}) error {
	agent, err := c.createAgent(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	return c.doRequest(agent, response)
}

// HealthCheck checks the API health endpoint
func (c *APIClient) HealthCheck(ctx context.Context) (map[string]string, error) {
	agent, err := c.createAgent(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	statusCode, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("error sending request: %w", errs[0])
	}
	if statusCode != http.StatusOK {
		return nil, &fiber.Error{Code: statusCode, Message: string(body)}
	}
	var out map[string]string
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	return out, nil
}

type submitJobData struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// CreateInfrastructure submits a provisioning job and returns its job id
func (c *APIClient) CreateInfrastructure(ctx context.Context, req handlers.InfrastructureRequest) (string, error) {
	var data submitJobData
	if err := c.executeRequest(ctx, http.MethodPost, "/api/v1/infrastructure", req, &data); err != nil {
		return "", err
	}
	return data.JobID, nil
}

// DeleteInfrastructure submits a teardown job and returns its job id
func (c *APIClient) DeleteInfrastructure(ctx context.Context, req handlers.InfrastructureRequest) (string, error) {
	var data submitJobData
	if err := c.executeRequest(ctx, http.MethodDelete, "/api/v1/infrastructure", req, &data); err != nil {
		return "", err
	}
	return data.JobID, nil
}

// GetJob fetches a job's full record
func (c *APIClient) GetJob(ctx context.Context, jobID string) (*types.JobRecord, error) {
	var record types.JobRecord
	if err := c.executeRequest(ctx, http.MethodGet, "/api/v1/jobs/"+jobID, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

type jobLogsData struct {
	JobID string           `json:"job_id"`
	Logs  []types.LogEntry `json:"logs"`
}

// GetJobLogs fetches a job's execution logs in append order
func (c *APIClient) GetJobLogs(ctx context.Context, jobID string) ([]types.LogEntry, error) {
	var data jobLogsData
	if err := c.executeRequest(ctx, http.MethodGet, "/api/v1/jobs/"+jobID+"/logs", nil, &data); err != nil {
		return nil, err
	}
	return data.Logs, nil
}

// ListJobs fetches known jobs, newest first
func (c *APIClient) ListJobs(ctx context.Context, limit int) ([]*types.JobRecord, error) {
	endpoint := "/api/v1/jobs"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var records []*types.JobRecord
	if err := c.executeRequest(ctx, http.MethodGet, endpoint, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// CancelJob requests cancellation of a queued or running job
func (c *APIClient) CancelJob(ctx context.Context, jobID string) error {
	return c.executeRequest(ctx, http.MethodPost, "/api/v1/jobs/"+jobID+"/cancel", nil, nil)
}

// SubmitRequest files a provisioning request for approval
func (c *APIClient) SubmitRequest(ctx context.Context, req handlers.SubmitRequestBody) (*models.ProvisioningRequest, error) {
	var out models.ProvisioningRequest
	if err := c.executeRequest(ctx, http.MethodPost, "/api/v1/requests", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRequest fetches one provisioning request
func (c *APIClient) GetRequest(ctx context.Context, requestID string) (*models.ProvisioningRequest, error) {
	var out models.ProvisioningRequest
	if err := c.executeRequest(ctx, http.MethodGet, "/api/v1/requests/"+requestID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRequests fetches requests, optionally filtered by requester
func (c *APIClient) ListRequests(ctx context.Context, requester string) ([]models.ProvisioningRequest, error) {
	endpoint := "/api/v1/requests"
	if requester != "" {
		endpoint += "?requester=" + url.QueryEscape(requester)
	}
	var out []models.ProvisioningRequest
	if err := c.executeRequest(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveRequest approves a pending request, queuing its job
func (c *APIClient) ApproveRequest(ctx context.Context, requestID, approver string) (*models.ProvisioningRequest, error) {
	body := handlers.DecisionBody{Approver: approver}
	var out models.ProvisioningRequest
	if err := c.executeRequest(ctx, http.MethodPost, "/api/v1/requests/"+requestID+"/approve", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RejectRequest rejects a pending request
func (c *APIClient) RejectRequest(ctx context.Context, requestID, approver, reason string) (*models.ProvisioningRequest, error) {
	body := handlers.DecisionBody{Approver: approver, Reason: reason}
	var out models.ProvisioningRequest
	if err := c.executeRequest(ctx, http.MethodPost, "/api/v1/requests/"+requestID+"/reject", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
