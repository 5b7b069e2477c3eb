package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/stackdhq/stackd/internal/queue"
	"github.com/stackdhq/stackd/internal/services"
	"github.com/stackdhq/stackd/internal/store"
	"github.com/stackdhq/stackd/internal/types"
)

// InfrastructureRequest is the submission body for provisioning work.
type InfrastructureRequest struct {
	ResourceType string                 `json:"resource_type"`
	Name         string                 `json:"name"`
	Environment  string                 `json:"environment"`
	Region       string                 `json:"region"`
	Config       map[string]interface{} `json:"config"`
	Tags         map[string]string      `json:"tags"`
	Priority     string                 `json:"priority"`
	Force        bool                   `json:"force"`
}

// JobHandler handles HTTP requests for job operations
type JobHandler struct {
	orch *services.Orchestrator
	q    queue.Queue
}

// NewJobHandler creates a new job handler instance
func NewJobHandler(orch *services.Orchestrator, q queue.Queue) *JobHandler {
	return &JobHandler{orch: orch, q: q}
}

// PeekQueue handles the request to inspect pending work without claiming it
func (h *JobHandler) PeekQueue(c *fiber.Ctx) error {
	pending, err := h.q.Peek(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(errServer(err.Error()))
	}

	return c.JSON(Response{
		Slug: SuccessSlug,
		Data: fiber.Map{
			"depth":   len(pending),
			"pending": pending,
		},
	})
}

// CreateInfrastructure handles the request to provision a resource
func (h *JobHandler) CreateInfrastructure(c *fiber.Ctx) error {
	return h.submit(c, types.ActionCreate)
}

// DeleteInfrastructure handles the request to tear a resource down
func (h *JobHandler) DeleteInfrastructure(c *fiber.Ctx) error {
	return h.submit(c, types.ActionDestroy)
}

// UpdateInfrastructure handles the request to update a resource in place
func (h *JobHandler) UpdateInfrastructure(c *fiber.Ctx) error {
	return h.submit(c, types.ActionUpdate)
}

func (h *JobHandler) submit(c *fiber.Ctx, action types.JobAction) error {
	var body InfrastructureRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput(err.Error()))
	}

	req, pri, err := buildJobRequest(action, &body)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput(err.Error()))
	}

	jobID, err := h.orch.Submit(c.Context(), req, pri)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).
			JSON(errServer(err.Error()))
	}

	return c.Status(fiber.StatusAccepted).
		JSON(Response{
			Slug: SuccessSlug,
			Data: fiber.Map{
				"job_id": jobID,
				"status": types.JobStatusQueued,
			},
		})
}

// GetJob handles the request to get a job's full record
func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput("invalid job id"))
	}

	record, err := h.orch.GetJob(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return c.Status(fiber.StatusNotFound).
				JSON(errNotFound("job not found"))
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(errServer(err.Error()))
	}

	return c.JSON(Response{
		Slug: SuccessSlug,
		Data: record,
	})
}

// GetJobLogs handles the request to get a job's execution logs
func (h *JobHandler) GetJobLogs(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput("invalid job id"))
	}

	logs, err := h.orch.GetLogs(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return c.Status(fiber.StatusNotFound).
				JSON(errNotFound("job not found"))
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(errServer(err.Error()))
	}

	return c.JSON(Response{
		Slug: SuccessSlug,
		Data: fiber.Map{
			"job_id": jobID,
			"logs":   logs,
		},
	})
}

// ListJobs handles the request to list known jobs, newest first
func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	records, err := h.orch.ListJobs(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(errServer(err.Error()))
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return c.JSON(Response{
		Slug: SuccessSlug,
		Data: records,
	})
}

// CancelJob handles the request to cancel a queued or running job
func (h *JobHandler) CancelJob(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput("invalid job id"))
	}

	cancelled, err := h.orch.Cancel(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return c.Status(fiber.StatusNotFound).
				JSON(errNotFound("job not found"))
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(errServer(err.Error()))
	}
	if !cancelled {
		return c.Status(fiber.StatusConflict).
			JSON(errGeneral("job already finished"))
	}

	return c.JSON(Response{
		Slug: SuccessSlug,
		Data: fiber.Map{
			"job_id": jobID,
			"status": types.JobStatusCancelled,
		},
	})
}

func buildJobRequest(action types.JobAction, body *InfrastructureRequest) (*types.JobRequest, queue.Priority, error) {
	resourceType, err := types.ParseResourceType(body.ResourceType)
	if err != nil {
		return nil, "", err
	}
	if body.Name == "" {
		return nil, "", errors.New("name is required")
	}

	pri := queue.PriorityDefault
	if body.Priority != "" {
		pri, err = queue.ParsePriority(body.Priority)
		if err != nil {
			return nil, "", err
		}
	}

	req := types.NewJobRequest(action, resourceType, body.Name)
	if body.Environment != "" {
		req.Environment = body.Environment
	}
	if body.Region != "" {
		req.Region = body.Region
	}
	if body.Config != nil {
		req.Config = body.Config
	}
	if body.Tags != nil {
		req.Tags = body.Tags
	}
	req.Force = body.Force
	return req, pri, nil
}
