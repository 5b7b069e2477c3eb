package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/stackdhq/stackd/internal/db/models"
	"github.com/stackdhq/stackd/internal/db/repos"
	"github.com/stackdhq/stackd/internal/services"
	"github.com/stackdhq/stackd/internal/types"
)

// SubmitRequestBody is the submission body for a provisioning request that
// requires approval before any job is queued.
type SubmitRequestBody struct {
	Requester    string                 `json:"requester"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	Name         string                 `json:"name"`
	Environment  string                 `json:"environment"`
	Region       string                 `json:"region"`
	Config       map[string]interface{} `json:"config"`
	Tags         map[string]string      `json:"tags"`
}

// DecisionBody carries the approver identity and, for rejections, a reason.
type DecisionBody struct {
	Approver string `json:"approver"`
	Reason   string `json:"reason"`
}

// RequestHandler handles HTTP requests for the approval workflow
type RequestHandler struct {
	service *services.Approval
}

// NewRequestHandler creates a new request handler instance
func NewRequestHandler(s *services.Approval) *RequestHandler {
	return &RequestHandler{service: s}
}

// SubmitRequest handles the request to file a provisioning request
func (h *RequestHandler) SubmitRequest(c *fiber.Ctx) error {
	var body SubmitRequestBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput(err.Error()))
	}
	if body.Requester == "" {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput("requester is required"))
	}
	if body.Name == "" {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput("name is required"))
	}

	action := types.ActionCreate
	if body.Action != "" {
		var err error
		action, err = types.ParseJobAction(body.Action)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).
				JSON(errInvalidInput(err.Error()))
		}
	}
	resourceType, err := types.ParseResourceType(body.ResourceType)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput(err.Error()))
	}

	jobReq := types.NewJobRequest(action, resourceType, body.Name)
	if body.Environment != "" {
		jobReq.Environment = body.Environment
	}
	if body.Region != "" {
		jobReq.Region = body.Region
	}
	if body.Config != nil {
		jobReq.Config = body.Config
	}
	if body.Tags != nil {
		jobReq.Tags = body.Tags
	}

	req, err := h.service.SubmitRequest(c.Context(), body.Requester, jobReq)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(errServer(err.Error()))
	}

	return c.Status(fiber.StatusCreated).
		JSON(Response{
			Slug: SuccessSlug,
			Data: req,
		})
}

// GetRequest handles the request to fetch one provisioning request
func (h *RequestHandler) GetRequest(c *fiber.Ctx) error {
	requestID := c.Params("id")
	if requestID == "" {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput("invalid request id"))
	}

	req, err := h.service.GetRequest(c.Context(), requestID)
	if err != nil {
		if errors.Is(err, repos.ErrRequestNotFound) {
			return c.Status(fiber.StatusNotFound).
				JSON(errNotFound("request not found"))
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(errServer(err.Error()))
	}

	return c.JSON(Response{
		Slug: SuccessSlug,
		Data: req,
	})
}

// ListRequests handles the request to list provisioning requests
func (h *RequestHandler) ListRequests(c *fiber.Ctx) error {
	requests, err := h.service.ListRequests(c.Context(), c.Query("requester"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(errServer(err.Error()))
	}

	return c.JSON(Response{
		Slug: SuccessSlug,
		Data: requests,
	})
}

// ApproveRequest handles the request to approve and queue a pending request
func (h *RequestHandler) ApproveRequest(c *fiber.Ctx) error {
	requestID := c.Params("id")
	if requestID == "" {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput("invalid request id"))
	}

	var body DecisionBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput(err.Error()))
	}
	if body.Approver == "" {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput("approver is required"))
	}

	req, err := h.service.Approve(c.Context(), requestID, body.Approver)
	if err != nil {
		return h.decisionError(c, err)
	}

	return c.JSON(Response{
		Slug: SuccessSlug,
		Data: req,
	})
}

// RejectRequest handles the request to reject a pending request
func (h *RequestHandler) RejectRequest(c *fiber.Ctx) error {
	requestID := c.Params("id")
	if requestID == "" {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput("invalid request id"))
	}

	var body DecisionBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput(err.Error()))
	}
	if body.Approver == "" {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput("approver is required"))
	}

	req, err := h.service.Reject(c.Context(), requestID, body.Approver, body.Reason)
	if err != nil {
		return h.decisionError(c, err)
	}

	return c.JSON(Response{
		Slug: SuccessSlug,
		Data: req,
	})
}

func (h *RequestHandler) decisionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, repos.ErrRequestNotFound):
		return c.Status(fiber.StatusNotFound).
			JSON(errNotFound("request not found"))
	case errors.Is(err, models.ErrAlreadyDecided):
		return c.Status(fiber.StatusConflict).
			JSON(errGeneral(err.Error()))
	default:
		return c.Status(fiber.StatusInternalServerError).
			JSON(errServer(err.Error()))
	}
}
