// Package routes wires the HTTP surface to the service layer.
package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stackdhq/stackd/internal/api/v1/handlers"
)

// SetupRoutes configures all the v1 routes
func SetupRoutes(router fiber.Router, jobs *handlers.JobHandler, requests *handlers.RequestHandler, stream *handlers.StreamHandler) {
	// Infrastructure submission
	infra := router.Group("/infrastructure")
	infra.Post("/", jobs.CreateInfrastructure)
	infra.Put("/", jobs.UpdateInfrastructure)
	infra.Delete("/", jobs.DeleteInfrastructure)

	// Job lifecycle
	jobGroup := router.Group("/jobs")
	jobGroup.Get("/", jobs.ListJobs)
	jobGroup.Get("/:id", jobs.GetJob)
	jobGroup.Get("/:id/logs", jobs.GetJobLogs)
	jobGroup.Get("/:id/events", stream.StreamJobEvents)
	jobGroup.Post("/:id/cancel", jobs.CancelJob)

	// Queue inspection
	router.Get("/queue", jobs.PeekQueue)

	// Approval workflow
	reqGroup := router.Group("/requests")
	reqGroup.Post("/", requests.SubmitRequest)
	reqGroup.Get("/", requests.ListRequests)
	reqGroup.Get("/:id", requests.GetRequest)
	reqGroup.Post("/:id/approve", requests.ApproveRequest)
	reqGroup.Post("/:id/reject", requests.RejectRequest)
}

// Register registers the v1 routes and the health probe
func Register(app *fiber.App, jobs *handlers.JobHandler, requests *handlers.RequestHandler, stream *handlers.StreamHandler) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1Group := app.Group("/api/v1")
	SetupRoutes(v1Group, jobs, requests, stream)
}
