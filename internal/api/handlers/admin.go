// Package handlers implements the admin HTTP surface: a thin trigger/poll
// API over the pipeline orchestrator, replacing the fire-and-forget
// background task named in the design notes with a supervised run that a
// caller can enqueue and then poll to completion.
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vision-digital/cnpj-ingestd/internal/models"
	"github.com/vision-digital/cnpj-ingestd/internal/registry"
	"github.com/vision-digital/cnpj-ingestd/internal/worker"
)

// AdminHandler serves the release trigger/poll endpoints.
type AdminHandler struct {
	runs     *worker.Registry
	registry *registry.Store
}

// NewAdminHandler wires an AdminHandler to the supervised run registry and
// the persistent version registry.
func NewAdminHandler(runs *worker.Registry, store *registry.Store) *AdminHandler {
	return &AdminHandler{runs: runs, registry: store}
}

// ingestRequest is the optional body of POST /admin/releases/ingest. An
// absent or empty release lets the pipeline's own discovery logic pick one.
type ingestRequest struct {
	Release string `json:"release"`
}

// TriggerIngest enqueues a pipeline run and returns its run id immediately
// @Summary Trigger a release ingestion
// @Description Enqueues a pipeline run for the given release (or lets discovery pick one) and returns a run id to poll
// @Tags admin
// @Accept json
// @Produce json
// @Param release body ingestRequest false "Release to ingest, empty for auto-discovery"
// @Success 202 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Router /admin/releases/ingest [post]
func (h *AdminHandler) TriggerIngest(c *fiber.Ctx) error {
	var req ingestRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(models.APIResponse{
				Success: false,
				Error:   "invalid request body",
			})
		}
	}

	runID := h.runs.Enqueue(req.Release)
	return c.Status(fiber.StatusAccepted).JSON(models.APIResponse{
		Success: true,
		Message: "ingestion run enqueued",
		Data: map[string]string{
			"run_id": runID,
		},
	})
}

// GetRun reports the current state of a previously enqueued run
// @Summary Poll a supervised run
// @Description Reports the in-memory lifecycle state of a run enqueued by TriggerIngest
// @Tags admin
// @Produce json
// @Param id path string true "Run id returned by TriggerIngest"
// @Success 200 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /admin/runs/{id} [get]
func (h *AdminHandler) GetRun(c *fiber.Ctx) error {
	id := c.Params("id")
	run, ok := h.runs.Get(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(models.APIResponse{
			Success: false,
			Error:   "run not found",
		})
	}
	return c.JSON(models.APIResponse{
		Success: true,
		Data:    run,
	})
}

// GetRelease reports the version registry's durable state for one release,
// independent of whether the process that ran it is still the one serving
// this request
// @Summary Read a release's durable state
// @Description Reports the version registry row for a release, independent of any in-process run
// @Tags admin
// @Produce json
// @Param release path string true "Release in YYYY-MM form"
// @Success 200 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /admin/releases/{release} [get]
func (h *AdminHandler) GetRelease(c *fiber.Ctx) error {
	release := c.Params("release")
	rec, err := h.registry.FindByRelease(c.Context(), release)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.APIResponse{
			Success: false,
			Error:   err.Error(),
		})
	}
	if rec == nil {
		return c.Status(fiber.StatusNotFound).JSON(models.APIResponse{
			Success: false,
			Error:   "release not found",
		})
	}
	return c.JSON(models.APIResponse{
		Success: true,
		Data:    rec,
	})
}
