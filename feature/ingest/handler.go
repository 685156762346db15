package ingest

import (
	"encoding/json"
	"io"
	"strings"

	"card-inventory/core/apperr"
	"card-inventory/core/logger"
	"card-inventory/core/middleware/shop"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for imports.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers the import routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	imports := app.Group("/imports")
	imports.Get("/", h.HandleList)
	imports.Post("/", h.HandleSubmit)
	imports.Get("/:id", h.HandleGet)
	imports.Post("/:id/cancel", h.HandleCancel)
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	if apperr.KindOf(err) == apperr.KindUnknown {
		logger.WithRayID(h.logger, c).Error("Import request failed", zap.Error(err))
	}
	return apperr.Respond(c, err)
}

// parseMappingField accepts a JSON object or comma separated column=field pairs.
func parseMappingField(raw string) (Mapping, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "{") {
		var m Mapping
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, apperr.Validationf("invalid mapping: %v", err)
		}
		return m, nil
	}
	return ParseMapping(strings.Split(raw, ","))
}

// HandleSubmit uploads a file and queues its import.
// @Summary Submit Import
// @Tags imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV or XLSX file"
// @Param mapping formData string false "Column mapping, JSON object or col=field pairs"
// @Success 202 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /imports [post]
func (h *Handler) HandleSubmit(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return h.fail(c, apperr.Validationf("file is required"))
	}
	if fh.Size > h.service.cfg.MaxFileSize {
		return h.fail(c, apperr.Validationf("file is larger than %d bytes", h.service.cfg.MaxFileSize))
	}
	mapping, err := parseMappingField(c.FormValue("mapping"))
	if err != nil {
		return h.fail(c, err)
	}

	f, err := fh.Open()
	if err != nil {
		return h.fail(c, apperr.Validationf("unreadable upload: %v", err))
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, h.service.cfg.MaxFileSize+1))
	if err != nil {
		return h.fail(c, apperr.Validationf("unreadable upload: %v", err))
	}

	task, err := h.service.Submit(c.Context(), SubmitRequest{
		ShopID:   shop.ID(c),
		Actor:    shop.Actor(c),
		FileName: fh.Filename,
		Content:  content,
		Mapping:  mapping,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"task_id": task.ID})
}

// HandleGet returns an import task with its row errors.
// @Summary Get Import
// @Tags imports
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} Task
// @Failure 404 {object} map[string]string
// @Router /imports/{id} [get]
func (h *Handler) HandleGet(c *fiber.Ctx) error {
	task, err := h.service.GetTask(c.Context(), shop.ID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(task)
}

// HandleList lists recent imports.
// @Summary List Imports
// @Tags imports
// @Produce json
// @Param limit query int false "Page size"
// @Success 200 {array} Task
// @Router /imports [get]
func (h *Handler) HandleList(c *fiber.Ctx) error {
	tasks, err := h.service.ListTasks(c.Context(), shop.ID(c), c.QueryInt("limit"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(tasks)
}

// HandleCancel stops an import. Rows already imported are kept.
// @Summary Cancel Import
// @Tags imports
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} Task
// @Failure 409 {object} map[string]string
// @Router /imports/{id}/cancel [post]
func (h *Handler) HandleCancel(c *fiber.Ctx) error {
	task, err := h.service.Cancel(c.Context(), shop.ID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(task)
}
