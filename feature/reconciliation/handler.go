package reconciliation

import (
	"strconv"

	"card-inventory/core/apperr"
	"card-inventory/core/logger"
	"card-inventory/core/middleware/shop"
	"card-inventory/core/validation"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for mismatches and scans.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers the reconciliation routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	mismatches := app.Group("/mismatches")
	mismatches.Get("/", h.HandleList)
	mismatches.Get("/:id", h.HandleGet)
	mismatches.Post("/:id/resolve", h.HandleResolve)

	app.Post("/reconciliation/scan", h.HandleScan)
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	l := logger.WithRayID(h.logger, c)
	switch apperr.KindOf(err) {
	case apperr.KindUnknown:
		l.Error("Reconciliation request failed", zap.Error(err))
	case apperr.KindExternalChannel:
		l.Warn("Resolution failed on the channel", zap.Error(err))
	}
	return apperr.Respond(c, err)
}

func paramID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validationf("invalid id %q", c.Params("id"))
	}
	return uint(id), nil
}

// HandleList lists the shop's mismatches.
// @Summary List Mismatches
// @Tags reconciliation
// @Produce json
// @Param status query string false "pending, push_internal, pull_channel, ignore"
// @Param integration query int false "Integration ID"
// @Param listing query int false "Listing ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{}
// @Router /mismatches [get]
func (h *Handler) HandleList(c *fiber.Ctx) error {
	out, total, err := h.service.ListMismatches(c.Context(), shop.ID(c), Filter{
		Status:        Status(c.Query("status")),
		IntegrationID: uint(c.QueryInt("integration")),
		ListingID:     uint(c.QueryInt("listing")),
		Limit:         c.QueryInt("limit"),
		Offset:        c.QueryInt("offset"),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"mismatches": out, "total": total})
}

// HandleGet returns one mismatch.
// @Summary Get Mismatch
// @Tags reconciliation
// @Produce json
// @Param id path int true "Mismatch ID"
// @Success 200 {object} Mismatch
// @Failure 404 {object} map[string]string
// @Router /mismatches/{id} [get]
func (h *Handler) HandleGet(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return h.fail(c, err)
	}
	m, err := h.service.GetMismatch(c.Context(), shop.ID(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(m)
}

// ResolveInput is the body of a resolution.
type ResolveInput struct {
	Resolution string `json:"resolution" validate:"required,oneof=push_internal pull_channel ignore"`
	Notes      string `json:"notes" validate:"max=2000"`
}

// HandleResolve applies a resolution to a pending mismatch.
// @Summary Resolve Mismatch
// @Tags reconciliation
// @Accept json
// @Produce json
// @Param id path int true "Mismatch ID"
// @Param body body ResolveInput true "Resolution"
// @Success 200 {object} Mismatch
// @Failure 409 {object} map[string]string "Already resolved"
// @Failure 502 {object} map[string]string "Channel error, mismatch left pending"
// @Router /mismatches/{id}/resolve [post]
func (h *Handler) HandleResolve(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return h.fail(c, err)
	}
	var in ResolveInput
	if err := c.BodyParser(&in); err != nil {
		return h.fail(c, apperr.Validationf("invalid request body: %v", err))
	}
	if err := validation.Get().Struct(in); err != nil {
		return h.fail(c, err)
	}
	m, err := h.service.Resolve(c.Context(), ResolveRequest{
		ShopID:     shop.ID(c),
		MismatchID: id,
		Resolution: Resolution(in.Resolution),
		Actor:      shop.Actor(c),
		Notes:      in.Notes,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(m)
}

// HandleScan scans the shop's listings now. With dry_run=true it only reports the plan.
// @Summary Scan For Mismatches
// @Tags reconciliation
// @Produce json
// @Param dry_run query bool false "Plan only"
// @Success 200 {object} ScanReport
// @Router /reconciliation/scan [post]
func (h *Handler) HandleScan(c *fiber.Ctx) error {
	if c.QueryBool("dry_run") {
		plan, err := h.service.Plan(c.Context(), shop.ID(c))
		if err != nil {
			return h.fail(c, err)
		}
		return c.JSON(plan)
	}
	report, err := h.service.ScanForMismatches(c.Context(), shop.ID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(report)
}
