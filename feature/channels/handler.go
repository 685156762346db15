package channels

import (
	"encoding/json"
	"errors"
	"strconv"

	"card-inventory/core/apperr"
	"card-inventory/core/logger"
	"card-inventory/core/middleware/shop"
	"card-inventory/core/validation"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SignatureHeader carries the webhook HMAC.
const SignatureHeader = "X-Signature"

// Handler handles HTTP requests for integrations, listings and order webhooks.
type Handler struct {
	service       *Service
	webhookSecret string
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, webhookSecret string, logger *zap.Logger) *Handler {
	return &Handler{service: service, webhookSecret: webhookSecret, logger: logger}
}

// RegisterRoutes registers the channel routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	integrations := app.Group("/integrations")
	integrations.Get("/", h.HandleListIntegrations)
	integrations.Post("/", h.HandleCreateIntegration)
	integrations.Get("/:id", h.HandleGetIntegration)
	integrations.Post("/:id/connect", h.HandleConnect)
	integrations.Post("/:id/activate", h.HandleActivate)
	integrations.Post("/:id/disconnect", h.HandleDisconnect)
	integrations.Post("/:id/poll", h.HandlePoll)

	listings := app.Group("/listings")
	listings.Get("/", h.HandleListListings)
	listings.Post("/", h.HandleLink)
	listings.Get("/:id", h.HandleGetListing)
	listings.Patch("/:id", h.HandleUpdateListing)
	listings.Delete("/:id", h.HandleDelist)
	listings.Post("/:id/push", h.HandlePush)
	listings.Get("/:id/jobs", h.HandleListJobs)

	app.Post("/webhooks/:provider/orders", h.HandleOrderWebhook)
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	l := logger.WithRayID(h.logger, c)
	switch apperr.KindOf(err) {
	case apperr.KindUnknown:
		l.Error("Channel request failed", zap.Error(err))
	case apperr.KindExternalChannel:
		l.Warn("Channel call failed", zap.Error(err))
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

func bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.Validationf("invalid request body: %v", err)
	}
	return validation.Get().Struct(dst)
}

// HandleListIntegrations lists the shop's integrations.
// @Summary List Integrations
// @Tags integrations
// @Produce json
// @Success 200 {array} Integration
// @Router /integrations [get]
func (h *Handler) HandleListIntegrations(c *fiber.Ctx) error {
	out, err := h.service.ListIntegrations(c.Context(), shop.ID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(out)
}

type createIntegrationInput struct {
	Provider string `json:"provider" validate:"required,max=32"`
}

// HandleCreateIntegration registers a disconnected integration.
// @Summary Create Integration
// @Tags integrations
// @Accept json
// @Produce json
// @Param body body createIntegrationInput true "Provider"
// @Success 201 {object} Integration
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /integrations [post]
func (h *Handler) HandleCreateIntegration(c *fiber.Ctx) error {
	var in createIntegrationInput
	if err := bind(c, &in); err != nil {
		return h.fail(c, err)
	}
	integ, err := h.service.CreateIntegration(c.Context(), shop.ID(c), in.Provider)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(integ)
}

// HandleGetIntegration returns one integration.
// @Summary Get Integration
// @Tags integrations
// @Produce json
// @Param id path int true "Integration ID"
// @Success 200 {object} Integration
// @Failure 404 {object} map[string]string
// @Router /integrations/{id} [get]
func (h *Handler) HandleGetIntegration(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return h.fail(c, err)
	}
	integ, err := h.service.GetIntegration(c.Context(), shop.ID(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(integ)
}

// HandleConnect returns the provider's authorization URL.
// @Summary Connect Integration
// @Tags integrations
// @Produce json
// @Param id path int true "Integration ID"
// @Success 200 {object} map[string]string
// @Router /integrations/{id}/connect [post]
func (h *Handler) HandleConnect(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return h.fail(c, err)
	}
	u, err := h.service.Connect(c.Context(), shop.ID(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"authorization_url": u})
}

// HandleActivate stores the credential delivered by the OAuth exchange.
// @Summary Activate Integration
// @Tags integrations
// @Accept json
// @Produce json
// @Param id path int true "Integration ID"
// @Param body body ActivateRequest true "Credential"
// @Success 200 {object} Integration
// @Router /integrations/{id}/activate [post]
func (h *Handler) HandleActivate(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return h.fail(c, err)
	}
	var in ActivateRequest
	if err := bind(c, &in); err != nil {
		return h.fail(c, err)
	}
	integ, err := h.service.Activate(c.Context(), shop.ID(c), id, in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(integ)
}

// HandleDisconnect drops the integration's credential.
// @Summary Disconnect Integration
// @Tags integrations
// @Produce json
// @Param id path int true "Integration ID"
// @Success 200 {object} Integration
// @Router /integrations/{id}/disconnect [post]
func (h *Handler) HandleDisconnect(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return h.fail(c, err)
	}
	integ, err := h.service.Disconnect(c.Context(), shop.ID(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(integ)
}

// HandlePoll polls the integration's orders now.
// @Summary Poll Orders
// @Tags integrations
// @Produce json
// @Param id path int true "Integration ID"
// @Success 200 {object} OrderReport
// @Failure 502 {object} map[string]string
// @Router /integrations/{id}/poll [post]
func (h *Handler) HandlePoll(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return h.fail(c, err)
	}
	integ, err := h.service.GetIntegration(c.Context(), shop.ID(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	report, err := h.service.PollIntegration(c.Context(), integ)
	if errors.Is(err, errNoOrderSource) {
		return h.fail(c, apperr.Validationf("%s does not expose orders", integ.Provider))
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(report)
}

// HandleListListings lists the shop's listings.
// @Summary List Listings
// @Tags listings
// @Produce json
// @Param integration query int false "Integration ID"
// @Param state query string false "pending, synced, error, delisted"
// @Param lot query int false "Lot ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{}
// @Router /listings [get]
func (h *Handler) HandleListListings(c *fiber.Ctx) error {
	out, total, err := h.service.ListListings(c.Context(), shop.ID(c), ListingFilter{
		IntegrationID: uint(c.QueryInt("integration")),
		State:         SyncState(c.Query("state")),
		LotID:         uint(c.QueryInt("lot")),
		Limit:         c.QueryInt("limit"),
		Offset:        c.QueryInt("offset"),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"listings": out, "total": total})
}

// HandleLink publishes a lot on an integration and queues the first push.
// @Summary Link Listing
// @Tags listings
// @Accept json
// @Produce json
// @Param body body LinkRequest true "Listing"
// @Success 201 {object} Listing
// @Failure 409 {object} map[string]string "Lot already listed on the integration"
// @Router /listings [post]
func (h *Handler) HandleLink(c *fiber.Ctx) error {
	var in LinkRequest
	if err := bind(c, &in); err != nil {
		return h.fail(c, err)
	}
	in.ShopID = shop.ID(c)
	listing, err := h.service.Link(c.Context(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(listing)
}

// HandleGetListing returns one listing.
// @Summary Get Listing
// @Tags listings
// @Produce json
// @Param id path int true "Listing ID"
// @Success 200 {object} Listing
// @Failure 404 {object} map[string]string
// @Router /listings/{id} [get]
func (h *Handler) HandleGetListing(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return h.fail(c, err)
	}
	listing, err := h.service.GetListing(c.Context(), shop.ID(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(listing)
}

// HandleUpdateListing changes descriptive listing fields.
// @Summary Update Listing
// @Tags listings
// @Accept json
// @Produce json
// @Param id path int true "Listing ID"
// @Param body body ListingUpdate true "Fields"
// @Success 200 {object} Listing
// @Router /listings/{id} [patch]
func (h *Handler) HandleUpdateListing(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return h.fail(c, err)
	}
	var in ListingUpdate
	if err := bind(c, &in); err != nil {
		return h.fail(c, err)
	}
	listing, err := h.service.UpdateListing(c.Context(), shop.ID(c), id, in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(listing)
}

// HandleDelist ends a listing.
// @Summary Delist
// @Tags listings
// @Produce json
// @Param id path int true "Listing ID"
// @Success 200 {object} Listing
// @Router /listings/{id} [delete]
func (h *Handler) HandleDelist(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return h.fail(c, err)
	}
	listing, err := h.service.Delist(c.Context(), shop.ID(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(listing)
}

// HandlePush queues a quantity push, or performs it with wait=true.
// @Summary Push Quantity
// @Tags listings
// @Produce json
// @Param id path int true "Listing ID"
// @Param wait query bool false "Push synchronously"
// @Success 200 {object} Listing
// @Success 202 {object} map[string]interface{}
// @Failure 502 {object} map[string]string "Channel error"
// @Router /listings/{id}/push [post]
func (h *Handler) HandlePush(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return h.fail(c, err)
	}
	if _, err := h.service.GetListing(c.Context(), shop.ID(c), id); err != nil {
		return h.fail(c, err)
	}
	if !c.QueryBool("wait") {
		h.service.Enqueue(id)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"listing_id": id, "status": "queued"})
	}
	listing, err := h.service.PushQuantity(c.Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(listing)
}

// HandleListJobs returns the sync audit trail of a listing.
// @Summary List Sync Jobs
// @Tags listings
// @Produce json
// @Param id path int true "Listing ID"
// @Param limit query int false "Page size"
// @Success 200 {array} SyncJob
// @Router /listings/{id}/jobs [get]
func (h *Handler) HandleListJobs(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return h.fail(c, err)
	}
	jobs, err := h.service.ListSyncJobs(c.Context(), shop.ID(c), id, c.QueryInt("limit"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(jobs)
}

// HandleOrderWebhook applies orders pushed by a channel. The body must carry a
// valid HMAC-SHA256 signature.
// @Summary Order Webhook
// @Tags webhooks
// @Accept json
// @Produce json
// @Param provider path string true "Provider"
// @Param body body WebhookOrders true "Orders"
// @Success 200 {object} OrderReport
// @Failure 403 {object} map[string]string
// @Router /webhooks/{provider}/orders [post]
func (h *Handler) HandleOrderWebhook(c *fiber.Ctx) error {
	if !VerifySignature(h.webhookSecret, c.Body(), c.Get(SignatureHeader)) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "invalid signature"})
	}
	var payload WebhookOrders
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return h.fail(c, apperr.Validationf("invalid payload: %v", err))
	}
	if err := validation.Get().Struct(payload); err != nil {
		return h.fail(c, err)
	}
	report, err := h.service.ApplyWebhook(c.Context(), c.Params("provider"), payload)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(report)
}
