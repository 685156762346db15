package inventory

import (
	"encoding/json"
	"strconv"

	"card-inventory/core/apperr"
	"card-inventory/core/logger"
	"card-inventory/core/middleware/shop"
	"card-inventory/core/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for cards, lots and the ledger.
type Handler struct {
	service  *Service
	listings ActiveListingCounter
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, listings ActiveListingCounter, logger *zap.Logger) *Handler {
	return &Handler{service: service, listings: listings, logger: logger}
}

// RegisterRoutes registers the inventory routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	cards := app.Group("/cards")
	cards.Get("/", h.HandleListCards)
	cards.Post("/", h.HandleCreateCard)
	cards.Get("/:id", h.HandleGetCard)

	lots := app.Group("/lots")
	lots.Get("/", h.HandleListLots)
	lots.Post("/", h.HandleCreateLot)
	lots.Get("/:id", h.HandleGetLot)
	lots.Patch("/:id", h.HandleUpdateLot)
	lots.Delete("/:id", h.HandleRetireLot)
	lots.Post("/:id/adjust", h.HandleAdjust)
	lots.Post("/:id/reserve", h.HandleReserve)
	lots.Post("/:id/unreserve", h.HandleUnreserve)
	lots.Post("/:id/grading/send", h.HandleSendToGrading)
	lots.Post("/:id/grading/return", h.HandleReturnFromGrading)

	app.Get("/events", h.HandleListEvents)
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	l := logger.WithRayID(h.logger, c)
	switch apperr.KindOf(err) {
	case apperr.KindUnknown:
		l.Error("Inventory request failed", zap.Error(err))
	case apperr.KindInvariantViolation:
		l.Warn("Inventory request refused", zap.Error(err))
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

// HandleListCards lists the shop's cards.
// @Summary List Cards
// @Tags cards
// @Produce json
// @Param q query string false "Search name, set or number"
// @Param set query string false "Exact set name"
// @Param limit query int false "Page size (max 200)"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{}
// @Router /cards [get]
func (h *Handler) HandleListCards(c *fiber.Ctx) error {
	cards, total, err := h.service.ListCards(c.Context(), shop.ID(c), CardFilter{
		Search:  c.Query("q"),
		SetName: c.Query("set"),
		Limit:   c.QueryInt("limit"),
		Offset:  c.QueryInt("offset"),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"cards": cards, "total": total})
}

// HandleCreateCard creates a card.
// @Summary Create Card
// @Tags cards
// @Accept json
// @Produce json
// @Param card body CardInput true "Card identity"
// @Success 201 {object} Card
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /cards [post]
func (h *Handler) HandleCreateCard(c *fiber.Ctx) error {
	var in CardInput
	if err := bind(c, &in); err != nil {
		return h.fail(c, err)
	}
	card, err := h.service.CreateCard(c.Context(), shop.ID(c), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(card)
}

// HandleGetCard returns one card.
// @Summary Get Card
// @Tags cards
// @Produce json
// @Param id path int true "Card ID"
// @Success 200 {object} Card
// @Failure 404 {object} map[string]string
// @Router /cards/{id} [get]
func (h *Handler) HandleGetCard(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return h.fail(c, err)
	}
	card, err := h.service.GetCard(c.Context(), shop.ID(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(card)
}

// HandleListLots lists the shop's lots.
// @Summary List Lots
// @Tags lots
// @Produce json
// @Param status query string false "available, reserved, grading, damaged"
// @Param condition query string false "NM, LP, MP, HP, DMG"
// @Param location query string false "Exact location"
// @Param q query string false "Search sku, location, card name or set"
// @Param limit query int false "Page size (max 200)"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{}
// @Router /lots [get]
func (h *Handler) HandleListLots(c *fiber.Ctx) error {
	f := LotFilter{
		Status:   LotStatus(c.Query("status")),
		Location: c.Query("location"),
		Search:   c.Query("q"),
		Limit:    c.QueryInt("limit"),
		Offset:   c.QueryInt("offset"),
	}
	if raw := c.Query("condition"); raw != "" {
		cond, ok := ParseCondition(raw)
		if !ok {
			return h.fail(c, apperr.Validationf("unknown condition %q", raw))
		}
		f.Condition = cond
	}
	lots, total, err := h.service.ListLots(c.Context(), shop.ID(c), f)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"lots": lots, "total": total})
}

// CreateLotInput is the payload of POST /lots.
type CreateLotInput struct {
	CardID    uint       `json:"card_id" validate:"required_without=Card"`
	Card      *CardInput `json:"card" validate:"omitempty"`
	SKU       string     `json:"sku" validate:"max=64"`
	Condition string     `json:"condition" validate:"condition"`
	Language  string     `json:"language" validate:"max=8"`
	Location  string     `json:"location" validate:"max=128"`
	CostBasis string     `json:"cost_basis"`
	Quantity  int        `json:"quantity" validate:"gte=0"`
	Reason    string     `json:"reason" validate:"max=255"`
}

// HandleCreateLot creates a lot; its initial quantity is recorded as a manual event.
// @Summary Create Lot
// @Tags lots
// @Accept json
// @Produce json
// @Param lot body CreateLotInput true "Lot"
// @Success 201 {object} Lot
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /lots [post]
func (h *Handler) HandleCreateLot(c *fiber.Ctx) error {
	var in CreateLotInput
	if err := bind(c, &in); err != nil {
		return h.fail(c, err)
	}
	shopID := shop.ID(c)

	cardID := in.CardID
	if in.Card != nil {
		card, _, err := h.service.FindOrCreateCard(c.Context(), shopID, *in.Card)
		if err != nil {
			return h.fail(c, err)
		}
		cardID = card.ID
	}

	var cost decimal.NullDecimal
	if in.CostBasis != "" {
		d, err := ParseMoney(in.CostBasis)
		if err != nil {
			return h.fail(c, err)
		}
		cost = decimal.NewNullDecimal(d)
	}

	lot, _, err := h.service.CreateLot(c.Context(), CreateLotRequest{
		ShopID:    shopID,
		CardID:    cardID,
		SKU:       in.SKU,
		Condition: in.Condition,
		Language:  in.Language,
		Location:  in.Location,
		CostBasis: cost,
		Quantity:  in.Quantity,
		EventType: EventManual,
		Actor:     shop.Actor(c),
		Reason:    in.Reason,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(lot)
}

// HandleGetLot returns one lot with its card.
// @Summary Get Lot
// @Tags lots
// @Produce json
// @Param id path int true "Lot ID"
// @Success 200 {object} Lot
// @Failure 404 {object} map[string]string
// @Router /lots/{id} [get]
func (h *Handler) HandleGetLot(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return h.fail(c, err)
	}
	lot, err := h.service.GetLot(c.Context(), shop.ID(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(lot)
}

// HandleUpdateLot changes descriptive lot fields. Quantity fields are rejected.
// @Summary Update Lot
// @Tags lots
// @Accept json
// @Produce json
// @Param id path int true "Lot ID"
// @Param fields body map[string]interface{} true "location, condition, language, cost_basis, sku"
// @Success 200 {object} Lot
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /lots/{id} [patch]
func (h *Handler) HandleUpdateLot(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return h.fail(c, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(c.Body(), &fields); err != nil {
		return h.fail(c, apperr.Validationf("invalid request body: %v", err))
	}
	lot, err := h.service.UpdateLot(c.Context(), shop.ID(c), id, fields)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(lot)
}

// HandleRetireLot writes a lot off as damaged.
// @Summary Retire Lot
// @Tags lots
// @Produce json
// @Param id path int true "Lot ID"
// @Success 200 {object} Lot
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "Lot has active listings"
// @Router /lots/{id} [delete]
func (h *Handler) HandleRetireLot(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return h.fail(c, err)
	}
	lot, err := h.service.RetireLot(c.Context(), shop.ID(c), id, h.listings)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(lot)
}

// AdjustInput is the payload of POST /lots/:id/adjust.
type AdjustInput struct {
	Delta     int            `json:"delta" validate:"ne=0"`
	EventType EventType      `json:"event_type" validate:"omitempty,oneof=sale adjustment manual"`
	Reason    string         `json:"reason" validate:"max=255"`
	OrderID   string         `json:"order_id" validate:"max=64"`
	Metadata  map[string]any `json:"metadata"`
}

// HandleAdjust appends one ledger event to a lot.
// @Summary Adjust Lot Quantity
// @Tags lots
// @Accept json
// @Produce json
// @Param id path int true "Lot ID"
// @Param adjustment body AdjustInput true "Adjustment"
// @Success 200 {object} map[string]interface{} "Lot and Event"
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 422 {object} map[string]string "Quantity would become negative"
// @Router /lots/{id}/adjust [post]
func (h *Handler) HandleAdjust(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return h.fail(c, err)
	}
	var in AdjustInput
	if err := bind(c, &in); err != nil {
		return h.fail(c, err)
	}
	if in.EventType == "" {
		in.EventType = EventAdjustment
	}
	lot, ev, err := h.service.Adjust(c.Context(), AdjustRequest{
		ShopID:    shop.ID(c),
		LotID:     id,
		Delta:     in.Delta,
		EventType: in.EventType,
		Reason:    in.Reason,
		OrderID:   in.OrderID,
		Actor:     shop.Actor(c),
		Metadata:  in.Metadata,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"lot": lot, "event": ev})
}

// QuantityInput carries a positive quantity.
type QuantityInput struct {
	Quantity int    `json:"quantity" validate:"required,min=1"`
	Reason   string `json:"reason" validate:"max=255"`
	Grader   string `json:"grader" validate:"max=64"`
	Grade    string `json:"grade" validate:"max=32"`
}

// HandleReserve moves quantity from available to reserved.
// @Summary Reserve Stock
// @Tags lots
// @Accept json
// @Produce json
// @Param id path int true "Lot ID"
// @Param body body QuantityInput true "Quantity"
// @Success 200 {object} map[string]interface{} "Lot and Event"
// @Failure 422 {object} map[string]string
// @Router /lots/{id}/reserve [post]
func (h *Handler) HandleReserve(c *fiber.Ctx) error {
	return h.quantityOp(c, func(c *fiber.Ctx, id uint, in QuantityInput) (*Lot, *Event, error) {
		return h.service.Reserve(c.Context(), shop.ID(c), id, in.Quantity, shop.Actor(c), in.Reason)
	})
}

// HandleUnreserve moves quantity from reserved back to available.
// @Summary Release Reserved Stock
// @Tags lots
// @Accept json
// @Produce json
// @Param id path int true "Lot ID"
// @Param body body QuantityInput true "Quantity"
// @Success 200 {object} map[string]interface{} "Lot and Event"
// @Failure 422 {object} map[string]string
// @Router /lots/{id}/unreserve [post]
func (h *Handler) HandleUnreserve(c *fiber.Ctx) error {
	return h.quantityOp(c, func(c *fiber.Ctx, id uint, in QuantityInput) (*Lot, *Event, error) {
		return h.service.Unreserve(c.Context(), shop.ID(c), id, in.Quantity, shop.Actor(c), in.Reason)
	})
}

// HandleSendToGrading sends copies of a lot to a grading service.
// @Summary Send To Grading
// @Tags lots
// @Accept json
// @Produce json
// @Param id path int true "Lot ID"
// @Param body body QuantityInput true "Quantity and grader"
// @Success 200 {object} map[string]interface{} "Lot and Event"
// @Failure 422 {object} map[string]string
// @Router /lots/{id}/grading/send [post]
func (h *Handler) HandleSendToGrading(c *fiber.Ctx) error {
	return h.quantityOp(c, func(c *fiber.Ctx, id uint, in QuantityInput) (*Lot, *Event, error) {
		return h.service.SendToGrading(c.Context(), shop.ID(c), id, in.Quantity, in.Grader, shop.Actor(c))
	})
}

// HandleReturnFromGrading returns graded copies to stock.
// @Summary Return From Grading
// @Tags lots
// @Accept json
// @Produce json
// @Param id path int true "Lot ID"
// @Param body body QuantityInput true "Quantity and grade"
// @Success 200 {object} map[string]interface{} "Lot and Event"
// @Failure 409 {object} map[string]string "Lot is not in grading"
// @Router /lots/{id}/grading/return [post]
func (h *Handler) HandleReturnFromGrading(c *fiber.Ctx) error {
	return h.quantityOp(c, func(c *fiber.Ctx, id uint, in QuantityInput) (*Lot, *Event, error) {
		return h.service.ReturnFromGrading(c.Context(), shop.ID(c), id, in.Quantity, in.Grade, shop.Actor(c))
	})
}

func (h *Handler) quantityOp(c *fiber.Ctx, op func(*fiber.Ctx, uint, QuantityInput) (*Lot, *Event, error)) error {
	id, err := paramID(c)
	if err != nil {
		return h.fail(c, err)
	}
	var in QuantityInput
	if err := bind(c, &in); err != nil {
		return h.fail(c, err)
	}
	lot, ev, err := op(c, id, in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"lot": lot, "event": ev})
}

// HandleListEvents pages through the ledger audit log.
// @Summary List Ledger Events
// @Tags events
// @Produce json
// @Param lot query int false "Lot ID"
// @Param type query string false "Event type"
// @Param q query string false "Search actor, type, reason and metadata"
// @Param cursor query int false "Id of the last event of the previous page"
// @Param limit query int false "Page size (max 200)"
// @Success 200 {object} EventPage
// @Router /events [get]
func (h *Handler) HandleListEvents(c *fiber.Ctx) error {
	f := EventFilter{
		LotID:  uint(c.QueryInt("lot")),
		Type:   EventType(c.Query("type")),
		Search: c.Query("q"),
		Cursor: uint(c.QueryInt("cursor")),
		Limit:  c.QueryInt("limit"),
	}
	if f.Type != "" && !f.Type.Valid() {
		return h.fail(c, apperr.Validationf("unknown event type %q", f.Type))
	}
	page, err := h.service.ListEvents(c.Context(), shop.ID(c), f)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(page)
}
