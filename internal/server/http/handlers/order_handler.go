package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/avoray/ordersync/internal/domain/errors"
	"github.com/avoray/ordersync/internal/domain/model"
	"github.com/avoray/ordersync/internal/server/http/dto"
)

// OrderHandler manages the admin order endpoints.
type OrderHandler struct {
	facade OrderFacade
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(facade OrderFacade) *OrderHandler {
	return &OrderHandler{facade: facade}
}

// Create handles POST /api/admin/orders.
func (h *OrderHandler) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	if req.Number == "" || req.TotalAmount <= 0 {
		c.Status(http.StatusBadRequest)
		return
	}

	order, err := h.facade.CreateOrder(c.Request.Context(), model.Order{
		Number:           req.Number,
		CustomerEmail:    req.CustomerEmail,
		TotalAmount:      req.TotalAmount,
		Type:             model.OrderType(req.Type),
		PaymentReference: req.PaymentReference,
	})
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusCreated, toOrderResponse(order))
}

// Get handles GET /api/admin/orders/:id.
func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	order, err := h.facade.GetOrder(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domainErrors.ErrNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}

// Transition handles POST /api/admin/orders/:id/transition.
func (h *OrderHandler) Transition(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	order, err := h.facade.Transition(c.Request.Context(), id, model.OrderStatus(req.Status), req.ActorID)
	if err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrNotFound):
			c.Status(http.StatusNotFound)
		case errors.Is(err, domainErrors.ErrInvalidTransition):
			c.Status(http.StatusUnprocessableEntity)
		case errors.Is(err, domainErrors.ErrMissingAssignment):
			c.Status(http.StatusUnprocessableEntity)
		case errors.Is(err, domainErrors.ErrLockBusy):
			c.Status(http.StatusConflict)
		default:
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}

// Assign handles POST /api/admin/orders/:id/assign.
func (h *OrderHandler) Assign(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	var req dto.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	if req.AgentID <= 0 {
		c.Status(http.StatusBadRequest)
		return
	}

	order, err := h.facade.Assign(c.Request.Context(), id, req.AgentID, req.ActorID)
	if err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrNotFound):
			c.Status(http.StatusNotFound)
		case errors.Is(err, domainErrors.ErrInvalidTransition):
			c.Status(http.StatusUnprocessableEntity)
		case errors.Is(err, domainErrors.ErrLockBusy):
			c.Status(http.StatusConflict)
		default:
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}

// Audit handles GET /api/admin/orders/:id/audit.
func (h *OrderHandler) Audit(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	records, err := h.facade.AuditTrail(c.Request.Context(), id)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	response := make([]dto.AuditRecordResponse, 0, len(records))
	for _, rec := range records {
		response = append(response, dto.AuditRecordResponse{
			ActorID:    rec.ActorID,
			FromStatus: string(rec.FromStatus),
			ToStatus:   string(rec.ToStatus),
			RecordedAt: rec.RecordedAt,
		})
	}

	c.JSON(http.StatusOK, response)
}

func orderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.Status(http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func toOrderResponse(order *model.Order) dto.OrderResponse {
	return dto.OrderResponse{
		ID:               order.ID,
		Number:           order.Number,
		CustomerEmail:    order.CustomerEmail,
		Status:           string(order.Status),
		PaymentStatus:    string(order.PaymentStatus),
		TotalAmount:      order.TotalAmount,
		PaymentReference: order.PaymentReference,
		AssignedAgentID:  order.AssignedAgentID,
		Type:             string(order.Type),
		PaidAt:           order.PaidAt,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
}
