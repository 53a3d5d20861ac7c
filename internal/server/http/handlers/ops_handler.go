package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/avoray/ordersync/internal/server/http/dto"
)

const defaultDeadLetterLimit = 100

// OpsHandler exposes operational endpoints for triage and maintenance.
type OpsHandler struct {
	facade OpsFacade
}

// NewOpsHandler constructs OpsHandler.
func NewOpsHandler(facade OpsFacade) *OpsHandler {
	return &OpsHandler{facade: facade}
}

// DeadLetters handles GET /api/admin/dead-letters.
func (h *OpsHandler) DeadLetters(c *gin.Context) {
	limit := defaultDeadLetterLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.Status(http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	entries, err := h.facade.DeadLetters(c.Request.Context(), limit)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	if len(entries) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	response := make([]dto.DeadLetterResponse, 0, len(entries))
	for _, e := range entries {
		response = append(response, dto.DeadLetterResponse{
			ID:              e.ID,
			OriginalEntryID: e.OriginalEntryID,
			OrderID:         e.OrderID,
			EventType:       string(e.EventType),
			Recipient:       e.Recipient,
			FinalError:      e.FinalError,
			TotalAttempts:   e.TotalAttempts,
			MovedAt:         e.MovedAt,
		})
	}

	c.JSON(http.StatusOK, response)
}

// Reconcile handles POST /api/admin/reconcile: a manual sweep over unsettled
// transactions.
func (h *OpsHandler) Reconcile(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.Status(http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	if limit == 0 {
		limit = defaultDeadLetterLimit
	}

	linked, err := h.facade.ReplayUnsettled(c.Request.Context(), limit)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, dto.ReconcileResponse{Linked: linked})
}

// Health handles GET /healthz.
func (h *OpsHandler) Health(c *gin.Context) {
	if err := h.facade.Health(c.Request.Context()); err != nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	c.Status(http.StatusOK)
}
