package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/avoray/ordersync/internal/app"
	domainErrors "github.com/avoray/ordersync/internal/domain/errors"
	"github.com/avoray/ordersync/internal/domain/model"
	pkgAuth "github.com/avoray/ordersync/internal/pkg/auth"
	"github.com/avoray/ordersync/internal/server/http/dto"
	"github.com/avoray/ordersync/internal/usecase"
)

const (
	signatureHeader      = "X-Webhook-Signature"
	idempotencyKeyHeader = "Idempotency-Key"
)

// WebhookHandler processes payment gateway event deliveries.
type WebhookHandler struct {
	facade   WebhookFacade
	verifier *pkgAuth.HMACVerifier
}

// NewWebhookHandler constructs WebhookHandler.
func NewWebhookHandler(facade WebhookFacade, verifier *pkgAuth.HMACVerifier) *WebhookHandler {
	return &WebhookHandler{facade: facade, verifier: verifier}
}

// Handle processes POST /api/gateway/webhook. A 200 is returned only once the
// event's effect is durably recorded; anything else tells the gateway to
// redeliver.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if err := h.verifier.Verify(body, c.GetHeader(signatureHeader)); err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	var req dto.WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	if req.ProviderReference == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	status, ok := parseTransactionStatus(req.Status)
	if !ok {
		c.Status(http.StatusBadRequest)
		return
	}

	// Gateways that do not send an idempotency key still get replay
	// protection keyed by the reference itself.
	key := strings.TrimSpace(c.GetHeader(idempotencyKeyHeader))
	if key == "" {
		key = req.ProviderReference
	}

	payload, _, err := h.facade.HandleGatewayEvent(c.Request.Context(), key, usecase.Fingerprint(body), app.GatewayEvent{
		ProviderReference: req.ProviderReference,
		Status:            status,
		Amount:            req.Amount,
		OrderID:           req.OrderID,
		OrderNumber:       req.OrderNumber,
	})
	if err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrInFlightConflict):
			c.Status(http.StatusConflict)
		case errors.Is(err, domainErrors.ErrLockBusy):
			c.Status(http.StatusServiceUnavailable)
		default:
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	c.Data(http.StatusOK, "application/json", payload)
}

func parseTransactionStatus(raw string) (model.TransactionStatus, bool) {
	switch model.TransactionStatus(strings.ToLower(raw)) {
	case model.TransactionStatusSuccess:
		return model.TransactionStatusSuccess, true
	case model.TransactionStatusFailed:
		return model.TransactionStatusFailed, true
	case model.TransactionStatusPending:
		return model.TransactionStatusPending, true
	}
	return "", false
}
