package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stagepass/marketplace/internal/usecase"
)

const webhookSignatureHeader = "X-Gateway-Signature"

// PaymentsHandler receives checkout webhooks from the payment gateway.
type PaymentsHandler struct {
	purchases     *usecase.PurchaseService
	webhookSecret string
	logger        *zap.Logger
}

// NewPaymentsHandler constructs PaymentsHandler.
func NewPaymentsHandler(purchases *usecase.PurchaseService, webhookSecret string, logger *zap.Logger) *PaymentsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentsHandler{
		purchases:     purchases,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// RegisterRoutes binds the webhook endpoint.
func (h *PaymentsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhook", h.webhook)
}

type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		SessionID string `json:"session_id"`
	} `json:"data"`
}

// webhook settles or releases purchases on gateway notifications. The
// endpoint is idempotent: the gateway may redeliver events at any time.
func (h *PaymentsHandler) webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unreadable payload"))
		return
	}

	if !h.verifySignature(body, c.GetHeader(webhookSignatureHeader)) {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid signature"))
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid event payload"))
		return
	}

	if event.Data.SessionID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "missing session id"))
		return
	}

	switch event.Type {
	case "checkout.completed":
		if _, err := h.purchases.ConfirmPurchase(c.Request.Context(), event.Data.SessionID); err != nil {
			h.handleWebhookError(c, err, "confirm purchase failed")
			return
		}
	case "checkout.expired", "checkout.cancelled":
		purchase, err := h.purchases.GetPurchaseByCheckoutSession(c.Request.Context(), event.Data.SessionID)
		if err != nil {
			h.handleWebhookError(c, err, "lookup purchase failed")
			return
		}
		if err := h.purchases.ReleasePurchase(c.Request.Context(), purchase.ID, event.Type); err != nil {
			h.handleWebhookError(c, err, "release purchase failed")
			return
		}
	default:
		// Unknown event types are acknowledged so the gateway stops retrying.
		h.logger.Debug("ignoring webhook event", zap.String("type", event.Type))
	}

	c.Status(http.StatusNoContent)
}

func (h *PaymentsHandler) handleWebhookError(c *gin.Context, err error, message string) {
	if errors.Is(err, usecase.ErrPurchaseNotFound) {
		// Acknowledge: the session belongs to no known purchase and a retry
		// will not change that.
		c.Status(http.StatusNoContent)
		return
	}

	h.logger.Error(message, zap.Error(err))
	c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "webhook processing failed"))
}

func (h *PaymentsHandler) verifySignature(body []byte, signature string) bool {
	if h.webhookSecret == "" {
		// No secret configured (development); accept unsigned events.
		return true
	}
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
