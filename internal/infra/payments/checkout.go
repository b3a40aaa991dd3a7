package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/stagepass/marketplace/internal/core/port"
	"github.com/stagepass/marketplace/internal/infra/config"
)

// GatewayClient implements port.PaymentGateway against the hosted checkout
// provider's HTTP API.
type GatewayClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

// NewGatewayClient constructs the checkout gateway client.
func NewGatewayClient(cfg config.PaymentsSettings, logger *zap.Logger) *GatewayClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &GatewayClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		logger:     logger,
	}
}

type checkoutLineItemRequest struct {
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	Quantity int    `json:"quantity"`
}

type checkoutSessionRequest struct {
	LineItems  []checkoutLineItemRequest `json:"line_items"`
	SuccessURL string                    `json:"success_url"`
	CancelURL  string                    `json:"cancel_url"`
	Metadata   map[string]string         `json:"metadata,omitempty"`
	ExpiresAt  int64                     `json:"expires_at,omitempty"`
}

type checkoutSessionResponse struct {
	ID          string `json:"id"`
	RedirectURL string `json:"url"`
}

// CreateCheckoutSession creates a hosted checkout session at the gateway.
func (c *GatewayClient) CreateCheckoutSession(ctx context.Context, req port.CheckoutSessionRequest) (*port.CheckoutSession, error) {
	body := checkoutSessionRequest{
		LineItems:  make([]checkoutLineItemRequest, 0, len(req.LineItems)),
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		Metadata:   req.Metadata,
	}

	for _, item := range req.LineItems {
		body.LineItems = append(body.LineItems, checkoutLineItemRequest{
			Name:     item.Name,
			Amount:   item.Amount.StringFixed(2),
			Quantity: item.Quantity,
		})
	}

	if !req.ExpiresAt.IsZero() {
		body.ExpiresAt = req.ExpiresAt.Unix()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal checkout request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build checkout request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call checkout gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("checkout gateway rejected session",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		return nil, fmt.Errorf("checkout gateway returned status %d", resp.StatusCode)
	}

	var session checkoutSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode checkout response: %w", err)
	}

	if session.ID == "" || session.RedirectURL == "" {
		return nil, fmt.Errorf("checkout gateway returned incomplete session")
	}

	return &port.CheckoutSession{
		ID:          session.ID,
		RedirectURL: session.RedirectURL,
	}, nil
}

var _ port.PaymentGateway = (*GatewayClient)(nil)
