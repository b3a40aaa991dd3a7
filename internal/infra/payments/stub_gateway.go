package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stagepass/marketplace/internal/core/port"
)

// StubGateway fabricates checkout sessions locally instead of calling the
// provider. Useful for development environments without gateway credentials.
type StubGateway struct {
	logger *zap.Logger
}

// NewStubGateway constructs a development-friendly payment gateway.
func NewStubGateway(logger *zap.Logger) *StubGateway {
	return &StubGateway{logger: logger}
}

// CreateCheckoutSession returns a synthetic session pointing at the success URL.
func (g *StubGateway) CreateCheckoutSession(_ context.Context, req port.CheckoutSessionRequest) (*port.CheckoutSession, error) {
	id := fmt.Sprintf("cs_stub_%s", uuid.NewString())

	g.logger.Info("Stub checkout session created",
		zap.String("session_id", id),
		zap.Int("line_items", len(req.LineItems)),
	)

	return &port.CheckoutSession{
		ID:          id,
		RedirectURL: req.SuccessURL,
	}, nil
}

var _ port.PaymentGateway = (*StubGateway)(nil)
