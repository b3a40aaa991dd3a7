package handlers

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stagepass/marketplace/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserSummary describes a minimal view of a user returned by the API.
type UserSummary struct {
	ID            string  `json:"id"`
	Email         *string `json:"email,omitempty"`
	Role          string  `json:"role"`
	EmailVerified bool    `json:"email_verified"`
}

func newUserSummary(user *domain.User) UserSummary {
	return UserSummary{
		ID:            user.ID,
		Email:         user.Email,
		Role:          string(user.Role),
		EmailVerified: user.EmailVerified,
	}
}

// RegisterRequest defines the payload for account registration.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse describes the response returned for a successful login or refresh.
type TokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	SessionID    string      `json:"session_id"`
	ExpiresAt    time.Time   `json:"expires_at"`
	User         UserSummary `json:"user"`
}

// RefreshRequest represents the payload carrying a refresh token. The field
// is optional in the body; handlers fall back to the refresh cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SessionSummary provides a compact view of one ledger entry.
type SessionSummary struct {
	ID        string    `json:"id"`
	IsValid   bool      `json:"is_valid"`
	IP        *string   `json:"ip,omitempty"`
	UserAgent *string   `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newSessionSummary(session domain.Session) SessionSummary {
	return SessionSummary{
		ID:        session.ID,
		IsValid:   session.IsValid,
		IP:        session.IP,
		UserAgent: session.UserAgent,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	}
}

// SessionListResponse wraps the caller's session ledger.
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// RevokeAllResponse reports how many sessions were invalidated.
type RevokeAllResponse struct {
	Revoked int `json:"revoked"`
}

// PasswordResetRequest asks for a reset token by email.
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required"`
}

// PasswordResetConfirmRequest redeems a reset token.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// PasskeyBeginLoginRequest opens an assertion ceremony.
type PasskeyBeginLoginRequest struct {
	Email string `json:"email" binding:"required"`
}

// PasskeyBeginResponse carries browser options plus the opaque ceremony token.
type PasskeyBeginResponse struct {
	CeremonyToken string `json:"ceremony_token"`
	Options       any    `json:"options"`
}

// PasskeyFinishRequest completes a ceremony with the authenticator response.
type PasskeyFinishRequest struct {
	CeremonyToken string `json:"ceremony_token" binding:"required"`
	// Response is the raw JSON produced by the browser credential API.
	Response json.RawMessage `json:"response" binding:"required"`
}

// PasskeySummary describes one registered credential.
type PasskeySummary struct {
	ID         string    `json:"id"`
	Transports []string  `json:"transports,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateListingRequest opens a new resale listing.
type CreateListingRequest struct {
	TicketID  string     `json:"ticket_id" binding:"required"`
	EventID   string     `json:"event_id" binding:"required"`
	Price     string     `json:"price" binding:"required"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ListingResponse is the public view of a resale listing.
type ListingResponse struct {
	ID        string     `json:"id"`
	TicketID  string     `json:"ticket_id"`
	SellerID  string     `json:"seller_id"`
	EventID   string     `json:"event_id"`
	Price     string     `json:"price"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func newListingResponse(listing domain.ResaleListing) ListingResponse {
	return ListingResponse{
		ID:        listing.ID,
		TicketID:  listing.TicketID,
		SellerID:  listing.SellerID,
		EventID:   listing.EventID,
		Price:     listing.Price.StringFixed(2),
		Status:    string(listing.Status),
		ExpiresAt: listing.ExpiresAt,
		CreatedAt: listing.CreatedAt,
		UpdatedAt: listing.UpdatedAt,
	}
}

// CheckoutResponse is returned after a successful purchase initiation.
type CheckoutResponse struct {
	PurchaseID  string    `json:"purchase_id"`
	ListingID   string    `json:"listing_id"`
	Subtotal    string    `json:"subtotal"`
	Fee         string    `json:"fee"`
	Total       string    `json:"total"`
	RedirectURL string    `json:"redirect_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// PurchaseResponse is the public view of a purchase record.
type PurchaseResponse struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listing_id"`
	TicketID  string    `json:"ticket_id"`
	EventID   string    `json:"event_id"`
	Subtotal  string    `json:"subtotal"`
	Fee       string    `json:"fee"`
	Total     string    `json:"total"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newPurchaseResponse(purchase domain.Purchase) PurchaseResponse {
	return PurchaseResponse{
		ID:        purchase.ID,
		ListingID: purchase.ListingID,
		TicketID:  purchase.TicketID,
		EventID:   purchase.EventID,
		Subtotal:  purchase.Subtotal.StringFixed(2),
		Fee:       purchase.Fee.StringFixed(2),
		Total:     purchase.Total.StringFixed(2),
		Status:    string(purchase.Status),
		CreatedAt: purchase.CreatedAt,
		UpdatedAt: purchase.UpdatedAt,
	}
}

// HealthResponse reports liveness status.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports readiness per dependency.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
