package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stagepass/marketplace/internal/usecase"
)

// PasswordHandler exposes the forgot-password lifecycle.
type PasswordHandler struct {
	reset *usecase.PasswordResetService
	isDev bool
}

// NewPasswordHandler constructs PasswordHandler. In development the raw reset
// token is echoed back since no mail delivery is wired locally.
func NewPasswordHandler(reset *usecase.PasswordResetService, isDev bool) *PasswordHandler {
	return &PasswordHandler{reset: reset, isDev: isDev}
}

// RegisterRoutes binds reset routes, applying optional middleware first.
func (h *PasswordHandler) RegisterRoutes(r *gin.RouterGroup, middlewares ...gin.HandlerFunc) {
	if len(middlewares) > 0 {
		r.Use(middlewares...)
	}
	r.POST("/request", h.request)
	r.POST("/confirm", h.confirm)
}

func (h *PasswordHandler) request(c *gin.Context) {
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset payload"))
		return
	}

	token, err := h.reset.RequestReset(c.Request.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to process reset request"))
		return
	}

	// The response is identical for known and unknown accounts.
	resp := gin.H{"message": "if the account exists, a reset link has been sent"}
	if h.isDev && token != "" {
		resp["dev_token"] = token
	}

	c.JSON(http.StatusAccepted, resp)
}

func (h *PasswordHandler) confirm(c *gin.Context) {
	var req PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid confirm payload"))
		return
	}

	err := h.reset.ConfirmReset(c.Request.Context(), req.Token, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidResetToken):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid or expired reset token"))
		case errors.Is(err, usecase.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, err.Error()))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to reset password"))
		}
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password updated; all sessions revoked"})
}
