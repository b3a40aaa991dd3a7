package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stagepass/marketplace/internal/transport/http/middleware"
	"github.com/stagepass/marketplace/internal/usecase"
)

// SessionHandler exposes the caller's session ledger.
type SessionHandler struct {
	sessions *usecase.SessionService
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions *usecase.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// RegisterRoutes binds session ledger routes. All require authentication.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.list)
	r.DELETE("/:id", h.revoke)
	r.DELETE("", h.revokeAll)
}

func (h *SessionHandler) list(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessions, err := h.sessions.ListSessions(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list sessions"))
		return
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, newSessionSummary(session))
	}

	c.JSON(http.StatusOK, SessionListResponse{Sessions: summaries})
}

func (h *SessionHandler) revoke(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}
	role, _ := middleware.GetAuthenticatedRole(c)

	sessionID := c.Param("id")

	err := h.sessions.RevokeSession(c.Request.Context(), sessionID, userID, role, "user requested")
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "session not found"))
		case errors.Is(err, usecase.ErrSessionForbidden):
			c.JSON(http.StatusForbidden, NewErrorResponse(c, "cannot revoke another user's session"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke session"))
		}
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) revokeAll(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	count, err := h.sessions.RevokeAllSessions(c.Request.Context(), userID, "revoke all devices")
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke sessions"))
		return
	}

	c.JSON(http.StatusOK, RevokeAllResponse{Revoked: count})
}
