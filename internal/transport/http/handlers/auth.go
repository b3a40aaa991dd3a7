package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stagepass/marketplace/internal/infra/config"
	"github.com/stagepass/marketplace/internal/transport/http/middleware"
	"github.com/stagepass/marketplace/internal/usecase"
)

// AuthHandler exposes registration, login and token lifecycle endpoints.
type AuthHandler struct {
	cfg      *config.AppConfig
	auth     *usecase.AuthService
	sessions *usecase.SessionService
	logger   *zap.Logger
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(cfg *config.AppConfig, auth *usecase.AuthService, sessions *usecase.SessionService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{cfg: cfg, auth: auth, sessions: sessions, logger: logger}
}

// RegisterRoutes binds authentication routes, applying optional middleware ahead of the login handler.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares ...gin.HandlerFunc) {
	r.POST("/register", h.register)

	chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
	chain = append(chain, h.login)
	r.POST("/login", chain...)

	r.POST("/refresh", h.refresh)
	r.POST("/logout", middleware.RequireAuth(h.auth), h.logout)
}

func (h *AuthHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	user, err := h.auth.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrEmailTaken):
			c.JSON(http.StatusConflict, NewErrorResponse(c, "email already registered"))
		case errors.Is(err, usecase.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, err.Error()))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to register user"))
		}
		return
	}

	c.JSON(http.StatusCreated, newUserSummary(user))
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	ip, userAgent := clientMetadata(c)

	pair, user, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, ip, userAgent)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid credentials"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "login failed"))
		return
	}

	setSessionCookies(c, h.cfg, pair)

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		SessionID:    pair.SessionID,
		ExpiresAt:    pair.ExpiresAt,
		User:         newUserSummary(user),
	})
}

func (h *AuthHandler) refresh(c *gin.Context) {
	token := h.refreshTokenFrom(c)
	if token == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "missing refresh token"))
		return
	}

	ip, userAgent := clientMetadata(c)

	pair, err := h.auth.RefreshAccessToken(c.Request.Context(), token, ip, userAgent)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrExpiredRefreshToken):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "refresh token expired"))
		case errors.Is(err, usecase.ErrInvalidRefreshToken):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid refresh token"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "refresh failed"))
		}
		return
	}

	setSessionCookies(c, h.cfg, pair)

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		SessionID:    pair.SessionID,
		ExpiresAt:    pair.ExpiresAt,
	})
}

// logout clears the session cookies and revokes the ledger entry. Store
// failures are logged and swallowed: the client must never stay logged in
// because of a backend hiccup.
func (h *AuthHandler) logout(c *gin.Context) {
	token := h.refreshTokenFrom(c)

	clearSessionCookies(c, h.cfg)

	if token == "" {
		c.Status(http.StatusNoContent)
		return
	}

	userID, _ := middleware.GetAuthenticatedUserID(c)
	role, _ := middleware.GetAuthenticatedRole(c)

	session, err := h.auth.SessionForRefreshToken(c.Request.Context(), token)
	if err != nil {
		// A token the ledger no longer knows is already logged out.
		c.Status(http.StatusNoContent)
		return
	}

	if err := h.sessions.RevokeSession(c.Request.Context(), session.ID, userID, role, "user_logout"); err != nil {
		if !errors.Is(err, usecase.ErrSessionNotFound) && !errors.Is(err, usecase.ErrSessionForbidden) {
			h.logger.Warn("logout revoke failed", zap.Error(err))
		}
	}

	c.Status(http.StatusNoContent)
}

// refreshTokenFrom reads the refresh token from the JSON body, falling back
// to the refresh cookie.
func (h *AuthHandler) refreshTokenFrom(c *gin.Context) string {
	var req RefreshRequest
	_ = c.ShouldBindJSON(&req)

	if req.RefreshToken != "" {
		return req.RefreshToken
	}
	if cookie, err := c.Cookie(middleware.RefreshTokenCookie); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

func clientMetadata(c *gin.Context) (*string, *string) {
	var ip, userAgent *string
	if v := c.ClientIP(); v != "" {
		ip = &v
	}
	if v := strings.TrimSpace(c.Request.UserAgent()); v != "" {
		userAgent = &v
	}
	return ip, userAgent
}
