package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stagepass/marketplace/internal/infra/config"
	"github.com/stagepass/marketplace/internal/transport/http/middleware"
	"github.com/stagepass/marketplace/internal/usecase"
)

// PasskeyHandler exposes WebAuthn ceremony endpoints.
type PasskeyHandler struct {
	cfg      *config.AppConfig
	passkeys *usecase.PasskeyService
	auth     *usecase.AuthService
}

// NewPasskeyHandler constructs PasskeyHandler.
func NewPasskeyHandler(cfg *config.AppConfig, passkeys *usecase.PasskeyService, auth *usecase.AuthService) *PasskeyHandler {
	return &PasskeyHandler{cfg: cfg, passkeys: passkeys, auth: auth}
}

// RegisterRoutes binds ceremony routes. Registration requires an
// authenticated caller; login is anonymous by nature.
func (h *PasskeyHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares ...gin.HandlerFunc) {
	authRequired := middleware.RequireAuth(h.auth)
	r.POST("/register/begin", authRequired, h.beginRegistration)
	r.POST("/register/finish", authRequired, h.finishRegistration)

	beginChain := append([]gin.HandlerFunc{}, loginMiddlewares...)
	beginChain = append(beginChain, h.beginLogin)
	r.POST("/login/begin", beginChain...)

	finishChain := append([]gin.HandlerFunc{}, loginMiddlewares...)
	finishChain = append(finishChain, h.finishLogin)
	r.POST("/login/finish", finishChain...)
}

func (h *PasskeyHandler) beginRegistration(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	options, token, err := h.passkeys.BeginRegistration(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to begin registration"))
		return
	}

	c.JSON(http.StatusOK, PasskeyBeginResponse{
		CeremonyToken: token,
		Options:       options,
	})
}

func (h *PasskeyHandler) finishRegistration(c *gin.Context) {
	var req PasskeyFinishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid ceremony payload"))
		return
	}

	credential, err := h.passkeys.FinishRegistration(c.Request.Context(), req.CeremonyToken, req.Response)
	if err != nil {
		if errors.Is(err, usecase.ErrCeremonyExpired) {
			c.JSON(http.StatusGone, NewErrorResponse(c, "ceremony expired or already used"))
			return
		}
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "failed to register passkey"))
		return
	}

	c.JSON(http.StatusCreated, PasskeySummary{
		ID:         credential.ID,
		Transports: credential.Transports,
		CreatedAt:  credential.CreatedAt,
	})
}

func (h *PasskeyHandler) beginLogin(c *gin.Context) {
	var req PasskeyBeginLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	options, token, err := h.passkeys.BeginLogin(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, usecase.ErrPasskeyAuthFailed) {
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "passkey authentication failed"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to begin login"))
		return
	}

	c.JSON(http.StatusOK, PasskeyBeginResponse{
		CeremonyToken: token,
		Options:       options,
	})
}

func (h *PasskeyHandler) finishLogin(c *gin.Context) {
	var req PasskeyFinishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid ceremony payload"))
		return
	}

	ip, userAgent := clientMetadata(c)

	pair, user, err := h.passkeys.FinishLogin(c.Request.Context(), req.CeremonyToken, req.Response, ip, userAgent)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrCeremonyExpired):
			c.JSON(http.StatusGone, NewErrorResponse(c, "ceremony expired or already used"))
		case errors.Is(err, usecase.ErrPasskeyAuthFailed):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "passkey authentication failed"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "login failed"))
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
		User:         newUserSummary(user),
	})
}
