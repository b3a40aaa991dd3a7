package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stagepass/marketplace/internal/infra/config"
	"github.com/stagepass/marketplace/internal/transport/http/middleware"
	"github.com/stagepass/marketplace/internal/usecase"
)

// setSessionCookies mirrors the token pair into HttpOnly cookies so browser
// clients carry session identity without touching the tokens from script.
// Cookies are SameSite=Strict, and Secure outside development.
func setSessionCookies(c *gin.Context, cfg *config.AppConfig, pair *usecase.TokenPair) {
	accessTTL := cfg.JWT.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	refreshTTL := time.Until(pair.ExpiresAt)
	if refreshTTL <= 0 {
		refreshTTL = accessTTL
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AccessTokenCookie, pair.AccessToken,
		int(accessTTL.Seconds()), "/", "", secureCookies(cfg), true)
	c.SetCookie(middleware.RefreshTokenCookie, pair.RefreshToken,
		int(refreshTTL.Seconds()), "/", "", secureCookies(cfg), true)
}

// clearSessionCookies expires both session cookies.
func clearSessionCookies(c *gin.Context, cfg *config.AppConfig) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", secureCookies(cfg), true)
	c.SetCookie(middleware.RefreshTokenCookie, "", -1, "/", "", secureCookies(cfg), true)
}

func secureCookies(cfg *config.AppConfig) bool {
	return cfg.App.Env == "production"
}
