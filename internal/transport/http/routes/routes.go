package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stagepass/marketplace/internal/infra/config"
	"github.com/stagepass/marketplace/internal/transport/http/handlers"
	"github.com/stagepass/marketplace/internal/transport/http/middleware"
	"github.com/stagepass/marketplace/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth          *usecase.AuthService
	Sessions      *usecase.SessionService
	PasswordReset *usecase.PasswordResetService
	Passkeys      *usecase.PasskeyService
	Listings      *usecase.ListingService
	Purchases     *usecase.PurchaseService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Services    ServiceSet
	Metrics     *middleware.HTTPMetrics
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.WebAuthn.RPOrigins))

	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	authMiddleware := middleware.RequireAuth(deps.Services.Auth)

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)
	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	isDev := deps.Config.App.Env == "development"

	api := r.Group("/api/v1")
	{
		loginLimit := loginRateLimit(deps)

		authGroup := api.Group("/auth")
		authHandler := handlers.NewAuthHandler(deps.Config, deps.Services.Auth, deps.Services.Sessions, deps.Logger)
		authHandler.RegisterRoutes(authGroup, loginLimit...)

		passkeyGroup := api.Group("/auth/passkeys")
		passkeyHandler := handlers.NewPasskeyHandler(deps.Config, deps.Services.Passkeys, deps.Services.Auth)
		passkeyHandler.RegisterRoutes(passkeyGroup, loginLimit...)

		resetGroup := api.Group("/auth/password-reset")
		passwordHandler := handlers.NewPasswordHandler(deps.Services.PasswordReset, isDev)
		passwordHandler.RegisterRoutes(resetGroup, passwordResetRateLimit(deps)...)

		sessionGroup := api.Group("/sessions", authMiddleware)
		sessionHandler := handlers.NewSessionHandler(deps.Services.Sessions)
		sessionHandler.RegisterRoutes(sessionGroup)

		listingGroup := api.Group("/listings")
		listingHandler := handlers.NewListingHandler(deps.Services.Listings, deps.Services.Auth)
		listingHandler.RegisterRoutes(listingGroup)

		eventGroup := api.Group("/events")
		listingHandler.RegisterEventRoutes(eventGroup)

		purchaseHandler := handlers.NewPurchaseHandler(deps.Services.Purchases, deps.Services.Auth)
		purchaseHandler.RegisterRoutes(api, purchaseRateLimit(deps)...)

		paymentsGroup := api.Group("/payments")
		paymentsHandler := handlers.NewPaymentsHandler(deps.Services.Purchases, deps.Config.Payments.WebhookSecret, deps.Logger)
		paymentsHandler.RegisterRoutes(paymentsGroup)
	}

	return r
}

func loginRateLimit(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config.RateLimit.LoginMaxAttempts <= 0 {
		return nil
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(middleware.RateLimitRule{
		Name:       "login",
		Limit:      deps.Config.RateLimit.LoginMaxAttempts,
		Window:     deps.Config.RateLimit.WindowDuration,
		Identifier: middleware.ClientIPIdentifier(),
	})}
}

func passwordResetRateLimit(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config.RateLimit.PasswordResetMaxAttempts <= 0 {
		return nil
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(middleware.RateLimitRule{
		Name:       "password_reset",
		Limit:      deps.Config.RateLimit.PasswordResetMaxAttempts,
		Window:     deps.Config.RateLimit.WindowDuration,
		Identifier: middleware.ClientIPIdentifier(),
	})}
}

func purchaseRateLimit(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config.RateLimit.PurchaseMaxAttempts <= 0 {
		return nil
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(middleware.RateLimitRule{
		Name:       "purchase",
		Limit:      deps.Config.RateLimit.PurchaseMaxAttempts,
		Window:     deps.Config.RateLimit.WindowDuration,
		Identifier: middleware.ClientIPIdentifier(),
	})}
}
