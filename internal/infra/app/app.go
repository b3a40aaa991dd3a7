package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/stagepass/marketplace/internal/core/port"
	"github.com/stagepass/marketplace/internal/infra/config"
	"github.com/stagepass/marketplace/internal/infra/database"
	kafkainfra "github.com/stagepass/marketplace/internal/infra/kafka"
	"github.com/stagepass/marketplace/internal/infra/logger"
	"github.com/stagepass/marketplace/internal/infra/payments"
	redisinfra "github.com/stagepass/marketplace/internal/infra/redis"
	"github.com/stagepass/marketplace/internal/infra/security"
	webauthninfra "github.com/stagepass/marketplace/internal/infra/webauthn"
	postgresrepo "github.com/stagepass/marketplace/internal/repository/postgres"
	redisrepo "github.com/stagepass/marketplace/internal/repository/redis"
	"github.com/stagepass/marketplace/internal/transport/http/middleware"
	"github.com/stagepass/marketplace/internal/transport/http/routes"
	"github.com/stagepass/marketplace/internal/usecase"
)

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	keyProvider, err := security.NewKeyProvider(cfg.App.Env, cfg.JWT.KeyDirectory)
	if err != nil {
		return nil, fmt.Errorf("init key provider: %w", err)
	}

	tokenGenerator, err := security.NewTokenGenerator(keyProvider, "")
	if err != nil {
		return nil, fmt.Errorf("init token generator: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	var producer *kafkainfra.Producer
	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			producer = kafkaProducer
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	relyingParty, err := webauthninfra.New(cfg.WebAuthn)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("init webauthn: %w", err)
	}

	var gateway port.PaymentGateway
	if cfg.Payments.APIKey == "" && cfg.App.Env != "production" {
		log.Info("payments api key not configured, using stub gateway")
		gateway = payments.NewStubGateway(log)
	} else {
		gateway = payments.NewGatewayClient(cfg.Payments, log)
	}

	feeEngine, err := usecase.NewFeeEngine(cfg.Market)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("init fee engine: %w", err)
	}

	challengeStore := redisrepo.NewChallengeRepository(redisClient.Client(), cfg.Redis.ChallengePrefix)
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), "market:rate-limit")
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	authService := usecase.NewAuthService(cfg, repos.Users, repos.Sessions, keyProvider, tokenGenerator, eventPublisher)
	sessionService := usecase.NewSessionService(repos.Sessions, eventPublisher)
	passwordResetService := usecase.NewPasswordResetService(repos.Users, repos.Sessions)

	passkeyService := usecase.NewPasskeyService(relyingParty, repos.Users, repos.Passkeys, challengeStore, authService, eventPublisher)
	if cfg.Redis.ChallengeTTL > 0 {
		passkeyService.WithChallengeTTL(cfg.Redis.ChallengeTTL)
	}

	listingService := usecase.NewListingService(repos.Listings, eventPublisher)
	purchaseService := usecase.NewPurchaseService(
		repos.Listings,
		repos.Purchases,
		gateway,
		feeEngine,
		eventPublisher,
		listingService,
		cfg.Payments,
	)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:          authService,
			Sessions:      sessionService,
			PasswordReset: passwordResetService,
			Passkeys:      passkeyService,
			Listings:      listingService,
			Purchases:     purchaseService,
		},
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			if err := a.producer.Close(); err != nil {
				a.logger.Warn("close kafka producer", zap.Error(err))
			}
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting marketplace API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
