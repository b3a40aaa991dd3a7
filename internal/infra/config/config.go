package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	WebAuthn  WebAuthnSettings  `mapstructure:"webauthn"`
	Payments  PaymentsSettings  `mapstructure:"payments"`
	Market    MarketSettings    `mapstructure:"market"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and TLS.
type RedisSettings struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	DB              int           `mapstructure:"db"`
	Password        string        `mapstructure:"password"`
	TLSEnabled      bool          `mapstructure:"tls_enabled"`
	ChallengePrefix string        `mapstructure:"challenge_prefix"`
	ChallengeTTL    time.Duration `mapstructure:"challenge_ttl"`
}

// KafkaSettings configures the Kafka producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

type JWTSettings struct {
	KeyDirectory    string        `mapstructure:"key_directory"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// WebAuthnSettings configures the relying party for passkey ceremonies.
type WebAuthnSettings struct {
	RPID          string   `mapstructure:"rp_id"`
	RPDisplayName string   `mapstructure:"rp_display_name"`
	RPOrigins     []string `mapstructure:"rp_origins"`
}

// PaymentsSettings configures the checkout gateway collaborator.
type PaymentsSettings struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	SuccessURL     string        `mapstructure:"success_url"`
	CancelURL      string        `mapstructure:"cancel_url"`
	CheckoutTTL    time.Duration `mapstructure:"checkout_ttl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
}

// MarketSettings carries fee and royalty rates as decimal strings.
type MarketSettings struct {
	FeeRate       string `mapstructure:"fee_rate"`
	RoyaltyRate   string `mapstructure:"royalty_rate"`
	ArtistShare   string `mapstructure:"artist_share"`
	VenueShare    string `mapstructure:"venue_share"`
	HostShare     string `mapstructure:"host_share"`
	PlatformShare string `mapstructure:"platform_share"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint.
type RateLimitSettings struct {
	WindowDuration           time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts         int           `mapstructure:"login_max_attempts"`
	PasswordResetMaxAttempts int           `mapstructure:"password_reset_max_attempts"`
	PurchaseMaxAttempts      int           `mapstructure:"purchase_max_attempts"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("MARKET")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.challenge_prefix",
		"redis.challenge_ttl",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"jwt.key_directory",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"webauthn.rp_id",
		"webauthn.rp_display_name",
		"webauthn.rp_origins",
		"payments.base_url",
		"payments.api_key",
		"payments.success_url",
		"payments.cancel_url",
		"payments.checkout_ttl",
		"payments.request_timeout",
		"payments.webhook_secret",
		"market.fee_rate",
		"market.royalty_rate",
		"market.artist_share",
		"market.venue_share",
		"market.host_share",
		"market.platform_share",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.password_reset_max_attempts",
		"rate_limit.purchase_max_attempts",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stagepass-marketplace")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "marketplace")
	v.SetDefault("postgres.password", "marketplace_password")
	v.SetDefault("postgres.database", "marketplace")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.challenge_prefix", "market:webauthn")
	v.SetDefault("redis.challenge_ttl", "2m")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "marketplace")
	v.SetDefault("kafka.async", true)

	v.SetDefault("jwt.key_directory", "./secrets")
	v.SetDefault("jwt.access_token_ttl", "15m")
	v.SetDefault("jwt.refresh_token_ttl", "168h")

	v.SetDefault("webauthn.rp_id", "localhost")
	v.SetDefault("webauthn.rp_display_name", "StagePass")
	v.SetDefault("webauthn.rp_origins", []string{"http://localhost:3000"})

	v.SetDefault("payments.base_url", "http://localhost:4242")
	v.SetDefault("payments.api_key", "")
	v.SetDefault("payments.success_url", "http://localhost:3000/checkout/success")
	v.SetDefault("payments.cancel_url", "http://localhost:3000/checkout/cancel")
	v.SetDefault("payments.checkout_ttl", "30m")
	v.SetDefault("payments.request_timeout", "10s")
	v.SetDefault("payments.webhook_secret", "")

	v.SetDefault("market.fee_rate", "0.10")
	v.SetDefault("market.royalty_rate", "0.10")
	v.SetDefault("market.artist_share", "0.50")
	v.SetDefault("market.venue_share", "0.30")
	v.SetDefault("market.host_share", "0.15")
	v.SetDefault("market.platform_share", "0.05")

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.password_reset_max_attempts", 3)
	v.SetDefault("rate_limit.purchase_max_attempts", 10)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "MARKET_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
