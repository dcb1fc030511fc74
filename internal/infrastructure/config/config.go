package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cassiomorais/marketplace/internal/rules"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Commission    CommissionConfig    `mapstructure:"commission"`
	Payout        PayoutConfig        `mapstructure:"payout"`
	Risk          RiskConfig          `mapstructure:"risk"`
	RateLimit     RateLimitConfig     `mapstructure:"ratelimit"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Auth          AuthConfig          `mapstructure:"auth"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTExpiry time.Duration `mapstructure:"jwt_expiry"`
}

type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	Database         string        `mapstructure:"database"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MinConnections   int           `mapstructure:"min_connections"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"` // zero disables
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// CommissionConfig holds rates as decimal strings, e.g. "10" or "12.5".
type CommissionConfig struct {
	DefaultRate      string            `mapstructure:"default_rate"`
	CategoryRates    map[string]string `mapstructure:"category_rates"`
	AutoApproveAfter time.Duration     `mapstructure:"auto_approve_after"`
}

// PayoutConfig amounts are in cents.
type PayoutConfig struct {
	MinAmount               int64         `mapstructure:"min_amount"`
	MaxAmount               int64         `mapstructure:"max_amount"`
	MinRequestAmount        int64         `mapstructure:"min_request_amount"`
	Cooldown                time.Duration `mapstructure:"cooldown"`
	MaxFailedPayouts        int           `mapstructure:"max_failed_payouts"`
	MaxRetries              int           `mapstructure:"max_retries"`
	ExactAmount             bool          `mapstructure:"exact_amount"`
	RetryDelay              time.Duration `mapstructure:"retry_delay"`
	SubmitAttempts          uint          `mapstructure:"submit_attempts"`
	LockTTL                 time.Duration `mapstructure:"lock_ttl"`
	ProcessingTimeout       time.Duration `mapstructure:"processing_timeout"`
	ProviderRPS             float64       `mapstructure:"provider_rps"`
	ProviderBurst           int           `mapstructure:"provider_burst"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

type RiskConfig struct {
	ChargebackThreshold int           `mapstructure:"chargeback_threshold"`
	NewSellerPeriod     time.Duration `mapstructure:"new_seller_period"`
}

// RateLimitConfig configures the request limits. Backend is "memory" or "redis".
type RateLimitConfig struct {
	Backend               string        `mapstructure:"backend"`
	PayoutRequests        int           `mapstructure:"payout_requests"`
	PayoutWindow          time.Duration `mapstructure:"payout_window"`
	Registrations         int           `mapstructure:"registrations"`
	RegistrationWindow    time.Duration `mapstructure:"registration_window"`
	HTTPRequestsPerMinute int           `mapstructure:"http_requests_per_minute"`
}

type WorkerConfig struct {
	BatchSize            int64         `mapstructure:"batch_size"`
	BlockDuration        time.Duration `mapstructure:"block_duration"`
	OutboxPollInterval   time.Duration `mapstructure:"outbox_poll_interval"`
	ConsumerGroup        string        `mapstructure:"consumer_group"`
	IdempotencyTTL       time.Duration `mapstructure:"idempotency_ttl"`
	TimeoutSweepSchedule string        `mapstructure:"timeout_sweep_schedule"`
	AutoApproveSchedule  string        `mapstructure:"auto_approve_schedule"`
	SweepBatchSize       int           `mapstructure:"sweep_batch_size"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("MARKETPLACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/marketplace")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Payout.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("payout.lock_ttl must be positive"))
	}
	if c.Payout.MinAmount <= 0 || c.Payout.MaxAmount < c.Payout.MinAmount {
		errs = append(errs, fmt.Errorf("payout.min_amount must be positive and not above payout.max_amount"))
	}
	if c.Payout.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("payout.max_retries must be positive"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}
	if c.RateLimit.Backend != "memory" && c.RateLimit.Backend != "redis" {
		errs = append(errs, fmt.Errorf("ratelimit.backend must be memory or redis, got %q", c.RateLimit.Backend))
	}
	if _, err := c.RulesPolicy(); err != nil {
		errs = append(errs, err)
	}

	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("auth.jwt_secret required in production"))
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

// RulesPolicy builds the business rule policy from the commission, payout
// and risk sections.
func (c *Config) RulesPolicy() (rules.Policy, error) {
	policy := rules.Policy{
		CategoryRates:            make(map[string]decimal.Decimal, len(c.Commission.CategoryRates)),
		MinPayout:                c.Payout.MinAmount,
		MaxPayout:                c.Payout.MaxAmount,
		MinRequestAmount:         c.Payout.MinRequestAmount,
		PayoutCooldown:           c.Payout.Cooldown,
		MaxFailedPayouts:         c.Payout.MaxFailedPayouts,
		FraudChargebackThreshold: c.Risk.ChargebackThreshold,
		NewSellerPeriod:          c.Risk.NewSellerPeriod,
	}

	rate, err := parseRate("commission.default_rate", c.Commission.DefaultRate)
	if err != nil {
		return rules.Policy{}, err
	}
	policy.DefaultCommissionRate = rate

	for category, raw := range c.Commission.CategoryRates {
		rate, err := parseRate("commission.category_rates."+category, raw)
		if err != nil {
			return rules.Policy{}, err
		}
		policy.CategoryRates[strings.ToLower(category)] = rate
	}
	return policy, nil
}

func parseRate(key, raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal, got %q", key, raw)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("%s must be between 0 and 100, got %s", key, rate)
	}
	return rate, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "marketplace")
	v.SetDefault("database.database", "marketplace")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.statement_timeout", "30s")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Commission defaults
	v.SetDefault("commission.default_rate", "10")
	v.SetDefault("commission.category_rates", map[string]string{})
	v.SetDefault("commission.auto_approve_after", "336h")

	// Payout defaults
	v.SetDefault("payout.min_amount", 1000)
	v.SetDefault("payout.max_amount", 5000000)
	v.SetDefault("payout.min_request_amount", 2500)
	v.SetDefault("payout.cooldown", "168h")
	v.SetDefault("payout.max_failed_payouts", 3)
	v.SetDefault("payout.max_retries", 3)
	v.SetDefault("payout.exact_amount", false)
	v.SetDefault("payout.retry_delay", "1s")
	v.SetDefault("payout.submit_attempts", 3)
	v.SetDefault("payout.lock_ttl", "30s")
	v.SetDefault("payout.processing_timeout", "30m")
	v.SetDefault("payout.provider_rps", 20)
	v.SetDefault("payout.provider_burst", 5)
	v.SetDefault("payout.circuit_breaker_threshold", 10)
	v.SetDefault("payout.circuit_breaker_timeout", "30s")

	// Risk defaults
	v.SetDefault("risk.chargeback_threshold", 10)
	v.SetDefault("risk.new_seller_period", "720h")

	// Rate limit defaults
	v.SetDefault("ratelimit.backend", "redis")
	v.SetDefault("ratelimit.payout_requests", 5)
	v.SetDefault("ratelimit.payout_window", "1h")
	v.SetDefault("ratelimit.registrations", 3)
	v.SetDefault("ratelimit.registration_window", "1h")
	v.SetDefault("ratelimit.http_requests_per_minute", 100)

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.outbox_poll_interval", "2s")
	v.SetDefault("worker.consumer_group", "payout-settlers")
	v.SetDefault("worker.idempotency_ttl", "24h")
	v.SetDefault("worker.timeout_sweep_schedule", "@every 5m")
	v.SetDefault("worker.auto_approve_schedule", "@hourly")
	v.SetDefault("worker.sweep_batch_size", 100)

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Auth defaults
	v.SetDefault("auth.jwt_expiry", "24h")

	v.SetDefault("instance_id", "marketplace-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MigrationURL is the DSN in URL form, as the migrate postgres driver expects.
func (c *DatabaseConfig) MigrationURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, fmt.Sprint(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
