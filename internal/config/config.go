package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/apperror"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/database"
)

const envPrefix = "PARKING"

// RedisConfig configures the distributed resource lock.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// KafkaConfig configures event publishing and the approval consumer.
type KafkaConfig struct {
	Brokers       []string
	GroupID       string
	BookingTopic  string
	ApprovalTopic string
}

// JWTConfig configures bearer token validation.
type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// StripeConfig configures the Stripe order adapter. An empty key selects the sandbox adapter.
type StripeConfig struct {
	SecretKey string
}

// BookingConfig holds the settlement and expiry knobs.
type BookingConfig struct {
	PlatformFeePercent               float64
	PendingApprovalExpirationMinutes int
	Currency                         string
}

// FeeBasisPoints returns the platform fee in basis points (15.0% -> 1500).
// Validate guarantees the percentage has at most two decimals.
func (b BookingConfig) FeeBasisPoints() int64 {
	return int64(math.Round(b.PlatformFeePercent * 100))
}

// ExpirationWindow returns the pending approval window as a duration.
func (b BookingConfig) ExpirationWindow() time.Duration {
	return time.Duration(b.PendingApprovalExpirationMinutes) * time.Minute
}

// SchedulerConfig holds cron specs for the time trigger jobs.
type SchedulerConfig struct {
	Enabled      bool
	StartSpec    string
	CompleteSpec string
	ExpireSpec   string
}

// ServiceConfig holds all configuration for the parking service.
type ServiceConfig struct {
	Port           string
	AppEnv         string
	MigrationsPath string
	DBConfig       database.PostgresConfig
	RedisConfig    RedisConfig
	KafkaConfig    KafkaConfig
	JWTConfig      JWTConfig
	StripeConfig   StripeConfig
	BookingConfig  BookingConfig
	Scheduler      SchedulerConfig
}

// Load reads configuration from an optional config.yaml and PARKING_* environment variables.
func Load() (*ServiceConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(replacer())
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_port", "8080")
	v.SetDefault("app_env", "development")
	v.SetDefault("migrations_path", "migrations")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "parking_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "5m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "30s")

	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.group_id", "service-parking")
	v.SetDefault("kafka.booking_topic", "parking.booking.events")
	v.SetDefault("kafka.approval_topic", "parking.approval.events")

	v.SetDefault("jwt.secret", "change-me")
	v.SetDefault("jwt.access_ttl", "15m")
	v.SetDefault("jwt.refresh_ttl", "168h")

	v.SetDefault("stripe.secret_key", "")

	v.SetDefault("booking.platform_fee_percent", 15.0)
	v.SetDefault("booking.pending_approval_expiration_minutes", 60)
	v.SetDefault("booking.currency", "MYR")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.start_spec", "@every 1m")
	v.SetDefault("scheduler.complete_spec", "@every 1m")
	v.SetDefault("scheduler.expire_spec", "@every 1m")
}

func fromViper(v *viper.Viper) (*ServiceConfig, error) {
	cfg := &ServiceConfig{
		Port:           v.GetString("service_port"),
		AppEnv:         v.GetString("app_env"),
		MigrationsPath: v.GetString("migrations_path"),
		DBConfig: database.PostgresConfig{
			Host:            v.GetString("db.host"),
			Port:            v.GetString("db.port"),
			User:            v.GetString("db.user"),
			Password:        v.GetString("db.password"),
			DBName:          v.GetString("db.name"),
			SSLMode:         v.GetString("db.sslmode"),
			MaxOpenConns:    v.GetInt("db.max_open_conns"),
			MaxIdleConns:    v.GetInt("db.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("db.conn_max_lifetime"),
		},
		RedisConfig: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			LockTTL:  v.GetDuration("redis.lock_ttl"),
		},
		KafkaConfig: KafkaConfig{
			Brokers:       splitList(v.GetString("kafka.brokers")),
			GroupID:       v.GetString("kafka.group_id"),
			BookingTopic:  v.GetString("kafka.booking_topic"),
			ApprovalTopic: v.GetString("kafka.approval_topic"),
		},
		JWTConfig: JWTConfig{
			Secret:          v.GetString("jwt.secret"),
			AccessTokenTTL:  v.GetDuration("jwt.access_ttl"),
			RefreshTokenTTL: v.GetDuration("jwt.refresh_ttl"),
		},
		StripeConfig: StripeConfig{
			SecretKey: v.GetString("stripe.secret_key"),
		},
		BookingConfig: BookingConfig{
			PlatformFeePercent:               v.GetFloat64("booking.platform_fee_percent"),
			PendingApprovalExpirationMinutes: v.GetInt("booking.pending_approval_expiration_minutes"),
			Currency:                         v.GetString("booking.currency"),
		},
		Scheduler: SchedulerConfig{
			Enabled:      v.GetBool("scheduler.enabled"),
			StartSpec:    v.GetString("scheduler.start_spec"),
			CompleteSpec: v.GetString("scheduler.complete_spec"),
			ExpireSpec:   v.GetString("scheduler.expire_spec"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects out-of-range values instead of clamping them.
func (c *ServiceConfig) Validate() error {
	b := c.BookingConfig
	if math.IsNaN(b.PlatformFeePercent) || b.PlatformFeePercent < 0 || b.PlatformFeePercent > 100 {
		return apperror.NewConfigError(fmt.Sprintf("platform fee percent must be within [0, 100], got %v", b.PlatformFeePercent))
	}
	if bp := b.PlatformFeePercent * 100; math.Abs(bp-math.Round(bp)) > 1e-6 {
		return apperror.NewConfigError(fmt.Sprintf("platform fee percent allows at most two decimal places, got %v", b.PlatformFeePercent))
	}
	if b.PendingApprovalExpirationMinutes <= 0 {
		return apperror.NewConfigError(fmt.Sprintf("pending approval expiration minutes must be positive, got %d", b.PendingApprovalExpirationMinutes))
	}
	if b.Currency == "" {
		return apperror.NewConfigError("booking currency is required")
	}
	if c.JWTConfig.Secret == "" {
		return apperror.NewConfigError("jwt secret is required")
	}
	if c.RedisConfig.Enabled && c.RedisConfig.LockTTL <= 0 {
		return apperror.NewConfigError("redis lock ttl must be positive")
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c *ServiceConfig) IsProduction() bool {
	return c.AppEnv == "production"
}

func replacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
