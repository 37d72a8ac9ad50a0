// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"binstatus/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	StoreBackend string `mapstructure:"store_backend" validate:"oneof=dynamodb redis postgres memory"`
	BinsTable    string `mapstructure:"trash_bins_table" validate:"required"`
	ReportsTable string `mapstructure:"status_reports_table" validate:"required"`

	DynamoDBEndpoint  string `mapstructure:"dynamodb_endpoint_url" validate:"omitempty,url"`
	Region            string `mapstructure:"aws_default_region" validate:"required"`
	OptimisticLocking bool   `mapstructure:"optimistic_locking"`
	LockMaxAttempts   int    `mapstructure:"lock_max_attempts" validate:"min=1"`

	DatabaseURL string `mapstructure:"database_url" validate:"required_if=StoreBackend postgres"`

	RedisAddr     string `mapstructure:"redis_addr" validate:"required_if=StoreBackend redis"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"min=0"`

	StoreTimeout time.Duration `mapstructure:"store_timeout"`

	BreakerEnabled     bool          `mapstructure:"breaker_enabled"`
	BreakerMaxFailures int           `mapstructure:"breaker_max_failures" validate:"min=1"`
	BreakerOpenTimeout time.Duration `mapstructure:"breaker_open_timeout"`

	Addr         string `mapstructure:"addr" validate:"required"`
	OIDCIssuer   string `mapstructure:"oidc_issuer" validate:"omitempty,url"`
	OIDCClientID string `mapstructure:"oidc_client_id" validate:"required_with=OIDCIssuer"`

	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=json console"`
}

// IsLocalDevelopment reports whether an alternate DynamoDB endpoint is set.
func (c Config) IsLocalDevelopment() bool {
	return c.DynamoDBEndpoint != ""
}

// keys lists every setting; each is read from the upper-cased env variable.
var keys = []string{
	"store_backend", "trash_bins_table", "status_reports_table",
	"dynamodb_endpoint_url", "aws_default_region", "optimistic_locking", "lock_max_attempts",
	"database_url", "redis_addr", "redis_password", "redis_db", "store_timeout",
	"breaker_enabled", "breaker_max_failures", "breaker_open_timeout",
	"addr", "oidc_issuer", "oidc_client_id", "log_level", "log_format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store_backend", BackendDynamoDB)
	v.SetDefault("aws_default_region", "eu-central-1")
	v.SetDefault("optimistic_locking", false)
	v.SetDefault("lock_max_attempts", 5)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("store_timeout", 5*time.Second)
	v.SetDefault("breaker_enabled", false)
	v.SetDefault("breaker_max_failures", 5)
	v.SetDefault("breaker_open_timeout", 30*time.Second)
	v.SetDefault("addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Load reads envFile (or ./.env when empty and present) into the process
// environment without overriding it, then builds and validates the Config.
// Invalid or missing settings are returned as *domain.ConfigurationError.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	for _, k := range keys {
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, &domain.ConfigurationError{Key: "environment", Msg: err.Error()}
	}
	cfg.StoreBackend = strings.ToLower(cfg.StoreBackend)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.ToUpper(f.Tag.Get("mapstructure"))
	})
	return v
}

// Validate checks cfg and reports the first offending setting.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg := "failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		return &domain.ConfigurationError{Key: fe.Field(), Msg: msg}
	}
	return &domain.ConfigurationError{Key: "config", Msg: err.Error()}
}
