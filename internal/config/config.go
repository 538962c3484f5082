// Package config loads service settings from an optional YAML file and
// FACEAUTH_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/example/faceauth/internal/liveness"
)

// ErrInvalid is wrapped by every validation failure returned from Load.
var ErrInvalid = errors.New("config: invalid configuration")

// Config holds the settings for the faceauth service and CLI.
type Config struct {
	HTTPAddr        string        `yaml:"http_addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	LogLevel        string        `yaml:"log_level" validate:"oneof=debug info warn error"`

	DatabaseDSN  string `yaml:"database_dsn" validate:"required"`
	RedisAddr    string `yaml:"redis_addr" validate:"required,hostname_port"`
	LivenessAddr string `yaml:"liveness_addr"`

	Verification VerificationConfig `yaml:"verification"`
	Client       ClientConfig       `yaml:"client"`
	JWT          JWTConfig          `yaml:"jwt"`

	AttemptLockTTL time.Duration `yaml:"attempt_lock_ttl" validate:"gt=0"`
}

// VerificationConfig points at the remote verification service.
type VerificationConfig struct {
	BaseURL          string        `yaml:"base_url" validate:"required,url"`
	RegistrationPath string        `yaml:"registration_path" validate:"omitempty,startswith=/"`
	MatchPath        string        `yaml:"match_path" validate:"omitempty,startswith=/"`
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
	SDKVersion       string        `yaml:"sdk_version" validate:"required"`
}

// ClientConfig identifies this deployment to the liveness SDK.
type ClientConfig struct {
	ID     string `yaml:"id"`
	Secret string `yaml:"secret" validate:"required_with=ID"`
}

// JWTConfig configures inbound token validation.
type JWTConfig struct {
	Secret   string `yaml:"secret" validate:"required"`
	Audience string `yaml:"audience"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		ShutdownTimeout: 15 * time.Second,
		LogLevel:        "info",
		DatabaseDSN:     "host=postgres user=postgres password=postgres dbname=faceauth port=5432 sslmode=disable",
		RedisAddr:       "redis:6379",
		Verification: VerificationConfig{
			Timeout:    10 * time.Second,
			SDKVersion: liveness.DefaultSDKVersion,
		},
		AttemptLockTTL: 2 * time.Minute,
	}
}

// Load reads path (if non-empty), applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read is Load without validation, for callers that need only part of the
// settings.
func Read(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the struct tags of cfg.
func (c Config) Validate() error {
	return validateStruct(c)
}

// Validate checks the verification settings only.
func (v VerificationConfig) Validate() error {
	return validateStruct(v)
}

func validateStruct(s interface{}) error {
	if err := validator.New().Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.HTTPAddr = getEnv("FACEAUTH_HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = getEnv("FACEAUTH_LOG_LEVEL", cfg.LogLevel)
	cfg.DatabaseDSN = getEnv("FACEAUTH_DATABASE_DSN", cfg.DatabaseDSN)
	cfg.RedisAddr = getEnv("FACEAUTH_REDIS_ADDR", cfg.RedisAddr)
	cfg.LivenessAddr = getEnv("FACEAUTH_LIVENESS_ADDR", cfg.LivenessAddr)
	cfg.Verification.BaseURL = getEnv("FACEAUTH_VERIFICATION_URL", cfg.Verification.BaseURL)
	cfg.Verification.SDKVersion = getEnv("FACEAUTH_SDK_VERSION", cfg.Verification.SDKVersion)
	cfg.Client.ID = getEnv("FACEAUTH_CLIENT_ID", cfg.Client.ID)
	cfg.Client.Secret = getEnv("FACEAUTH_CLIENT_SECRET", cfg.Client.Secret)
	cfg.JWT.Secret = getEnv("FACEAUTH_JWT_SECRET", cfg.JWT.Secret)
	cfg.JWT.Audience = getEnv("FACEAUTH_JWT_AUDIENCE", cfg.JWT.Audience)

	durations := map[string]*time.Duration{
		"FACEAUTH_SHUTDOWN_TIMEOUT":     &cfg.ShutdownTimeout,
		"FACEAUTH_VERIFICATION_TIMEOUT": &cfg.Verification.Timeout,
		"FACEAUTH_ATTEMPT_LOCK_TTL":     &cfg.AttemptLockTTL,
	}
	for key, target := range durations {
		raw := os.Getenv(key)
		if raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
		}
		*target = parsed
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
