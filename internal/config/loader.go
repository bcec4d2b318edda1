// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs in eligibility cutoffs and
//     month-boundary quota counts.
//  2. Load a .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
)

// ConfigError is the diagnostic error type returned by Load.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load loads and validates the ClinicPulse configuration from the
// environment. A .env file in the working directory is merged in when
// present; real environment variables always win.
func Load() (*Config, error) {
	// Pin the process to UTC. Eligibility cutoffs, report periods, and the
	// month-boundary quota count all assume a single clock domain.
	if err := os.Setenv("TZ", "UTC"); err != nil {
		return nil, &ConfigError{Type: ErrParsing, Message: "failed to set TZ", Err: err}
	}
	time.Local = time.UTC

	// Best effort: a missing .env file is the normal case in deployed
	// environments.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{Type: ErrParsing, Message: "failed to process environment", Err: err}
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, &ConfigError{Type: ErrValidation, Message: "configuration is invalid", Err: err}
	}

	return &cfg, nil
}
