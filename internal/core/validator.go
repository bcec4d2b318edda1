package core

import (
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"clinicpulse/internal/types"
)

// Validator wraps go-playground/validator for request body validation.
// Failures come back as a single validation AppError with per-field details
// so clients see every violation at once.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator using struct tag validation with JSON
// field names in error details.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates dst against its `validate` tags. Returns nil on
// success, or a validation_missing_required_field AppError whose Details map
// field names to the violated rule.
func (v *Validator) ValidateStruct(dst interface{}) error {
	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"request validation failed",
			err,
		)
	}

	details := make(map[string]any, len(validationErrs))
	for _, fe := range validationErrs {
		details[strings.ToLower(fe.Field())] = fe.Tag()
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"request validation failed",
		nil,
		details,
	)
}
