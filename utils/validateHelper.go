package utils

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator for the validate:"..." tags on models.
// It caches struct metadata; share one instance per process.
func NewValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func ProcessValidationErrors(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return map[string]string{"_": err.Error()}
	}
	errorResponse := make(map[string]string, len(validationErrors))
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

// ValidationMessage flattens validation errors into one line, e.g.
// "rating: max; region: required".
func ValidationMessage(err error) string {
	fields := ProcessValidationErrors(err)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", strings.ToLower(k), fields[k]))
	}
	return strings.Join(parts, "; ")
}
