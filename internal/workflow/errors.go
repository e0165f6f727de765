package workflow

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrConfirmationRequired is returned by Reopen until the caller repeats the
// call with explicit confirmation.
var ErrConfirmationRequired = errors.New("confirmation required")

// ValidationError maps field names to a short reason.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+e.Fields[key])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func fieldError(field, reason string) error {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fieldErr := range verrs {
		switch fieldErr.Tag() {
		case "required":
			fields[fieldErr.Field()] = "is required"
		case "email":
			fields[fieldErr.Field()] = "must be a valid email"
		case "max":
			fields[fieldErr.Field()] = "must be at most " + fieldErr.Param() + " characters"
		case "oneof":
			fields[fieldErr.Field()] = "must be one of " + fieldErr.Param()
		default:
			fields[fieldErr.Field()] = "is invalid"
		}
	}
	return &ValidationError{Fields: fields}
}
