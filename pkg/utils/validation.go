package utils

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	pkgerrors "companionlife/pkg/errors"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	// datekey accepts a YYYY-MM-DD calendar day
	if err := v.RegisterValidation("datekey", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(DateLayout, fl.Field().String())
		return err == nil
	}); err != nil {
		panic(fmt.Sprintf("register datekey validation: %v", err))
	}
	return v
}

// ValidateStruct validates a struct based on its validation tags.
// Failures are returned as validation AppErrors.
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError formats validation errors into readable messages
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		messages := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			messages = append(messages, formatFieldError(e))
		}
		return pkgerrors.NewValidationError(strings.Join(messages, "; "))
	}
	return pkgerrors.NewValidationError(err.Error())
}

// formatFieldError formats a single field validation error
func formatFieldError(e validator.FieldError) string {
	field := e.Field()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "datekey":
		return fmt.Sprintf("%s must be a YYYY-MM-DD date", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
