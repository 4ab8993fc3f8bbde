package middleware

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
)

// Input validation and sanitization utilities

var (
	validate  = newValidator()
	idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names so errors line up with the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// ValidateStruct runs the validate tags of s and returns an apperr
// Validation error keyed by json field path.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = formatValidationError(fe)
	}
	return apperr.Validation(fields)
}

// fieldPath drops the struct name prefix: "createProduct.metadata.tags[0]"
// becomes "metadata.tags[0]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min":
		switch fe.Kind() {
		case reflect.Slice:
			return fmt.Sprintf("must contain at least %s items", fe.Param())
		case reflect.Int, reflect.Int64:
			return fmt.Sprintf("must be at least %s", fe.Param())
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		switch fe.Kind() {
		case reflect.Slice:
			return fmt.Sprintf("must contain at most %s items", fe.Param())
		case reflect.Int, reflect.Int64:
			return fmt.Sprintf("cannot exceed %s", fe.Param())
		}
		return fmt.Sprintf("cannot exceed %s characters", fe.Param())
	case "url":
		return "must be a valid URL"
	case "email":
		return "must be a valid email"
	case "fqdn":
		return "must be a valid domain"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateID checks a path id (alphanumeric, dash, underscore, max 64 chars).
func ValidateID(field, id string) error {
	if !idPattern.MatchString(id) {
		return apperr.Validation(map[string]string{field: "invalid id format"})
	}
	return nil
}
