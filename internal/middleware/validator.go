package middleware

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrValidation marks request input rejected before reaching the orchestrator
var ErrValidation = errors.New("validation failed")

// alphanumeric, dash, underscore (max 64 chars)
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("resource_id", func(fl validator.FieldLevel) bool {
		return idPattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidateStruct runs the `validate` tags of a request body
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, ", "))
}

// ValidatePanelID validates panel ID format
func ValidatePanelID(panel string) error {
	if panel == "" {
		return fmt.Errorf("%w: panel ID cannot be empty", ErrValidation)
	}
	if !idPattern.MatchString(panel) {
		return fmt.Errorf("%w: invalid panel ID format (alphanumeric, dash, underscore only, max 64 chars)", ErrValidation)
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}
