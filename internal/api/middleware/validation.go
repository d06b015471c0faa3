package middleware

import (
	stderrors "errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"ai-subtitler/internal/api/errors"
)

// Validator is implemented by requests with rules beyond struct tags.
type Validator interface {
	Validate() error
}

// ValidateForm binds multipart/form fields into req and validates them.
func ValidateForm(c *gin.Context, req any) error {
	if err := c.ShouldBind(req); err != nil {
		return bindingError(err, "request", "invalid form data")
	}
	return validateDomain(req)
}

// ValidateQuery binds query parameters into req and validates them.
func ValidateQuery(c *gin.Context, req any) error {
	if err := c.ShouldBindQuery(req); err != nil {
		return bindingError(err, "query", "invalid query parameters")
	}
	return validateDomain(req)
}

func validateDomain(req any) error {
	if v, ok := req.(Validator); ok {
		return v.Validate()
	}
	return nil
}

func bindingError(err error, field, message string) *errors.APIError {
	var validationErrs validator.ValidationErrors
	if !stderrors.As(err, &validationErrs) {
		return errors.NewBadRequestError(message)
	}

	details := make(map[string]string, len(validationErrs))
	for _, fieldError := range validationErrs {
		name := strings.ToLower(fieldError.Field())
		switch fieldError.Tag() {
		case "required":
			details[name] = "is required"
		case "min":
			details[name] = "is too small"
		case "max":
			details[name] = "is too large"
		case "oneof", "subtitle_lang", "job_status":
			details[name] = "must be one of the allowed values"
		default:
			details[name] = "is invalid"
		}
	}
	if len(details) == 0 {
		details[field] = message
	}
	return errors.NewValidationError("Validation failed", details)
}
