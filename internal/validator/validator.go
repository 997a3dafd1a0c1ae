// Package validator binds and validates the evaluator's JSON request
// bodies (verify/simulate/revoke/lint), grounded on the teacher's
// go-playground/validator/v10 usage but without the user-signup validators
// (password/username) that have no place in a capability-verification
// service.
package validator

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateRequest validates a struct using its `validate` tags and returns
// a field->message map, or nil if validation passed.
func ValidateRequest(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errs := make(map[string]string)
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			field := strings.ToLower(e.Field())
			errs[field] = formatValidationError(e)
		}
	}
	return errs
}

// BindAndValidate binds JSON from the request body into req and validates
// it, writing a 400 response and returning false on either failure.
func BindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"code":    "INVALID_PAYLOAD",
			"details": err.Error(),
		})
		return false
	}

	if errs := ValidateRequest(req); errs != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation failed",
			"code":   "INVALID_PAYLOAD",
			"fields": errs,
		})
		return false
	}

	return true
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", e.Param())
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}
