package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type testVerifyRequest struct {
	Token  string `json:"token" validate:"required,min=16"`
	Action string `json:"action" validate:"required"`
}

type testPolicyRequest struct {
	Period string `json:"period" validate:"required,oneof=hour day week month"`
	ID     string `json:"id" validate:"required,len=6"`
}

func TestValidateRequestSuccess(t *testing.T) {
	req := testVerifyRequest{Token: "eyJhbGciOiJFZERTQSJ9", Action: "payments.send"}
	errs := ValidateRequest(req)
	assert.Nil(t, errs)
}

func TestValidateRequestMissingRequiredFields(t *testing.T) {
	req := testVerifyRequest{}
	errs := ValidateRequest(req)
	assert.NotNil(t, errs)
	assert.Contains(t, errs, "token")
	assert.Contains(t, errs, "action")
}

func TestValidateRequestMinLength(t *testing.T) {
	req := testVerifyRequest{Token: "short", Action: "payments.send"}
	errs := ValidateRequest(req)
	assert.NotNil(t, errs)
	assert.Contains(t, errs, "token")
}

func TestValidateRequestOneOf(t *testing.T) {
	req := testPolicyRequest{Period: "fortnight", ID: "pol001"}
	errs := ValidateRequest(req)
	assert.NotNil(t, errs)
	assert.Contains(t, errs, "period")
}

func TestValidateRequestLen(t *testing.T) {
	req := testPolicyRequest{Period: "day", ID: "short"}
	errs := ValidateRequest(req)
	assert.NotNil(t, errs)
	assert.Contains(t, errs, "id")
}

func TestFormatValidationErrorMessagesAreDescriptive(t *testing.T) {
	req := testPolicyRequest{}
	errs := ValidateRequest(req)
	assert.NotNil(t, errs)
	for field, msg := range errs {
		assert.NotEmpty(t, msg, "error message should not be empty for field: %s", field)
	}
}
