package access

import "fmt"

// AppError is the error shape surfaced across the pipeline boundary. Status
// carries the HTTP-style code the transport layer responds with.
type AppError struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
	Rule    string `json:"rule,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

// PolicyMissingError: no policy registered for the resource and the default
// policy is deny. Surfaced as an ordinary denial.
func PolicyMissingError(resource string) *AppError {
	return &AppError{
		Code:    "POLICY_MISSING",
		Status:  403,
		Message: fmt.Sprintf("Access denied: no policy for %s", resource),
	}
}

// PermissionDeniedError: the permission expression evaluated false.
func PermissionDeniedError(operation Operation, resource string) *AppError {
	return &AppError{
		Code:    "PERMISSION_DENIED",
		Status:  403,
		Message: fmt.Sprintf("Permission denied for %s on %s", operation, resource),
	}
}

// RuleViolatedError: a named business rule failed.
func RuleViolatedError(rule string) *AppError {
	return &AppError{
		Code:    "RULE_VIOLATED",
		Status:  403,
		Message: fmt.Sprintf("Business rule violated: %s", rule),
		Rule:    rule,
	}
}

// ExpressionDeniedError: a policy expression could not be evaluated. The
// request is denied; the defect is in the policy, not the request, so the
// caller logs it as a configuration problem.
func ExpressionDeniedError(resource string, reason error) *AppError {
	return &AppError{
		Code:    "EXPRESSION_ERROR",
		Status:  403,
		Message: fmt.Sprintf("Access denied for %s: policy expression failed: %v", resource, reason),
	}
}

// UnknownRoleError: the subject carries a role outside the hierarchy. This is
// a configuration defect, never a permit.
func UnknownRoleError(role string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_ROLE",
		Status:  500,
		Message: fmt.Sprintf("Unknown role: %s", role),
	}
}

// UnsupportedOperationError: the HTTP method maps to no operation.
func UnsupportedOperationError(method string) *AppError {
	return &AppError{
		Code:    "UNSUPPORTED_OPERATION",
		Status:  500,
		Message: fmt.Sprintf("Unsupported method: %s", method),
	}
}
