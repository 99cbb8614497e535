package apperror

import "errors"

type Code string

const (
	CodeValidation           Code = "validation"
	CodeNotFound             Code = "not_found"
	CodeConflict             Code = "conflict"
	CodeUnauthorized         Code = "unauthorized"
	CodeMethodNotAllowed     Code = "method_not_allowed"
	CodeImproperlyConfigured Code = "improperly_configured"
	CodeInternal             Code = "internal"
)

type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// GetCode returns the code of the first *Error in err's chain, or CodeInternal
// for any other non-nil error.
func GetCode(err error) Code {
	if err == nil {
		return ""
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}

	return CodeInternal
}

// Message returns the client-safe message of err. Errors without a code get a
// generic message so internal details never reach the response body.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Code != CodeInternal && appErr.Code != CodeImproperlyConfigured {
		return appErr.Message
	}
	return "internal server error"
}
