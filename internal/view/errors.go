package view

import (
	"log/slog"
	"net/http"

	"github.com/OpenNSW/enrollment/internal/apperror"
)

var (
	ErrNoTemplateName    = apperror.New(apperror.CodeImproperlyConfigured, "view requires either a TemplateName or a Names override")
	ErrNoRenderer        = apperror.New(apperror.CodeImproperlyConfigured, "view has no template renderer")
	ErrNoSuccessURL      = apperror.New(apperror.CodeImproperlyConfigured, "no URL to redirect to; provide a SuccessURL")
	ErrNoFormConstructor = apperror.New(apperror.CodeImproperlyConfigured, "view has neither NewForm nor a GetForm hook")
	ErrMethodNotAllowed  = apperror.New(apperror.CodeMethodNotAllowed, "method not allowed")
	ErrMalformedBody     = apperror.New(apperror.CodeValidation, "malformed form body")
)

// StatusCode maps an error to the HTTP status it is reported with.
func StatusCode(err error) int {
	switch apperror.GetCode(err) {
	case apperror.CodeValidation:
		return http.StatusBadRequest
	case apperror.CodeNotFound:
		return http.StatusNotFound
	case apperror.CodeConflict:
		return http.StatusConflict
	case apperror.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperror.CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// WriteError logs err and writes a plain-text error response. Configuration
// errors are logged at error level so they surface during development.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	ctx := r.Context()
	switch {
	case apperror.GetCode(err) == apperror.CodeImproperlyConfigured:
		slog.ErrorContext(ctx, "view is improperly configured", "method", r.Method, "path", r.URL.Path, "error", err)
	case status >= http.StatusInternalServerError:
		slog.ErrorContext(ctx, "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	default:
		slog.WarnContext(ctx, "request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	http.Error(w, apperror.Message(err), status)
}
