package httputil

import (
	"context"
	"net/http"

	"github.com/bissquit/airq-auth/internal/pkg/apperr"
	"github.com/bissquit/airq-auth/internal/pkg/ctxlog"
)

// InternalErrorMessage is the only message clients see for unexpected failures.
const InternalErrorMessage = "Server error"

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindConflict:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes the response for err.
// Unclassified and internal errors are logged with full detail and reported generically.
func HandleError(ctx context.Context, w http.ResponseWriter, err error) {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.KindInternal {
		ctxlog.FromContext(ctx).Error("internal error", "error", err)
		Error(w, http.StatusInternalServerError, InternalErrorMessage)
		return
	}

	if e.Kind == apperr.KindValidation && e.Cause != nil {
		ctxlog.FromContext(ctx).Debug("request rejected", "error", err)
	}

	ErrorWithDetails(w, StatusFor(e.Kind), e.Message, e.Details)
}
