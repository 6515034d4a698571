package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/airq-auth/internal/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", apperr.New(apperr.KindValidation, "bad input"), http.StatusBadRequest, "bad input"},
		{"conflict", fmt.Errorf("create: %w", apperr.New(apperr.KindConflict, "taken")), http.StatusBadRequest, "taken"},
		{"unauthorized", apperr.New(apperr.KindUnauthorized, "nope"), http.StatusUnauthorized, "nope"},
		{"not found", apperr.New(apperr.KindNotFound, "gone"), http.StatusNotFound, "gone"},
		{"internal kind", apperr.Wrap(apperr.KindInternal, "secret detail", errors.New("x")), http.StatusInternalServerError, InternalErrorMessage},
		{"unclassified", errors.New("dial tcp 10.0.0.1:5432"), http.StatusInternalServerError, InternalErrorMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleError(context.Background(), rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.Error)
		})
	}
}

func TestHandleError_ValidationDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(context.Background(), rec, apperr.Validation("Validation Error", []apperr.FieldError{
		{Field: "email", Message: "required"},
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t,
		`{"success":false,"error":"Validation Error","details":[{"field":"email","message":"required"}]}`,
		rec.Body.String())
}

func TestValidationDetails_UsesJSONNames(t *testing.T) {
	type request struct {
		FirstName string `json:"firstName" validate:"required"`
		Email     string `json:"email" validate:"required,email"`
	}

	err := NewValidator().Struct(request{Email: "nope"})
	require.Error(t, err)

	assert.Equal(t, []apperr.FieldError{
		{Field: "firstName", Message: "required"},
		{Field: "email", Message: "email"},
	}, ValidationDetails(err))
}

func TestValidationDetails_OtherError(t *testing.T) {
	assert.Equal(t, []apperr.FieldError{{Message: "boom"}}, ValidationDetails(errors.New("boom")))
}
