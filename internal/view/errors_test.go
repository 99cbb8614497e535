package view

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/OpenNSW/enrollment/internal/apperror"
)

func TestStatusCode(t *testing.T) {
	cases := map[error]int{
		apperror.New(apperror.CodeValidation, "bad"):     http.StatusBadRequest,
		apperror.New(apperror.CodeNotFound, "missing"):   http.StatusNotFound,
		apperror.New(apperror.CodeConflict, "dup"):       http.StatusConflict,
		apperror.New(apperror.CodeUnauthorized, "who"):   http.StatusUnauthorized,
		ErrMethodNotAllowed:                              http.StatusMethodNotAllowed,
		ErrNoSuccessURL:                                  http.StatusInternalServerError,
		errors.New("boom"):                               http.StatusInternalServerError,
		fmt.Errorf("wrapped: %w", ErrMalformedBody):      http.StatusBadRequest,
		errors.Join(ErrMalformedBody, errors.New("eof")): http.StatusBadRequest,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusCode(err), err.Error())
	}
}

func TestWriteError_HidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("query: %w", errors.New("password=hunter2")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error\n", rec.Body.String())

	rec = httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), apperror.New(apperror.CodeNotFound, "submission not found"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "submission not found\n", rec.Body.String())
}
