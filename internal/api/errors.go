package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/akshat-collab/code-battle-arena/internal/types"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(statusCode int, err error) *ApiError {
	return &ApiError{
		StatusCode: statusCode,
		Message:    lower(http.StatusText(statusCode)),
		Err:        err,
	}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest, nil)
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound, nil)
}

func NewInternalServerError(err error) *ApiError {
	return newApiError(http.StatusInternalServerError, err)
}

func NewUnauthorizedError() *ApiError {
	return newApiError(http.StatusUnauthorized, nil)
}

func NewForbiddenError() *ApiError {
	return newApiError(http.StatusForbidden, nil)
}

// errorFromDomain maps an error kind to its HTTP status. Client errors
// carry the error text as detail; server errors keep it hidden.
func errorFromDomain(err error) *ApiError {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var e *ApiError
	switch {
	case errors.Is(err, types.ErrInvalidArgument):
		e = newApiError(http.StatusBadRequest, err)
	case errors.Is(err, types.ErrNotFound):
		e = newApiError(http.StatusNotFound, err)
	case errors.Is(err, types.ErrForbidden):
		e = newApiError(http.StatusForbidden, err)
	case errors.Is(err, types.ErrInvalidState), errors.Is(err, types.ErrRoomFull):
		e = newApiError(http.StatusConflict, err)
	case errors.Is(err, types.ErrJudgeUnavailable):
		return newApiError(http.StatusBadGateway, err)
	case errors.Is(err, types.ErrStorageFailure):
		return newApiError(http.StatusServiceUnavailable, err)
	default:
		return NewInternalServerError(err)
	}

	e.Detail = err.Error()
	return e
}
