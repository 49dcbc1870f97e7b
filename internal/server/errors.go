package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/seanblong/folio/internal/blob"
	"github.com/seanblong/folio/internal/store"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrNotFound indicates a missing resource
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrUnavailable indicates a dependency that is not configured or not reachable
type ErrUnavailable struct {
	Service string
}

func (e *ErrUnavailable) Error() string {
	return e.Service + " unavailable"
}

// httpStatus returns the appropriate HTTP status code for an error
func httpStatus(err error) int {
	var (
		ve *ErrValidation
		nf *ErrNotFound
		ua *ErrUnavailable
	)
	switch {
	case errors.As(err, &ve), errors.Is(err, blob.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.As(err, &nf), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &ua):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// notFound converts a store miss into an ErrNotFound naming the resource.
func notFound(err error, resource, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return &ErrNotFound{Resource: resource, ID: id}
	}
	return err
}

// validationError converts validator errors into an ErrValidation for the
// first failing field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		ve := verrs[0]
		return &ErrValidation{Field: ve.Field(), Message: ve.Tag()}
	}
	return &ErrValidation{Field: "body", Message: "invalid request"}
}
