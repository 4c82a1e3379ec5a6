package error

import (
	"errors"
	"net/http"
)

// GenericError is implemented by every error the HTTP layer knows how to render.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}

// NotFoundError wraps a missing page, topic or post.
type NotFoundError string

func (err NotFoundError) Error() string {
	return string(err)
}

func (err NotFoundError) ErrCode() string {
	return "NOT_FOUND_ERROR"
}

func (err NotFoundError) StatusCode() int {
	return http.StatusNotFound
}

type ValidationError string

func (err ValidationError) Error() string {
	return string(err)
}

func (err ValidationError) ErrCode() string {
	return "VALIDATION_ERROR"
}

func (err ValidationError) StatusCode() int {
	return http.StatusBadRequest
}

// PlanningError reports a malformed topic definition. No partial schedule is
// created when one is returned.
type PlanningError string

func (err PlanningError) Error() string {
	return string(err)
}

func (err PlanningError) ErrCode() string {
	return "PLANNING_ERROR"
}

func (err PlanningError) StatusCode() int {
	return http.StatusUnprocessableEntity
}

type ConflictError string

func (err ConflictError) Error() string {
	return string(err)
}

func (err ConflictError) ErrCode() string {
	return "CONFLICT_ERROR"
}

func (err ConflictError) StatusCode() int {
	return http.StatusConflict
}

type InternalServerError string

func (err InternalServerError) Error() string {
	return string(err)
}

func (err InternalServerError) ErrCode() string {
	return "INTERNAL_SERVER_ERROR"
}

func (err InternalServerError) StatusCode() int {
	return http.StatusInternalServerError
}

// AsGeneric unwraps err until a GenericError is found.
func AsGeneric(err error) (GenericError, bool) {
	var ge GenericError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}
