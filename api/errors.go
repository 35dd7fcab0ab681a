package api

import (
	"fmt"
	"net/http"
)

// StatusCoder is implemented by errors that have an associated HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// ErrorResponse is the JSON error response body of the management API.
type ErrorResponse struct {
	Message string `json:"message"`
}

// NotFoundError indicates a requested resource was not found.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("No such %s: %s", e.Resource, e.ID)
}

func (e *NotFoundError) StatusCode() int {
	return http.StatusNotFound
}

// InvalidParameterError indicates an invalid request parameter.
type InvalidParameterError struct {
	Message string
}

func (e *InvalidParameterError) Error() string {
	return e.Message
}

func (e *InvalidParameterError) StatusCode() int {
	return http.StatusBadRequest
}

// UnauthorizedError indicates a failed agent handshake.
type UnauthorizedError struct{}

func (e *UnauthorizedError) Error() string {
	return "unauthorized"
}

func (e *UnauthorizedError) StatusCode() int {
	return http.StatusUnauthorized
}
