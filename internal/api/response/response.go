package response

import (
	"encoding/json"
	"net/http"
)

// Envelope is the shape every JSON endpoint replies with. At most one of
// Data and Error is set.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Error   any  `json:"error,omitempty"`
}

func write(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

// JSON replies with data wrapped in the standard envelope
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Envelope{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

// Error replies with an error envelope
func Error(w http.ResponseWriter, status int, message any) {
	write(w, status, Envelope{Error: message})
}

// NoContent replies 204 with an empty body
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Created replies 201 with data
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// OK replies 200 with data
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// BadRequest replies 400 with an error message
func BadRequest(w http.ResponseWriter, message any) {
	Error(w, http.StatusBadRequest, message)
}

// Unauthorized replies 401 with an error message
func Unauthorized(w http.ResponseWriter, message any) {
	Error(w, http.StatusUnauthorized, message)
}

// Forbidden replies 403 with an error message
func Forbidden(w http.ResponseWriter, message any) {
	Error(w, http.StatusForbidden, message)
}

// NotFound replies 404 with an error message
func NotFound(w http.ResponseWriter, message any) {
	Error(w, http.StatusNotFound, message)
}

// InternalError replies 500 with an error message
func InternalError(w http.ResponseWriter, message any) {
	Error(w, http.StatusInternalServerError, message)
}
