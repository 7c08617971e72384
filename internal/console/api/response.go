// Package api is the console's HTTP surface: throughput series and their
// live stream, pass-through broker operations (users, schemas, support,
// system components) and the dashboard page.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"go.brokerconsole.dev/internal/broker"
)

// maxBodyBytes bounds request bodies accepted by the console
const maxBodyBytes = 1 << 20

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// WriteBadRequest writes a 400 error
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

// WriteNotFound writes a 404 error
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

// WriteServiceUnavailable writes a 503 error
func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, "unavailable", message)
}

// WriteBrokerError maps a broker client error onto a console response.
// Broker validation messages are passed through so the user sees them.
func WriteBrokerError(w http.ResponseWriter, op string, err error) {
	var apiErr *broker.APIError
	message := ""
	if errors.As(err, &apiErr) {
		message = apiErr.Message
	}

	switch {
	case errors.Is(err, broker.ErrValidation):
		if message == "" {
			message = "The broker rejected the request"
		}
		WriteError(w, http.StatusUnprocessableEntity, "rejected", message)
	case errors.Is(err, broker.ErrNotFound):
		if message == "" {
			message = "Not found"
		}
		WriteNotFound(w, message)
	case errors.Is(err, broker.ErrUnauthorized):
		slog.Error("Broker rejected console credentials", "op", op, "error", err)
		WriteError(w, http.StatusBadGateway, "broker_unauthorized", "The console is not authorized against the broker")
	case errors.Is(err, broker.ErrUnavailable):
		slog.Warn("Broker unavailable", "op", op, "error", err)
		WriteServiceUnavailable(w, "The broker is unavailable, try again shortly")
	default:
		slog.Error("Broker request failed", "op", op, "error", err)
		WriteError(w, http.StatusBadGateway, "broker_error", fmt.Sprintf("%s failed", op))
	}
}

// DecodeJSON decodes a bounded JSON request body, rejecting unknown fields
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}
