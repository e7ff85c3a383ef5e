package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxBodyBytes bounds decoded request bodies
const MaxBodyBytes = 1 << 20

// DetailResponse is the error body returned by every endpoint
type DetailResponse struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteDetail writes {"detail": detail} with the given status code
func WriteDetail(w http.ResponseWriter, status int, detail string) error {
	return WriteJSON(w, status, DetailResponse{Detail: detail})
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, detail string) error {
	return WriteDetail(w, http.StatusBadRequest, detail)
}

// WriteUnauthorized writes a 401 Unauthorized response with a bearer challenge
func WriteUnauthorized(w http.ResponseWriter, detail string) error {
	if detail == "" {
		detail = "Not authenticated"
	}
	w.Header().Set("WWW-Authenticate", "Bearer")
	return WriteDetail(w, http.StatusUnauthorized, detail)
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter) error {
	return WriteDetail(w, http.StatusNotFound, "Not Found")
}

// WriteMethodNotAllowed writes a 405 Method Not Allowed response
func WriteMethodNotAllowed(w http.ResponseWriter) error {
	return WriteDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
}

// WriteValidationError writes a 422 response listing the offending fields
func WriteValidationError(w http.ResponseWriter, fields map[string]string) error {
	return WriteJSON(w, http.StatusUnprocessableEntity, DetailResponse{
		Detail: "Validation failed",
		Fields: fields,
	})
}

// WriteTooManyRequests writes a 429 Too Many Requests response
func WriteTooManyRequests(w http.ResponseWriter) error {
	return WriteDetail(w, http.StatusTooManyRequests, "Rate limit exceeded")
}

// WriteInternalServerError writes a 500 Internal Server Error response
func WriteInternalServerError(w http.ResponseWriter) error {
	return WriteDetail(w, http.StatusInternalServerError, "Internal server error")
}

// DecodeJSON decodes a single JSON value from the request body into v
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	decoder := json.NewDecoder(body)
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if decoder.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
