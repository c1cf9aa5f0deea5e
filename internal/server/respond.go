package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"bookvault/internal/app"
)

// envelope is the uniform response shape. Totals are pointers so list
// endpoints can include exactly the counter that applies to them.
type envelope struct {
	Status          bool   `json:"status"`
	Message         string `json:"message"`
	Data            any    `json:"data,omitempty"`
	Error           string `json:"error,omitempty"`
	Page            *int   `json:"page,omitempty"`
	TotalUsers      *int64 `json:"totalUsers,omitempty"`
	TotalCategories *int64 `json:"totalCategories,omitempty"`
	TotalBooks      *int64 `json:"totalBooks,omitempty"`
	TotalPages      *int   `json:"totalPages,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Status: true, Message: message, Data: data})
}

// writeList emits a paginated collection. setTotal picks which envelope
// counter carries the total for this resource.
func writeList(w http.ResponseWriter, message string, data any, page int, total int64, totalPages int, setTotal func(*envelope, int64)) {
	env := envelope{
		Status:     true,
		Message:    message,
		Data:       data,
		Page:       &page,
		TotalPages: &totalPages,
	}
	setTotal(&env, total)
	writeJSON(w, http.StatusOK, env)
}

func setTotalUsers(env *envelope, total int64)      { env.TotalUsers = &total }
func setTotalCategories(env *envelope, total int64) { env.TotalCategories = &total }
func setTotalBooks(env *envelope, total int64)      { env.TotalBooks = &total }

func writeError(w http.ResponseWriter, status int, message, diag string) {
	writeJSON(w, status, envelope{Status: false, Message: message, Error: diag})
}

func unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid token")
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "Not found", "")
}

// writeAppError maps service sentinels onto envelope status codes.
// Unrecognized errors become a generic 500 with a short diagnostic.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err.Error())
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid email or password", "invalid credentials")
	case errors.Is(err, app.ErrEmailExists):
		writeError(w, http.StatusConflict, "Email already registered", "duplicate email")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", "not allowed")
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", "record does not exist")
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error", "unexpected failure")
	}
}
