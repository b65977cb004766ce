package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Tiliavir/quarter-tracker/internal/storage"
)

// Response is the envelope of every API response.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error is the body of a failed request.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

// Error codes.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeNotFound     = "NOT_FOUND"
	CodeBadRequest   = "BAD_REQUEST"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
	CodeRateLimited  = "RATE_LIMITED"
)

var (
	errUnauthorized = &Error{Code: CodeUnauthorized, Message: "invalid or expired token", Status: http.StatusUnauthorized}
	errRateLimited  = &Error{Code: CodeRateLimited, Message: "too many requests", Status: http.StatusTooManyRequests}
	errInternal     = &Error{Code: CodeInternal, Message: "internal server error", Status: http.StatusInternalServerError}
)

func badRequest(msg string) *Error {
	return &Error{Code: CodeBadRequest, Message: msg, Status: http.StatusBadRequest}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Data: data})
}

func writeError(w http.ResponseWriter, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	json.NewEncoder(w).Encode(Response{Error: e})
}

// storeError maps a store error onto the wire. Unknown errors are reported
// as internal without their message.
func storeError(err error) *Error {
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		return &Error{Code: CodeConflict, Message: err.Error(), Status: http.StatusConflict}
	case errors.Is(err, storage.ErrNotFound):
		return &Error{Code: CodeNotFound, Message: err.Error(), Status: http.StatusNotFound}
	default:
		return errInternal
	}
}
