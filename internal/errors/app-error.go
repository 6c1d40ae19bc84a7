package app_error

import (
	"encoding/json"
	"net/http"
)

// Kind is the closed taxonomy of chat failures. Handlers map kinds to HTTP
// status codes; the core only deals in kinds.
type Kind string

const (
	KindInvalidMessage   Kind = "invalid-message"
	KindFileUploadFailed Kind = "file-upload-failed"
	KindNotFound         Kind = "not-found"
	KindInvalidState     Kind = "invalid-state"
	KindStoreUnavailable Kind = "store-unavailable"
	KindPermissionDenied Kind = "permission-denied"
	KindBadRequest       Kind = "bad-request"
	KindInternal         Kind = "internal"
)

type AppError struct {
	Code    int    `json:"-"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) JSON(w http.ResponseWriter) error {
	return json.NewEncoder(w).Encode(e)
}

func NewAppError(code int, msg, field string) *AppError {
	return &AppError{
		Code:    code,
		Kind:    KindInternal,
		Message: msg,
		Field:   field,
	}
}

func New(kind Kind, msg, field string) *AppError {
	return &AppError{
		Code:    statusFor(kind),
		Kind:    kind,
		Message: msg,
		Field:   field,
	}
}

// Is reports whether err is an *AppError of the given kind.
func Is(err error, kind Kind) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Kind == kind
}

func statusFor(kind Kind) int {
	switch kind {
	case KindInvalidMessage, KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState:
		return http.StatusConflict
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
