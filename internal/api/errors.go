package api

import (
	"errors"
	"net/http"

	"vidtube/internal/storage"
)

// Error is the typed failure raised by handlers. It is translated into the
// JSON error envelope in exactly one place, writeError.
type Error struct {
	Status  int
	Message string
	Details []string
}

func (e *Error) Error() string {
	return e.Message
}

func BadRequest(message string, details ...string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: message, Details: details}
}

func Unauthorized(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Status: http.StatusConflict, Message: message}
}

func InternalError(message string) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: message}
}

// translateError maps any error to the typed form. Storage sentinels get
// their canonical statuses; everything unrecognised becomes an opaque 500.
func translateError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		return NotFound("user not found")
	case errors.Is(err, storage.ErrVideoNotFound):
		return NotFound("video not found")
	case errors.Is(err, storage.ErrDuplicateUser):
		return Conflict("user with email or username already exists")
	case errors.Is(err, storage.ErrInvalidCredentials):
		return Unauthorized("invalid credentials")
	case errors.Is(err, storage.ErrSelfSubscription):
		return BadRequest("cannot subscribe to own channel")
	default:
		return InternalError("internal server error")
	}
}
