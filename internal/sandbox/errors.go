package sandbox

import (
	"errors"
	"sort"
	"strings"
)

// Sentinel errors returned by the sandbox service. Handlers map them to HTTP
// statuses; wrap them with fmt.Errorf("%w") to add context.
var (
	// ErrInvalidCredentials indicates an unknown user or a wrong password.
	// HTTP Status: 401 Unauthorized
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken indicates a missing, expired, revoked or forged token.
	// HTTP Status: 401 Unauthorized
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrNotFound indicates the object does not exist or is not visible.
	// HTTP Status: 404 Not Found
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the viewer does not own the object.
	// HTTP Status: 403 Forbidden
	ErrForbidden = errors.New("permission denied")
)

// ValidationError carries per-field messages.
// HTTP Status: 400 Bad Request
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// validation accumulates field errors.
type validation map[string][]string

func (v validation) add(field, msg string) {
	v[field] = append(v[field], msg)
}

func (v validation) err() error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Fields: v}
}

func fieldError(field, msg string) error {
	return &ValidationError{Fields: map[string][]string{field: {msg}}}
}
