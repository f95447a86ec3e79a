package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
)

// Sentinel errors, one per error kind. Every *APIError unwraps to exactly one
// of them, so callers can use errors.Is(err, client.ErrNotFound).
var (
	ErrNetwork         = errors.New("network error")
	ErrValidation      = errors.New("validation error")
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("permission denied")
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrServer          = errors.New("server error")
	ErrUnexpected      = errors.New("unexpected error")
)

// Kind classifies a failed API call.
type Kind string

const (
	KindNetwork         Kind = "network"
	KindValidation      Kind = "validation"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindRateLimited     Kind = "rate_limited"
	KindServer          Kind = "server"
	KindUnexpected      Kind = "unexpected"
)

func (k Kind) sentinel() error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindValidation:
		return ErrValidation
	case KindUnauthenticated:
		return ErrUnauthenticated
	case KindForbidden:
		return ErrForbidden
	case KindNotFound:
		return ErrNotFound
	case KindRateLimited:
		return ErrRateLimited
	case KindServer:
		return ErrServer
	default:
		return ErrUnexpected
	}
}

// KindForStatus maps an HTTP status to an error kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusBadRequest:
		return KindValidation
	case status == http.StatusUnauthorized:
		return KindUnauthenticated
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindUnexpected
	}
}

// APIError is a classified API failure. Transport and classification happen
// once, in the client; everything above only inspects this type.
type APIError struct {
	Kind   Kind
	Status int
	Method string
	Path   string
	// Detail is the human-readable message sent by the server, if any.
	Detail string
	// Fields holds per-field validation messages.
	Fields map[string][]string
	// Err is the underlying transport or decoding error, if any.
	Err error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Method, e.Path, e.Kind.sentinel())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *APIError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind.sentinel(), e.Err}
	}
	return []error{e.Kind.sentinel()}
}

// FieldError returns the first validation message, ordered by field name.
func (e *APIError) FieldError() string {
	if len(e.Fields) == 0 {
		return ""
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if msgs := e.Fields[name]; len(msgs) > 0 {
			if name == "non_field_errors" {
				return msgs[0]
			}
			return name + ": " + msgs[0]
		}
	}
	return ""
}

// Classify returns the kind of any error produced while talking to the API.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	return KindUnexpected
}

func transportError(method, path string, err error) *APIError {
	kind := KindNetwork
	if errors.Is(err, context.Canceled) {
		kind = KindUnexpected
	}
	return &APIError{Kind: kind, Method: method, Path: path, Err: err}
}

func statusError(method, path string, status int, body []byte) *APIError {
	detail, fields := parseErrorBody(body)
	return &APIError{
		Kind:   KindForStatus(status),
		Status: status,
		Method: method,
		Path:   path,
		Detail: detail,
		Fields: fields,
	}
}

// parseErrorBody understands the payload shapes of the Codeyard API:
//
//	"message"
//	["message", ...]
//	{"detail": "message"}
//	{"error": "ValidationError", "detail": {"field": ["message"]}, "status_code": 400}
//	{"field": ["message"], "non_field_errors": ["message"]}
func parseErrorBody(body []byte) (string, map[string][]string) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", nil
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		if strings.HasPrefix(trimmed, "<") || len(trimmed) > 200 {
			return "", nil
		}
		return trimmed, nil
	}

	switch v := payload.(type) {
	case string:
		return v, nil
	case []any:
		return strings.Join(stringList(v), " "), nil
	case map[string]any:
		// {"error": "<ExceptionClass>", "detail": {...}}: the class name is not a message.
		source := v
		if nested, ok := v["detail"].(map[string]any); ok {
			source = nested
		}
		var detail string
		for _, key := range []string{"detail", "message", "error"} {
			if s, ok := source[key].(string); ok && s != "" {
				detail = s
				break
			}
		}
		fields := make(map[string][]string)
		for key, raw := range source {
			switch key {
			case "detail", "message", "error", "status_code", "code":
				continue
			}
			switch msgs := raw.(type) {
			case string:
				fields[key] = []string{msgs}
			case []any:
				if list := stringList(msgs); len(list) > 0 {
					fields[key] = list
				}
			}
		}
		if len(fields) == 0 {
			fields = nil
		}
		return detail, fields
	default:
		return "", nil
	}
}

func stringList(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
