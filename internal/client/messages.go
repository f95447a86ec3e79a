package client

import "errors"

// Messages maps stable message keys to display text. Keys for errors are
// "error.<kind>"; server-supplied text is shown as-is and never looked up.
type Messages map[string]string

// DefaultMessages holds the English text for every key the client emits.
var DefaultMessages = Messages{
	"error.network":         "Could not reach the server. Check your connection and try again.",
	"error.validation":      "Some of the submitted data is invalid.",
	"error.unauthenticated": "Your session has expired. Please log in again.",
	"error.forbidden":       "You do not have permission to do that.",
	"error.not_found":       "The requested item was not found.",
	"error.rate_limited":    "Too many requests. Please wait a moment and try again.",
	"error.server":          "The server failed to process the request. Please try again later.",
	"error.unexpected":      "Something went wrong.",
}

// MessageKey returns the stable message key for err.
func MessageKey(err error) string {
	kind := Classify(err)
	if kind == "" {
		return ""
	}
	return "error." + string(kind)
}

// Lookup returns the text registered for key, falling back to
// DefaultMessages and finally to the key itself.
func (m Messages) Lookup(key string) string {
	if text, ok := m[key]; ok {
		return text
	}
	if text, ok := DefaultMessages[key]; ok {
		return text
	}
	return key
}

// Text returns the human-readable message for err.
func (m Messages) Text(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Detail != "" {
			return apiErr.Detail
		}
		if field := apiErr.FieldError(); field != "" {
			return field
		}
	}
	return m.Lookup(MessageKey(err))
}
