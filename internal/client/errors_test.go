package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusError_Classification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		kind     Kind
		sentinel error
		detail   string
		text     string
	}{
		{
			name:     "validation with field errors",
			status:   http.StatusBadRequest,
			body:     `{"username": ["A user with that username already exists."]}`,
			kind:     KindValidation,
			sentinel: ErrValidation,
			text:     "username: A user with that username already exists.",
		},
		{
			name:     "validation envelope",
			status:   http.StatusBadRequest,
			body:     `{"error": "ValidationError", "detail": {"review_type": ["Invalid choice."]}, "status_code": 400}`,
			kind:     KindValidation,
			sentinel: ErrValidation,
			text:     "review_type: Invalid choice.",
		},
		{
			name:     "non field errors",
			status:   http.StatusBadRequest,
			body:     `{"non_field_errors": ["Passwords do not match."]}`,
			kind:     KindValidation,
			sentinel: ErrValidation,
			text:     "Passwords do not match.",
		},
		{
			name:     "unauthenticated detail",
			status:   http.StatusUnauthorized,
			body:     `{"detail": "Authentication credentials were not provided."}`,
			kind:     KindUnauthenticated,
			sentinel: ErrUnauthenticated,
			detail:   "Authentication credentials were not provided.",
			text:     "Authentication credentials were not provided.",
		},
		{
			name:     "envelope with nested detail",
			status:   http.StatusUnauthorized,
			body:     `{"error": "NotAuthenticated", "status_code": 401, "detail": {"detail": "Authentication credentials were not provided."}}`,
			kind:     KindUnauthenticated,
			sentinel: ErrUnauthenticated,
			detail:   "Authentication credentials were not provided.",
			text:     "Authentication credentials were not provided.",
		},
		{
			name:     "forbidden",
			status:   http.StatusForbidden,
			body:     `{"detail": "You cannot review your own solution."}`,
			kind:     KindForbidden,
			sentinel: ErrForbidden,
			detail:   "You cannot review your own solution.",
			text:     "You cannot review your own solution.",
		},
		{
			name:     "not found without body",
			status:   http.StatusNotFound,
			kind:     KindNotFound,
			sentinel: ErrNotFound,
			text:     DefaultMessages["error.not_found"],
		},
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			body:     `{"error": "Request was throttled."}`,
			kind:     KindRateLimited,
			sentinel: ErrRateLimited,
			detail:   "Request was throttled.",
			text:     "Request was throttled.",
		},
		{
			name:     "server html page",
			status:   http.StatusBadGateway,
			body:     `<html><body>Bad Gateway</body></html>`,
			kind:     KindServer,
			sentinel: ErrServer,
			text:     DefaultMessages["error.server"],
		},
		{
			name:     "plain list",
			status:   http.StatusConflict,
			body:     `["Already published."]`,
			kind:     KindUnexpected,
			sentinel: ErrUnexpected,
			detail:   "Already published.",
			text:     "Already published.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := statusError(http.MethodPost, "/reviews/", tt.status, []byte(tt.body))

			assert.Equal(t, tt.kind, err.Kind)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.detail, err.Detail)
			assert.Equal(t, tt.text, DefaultMessages.Text(err))
			assert.Equal(t, "error."+string(tt.kind), MessageKey(err))
		})
	}
}

func TestClassify_WrappedAndForeignErrors(t *testing.T) {
	apiErr := statusError(http.MethodGet, "/tasks/1/", http.StatusNotFound, nil)

	assert.Equal(t, KindNotFound, Classify(fmt.Errorf("load task: %w", apiErr)))
	assert.Equal(t, KindNetwork, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindUnexpected, Classify(errors.New("boom")))
	assert.Equal(t, Kind(""), Classify(nil))
}

func TestMessages_ServerTextIsNeverAKey(t *testing.T) {
	custom := Messages{
		"error.forbidden":          "Nope.",
		"You cannot do that here.": "should never be shown",
	}

	withDetail := statusError(http.MethodDelete, "/solutions/5/", http.StatusForbidden, []byte(`{"detail": "You cannot do that here."}`))
	withoutDetail := statusError(http.MethodDelete, "/solutions/5/", http.StatusForbidden, nil)

	assert.Equal(t, "You cannot do that here.", custom.Text(withDetail))
	assert.Equal(t, "Nope.", custom.Text(withoutDetail))
	assert.Equal(t, DefaultMessages["error.server"], custom.Lookup("error.server"))
	assert.Equal(t, "unknown.key", custom.Lookup("unknown.key"))
}

func TestTransportError_Canceled(t *testing.T) {
	err := transportError(http.MethodGet, "/tasks/", context.Canceled)
	assert.Equal(t, KindUnexpected, err.Kind)
	assert.ErrorIs(t, err, context.Canceled)

	err = transportError(http.MethodGet, "/tasks/", context.DeadlineExceeded)
	assert.Equal(t, KindNetwork, err.Kind)
}
