package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/duynhne/codeyard/internal/logger"
	"github.com/duynhne/codeyard/internal/sandbox"
)

// ErrorResponse is the uniform error envelope. Detail is either a message or,
// for validation failures, a map of field name to messages.
type ErrorResponse struct {
	Error      string `json:"error"`
	Detail     any    `json:"detail"`
	StatusCode int    `json:"status_code"`
}

func abort(c *gin.Context, status int, code string, detail any) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Detail: detail, StatusCode: status})
}

// respondError maps service errors to HTTP responses.
func respondError(c *gin.Context, err error) {
	var verr *sandbox.ValidationError
	switch {
	case errors.As(err, &verr):
		abort(c, http.StatusBadRequest, "ValidationError", verr.Fields)
	case errors.Is(err, sandbox.ErrInvalidCredentials):
		abort(c, http.StatusUnauthorized, "AuthenticationFailed", "No active account found with the given credentials.")
	case errors.Is(err, sandbox.ErrInvalidToken):
		abort(c, http.StatusUnauthorized, "InvalidToken", "Token is invalid or expired.")
	case errors.Is(err, sandbox.ErrForbidden):
		abort(c, http.StatusForbidden, "PermissionDenied", "You do not have permission to perform this action.")
	case errors.Is(err, sandbox.ErrNotFound):
		abort(c, http.StatusNotFound, "NotFound", "Not found.")
	default:
		logger.FromContext(c.Request.Context()).Error().Err(err).Msg("Unhandled service error")
		abort(c, http.StatusInternalServerError, "ServerError", "Internal server error.")
	}
}

func badRequest(c *gin.Context, err error) {
	abort(c, http.StatusBadRequest, "ParseError", err.Error())
}
