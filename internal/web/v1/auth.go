package v1

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/duynhne/codeyard/internal/sandbox"
)

const viewerKey = "viewer"

// Authenticate resolves the bearer token, if any, to a viewer. A request
// without Authorization stays anonymous; a malformed or rejected token is a
// 401 so that clients know to refresh.
func Authenticate(svc *sandbox.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			abort(c, http.StatusUnauthorized, "NotAuthenticated", "Invalid authorization header.")
			return
		}

		viewer, err := svc.Authenticate(token)
		if err != nil {
			abort(c, http.StatusUnauthorized, "InvalidToken", "Given token not valid for any token type.")
			return
		}
		c.Set(viewerKey, viewer)
		c.Next()
	}
}

// RequireViewer rejects anonymous requests.
func RequireViewer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if viewerFrom(c) == nil {
			abort(c, http.StatusUnauthorized, "NotAuthenticated", "Authentication credentials were not provided.")
			return
		}
		c.Next()
	}
}

func viewerFrom(c *gin.Context) *sandbox.Viewer {
	v, ok := c.Get(viewerKey)
	if !ok {
		return nil
	}
	viewer, _ := v.(*sandbox.Viewer)
	return viewer
}
