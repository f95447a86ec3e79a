package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/duynhne/codeyard/internal/core/domain"
)

// PageSize is the number of results per page of every paginated list.
const PageSize = 10

// paginate slices items into the page requested by ?page=. An out-of-range
// or malformed page is a 404, and false is returned.
func paginate[T any](c *gin.Context, items []T) (domain.Page[T], bool) {
	page := 1
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			abort(c, http.StatusNotFound, "NotFound", "Invalid page.")
			return domain.Page[T]{}, false
		}
		page = n
	}

	start := (page - 1) * PageSize
	if start > 0 && start >= len(items) {
		abort(c, http.StatusNotFound, "NotFound", "Invalid page.")
		return domain.Page[T]{}, false
	}
	end := min(start+PageSize, len(items))

	out := domain.Page[T]{Count: len(items), Results: items[start:end]}
	if end < len(items) {
		next := pageURL(c, page+1)
		out.Next = &next
	}
	if page > 1 {
		prev := pageURL(c, page-1)
		out.Previous = &prev
	}
	return out, true
}

func pageURL(c *gin.Context, page int) string {
	u := *c.Request.URL
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	u.Scheme, u.Host = scheme, c.Request.Host
	q := u.Query()
	if page == 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
