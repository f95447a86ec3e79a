package v1

import (
	"context"
	"fmt"
	"net/url"

	"github.com/duynhne/codeyard/internal/core/cache"
)

// API is the transport the services depend on. *client.Client implements it.
type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Patch(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string) error
}

// AuthAPI adds the coordinated token refresh used by AuthService.Refresh.
// Implementations install the new token in the session themselves.
type AuthAPI interface {
	API
	Refresh(ctx context.Context) error
}

// API paths.
const (
	pathLogin        = "/auth/login/"
	pathRegister     = "/auth/register/"
	pathLogout       = "/auth/logout/"
	pathMe           = "/users/me/"
	pathCategories   = "/categories/"
	pathDifficulties = "/difficulties/"
	pathLanguages    = "/languages/"
	pathTasks        = "/tasks/"
	pathSolutions    = "/solutions/"
	pathReviews      = "/reviews/"
)

func taskPath(id int64) string             { return fmt.Sprintf("/tasks/%d/", id) }
func solutionPath(id int64) string         { return fmt.Sprintf("/solutions/%d/", id) }
func publishPath(id int64) string          { return fmt.Sprintf("/solutions/%d/publish/", id) }
func solutionPagePrefix(task int64) string { return fmt.Sprintf("solutions:%d?", task) }

// Cache keys.
const (
	CategoriesKey   cache.Key = "categories"
	DifficultiesKey cache.Key = "difficulties"
	LanguagesKey    cache.Key = "languages"
	tasksPrefix               = "tasks?"
)

func TaskKey(id int64) cache.Key { return cache.Key(fmt.Sprintf("task:%d", id)) }

// TasksKey identifies one task list page by its exact query.
func TasksKey(query url.Values) cache.Key {
	return cache.Key(tasksPrefix + query.Encode())
}

func SolutionKey(id int64) cache.Key { return cache.Key(fmt.Sprintf("solution:%d", id)) }

// SolutionsKey identifies the default solution list of a task: first page,
// no filters besides the task. Optimistic mutations write to this key.
func SolutionsKey(taskID int64) cache.Key {
	return cache.Key(fmt.Sprintf("solutions:%d", taskID))
}

func ReviewsKey(solutionID int64) cache.Key {
	return cache.Key(fmt.Sprintf("reviews:%d", solutionID))
}

// invalidateSolutionLists marks every cached solution list of task stale.
func invalidateSolutionLists(c *cache.Cache, taskID int64) {
	c.MarkStale(SolutionsKey(taskID))
	c.Invalidate(solutionPagePrefix(taskID))
	c.Invalidate("solutions?")
}
