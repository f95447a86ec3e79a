package v1

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/codeyard/internal/core/cache"
	"github.com/duynhne/codeyard/internal/core/domain"
	"github.com/duynhne/codeyard/internal/core/session"
	"github.com/duynhne/codeyard/middleware"
)

// CatalogService serves catalog reads through the shared cache and keeps the
// cache consistent after plain (non-optimistic) writes.
type CatalogService struct {
	api     API
	cache   *cache.Cache
	session *session.Store
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(api API, c *cache.Cache, store *session.Store) *CatalogService {
	return &CatalogService{api: api, cache: c, session: store}
}

func (s *CatalogService) Categories(ctx context.Context) ([]domain.Category, error) {
	return fetchList[domain.Category](ctx, s, CategoriesKey, pathCategories)
}

func (s *CatalogService) Difficulties(ctx context.Context) ([]domain.Difficulty, error) {
	return fetchList[domain.Difficulty](ctx, s, DifficultiesKey, pathDifficulties)
}

func (s *CatalogService) Languages(ctx context.Context) ([]domain.ProgrammingLanguage, error) {
	return fetchList[domain.ProgrammingLanguage](ctx, s, LanguagesKey, pathLanguages)
}

func fetchList[T any](ctx context.Context, s *CatalogService, key cache.Key, path string) ([]T, error) {
	items, err := cache.FetchAs(ctx, s.cache, key, func(ctx context.Context) ([]T, error) {
		var out []T
		if err := s.api.Get(ctx, path, nil, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", key, err)
	}
	return items, nil
}

// Tasks returns one page of the catalog for filters.
func (s *CatalogService) Tasks(ctx context.Context, filters CatalogFilters) (domain.Page[domain.Task], error) {
	ctx, span := middleware.StartSpan(ctx, "catalog.tasks", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int("page", filters.Page),
	))
	defer span.End()

	var userID int64
	if user, ok := s.session.User(); ok {
		userID = user.ID
	}
	query, err := filters.Query(userID)
	if err != nil {
		return domain.Page[domain.Task]{}, fmt.Errorf("list tasks: %w", err)
	}

	page, err := cache.FetchAs(ctx, s.cache, TasksKey(query), func(ctx context.Context) (domain.Page[domain.Task], error) {
		var out domain.Page[domain.Task]
		err := s.api.Get(ctx, pathTasks, query, &out)
		return out, err
	})
	if err != nil {
		span.RecordError(err)
		return domain.Page[domain.Task]{}, fmt.Errorf("list tasks: %w", err)
	}
	span.SetAttributes(attribute.Int("tasks.count", page.Count))
	return page, nil
}

func (s *CatalogService) Task(ctx context.Context, id int64) (domain.Task, error) {
	task, err := cache.FetchAs(ctx, s.cache, TaskKey(id), func(ctx context.Context) (domain.Task, error) {
		var out domain.Task
		err := s.api.Get(ctx, taskPath(id), nil, &out)
		return out, err
	})
	if err != nil {
		return domain.Task{}, fmt.Errorf("get task %d: %w", id, err)
	}
	return task, nil
}

func (s *CatalogService) CreateTask(ctx context.Context, in domain.TaskInput) (domain.Task, error) {
	ctx, span := middleware.StartSpan(ctx, "catalog.create_task", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	var task domain.Task
	if err := s.api.Post(ctx, pathTasks, in, &task); err != nil {
		span.RecordError(err)
		return domain.Task{}, fmt.Errorf("create task %q: %w", in.Name, err)
	}
	s.cache.Set(TaskKey(task.ID), task)
	s.cache.Invalidate(tasksPrefix)
	span.SetAttributes(attribute.Int64("task.id", task.ID))
	return task, nil
}

func (s *CatalogService) UpdateTask(ctx context.Context, id int64, patch domain.TaskPatch) (domain.Task, error) {
	var task domain.Task
	if err := s.api.Patch(ctx, taskPath(id), patch, &task); err != nil {
		return domain.Task{}, fmt.Errorf("update task %d: %w", id, err)
	}
	s.cache.Set(TaskKey(id), task)
	s.cache.Invalidate(tasksPrefix)
	return task, nil
}

func (s *CatalogService) DeleteTask(ctx context.Context, id int64) error {
	if err := s.api.Delete(ctx, taskPath(id)); err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	s.cache.MarkStale(TaskKey(id), SolutionsKey(id))
	s.cache.Invalidate(tasksPrefix)
	return nil
}

// Solutions returns one page of solutions. The default list of a task (no
// other filter, first page) is the view optimistic mutations update.
func (s *CatalogService) Solutions(ctx context.Context, filters SolutionFilters) (domain.Page[domain.Solution], error) {
	ctx, span := middleware.StartSpan(ctx, "catalog.solutions", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int64("task.id", filters.Task),
	))
	defer span.End()

	query := filters.Query()
	page, err := cache.FetchAs(ctx, s.cache, cache.Key(filters.cacheKey()), func(ctx context.Context) (domain.Page[domain.Solution], error) {
		var out domain.Page[domain.Solution]
		err := s.api.Get(ctx, pathSolutions, query, &out)
		return out, err
	})
	if err != nil {
		span.RecordError(err)
		return domain.Page[domain.Solution]{}, fmt.Errorf("list solutions: %w", err)
	}
	return page, nil
}

func (s *CatalogService) Solution(ctx context.Context, id int64) (domain.Solution, error) {
	sol, err := cache.FetchAs(ctx, s.cache, SolutionKey(id), func(ctx context.Context) (domain.Solution, error) {
		var out domain.Solution
		err := s.api.Get(ctx, solutionPath(id), nil, &out)
		return out, err
	})
	if err != nil {
		return domain.Solution{}, fmt.Errorf("get solution %d: %w", id, err)
	}
	return sol, nil
}

func (s *CatalogService) CreateSolution(ctx context.Context, in domain.SolutionInput) (domain.Solution, error) {
	ctx, span := middleware.StartSpan(ctx, "catalog.create_solution", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int64("task.id", in.Task),
	))
	defer span.End()

	var sol domain.Solution
	if err := s.api.Post(ctx, pathSolutions, in, &sol); err != nil {
		span.RecordError(err)
		return domain.Solution{}, fmt.Errorf("create solution for task %d: %w", in.Task, err)
	}
	s.cache.Set(SolutionKey(sol.ID), sol)
	invalidateSolutionLists(s.cache, sol.Task)
	return sol, nil
}

func (s *CatalogService) UpdateSolution(ctx context.Context, id int64, patch domain.SolutionPatch) (domain.Solution, error) {
	var sol domain.Solution
	if err := s.api.Patch(ctx, solutionPath(id), patch, &sol); err != nil {
		return domain.Solution{}, fmt.Errorf("update solution %d: %w", id, err)
	}
	s.cache.Set(SolutionKey(id), sol)
	invalidateSolutionLists(s.cache, sol.Task)
	return sol, nil
}

// Reviews lists the reviews of one solution.
func (s *CatalogService) Reviews(ctx context.Context, solutionID int64) ([]domain.Review, error) {
	reviews, err := cache.FetchAs(ctx, s.cache, ReviewsKey(solutionID), func(ctx context.Context) ([]domain.Review, error) {
		var out domain.Page[domain.Review]
		query := url.Values{"solution": {strconv.FormatInt(solutionID, 10)}}
		if err := s.api.Get(ctx, pathReviews, query, &out); err != nil {
			return nil, err
		}
		return out.Results, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list reviews of solution %d: %w", solutionID, err)
	}
	return reviews, nil
}
