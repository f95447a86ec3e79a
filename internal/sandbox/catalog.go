package sandbox

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/codeyard/internal/core/domain"
	"github.com/duynhne/codeyard/middleware"
)

// TaskQuery filters the task list. Zero values mean "not filtered".
type TaskQuery struct {
	Search     string
	Category   int64
	Difficulty int64
	Status     domain.TaskStatus
	AddedBy    int64
	SolvedBy   int64
	Ordering   string
}

// SolutionQuery filters the solution list.
type SolutionQuery struct {
	Task     int64
	IsPublic *bool
	Language int64
	User     int64
}

var orderings = []string{"created_at", "-created_at", "name", "-name"}

// ValidOrdering reports whether o is an accepted task ordering.
func ValidOrdering(o string) bool {
	return o == "" || slices.Contains(orderings, o)
}

func (s *Service) Categories() []domain.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.categories)
}

func (s *Service) Difficulties() []domain.Difficulty {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.difficulties)
}

func (s *Service) Languages() []domain.ProgrammingLanguage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.languages)
}

func viewerID(v *Viewer) int64 {
	if v == nil {
		return 0
	}
	return v.ID
}

func (s *Service) taskVisible(t *taskRow, viewer *Viewer) bool {
	return t.Status == domain.TaskPublic || (viewer != nil && t.OwnerID == viewer.ID)
}

func (s *Service) solutionVisible(sol *solutionRow, viewer *Viewer) bool {
	return sol.IsPublic || (viewer != nil && sol.OwnerID == viewer.ID)
}

// ListTasks returns the visible tasks matching q in the requested order.
func (s *Service) ListTasks(ctx context.Context, viewer *Viewer, q TaskQuery) ([]domain.Task, error) {
	_, span := middleware.StartSpan(ctx, "sandbox.tasks.list", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int64("viewer.id", viewerID(viewer)),
	))
	defer span.End()

	if !ValidOrdering(q.Ordering) {
		return nil, fieldError("ordering", fmt.Sprintf("Invalid ordering %q.", q.Ordering))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(q.Search)
	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if !s.taskVisible(t, viewer) {
			continue
		}
		if q.Category != 0 && t.Category != q.Category {
			continue
		}
		if q.Difficulty != 0 && t.Difficulty != q.Difficulty {
			continue
		}
		if q.Status != "" && t.Status != q.Status {
			continue
		}
		if q.AddedBy != 0 && t.OwnerID != q.AddedBy {
			continue
		}
		if q.SolvedBy != 0 && !s.solvedLocked(t.ID, q.SolvedBy) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Name), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		out = append(out, t.Task)
	}

	sortTasks(out, q.Ordering)
	span.SetAttributes(attribute.Int("tasks.count", len(out)))
	return out, nil
}

func (s *Service) solvedLocked(taskID, userID int64) bool {
	for _, sol := range s.solutions {
		if sol.Task == taskID && sol.OwnerID == userID {
			return true
		}
	}
	return false
}

func sortTasks(tasks []domain.Task, ordering string) {
	desc := strings.HasPrefix(ordering, "-")
	field := strings.TrimPrefix(ordering, "-")
	if ordering == "" {
		field, desc = "created_at", true
	}
	slices.SortStableFunc(tasks, func(a, b domain.Task) int {
		var c int
		if field == "name" {
			c = strings.Compare(a.Name, b.Name)
		} else {
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if c == 0 {
			c = cmpInt(a.ID, b.ID)
		}
		if desc {
			return -c
		}
		return c
	})
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// GetTask returns one visible task.
func (s *Service) GetTask(_ context.Context, viewer *Viewer, id int64) (domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok || !s.taskVisible(t, viewer) {
		return domain.Task{}, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return t.Task, nil
}

func (s *Service) validateTaskRefs(v validation, category, difficulty int64) {
	if !slices.ContainsFunc(s.categories, func(c domain.Category) bool { return c.ID == category }) {
		v.add("category", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", category))
	}
	if !slices.ContainsFunc(s.difficulties, func(d domain.Difficulty) bool { return d.ID == difficulty }) {
		v.add("difficulty", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", difficulty))
	}
}

func validResource(raw string) bool {
	if raw == "" {
		return true
	}
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// CreateTask adds a private task owned by viewer.
func (s *Service) CreateTask(ctx context.Context, viewer *Viewer, in domain.TaskInput) (domain.Task, error) {
	_, span := middleware.StartSpan(ctx, "sandbox.tasks.create", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int64("viewer.id", viewer.ID),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	v := validation{}
	if strings.TrimSpace(in.Name) == "" {
		v.add("name", "This field may not be blank.")
	}
	if strings.TrimSpace(in.Description) == "" {
		v.add("description", "This field may not be blank.")
	}
	if !validResource(in.Resource) {
		v.add("resource", "Enter a valid URL.")
	}
	s.validateTaskRefs(v, in.Category, in.Difficulty)
	if err := v.err(); err != nil {
		return domain.Task{}, err
	}

	now := s.now().UTC()
	t := &taskRow{
		Task: domain.Task{
			ID:          s.nextID("tasks"),
			Name:        in.Name,
			Description: in.Description,
			Resource:    in.Resource,
			Category:    in.Category,
			Difficulty:  in.Difficulty,
			AddedBy:     viewer.Username,
			Status:      domain.TaskPrivate,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		OwnerID: viewer.ID,
	}
	s.tasks[t.ID] = t
	span.SetAttributes(attribute.Int64("task.id", t.ID))
	return t.Task, nil
}

func (s *Service) ownedTaskLocked(viewer *Viewer, id int64) (*taskRow, error) {
	t, ok := s.tasks[id]
	if !ok || !s.taskVisible(t, viewer) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if t.OwnerID != viewer.ID {
		return nil, fmt.Errorf("task %d: %w", id, ErrForbidden)
	}
	return t, nil
}

// UpdateTask applies patch to a task owned by viewer.
func (s *Service) UpdateTask(_ context.Context, viewer *Viewer, id int64, patch domain.TaskPatch) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.ownedTaskLocked(viewer, id)
	if err != nil {
		return domain.Task{}, err
	}

	category, difficulty := t.Category, t.Difficulty
	if patch.Category != nil {
		category = *patch.Category
	}
	if patch.Difficulty != nil {
		difficulty = *patch.Difficulty
	}
	v := validation{}
	s.validateTaskRefs(v, category, difficulty)
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		v.add("name", "This field may not be blank.")
	}
	if patch.Resource != nil && !validResource(*patch.Resource) {
		v.add("resource", "Enter a valid URL.")
	}
	if patch.Status != nil {
		switch *patch.Status {
		case domain.TaskPrivate, domain.TaskPublic, domain.TaskHidden:
		default:
			v.add("status", fmt.Sprintf("\"%s\" is not a valid choice.", *patch.Status))
		}
	}
	if err := v.err(); err != nil {
		return domain.Task{}, err
	}

	if patch.Name != nil {
		t.Name = *patch.Name
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Resource != nil {
		t.Resource = *patch.Resource
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	t.Category, t.Difficulty = category, difficulty
	t.UpdatedAt = s.now().UTC()
	return t.Task, nil
}

// DeleteTask removes a task owned by viewer together with its solutions and
// their reviews.
func (s *Service) DeleteTask(_ context.Context, viewer *Viewer, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ownedTaskLocked(viewer, id); err != nil {
		return err
	}
	for sid, sol := range s.solutions {
		if sol.Task == id {
			s.deleteSolutionLocked(sid)
		}
	}
	delete(s.tasks, id)
	return nil
}

// solutionView renders a solution row with counters and the viewer's own
// review.
func (s *Service) solutionView(sol *solutionRow, viewer *Viewer) domain.Solution {
	out := sol.Solution
	out.PositiveReviewsCount, out.NegativeReviewsCount = 0, 0
	out.UserReview = nil
	for _, r := range s.reviews {
		if r.Solution != sol.ID {
			continue
		}
		if r.ReviewType == domain.ReviewPositive {
			out.PositiveReviewsCount++
		} else {
			out.NegativeReviewsCount++
		}
		if viewer != nil && r.UserID == viewer.ID {
			out.UserReview = &domain.UserReview{ID: r.ID, ReviewType: r.ReviewType}
		}
	}
	for _, l := range s.languages {
		if l.ID == sol.Language {
			out.LanguageName = l.Name
		}
	}
	if sol.PublishedAt != nil {
		published := *sol.PublishedAt
		out.PublishedAt = &published
	}
	return out
}

// ListSolutions returns the visible solutions matching q, newest first.
func (s *Service) ListSolutions(_ context.Context, viewer *Viewer, q SolutionQuery) []domain.Solution {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Solution, 0)
	for _, sol := range s.solutions {
		if !s.solutionVisible(sol, viewer) {
			continue
		}
		if q.Task != 0 && sol.Task != q.Task {
			continue
		}
		if q.IsPublic != nil && sol.IsPublic != *q.IsPublic {
			continue
		}
		if q.Language != 0 && sol.Language != q.Language {
			continue
		}
		if q.User != 0 && sol.OwnerID != q.User {
			continue
		}
		out = append(out, s.solutionView(sol, viewer))
	}
	slices.SortFunc(out, func(a, b domain.Solution) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpInt(a.ID, b.ID)
	})
	return out
}

// GetSolution returns one visible solution.
func (s *Service) GetSolution(_ context.Context, viewer *Viewer, id int64) (domain.Solution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sol, ok := s.solutions[id]
	if !ok || !s.solutionVisible(sol, viewer) {
		return domain.Solution{}, fmt.Errorf("solution %d: %w", id, ErrNotFound)
	}
	return s.solutionView(sol, viewer), nil
}

// CreateSolution attaches a private solution of viewer to a visible task.
func (s *Service) CreateSolution(ctx context.Context, viewer *Viewer, in domain.SolutionInput) (domain.Solution, error) {
	_, span := middleware.StartSpan(ctx, "sandbox.solutions.create", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int64("task.id", in.Task),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	v := validation{}
	if t, ok := s.tasks[in.Task]; !ok || !s.taskVisible(t, viewer) {
		v.add("task", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", in.Task))
	}
	if strings.TrimSpace(in.Code) == "" {
		v.add("code", "This field may not be blank.")
	}
	if !s.languageExistsLocked(in.Language) {
		v.add("language", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", in.Language))
	}
	if err := v.err(); err != nil {
		return domain.Solution{}, err
	}

	now := s.now().UTC()
	sol := &solutionRow{
		Solution: domain.Solution{
			ID:          s.nextID("solutions"),
			Task:        in.Task,
			Code:        in.Code,
			Language:    in.Language,
			Explanation: in.Explanation,
			User:        viewer.Username,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		OwnerID: viewer.ID,
	}
	s.solutions[sol.ID] = sol
	return s.solutionView(sol, viewer), nil
}

func (s *Service) languageExistsLocked(id int64) bool {
	return slices.ContainsFunc(s.languages, func(l domain.ProgrammingLanguage) bool { return l.ID == id })
}

func (s *Service) ownedSolutionLocked(viewer *Viewer, id int64) (*solutionRow, error) {
	sol, ok := s.solutions[id]
	if !ok || !s.solutionVisible(sol, viewer) {
		return nil, fmt.Errorf("solution %d: %w", id, ErrNotFound)
	}
	if sol.OwnerID != viewer.ID {
		return nil, fmt.Errorf("solution %d: %w", id, ErrForbidden)
	}
	return sol, nil
}

// UpdateSolution applies patch to a solution owned by viewer.
func (s *Service) UpdateSolution(_ context.Context, viewer *Viewer, id int64, patch domain.SolutionPatch) (domain.Solution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sol, err := s.ownedSolutionLocked(viewer, id)
	if err != nil {
		return domain.Solution{}, err
	}
	v := validation{}
	if patch.Code != nil && strings.TrimSpace(*patch.Code) == "" {
		v.add("code", "This field may not be blank.")
	}
	if patch.Language != nil && !s.languageExistsLocked(*patch.Language) {
		v.add("language", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", *patch.Language))
	}
	if err := v.err(); err != nil {
		return domain.Solution{}, err
	}

	if patch.Code != nil {
		sol.Code = *patch.Code
	}
	if patch.Language != nil {
		sol.Language = *patch.Language
	}
	if patch.Explanation != nil {
		sol.Explanation = *patch.Explanation
	}
	sol.UpdatedAt = s.now().UTC()
	return s.solutionView(sol, viewer), nil
}

// PublishSolution toggles visibility of a solution owned by viewer. Making a
// solution public also makes its task public.
func (s *Service) PublishSolution(ctx context.Context, viewer *Viewer, id int64, isPublic bool) (domain.Solution, error) {
	_, span := middleware.StartSpan(ctx, "sandbox.solutions.publish", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int64("solution.id", id),
		attribute.Bool("is_public", isPublic),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	sol, err := s.ownedSolutionLocked(viewer, id)
	if err != nil {
		return domain.Solution{}, err
	}
	now := s.now().UTC()
	sol.IsPublic = isPublic
	sol.UpdatedAt = now
	if isPublic {
		sol.PublishedAt = &now
		if t, ok := s.tasks[sol.Task]; ok && t.Status == domain.TaskPrivate {
			t.Status = domain.TaskPublic
			t.UpdatedAt = now
		}
	} else {
		sol.PublishedAt = nil
	}
	return s.solutionView(sol, viewer), nil
}

// DeleteSolution removes a solution owned by viewer and its reviews.
func (s *Service) DeleteSolution(_ context.Context, viewer *Viewer, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ownedSolutionLocked(viewer, id); err != nil {
		return err
	}
	s.deleteSolutionLocked(id)
	return nil
}

func (s *Service) deleteSolutionLocked(id int64) {
	for rid, r := range s.reviews {
		if r.Solution == id {
			delete(s.reviews, rid)
		}
	}
	delete(s.solutions, id)
}

// ListReviews returns the reviews of a visible solution, oldest first.
func (s *Service) ListReviews(_ context.Context, viewer *Viewer, solutionID int64) ([]domain.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sol, ok := s.solutions[solutionID]
	if !ok || !s.solutionVisible(sol, viewer) {
		return nil, fmt.Errorf("solution %d: %w", solutionID, ErrNotFound)
	}
	out := make([]domain.Review, 0)
	for _, r := range s.reviews {
		if r.Solution == solutionID {
			out = append(out, r.Review)
		}
	}
	slices.SortFunc(out, func(a, b domain.Review) int { return cmpInt(a.ID, b.ID) })
	return out, nil
}

// Review records viewer's vote on a solution. A viewer holds at most one
// review per solution: a second call replaces the type of the first.
// created reports whether a new review row was inserted.
func (s *Service) Review(ctx context.Context, viewer *Viewer, in domain.ReviewInput) (review domain.Review, created bool, err error) {
	_, span := middleware.StartSpan(ctx, "sandbox.reviews.create", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int64("solution.id", in.Solution),
		attribute.Int("review_type", int(in.ReviewType)),
	))
	defer span.End()

	if !in.ReviewType.Valid() {
		return domain.Review{}, false, fieldError("review_type", fmt.Sprintf("\"%d\" is not a valid choice.", in.ReviewType))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sol, ok := s.solutions[in.Solution]
	if !ok || !s.solutionVisible(sol, viewer) {
		return domain.Review{}, false, fieldError("solution", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", in.Solution))
	}
	if sol.OwnerID == viewer.ID {
		return domain.Review{}, false, fieldError("non_field_errors", "You cannot review your own solution.")
	}

	now := s.now().UTC()
	for _, r := range s.reviews {
		if r.Solution == in.Solution && r.UserID == viewer.ID {
			r.ReviewType = in.ReviewType
			r.UpdatedAt = now
			return r.Review, false, nil
		}
	}
	r := &reviewRow{
		Review: domain.Review{
			ID:         s.nextID("reviews"),
			Solution:   in.Solution,
			ReviewType: in.ReviewType,
			AddedBy:    viewer.Username,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		UserID: viewer.ID,
	}
	s.reviews[r.ID] = r
	span.SetAttributes(attribute.Bool("review.created", true))
	return r.Review, true, nil
}

// SetClock replaces the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
