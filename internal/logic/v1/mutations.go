package v1

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/codeyard/internal/client"
	"github.com/duynhne/codeyard/internal/core/cache"
	"github.com/duynhne/codeyard/internal/core/domain"
	"github.com/duynhne/codeyard/internal/core/session"
	"github.com/duynhne/codeyard/internal/logger"
	"github.com/duynhne/codeyard/middleware"
)

// MutationKind tags a PendingMutation.
type MutationKind string

const (
	MutationReview  MutationKind = "review"
	MutationPublish MutationKind = "publish"
	MutationDelete  MutationKind = "delete"
)

// Delta is the change an optimistic mutation applied.
type Delta struct {
	ReviewType *domain.ReviewType
	IsPublic   *bool
	Removed    bool
}

// PendingMutation records an optimistic write until the server answers.
// Rolling back only needs the record itself.
type PendingMutation struct {
	Kind       MutationKind
	TaskID     int64
	SolutionID int64
	Snapshot   cache.Snapshot
	Delta      Delta
	StartedAt  time.Time
}

// Rollback restores every snapshotted key verbatim.
func (p PendingMutation) Rollback(c *cache.Cache) {
	c.Restore(p.Snapshot)
}

// SolutionMutator applies review, publish and delete optimistically: the
// cache shows the expected result before the request is sent and is rolled
// back if the request fails. Mutations of the same solution run one at a
// time.
type SolutionMutator struct {
	api      API
	cache    *cache.Cache
	session  *session.Store
	notifier Notifier
	messages client.Messages
	metrics  *Metrics
	now      func() time.Time

	locksMu sync.Mutex
	locks   map[int64]chan struct{}
}

// MutatorOption customizes a SolutionMutator.
type MutatorOption func(*SolutionMutator)

func WithNotifier(n Notifier) MutatorOption {
	return func(m *SolutionMutator) { m.notifier = n }
}

func WithMessages(msgs client.Messages) MutatorOption {
	return func(m *SolutionMutator) { m.messages = msgs }
}

func WithMutationMetrics(metrics *Metrics) MutatorOption {
	return func(m *SolutionMutator) { m.metrics = metrics }
}

// NewSolutionMutator creates a mutator writing to c.
func NewSolutionMutator(api API, c *cache.Cache, store *session.Store, opts ...MutatorOption) *SolutionMutator {
	m := &SolutionMutator{
		api:      api,
		cache:    c,
		session:  store,
		notifier: LogNotifier{},
		messages: DefaultMessages,
		now:      time.Now,
		locks:    make(map[int64]chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = DefaultMetrics()
	}
	return m
}

// Review casts or changes the viewer's vote on a solution of task taskID.
func (m *SolutionMutator) Review(ctx context.Context, taskID, solutionID int64, rt domain.ReviewType) (domain.Review, error) {
	ctx, span := middleware.StartSpan(ctx, "mutation.review", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int64("solution.id", solutionID),
		attribute.String("review.type", rt.String()),
	))
	defer span.End()

	if !rt.Valid() {
		return domain.Review{}, fmt.Errorf("review solution %d: %w", solutionID, ErrInvalidReviewType)
	}
	if !m.session.Authenticated() {
		return domain.Review{}, fmt.Errorf("review solution %d: %w", solutionID, ErrNotAuthenticated)
	}
	viewer, known := m.session.User()

	release, err := m.acquire(ctx, solutionID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("review solution %d: %w", solutionID, err)
	}
	defer release()

	if sol, ok := cache.GetAs[domain.Solution](m.cache, SolutionKey(solutionID)); ok && known && !CanReview(sol, &viewer) {
		return domain.Review{}, fmt.Errorf("review solution %d: %w", solutionID, ErrOwnSolution)
	}

	pending, err := m.begin(ctx, MutationReview, taskID, solutionID, Delta{ReviewType: &rt},
		SolutionKey(solutionID), SolutionsKey(taskID), ReviewsKey(solutionID))
	if err != nil {
		return domain.Review{}, fmt.Errorf("review solution %d: %w", solutionID, err)
	}

	cache.UpdateAs(m.cache, SolutionKey(solutionID), func(s domain.Solution) domain.Solution {
		return ApplyReview(s, rt)
	})
	cache.UpdateAs(m.cache, SolutionsKey(taskID), func(p domain.Page[domain.Solution]) domain.Page[domain.Solution] {
		return ApplyReviewToPage(p, solutionID, rt)
	})
	if known {
		cache.UpdateAs(m.cache, ReviewsKey(solutionID), func(rs []domain.Review) []domain.Review {
			return UpsertReview(rs, solutionID, viewer.Username, rt, pending.StartedAt)
		})
	}

	var review domain.Review
	err = m.api.Post(ctx, pathReviews, domain.ReviewInput{Solution: solutionID, ReviewType: rt}, &review)
	if err != nil {
		span.RecordError(err)
		m.fail(ctx, pending, err)
		return domain.Review{}, fmt.Errorf("review solution %d: %w", solutionID, err)
	}

	cache.UpdateAs(m.cache, SolutionKey(solutionID), func(s domain.Solution) domain.Solution {
		s.UserReview = &domain.UserReview{ID: review.ID, ReviewType: review.ReviewType}
		return s
	})
	cache.UpdateAs(m.cache, ReviewsKey(solutionID), func(rs []domain.Review) []domain.Review {
		return ReconcileReview(rs, review)
	})
	m.commit(ctx, pending, "review.saved")
	return review, nil
}

// Publish makes a solution public or private.
func (m *SolutionMutator) Publish(ctx context.Context, taskID, solutionID int64, isPublic bool) (domain.Solution, error) {
	ctx, span := middleware.StartSpan(ctx, "mutation.publish", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int64("solution.id", solutionID),
		attribute.Bool("solution.is_public", isPublic),
	))
	defer span.End()

	if !m.session.Authenticated() {
		return domain.Solution{}, fmt.Errorf("publish solution %d: %w", solutionID, ErrNotAuthenticated)
	}

	release, err := m.acquire(ctx, solutionID)
	if err != nil {
		return domain.Solution{}, fmt.Errorf("publish solution %d: %w", solutionID, err)
	}
	defer release()

	pending, err := m.begin(ctx, MutationPublish, taskID, solutionID, Delta{IsPublic: &isPublic},
		SolutionKey(solutionID), SolutionsKey(taskID))
	if err != nil {
		return domain.Solution{}, fmt.Errorf("publish solution %d: %w", solutionID, err)
	}

	cache.UpdateAs(m.cache, SolutionKey(solutionID), func(s domain.Solution) domain.Solution {
		return ApplyPublish(s, isPublic, pending.StartedAt)
	})
	cache.UpdateAs(m.cache, SolutionsKey(taskID), func(p domain.Page[domain.Solution]) domain.Page[domain.Solution] {
		return ApplyPublishToPage(p, solutionID, isPublic, pending.StartedAt)
	})

	var sol domain.Solution
	err = m.api.Post(ctx, publishPath(solutionID), domain.PublishRequest{IsPublic: isPublic}, &sol)
	if err != nil {
		span.RecordError(err)
		m.fail(ctx, pending, err)
		return domain.Solution{}, fmt.Errorf("publish solution %d: %w", solutionID, err)
	}

	if sol.ID == solutionID {
		m.cache.Set(SolutionKey(solutionID), sol)
		cache.UpdateAs(m.cache, SolutionsKey(taskID), func(p domain.Page[domain.Solution]) domain.Page[domain.Solution] {
			return ReplaceSolution(p, sol)
		})
	}
	key := "solution.unpublished"
	if isPublic {
		key = "solution.published"
	}
	m.commit(ctx, pending, key)
	return sol, nil
}

// Delete removes a solution.
func (m *SolutionMutator) Delete(ctx context.Context, taskID, solutionID int64) error {
	ctx, span := middleware.StartSpan(ctx, "mutation.delete", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int64("solution.id", solutionID),
	))
	defer span.End()

	if !m.session.Authenticated() {
		return fmt.Errorf("delete solution %d: %w", solutionID, ErrNotAuthenticated)
	}

	release, err := m.acquire(ctx, solutionID)
	if err != nil {
		return fmt.Errorf("delete solution %d: %w", solutionID, err)
	}
	defer release()

	pending, err := m.begin(ctx, MutationDelete, taskID, solutionID, Delta{Removed: true},
		SolutionsKey(taskID), SolutionKey(solutionID))
	if err != nil {
		return fmt.Errorf("delete solution %d: %w", solutionID, err)
	}

	cache.UpdateAs(m.cache, SolutionsKey(taskID), func(p domain.Page[domain.Solution]) domain.Page[domain.Solution] {
		next, _ := RemoveSolution(p, solutionID)
		return next
	})

	if err := m.api.Delete(ctx, solutionPath(solutionID)); err != nil {
		span.RecordError(err)
		m.fail(ctx, pending, err)
		return fmt.Errorf("delete solution %d: %w", solutionID, err)
	}

	m.commit(ctx, pending, "solution.deleted")
	return nil
}

// acquire serializes mutations of one solution.
func (m *SolutionMutator) acquire(ctx context.Context, solutionID int64) (func(), error) {
	m.locksMu.Lock()
	sem, ok := m.locks[solutionID]
	if !ok {
		sem = make(chan struct{}, 1)
		m.locks[solutionID] = sem
	}
	m.locksMu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// begin cancels in-flight reads of keys and snapshots them.
func (m *SolutionMutator) begin(ctx context.Context, kind MutationKind, taskID, solutionID int64, delta Delta, keys ...cache.Key) (PendingMutation, error) {
	if err := m.cache.Cancel(ctx, keys...); err != nil {
		return PendingMutation{}, fmt.Errorf("cancel reads: %w", err)
	}
	return PendingMutation{
		Kind:       kind,
		TaskID:     taskID,
		SolutionID: solutionID,
		Snapshot:   m.cache.Snapshot(keys...),
		Delta:      delta,
		StartedAt:  m.now(),
	}, nil
}

func (m *SolutionMutator) fail(ctx context.Context, p PendingMutation, err error) {
	p.Rollback(m.cache)
	m.metrics.Mutations.WithLabelValues(string(p.Kind), "rolled_back").Inc()
	logger.FromContext(ctx).Warn().
		Err(err).
		Str("mutation", string(p.Kind)).
		Int64("solution_id", p.SolutionID).
		Str("error_kind", string(client.Classify(err))).
		Msg("Optimistic mutation rolled back")
	m.notifier.Error(ctx, m.messages.Text(err))
}

func (m *SolutionMutator) commit(ctx context.Context, p PendingMutation, messageKey string) {
	keys := make([]cache.Key, 0, len(p.Snapshot))
	for key := range p.Snapshot {
		keys = append(keys, key)
	}
	m.cache.MarkStale(keys...)
	if p.Kind != MutationReview {
		invalidateSolutionLists(m.cache, p.TaskID)
	}
	m.metrics.Mutations.WithLabelValues(string(p.Kind), "committed").Inc()
	logger.FromContext(ctx).Debug().
		Str("mutation", string(p.Kind)).
		Int64("solution_id", p.SolutionID).
		Dur("duration", m.now().Sub(p.StartedAt)).
		Msg("Optimistic mutation committed")
	m.notifier.Success(ctx, m.messages.Lookup(messageKey))
}
