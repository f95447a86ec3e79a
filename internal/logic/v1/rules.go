package v1

import (
	"slices"
	"time"

	"github.com/duynhne/codeyard/internal/core/domain"
)

// The functions below compute optimistic successors of cached values. They
// never modify their arguments: cached values are shared with snapshots.

// ApplyReview sets the viewer's vote on s to rt. A previous vote of the other
// type is replaced; repeating the same vote changes nothing.
func ApplyReview(s domain.Solution, rt domain.ReviewType) domain.Solution {
	if s.UserReview != nil {
		if s.UserReview.ReviewType == rt {
			return s
		}
		s = adjustCount(s, s.UserReview.ReviewType, -1)
		s.UserReview = &domain.UserReview{ID: s.UserReview.ID, ReviewType: rt}
	} else {
		s.UserReview = &domain.UserReview{ReviewType: rt}
	}
	return adjustCount(s, rt, 1)
}

func adjustCount(s domain.Solution, rt domain.ReviewType, delta int) domain.Solution {
	switch rt {
	case domain.ReviewPositive:
		s.PositiveReviewsCount = max(s.PositiveReviewsCount+delta, 0)
	case domain.ReviewNegative:
		s.NegativeReviewsCount = max(s.NegativeReviewsCount+delta, 0)
	}
	return s
}

// ApplyReviewToPage applies ApplyReview to the solution id inside page.
func ApplyReviewToPage(page domain.Page[domain.Solution], id int64, rt domain.ReviewType) domain.Page[domain.Solution] {
	return mapSolution(page, id, func(s domain.Solution) domain.Solution {
		return ApplyReview(s, rt)
	})
}

// UpsertReview replaces the review written by username or appends a
// placeholder (ID 0) until the server assigns one.
func UpsertReview(reviews []domain.Review, solutionID int64, username string, rt domain.ReviewType, now time.Time) []domain.Review {
	out := slices.Clone(reviews)
	for i := range out {
		if out[i].AddedBy == username {
			out[i].ReviewType = rt
			out[i].UpdatedAt = now
			return out
		}
	}
	return append(out, domain.Review{
		Solution:   solutionID,
		ReviewType: rt,
		AddedBy:    username,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

// ReconcileReview installs the server's copy of the viewer's review.
func ReconcileReview(reviews []domain.Review, review domain.Review) []domain.Review {
	out := slices.Clone(reviews)
	for i := range out {
		if out[i].AddedBy == review.AddedBy || (review.ID != 0 && out[i].ID == review.ID) {
			out[i] = review
			return out
		}
	}
	return append(out, review)
}

// ApplyPublish sets the visibility of s. Publishing stamps published_at with
// now, unpublishing clears it.
func ApplyPublish(s domain.Solution, isPublic bool, now time.Time) domain.Solution {
	s.IsPublic = isPublic
	if isPublic {
		t := now
		s.PublishedAt = &t
	} else {
		s.PublishedAt = nil
	}
	return s
}

func ApplyPublishToPage(page domain.Page[domain.Solution], id int64, isPublic bool, now time.Time) domain.Page[domain.Solution] {
	return mapSolution(page, id, func(s domain.Solution) domain.Solution {
		return ApplyPublish(s, isPublic, now)
	})
}

// ReplaceSolution swaps the entry id of page for s.
func ReplaceSolution(page domain.Page[domain.Solution], s domain.Solution) domain.Page[domain.Solution] {
	return mapSolution(page, s.ID, func(domain.Solution) domain.Solution { return s })
}

// RemoveSolution drops solution id from page and decrements the total count.
func RemoveSolution(page domain.Page[domain.Solution], id int64) (domain.Page[domain.Solution], bool) {
	i := slices.IndexFunc(page.Results, func(s domain.Solution) bool { return s.ID == id })
	if i < 0 {
		return page, false
	}
	page.Results = slices.Delete(slices.Clone(page.Results), i, i+1)
	page.Count = max(page.Count-1, 0)
	return page, true
}

// CanReview reports whether viewer may review s. Owners cannot review their
// own solutions; the server enforces the same rule.
func CanReview(s domain.Solution, viewer *domain.User) bool {
	return viewer != nil && viewer.Username != "" && s.User != viewer.Username
}

func mapSolution(page domain.Page[domain.Solution], id int64, fn func(domain.Solution) domain.Solution) domain.Page[domain.Solution] {
	i := slices.IndexFunc(page.Results, func(s domain.Solution) bool { return s.ID == id })
	if i < 0 {
		return page
	}
	page.Results = slices.Clone(page.Results)
	page.Results[i] = fn(page.Results[i])
	return page
}
