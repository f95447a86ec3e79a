package domain

import "time"

// TaskStatus is the visibility of a programming task.
type TaskStatus string

const (
	TaskPrivate TaskStatus = "PRIVATE"
	TaskPublic  TaskStatus = "PUBLIC"
	TaskHidden  TaskStatus = "HIDDEN"
)

// ReviewType is the like/dislike signal of a review.
type ReviewType int

const (
	ReviewNegative ReviewType = 0
	ReviewPositive ReviewType = 1
)

func (t ReviewType) Valid() bool {
	return t == ReviewNegative || t == ReviewPositive
}

func (t ReviewType) String() string {
	switch t {
	case ReviewPositive:
		return "positive"
	case ReviewNegative:
		return "negative"
	default:
		return "unknown"
	}
}

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Difficulty struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ProgrammingLanguage struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Task is a programming task in the catalog.
type Task struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Resource    string     `json:"resource"`
	Category    int64      `json:"category"`
	Difficulty  int64      `json:"difficulty"`
	AddedBy     string     `json:"added_by"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskInput is the writable part of a task (create and full update).
type TaskInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Resource    string `json:"resource,omitempty"`
	Category    int64  `json:"category"`
	Difficulty  int64  `json:"difficulty"`
}

// TaskPatch is a partial task update; nil fields are left untouched.
type TaskPatch struct {
	Name        *string     `json:"name,omitempty"`
	Description *string     `json:"description,omitempty"`
	Resource    *string     `json:"resource,omitempty"`
	Category    *int64      `json:"category,omitempty"`
	Difficulty  *int64      `json:"difficulty,omitempty"`
	Status      *TaskStatus `json:"status,omitempty"`
}

// UserReview is the current viewer's own review embedded in a solution.
type UserReview struct {
	ID         int64      `json:"id"`
	ReviewType ReviewType `json:"review_type"`
}

// Solution belongs to exactly one task.
type Solution struct {
	ID                   int64       `json:"id"`
	Task                 int64       `json:"task"`
	Code                 string      `json:"code"`
	Language             int64       `json:"language"`
	LanguageName         string      `json:"language_name,omitempty"`
	Explanation          string      `json:"explanation"`
	User                 string      `json:"user"`
	IsPublic             bool        `json:"is_public"`
	PublishedAt          *time.Time  `json:"published_at"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
	PositiveReviewsCount int         `json:"positive_reviews_count"`
	NegativeReviewsCount int         `json:"negative_reviews_count"`
	UserReview           *UserReview `json:"user_review"`
}

type SolutionInput struct {
	Task        int64  `json:"task"`
	Code        string `json:"code"`
	Language    int64  `json:"language"`
	Explanation string `json:"explanation"`
}

type SolutionPatch struct {
	Code        *string `json:"code,omitempty"`
	Language    *int64  `json:"language,omitempty"`
	Explanation *string `json:"explanation,omitempty"`
}

// PublishRequest is the body of POST /solutions/:id/publish/.
type PublishRequest struct {
	IsPublic bool `json:"is_public"`
}

// Review is a like/dislike tied to one solution and one reviewing user.
type Review struct {
	ID         int64      `json:"id"`
	Solution   int64      `json:"solution"`
	ReviewType ReviewType `json:"review_type"`
	AddedBy    string     `json:"added_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type ReviewInput struct {
	Solution   int64      `json:"solution"`
	ReviewType ReviewType `json:"review_type"`
}

// Page is the uniform pagination envelope of list endpoints.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}
