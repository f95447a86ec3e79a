package v1

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Ordering is the sort order of the task list.
type Ordering string

const (
	OrderCreatedAsc  Ordering = "created_at"
	OrderCreatedDesc Ordering = "-created_at"
	OrderNameAsc     Ordering = "name"
	OrderNameDesc    Ordering = "-name"

	DefaultOrdering = OrderCreatedDesc
)

func (o Ordering) Valid() bool {
	switch o {
	case OrderCreatedAsc, OrderCreatedDesc, OrderNameAsc, OrderNameDesc:
		return true
	}
	return false
}

// CatalogFilters is the filter state of the task catalog. Zero values mean
// "not filtered". Changing anything but the page resets the page to 1.
type CatalogFilters struct {
	Search     string
	Category   int64
	Difficulty int64
	Ordering   Ordering
	Page       int
	MyTasks    bool
	SolvedByMe bool
}

// NewCatalogFilters returns the unfiltered first page.
func NewCatalogFilters() CatalogFilters {
	return CatalogFilters{Ordering: DefaultOrdering, Page: 1}
}

func (f *CatalogFilters) SetSearch(search string) {
	search = strings.TrimSpace(search)
	if search != f.Search {
		f.Search = search
		f.Page = 1
	}
}

func (f *CatalogFilters) SetCategory(id int64) {
	if id != f.Category {
		f.Category = id
		f.Page = 1
	}
}

func (f *CatalogFilters) SetDifficulty(id int64) {
	if id != f.Difficulty {
		f.Difficulty = id
		f.Page = 1
	}
}

func (f *CatalogFilters) SetOrdering(o Ordering) error {
	if !o.Valid() {
		return fmt.Errorf("set ordering %q: %w", o, ErrInvalidOrdering)
	}
	if o != f.Ordering {
		f.Ordering = o
		f.Page = 1
	}
	return nil
}

func (f *CatalogFilters) SetMyTasks(on bool) {
	if on != f.MyTasks {
		f.MyTasks = on
		f.Page = 1
	}
}

func (f *CatalogFilters) SetSolvedByMe(on bool) {
	if on != f.SolvedByMe {
		f.SolvedByMe = on
		f.Page = 1
	}
}

func (f *CatalogFilters) SetPage(page int) error {
	if page < 1 {
		return fmt.Errorf("set page %d: %w", page, ErrInvalidPage)
	}
	f.Page = page
	return nil
}

// Reset restores the unfiltered first page.
func (f *CatalogFilters) Reset() {
	*f = NewCatalogFilters()
}

// Query builds the GET /tasks/ query string. Only active filters are sent;
// the page is always sent. userID is required by MyTasks and SolvedByMe.
func (f CatalogFilters) Query(userID int64) (url.Values, error) {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Category != 0 {
		q.Set("category", strconv.FormatInt(f.Category, 10))
	}
	if f.Difficulty != 0 {
		q.Set("difficulty", strconv.FormatInt(f.Difficulty, 10))
	}
	if f.Ordering != "" && f.Ordering != DefaultOrdering {
		q.Set("ordering", string(f.Ordering))
	}
	if f.MyTasks || f.SolvedByMe {
		if userID == 0 {
			return nil, fmt.Errorf("filter by current user: %w", ErrNotAuthenticated)
		}
		if f.MyTasks {
			q.Set("added_by", strconv.FormatInt(userID, 10))
		}
		if f.SolvedByMe {
			q.Set("solved_by", strconv.FormatInt(userID, 10))
		}
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	q.Set("page", strconv.Itoa(page))
	return q, nil
}

// Encode serializes the filter state for a shareable URL, omitting defaults.
func (f CatalogFilters) Encode() url.Values {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Category != 0 {
		q.Set("category", strconv.FormatInt(f.Category, 10))
	}
	if f.Difficulty != 0 {
		q.Set("difficulty", strconv.FormatInt(f.Difficulty, 10))
	}
	if f.Ordering != "" && f.Ordering != DefaultOrdering {
		q.Set("sort", string(f.Ordering))
	}
	if f.Page > 1 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.MyTasks {
		q.Set("my_tasks", "true")
	}
	if f.SolvedByMe {
		q.Set("solved_by_me", "true")
	}
	return q
}

// ParseCatalogFilters reads the state written by Encode. Malformed values
// fall back to their defaults.
func ParseCatalogFilters(q url.Values) CatalogFilters {
	f := NewCatalogFilters()
	f.Search = strings.TrimSpace(q.Get("search"))
	f.Category = positiveInt(q.Get("category"))
	f.Difficulty = positiveInt(q.Get("difficulty"))
	if o := Ordering(q.Get("sort")); o.Valid() {
		f.Ordering = o
	}
	if p := positiveInt(q.Get("page")); p > 0 {
		f.Page = int(p)
	}
	f.MyTasks = q.Get("my_tasks") == "true"
	f.SolvedByMe = q.Get("solved_by_me") == "true"
	return f
}

func positiveInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 1 {
		return 0
	}
	return n
}

// SolutionFilters narrows GET /solutions/.
type SolutionFilters struct {
	Task     int64
	IsPublic *bool
	Language int64
	User     int64
	Page     int
}

func (f SolutionFilters) Query() url.Values {
	q := url.Values{}
	if f.Task != 0 {
		q.Set("task", strconv.FormatInt(f.Task, 10))
	}
	if f.IsPublic != nil {
		q.Set("is_public", strconv.FormatBool(*f.IsPublic))
	}
	if f.Language != 0 {
		q.Set("language", strconv.FormatInt(f.Language, 10))
	}
	if f.User != 0 {
		q.Set("user", strconv.FormatInt(f.User, 10))
	}
	if f.Page > 1 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	return q
}

// cacheKey returns SolutionsKey for the default list of a task so that
// optimistic mutations see it.
func (f SolutionFilters) cacheKey() string {
	if f.Task != 0 && f.IsPublic == nil && f.Language == 0 && f.User == 0 && f.Page <= 1 {
		return string(SolutionsKey(f.Task))
	}
	q := f.Query()
	if f.Task != 0 {
		q.Del("task")
		return solutionPagePrefix(f.Task) + q.Encode()
	}
	return "solutions?" + q.Encode()
}
