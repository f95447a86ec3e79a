package sandbox

import (
	"fmt"
	"time"

	"github.com/duynhne/codeyard/config"
	"github.com/duynhne/codeyard/internal/core/domain"
)

// SeedPassword is the password of every seeded account.
const SeedPassword = "codeyard-demo"

// SeedUsers lists the seeded accounts in ID order (ann is 1).
var SeedUsers = []string{"ann", "bob", "cid", "dee", "eve"}

var seedEpoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type seedTask struct {
	name       string
	category   int64
	difficulty int64
	owner      int64
	status     domain.TaskStatus
}

var seedTasks = []seedTask{
	{"Two Sum", 1, 1, 1, domain.TaskPublic},
	{"Valid Anagram", 2, 1, 1, domain.TaskPublic},
	{"Rotting Oranges", 3, 2, 2, domain.TaskPublic},
	{"Longest Increasing Subsequence", 4, 2, 3, domain.TaskPublic},
	{"Merge Intervals", 1, 2, 4, domain.TaskPublic},
	{"Word Ladder", 3, 3, 5, domain.TaskPublic},
	{"Edit Distance", 4, 3, 1, domain.TaskPublic},
	{"Product of Array Except Self", 1, 2, 2, domain.TaskPublic},
	{"Longest Palindromic Substring", 2, 2, 3, domain.TaskPublic},
	{"Course Schedule", 3, 2, 4, domain.TaskPublic},
	{"Coin Change", 4, 2, 5, domain.TaskHidden},
	{"Trapping Rain Water", 1, 3, 2, domain.TaskPrivate},
}

type seedSolution struct {
	task     int64
	owner    int64
	language int64
	public   bool
	code     string
}

var seedSolutions = []seedSolution{
	{1, 2, 1, true, "def two_sum(nums, target):\n    seen = {}\n    for i, n in enumerate(nums):\n        if target - n in seen:\n            return [seen[target - n], i]\n        seen[n] = i\n"},
	{1, 3, 2, true, "func twoSum(nums []int, target int) []int {\n\tseen := map[int]int{}\n\tfor i, n := range nums {\n\t\tif j, ok := seen[target-n]; ok {\n\t\t\treturn []int{j, i}\n\t\t}\n\t\tseen[n] = i\n\t}\n\treturn nil\n}\n"},
	{2, 4, 3, true, "const isAnagram = (s, t) => [...s].sort().join('') === [...t].sort().join('');\n"},
	{3, 2, 1, false, "from collections import deque\n"},
	{3, 1, 1, true, "def oranges_rotting(grid):\n    # multi-source BFS from every rotten orange\n    ...\n"},
	{5, 5, 2, true, "sort.Slice(iv, func(i, j int) bool { return iv[i][0] < iv[j][0] })\n"},
}

type seedReview struct {
	solution int64
	user     int64
	kind     domain.ReviewType
}

var seedReviews = []seedReview{
	{5, 3, domain.ReviewPositive},
	{5, 4, domain.ReviewPositive},
	{5, 5, domain.ReviewNegative},
	{1, 1, domain.ReviewPositive},
	{1, 5, domain.ReviewNegative},
}

// Seed loads reference data, demo accounts, tasks, solutions and reviews.
// It must be called on an empty service.
func (s *Service) Seed() error {
	for _, name := range SeedUsers {
		if _, err := s.createUser(name, name+"@codeyard.dev", SeedPassword); err != nil {
			return fmt.Errorf("seed user %s: %w", name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.categories = []domain.Category{
		{ID: 1, Name: "Arrays", Description: "Index juggling, two pointers and prefix sums."},
		{ID: 2, Name: "Strings", Description: "Parsing, matching and counting characters."},
		{ID: 3, Name: "Graphs", Description: "Traversals, shortest paths and topological order."},
		{ID: 4, Name: "Dynamic Programming", Description: "Overlapping subproblems."},
	}
	s.difficulties = []domain.Difficulty{{ID: 1, Name: "Easy"}, {ID: 2, Name: "Medium"}, {ID: 3, Name: "Hard"}}
	s.languages = []domain.ProgrammingLanguage{{ID: 1, Name: "Python"}, {ID: 2, Name: "Go"}, {ID: 3, Name: "JavaScript"}}

	for i, st := range seedTasks {
		at := seedEpoch.Add(time.Duration(i) * time.Hour)
		t := &taskRow{
			Task: domain.Task{
				ID:          s.nextID("tasks"),
				Name:        st.name,
				Description: "Solve " + st.name + ".",
				Category:    st.category,
				Difficulty:  st.difficulty,
				AddedBy:     s.users[st.owner].Username,
				Status:      st.status,
				CreatedAt:   at,
				UpdatedAt:   at,
			},
			OwnerID: st.owner,
		}
		s.tasks[t.ID] = t
	}

	for i, ss := range seedSolutions {
		at := seedEpoch.Add(24*time.Hour + time.Duration(i)*time.Hour)
		sol := &solutionRow{
			Solution: domain.Solution{
				ID:        s.nextID("solutions"),
				Task:      ss.task,
				Code:      ss.code,
				Language:  ss.language,
				User:      s.users[ss.owner].Username,
				IsPublic:  ss.public,
				CreatedAt: at,
				UpdatedAt: at,
			},
			OwnerID: ss.owner,
		}
		if ss.public {
			published := at
			sol.PublishedAt = &published
		}
		s.solutions[sol.ID] = sol
	}

	for i, sr := range seedReviews {
		at := seedEpoch.Add(48*time.Hour + time.Duration(i)*time.Minute)
		r := &reviewRow{
			Review: domain.Review{
				ID:         s.nextID("reviews"),
				Solution:   sr.solution,
				ReviewType: sr.kind,
				AddedBy:    s.users[sr.user].Username,
				CreatedAt:  at,
				UpdatedAt:  at,
			},
			UserID: sr.user,
		}
		s.reviews[r.ID] = r
	}
	return nil
}

// NewFromConfig creates a seeded sandbox from the sandbox section of cfg.
func NewFromConfig(cfg *config.Config) (*Service, error) {
	svc := New(Options{
		JWTSecret:  cfg.Sandbox.JWTSecret,
		AccessTTL:  cfg.GetAccessTTLDuration(),
		RefreshTTL: cfg.GetRefreshTTLDuration(),
	})
	if err := svc.Seed(); err != nil {
		return nil, err
	}
	return svc, nil
}
