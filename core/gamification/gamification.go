package gamification

import (
	"math"
	"sort"
	"time"
)

const xpPerLevel = 1000

// Badge codes
const (
	BadgeFirstTest    = "FIRST_TEST"
	BadgePerfectScore = "PERFECT_SCORE"
	BadgeFivePassed   = "FIVE_PASSED"
	BadgeWeekStreak   = "WEEK_STREAK"
)

var badges = map[string]Badge{
	BadgeFirstTest:    {Code: BadgeFirstTest, Name: "First steps", Description: "Submitted a first test"},
	BadgePerfectScore: {Code: BadgePerfectScore, Name: "Perfectionist", Description: "Scored 100% on a test"},
	BadgeFivePassed:   {Code: BadgeFivePassed, Name: "On a roll", Description: "Passed five different tests"},
	BadgeWeekStreak:   {Code: BadgeWeekStreak, Name: "Week streak", Description: "Took tests seven days in a row"},
}

type (
	// TestStat aggregates the submitted attempts of a student on one test.
	TestStat struct {
		StudentID   string
		StudentName string
		TestID      string
		Attempts    int
		BestScore   int
		BestPercent float64
		Passed      bool
	}

	Badge struct {
		Code        string `json:"code"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	Profile struct {
		UserID        string     `json:"user_id"`
		Name          string     `json:"name"`
		Experience    int        `json:"experience"`
		Level         int        `json:"level"`
		NextLevelAt   int        `json:"next_level_at"`
		Attempts      int        `json:"attempts"`
		TestsTaken    int        `json:"tests_taken"`
		TestsPassed   int        `json:"tests_passed"`
		AverageScore  float64    `json:"average_score"` // mean of best percents
		CurrentStreak int        `json:"current_streak"`
		LongestStreak int        `json:"longest_streak"`
		LastActivity  *time.Time `json:"last_activity,omitempty"`
		Badges        []Badge    `json:"badges"`
	}

	LeaderboardEntry struct {
		Rank        int    `json:"rank"`
		UserID      string `json:"user_id"`
		Name        string `json:"name"`
		Experience  int    `json:"experience"`
		Level       int    `json:"level"`
		TestsPassed int    `json:"tests_passed"`
	}

	// Rules holds the experience rewards.
	Rules struct {
		XPPerPoint int
		PassBonus  int
	}
)

// Experience sums, over tests, the best score times XPPerPoint plus PassBonus for passed tests.
func (r Rules) Experience(stats []TestStat) int {
	var xp int
	for _, s := range stats {
		xp += s.BestScore * r.XPPerPoint
		if s.Passed {
			xp += r.PassBonus
		}
	}
	return xp
}

func Level(xp int) int {
	if xp <= 0 {
		return 0
	}
	return xp / xpPerLevel
}

// Streaks returns the current and longest runs of consecutive UTC days holding a submission.
// The current streak only counts if its last day is today or yesterday.
func Streaks(submissions []time.Time, today time.Time) (current, longest int) {
	if len(submissions) == 0 {
		return 0, 0
	}

	seen := make(map[time.Time]bool, len(submissions))
	days := make([]time.Time, 0, len(submissions))
	for _, ts := range submissions {
		day := truncateDay(ts)
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	run := 1
	longest = 1
	for i := 1; i < len(days); i++ {
		if days[i].Sub(days[i-1]) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}

	last := days[len(days)-1]
	if gap := truncateDay(today).Sub(last); gap <= 24*time.Hour {
		current = run
	}
	return current, longest
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BuildProfile derives the gamification profile of a student from their test stats and submission times.
func (r Rules) BuildProfile(userID, name string, stats []TestStat, submissions []time.Time, now time.Time) Profile {
	p := Profile{
		UserID:     userID,
		Name:       name,
		Experience: r.Experience(stats),
		TestsTaken: len(stats),
		Badges:     []Badge{},
	}
	p.Level = Level(p.Experience)
	p.NextLevelAt = (p.Level + 1) * xpPerLevel

	var percents float64
	perfect := false
	for _, s := range stats {
		p.Attempts += s.Attempts
		percents += s.BestPercent
		if s.Passed {
			p.TestsPassed++
		}
		if s.BestPercent >= 100 {
			perfect = true
		}
	}
	if len(stats) > 0 {
		p.AverageScore = math.Round(percents*100/float64(len(stats))) / 100
	}

	p.CurrentStreak, p.LongestStreak = Streaks(submissions, now)
	for _, ts := range submissions {
		if p.LastActivity == nil || ts.After(*p.LastActivity) {
			last := ts.UTC()
			p.LastActivity = &last
		}
	}

	if p.Attempts > 0 {
		p.Badges = append(p.Badges, badges[BadgeFirstTest])
	}
	if perfect {
		p.Badges = append(p.Badges, badges[BadgePerfectScore])
	}
	if p.TestsPassed >= 5 {
		p.Badges = append(p.Badges, badges[BadgeFivePassed])
	}
	if p.LongestStreak >= 7 {
		p.Badges = append(p.Badges, badges[BadgeWeekStreak])
	}
	return p
}

// BuildLeaderboard ranks students by experience (desc), then name.
// limit <= 0 means no limit.
func (r Rules) BuildLeaderboard(stats []TestStat, limit int) []LeaderboardEntry {
	byStudent := make(map[string]*LeaderboardEntry)
	order := make([]string, 0)
	for _, s := range stats {
		e, ok := byStudent[s.StudentID]
		if !ok {
			e = &LeaderboardEntry{UserID: s.StudentID, Name: s.StudentName}
			byStudent[s.StudentID] = e
			order = append(order, s.StudentID)
		}
		e.Experience += r.Experience([]TestStat{s})
		if s.Passed {
			e.TestsPassed++
		}
	}

	entries := make([]LeaderboardEntry, 0, len(order))
	for _, id := range order {
		e := byStudent[id]
		e.Level = Level(e.Experience)
		entries = append(entries, *e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Experience != entries[j].Experience {
			return entries[i].Experience > entries[j].Experience
		}
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].UserID < entries[j].UserID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
