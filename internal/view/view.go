// Package view holds the pure projection functions behind the dashboard
// surfaces: schedule grouping, leaderboard ranking and roster filters.
// Nothing here mutates or touches storage.
package view

import (
	"sort"
	"time"

	"pulseboard/internal/domain"
)

// NoDueDateLabel is the schedule bucket for tasks without a due date.
const NoDueDateLabel = "No due date"

// DueDateGroup is one schedule bucket: a date label and its tasks in
// insertion order.
type DueDateGroup struct {
	Label string        `json:"label"`
	Tasks []domain.Task `json:"tasks"`
}

// GroupTasksByDueDate buckets tasks by their due date string, dates
// ascending, the no-due-date bucket last. Within a bucket the input
// order is kept.
func GroupTasksByDueDate(tasks []domain.Task) []DueDateGroup {
	byLabel := make(map[string][]domain.Task)
	for _, t := range tasks {
		label := t.DueDate
		if label == "" {
			label = NoDueDateLabel
		}
		byLabel[label] = append(byLabel[label], t)
	}
	labels := make([]string, 0, len(byLabel))
	for label := range byLabel {
		if label != NoDueDateLabel {
			labels = append(labels, label)
		}
	}
	// due dates are YYYY-MM-DD so lexical order is date order
	sort.Strings(labels)
	if _, ok := byLabel[NoDueDateLabel]; ok {
		labels = append(labels, NoDueDateLabel)
	}
	groups := make([]DueDateGroup, 0, len(labels))
	for _, label := range labels {
		groups = append(groups, DueDateGroup{Label: label, Tasks: byLabel[label]})
	}
	return groups
}

// RankLeaderboard orders members by points descending. The sort is
// stable so equal scores keep their registry order.
func RankLeaderboard(members []domain.Member) []domain.Member {
	ranked := append([]domain.Member(nil), members...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Points > ranked[j].Points
	})
	return ranked
}

// RankTeams orders teams by total points descending, stable on ties.
func RankTeams(teams []domain.Team) []domain.Team {
	ranked := append([]domain.Team(nil), teams...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalPoints > ranked[j].TotalPoints
	})
	return ranked
}

// FilterMembersByTeam keeps members of one team. An empty filter or the
// "none" sentinel returns everyone.
func FilterMembersByTeam(members []domain.Member, teamID string) []domain.Member {
	if teamID == "" || teamID == domain.NoTeam {
		return members
	}
	var out []domain.Member
	for _, m := range members {
		if m.TeamID != nil && *m.TeamID == teamID {
			out = append(out, m)
		}
	}
	return out
}

// IsOverdue reports whether a task's due date has passed and the task is
// still open. Tasks without a parseable due date are never overdue.
func IsOverdue(t domain.Task, now time.Time) bool {
	if t.DueDate == "" || t.Status == domain.StatusCompleted {
		return false
	}
	due, err := time.Parse("2006-01-02", t.DueDate)
	if err != nil {
		return false
	}
	return due.Before(now)
}
