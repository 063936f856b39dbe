package view_test

import (
	"testing"
	"time"

	"pulseboard/internal/domain"
	"pulseboard/internal/view"
)

func strPtr(s string) *string { return &s }

func TestGroupTasksByDueDate(t *testing.T) {
	tasks := []domain.Task{
		{ID: "1", DueDate: "2024-03-05"},
		{ID: "2", DueDate: ""},
		{ID: "3", DueDate: "2024-03-01"},
		{ID: "4", DueDate: "2024-03-05"},
	}
	groups := view.GroupTasksByDueDate(tasks)
	if len(groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(groups))
	}
	if groups[0].Label != "2024-03-01" || groups[1].Label != "2024-03-05" {
		t.Fatalf("dates out of order: %s, %s", groups[0].Label, groups[1].Label)
	}
	if groups[2].Label != view.NoDueDateLabel {
		t.Fatalf("no-due-date bucket must come last, got %s", groups[2].Label)
	}
	// insertion order kept inside a bucket
	if groups[1].Tasks[0].ID != "1" || groups[1].Tasks[1].ID != "4" {
		t.Fatalf("bucket order changed")
	}
}

func TestGroupTasksByDueDateEmpty(t *testing.T) {
	if groups := view.GroupTasksByDueDate(nil); len(groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}

func TestRankLeaderboardStable(t *testing.T) {
	members := []domain.Member{
		{ID: "a", Points: 10},
		{ID: "b", Points: 30},
		{ID: "c", Points: 10},
		{ID: "d", Points: 20},
	}
	ranked := view.RankLeaderboard(members)
	want := []string{"b", "d", "a", "c"}
	for i, id := range want {
		if ranked[i].ID != id {
			t.Fatalf("rank %d = %s, want %s", i, ranked[i].ID, id)
		}
	}
	// input untouched
	if members[0].ID != "a" {
		t.Fatalf("input mutated")
	}
}

func TestRankTeamsStable(t *testing.T) {
	teams := []domain.Team{
		{ID: "x", TotalPoints: 5},
		{ID: "y", TotalPoints: 50},
		{ID: "z", TotalPoints: 5},
	}
	ranked := view.RankTeams(teams)
	want := []string{"y", "x", "z"}
	for i, id := range want {
		if ranked[i].ID != id {
			t.Fatalf("rank %d = %s, want %s", i, ranked[i].ID, id)
		}
	}
}

func TestFilterMembersByTeam(t *testing.T) {
	members := []domain.Member{
		{ID: "a", TeamID: strPtr("t1")},
		{ID: "b"},
		{ID: "c", TeamID: strPtr("t2")},
	}
	if got := view.FilterMembersByTeam(members, "t1"); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("team filter wrong: %+v", got)
	}
	if got := view.FilterMembersByTeam(members, domain.NoTeam); len(got) != 3 {
		t.Fatalf("none sentinel should keep everyone, got %d", len(got))
	}
	if got := view.FilterMembersByTeam(members, ""); len(got) != 3 {
		t.Fatalf("empty filter should keep everyone, got %d", len(got))
	}
	if got := view.FilterMembersByTeam(members, "ghost"); len(got) != 0 {
		t.Fatalf("unknown team should match nobody, got %d", len(got))
	}
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		task domain.Task
		want bool
	}{
		{"past open", domain.Task{DueDate: "2024-03-01", Status: domain.StatusTodo}, true},
		{"past completed", domain.Task{DueDate: "2024-03-01", Status: domain.StatusCompleted}, false},
		{"future", domain.Task{DueDate: "2024-03-20", Status: domain.StatusTodo}, false},
		{"no due date", domain.Task{Status: domain.StatusTodo}, false},
		{"unparseable", domain.Task{DueDate: "soon", Status: domain.StatusTodo}, false},
	}
	for _, tc := range cases {
		if got := view.IsOverdue(tc.task, now); got != tc.want {
			t.Fatalf("%s: overdue = %v, want %v", tc.name, got, tc.want)
		}
	}
}
