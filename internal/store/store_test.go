package store_test

import (
	"testing"

	"pulseboard/internal/domain"
	"pulseboard/internal/store"
)

func TestAccessorsCopyOut(t *testing.T) {
	s := store.New()
	s.PutTask(domain.Task{
		ID:       "t1",
		Title:    "original",
		Subtasks: []domain.SubTask{{ID: "s1", Title: "step"}},
	})

	got, ok := s.Task("t1")
	if !ok {
		t.Fatal("task missing")
	}
	got.Title = "mutated"
	got.Subtasks[0].Completed = true

	again, _ := s.Task("t1")
	if again.Title != "original" || again.Subtasks[0].Completed {
		t.Fatalf("store leaked internal state: %+v", again)
	}

	s.PutTeam(domain.Team{ID: "team1", MemberIDs: []string{"a"}})
	team, _ := s.Team("team1")
	team.MemberIDs[0] = "b"
	again2, _ := s.Team("team1")
	if again2.MemberIDs[0] != "a" {
		t.Fatalf("team roster leaked")
	}
}

func TestRestoreReplacesState(t *testing.T) {
	s := store.New()
	s.PutMember(domain.Member{ID: "old"})
	s.Restore(domain.Snapshot{
		Tasks:   []domain.Task{{ID: "t1"}},
		Members: []domain.Member{{ID: "m1"}, {ID: "m2"}},
		Teams:   []domain.Team{{ID: "team1"}},
	})
	if _, ok := s.Member("old"); ok {
		t.Fatal("restore must drop previous state")
	}
	if len(s.Members()) != 2 || len(s.Tasks()) != 1 || len(s.Teams()) != 1 {
		t.Fatalf("restore incomplete")
	}
	if _, ok := s.TeamOf("m1"); ok {
		t.Fatal("m1 has no team")
	}
}
