// Package store holds the in-memory entity state: the task list, the
// global member registry, and team rosters referencing members by id.
//
// The store itself does no locking. Every access goes through the
// engine, which serializes operations behind a single mutex so that
// each mutation runs to completion before the next begins.
package store

import "pulseboard/internal/domain"

type Store struct {
	tasks     map[string]domain.Task
	taskOrder []string

	members     map[string]domain.Member
	memberOrder []string

	teams     map[string]domain.Team
	teamOrder []string

	stats domain.UserStats
}

func New() *Store {
	return &Store{
		tasks:   map[string]domain.Task{},
		members: map[string]domain.Member{},
		teams:   map[string]domain.Team{},
	}
}

// Restore replaces all entity state with a loaded snapshot, preserving
// the snapshot's ordering as insertion order.
func (s *Store) Restore(snap domain.Snapshot) {
	s.tasks = make(map[string]domain.Task, len(snap.Tasks))
	s.taskOrder = s.taskOrder[:0]
	for _, t := range snap.Tasks {
		s.tasks[t.ID] = t
		s.taskOrder = append(s.taskOrder, t.ID)
	}
	s.members = make(map[string]domain.Member, len(snap.Members))
	s.memberOrder = s.memberOrder[:0]
	for _, m := range snap.Members {
		s.members[m.ID] = m
		s.memberOrder = append(s.memberOrder, m.ID)
	}
	s.teams = make(map[string]domain.Team, len(snap.Teams))
	s.teamOrder = s.teamOrder[:0]
	for _, t := range snap.Teams {
		s.teams[t.ID] = t
		s.teamOrder = append(s.teamOrder, t.ID)
	}
}

// Snapshot copies out all entity state in insertion order.
func (s *Store) Snapshot() domain.Snapshot {
	return domain.Snapshot{
		Tasks:   s.Tasks(),
		Members: s.Members(),
		Teams:   s.Teams(),
	}
}

func (s *Store) Task(id string) (domain.Task, bool) {
	t, ok := s.tasks[id]
	if ok {
		t.Subtasks = append([]domain.SubTask(nil), t.Subtasks...)
	}
	return t, ok
}

// PutTask inserts or replaces a task, keeping insertion order stable.
func (s *Store) PutTask(t domain.Task) {
	if _, exists := s.tasks[t.ID]; !exists {
		s.taskOrder = append(s.taskOrder, t.ID)
	}
	s.tasks[t.ID] = t
}

func (s *Store) Tasks() []domain.Task {
	out := make([]domain.Task, 0, len(s.taskOrder))
	for _, id := range s.taskOrder {
		t := s.tasks[id]
		t.Subtasks = append([]domain.SubTask(nil), t.Subtasks...)
		out = append(out, t)
	}
	return out
}

func (s *Store) Member(id string) (domain.Member, bool) {
	m, ok := s.members[id]
	return m, ok
}

func (s *Store) PutMember(m domain.Member) {
	if _, exists := s.members[m.ID]; !exists {
		s.memberOrder = append(s.memberOrder, m.ID)
	}
	s.members[m.ID] = m
}

func (s *Store) Members() []domain.Member {
	out := make([]domain.Member, 0, len(s.memberOrder))
	for _, id := range s.memberOrder {
		out = append(out, s.members[id])
	}
	return out
}

func (s *Store) Team(id string) (domain.Team, bool) {
	t, ok := s.teams[id]
	if ok {
		t.MemberIDs = append([]string(nil), t.MemberIDs...)
	}
	return t, ok
}

func (s *Store) PutTeam(t domain.Team) {
	if _, exists := s.teams[t.ID]; !exists {
		s.teamOrder = append(s.teamOrder, t.ID)
	}
	s.teams[t.ID] = t
}

func (s *Store) Teams() []domain.Team {
	out := make([]domain.Team, 0, len(s.teamOrder))
	for _, id := range s.teamOrder {
		t := s.teams[id]
		t.MemberIDs = append([]string(nil), t.MemberIDs...)
		out = append(out, t)
	}
	return out
}

// TeamOf returns the team whose roster contains the member, if any.
// Rosters are globally exclusive, so there is at most one.
func (s *Store) TeamOf(memberID string) (domain.Team, bool) {
	for _, id := range s.teamOrder {
		if s.teams[id].HasMember(memberID) {
			return s.Team(id)
		}
	}
	return domain.Team{}, false
}

func (s *Store) SetStats(stats domain.UserStats) { s.stats = stats }

func (s *Store) Stats() domain.UserStats {
	st := s.stats
	st.Badges = append([]string(nil), st.Badges...)
	return st
}
