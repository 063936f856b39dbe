package engine

import (
	"context"

	"pulseboard/internal/domain"
	"pulseboard/internal/repo"
)

// Reads serve copies out of the in-memory store under the same lock the
// mutations hold.

func (e *Engine) ListTasks(ctx context.Context) []domain.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Store.Tasks()
}

func (e *Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.Store.Task(id)
	if !ok {
		return domain.Task{}, domain.NotFoundError{Kind: "task", ID: id}
	}
	return t, nil
}

func (e *Engine) ListMembers(ctx context.Context) []domain.Member {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Store.Members()
}

func (e *Engine) GetMember(ctx context.Context, id string) (domain.Member, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.Store.Member(id)
	if !ok {
		return domain.Member{}, domain.NotFoundError{Kind: "member", ID: id}
	}
	return m, nil
}

func (e *Engine) ListTeams(ctx context.Context) []domain.Team {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Store.Teams()
}

func (e *Engine) GetTeam(ctx context.Context, id string) (domain.Team, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.Store.Team(id)
	if !ok {
		return domain.Team{}, domain.NotFoundError{Kind: "team", ID: id}
	}
	return t, nil
}

// TeamDetail is a team hydrated with its roster, for display surfaces.
type TeamDetail struct {
	Team    domain.Team     `json:"team"`
	Members []domain.Member `json:"members"`
}

func (e *Engine) GetTeamDetail(ctx context.Context, id string) (TeamDetail, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.Store.Team(id)
	if !ok {
		return TeamDetail{}, domain.NotFoundError{Kind: "team", ID: id}
	}
	d := TeamDetail{Team: t}
	for _, mid := range t.MemberIDs {
		if m, ok := e.Store.Member(mid); ok {
			d.Members = append(d.Members, m)
		}
	}
	return d, nil
}

func (e *Engine) Stats(ctx context.Context) domain.UserStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Store.Stats()
}

// LatestEvents reads the event log straight from SQLite; the store does
// not hold events.
func (e *Engine) LatestEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, f)
}
