// Package engine is the mutation and aggregation core. Every operation
// validates against the in-memory store, writes the mutated entities and
// an event row to SQLite in one transaction, then applies the mutation
// to the store. The store stays authoritative for reads; SQLite exists
// so a restart can rebuild it.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pulseboard/internal/config"
	"pulseboard/internal/domain"
	"pulseboard/internal/events"
	"pulseboard/internal/repo"
	"pulseboard/internal/store"
)

type Engine struct {
	mu     sync.Mutex
	DB     *sql.DB
	Repo   repo.Repo
	Store  *store.Store
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, st *store.Store, cfg *config.Config) *Engine {
	e := &Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Store:  st,
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
	e.Events.Now = e.now
	st.SetStats(cfg.UserStats())
	return e
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// Load hydrates the store from SQLite. Call once after migrations.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, err := e.Repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	e.Store.Restore(snap)
	return nil
}

// SubTaskInput is a subtask suggestion attached at task creation. The
// ids are assigned here; suggestions arrive as title plus hour estimate.
type SubTaskInput struct {
	Title          string
	EstimatedHours float64
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title        string
	Description  string
	Priority     string
	DueDate      string
	Subtasks     []SubTaskInput
	AssignedTo   string
	AssignedTeam string
	ActorID      string
}

func (e *Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, domain.ValidationError{Field: "title", Reason: "is required"}
	}
	if opts.DueDate == "" {
		return domain.Task{}, domain.ValidationError{Field: "due_date", Reason: "is required"}
	}
	if _, err := time.Parse("2006-01-02", opts.DueDate); err != nil {
		return domain.Task{}, domain.ValidationError{Field: "due_date", Reason: "must be YYYY-MM-DD"}
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	switch opts.Priority {
	case domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh:
	default:
		return domain.Task{}, domain.ValidationError{Field: "priority", Reason: "must be low, medium or high"}
	}
	for i, s := range opts.Subtasks {
		if s.Title == "" {
			return domain.Task{}, domain.ValidationError{Field: fmt.Sprintf("subtasks[%d].title", i), Reason: "is required"}
		}
		if s.EstimatedHours <= 0 {
			return domain.Task{}, domain.ValidationError{Field: fmt.Sprintf("subtasks[%d].estimated_hours", i), Reason: "must be positive"}
		}
	}
	if opts.AssignedTo != "" {
		if _, ok := e.Store.Member(opts.AssignedTo); !ok {
			return domain.Task{}, domain.NotFoundError{Kind: "member", ID: opts.AssignedTo}
		}
	}
	if opts.AssignedTeam != "" {
		if _, ok := e.Store.Team(opts.AssignedTeam); !ok {
			return domain.Task{}, domain.NotFoundError{Kind: "team", ID: opts.AssignedTeam}
		}
	}

	now := e.timestamp()
	t := domain.Task{
		ID:           uuid.NewString(),
		Title:        opts.Title,
		Description:  opts.Description,
		Priority:     opts.Priority,
		DueDate:      opts.DueDate,
		Status:       domain.StatusTodo,
		Points:       e.Config.PointsFor(opts.Priority),
		AssignedTo:   optionalString(opts.AssignedTo),
		AssignedTeam: optionalString(opts.AssignedTeam),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, s := range opts.Subtasks {
		t.Subtasks = append(t.Subtasks, domain.SubTask{
			ID:             uuid.NewString(),
			Title:          s.Title,
			EstimatedHours: s.EstimatedHours,
		})
	}

	err := e.commit(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpsertTask(ctx, tx, t); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "task.created", "task", t.ID, opts.ActorID, events.EventPayload{
			"title": t.Title, "priority": t.Priority, "points": t.Points,
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.Store.PutTask(t)
	return t, nil
}

// ToggleSubtask flips one subtask's completed flag. The parent task's
// status is never touched here; completion gating happens in CompleteTask.
func (e *Engine) ToggleSubtask(ctx context.Context, taskID, subtaskID, actorID string) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.Store.Task(taskID)
	if !ok {
		return domain.Task{}, domain.NotFoundError{Kind: "task", ID: taskID}
	}
	idx := -1
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == subtaskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Task{}, domain.NotFoundError{Kind: "subtask", ID: subtaskID}
	}
	t.Subtasks[idx].Completed = !t.Subtasks[idx].Completed
	t.UpdatedAt = e.timestamp()

	err := e.commit(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpsertTask(ctx, tx, t); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "task.subtask.toggled", "task", t.ID, actorID, events.EventPayload{
			"subtask_id": subtaskID, "completed": t.Subtasks[idx].Completed,
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.Store.PutTask(t)
	return t, nil
}

// SetTaskStatus moves a task forward through its lifecycle. Only
// todo -> in-progress is handled here; a completed target is routed
// through the completion path so subtask gating and awards apply.
func (e *Engine) SetTaskStatus(ctx context.Context, taskID, status, actorID string) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch status {
	case domain.StatusTodo, domain.StatusInProgress, domain.StatusCompleted:
	default:
		return domain.Task{}, domain.ValidationError{Field: "status", Reason: "must be todo, in-progress or completed"}
	}
	if status == domain.StatusCompleted {
		return e.completeLocked(ctx, taskID, "", actorID)
	}

	t, ok := e.Store.Task(taskID)
	if !ok {
		return domain.Task{}, domain.NotFoundError{Kind: "task", ID: taskID}
	}
	if !(t.Status == domain.StatusTodo && status == domain.StatusInProgress) {
		return domain.Task{}, domain.PreconditionError{Reason: fmt.Sprintf("cannot move task from %s to %s", t.Status, status)}
	}
	t.Status = status
	t.UpdatedAt = e.timestamp()

	err := e.commit(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpsertTask(ctx, tx, t); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "task.started", "task", t.ID, actorID, nil)
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.Store.PutTask(t)
	return t, nil
}

// CompleteTask marks a task completed. The award always follows the
// assignee; completedBy is only recorded on the task. An unassigned
// task awards nobody, unless it is team-assigned and the
// scoring.team_award setting is on.
func (e *Engine) CompleteTask(ctx context.Context, taskID, completedBy, actorID string) (domain.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completeLocked(ctx, taskID, completedBy, actorID)
}

func (e *Engine) completeLocked(ctx context.Context, taskID, completedBy, actorID string) (domain.Task, error) {
	t, ok := e.Store.Task(taskID)
	if !ok {
		return domain.Task{}, domain.NotFoundError{Kind: "task", ID: taskID}
	}
	if t.Status == domain.StatusCompleted {
		return domain.Task{}, domain.PreconditionError{Reason: "task already completed"}
	}
	if !t.SubtasksDone() {
		return domain.Task{}, domain.PreconditionError{Reason: "incomplete subtasks"}
	}
	if completedBy != "" {
		if _, ok := e.Store.Member(completedBy); !ok {
			return domain.Task{}, domain.NotFoundError{Kind: "member", ID: completedBy}
		}
	}

	var awarded []domain.Member
	if t.AssignedTo != nil {
		m, ok := e.Store.Member(*t.AssignedTo)
		if !ok {
			return domain.Task{}, domain.NotFoundError{Kind: "member", ID: *t.AssignedTo}
		}
		awarded = []domain.Member{m}
	} else if t.AssignedTeam != nil && e.Config.Scoring.TeamAward {
		team, ok := e.Store.Team(*t.AssignedTeam)
		if !ok {
			return domain.Task{}, domain.NotFoundError{Kind: "team", ID: *t.AssignedTeam}
		}
		for _, id := range team.MemberIDs {
			if m, ok := e.Store.Member(id); ok {
				awarded = append(awarded, m)
			}
		}
	}

	completer := completedBy
	if completer == "" && t.AssignedTo != nil {
		completer = *t.AssignedTo
	}
	now := e.timestamp()
	t.Status = domain.StatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	if completer != "" {
		t.CompletedBy = &completer
	}
	for i := range awarded {
		awarded[i].Points += t.Points
		awarded[i].TasksCompleted++
	}
	teams := e.recomputeTeamsFor(awarded)

	err := e.commit(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpsertTask(ctx, tx, t); err != nil {
			return err
		}
		for _, m := range awarded {
			if err := e.Repo.UpsertMember(ctx, tx, m); err != nil {
				return err
			}
			if err := e.Events.Append(ctx, tx, "points.awarded", "member", m.ID, actorID, events.EventPayload{
				"points": t.Points, "task_id": t.ID,
			}); err != nil {
				return err
			}
		}
		for _, team := range teams {
			if err := e.Repo.UpsertTeam(ctx, tx, team); err != nil {
				return err
			}
		}
		return e.Events.Append(ctx, tx, "task.completed", "task", t.ID, actorID, events.EventPayload{
			"completed_by": completer, "points": t.Points,
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.Store.PutTask(t)
	for _, m := range awarded {
		e.Store.PutMember(m)
	}
	for _, team := range teams {
		e.Store.PutTeam(team)
	}
	return t, nil
}

// AwardPoints grants points to a member directly and counts one task
// completion, then refreshes the member's team aggregates.
func (e *Engine) AwardPoints(ctx context.Context, memberID string, points int, actorID string) (domain.Member, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if points <= 0 {
		return domain.Member{}, domain.ValidationError{Field: "points", Reason: "must be positive"}
	}
	m, ok := e.Store.Member(memberID)
	if !ok {
		return domain.Member{}, domain.NotFoundError{Kind: "member", ID: memberID}
	}
	m.Points += points
	m.TasksCompleted++
	teams := e.recomputeTeamsFor([]domain.Member{m})

	err := e.commit(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpsertMember(ctx, tx, m); err != nil {
			return err
		}
		for _, team := range teams {
			if err := e.Repo.UpsertTeam(ctx, tx, team); err != nil {
				return err
			}
		}
		return e.Events.Append(ctx, tx, "points.awarded", "member", m.ID, actorID, events.EventPayload{"points": points})
	})
	if err != nil {
		return domain.Member{}, err
	}
	e.Store.PutMember(m)
	for _, team := range teams {
		e.Store.PutTeam(team)
	}
	return m, nil
}

// MemberCreateOptions are parameters for registering a member.
type MemberCreateOptions struct {
	Name       string
	Avatar     string
	Department string
	Streak     int
	ActorID    string
}

func (e *Engine) CreateMember(ctx context.Context, opts MemberCreateOptions) (domain.Member, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if strings.TrimSpace(opts.Name) == "" {
		return domain.Member{}, domain.ValidationError{Field: "name", Reason: "is required"}
	}
	if opts.Streak < 0 {
		return domain.Member{}, domain.ValidationError{Field: "streak", Reason: "must not be negative"}
	}
	m := domain.Member{
		ID:         uuid.NewString(),
		Name:       opts.Name,
		Avatar:     opts.Avatar,
		Department: opts.Department,
		Streak:     opts.Streak,
	}
	err := e.commit(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpsertMember(ctx, tx, m); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "member.created", "member", m.ID, opts.ActorID, events.EventPayload{"name": m.Name})
	})
	if err != nil {
		return domain.Member{}, err
	}
	e.Store.PutMember(m)
	return m, nil
}

// TeamCreateOptions are parameters for creating a team.
type TeamCreateOptions struct {
	Name        string
	Description string
	ActorID     string
}

func (e *Engine) CreateTeam(ctx context.Context, opts TeamCreateOptions) (domain.Team, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if strings.TrimSpace(opts.Name) == "" {
		return domain.Team{}, domain.ValidationError{Field: "name", Reason: "is required"}
	}
	t := domain.Team{
		ID:          uuid.NewString(),
		Name:        opts.Name,
		Description: opts.Description,
		CreatedAt:   e.timestamp(),
	}
	err := e.commit(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpsertTeam(ctx, tx, t); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "team.created", "team", t.ID, opts.ActorID, events.EventPayload{"name": t.Name})
	})
	if err != nil {
		return domain.Team{}, err
	}
	e.Store.PutTeam(t)
	return t, nil
}

// AddMemberToTeam puts a member on a roster. Membership is exclusive: a
// member already on any roster, including this one, is a conflict.
func (e *Engine) AddMemberToTeam(ctx context.Context, teamID, memberID, actorID string) (domain.Team, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	team, ok := e.Store.Team(teamID)
	if !ok {
		return domain.Team{}, domain.NotFoundError{Kind: "team", ID: teamID}
	}
	m, ok := e.Store.Member(memberID)
	if !ok {
		return domain.Team{}, domain.NotFoundError{Kind: "member", ID: memberID}
	}
	if m.TeamID != nil {
		return domain.Team{}, domain.ConflictError{Reason: fmt.Sprintf("member %s already belongs to team %s", memberID, *m.TeamID)}
	}

	team.MemberIDs = append(team.MemberIDs, memberID)
	m.TeamID = &team.ID
	e.recompute(&team)

	err := e.commit(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpsertTeam(ctx, tx, team); err != nil {
			return err
		}
		if err := e.Repo.UpsertMember(ctx, tx, m); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "team.member.added", "team", team.ID, actorID, events.EventPayload{"member_id": memberID})
	})
	if err != nil {
		return domain.Team{}, err
	}
	e.Store.PutTeam(team)
	e.Store.PutMember(m)
	return team, nil
}

// RemoveMemberFromTeam takes a member off a roster. Removing a member
// who is not on the roster leaves the team untouched.
func (e *Engine) RemoveMemberFromTeam(ctx context.Context, teamID, memberID, actorID string) (domain.Team, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	team, ok := e.Store.Team(teamID)
	if !ok {
		return domain.Team{}, domain.NotFoundError{Kind: "team", ID: teamID}
	}
	if !team.HasMember(memberID) {
		return team, nil
	}
	kept := team.MemberIDs[:0]
	for _, id := range team.MemberIDs {
		if id != memberID {
			kept = append(kept, id)
		}
	}
	team.MemberIDs = kept
	e.recompute(&team)

	m, hasMember := e.Store.Member(memberID)
	if hasMember {
		m.TeamID = nil
	}

	err := e.commit(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpsertTeam(ctx, tx, team); err != nil {
			return err
		}
		if hasMember {
			if err := e.Repo.UpsertMember(ctx, tx, m); err != nil {
				return err
			}
		}
		return e.Events.Append(ctx, tx, "team.member.removed", "team", team.ID, actorID, events.EventPayload{"member_id": memberID})
	})
	if err != nil {
		return domain.Team{}, err
	}
	e.Store.PutTeam(team)
	if hasMember {
		e.Store.PutMember(m)
	}
	return team, nil
}

// recompute refreshes a team's derived aggregates from the member
// registry. avg_task_completion is round(sum(tasks_completed*2)/count),
// zero when the roster is empty.
func (e *Engine) recompute(team *domain.Team) {
	team.MemberCount = len(team.MemberIDs)
	total, activity := 0, 0
	for _, id := range team.MemberIDs {
		m, ok := e.Store.Member(id)
		if !ok {
			continue
		}
		total += m.Points
		activity += m.TasksCompleted * 2
	}
	team.TotalPoints = total
	if team.MemberCount == 0 {
		team.AvgTaskCompletion = 0
		return
	}
	team.AvgTaskCompletion = int(math.Round(float64(activity) / float64(team.MemberCount)))
}

// recomputeTeamsFor rebuilds aggregates for the teams of not-yet-stored
// member updates. The pending members override the registry so the new
// point totals are counted.
func (e *Engine) recomputeTeamsFor(pending []domain.Member) []domain.Team {
	byID := make(map[string]domain.Member, len(pending))
	teamIDs := make(map[string]struct{})
	for _, m := range pending {
		byID[m.ID] = m
		if m.TeamID != nil {
			teamIDs[*m.TeamID] = struct{}{}
		}
	}
	var out []domain.Team
	for id := range teamIDs {
		team, ok := e.Store.Team(id)
		if !ok {
			continue
		}
		team.MemberCount = len(team.MemberIDs)
		total, activity := 0, 0
		for _, mid := range team.MemberIDs {
			m, ok := byID[mid]
			if !ok {
				m, ok = e.Store.Member(mid)
				if !ok {
					continue
				}
			}
			total += m.Points
			activity += m.TasksCompleted * 2
		}
		team.TotalPoints = total
		if team.MemberCount == 0 {
			team.AvgTaskCompletion = 0
		} else {
			team.AvgTaskCompletion = int(math.Round(float64(activity) / float64(team.MemberCount)))
		}
		out = append(out, team)
	}
	return out
}

func (e *Engine) commit(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
