// Package repo is the SQLite adapter behind the in-memory store. It
// implements the hosting contract for persistence: LoadAll hydrates the
// full entity state at startup and the Upsert* helpers write each
// mutated entity back inside the mutation's transaction.
package repo

import (
	"context"
	"database/sql"
	"strings"

	"pulseboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

// LoadAll reads the complete entity state in insertion order.
func (r Repo) LoadAll(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	tasks, err := r.listTasks(ctx)
	if err != nil {
		return snap, err
	}
	members, err := r.listMembers(ctx)
	if err != nil {
		return snap, err
	}
	teams, err := r.listTeams(ctx)
	if err != nil {
		return snap, err
	}
	snap.Tasks = tasks
	snap.Members = members
	snap.Teams = teams
	return snap, nil
}

func (r Repo) listTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,title,description,priority,due_date,status,points,assigned_to,assigned_team,completed_by,completed_at,created_at,updated_at FROM tasks ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var description, dueDate, assignedTo, assignedTeam, completedBy, completedAt sql.NullString
		if err := rows.Scan(&t.ID, &t.Title, &description, &t.Priority, &dueDate, &t.Status, &t.Points,
			&assignedTo, &assignedTeam, &completedBy, &completedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if description.Valid {
			t.Description = description.String
		}
		if dueDate.Valid {
			t.DueDate = dueDate.String
		}
		if assignedTo.Valid {
			t.AssignedTo = &assignedTo.String
		}
		if assignedTeam.Valid {
			t.AssignedTeam = &assignedTeam.String
		}
		if completedBy.Valid {
			t.CompletedBy = &completedBy.String
		}
		if completedAt.Valid {
			t.CompletedAt = &completedAt.String
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		subs, err := r.listSubtasks(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Subtasks = subs
	}
	return res, nil
}

func (r Repo) listSubtasks(ctx context.Context, taskID string) ([]domain.SubTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,title,completed,estimated_hours FROM subtasks WHERE task_id=? ORDER BY position`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SubTask
	for rows.Next() {
		var s domain.SubTask
		var completed int
		if err := rows.Scan(&s.ID, &s.Title, &completed, &s.EstimatedHours); err != nil {
			return nil, err
		}
		s.Completed = completed != 0
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) listMembers(ctx context.Context) ([]domain.Member, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,avatar,points,tasks_completed,streak,department,team_id FROM members ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		var m domain.Member
		var avatar, department, teamID sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &avatar, &m.Points, &m.TasksCompleted, &m.Streak, &department, &teamID); err != nil {
			return nil, err
		}
		if avatar.Valid {
			m.Avatar = avatar.String
		}
		if department.Valid {
			m.Department = department.String
		}
		if teamID.Valid {
			m.TeamID = &teamID.String
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) listTeams(ctx context.Context) ([]domain.Team, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,description,total_points,member_count,avg_task_completion,created_at FROM teams ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Team
	for rows.Next() {
		var t domain.Team
		var description sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &description, &t.TotalPoints, &t.MemberCount, &t.AvgTaskCompletion, &t.CreatedAt); err != nil {
			return nil, err
		}
		if description.Valid {
			t.Description = description.String
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		ids, err := r.listTeamMembers(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].MemberIDs = ids
	}
	return res, nil
}

func (r Repo) listTeamMembers(ctx context.Context, teamID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT member_id FROM team_members WHERE team_id=? ORDER BY position`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) UpsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,title,description,priority,due_date,status,points,assigned_to,assigned_team,completed_by,completed_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET title=excluded.title, description=excluded.description, priority=excluded.priority,
due_date=excluded.due_date, status=excluded.status, points=excluded.points, assigned_to=excluded.assigned_to,
assigned_team=excluded.assigned_team, completed_by=excluded.completed_by, completed_at=excluded.completed_at,
updated_at=excluded.updated_at`,
		t.ID, t.Title, nullable(t.Description), t.Priority, nullable(t.DueDate), t.Status, t.Points,
		nullableStringPtr(t.AssignedTo), nullableStringPtr(t.AssignedTeam), nullableStringPtr(t.CompletedBy),
		nullableStringPtr(t.CompletedAt), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM subtasks WHERE task_id=?`, t.ID); err != nil {
		return err
	}
	for i, s := range t.Subtasks {
		completed := 0
		if s.Completed {
			completed = 1
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO subtasks(task_id,id,title,completed,estimated_hours,position) VALUES (?,?,?,?,?,?)`,
			t.ID, s.ID, s.Title, completed, s.EstimatedHours, i); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) UpsertMember(ctx context.Context, tx *sql.Tx, m domain.Member) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO members(id,name,avatar,points,tasks_completed,streak,department,team_id)
VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, avatar=excluded.avatar, points=excluded.points,
tasks_completed=excluded.tasks_completed, streak=excluded.streak, department=excluded.department, team_id=excluded.team_id`,
		m.ID, m.Name, nullable(m.Avatar), m.Points, m.TasksCompleted, m.Streak, nullable(m.Department), nullableStringPtr(m.TeamID))
	return err
}

func (r Repo) UpsertTeam(ctx context.Context, tx *sql.Tx, t domain.Team) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO teams(id,name,description,total_points,member_count,avg_task_completion,created_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, description=excluded.description, total_points=excluded.total_points,
member_count=excluded.member_count, avg_task_completion=excluded.avg_task_completion`,
		t.ID, t.Name, nullable(t.Description), t.TotalPoints, t.MemberCount, t.AvgTaskCompletion, t.CreatedAt)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM team_members WHERE team_id=?`, t.ID); err != nil {
		return err
	}
	for i, id := range t.MemberIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO team_members(team_id,member_id,position) VALUES (?,?,?)`, t.ID, id, i); err != nil {
			return err
		}
	}
	return nil
}

type EventFilters struct {
	Type       string
	EntityKind string
	EntityID   string
	Limit      int
}

// LatestEvents returns the newest event rows first.
func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query := `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
