package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"pulseboard/internal/config"
	"pulseboard/internal/db"
	"pulseboard/internal/domain"
	"pulseboard/internal/engine"
	"pulseboard/internal/migrate"
	"pulseboard/internal/store"
)

type testEnv struct {
	Engine *engine.Engine
	Ctx    context.Context
	Dir    string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	return openEnv(t, dir, config.Default("pulse-test"))
}

func openEnv(t *testing.T, dir string, cfg *config.Config) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, store.New(), cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if err := eng.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Dir: dir}
}

func mustTask(t *testing.T, env testEnv, opts engine.TaskCreateOptions) domain.Task {
	t.Helper()
	if opts.ActorID == "" {
		opts.ActorID = "tester"
	}
	if opts.DueDate == "" {
		opts.DueDate = "2024-02-01"
	}
	task, err := env.Engine.CreateTask(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func mustMember(t *testing.T, env testEnv, name string) domain.Member {
	t.Helper()
	m, err := env.Engine.CreateMember(env.Ctx, engine.MemberCreateOptions{Name: name, ActorID: "tester"})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	return m
}

func mustTeam(t *testing.T, env testEnv, name string) domain.Team {
	t.Helper()
	team, err := env.Engine.CreateTeam(env.Ctx, engine.TeamCreateOptions{Name: name, ActorID: "tester"})
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	return team
}

func TestPointsFollowPriority(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]int{"low": 10, "medium": 15, "high": 25}
	for priority, want := range cases {
		task := mustTask(t, env, engine.TaskCreateOptions{Title: "p-" + priority, Priority: priority})
		if task.Points != want {
			t.Fatalf("%s: points = %d, want %d", priority, task.Points, want)
		}
	}
	// default priority is medium
	task := mustTask(t, env, engine.TaskCreateOptions{Title: "default"})
	if task.Priority != "medium" || task.Points != 15 {
		t.Fatalf("default priority = %s/%d, want medium/15", task.Priority, task.Points)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	var ve domain.ValidationError
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{DueDate: "2024-02-01", ActorID: "tester"})
	if !errors.As(err, &ve) || ve.Field != "title" {
		t.Fatalf("blank title: got %v", err)
	}
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "   ", DueDate: "2024-02-01", ActorID: "tester"})
	if !errors.As(err, &ve) || ve.Field != "title" {
		t.Fatalf("whitespace title: got %v", err)
	}
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", ActorID: "tester"})
	if !errors.As(err, &ve) || ve.Field != "due_date" {
		t.Fatalf("missing due date: got %v", err)
	}
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", DueDate: "02/01/2024", ActorID: "tester"})
	if !errors.As(err, &ve) {
		t.Fatalf("malformed due date: got %v", err)
	}
	var nfe domain.NotFoundError
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", DueDate: "2024-02-01", AssignedTo: "ghost", ActorID: "tester"})
	if !errors.As(err, &nfe) {
		t.Fatalf("ghost assignee: got %v", err)
	}
}

func TestBlankNamesRejected(t *testing.T) {
	env := newTestEnv(t)
	var ve domain.ValidationError
	_, err := env.Engine.CreateMember(env.Ctx, engine.MemberCreateOptions{Name: "  ", ActorID: "tester"})
	if !errors.As(err, &ve) || ve.Field != "name" {
		t.Fatalf("whitespace member name: got %v", err)
	}
	_, err = env.Engine.CreateTeam(env.Ctx, engine.TeamCreateOptions{Name: "\t", ActorID: "tester"})
	if !errors.As(err, &ve) || ve.Field != "name" {
		t.Fatalf("whitespace team name: got %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	task := mustTask(t, env, engine.TaskCreateOptions{Title: "work"})

	task, err := env.Engine.SetTaskStatus(env.Ctx, task.ID, domain.StatusInProgress, "tester")
	if err != nil || task.Status != domain.StatusInProgress {
		t.Fatalf("to in-progress: %v", err)
	}
	// no regression
	var pe domain.PreconditionError
	_, err = env.Engine.SetTaskStatus(env.Ctx, task.ID, domain.StatusInProgress, "tester")
	if !errors.As(err, &pe) {
		t.Fatalf("repeat in-progress: got %v", err)
	}
	task, err = env.Engine.CompleteTask(env.Ctx, task.ID, "", "tester")
	if err != nil || task.Status != domain.StatusCompleted {
		t.Fatalf("complete: %v", err)
	}
	_, err = env.Engine.SetTaskStatus(env.Ctx, task.ID, domain.StatusInProgress, "tester")
	if !errors.As(err, &pe) {
		t.Fatalf("regression from completed: got %v", err)
	}
	_, err = env.Engine.CompleteTask(env.Ctx, task.ID, "", "tester")
	if !errors.As(err, &pe) {
		t.Fatalf("double complete: got %v", err)
	}
}

func TestDirectTodoToCompleted(t *testing.T) {
	env := newTestEnv(t)
	task := mustTask(t, env, engine.TaskCreateOptions{Title: "quick"})
	task, err := env.Engine.SetTaskStatus(env.Ctx, task.ID, domain.StatusCompleted, "tester")
	if err != nil || task.Status != domain.StatusCompleted {
		t.Fatalf("todo -> completed: %v", err)
	}
}

func TestSubtaskGating(t *testing.T) {
	env := newTestEnv(t)
	task := mustTask(t, env, engine.TaskCreateOptions{
		Title: "gated",
		Subtasks: []engine.SubTaskInput{
			{Title: "a", EstimatedHours: 1},
			{Title: "b", EstimatedHours: 2},
		},
	})
	var pe domain.PreconditionError
	_, err := env.Engine.CompleteTask(env.Ctx, task.ID, "", "tester")
	if !errors.As(err, &pe) {
		t.Fatalf("expected incomplete subtasks error, got %v", err)
	}
	for _, s := range task.Subtasks {
		if _, err := env.Engine.ToggleSubtask(env.Ctx, task.ID, s.ID, "tester"); err != nil {
			t.Fatalf("toggle: %v", err)
		}
	}
	task, err = env.Engine.CompleteTask(env.Ctx, task.ID, "", "tester")
	if err != nil || task.Status != domain.StatusCompleted {
		t.Fatalf("complete after toggles: %v", err)
	}
	if task.CompletedAt == nil {
		t.Fatalf("expected completed_at stamp")
	}
}

func TestToggleSubtaskInvolution(t *testing.T) {
	env := newTestEnv(t)
	task := mustTask(t, env, engine.TaskCreateOptions{
		Title:    "toggle",
		Subtasks: []engine.SubTaskInput{{Title: "only", EstimatedHours: 0.5}},
	})
	sid := task.Subtasks[0].ID
	task, err := env.Engine.ToggleSubtask(env.Ctx, task.ID, sid, "tester")
	if err != nil || !task.Subtasks[0].Completed {
		t.Fatalf("first toggle: %v", err)
	}
	if task.Status != domain.StatusTodo {
		t.Fatalf("toggle must not touch parent status, got %s", task.Status)
	}
	task, err = env.Engine.ToggleSubtask(env.Ctx, task.ID, sid, "tester")
	if err != nil || task.Subtasks[0].Completed {
		t.Fatalf("second toggle should restore, got %v", err)
	}
	var nfe domain.NotFoundError
	_, err = env.Engine.ToggleSubtask(env.Ctx, task.ID, "ghost", "tester")
	if !errors.As(err, &nfe) {
		t.Fatalf("ghost subtask: got %v", err)
	}
}

func TestCompleteAwardsAssignee(t *testing.T) {
	env := newTestEnv(t)
	m := mustMember(t, env, "alice")
	task := mustTask(t, env, engine.TaskCreateOptions{Title: "paid", Priority: "high", AssignedTo: m.ID})

	task, err := env.Engine.CompleteTask(env.Ctx, task.ID, "", "tester")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if task.CompletedBy == nil || *task.CompletedBy != m.ID {
		t.Fatalf("completed_by not stamped")
	}
	got, err := env.Engine.GetMember(env.Ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Points != 25 || got.TasksCompleted != 1 {
		t.Fatalf("award = %d/%d, want 25/1", got.Points, got.TasksCompleted)
	}
}

func TestAwardFollowsAssigneeNotCompleter(t *testing.T) {
	env := newTestEnv(t)
	assignee := mustMember(t, env, "alice")
	finisher := mustMember(t, env, "bob")
	task := mustTask(t, env, engine.TaskCreateOptions{Title: "handoff", AssignedTo: assignee.ID})

	task, err := env.Engine.CompleteTask(env.Ctx, task.ID, finisher.ID, "tester")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if task.CompletedBy == nil || *task.CompletedBy != finisher.ID {
		t.Fatalf("completed_by should record the completer")
	}
	a, _ := env.Engine.GetMember(env.Ctx, assignee.ID)
	b, _ := env.Engine.GetMember(env.Ctx, finisher.ID)
	if a.Points != 15 || a.TasksCompleted != 1 {
		t.Fatalf("assignee award = %d/%d, want 15/1", a.Points, a.TasksCompleted)
	}
	if b.Points != 0 || b.TasksCompleted != 0 {
		t.Fatalf("completer must not be awarded, got %d/%d", b.Points, b.TasksCompleted)
	}
}

func TestUnassignedTaskAwardsNobody(t *testing.T) {
	env := newTestEnv(t)
	m := mustMember(t, env, "alice")
	task := mustTask(t, env, engine.TaskCreateOptions{Title: "free"})
	task, err := env.Engine.CompleteTask(env.Ctx, task.ID, m.ID, "tester")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if task.CompletedBy == nil || *task.CompletedBy != m.ID {
		t.Fatalf("completed_by should still be recorded")
	}
	got, _ := env.Engine.GetMember(env.Ctx, m.ID)
	if got.Points != 0 || got.TasksCompleted != 0 {
		t.Fatalf("nobody should be awarded without an assignee, got %d/%d", got.Points, got.TasksCompleted)
	}
}

func TestTeamAwardConfig(t *testing.T) {
	cfg := config.Default("pulse-test")
	cfg.Scoring.TeamAward = true
	env := openEnv(t, t.TempDir(), cfg)

	team := mustTeam(t, env, "crew")
	a := mustMember(t, env, "alice")
	b := mustMember(t, env, "bob")
	for _, id := range []string{a.ID, b.ID} {
		if _, err := env.Engine.AddMemberToTeam(env.Ctx, team.ID, id, "tester"); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	task := mustTask(t, env, engine.TaskCreateOptions{Title: "group", Priority: "low", AssignedTeam: team.ID})
	if _, err := env.Engine.CompleteTask(env.Ctx, task.ID, "", "tester"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	for _, id := range []string{a.ID, b.ID} {
		m, _ := env.Engine.GetMember(env.Ctx, id)
		if m.Points != 10 || m.TasksCompleted != 1 {
			t.Fatalf("roster award = %d/%d, want 10/1", m.Points, m.TasksCompleted)
		}
	}
	got, _ := env.Engine.GetTeam(env.Ctx, team.ID)
	if got.TotalPoints != 20 {
		t.Fatalf("team total = %d, want 20", got.TotalPoints)
	}
}

func TestAwardPointsUpdatesTeamAggregates(t *testing.T) {
	env := newTestEnv(t)
	team := mustTeam(t, env, "crew")
	a := mustMember(t, env, "alice")
	b := mustMember(t, env, "bob")
	for _, id := range []string{a.ID, b.ID} {
		if _, err := env.Engine.AddMemberToTeam(env.Ctx, team.ID, id, "tester"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := env.Engine.AwardPoints(env.Ctx, a.ID, 30, "tester"); err != nil {
		t.Fatalf("award: %v", err)
	}
	got, _ := env.Engine.GetTeam(env.Ctx, team.ID)
	if got.TotalPoints != 30 || got.MemberCount != 2 {
		t.Fatalf("aggregates = %d/%d, want 30/2", got.TotalPoints, got.MemberCount)
	}
	// one member with one completion: round((1*2 + 0*2) / 2) = 1
	if got.AvgTaskCompletion != 1 {
		t.Fatalf("avg completion = %d, want 1", got.AvgTaskCompletion)
	}
	var ve domain.ValidationError
	_, err := env.Engine.AwardPoints(env.Ctx, a.ID, 0, "tester")
	if !errors.As(err, &ve) {
		t.Fatalf("zero points: got %v", err)
	}
}

func TestExclusiveTeamMembership(t *testing.T) {
	env := newTestEnv(t)
	one := mustTeam(t, env, "one")
	two := mustTeam(t, env, "two")
	m := mustMember(t, env, "alice")

	if _, err := env.Engine.AddMemberToTeam(env.Ctx, one.ID, m.ID, "tester"); err != nil {
		t.Fatalf("first add: %v", err)
	}
	var ce domain.ConflictError
	_, err := env.Engine.AddMemberToTeam(env.Ctx, two.ID, m.ID, "tester")
	if !errors.As(err, &ce) {
		t.Fatalf("second team: got %v", err)
	}
	_, err = env.Engine.AddMemberToTeam(env.Ctx, one.ID, m.ID, "tester")
	if !errors.As(err, &ce) {
		t.Fatalf("same team twice: got %v", err)
	}
	got, _ := env.Engine.GetMember(env.Ctx, m.ID)
	if got.TeamID == nil || *got.TeamID != one.ID {
		t.Fatalf("team_id not stamped")
	}
}

func TestRemoveMember(t *testing.T) {
	env := newTestEnv(t)
	team := mustTeam(t, env, "crew")
	m := mustMember(t, env, "alice")
	if _, err := env.Engine.AddMemberToTeam(env.Ctx, team.ID, m.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.RemoveMemberFromTeam(env.Ctx, team.ID, m.ID, "tester")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got.MemberCount != 0 || got.TotalPoints != 0 || got.AvgTaskCompletion != 0 {
		t.Fatalf("empty roster aggregates = %d/%d/%d, want zeros", got.MemberCount, got.TotalPoints, got.AvgTaskCompletion)
	}
	member, _ := env.Engine.GetMember(env.Ctx, m.ID)
	if member.TeamID != nil {
		t.Fatalf("team_id not cleared")
	}
	// removing an absent member is a no-op
	if _, err := env.Engine.RemoveMemberFromTeam(env.Ctx, team.ID, "ghost", "tester"); err != nil {
		t.Fatalf("absent member should be a no-op: %v", err)
	}
	var nfe domain.NotFoundError
	_, err = env.Engine.RemoveMemberFromTeam(env.Ctx, "ghost-team", m.ID, "tester")
	if !errors.As(err, &nfe) {
		t.Fatalf("ghost team: got %v", err)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	env := openEnv(t, dir, config.Default("pulse-test"))

	team := mustTeam(t, env, "crew")
	m := mustMember(t, env, "alice")
	if _, err := env.Engine.AddMemberToTeam(env.Ctx, team.ID, m.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	task := mustTask(t, env, engine.TaskCreateOptions{
		Title:      "persisted",
		Priority:   "high",
		AssignedTo: m.ID,
		Subtasks:   []engine.SubTaskInput{{Title: "step", EstimatedHours: 2}},
	})
	if _, err := env.Engine.ToggleSubtask(env.Ctx, task.ID, task.Subtasks[0].ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteTask(env.Ctx, task.ID, "", "tester"); err != nil {
		t.Fatal(err)
	}

	reopened := openEnv(t, dir, config.Default("pulse-test"))
	gotTask, err := reopened.Engine.GetTask(reopened.Ctx, task.ID)
	if err != nil {
		t.Fatalf("reload task: %v", err)
	}
	if gotTask.Status != domain.StatusCompleted || !gotTask.Subtasks[0].Completed || gotTask.Points != 25 {
		t.Fatalf("task state lost: %+v", gotTask)
	}
	gotMember, err := reopened.Engine.GetMember(reopened.Ctx, m.ID)
	if err != nil {
		t.Fatalf("reload member: %v", err)
	}
	if gotMember.Points != 25 || gotMember.TasksCompleted != 1 {
		t.Fatalf("member state lost: %+v", gotMember)
	}
	gotTeam, err := reopened.Engine.GetTeam(reopened.Ctx, team.ID)
	if err != nil {
		t.Fatalf("reload team: %v", err)
	}
	if gotTeam.TotalPoints != 25 || gotTeam.MemberCount != 1 || !gotTeam.HasMember(m.ID) {
		t.Fatalf("team state lost: %+v", gotTeam)
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	task := mustTask(t, env, engine.TaskCreateOptions{Title: "evented"})
	if _, err := env.Engine.SetTaskStatus(env.Ctx, task.ID, domain.StatusInProgress, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteTask(env.Ctx, task.ID, "", "tester"); err != nil {
		t.Fatal(err)
	}
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT type FROM events WHERE entity_id=?`, task.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		count++
	}
	if count < 3 {
		t.Fatalf("expected create/start/complete events, got %d", count)
	}
}

func TestStatsSnapshot(t *testing.T) {
	cfg := config.Default("pulse-test")
	cfg.Stats.Level = 3
	cfg.Stats.TotalPoints = 420
	env := openEnv(t, t.TempDir(), cfg)
	stats := env.Engine.Stats(env.Ctx)
	if stats.Level != 3 || stats.TotalPoints != 420 {
		t.Fatalf("stats seed not exposed: %+v", stats)
	}
}
