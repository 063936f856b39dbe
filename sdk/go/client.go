package pulseboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Pulseboard HTTP API client.
type Client struct {
	BaseURL    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// SubTask is one checklist entry on a task.
type SubTask struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Completed      bool    `json:"completed"`
	EstimatedHours float64 `json:"estimated_hours"`
}

// SubTaskSuggestion is a subtask attached at task creation.
type SubTaskSuggestion struct {
	Title          string  `json:"title"`
	EstimatedHours float64 `json:"estimated_hours"`
}

// Task represents the API task model.
type Task struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Priority     string    `json:"priority"`
	DueDate      string    `json:"due_date,omitempty"`
	Status       string    `json:"status"`
	Points       int       `json:"points"`
	Subtasks     []SubTask `json:"subtasks,omitempty"`
	AssignedTo   *string   `json:"assigned_to,omitempty"`
	AssignedTeam *string   `json:"assigned_team,omitempty"`
	CompletedBy  *string   `json:"completed_by,omitempty"`
	CompletedAt  *string   `json:"completed_at,omitempty"`
	CreatedAt    string    `json:"created_at"`
	UpdatedAt    string    `json:"updated_at"`
}

// Member is a leaderboard entry.
type Member struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Avatar         string  `json:"avatar,omitempty"`
	Points         int     `json:"points"`
	TasksCompleted int     `json:"tasks_completed"`
	Streak         int     `json:"streak"`
	Department     string  `json:"department,omitempty"`
	TeamID         *string `json:"team_id,omitempty"`
}

// Team is a roster with derived aggregates.
type Team struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	MemberIDs         []string `json:"member_ids"`
	TotalPoints       int      `json:"total_points"`
	MemberCount       int      `json:"member_count"`
	AvgTaskCompletion int      `json:"avg_task_completion"`
	CreatedAt         string   `json:"created_at"`
}

// TeamDetail is a team hydrated with its roster.
type TeamDetail struct {
	Team    Team     `json:"team"`
	Members []Member `json:"members"`
}

// DueDateGroup is one schedule bucket.
type DueDateGroup struct {
	Label string `json:"label"`
	Tasks []Task `json:"tasks"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// UserStats is the gamification snapshot.
type UserStats struct {
	TotalPoints       int      `json:"total_points"`
	CurrentStreak     int      `json:"current_streak"`
	LongestStreak     int      `json:"longest_streak"`
	TasksCompleted    int      `json:"tasks_completed"`
	OnTimeRate        int      `json:"on_time_rate"`
	Level             int      `json:"level"`
	PointsToNextLevel int      `json:"points_to_next_level"`
	Badges            []string `json:"badges,omitempty"`
}

// CreateTaskRequest is the task creation payload.
type CreateTaskRequest struct {
	Title        string              `json:"title"`
	Description  string              `json:"description,omitempty"`
	Priority     string              `json:"priority,omitempty"`
	DueDate      string              `json:"due_date"`
	Subtasks     []SubTaskSuggestion `json:"subtasks,omitempty"`
	AssignedTo   string              `json:"assigned_to,omitempty"`
	AssignedTeam string              `json:"assigned_team,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, req CreateTaskRequest) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", req, &resp)
	return resp, err
}

// Tasks lists tasks, optionally filtered by status.
func (c *Client) Tasks(ctx context.Context, status string) ([]Task, error) {
	endpoint := "tasks"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Task fetches one task.
func (c *Client) Task(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// SetTaskStatus moves a task through its lifecycle.
func (c *Client) SetTaskStatus(ctx context.Context, id, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(id)+"/status", map[string]any{"status": status}, &resp)
	return resp, err
}

// ToggleSubtask flips a subtask's completed flag.
func (c *Client) ToggleSubtask(ctx context.Context, taskID, subtaskID string) (Task, error) {
	endpoint := fmt.Sprintf("tasks/%s/subtasks/%s/toggle", url.PathEscape(taskID), url.PathEscape(subtaskID))
	var resp Task
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// CompleteTask completes a task, recording completedBy when set. The
// point award goes to the task's assignee.
func (c *Client) CompleteTask(ctx context.Context, taskID, completedBy string) (Task, error) {
	body := map[string]any{}
	if completedBy != "" {
		body["completed_by"] = completedBy
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/complete", body, &resp)
	return resp, err
}

// Schedule returns tasks grouped by due date.
func (c *Client) Schedule(ctx context.Context) ([]DueDateGroup, error) {
	var resp []DueDateGroup
	err := c.do(ctx, http.MethodGet, "schedule", nil, &resp)
	return resp, err
}

// CreateMember registers a member.
func (c *Client) CreateMember(ctx context.Context, name, avatar, department string) (Member, error) {
	body := map[string]any{"name": name}
	if avatar != "" {
		body["avatar"] = avatar
	}
	if department != "" {
		body["department"] = department
	}
	var resp Member
	err := c.do(ctx, http.MethodPost, "members", body, &resp)
	return resp, err
}

// Members lists members, optionally filtered by team id.
func (c *Client) Members(ctx context.Context, teamID string) ([]Member, error) {
	endpoint := "members"
	if teamID != "" {
		endpoint += "?team=" + url.QueryEscape(teamID)
	}
	var resp []Member
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AwardPoints grants points to a member.
func (c *Client) AwardPoints(ctx context.Context, memberID string, points int) (Member, error) {
	var resp Member
	err := c.do(ctx, http.MethodPost, "members/"+url.PathEscape(memberID)+"/points", map[string]any{"points": points}, &resp)
	return resp, err
}

// Leaderboard returns members ranked by points.
func (c *Client) Leaderboard(ctx context.Context) ([]Member, error) {
	var resp []Member
	err := c.do(ctx, http.MethodGet, "leaderboard", nil, &resp)
	return resp, err
}

// CreateTeam creates a team.
func (c *Client) CreateTeam(ctx context.Context, name, description string) (Team, error) {
	body := map[string]any{"name": name}
	if description != "" {
		body["description"] = description
	}
	var resp Team
	err := c.do(ctx, http.MethodPost, "teams", body, &resp)
	return resp, err
}

// Teams returns teams ranked by total points.
func (c *Client) Teams(ctx context.Context) ([]Team, error) {
	var resp []Team
	err := c.do(ctx, http.MethodGet, "teams", nil, &resp)
	return resp, err
}

// Team fetches a team with its roster.
func (c *Client) Team(ctx context.Context, id string) (TeamDetail, error) {
	var resp TeamDetail
	err := c.do(ctx, http.MethodGet, "teams/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// AddTeamMember puts a member on a roster.
func (c *Client) AddTeamMember(ctx context.Context, teamID, memberID string) (Team, error) {
	var resp Team
	err := c.do(ctx, http.MethodPost, "teams/"+url.PathEscape(teamID)+"/members", map[string]any{"member_id": memberID}, &resp)
	return resp, err
}

// RemoveTeamMember takes a member off a roster.
func (c *Client) RemoveTeamMember(ctx context.Context, teamID, memberID string) (Team, error) {
	endpoint := fmt.Sprintf("teams/%s/members/%s", url.PathEscape(teamID), url.PathEscape(memberID))
	var resp Team
	err := c.do(ctx, http.MethodDelete, endpoint, nil, &resp)
	return resp, err
}

// Stats returns the user stats snapshot.
func (c *Client) Stats(ctx context.Context) (UserStats, error) {
	var resp UserStats
	err := c.do(ctx, http.MethodGet, "stats", nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
