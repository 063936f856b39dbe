package server

import "pulseboard/internal/engine"

// Request payloads. Responses reuse the domain types directly; their
// JSON tags are the wire shape.

type SubTaskSuggestion struct {
	Title          string  `json:"title"`
	EstimatedHours float64 `json:"estimated_hours"`
}

type CreateTaskRequest struct {
	Title        string              `json:"title"`
	Description  string              `json:"description,omitempty"`
	Priority     string              `json:"priority,omitempty" enum:"low,medium,high"`
	DueDate      string              `json:"due_date" format:"date"`
	Subtasks     []SubTaskSuggestion `json:"subtasks,omitempty"`
	AssignedTo   string              `json:"assigned_to,omitempty"`
	AssignedTeam string              `json:"assigned_team,omitempty"`
}

type SetTaskStatusRequest struct {
	Status string `json:"status" enum:"todo,in-progress,completed"`
}

type CompleteTaskRequest struct {
	CompletedBy string `json:"completed_by,omitempty"`
}

type CreateMemberRequest struct {
	Name       string `json:"name"`
	Avatar     string `json:"avatar,omitempty"`
	Department string `json:"department,omitempty"`
	Streak     int    `json:"streak,omitempty" minimum:"0"`
}

type AwardPointsRequest struct {
	Points int `json:"points" minimum:"1"`
}

type CreateTeamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type AddTeamMemberRequest struct {
	MemberID string `json:"member_id"`
}

func taskOptions(req CreateTaskRequest, actor string) engine.TaskCreateOptions {
	opts := engine.TaskCreateOptions{
		Title:        req.Title,
		Description:  req.Description,
		Priority:     req.Priority,
		DueDate:      req.DueDate,
		AssignedTo:   req.AssignedTo,
		AssignedTeam: req.AssignedTeam,
		ActorID:      actor,
	}
	for _, s := range req.Subtasks {
		opts.Subtasks = append(opts.Subtasks, engine.SubTaskInput{
			Title:          s.Title,
			EstimatedHours: s.EstimatedHours,
		})
	}
	return opts
}
