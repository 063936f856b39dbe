package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"pulseboard/internal/domain"
	"pulseboard/internal/engine"
	"pulseboard/internal/repo"
	"pulseboard/internal/view"
)

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

func registerStats(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "User stats snapshot",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.UserStats `json:"body"`
	}, error) {
		return &struct {
			Body domain.UserStats `json:"body"`
		}{Body: e.Stats(ctx)}, nil
	})
}

func registerTasks(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.CreateTask(ctx, taskOptions(input.Body, actorID(ctx)))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"todo,in-progress,completed" required:"false"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		tasks := e.ListTasks(ctx)
		if input.Status != "" {
			filtered := tasks[:0]
			for _, t := range tasks {
				if t.Status == input.Status {
					filtered = append(filtered, t)
				}
			}
			tasks = filtered
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-status",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/status",
		Summary:     "Set task status",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string               `path:"task_id"`
		Body   SetTaskStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.SetTaskStatus(ctx, input.TaskID, input.Body.Status, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-subtask",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/subtasks/{subtask_id}/toggle",
		Summary:     "Toggle subtask completion",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		TaskID    string `path:"task_id"`
		SubtaskID string `path:"subtask_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.ToggleSubtask(ctx, input.TaskID, input.SubtaskID, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/complete",
		Summary:     "Complete task and award points",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string              `path:"task_id"`
		Body   CompleteTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.CompleteTask(ctx, input.TaskID, input.Body.CompletedBy, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})
}

func registerSchedule(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-schedule",
		Method:      http.MethodGet,
		Path:        "/schedule",
		Summary:     "Tasks grouped by due date",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []view.DueDateGroup `json:"body"`
	}, error) {
		return &struct {
			Body []view.DueDateGroup `json:"body"`
		}{Body: view.GroupTasksByDueDate(e.ListTasks(ctx))}, nil
	})
}

func registerMembers(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-member",
		Method:        http.MethodPost,
		Path:          "/members",
		Summary:       "Register member",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateMemberRequest `json:"body"`
	}) (*struct {
		Body domain.Member `json:"body"`
	}, error) {
		m, err := e.CreateMember(ctx, engine.MemberCreateOptions{
			Name:       input.Body.Name,
			Avatar:     input.Body.Avatar,
			Department: input.Body.Department,
			Streak:     input.Body.Streak,
			ActorID:    actorID(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Member `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/members",
		Summary:     "List members",
	}, func(ctx context.Context, input *struct {
		Team string `query:"team" required:"false"`
	}) (*struct {
		Body []domain.Member `json:"body"`
	}, error) {
		members := view.FilterMembersByTeam(e.ListMembers(ctx), input.Team)
		return &struct {
			Body []domain.Member `json:"body"`
		}{Body: members}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-member",
		Method:      http.MethodGet,
		Path:        "/members/{member_id}",
		Summary:     "Get member",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MemberID string `path:"member_id"`
	}) (*struct {
		Body domain.Member `json:"body"`
	}, error) {
		m, err := e.GetMember(ctx, input.MemberID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Member `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "award-points",
		Method:      http.MethodPost,
		Path:        "/members/{member_id}/points",
		Summary:     "Award points to member",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		MemberID string             `path:"member_id"`
		Body     AwardPointsRequest `json:"body"`
	}) (*struct {
		Body domain.Member `json:"body"`
	}, error) {
		m, err := e.AwardPoints(ctx, input.MemberID, input.Body.Points, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Member `json:"body"`
		}{Body: m}, nil
	})
}

func registerLeaderboard(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-leaderboard",
		Method:      http.MethodGet,
		Path:        "/leaderboard",
		Summary:     "Members ranked by points",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Member `json:"body"`
	}, error) {
		return &struct {
			Body []domain.Member `json:"body"`
		}{Body: view.RankLeaderboard(e.ListMembers(ctx))}, nil
	})
}

func registerTeams(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-team",
		Method:        http.MethodPost,
		Path:          "/teams",
		Summary:       "Create team",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTeamRequest `json:"body"`
	}) (*struct {
		Body domain.Team `json:"body"`
	}, error) {
		t, err := e.CreateTeam(ctx, engine.TeamCreateOptions{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			ActorID:     actorID(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Team `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-teams",
		Method:      http.MethodGet,
		Path:        "/teams",
		Summary:     "Teams ranked by total points",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Team `json:"body"`
	}, error) {
		return &struct {
			Body []domain.Team `json:"body"`
		}{Body: view.RankTeams(e.ListTeams(ctx))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-team",
		Method:      http.MethodGet,
		Path:        "/teams/{team_id}",
		Summary:     "Get team with roster",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TeamID string `path:"team_id"`
	}) (*struct {
		Body engine.TeamDetail `json:"body"`
	}, error) {
		d, err := e.GetTeamDetail(ctx, input.TeamID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.TeamDetail `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-team-member",
		Method:      http.MethodPost,
		Path:        "/teams/{team_id}/members",
		Summary:     "Add member to team",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TeamID string               `path:"team_id"`
		Body   AddTeamMemberRequest `json:"body"`
	}) (*struct {
		Body domain.Team `json:"body"`
	}, error) {
		if input.Body.MemberID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "member_id is required", nil)
		}
		t, err := e.AddMemberToTeam(ctx, input.TeamID, input.Body.MemberID, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Team `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-team-member",
		Method:      http.MethodDelete,
		Path:        "/teams/{team_id}/members/{member_id}",
		Summary:     "Remove member from team",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		TeamID   string `path:"team_id"`
		MemberID string `path:"member_id"`
	}) (*struct {
		Body domain.Team `json:"body"`
	}, error) {
		t, err := e.RemoveMemberFromTeam(ctx, input.TeamID, input.MemberID, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Team `json:"body"`
		}{Body: t}, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest events",
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type" required:"false"`
		EntityKind string `query:"entity_kind" required:"false"`
		EntityID   string `query:"entity_id" required:"false"`
		Limit      int    `query:"limit" required:"false" minimum:"1" maximum:"500"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		evts, err := e.LatestEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: evts}, nil
	})
}
