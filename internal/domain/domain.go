package domain

// Task statuses.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// NoTeam is the sentinel callers pass to mean "no team filter".
const NoTeam = "none"

type SubTask struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Completed      bool    `json:"completed"`
	EstimatedHours float64 `json:"estimated_hours"`
}

type Task struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Priority     string    `json:"priority" enum:"low,medium,high"`
	DueDate      string    `json:"due_date,omitempty" format:"date"`
	Status       string    `json:"status" enum:"todo,in-progress,completed"`
	Points       int       `json:"points"`
	Subtasks     []SubTask `json:"subtasks,omitempty"`
	AssignedTo   *string   `json:"assigned_to,omitempty"`
	AssignedTeam *string   `json:"assigned_team,omitempty"`
	CompletedBy  *string   `json:"completed_by,omitempty"`
	CompletedAt  *string   `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt    string    `json:"created_at" format:"date-time"`
	UpdatedAt    string    `json:"updated_at" format:"date-time"`
}

// SubtasksDone reports whether every subtask has been checked off.
// A task without subtasks counts as done.
func (t Task) SubtasksDone() bool {
	for _, s := range t.Subtasks {
		if !s.Completed {
			return false
		}
	}
	return true
}

// Member is a leaderboard entry in the global member registry. Streak is
// maintained by an external process; this core only stores it.
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

// Team holds member ids, never member copies; all point and count fields
// are read through the member registry and the aggregates below are
// recomputed whenever the roster or a member's points change.
type Team struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	MemberIDs         []string `json:"member_ids"`
	TotalPoints       int      `json:"total_points"`
	MemberCount       int      `json:"member_count"`
	AvgTaskCompletion int      `json:"avg_task_completion"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
}

// HasMember reports whether the member id is on the roster.
func (t Team) HasMember(memberID string) bool {
	for _, id := range t.MemberIDs {
		if id == memberID {
			return true
		}
	}
	return false
}

// UserStats is the read-only gamification snapshot for the viewing user.
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

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Snapshot is the full entity state exchanged with the persistence layer:
// loaded once at start, written back after each mutation.
type Snapshot struct {
	Tasks   []Task   `json:"tasks"`
	Members []Member `json:"members"`
	Teams   []Team   `json:"teams"`
}
