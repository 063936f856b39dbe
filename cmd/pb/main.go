package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"pulseboard/internal/app"
	"pulseboard/internal/config"
	"pulseboard/internal/db"
	"pulseboard/internal/domain"
	"pulseboard/internal/engine"
	"pulseboard/internal/logger"
	"pulseboard/internal/migrate"
	"pulseboard/internal/repo"
	"pulseboard/internal/server"
	"pulseboard/internal/view"
)

var rootCmd = &cobra.Command{
	Use:   "pb",
	Short: "Pulseboard CLI",
	Long: `Pulseboard tracks tasks, subtasks, team rosters and a points leaderboard.
- Workspace: the .pulseboard directory holding the database; pulseboard.yml holds scoring config.
- Tasks: work items with priority-derived points; statuses go todo -> in-progress -> completed.
- Subtasks: a task cannot complete until every subtask is checked off.
- Members: the global registry behind the leaderboard; completing a task awards its points.
- Teams: rosters of member ids with derived totals; a member belongs to at most one team.
- Event log: diary of changes, view with 'pb log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load()
	viper.SetEnvPrefix("PULSEBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(leaderboardCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default pulseboard.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if err := app.InitWorkspace(workspace, name); err != nil {
				return err
			}
			fmt.Println("wrote", config.Path(workspace))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	return cmd
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Workspace config"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	})
	return cfgCmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskStartCmd())
	task.AddCommand(taskCompleteCmd())
	task.AddCommand(subtaskCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var title, desc, priority, due, assignee, team string
	var subtasks []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			subs, err := parseSubtaskSpecs(subtasks)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
					Title:        title,
					Description:  desc,
					Priority:     priority,
					DueDate:      due,
					Subtasks:     subs,
					AssignedTo:   assignee,
					AssignedTeam: team,
					ActorID:      viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "", "low|medium|high (default medium)")
	cmd.Flags().StringVar(&due, "due", "", "due date YYYY-MM-DD")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assigned member id")
	cmd.Flags().StringVar(&team, "team", "", "assigned team id")
	cmd.Flags().StringArrayVar(&subtasks, "subtask", nil, "subtask as title:hours, repeatable")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}

// parseSubtaskSpecs splits "title:hours" specs; the last colon separates
// the hour estimate so titles may contain colons.
func parseSubtaskSpecs(specs []string) ([]engine.SubTaskInput, error) {
	var subs []engine.SubTaskInput
	for _, raw := range specs {
		i := strings.LastIndex(raw, ":")
		if i <= 0 || i == len(raw)-1 {
			return nil, fmt.Errorf("subtask %q must be title:hours", raw)
		}
		hours, err := strconv.ParseFloat(raw[i+1:], 64)
		if err != nil {
			return nil, fmt.Errorf("subtask %q has invalid hours: %w", raw, err)
		}
		subs = append(subs, engine.SubTaskInput{Title: raw[:i], EstimatedHours: hours})
	}
	return subs, nil
}

func taskListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				tasks := e.ListTasks(ctx)
				if status != "" {
					kept := tasks[:0]
					for _, t := range tasks {
						if t.Status == status {
							kept = append(kept, t)
						}
					}
					tasks = kept
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Priority", "Due", "Status", "Points", "Subtasks"})
				now := time.Now()
				for _, t := range tasks {
					due := t.DueDate
					if view.IsOverdue(t, now) {
						due += " (overdue)"
					}
					done := 0
					for _, s := range t.Subtasks {
						if s.Completed {
							done++
						}
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Priority, due, t.Status, t.Points,
						fmt.Sprintf("%d/%d", done, len(t.Subtasks))})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <task-id>",
		Short: "Move a task to in-progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.SetTaskStatus(ctx, args[0], domain.StatusInProgress, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskCompleteCmd() *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Complete a task and award its points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.CompleteTask(ctx, args[0], by, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "member recorded as the completer (points go to the assignee)")
	return cmd
}

func subtaskCmd() *cobra.Command {
	sub := &cobra.Command{Use: "subtask", Short: "Manage subtasks"}
	sub.AddCommand(&cobra.Command{
		Use:   "toggle <task-id> <subtask-id>",
		Short: "Toggle a subtask's completion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.ToggleSubtask(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	})
	return sub
}

func memberCmd() *cobra.Command {
	member := &cobra.Command{Use: "member", Short: "Manage members"}
	member.AddCommand(memberCreateCmd())
	member.AddCommand(memberListCmd())
	member.AddCommand(memberShowCmd())
	member.AddCommand(memberAwardCmd())
	return member
}

func memberCreateCmd() *cobra.Command {
	var name, avatar, department string
	var streak int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				m, err := e.CreateMember(ctx, engine.MemberCreateOptions{
					Name:       name,
					Avatar:     avatar,
					Department: department,
					Streak:     streak,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "member name")
	cmd.Flags().StringVar(&avatar, "avatar", "", "avatar")
	cmd.Flags().StringVar(&department, "department", "", "department")
	cmd.Flags().IntVar(&streak, "streak", 0, "current streak")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func memberListCmd() *cobra.Command {
	var team string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				members := view.FilterMembersByTeam(e.ListMembers(ctx), team)
				if viper.GetBool("json") {
					return printJSON(members)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Points", "Completed", "Streak", "Department", "Team"})
				for _, m := range members {
					teamID := ""
					if m.TeamID != nil {
						teamID = *m.TeamID
					}
					tw.AppendRow(table.Row{m.ID, m.Name, m.Points, m.TasksCompleted, m.Streak, m.Department, teamID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "team id filter (\"none\" clears the filter)")
	return cmd
}

func memberShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <member-id>",
		Short: "Show a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				m, err := e.GetMember(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func memberAwardCmd() *cobra.Command {
	var points int
	cmd := &cobra.Command{
		Use:   "award <member-id>",
		Short: "Award points directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				m, err := e.AwardPoints(ctx, args[0], points, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().IntVar(&points, "points", 0, "points to award")
	_ = cmd.MarkFlagRequired("points")
	return cmd
}

func teamCmd() *cobra.Command {
	team := &cobra.Command{Use: "team", Short: "Manage teams"}
	team.AddCommand(teamCreateCmd())
	team.AddCommand(teamListCmd())
	team.AddCommand(teamShowCmd())
	team.AddCommand(teamAddCmd())
	team.AddCommand(teamRemoveCmd())
	return team
}

func teamCreateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.CreateTeam(ctx, engine.TeamCreateOptions{
					Name:        name,
					Description: desc,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "team name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func teamListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List teams ranked by total points",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				teams := view.RankTeams(e.ListTeams(ctx))
				if viper.GetBool("json") {
					return printJSON(teams)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Rank", "ID", "Name", "Members", "Total points", "Avg completion"})
				for i, t := range teams {
					tw.AppendRow(table.Row{i + 1, t.ID, t.Name, t.MemberCount, t.TotalPoints, t.AvgTaskCompletion})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func teamShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <team-id>",
		Short: "Show a team with its roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				d, err := e.GetTeamDetail(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func teamAddCmd() *cobra.Command {
	var member string
	cmd := &cobra.Command{
		Use:   "add <team-id>",
		Short: "Add a member to a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.AddMemberToTeam(ctx, args[0], member, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&member, "member", "", "member id")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func teamRemoveCmd() *cobra.Command {
	var member string
	cmd := &cobra.Command{
		Use:   "remove <team-id>",
		Short: "Remove a member from a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.RemoveMemberFromTeam(ctx, args[0], member, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&member, "member", "", "member id")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func leaderboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Members ranked by points",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				ranked := view.RankLeaderboard(e.ListMembers(ctx))
				if viper.GetBool("json") {
					return printJSON(ranked)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Rank", "Name", "Points", "Completed", "Streak"})
				for i, m := range ranked {
					tw.AppendRow(table.Row{i + 1, m.Name, m.Points, m.TasksCompleted, m.Streak})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Tasks grouped by due date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				groups := view.GroupTasksByDueDate(e.ListTasks(ctx))
				if viper.GetBool("json") {
					return printJSON(groups)
				}
				for _, g := range groups {
					fmt.Println(g.Label)
					for _, t := range g.Tasks {
						fmt.Printf("  %s [%s] %s\n", t.ID, t.Status, t.Title)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "User stats snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return printJSONOrTable(e.Stats(ctx))
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: task changes, awards, roster moves.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				events, err := e.LatestEvents(ctx, repo.EventFilters{
					Type:       evtType,
					EntityKind: entityKind,
					EntityID:   entityID,
					Limit:      n,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath, logLevel string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			eng, closeFn, err := app.OpenEngine(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer closeFn()
			log := logger.New(logger.Config{Level: logLevel})
			defer log.Sync()
			if v, err := migrate.Version(eng.DB); err == nil {
				log.Info("database ready", zap.Int("schema_version", v))
			}
			handler, err := server.New(server.Config{Engine: eng, BasePath: basePath, Logger: log})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Pulseboard API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "zap log level")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	eng, closeFn, err := app.OpenEngine(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, eng)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
