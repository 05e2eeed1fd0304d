package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskdesk/internal/config"
	"taskdesk/internal/db"
	"taskdesk/internal/engine"
	"taskdesk/internal/migrate"
	"taskdesk/internal/repo"
	"taskdesk/internal/server"
	"taskdesk/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "taskdesk",
	Short: "Taskdesk CLI",
	Long: `Taskdesk tracks assigned work from handout to sign-off.
- Workspace: the directory holding the database, uploads, and config.yaml.
- Users register and wait for admin approval; the first user becomes admin.
- Departments group users; assigning a task to a department fans out to its members.
- Assignments flow pending -> accepted -> in_progress -> completed (or declined).
- Completions are the written report for an assignment; they need a real
  work description and evidence files before submission, then get reviewed.
- Proposals pitch new work; an approved proposal can spawn a plan with subtasks.`,
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
	viper.SetEnvPrefix("TASKDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting user id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(departmentCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(assignCmd())
	rootCmd.AddCommand(completionCmd())
	rootCmd.AddCommand(proposalCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apiKeyCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				authCfg := server.AuthConfig{JWTSecret: os.Getenv("TASKDESK_JWT_SECRET")}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("TASKDESK_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Context: ctx})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Taskdesk API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show workspace counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.AdminStats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("Users: %d (%d approved)\n", s.TotalUsers, s.ApprovedUsers)
				fmt.Println("Tasks:")
				for status, c := range s.TasksByStatus {
					fmt.Printf("  %s: %d\n", status, c)
				}
				fmt.Println("Assignments:")
				for status, c := range s.AssignByStatus {
					fmt.Printf("  %s: %d\n", status, c)
				}
				fmt.Println("Proposals:")
				for status, c := range s.ProposalByStatus {
					fmt.Printf("  %s: %d\n", status, c)
				}
				return nil
			})
		},
	}
}

func userCmd() *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	user.AddCommand(userListCmd())
	user.AddCommand(userApproveCmd(true))
	user.AddCommand(userApproveCmd(false))
	user.AddCommand(userRoleCmd())
	user.AddCommand(userDepartmentsCmd())
	user.AddCommand(userDeleteCmd())
	return user
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role", "Approved"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Email, u.Role, u.Approved})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func userApproveCmd(approve bool) *cobra.Command {
	use, short := "approve <user-id>", "Approve a pending account"
	if !approve {
		use, short = "reject <user-id>", "Reject or suspend an account"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.SetUserApproval(ctx, args[0], approve, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
}

func userRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role <user-id> <admin|user>",
		Short: "Set a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.SetUserRole(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
}

func userDepartmentsCmd() *cobra.Command {
	var departments []string
	cmd := &cobra.Command{
		Use:   "departments <user-id>",
		Short: "Replace a user's department memberships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.SetUserDepartments(ctx, args[0], departments, viper.GetString("actor-id")); err != nil {
					return err
				}
				ids, err := e.Repo.ListUserDepartments(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(ids)
			})
		},
	}
	cmd.Flags().StringArrayVar(&departments, "department", []string{}, "department id (repeatable, empty clears all)")
	return cmd
}

func userDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteUser(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func departmentCmd() *cobra.Command {
	dept := &cobra.Command{
		Use:   "department",
		Short: "Manage departments",
	}
	dept.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List departments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListDepartments(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Description"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.ID, d.Name, d.Description})
				}
				tw.Render()
				return nil
			})
		},
	})
	var name, description string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a department",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.CreateDepartment(ctx, name, description, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "department name")
	create.Flags().StringVar(&description, "description", "", "description")
	_ = create.MarkFlagRequired("name")
	dept.AddCommand(create)
	dept.AddCommand(&cobra.Command{
		Use:   "delete <department-id>",
		Short: "Delete a department",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteDepartment(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	})
	dept.AddCommand(&cobra.Command{
		Use:   "members <department-id>",
		Short: "List member user ids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				members, err := r.ListDepartmentMembers(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(members)
			})
		},
	})
	return dept
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(subtaskCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority (low, medium, high, urgent)")
	cmd.Flags().StringVar(&opts.Category, "category", "task", "category (task, plan)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Category", "Priority"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Category, t.Priority})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	return cmd
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a task with its subtasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				subtasks, err := e.Repo.ListSubtasks(ctx, t.ID)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"task": t, "subtasks": subtasks})
			})
		},
	}
}

func taskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Set task status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetTaskStatus(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task and its children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTask(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func subtaskCmd() *cobra.Command {
	sub := &cobra.Command{
		Use:   "subtask",
		Short: "Manage subtasks",
	}
	var assignee, due string
	add := &cobra.Command{
		Use:   "add <task-id> <title>",
		Short: "Add a subtask",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CreateSubtask(ctx, args[0], args[1], assignee, due, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}
	add.Flags().StringVar(&assignee, "assignee-id", "", "assignee user id")
	add.Flags().StringVar(&due, "due", "", "due date (RFC 3339)")
	sub.AddCommand(add)
	sub.AddCommand(&cobra.Command{
		Use:   "status <subtask-id> <status>",
		Short: "Step a subtask's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.SetSubtaskStatus(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	})
	return sub
}

func assignCmd() *cobra.Command {
	assign := &cobra.Command{
		Use:   "assign",
		Short: "Manage assignments",
	}
	var opts engine.AssignmentCreateOptions
	create := &cobra.Command{
		Use:   "create",
		Short: "Assign a task to users and/or departments",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.AssignedBy = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.CreateAssignments(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	}
	create.Flags().StringVar(&opts.TaskID, "task", "", "task id")
	create.Flags().StringArrayVar(&opts.UserIDs, "user", []string{}, "user id (repeatable)")
	create.Flags().StringArrayVar(&opts.DepartmentIDs, "department", []string{}, "department id (repeatable)")
	create.Flags().StringVar(&opts.Deadline, "deadline", "", "deadline (RFC 3339)")
	create.Flags().StringVar(&opts.Priority, "priority", "", "priority")
	create.Flags().StringVar(&opts.Notes, "notes", "", "notes for assignees")
	_ = create.MarkFlagRequired("task")
	_ = create.MarkFlagRequired("deadline")
	assign.AddCommand(create)

	var f repo.AssignmentFilters
	list := &cobra.Command{
		Use:   "list",
		Short: "List assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAssignments(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Task", "User", "Status", "Deadline", "Overdue"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.TaskID, a.UserID, a.Status, a.Deadline, e.Overdue(a)})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&f.TaskID, "task", "", "task filter")
	list.Flags().StringVar(&f.UserID, "user", "", "assignee filter")
	list.Flags().StringVar(&f.Status, "status", "", "status filter")
	list.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	assign.AddCommand(list)

	assign.AddCommand(&cobra.Command{
		Use:   "status <assignment-id> <status>",
		Short: "Accept, decline, start, or complete an assignment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.SetAssignmentStatus(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	})
	return assign
}

func completionCmd() *cobra.Command {
	comp := &cobra.Command{
		Use:   "completion",
		Short: "Review completion reports",
	}
	var f repo.CompletionFilters
	list := &cobra.Command{
		Use:   "list",
		Short: "List submitted completions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListReviewable(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Assignment", "User", "Progress", "Status"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.AssignmentID, c.UserID, c.ProgressPercentage, c.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&f.Status, "status", "", "status filter")
	list.Flags().StringVar(&f.Search, "search", "", "search work descriptions")
	list.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	comp.AddCommand(list)

	var comment string
	review := &cobra.Command{
		Use:   "review <completion-id> <approved|revision_requested|rejected>",
		Short: "Review a submitted completion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.ReviewCompletion(ctx, args[0], args[1], comment, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	review.Flags().StringVar(&comment, "comment", "", "review comment (required for rejection and revision)")
	comp.AddCommand(review)
	return comp
}

func proposalCmd() *cobra.Command {
	prop := &cobra.Command{
		Use:   "proposal",
		Short: "Manage proposals",
	}
	var f repo.ProposalFilters
	list := &cobra.Command{
		Use:   "list",
		Short: "List proposals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProposals(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Author", "Status"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.UserID, p.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&f.UserID, "user", "", "author filter")
	list.Flags().StringVar(&f.Status, "status", "", "status filter")
	list.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	prop.AddCommand(list)

	prop.AddCommand(&cobra.Command{
		Use:   "get <proposal-id>",
		Short: "Show a proposal with comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetProposal(ctx, args[0])
				if err != nil {
					return err
				}
				comments, err := r.ListProposalComments(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"proposal": p, "comments": comments})
			})
		},
	})

	var feedback, planDue string
	var planAssignees []string
	var generatePlan bool
	review := &cobra.Command{
		Use:   "review <proposal-id> <approved|rejected|changes_requested>",
		Short: "Review a submitted proposal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ReviewProposal(ctx, engine.ProposalReview{
					ProposalID: args[0],
					Verdict:    args[1],
					Feedback:   feedback,
					ReviewerID: viper.GetString("actor-id"),
					Plan: engine.PlanSpec{
						Generate:  generatePlan,
						Assignees: planAssignees,
						DueDate:   planDue,
					},
				})
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	review.Flags().StringVar(&feedback, "feedback", "", "feedback (required for rejection and changes)")
	review.Flags().BoolVar(&generatePlan, "generate-plan", false, "spawn a plan on approval")
	review.Flags().StringArrayVar(&planAssignees, "plan-assignee", []string{}, "plan subtask assignee (repeatable)")
	review.Flags().StringVar(&planDue, "plan-due", "", "plan subtask due date (RFC 3339)")
	prop.AddCommand(review)
	return prop
}

func logCmd() *cobra.Command {
	logRoot := &cobra.Command{
		Use:   "log",
		Short: "Inspect the event log",
	}
	var limit int
	var entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, limit, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + "/" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&limit, "limit", 50, "max events")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	logRoot.AddCommand(tail)
	return logRoot
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	var name string
	create := &cobra.Command{
		Use:   "create <user-id>",
		Short: "Mint an API key; the raw key is printed once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, raw, err := e.CreateAPIKey(ctx, args[0], name)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"id": key.ID, "name": key.Name, "key": raw})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "cli", "key label")
	keys.AddCommand(create)
	return keys
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	store, err := storage.Open(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg, store)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
