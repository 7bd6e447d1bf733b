package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jotdeck/jotdeck/internal/cache"
	"github.com/jotdeck/jotdeck/internal/engine"
	"github.com/jotdeck/jotdeck/internal/schema"
	"github.com/jotdeck/jotdeck/internal/ui"
)

func (c *cli) taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"t"},
		GroupID: "entries",
		Short:   "Manage the task board",
		Long: `Manage the task board.

Tasks live in one list with three columns: backlog, todo and in-progress.
Completion is tracked separately from the column.`,
	}
	cmd.AddCommand(c.taskAddCmd(), c.taskListCmd(), c.taskMoveCmd(), c.taskDoneCmd(), c.taskRmCmd())
	return cmd
}

func (c *cli) taskAddCmd() *cobra.Command {
	var (
		due, priority, status, description string
		interactive                        bool
	)
	cmd := &cobra.Command{
		Use:   "add [title...]",
		Short: "Add a task",
		Long: `Add a task to the board.

  jot task add "File taxes" --due "next friday 5pm" --priority high
  jot task add -i`,
		RunE: func(cmd *cobra.Command, args []string) error {
			task := schema.Task{
				Title:       strings.TrimSpace(strings.Join(args, " ")),
				Description: description,
				Priority:    schema.Priority(priority),
				Status:      schema.Status(status),
			}
			if interactive {
				var err error
				if due, err = taskForm(&task, due); err != nil {
					return err
				}
			}
			if task.Title == "" {
				return errors.New("a title is required")
			}
			if !task.Priority.IsValid() {
				return fmt.Errorf("invalid priority %q (want high, medium or low)", task.Priority)
			}
			if !task.Status.IsValid() {
				return fmt.Errorf("invalid status %q (want %s)", task.Status, statusNames())
			}
			if due != "" {
				if err := applyDue(&task, due, time.Now()); err != nil {
					return err
				}
			}

			err := c.withEngine(cmd, func(ctx context.Context, a *app) error {
				var err error
				task, err = a.eng.AddTask(task)
				return err
			})
			if err != nil {
				return err
			}
			c.success("Added task %s %s", ui.RenderMuted(task.ID), task.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&due, "due", "", `due date: YYYY-MM-DD or a phrase like "tomorrow 9am"`)
	cmd.Flags().StringVarP(&priority, "priority", "p", string(schema.PriorityMedium), "high, medium or low")
	cmd.Flags().StringVarP(&status, "status", "s", string(schema.StatusTodo), "board column: "+statusNames())
	cmd.Flags().StringVarP(&description, "description", "d", "", "longer description")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "fill in the task with a form")
	return cmd
}

// taskForm asks for the task fields and returns the due phrase entered.
func taskForm(t *schema.Task, due string) (string, error) {
	priority := string(t.Priority)
	status := string(t.Status)

	var statusOpts []huh.Option[string]
	for _, s := range schema.Statuses {
		statusOpts = append(statusOpts, huh.NewOption(string(s), string(s)))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Value(&t.Title).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("title is required")
					}
					return nil
				}),
			huh.NewText().
				Title("Description").
				Value(&t.Description),
			huh.NewSelect[string]().
				Title("Priority").
				Options(huh.NewOptions(string(schema.PriorityHigh), string(schema.PriorityMedium), string(schema.PriorityLow))...).
				Value(&priority),
			huh.NewSelect[string]().
				Title("Column").
				Options(statusOpts...).
				Value(&status),
			huh.NewInput().
				Title("Due").
				Placeholder("next friday 5pm").
				Value(&due).
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					_, _, err := parseWhen(s, time.Now())
					return err
				}),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("form cancelled: %w", err)
	}
	t.Title = strings.TrimSpace(t.Title)
	t.Priority = schema.Priority(priority)
	t.Status = schema.Status(status)
	return due, nil
}

func statusNames() string {
	names := make([]string, len(schema.Statuses))
	for i, s := range schema.Statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

func (c *cli) taskListCmd() *cobra.Command {
	var (
		status  string
		all     bool
		offline bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks by column",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && !schema.Status(status).IsValid() {
				return fmt.Errorf("invalid status %q (want %s)", status, statusNames())
			}
			if offline {
				return c.withCache(cmd, func(ctx context.Context, db *cache.DB) error {
					tasks, err := db.ListTasks(ctx, cache.TaskFilter{
						Status:           schema.Status(status),
						IncludeCompleted: all,
					})
					if err != nil {
						return err
					}
					c.printTasks(tasks)
					return nil
				})
			}
			return c.withEngine(cmd, func(ctx context.Context, a *app) error {
				var tasks []schema.Task
				for _, t := range a.eng.Tasks() {
					if status != "" && string(t.Status) != status {
						continue
					}
					if t.Completed && !all {
						continue
					}
					tasks = append(tasks, t)
				}
				c.printTasks(tasks)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "only this column")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include completed tasks")
	cmd.Flags().BoolVar(&offline, "offline", false, "read the local cache only")
	return cmd
}

// printTasks groups tasks by column, keeping their order within each.
func (c *cli) printTasks(tasks []schema.Task) {
	if len(tasks) == 0 {
		c.printf("%s\n", ui.RenderMuted("No tasks"))
		return
	}
	width := ui.Width()
	for _, s := range schema.Statuses {
		var lines []string
		for _, t := range tasks {
			if t.Status == s {
				lines = append(lines, "  "+ui.TaskLine(t, width))
			}
		}
		if len(lines) == 0 {
			continue
		}
		c.printf("%s %s\n%s\n", ui.Header(string(s)), ui.RenderMuted(fmt.Sprintf("(%d)", len(lines))), strings.Join(lines, "\n"))
	}
}

func (c *cli) taskMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <status>",
		Short: "Move a task to another column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := schema.Status(args[1])
			if !status.IsValid() {
				return fmt.Errorf("invalid status %q (want %s)", args[1], statusNames())
			}
			var task schema.Task
			err := c.withEngine(cmd, func(ctx context.Context, a *app) error {
				var err error
				task, err = a.eng.MoveTask(args[0], status)
				return err
			})
			if err != nil {
				return taskError(args[0], err)
			}
			c.success("Moved %s to %s", task.Title, status)
			return nil
		},
	}
}

func (c *cli) taskDoneCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var task schema.Task
			err := c.withEngine(cmd, func(ctx context.Context, a *app) error {
				var err error
				task, err = a.eng.SetTaskCompleted(args[0], !undo)
				return err
			})
			if err != nil {
				return taskError(args[0], err)
			}
			if undo {
				c.success("Reopened %s", task.Title)
			} else {
				c.success("Completed %s", task.Title)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "mark the task not completed")
	return cmd
}

func (c *cli) taskRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := c.withEngine(cmd, func(ctx context.Context, a *app) error {
				return a.eng.DeleteTask(args[0])
			})
			if err != nil {
				return taskError(args[0], err)
			}
			c.success("Deleted task %s", args[0])
			return nil
		},
	}
}

func taskError(id string, err error) error {
	if errors.Is(err, engine.ErrNoSuchTask) {
		return fmt.Errorf("no task with id %q (see 'jot task list --all')", id)
	}
	return err
}
