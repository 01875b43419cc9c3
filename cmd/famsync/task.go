package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/mschirtzinger/famtasks/internal/model"
	"github.com/mschirtzinger/famtasks/internal/ui"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "data",
	Short:   "Create, list, complete and delete tasks",
	Long: `Work with tasks through the sync engine.

Every change is applied to the local cache first. When the remote store is
reachable it is written through immediately; otherwise it is queued and
delivered by the next sync.`,
}

var taskAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Create a task",
	Example: `  famsync task add "Take out the trash" --due "tomorrow 7pm"
  famsync task add --interactive`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		interactive, _ := cmd.Flags().GetBool("interactive")
		input := taskInput{}
		input.Description, _ = cmd.Flags().GetString("description")
		input.Due, _ = cmd.Flags().GetString("due")
		input.Category, _ = cmd.Flags().GetString("category")
		input.Priority, _ = cmd.Flags().GetString("priority")
		input.Private, _ = cmd.Flags().GetBool("private")
		if len(args) == 1 {
			input.Title = args[0]
		}

		if interactive {
			if err := input.form().Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return
				}
				fatalf("form failed: %v", err)
			}
		}
		if strings.TrimSpace(input.Title) == "" {
			fatalf("a title is required (pass it as an argument or use --interactive)")
		}

		now := time.Now()
		due, err := parseDue(input.Due, now)
		if err != nil {
			fatalf("%v", err)
		}

		withEngine(func(ctx context.Context, rt *runtime) {
			task := model.Task{
				Title:         strings.TrimSpace(input.Title),
				Description:   input.Description,
				Category:      input.Category,
				Priority:      input.Priority,
				UserID:        rt.cfg.User.ID,
				CreatedBy:     rt.cfg.User.ID,
				CreatedByName: rt.cfg.User.Name,
				FamilyID:      rt.cfg.User.FamilyID,
				Private:       input.Private,
			}
			if due != nil {
				task.DueDate = due
				if due.Hour() != 0 || due.Minute() != 0 {
					task.DueTime = due
				}
			}
			saved, err := rt.engine.SaveTask(ctx, task)
			if err != nil {
				rt.close(context.Background())
				fatalf("%v", err)
			}
			recordHistory(ctx, rt, saved, model.ActionCreated)
			fmt.Printf("%s Created %s %s%s\n", ui.RenderPass("✓"), ui.RenderMuted(shortID(saved.ID)), saved.Title, queuedSuffix(rt))
		})
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached tasks",
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		withEngine(func(ctx context.Context, rt *runtime) {
			tasks := rt.store.GetTasksForScope(rt.cfg.User.ID, rt.cfg.User.FamilyID)
			tasks = filterTasks(tasks, all)
			if len(tasks) == 0 {
				fmt.Printf("%s No tasks\n", ui.RenderPass("✓"))
				return
			}
			width := ui.Width() - 40
			if width < 20 {
				width = 20
			}
			for _, t := range tasks {
				fmt.Println(formatTask(t, width))
			}
		})
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withEngine(func(ctx context.Context, rt *runtime) {
			task, err := findTask(rt.store.GetTasksForScope(rt.cfg.User.ID, rt.cfg.User.FamilyID), args[0])
			if err != nil {
				rt.close(context.Background())
				fatalf("%v", err)
			}
			now := time.Now()
			task.Completed = true
			task.Status = model.StatusCompleted
			task.CompletedAt = &now
			task.EditedBy = rt.cfg.User.ID
			task.EditedByName = rt.cfg.User.Name
			task.EditedAt = &now

			saved, err := rt.engine.SaveTask(ctx, task)
			if err != nil {
				rt.close(context.Background())
				fatalf("%v", err)
			}
			recordHistory(ctx, rt, saved, model.ActionCompleted)
			fmt.Printf("%s Completed %s%s\n", ui.RenderPass("✓"), saved.Title, queuedSuffix(rt))
		})
	},
}

var taskRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withEngine(func(ctx context.Context, rt *runtime) {
			task, err := findTask(rt.store.GetTasksForScope(rt.cfg.User.ID, rt.cfg.User.FamilyID), args[0])
			if err != nil {
				rt.close(context.Background())
				fatalf("%v", err)
			}
			if err := rt.engine.DeleteTask(ctx, task.ID); err != nil {
				rt.close(context.Background())
				fatalf("%v", err)
			}
			recordHistory(ctx, rt, task, model.ActionDeleted)
			fmt.Printf("%s Deleted %s%s\n", ui.RenderPass("✓"), task.Title, queuedSuffix(rt))
		})
	},
}

// taskInput holds the fields of `task add`, from flags or the form.
type taskInput struct {
	Title       string
	Description string
	Due         string
	Category    string
	Priority    string
	Private     bool
}

func (in *taskInput) form() *huh.Form {
	if in.Priority == "" {
		in.Priority = "medium"
	}
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Title").
			Value(&in.Title).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("title is required")
				}
				return nil
			}),
		huh.NewText().
			Title("Description").
			Value(&in.Description),
		huh.NewInput().
			Title("Due").
			Placeholder("tomorrow 5pm, next friday, 2026-11-02").
			Value(&in.Due).
			Validate(func(s string) error {
				_, err := parseDue(s, time.Now())
				return err
			}),
		huh.NewInput().
			Title("Category").
			Value(&in.Category),
		huh.NewSelect[string]().
			Title("Priority").
			Options(
				huh.NewOption("Low", "low"),
				huh.NewOption("Medium", "medium"),
				huh.NewOption("High", "high"),
			).
			Value(&in.Priority),
		huh.NewConfirm().
			Title("Private?").
			Description("Private tasks are never shared with the family").
			Value(&in.Private),
	))
}

var dueParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDue accepts an ISO date (2006-01-02), an ISO date and time
// (2006-01-02 15:04) or natural language relative to now. An empty string
// means no due date.
func parseDue(s string, now time.Time) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return &t, nil
		}
	}
	r, err := dueParser.Parse(s, now)
	if err != nil {
		return nil, fmt.Errorf("failed to parse due date %q: %w", s, err)
	}
	if r == nil {
		return nil, fmt.Errorf("%w: cannot understand due date %q", model.ErrInvalidArgument, s)
	}
	t := r.Time
	return &t, nil
}

// findTask resolves ref as a full id or a unique id prefix.
func findTask(tasks []model.Task, ref string) (model.Task, error) {
	var matches []model.Task
	for _, t := range tasks {
		if t.ID == ref {
			return t, nil
		}
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return model.Task{}, fmt.Errorf("task %s: %w", ref, model.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return model.Task{}, fmt.Errorf("%w: %q matches %d tasks", model.ErrInvalidArgument, ref, len(matches))
	}
}

// filterTasks drops completed tasks unless all is set and orders the rest
// by due date, undated last, then title.
func filterTasks(tasks []model.Task, all bool) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if !all && t.Completed {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].DueDate, out[j].DueDate
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].Title < out[j].Title
	})
	return out
}

func formatTask(t model.Task, width int) string {
	marker := "○"
	if t.Completed {
		marker = ui.RenderPass("●")
	}
	line := fmt.Sprintf("%s %s %s", marker, ui.RenderMuted(shortID(t.ID)), ui.Truncate(t.Title, width))
	if t.DueDate != nil {
		due := t.DueDate.Local().Format("Mon Jan 2")
		if t.DueTime != nil {
			due += t.DueTime.Local().Format(" 15:04")
		}
		line += "  " + ui.RenderAccent(due)
	}
	if t.Private {
		line += "  " + ui.RenderMuted("private")
	}
	return line
}

func recordHistory(ctx context.Context, rt *runtime, task model.Task, action model.HistoryAction) {
	_, err := rt.engine.AddHistoryItem(ctx, model.HistoryItem{
		TaskID:    task.ID,
		TaskTitle: task.Title,
		Action:    action,
		UserName:  rt.cfg.User.Name,
		FamilyID:  task.FamilyID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record history: %v\n", err)
	}
}

func queuedSuffix(rt *runtime) string {
	if pending, _ := rt.engine.Queue().Counts(); pending > 0 {
		return ui.RenderWarn(fmt.Sprintf(" (queued, %d pending)", pending))
	}
	return ""
}

// withEngine opens the runtime without starting the engine, runs fn and
// closes everything.
func withEngine(fn func(ctx context.Context, rt *runtime)) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := openRuntime(ctx, runtimeOptions{})
	if err != nil {
		fatalf("%v", err)
	}
	fn(ctx, rt)
	rt.close(context.Background())
}

func init() {
	taskAddCmd.Flags().StringP("description", "d", "", "task description")
	taskAddCmd.Flags().String("due", "", `due date, e.g. "2026-11-02", "tomorrow 5pm"`)
	taskAddCmd.Flags().String("category", "", "task category")
	taskAddCmd.Flags().String("priority", "medium", "low, medium or high")
	taskAddCmd.Flags().Bool("private", false, "keep the task out of the family scope")
	taskAddCmd.Flags().BoolP("interactive", "i", false, "fill the task in a form")
	taskListCmd.Flags().BoolP("all", "a", false, "include completed tasks")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskDoneCmd, taskRmCmd)
	rootCmd.AddCommand(taskCmd)
}
