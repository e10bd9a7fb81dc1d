package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	appTask "github.com/agentdesk/agentdesk/internal/application/task"
	"github.com/agentdesk/agentdesk/internal/domain/task"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, list and retry tasks",
	}

	create := &cobra.Command{
		Use:   "create <title>",
		Short: "Queue a task; the agent is routed from the title unless --agent is given",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTaskCreate,
	}
	create.Flags().StringP("description", "d", "", "Task description")
	create.Flags().StringP("priority", "p", "", "Priority (LOW, MEDIUM, HIGH)")
	create.Flags().String("agent", "", "Assign an agent explicitly")
	create.Flags().Bool("json", false, "Output as JSON")

	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE:  runTaskList,
	}
	list.Flags().String("status", "", "Filter by status (PENDING, PROCESSING, COMPLETED, FAILED)")
	list.Flags().Int("limit", 50, "Maximum tasks to list")
	list.Flags().Bool("json", false, "Output as JSON")

	retry := &cobra.Command{
		Use:   "retry <task-id>",
		Short: "Move a failed task back to pending",
		Args:  cobra.ExactArgs(1),
		RunE:  runTaskRetry,
	}

	cmd.AddCommand(create, list, retry)
	return cmd
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	description, _ := cmd.Flags().GetString("description")
	priority, _ := cmd.Flags().GetString("priority")
	agentID, _ := cmd.Flags().GetString("agent")
	asJSON, _ := cmd.Flags().GetBool("json")

	a, closeApp, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	t, err := a.Tasks.Create(cmd.Context(), appTask.CreateRequest{
		Title:         strings.Join(args, " "),
		Description:   description,
		Priority:      task.Priority(strings.ToUpper(priority)),
		AssignedAgent: agentID,
	})
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(cmd.OutOrStdout(), t)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.AssignedAgent, t.Title)
	return nil
}

func parseStatusFilter(s string) (*task.Status, error) {
	if s == "" {
		return nil, nil
	}
	st := task.Status(strings.ToUpper(s))
	switch st {
	case task.StatusPending, task.StatusProcessing, task.StatusCompleted, task.StatusFailed:
		return &st, nil
	default:
		return nil, fmt.Errorf("unknown status %q", s)
	}
}

func runTaskList(cmd *cobra.Command, _ []string) error {
	statusFlag, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")
	status, err := parseStatusFilter(statusFlag)
	if err != nil {
		return err
	}

	a, closeApp, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	tasks, err := a.Tasks.List(cmd.Context(), status, limit, 0)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON {
		if tasks == nil {
			tasks = []*task.Task{}
		}
		return printJSON(out, tasks)
	}
	if len(tasks) == 0 {
		_, _ = fmt.Fprintln(out, "No tasks.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tAGENT\tTITLE")
	for _, t := range tasks {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, t.AssignedAgent, t.Title)
	}
	return w.Flush()
}

func runTaskRetry(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid task id %q", args[0])
	}
	a, closeApp, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	t, err := a.Tasks.Retry(cmd.Context(), id)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t.ID, t.Status)
	return nil
}
