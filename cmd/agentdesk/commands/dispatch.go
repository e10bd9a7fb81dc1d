package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newDispatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run pending tasks through their agents",
		Long: `Claim and execute pending tasks, oldest first. --count bounds how
many are run; 0 drains the queue.`,
		Args: cobra.NoArgs,
		RunE: runDispatch,
	}
	cmd.Flags().IntP("count", "n", 1, "Maximum tasks to dispatch (0 drains the queue)")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func runDispatch(cmd *cobra.Command, _ []string) error {
	count, _ := cmd.Flags().GetInt("count")
	asJSON, _ := cmd.Flags().GetBool("json")
	if count < 0 {
		return fmt.Errorf("--count must not be negative")
	}

	a, closeApp, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	outcomes, err := a.Dispatcher.Drain(cmd.Context(), count)
	if err != nil {
		return err
	}
	counts, err := a.Tasks.Counts(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return printJSON(out, map[string]interface{}{"outcomes": outcomes, "counts": counts})
	}
	if len(outcomes) == 0 {
		_, _ = fmt.Fprintln(out, "No pending tasks.")
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "TASK\tAGENT\tRESULT\tERROR")
		for _, o := range outcomes {
			result := "ok"
			if !o.Success {
				result = "failed"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.TaskID, o.AgentID, result, o.Error)
		}
		_ = w.Flush()
	}
	_, _ = fmt.Fprintf(out, "pending=%d processing=%d completed=%d failed=%d\n",
		counts.Pending, counts.Processing, counts.Completed, counts.Failed)
	return nil
}
