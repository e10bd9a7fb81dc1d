package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newWorkflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Import, list and run workflows",
	}

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Validate and store a JSON workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE:  runWorkflowImport,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List workflows, newest first",
		Args:  cobra.NoArgs,
		RunE:  runWorkflowList,
	}

	run := &cobra.Command{
		Use:   "run <workflow-id>",
		Short: "Run a workflow from its trigger and print each node result",
		Args:  cobra.ExactArgs(1),
		RunE:  runWorkflowRun,
	}
	run.Flags().Bool("json", false, "Output as JSON")

	cmd.AddCommand(importCmd, list, run)
	return cmd
}

func runWorkflowImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read workflow: %w", err)
	}
	a, closeApp, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	wf, err := a.Workflows.Import(cmd.Context(), data)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d nodes\n", wf.ID, wf.Name, len(wf.Nodes))
	return nil
}

func runWorkflowList(cmd *cobra.Command, _ []string) error {
	a, closeApp, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	wfs, err := a.Workflows.List(cmd.Context(), 0, 0)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(wfs) == 0 {
		_, _ = fmt.Fprintln(out, "No workflows.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tNODES\tLAST RUN")
	for _, wf := range wfs {
		last := "never"
		if wf.LastRunAt != nil {
			last = wf.LastRunAt.Format("2006-01-02 15:04:05")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", wf.ID, wf.Name, len(wf.Nodes), last)
	}
	return w.Flush()
}

func runWorkflowRun(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid workflow id %q", args[0])
	}
	a, closeApp, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	res, err := a.Workflows.Run(cmd.Context(), id)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON {
		return printJSON(out, res)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NODE\tTYPE\tOK\tOUTPUT")
	for _, nr := range res.NodeResults {
		output := nr.Output
		if nr.Error != "" {
			output = nr.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", nr.NodeID, nr.Type, nr.Succeeded(), output)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%d nodes, %d failed\n", len(res.NodeResults), res.Failed())
	return nil
}
