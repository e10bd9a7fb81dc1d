package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentdesk/agentdesk/internal/application/router"
	"github.com/agentdesk/agentdesk/internal/domain/agent"
)

func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List agents and the keywords that route to them",
		Args:  cobra.NoArgs,
		RunE:  runAgents,
	}
	cmd.Flags().String("explain", "", "Show which agent a task title would route to")
	return cmd
}

func runAgents(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if title, _ := cmd.Flags().GetString("explain"); title != "" {
		agentID, keyword := router.NewDefault().Explain(title)
		if keyword == "" {
			keyword = "(default)"
		}
		_, _ = fmt.Fprintf(out, "%s\t%s\n", agentID, keyword)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tKEYWORDS")
	for _, a := range agent.Catalog() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", a.ID, a.Name, strings.Join(a.Capabilities, ", "))
	}
	return w.Flush()
}
