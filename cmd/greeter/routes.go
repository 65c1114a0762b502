package main

import (
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"dqx0.com/go/greeter/greet"
)

func newRoutesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the dispatch table",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Method", "Pattern", "Example"})
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			rt := greet.NewRouter()
			for _, r := range rt.Routes() {
				example := rt.Request(r.Method, examplePath(r.Pattern), nil).String()
				table.Append([]string{r.Method, r.Pattern, example})
			}
			table.Render()
		},
	}
}

// examplePath fills the pattern's capture with a sample name.
func examplePath(pattern string) string {
	if pattern == "/:name" {
		return "/Alice"
	}
	return pattern
}
