// Package portscmd implements the "graphdock ports" command tree.
package portscmd

import "github.com/spf13/cobra"

// Cmd returns the parent "graphdock ports" command.
func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "Inspect the host port allocation table",
	}

	cmd.AddCommand(listCmd())
	cmd.AddCommand(releaseCmd())
	return cmd
}
