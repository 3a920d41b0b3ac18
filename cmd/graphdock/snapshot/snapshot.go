// Package snapshotcmd implements the "graphdock snapshot" command tree.
package snapshotcmd

import "github.com/spf13/cobra"

// Cmd returns the parent "graphdock snapshot" command.
func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export and import environment data",
	}

	cmd.AddCommand(exportCmd())
	cmd.AddCommand(importCmd())
	cmd.AddCommand(listCmd())
	return cmd
}
