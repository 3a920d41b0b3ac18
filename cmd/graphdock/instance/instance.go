// Package instancecmd implements the "graphdock instance" command tree.
package instancecmd

import "github.com/spf13/cobra"

// Cmd returns the parent "graphdock instance" command.
func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Manage database environments",
	}

	cmd.AddCommand(upCmd())
	cmd.AddCommand(downCmd())
	cmd.AddCommand(statusCmd())
	cmd.AddCommand(listCmd())
	cmd.AddCommand(destroyCmd())
	return cmd
}
