package snapshotcmd

import (
	"fmt"

	"graphdock/cmd/graphdock/cmdutil"
	"graphdock/cmd/graphdock/ui"
	"graphdock/snapshot"

	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	var (
		noValidate bool
		force      bool
		backup     bool
	)

	cmd := &cobra.Command{
		Use:   "import <archive> [environment]",
		Short: "Replace a running environment's data with an archive's contents",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			archivePath := args[0]
			env, err := cmdutil.EnvironmentArg(args[1:])
			if err != nil {
				return err
			}
			app, err := cmdutil.Setup()
			if err != nil {
				return err
			}
			defer app.Close()

			handle, err := app.Lifecycle.Connect(cmd.Context(), env)
			if err != nil {
				return err
			}
			defer handle.Close(cmd.Context())

			opts := snapshot.Options{
				Validate: !noValidate,
				Force:    force,
				Backup:   backup,
			}
			if err := app.Snapshots.Import(cmd.Context(), handle, archivePath, opts); err != nil {
				return fmt.Errorf("import into %s: %w", env, err)
			}

			fmt.Println(ui.SuccessMsg("Imported %s into %s.", archivePath, ui.Bold(env.String())))
			return nil
		},
	}

	cmd.Flags().BoolVar(&noValidate, "no-validate", false, "Skip the version compatibility gate")
	cmd.Flags().BoolVar(&force, "force", false, "Import even when validation fails")
	cmd.Flags().BoolVar(&backup, "backup", false, "Export current data next to the archive first")
	return cmd
}
