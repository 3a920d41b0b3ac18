package instancecmd

import (
	"fmt"

	"graphdock/cmd/graphdock/cmdutil"
	"graphdock/cmd/graphdock/ui"

	"github.com/spf13/cobra"
)

func downCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down [environment]",
		Short: "Stop an environment, keeping its container and data",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := cmdutil.EnvironmentArg(args)
			if err != nil {
				return err
			}
			app, err := cmdutil.Setup()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Lifecycle.StopEnvironment(cmd.Context(), env); err != nil {
				return fmt.Errorf("stop %s: %w", env, err)
			}

			fmt.Println(ui.SuccessMsg("Environment %s stopped.", ui.Bold(env.String())))
			return nil
		},
	}
	return cmd
}
