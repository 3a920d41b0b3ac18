package instancecmd

import (
	"fmt"

	"graphdock/cmd/graphdock/cmdutil"
	"graphdock/cmd/graphdock/ui"

	"github.com/spf13/cobra"
)

func destroyCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "destroy [environment]",
		Short: "Remove an environment's container, data volume and ports",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := cmdutil.EnvironmentArg(args)
			if err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("destroying %s deletes its data volume; pass --yes to confirm", env)
			}
			app, err := cmdutil.Setup()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Lifecycle.Teardown(cmd.Context(), env); err != nil {
				return fmt.Errorf("destroy %s: %w", env, err)
			}

			fmt.Println(ui.SuccessMsg("Environment %s destroyed.", ui.Bold(env.String())))
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deleting the environment and its data")
	return cmd
}
