package instancecmd

import (
	"fmt"

	"graphdock/cmd/graphdock/cmdutil"
	"graphdock/cmd/graphdock/ui"
	"graphdock/lifecycle"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [environment]",
		Short: "Show an environment's lifecycle state",
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

			st, err := app.Lifecycle.Status(cmd.Context(), env)
			if err != nil {
				return fmt.Errorf("status of %s: %w", env, err)
			}

			fmt.Println(ui.InfoMsg("Environment %s is %s.", ui.Bold(env.String()), renderPhase(st.Phase)))
			if st.ContainerID != "" {
				pairs := []ui.Pair{ui.KV("container", st.ContainerID)}
				if st.BoltPort > 0 {
					pairs = append(pairs,
						ui.KV("bolt", fmt.Sprintf("bolt://127.0.0.1:%d", st.BoltPort)),
						ui.KV("browser", fmt.Sprintf("http://127.0.0.1:%d", st.HTTPPort)),
					)
				}
				fmt.Print(ui.KeyValues("  ", pairs...))
			}
			return nil
		},
	}
	return cmd
}

func renderPhase(p lifecycle.Phase) string {
	switch p {
	case lifecycle.Running:
		return ui.Success(p.String())
	case lifecycle.Failed:
		return ui.Error(p.String())
	case lifecycle.Absent:
		return ui.Muted(p.String())
	default:
		return ui.Warn(p.String())
	}
}
