package portscmd

import (
	"fmt"

	"graphdock/cmd/graphdock/ui"
	"graphdock/config"
	"graphdock/ports"

	"github.com/spf13/cobra"
)

func releaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release <container-id>",
		Short: "Free the port pair held by a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			allocator := ports.New(cfg.PortsFile(), cfg.BoltPort, cfg.HTTPPort)

			if err := allocator.Release(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("release ports of %s: %w", args[0], err)
			}

			fmt.Println(ui.SuccessMsg("Released ports held by %s.", ui.Bold(args[0])))
			return nil
		},
	}
	return cmd
}
