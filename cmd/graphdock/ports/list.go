package portscmd

import (
	"fmt"
	"sort"
	"strconv"

	"graphdock/cmd/graphdock/ui"
	"graphdock/config"
	"graphdock/ports"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show reserved port pairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			allocator := ports.New(cfg.PortsFile(), cfg.BoltPort, cfg.HTTPPort)

			table, err := allocator.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(table) == 0 {
				fmt.Println(ui.InfoMsg("No port reservations."))
				return nil
			}

			keys := make([]string, 0, len(table))
			for k := range table {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			rows := make([][]string, 0, len(keys))
			for _, k := range keys {
				alloc := table[k]
				holder := alloc.ContainerID
				if holder == "" {
					holder = ui.Muted("(reserved)")
				}
				rows = append(rows, []string{
					holder,
					strconv.Itoa(alloc.BoltPort),
					strconv.Itoa(alloc.HTTPPort),
					humanize.Time(alloc.AllocatedAt),
				})
			}
			fmt.Println(ui.Table([]string{"CONTAINER", "BOLT", "HTTP", "ALLOCATED"}, rows))
			return nil
		},
	}
	return cmd
}
