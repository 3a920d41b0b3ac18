package snapshotcmd

import (
	"fmt"
	"path/filepath"
	"strconv"

	"graphdock/cmd/graphdock/ui"
	"graphdock/config"
	"graphdock/snapshot"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func listCmd() *cobra.Command {
	var environment string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cataloged snapshot archives",
		Args:  cobra.NoArgs,
		// Reads only the local catalog, so no runtime connection is made.
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			catalog, err := snapshot.OpenCatalog(cfg.CatalogFile())
			if err != nil {
				return err
			}
			defer catalog.Close()

			entries, err := catalog.List(environment)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println(ui.InfoMsg("No snapshots recorded."))
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.Environment,
					filepath.Base(e.Path),
					e.EngineVersion,
					strconv.FormatInt(e.NodeCount, 10),
					humanize.Bytes(uint64(e.DataSizeBytes)),
					e.ExportedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Println(ui.Table(
				[]string{"ENVIRONMENT", "ARCHIVE", "ENGINE", "NODES", "SIZE", "EXPORTED"},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&environment, "environment", "", "Only list snapshots of this environment")
	return cmd
}
