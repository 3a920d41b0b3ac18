package snapshotcmd

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"graphdock/cmd/graphdock/cmdutil"
	"graphdock/cmd/graphdock/ui"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func exportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export [environment]",
		Short: "Export a running environment's data to an archive",
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

			handle, err := app.Lifecycle.Connect(cmd.Context(), env)
			if err != nil {
				return err
			}
			defer handle.Close(cmd.Context())

			destPath := output
			if destPath == "" {
				stamp := time.Now().UTC().Format("20060102-150405")
				destPath = filepath.Join(app.Config.SnapshotDir, fmt.Sprintf("%s-%s.tar.gz", env, stamp))
			}

			meta, err := app.Snapshots.Export(cmd.Context(), handle, destPath)
			if err != nil {
				return fmt.Errorf("export %s: %w", env, err)
			}

			fmt.Println(ui.SuccessMsg("Exported %s to %s.", ui.Bold(env.String()), destPath))
			fmt.Print(ui.KeyValues("  ",
				ui.KV("nodes", strconv.FormatInt(meta.NodeCount, 10)),
				ui.KV("relationships", strconv.FormatInt(meta.RelationshipCount, 10)),
				ui.KV("engine", meta.EngineVersion),
				ui.KV("size", humanize.Bytes(uint64(meta.DataSizeBytes))),
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Archive path (defaults into the snapshot directory)")
	return cmd
}
