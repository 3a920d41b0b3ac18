package instancecmd

import (
	"fmt"
	"strconv"

	"graphdock/cmd/graphdock/cmdutil"
	"graphdock/cmd/graphdock/ui"

	"github.com/spf13/cobra"
)

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show all managed environments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cmdutil.Setup()
			if err != nil {
				return err
			}
			defer app.Close()

			sts, err := app.Lifecycle.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(sts) == 0 {
				fmt.Println(ui.InfoMsg("No managed environments."))
				return nil
			}

			rows := make([][]string, 0, len(sts))
			for _, st := range sts {
				id := st.ContainerID
				if len(id) > 12 {
					id = id[:12]
				}
				bolt, http := "", ""
				if st.BoltPort > 0 {
					bolt = strconv.Itoa(st.BoltPort)
					http = strconv.Itoa(st.HTTPPort)
				}
				rows = append(rows, []string{st.Environment.String(), renderPhase(st.Phase), id, bolt, http})
			}
			fmt.Println(ui.Table([]string{"ENVIRONMENT", "PHASE", "CONTAINER", "BOLT", "HTTP"}, rows))
			return nil
		},
	}
	return cmd
}
