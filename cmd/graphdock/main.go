package main

import (
	"fmt"
	"os"

	instancecmd "graphdock/cmd/graphdock/instance"
	portscmd "graphdock/cmd/graphdock/ports"
	snapshotcmd "graphdock/cmd/graphdock/snapshot"
	"graphdock/cmd/graphdock/ui"
	"graphdock/internal/logging"

	"github.com/spf13/cobra"
)

func main() {
	var (
		debug bool
		plain bool
	)
	logging.Configure(false)

	root := &cobra.Command{
		Use:           "graphdock",
		Short:         "Disposable Neo4j environments on the local container runtime",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.ConfigureInteraction(plain)
			logging.Configure(debug)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&plain, "plain", false, "Disable colors and interactive output")

	root.AddCommand(instancecmd.Cmd())
	root.AddCommand(snapshotcmd.Cmd())
	root.AddCommand(portscmd.Cmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
