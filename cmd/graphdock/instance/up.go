package instancecmd

import (
	"fmt"
	"os"

	"graphdock/cmd/graphdock/cmdutil"
	"graphdock/cmd/graphdock/ui"
	"graphdock/lifecycle"

	"github.com/spf13/cobra"
)

// envPassword is consulted when --password is not given, so scripts never
// have to put the credential on a command line.
const envPassword = "GRAPHDOCK_PASSWORD"

func upCmd() *cobra.Command {
	var (
		password  string
		image     string
		heapMax   string
		pageCache string
	)

	cmd := &cobra.Command{
		Use:   "up [environment]",
		Short: "Start an environment, creating it on first use",
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

			if password == "" {
				password = os.Getenv(envPassword)
			}

			handle, err := app.Lifecycle.Start(cmd.Context(), lifecycle.Config{
				Environment: env,
				Password:    password,
				Image:       image,
				HeapMax:     heapMax,
				PageCache:   pageCache,
			})
			if err != nil {
				return fmt.Errorf("start %s: %w", env, err)
			}
			defer handle.Close(cmd.Context())

			fmt.Println(ui.SuccessMsg("Environment %s is ready.", ui.Bold(env.String())))
			fmt.Print(ui.KeyValues("  ",
				ui.KV("bolt", handle.BoltURI()),
				ui.KV("browser", handle.HTTPURI()),
				ui.KV("container", handle.ContainerID()),
				ui.KV("volume", handle.Volume()),
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Database password (defaults to $"+envPassword+")")
	cmd.Flags().StringVar(&image, "image", "", "Image override for first-time creation")
	cmd.Flags().StringVar(&heapMax, "heap-max", "", "JVM heap ceiling, e.g. 1G")
	cmd.Flags().StringVar(&pageCache, "page-cache", "", "Page cache size, e.g. 512M")
	return cmd
}
