package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot(os.Stdout)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags are persistent across every subcommand.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
	APIToken   string
}

func buildRoot(out io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	cli := command{flags: globalFlags, out: out}

	serviceFlags := &ServiceFlags{}
	updateFlags := &ServiceFlags{}
	root.AddCommand(
		createServeCommand(globalFlags),
		createListCommand(&cli),
		createShowCommand(&cli),
		createAddCommand(&cli, serviceFlags),
		createUpdateCommand(&cli, updateFlags),
		createDeleteCommand(&cli),
		createStartCommand(&cli),
		createStopCommand(&cli),
		createRestartCommand(&cli),
		createStatusCommand(&cli),
		createStartAllCommand(&cli),
		createStopAllCommand(&cli),
		createSettingsCommand(&cli),
		createEventsCommand(&cli),
		createDashboardCommand(&cli),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "svcwatch",
		Short: "Service watchdog: launch, verify and keep local services alive",
		Long: `svcwatch supervises a list of local services. Each service is launched,
verified to be alive after a confirmation window, and restarted when it dies.
A service that keeps dying right after restart is given up on.

Examples:
  svcwatch serve --config=svcwatch.toml      # Start the daemon
  svcwatch add --name=api --exec=/opt/api/bin/api --work-dir=/opt/api
  svcwatch start 0
  svcwatch status
  svcwatch dashboard`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (serve only)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "daemon API URL (default http://127.0.0.1:8080/api)")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 30*time.Second, "request timeout")
	root.PersistentFlags().StringVar(&flags.APIToken, "api-token", os.Getenv("SVCWATCH_API_TOKEN"), "bearer token for the daemon API")
	return root
}
