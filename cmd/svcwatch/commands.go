package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loykin/svcwatch/internal/status"
	"github.com/loykin/svcwatch/internal/tui"
	"github.com/loykin/svcwatch/pkg/client"
)

// command runs client-side subcommands against the daemon API.
type command struct {
	flags *GlobalFlags
	out   io.Writer
}

func (c *command) client() *client.Client {
	cfg := client.DefaultConfig()
	if c.flags.APIUrl != "" {
		cfg.BaseURL = c.flags.APIUrl
	}
	if c.flags.APITimeout > 0 {
		cfg.Timeout = c.flags.APITimeout
	}
	cfg.Token = c.flags.APIToken
	return client.New(cfg)
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid index %q: must be a non-negative integer", s)
	}
	return i, nil
}

// indexArg wraps a handler taking the service index as its only argument.
func indexArg(fn func(ctx context.Context, i int) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		i, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		return fn(cmd.Context(), i)
	}
}

// parseArgsText splits newline-separated arguments, one per line. Blank lines
// are dropped and surrounding whitespace is trimmed.
func parseArgsText(text string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func (f ServiceFlags) service() client.Service {
	args := append([]string(nil), f.Args...)
	args = append(args, parseArgsText(f.ArgsText)...)
	return client.Service{
		Name:       strings.TrimSpace(f.Name),
		Executable: strings.TrimSpace(f.Executable),
		WorkDir:    strings.TrimSpace(f.WorkDir),
		Args:       args,
		Env:        f.Env,
	}
}

func addServiceFlags(cmd *cobra.Command, f *ServiceFlags) {
	cmd.Flags().StringVar(&f.Name, "name", "", "service name (required)")
	cmd.Flags().StringVar(&f.Executable, "exec", "", "absolute path of the executable (required)")
	cmd.Flags().StringVar(&f.WorkDir, "work-dir", "", "absolute working directory (required)")
	cmd.Flags().StringArrayVar(&f.Args, "arg", nil, "argument (repeatable)")
	cmd.Flags().StringVar(&f.ArgsText, "args-text", "", "arguments as newline-separated text, one per line")
	cmd.Flags().StringArrayVar(&f.Env, "env", nil, "KEY=VALUE environment entry (repeatable)")
	for _, name := range []string{"name", "exec", "work-dir"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}

func printStatus(w io.Writer, rows []client.ServiceStatus) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "INDEX\tNAME\tSTATUS")
	for _, r := range rows {
		snap := status.Snapshot{State: status.State(r.State), PID: r.PID}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Index, r.Name, snap)
	}
	_ = tw.Flush()
}

func (c *command) List(ctx context.Context) error {
	cl := c.client()
	rows, err := cl.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "INDEX\tNAME\tEXECUTABLE\tWORK DIR")
	for _, r := range rows {
		d, err := cl.Get(ctx, r.Index)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Index, d.Config.Name, d.Config.Executable, d.Config.WorkDir)
	}
	return tw.Flush()
}

func (c *command) Show(ctx context.Context, i int) error {
	d, err := c.client().Get(ctx, i)
	if err != nil {
		return err
	}
	printJSON(c.out, d)
	return nil
}

func (c *command) Add(ctx context.Context, f ServiceFlags) error {
	i, err := c.client().Add(ctx, f.service())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "service %s added at index %d\n", f.Name, i)
	return nil
}

func (c *command) Update(ctx context.Context, i int, f ServiceFlags) error {
	if err := c.client().Update(ctx, i, f.service()); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "service %d updated; restart it to apply\n", i)
	return nil
}

func (c *command) Delete(ctx context.Context, i int) error {
	if err := c.client().Delete(ctx, i); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "service %d deleted\n", i)
	return nil
}

func (c *command) Start(ctx context.Context, i int, async bool) error {
	res, err := c.client().Start(ctx, i, async)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, res.Message)
	return nil
}

func (c *command) Stop(ctx context.Context, i int) error {
	if err := c.client().Stop(ctx, i); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "service %d stopped\n", i)
	return nil
}

func (c *command) Restart(ctx context.Context, i int) error {
	if err := c.client().Restart(ctx, i); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "service %d restarted\n", i)
	return nil
}

func (c *command) Status(ctx context.Context, args []string) error {
	cl := c.client()
	if len(args) == 0 {
		rows, err := cl.List(ctx)
		if err != nil {
			return err
		}
		printStatus(c.out, rows)
		return nil
	}
	i, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	d, err := cl.Get(ctx, i)
	if err != nil {
		return err
	}
	printStatus(c.out, []client.ServiceStatus{d.Status})
	return nil
}

func (c *command) StartAll(ctx context.Context) error {
	res, err := c.client().StartAll(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "%d started, %d skipped, %d failed\n", res.Started, res.Skipped, res.Failed)
	if res.Failed > 0 {
		return fmt.Errorf("%d services failed to start", res.Failed)
	}
	return nil
}

func (c *command) StopAll(ctx context.Context) error {
	msg, err := c.client().StopAll(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, msg)
	return nil
}

func (c *command) Settings(ctx context.Context) error {
	s, err := c.client().Settings(ctx)
	if err != nil {
		return err
	}
	printJSON(c.out, s)
	return nil
}

func (c *command) SetLogBasePath(ctx context.Context, path string) error {
	if err := c.client().UpdateSettings(ctx, client.Settings{LogBasePath: path}); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "log_base_path set to %s\n", path)
	return nil
}

func (c *command) Events(ctx context.Context, f EventsFlags) error {
	cl := c.client()
	if !f.Follow {
		lines, err := cl.Events(ctx, f.Limit)
		if err != nil {
			return err
		}
		for _, l := range lines {
			_, _ = fmt.Fprintln(c.out, l)
		}
		return nil
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cl.StreamEvents(ctx, f.Limit, func(line string) {
		_, _ = fmt.Fprintln(c.out, line)
	})
}

func (c *command) Dashboard() error {
	return tui.Run(c.client(), tui.DefaultRefresh)
}

func createListCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured services",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return c.List(cmd.Context()) },
	}
}

func createShowCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "show <index>",
		Short: "Show a service's configuration and status as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  indexArg(c.Show),
	}
}

func createAddCommand(c *command, f *ServiceFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a service",
		Long: `Add a service to the end of the list.

Examples:
  svcwatch add --name=api --exec=/opt/api/bin/api --work-dir=/opt/api --arg=--port --arg=9000
  svcwatch add --name=job --exec=/usr/bin/java --work-dir=/opt/job --args-text="$(cat job.args)"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error { return c.Add(cmd.Context(), *f) },
	}
	addServiceFlags(cmd, f)
	return cmd
}

func createUpdateCommand(c *command, f *ServiceFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <index>",
		Short: "Replace a service's configuration",
		Long: `Replace the configuration at index. A running service keeps its old
configuration until it is restarted.`,
		Args: cobra.ExactArgs(1),
		RunE: indexArg(func(ctx context.Context, i int) error { return c.Update(ctx, i, *f) }),
	}
	addServiceFlags(cmd, f)
	return cmd
}

func createDeleteCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <index>",
		Short: "Stop and delete a service; later services move up one index",
		Args:  cobra.ExactArgs(1),
		RunE:  indexArg(c.Delete),
	}
}

func createStartCommand(c *command) *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "start <index>",
		Short: "Start a service and wait until it is verified",
		Args:  cobra.ExactArgs(1),
		RunE: indexArg(func(ctx context.Context, i int) error {
			return c.Start(ctx, i, async)
		}),
	}
	cmd.Flags().BoolVar(&async, "async", false, "return as soon as the start is accepted")
	return cmd
}

func createStopCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <index>",
		Short: "Stop a service",
		Args:  cobra.ExactArgs(1),
		RunE:  indexArg(c.Stop),
	}
}

func createRestartCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <index>",
		Short: "Stop and start a service",
		Args:  cobra.ExactArgs(1),
		RunE:  indexArg(c.Restart),
	}
}

func createStatusCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "status [index]",
		Short: "Show the status of one or all services",
		Args:  cobra.MaximumNArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return c.Status(cmd.Context(), args) },
	}
}

func createStartAllCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "start-all",
		Short: "Start every service that is not running",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return c.StartAll(cmd.Context()) },
	}
}

func createStopAllCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "stop-all",
		Short: "Stop every service",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return c.StopAll(cmd.Context()) },
	}
}

func createSettingsCommand(c *command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change application settings",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return c.Settings(cmd.Context()) },
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set-log-base <path>",
		Short: "Set the directory under which service logs are written",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.SetLogBasePath(cmd.Context(), args[0])
		},
	})
	return cmd
}

func createEventsCommand(c *command) *cobra.Command {
	f := &EventsFlags{}
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print recent supervision events",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return c.Events(cmd.Context(), *f) },
	}
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "number of recent events")
	cmd.Flags().BoolVarP(&f.Follow, "follow", "f", false, "keep streaming new events")
	return cmd
}

func createDashboardCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Interactive terminal dashboard",
		Args:  cobra.NoArgs,
		RunE:  func(*cobra.Command, []string) error { return c.Dashboard() },
	}
}
