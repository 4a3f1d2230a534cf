package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/godlewis/process-list/internal/source"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot assembles the root command and all subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	searchFlags := &SearchFlags{}
	portFlags := &PortFlags{}
	refreshFlags := &RefreshFlags{}
	removeFlags := &RemoveFlags{}
	killFlags := &KillFlags{}
	statusFlags := &StatusFlags{}
	journalFlags := &JournalFlags{}

	cli := command{src: source.NewSystem()}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createSearchCommand(cli, searchFlags),
		createPortCommand(cli, portFlags),
		createRefreshCommand(cli, refreshFlags),
		createRemoveCommand(cli, removeFlags),
		createKillCommand(cli, killFlags),
		createStatusCommand(cli, statusFlags),
		createJournalCommand(cli, journalFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "proclist",
		Short: "Process and listening-port snapshot service",
		Long: `Proclist periodically snapshots the host's processes together with the
ports they listen on, and answers wildcard searches against that snapshot.

Examples:
  proclist serve                          # Start daemon
  proclist search 'redis*'                # Query the daemon
  proclist search nginx --local           # Scan the host directly
  proclist port 8080                      # Who listens on 8080
  proclist kill 4312 --force              # Terminate a process
  proclist status --api-url=http://remote:8931/api`,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")

	return root
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the proclist daemon",
		Long: `Start the proclist daemon: a periodic snapshot refresher with an HTTP
query API, a WebSocket event feed and optional refresh journaling.

Examples:
  proclist serve                    # Built-in defaults
  proclist serve config.toml        # Start with specific config file
  proclist serve --config=config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServeCommand(serveFlags, args)
		},
	}

	return cmd
}

// createSearchCommand creates the search subcommand
func createSearchCommand(cli command, flags *SearchFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [keyword]",
		Short: "Search records by keyword",
		Long: `Search the process snapshot. A keyword matches id, name, owner and
ports case-insensitively; * matches any run of characters. An empty
keyword returns everything.

Examples:
  proclist search nginx
  proclist search 'post*' --no-fallback
  proclist search 8080 --local`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				flags.Keyword = args[0]
			}
			return cli.Search(*flags)
		},
	}

	cmd.Flags().BoolVar(&flags.NoFallback, "no-fallback", false, "fail instead of scanning the host when the cache is not valid in time")
	cmd.Flags().BoolVar(&flags.Local, "local", false, "scan the host directly without a daemon")
	addAPIFlags(cmd, &flags.APIUrl, &flags.APITimeout)

	return cmd
}

// createPortCommand creates the port subcommand
func createPortCommand(cli command, flags *PortFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "port <port>",
		Short: "Show the record listening on a port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid port %q", args[0])
			}
			flags.Port = p
			return cli.Port(*flags)
		},
	}

	addAPIFlags(cmd, &flags.APIUrl, &flags.APITimeout)

	return cmd
}

// createRefreshCommand creates the refresh subcommand
func createRefreshCommand(cli command, flags *RefreshFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Force an immediate snapshot refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Refresh(*flags)
		},
	}

	addAPIFlags(cmd, &flags.APIUrl, &flags.APITimeout)

	return cmd
}

// createRemoveCommand creates the remove subcommand
func createRemoveCommand(cli command, flags *RemoveFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Drop a record from the daemon's snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.ID = args[0]
			return cli.Remove(*flags)
		},
	}

	addAPIFlags(cmd, &flags.APIUrl, &flags.APITimeout)

	return cmd
}

// createKillCommand creates the kill subcommand
func createKillCommand(cli command, flags *KillFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill <pid>",
		Short: "Terminate a process and drop its record",
		Long: `Send SIGTERM to the process and wait for it to exit. With --force the
signal escalates to SIGKILL after the wait. When a daemon is reachable
its record is removed and a refresh is triggered.

Examples:
  proclist kill 4312
  proclist kill 4312 --force --wait=5s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.PID = args[0]
			return cli.Kill(*flags)
		},
	}

	cmd.Flags().DurationVar(&flags.Wait, "wait", source.DefaultTerminateWait, "how long to wait for the process to exit")
	cmd.Flags().BoolVar(&flags.Force, "force", false, "escalate to SIGKILL when the process outlives the wait")
	addAPIFlags(cmd, &flags.APIUrl, &flags.APITimeout)

	return cmd
}

// createStatusCommand creates the status subcommand
func createStatusCommand(cli command, flags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon snapshot state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Status(*flags)
		},
	}

	addAPIFlags(cmd, &flags.APIUrl, &flags.APITimeout)

	return cmd
}

// createJournalCommand creates the journal subcommand
func createJournalCommand(cli command, flags *JournalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recent refresh and removal events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Journal(*flags)
		},
	}

	cmd.Flags().IntVar(&flags.Limit, "limit", 0, "maximum events to list (0 = server default)")
	addAPIFlags(cmd, &flags.APIUrl, &flags.APITimeout)

	return cmd
}

func addAPIFlags(cmd *cobra.Command, apiURL *string, apiTimeout *time.Duration) {
	cmd.Flags().StringVar(apiURL, "api-url", "", "daemon URL (e.g. http://host:8931/api)")
	cmd.Flags().DurationVar(apiTimeout, "api-timeout", 10*time.Second, "request timeout")
}
