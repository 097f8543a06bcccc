// Command mjproxy is the operator-facing entry point: it runs the proxy
// server (serve) and offers maintenance subcommands against the
// configured store (account, task) in the style of zulandar-railyard's
// ry CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mjproxy",
		Short: "mjproxy — multi-account Midjourney-via-Discord proxy",
		Long:  "mjproxy fans submissions out across a pool of Discord accounts, tracking each job through to its terminal callback.",
	}

	cmd.PersistentFlags().String("store-backend", "", "override MJPROXY_STORE_BACKEND (sqlite|postgres)")
	cmd.PersistentFlags().String("sqlite-path", "", "override MJPROXY_SQLITE_PATH")
	cmd.PersistentFlags().String("postgres-dsn", "", "override MJPROXY_POSTGRES_DSN")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAccountCmd())
	cmd.AddCommand(newTaskCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mjproxy %s (commit %s)\n", version, commit)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
