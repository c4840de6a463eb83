package main

import (
	"fmt"
	"os"

	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// globalOptions are the flags shared by every subcommand
type globalOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "leadrelay",
		Short:         "Lead form delivery relay",
		Long:          "leadrelay accepts website lead forms and delivers them to the primary endpoint, falling back to the Telegram bot API and a durable retry queue.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.json", "path to configuration file (JSON or YAML)")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "enable verbose logging (includes sensitive information)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newPendingCmd(opts))
	cmd.AddCommand(newSelfTestCmd(opts))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "leadrelay %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	_ = godotenv.Load()
	os.Exit(execute(newRootCmd()))
}
