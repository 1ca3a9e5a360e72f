package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "1.0.0"

var cfgFile string

// rootCmd represents the base command
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maplemon",
		Short: "Metrics collection and alerting for the maple blog backend",
		Long: `maplemon periodically probes the blog's databases and host, keeps a
bounded in-memory history of snapshots, derives trends from it and raises
de-duplicated alerts when configured thresholds are breached.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults and MAPLEMON_* environment when empty)")

	cmd.AddCommand(newStartCmd(), newStatusCmd(), newValidateCmd())
	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
