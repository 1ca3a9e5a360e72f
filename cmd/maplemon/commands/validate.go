package commands

import (
	"fmt"

	"github.com/Await-d/maple-blog-sub005/internal/config"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			rules, _ := cfg.AlertRules()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration OK")
			fmt.Fprintf(out, "  Collection interval : %s\n", cfg.Monitor.CollectionInterval)
			fmt.Fprintf(out, "  Retention           : %s\n", cfg.Monitor.RetentionDuration)
			fmt.Fprintf(out, "  Databases           : %d\n", len(cfg.Databases))
			fmt.Fprintf(out, "  Alert rules         : %d\n", len(rules))
			return nil
		},
	}
}
