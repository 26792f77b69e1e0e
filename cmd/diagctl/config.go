package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag/diagconfig"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved settings",
	Long: `Print the settings after applying defaults, the config file and DIAG_*
environment overrides. YAML output can be used as a config file. The Sentry
DSN is never printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := diagconfig.Load(configPath)
		if err != nil {
			return err
		}
		if _, err := s.Config(); err != nil {
			return err
		}
		if outputFormat == "yaml" {
			data, err := yaml.Marshal(s)
			if err != nil {
				return fmt.Errorf("encode settings: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		return render(cmd.OutOrStdout(), s)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
