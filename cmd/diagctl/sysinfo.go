package main

import (
	"github.com/spf13/cobra"
)

var sysinfoCmd = &cobra.Command{
	Use:   "sysinfo",
	Short: "Print runtime and host facts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()
		return render(cmd.OutOrStdout(), e.GetSystemInfo())
	},
}

func init() {
	rootCmd.AddCommand(sysinfoCmd)
}
