package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag/diagconfig"
	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag/host"
)

var connectivityTimeout time.Duration

type connectivityResult struct {
	Online  bool     `json:"online"`
	Targets []string `json:"targets"`
}

var connectivityCmd = &cobra.Command{
	Use:   "connectivity [HOST:PORT...]",
	Short: "Report whether any target accepts a TCP connection",
	Long: `Dial every target concurrently and report online if any accepts a
connection within the timeout. Without arguments the configured
probe-targets are used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		targets := args
		if len(targets) == 0 {
			s, err := diagconfig.Load(configPath)
			if err != nil {
				return err
			}
			targets = s.ProbeTargets
		}
		if len(targets) == 0 {
			return errors.New("no targets given and probe-targets is empty")
		}

		prober := host.NewProber(targets, host.WithProbeTimeout(connectivityTimeout))
		return render(cmd.OutOrStdout(), connectivityResult{
			Online:  prober.Probe(cmd.Context()),
			Targets: targets,
		})
	},
}

func init() {
	connectivityCmd.Flags().DurationVar(&connectivityTimeout, "timeout", 3*time.Second, "Dial timeout per target")
	rootCmd.AddCommand(connectivityCmd)
}
