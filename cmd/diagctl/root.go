// root.go defines the root command, global flags and output rendering.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag"
	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag/diagconfig"
	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag/host"
)

var (
	configPath   string
	outputFormat string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "diagctl",
	Short: "Collect and print diagnostics for this host",
	Long: `diagctl runs the diag engine against the local host and prints what it
observes as JSON or YAML.

Settings are read from --config (YAML, JSON or TOML) and DIAG_* environment
variables, e.g. DIAG_MAX_LOG_ENTRIES=500 or DIAG_LOG_LEVELS=warn,error.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFormat {
		case "json", "yaml":
			return nil
		}
		return fmt.Errorf("unsupported output format %q (want json or yaml)", outputFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a settings file")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "Output format: json or yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log engine activity to stderr")
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openEngine loads settings and returns an Initialized engine delivering
// reports to the configured sink. The caller must Close it.
func openEngine(cmd *cobra.Command) (*diag.Engine, error) {
	s, err := diagconfig.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := s.Config()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cmd.ErrOrStderr())
	sink, err := diagconfig.BuildSink(s, logger)
	if err != nil {
		return nil, err
	}

	opts := []diag.Option{
		diag.WithLogger(logger),
		diag.WithSink(sink),
		diag.WithAppName("diagctl"),
		diag.WithInstrumentation(host.New()),
	}
	if s.Scrub {
		opts = append(opts, diag.WithDefaultScrubbing())
	}
	if len(s.ProbeTargets) > 0 {
		opts = append(opts, diag.WithConnectivity(host.NewProber(s.ProbeTargets, host.WithProbeInterval(s.ProbeInterval))))
	}

	e := diag.New(opts...)
	e.Initialize(cfg)
	return e, nil
}

// render writes v in the selected format. YAML output keeps the JSON field
// names.
func render(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if outputFormat == "yaml" {
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		if data, err = yaml.Marshal(generic); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		_, err = w.Write(data)
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
