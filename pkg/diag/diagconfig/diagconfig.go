// Package diagconfig loads engine settings from a config file and DIAG_*
// environment variables and builds the report sink they describe.
package diagconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag"
)

// EnvPrefix prefixes every environment override, e.g. DIAG_MAX_LOG_ENTRIES.
const EnvPrefix = "DIAG"

// Settings is the flat, file-shaped form of the engine configuration plus
// the sink and probe destinations.
type Settings struct {
	LogLevels                   []string      `mapstructure:"log-levels" json:"logLevels" yaml:"log-levels"`
	LogRetentionDays            int           `mapstructure:"log-retention-days" json:"logRetentionDays" yaml:"log-retention-days"`
	EnablePerformanceMonitoring bool          `mapstructure:"enable-performance-monitoring" json:"enablePerformanceMonitoring" yaml:"enable-performance-monitoring"`
	EnableNetworkMonitoring     bool          `mapstructure:"enable-network-monitoring" json:"enableNetworkMonitoring" yaml:"enable-network-monitoring"`
	MaxLogEntries               int           `mapstructure:"max-log-entries" json:"maxLogEntries" yaml:"max-log-entries"`
	ErrorReportingEndpoint      string        `mapstructure:"error-reporting-endpoint" json:"errorReportingEndpoint,omitempty" yaml:"error-reporting-endpoint,omitempty"`
	SummaryInterval             time.Duration `mapstructure:"summary-interval" json:"summaryInterval" yaml:"summary-interval"`
	AppVersion                  string        `mapstructure:"app-version" json:"appVersion,omitempty" yaml:"app-version,omitempty"`
	InitialRoute                string        `mapstructure:"initial-route" json:"initialRoute" yaml:"initial-route"`

	Scrub             bool          `mapstructure:"scrub" json:"scrub" yaml:"scrub"`
	SentryDSN         string        `mapstructure:"sentry-dsn" json:"-" yaml:"-"`
	SentryEnvironment string        `mapstructure:"sentry-environment" json:"sentryEnvironment,omitempty" yaml:"sentry-environment,omitempty"`
	CXDBAddr          string        `mapstructure:"cxdb-addr" json:"cxdbAddr,omitempty" yaml:"cxdb-addr,omitempty"`
	CXDBLabels        []string      `mapstructure:"cxdb-labels" json:"cxdbLabels,omitempty" yaml:"cxdb-labels,omitempty"`
	AsyncQueueSize    int           `mapstructure:"async-queue-size" json:"asyncQueueSize" yaml:"async-queue-size"`
	ProbeTargets      []string      `mapstructure:"probe-targets" json:"probeTargets,omitempty" yaml:"probe-targets,omitempty"`
	ProbeInterval     time.Duration `mapstructure:"probe-interval" json:"probeInterval" yaml:"probe-interval"`
}

func setDefaults(v *viper.Viper) {
	def := diag.DefaultConfig()
	levels := make([]string, len(def.LogLevels))
	for i, l := range def.LogLevels {
		levels[i] = string(l)
	}

	v.SetDefault("log-levels", levels)
	v.SetDefault("log-retention-days", def.LogRetentionDays)
	v.SetDefault("enable-performance-monitoring", def.EnablePerformanceMonitoring)
	v.SetDefault("enable-network-monitoring", def.EnableNetworkMonitoring)
	v.SetDefault("max-log-entries", def.MaxLogEntries)
	v.SetDefault("error-reporting-endpoint", "")
	v.SetDefault("summary-interval", def.SummaryInterval)
	v.SetDefault("app-version", "")
	v.SetDefault("initial-route", def.InitialRoute)

	v.SetDefault("scrub", true)
	v.SetDefault("sentry-dsn", "")
	v.SetDefault("sentry-environment", "")
	v.SetDefault("cxdb-addr", "")
	v.SetDefault("cxdb-labels", []string{"diagnostics", "error"})
	v.SetDefault("async-queue-size", 256)
	v.SetDefault("probe-targets", []string{})
	v.SetDefault("probe-interval", 15*time.Second)
}

// Load reads settings from path, if it exists, with environment overrides.
// An empty path reads only defaults and the environment.
func Load(path string) (Settings, error) {
	var s Settings

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var configFileNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
				return s, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	if err := v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("decode config: %w", err)
	}
	return s, nil
}

// Config converts s to an engine configuration. Unknown level names are an
// error here, unlike Config.Normalize which drops them.
func (s Settings) Config() (diag.Config, error) {
	levels := make([]diag.Level, 0, len(s.LogLevels))
	for _, name := range s.LogLevels {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		l, err := diag.ParseLevel(name)
		if err != nil {
			return diag.Config{}, fmt.Errorf("log-levels: %w", err)
		}
		levels = append(levels, l)
	}

	cfg := diag.Config{
		LogLevels:                   levels,
		LogRetentionDays:            s.LogRetentionDays,
		EnablePerformanceMonitoring: s.EnablePerformanceMonitoring,
		EnableNetworkMonitoring:     s.EnableNetworkMonitoring,
		MaxLogEntries:               s.MaxLogEntries,
		ErrorReportingEndpoint:      s.ErrorReportingEndpoint,
		SummaryInterval:             s.SummaryInterval,
		AppVersion:                  s.AppVersion,
		InitialRoute:                s.InitialRoute,
	}
	return cfg.Normalize(), nil
}
