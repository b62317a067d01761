package commands

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/simflow/simflow/pkg/config"
	"github.com/simflow/simflow/pkg/telemetry"
)

var (
	// Global flags
	configPath    string
	projectName   string
	setOverrides  []string
	verbose       bool
	jsonOutput    bool
	metricsListen string
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "simflow",
		Short: "Simflow - Simulation Workflow Planning Engine",
		Long: `Simflow compiles declarative scenario and workflow templates into
fully resolved execution plans for simulation experiments.

Features:
  - Layered cascading configuration with variable interpolation
  - Conditional template inclusion and iterator expansion
  - Scenario groups with cross-group baseline inheritance
  - Default/override step merging with per-scenario filtering
  - Dependency-aware plans for sequential or distributed execution`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "extra config file path")
	rootCmd.PersistentFlags().StringVarP(&projectName, "project", "P", "", "project to operate on")
	rootCmd.PersistentFlags().StringArrayVar(&setOverrides, "set", nil, "config override ([section:]key=value)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newShowCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newRunCommand())

	return rootCmd
}

// loadStore builds the configuration store from the cascade plus the
// command-line flags.
func loadStore() (*config.Store, string, error) {
	var extra []string
	if configPath != "" {
		extra = append(extra, configPath)
	}
	store, err := config.ReadConfig(setOverrides, extra...)
	if err != nil {
		return nil, "", err
	}
	return store, store.ProjectSection(projectName), nil
}

// newLogger builds the logger from the store, letting --verbose win over
// the configured level.
func newLogger(store *config.Store, section string) (*telemetry.Logger, error) {
	level, err := store.GetDefault(section, "Sim.LogLevel", "info")
	if err != nil {
		return nil, err
	}
	if verbose {
		level = "debug"
	}
	format, err := store.GetDefault(section, "Sim.LogFormat", "console")
	if err != nil {
		return nil, err
	}
	return telemetry.NewLogger(telemetry.LoggingConfig{Level: level, Format: format})
}

// newMetrics builds the metrics collector, serving the registry when a
// listen address was given.
func newMetrics() *telemetry.Metrics {
	metrics := telemetry.NewMetrics(metricsListen != "")
	if handler := metrics.Handler(); handler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		go func() {
			_ = http.ListenAndServe(metricsListen, mux)
		}()
	}
	return metrics
}
