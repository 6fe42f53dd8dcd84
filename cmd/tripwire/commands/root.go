package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/moolen/tripwire/internal/logging"
	"github.com/spf13/cobra"
)

// Version is reported by --version and as the tracing service version.
const Version = "0.1.0"

var (
	logLevelFlags []string // Supports multiple --log-level flags
	configPath    string
)

var rootCmd = &cobra.Command{
	Use:   "tripwire",
	Short: "Tripwire - metric anomaly detection and incident evidence",
	Long: `Tripwire watches a set of metrics, flags points above mean + k standard
deviations and opens an incident with the evidence needed to investigate it.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLog(logLevelFlags)
	},
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	// Supports per-package log levels: --log-level debug --log-level trigger=debug
	rootCmd.PersistentFlags().StringSliceVar(&logLevelFlags, "log-level",
		[]string{"info"},
		"Log level for packages. Use 'default=level' for default, or 'package.name=level' for per-package.\n"+
			"Examples: --log-level debug (all), --log-level evidence.*=debug --log-level pipeline=warn")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to the YAML config file (defaults are used when empty)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(inspectCmd)
}

// setupLog initializes the logging system with parsed log level flags.
// Priority: CLI flags > Environment variables > default
func setupLog(flags []string) error {
	defaultLevel, packageLevels, err := parseLogLevelFlags(flags)
	if err != nil {
		return err
	}
	return logging.Initialize(defaultLevel, packageLevels)
}

// parseLogLevelFlags parses CLI flags and environment variables.
//
// CLI format: ["debug"], ["default=info", "evidence.logs=debug"], or ["info"]
// Env vars: LOG_LEVEL_EVIDENCE_LOGS=debug (package name uppercased, dots to underscores)
//
// Returns: (defaultLevel, packageLevels map, error)
func parseLogLevelFlags(flags []string) (string, map[string]string, error) {
	result := make(map[string]string)

	for _, envPair := range os.Environ() {
		if !strings.HasPrefix(envPair, "LOG_LEVEL_") {
			continue
		}
		key, level, ok := strings.Cut(envPair, "=")
		if !ok {
			continue
		}
		result[convertEnvKeyToPackageName(key)] = level
	}

	for _, flag := range flags {
		pkg, level, ok := strings.Cut(flag, "=")
		if !ok {
			result["default"] = flag
			continue
		}
		result[pkg] = level
	}

	defaultLevel := "info"
	if level, exists := result["default"]; exists {
		defaultLevel = level
		delete(result, "default")
	}

	if err := validateLogLevel(defaultLevel); err != nil {
		return "", nil, err
	}
	for pkg, level := range result {
		if err := validateLogLevel(level); err != nil {
			return "", nil, fmt.Errorf("invalid log level for package %q: %v", pkg, err)
		}
	}

	return defaultLevel, result, nil
}

// convertEnvKeyToPackageName converts LOG_LEVEL_EVIDENCE_LOGS -> evidence.logs
func convertEnvKeyToPackageName(envKey string) string {
	name := strings.TrimPrefix(envKey, "LOG_LEVEL_")
	return strings.ToLower(strings.ReplaceAll(name, "_", "."))
}

func validateLogLevel(level string) error {
	if _, err := logging.ParseLevel(level); err != nil {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error, fatal)", level)
	}
	return nil
}
