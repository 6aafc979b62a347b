package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/pipeflow/pkg/logger"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	root := newRootCommand()
	err := root.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newRootCommand builds the CLI. Persistent settings come from flags, then
// PIPEFLOW_* environment variables (PIPEFLOW_LOG_LEVEL, PIPEFLOW_PUSHGATEWAY).
func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("pipeflow")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "pipeflow",
		Short: "pipeflow - composable extract, transform, validate, load pipelines",
		Long: `pipeflow runs record pipelines described in YAML: records are extracted from
CSV, JSON or HTTP APIs, transformed, validated against a field schema and loaded
into SQL databases or CSV files in transactional batches.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogger(v)
		},
	}

	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "json", "Log encoding (json, console)")
	_ = v.BindPFlags(root.PersistentFlags())

	root.AddCommand(
		newRunCommand(v),
		newValidateCommand(),
		newInspectCommand(),
		newListCommand(),
		newVersionCommand(),
	)
	return root
}

func initLogger(v *viper.Viper) error {
	cfg := logger.DefaultConfig()
	cfg.Level = v.GetString("log-level")
	cfg.Encoding = v.GetString("log-format")
	cfg.Development = cfg.Encoding == "console"
	if err := logger.Init(cfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pipeflow v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
