package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/pipeflow/internal/pipeline"
	"github.com/ajitpratap0/pipeflow/pkg/config"
	"github.com/ajitpratap0/pipeflow/pkg/json"
	"github.com/ajitpratap0/pipeflow/pkg/logger"
	"github.com/ajitpratap0/pipeflow/pkg/metrics"
	"github.com/ajitpratap0/pipeflow/pkg/observability"
)

const pushTimeout = 10 * time.Second

func newRunCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <pipeline.yaml>",
		Short: "Run a pipeline",
		Long: `Run the pipeline described by a YAML file and print the run report as JSON.

The command exits non-zero when the run fails; the report is written either way.

Example:
  pipeflow run users.yaml --report report.json --pushgateway http://localhost:9091`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, v, args[0])
		},
	}

	cmd.Flags().String("report", "", "Write the run report to this file instead of stdout")
	cmd.Flags().Duration("timeout", 0, "Cancel the run after this duration (0 disables)")
	cmd.Flags().Bool("trace", false, "Export OpenTelemetry spans for the run to stderr")
	cmd.Flags().String("pushgateway", "", "Push run metrics to this Prometheus Pushgateway URL")
	_ = v.BindPFlags(cmd.Flags())

	return cmd
}

func runPipeline(cmd *cobra.Command, v *viper.Viper, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	log := logger.Get().With(zap.String("component", "cli"), zap.String("config", path))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout := v.GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if v.GetBool("trace") {
		tc := observability.DefaultTracingConfig()
		tc.ServiceVersion = version
		tc.Writer = cmd.ErrOrStderr()
		shutdown, err := observability.InitTracing(ctx, tc)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn("failed to flush traces", zap.Error(err))
			}
		}()
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger.Get())}
	gateway := v.GetString("pushgateway")
	var collector *metrics.Collector
	if gateway != "" {
		collector = metrics.NewCollector(cfg.Name)
		opts = append(opts, pipeline.WithCollector(collector))
	}

	runner, err := pipeline.New(cfg, opts...)
	if err != nil {
		return err
	}
	result := runner.Run(ctx)

	if collector != nil {
		pushCtx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		if err := collector.Push(pushCtx, gateway); err != nil {
			log.Warn("failed to push metrics", zap.String("pushgateway", gateway), zap.Error(err))
		}
		cancel()
	}

	if err := writeReport(cmd.OutOrStdout(), v.GetString("report"), result); err != nil {
		return err
	}
	if !result.Succeeded() {
		return fmt.Errorf("pipeline %q failed: %w", result.Pipeline, result.Cause)
	}
	return nil
}

func writeReport(stdout io.Writer, path string, result *pipeline.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
