package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gitlab.com/slon/sharedmutex/lockstat"
	"gitlab.com/slon/sharedmutex/scenario"
)

type options struct {
	configPath  string
	logLevel    string
	metricsAddr string

	readers          int
	writers          int
	duration         time.Duration
	hold             time.Duration
	writerPreference bool
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// loadConfig reads the config file, if any, and lets explicitly set flags win.
func (o *options) loadConfig(flags *pflag.FlagSet) (scenario.Config, error) {
	cfg := scenario.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = scenario.LoadConfig(o.configPath); err != nil {
			return cfg, err
		}
	}

	if flags.Changed("readers") {
		cfg.Readers = o.readers
	}
	if flags.Changed("writers") {
		cfg.Writers = o.writers
	}
	if flags.Changed("duration") {
		cfg.Duration = o.duration
	}
	if flags.Changed("hold") {
		cfg.Hold = o.hold
	}
	if flags.Changed("writer-preference") {
		cfg.WriterPreference = o.writerPreference
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
	return cfg, cfg.Validate()
}

type runFunc func(r *scenario.Runner, ctx context.Context, cfg scenario.Config) (scenario.Report, error)

func (o *options) run(cmd *cobra.Command, name string, fn runFunc) error {
	cfg, err := o.loadConfig(cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(o.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	logger = logger.With(zap.String("run_id", id.String()))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	runner := scenario.NewRunner(logger, scenario.WithMetrics(lockstat.NewMetrics(reg)))

	if cfg.MetricsAddr != "" {
		srv := newMetricsServer(cfg.MetricsAddr, reg)
		go serveMetrics(srv, logger)
		defer shutdownMetrics(srv, logger)
	}

	logger.Info("starting scenario",
		zap.String("scenario", name),
		zap.Int("readers", cfg.Readers),
		zap.Int("writers", cfg.Writers),
		zap.Duration("duration", cfg.Duration),
		zap.Bool("writer_preference", cfg.WriterPreference),
	)

	report, err := fn(runner, ctx, cfg)
	if err != nil {
		logger.Error("scenario failed", append(report.Fields(), zap.Error(err))...)
		return err
	}
	logger.Info("scenario finished", report.Fields()...)
	return nil
}

func newRootCmd() *cobra.Command {
	return newCommand(&options{})
}

func newCommand(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "rwlockbench",
		Short:         "Put the shared mutex under load and report what happened",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&o.configPath, "config", "", "path to a .yaml scenario config")
	flags.StringVar(&o.logLevel, "log-level", "info", "log level")
	flags.StringVar(&o.metricsAddr, "metrics-addr", "", "serve /metrics on this address while running")
	flags.IntVar(&o.readers, "readers", 0, "number of reader goroutines")
	flags.IntVar(&o.writers, "writers", 0, "number of writer goroutines")
	flags.DurationVar(&o.duration, "duration", 0, "how long to run")
	flags.DurationVar(&o.hold, "hold", 0, "time spent inside the critical section")
	flags.BoolVar(&o.writerPreference, "writer-preference", false, "block new readers while a writer waits")

	root.AddCommand(
		&cobra.Command{
			Use:   "starvation",
			Short: "Relay readers past a waiting writer",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return o.run(cmd, "starvation", (*scenario.Runner).Starvation)
			},
		},
		&cobra.Command{
			Use:   "contention",
			Short: "Mix readers and writers and check exclusion",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return o.run(cmd, "contention", (*scenario.Runner).Contention)
			},
		},
	)
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
