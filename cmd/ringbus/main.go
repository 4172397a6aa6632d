// Package main is the entry point for the ringbus event bus daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/ringbus/internal/admin"
	"github.com/dshills/ringbus/internal/bus"
	"github.com/dshills/ringbus/internal/config"
	"github.com/dshills/ringbus/internal/logging"
	"github.com/dshills/ringbus/internal/metrics"
	"github.com/dshills/ringbus/internal/worker"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const stopTimeout = 30 * time.Second

type options struct {
	configPath  string
	demo        int
	printConfig string
	showVersion bool
	flags       *pflag.FlagSet
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if opts.showVersion {
		fmt.Printf("ringbus %s (commit %s, built %s)\n", version, commit, date)
		return 0
	}

	src, err := config.NewSource(config.WithFile(opts.configPath), config.WithFlags(opts.flags))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	cfg, err := src.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
		return 1
	}
	if opts.printConfig != "" {
		if err := config.Dump(os.Stdout, cfg, opts.printConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Close()

	if cfg.WatchConfig {
		src.SetLogger(logger.Named("config"))
		src.OnChange(config.LogLevelReloader(logger.Level, logger.Logger))
		src.Watch()
	}

	if err := serve(cfg, opts, logger.Logger); err != nil {
		logger.Error("ringbus exited with error", zap.Error(err))
		return 1
	}
	return 0
}

func parseFlags(args []string) (options, error) {
	fs := pflag.NewFlagSet("ringbus", pflag.ContinueOnError)
	opts := options{flags: fs}

	fs.StringVarP(&opts.configPath, "config", "c", "", "path to configuration file (toml, yaml or json)")
	fs.IntVar(&opts.demo, "demo", 0, "publish this many sample events after start")
	fs.StringVar(&opts.printConfig, "print-config", "", "print the effective configuration as yaml or toml and exit")
	fs.Lookup("print-config").NoOptDefVal = config.FormatYAML
	fs.BoolVarP(&opts.showVersion, "version", "v", false, "print version information and exit")
	config.RegisterFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ringbus [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	return opts, fs.Parse(args)
}

// serve runs the bus and the optional admin server until a signal arrives
// or the bus stops itself.
func serve(cfg *config.Config, opts options, logger *zap.Logger) error {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registry, err := newRegistry(cfg, logger.Named("handler"))
	if err != nil {
		return err
	}

	busOpts, err := cfg.BusOptions()
	if err != nil {
		return err
	}
	busOpts = append(busOpts,
		bus.WithLogger(logger.Named("bus")),
		bus.WithMetrics(metrics.New(promReg)),
		bus.WithExceptionHandler(worker.NewLoggingExceptionHandler(logger.Named("exception"))),
	)

	b, err := bus.New(registry, busOpts...)
	if err != nil {
		return err
	}
	if err := b.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Admin.Addr != "" {
		srv := admin.NewServer(b, admin.WithLogger(logger.Named("admin")), admin.WithGatherer(promReg))
		g.Go(func() error {
			return srv.Run(gctx, cfg.Admin.Addr)
		})
	}
	if opts.demo > 0 {
		g.Go(func() error {
			return publishDemo(gctx, b, opts.demo, logger)
		})
	}

	select {
	case <-gctx.Done():
	case <-b.Done():
		logger.Info("Event bus stopped by exit hook")
	}
	stop()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	stopErr := b.Stop(stopCtx)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return errors.Join(err, stopErr)
	}
	return stopErr
}
