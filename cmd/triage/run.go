package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/joyshmitz/process-triage-sub001/config"
	"github.com/joyshmitz/process-triage-sub001/pipeline"
)

// Version is set at build time via ldflags.
var Version = "0.1.0"

// storeScope namespaces the persisted alpha-investing/robot-counter state
// for a single host within decision/store, grounded on
// ftahirops-xtop/config's single-host assumption: one daemon, one scope.
const storeScope = "default"

// Config holds the CLI flags for one triage run.
type Config struct {
	Once        bool
	Interval    time.Duration
	HomeDir     string
	DryRun      bool
	MetricsAddr string
	LogLevel    string
	LogFormat   string
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `triage — Bayesian process-triage decision engine

Reads newline-delimited JSON scan batches from stdin, one batch per line
(each line a JSON array of probe observations, see spec §6 "Probe -> core
input"), runs each through the scan-to-action pipeline, and writes
decisions and actions to the audit log.

Usage:
  triage [OPTIONS]

Options:
  -once             Process a single scan batch from stdin, then exit
  -interval N       Expected seconds between scan batches; only used to warn when a tick runs longer
  -home PATH        Home directory used by the CWD categoriser (default: $HOME)
  -dry-run          Build plans and log decisions but never execute actions
  -metrics-addr ADDR  Override the configured Prometheus listen address
  -log-level LEVEL   debug, info, warn, error (default: config)
  -log-format FORMAT  json or console (default: config)
  -version          Print version and exit
`)
}

// ExitCodeError signals a non-zero exit code without calling os.Exit
// directly, so Run stays testable.
type ExitCodeError struct{ Code int }

func (e ExitCodeError) Error() string { return fmt.Sprintf("exit %d", e.Code) }

// Run parses flags, wires every collaborator, and processes scan batches
// from stdin until EOF or cancellation.
func Run() error {
	var cfg Config
	var intervalSec int
	var showVersion bool

	flag.BoolVar(&cfg.Once, "once", false, "Process a single scan batch then exit")
	flag.IntVar(&intervalSec, "interval", 1, "Expected seconds between scan batches")
	flag.StringVar(&cfg.HomeDir, "home", os.Getenv("HOME"), "Home directory for the CWD categoriser")
	flag.BoolVar(&cfg.DryRun, "dry-run", false, "Log decisions but never execute actions")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Override the configured Prometheus listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", "", "Log level override")
	flag.StringVar(&cfg.LogFormat, "log-format", "", "Log format override")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Usage = printUsage
	flag.Parse()

	if showVersion {
		fmt.Printf("triage v%s\n", Version)
		return nil
	}
	cfg.Interval = time.Duration(intervalSec) * time.Second

	core, err := config.LoadCore()
	if err != nil {
		return fmt.Errorf("load core config: %w", err)
	}
	policy, err := config.LoadPolicy()
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	logLevel := core.LogLevel
	if cfg.LogLevel != "" {
		logLevel = cfg.LogLevel
	}
	logFormat := core.LogFormat
	if cfg.LogFormat != "" {
		logFormat = cfg.LogFormat
	}
	logger, err := config.NewLogger(logLevel, logFormat)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	deps, cleanup, err := buildDeps(core, policy, cfg, logger)
	if err != nil {
		return fmt.Errorf("wire dependencies: %w", err)
	}
	defer cleanup()

	metricsAddr := core.MetricsAddr
	if cfg.MetricsAddr != "" {
		metricsAddr = cfg.MetricsAddr
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if core.MetricsEnabled && metricsAddr != "" {
		go func() {
			if err := deps.Metrics.ServeMetrics(ctx, metricsAddr); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	return runLoop(ctx, os.Stdin, cfg, deps, logger)
}

// runLoop decodes scan batches from r and runs each through pipeline.Tick
// until EOF, cancellation, or (with -once) a single batch.
func runLoop(ctx context.Context, r io.Reader, cfg Config, deps pipeline.Deps, logger *zap.Logger) error {
	reader := newScanReader(r)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		batch, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		start := time.Now()
		result, err := pipeline.Tick(ctx, batch, deps)
		if err != nil {
			logger.Error("tick failed", zap.Error(err))
			continue
		}
		elapsed := time.Since(start)
		logger.Info("tick complete",
			zap.Int("candidates", len(result.Candidates)),
			zap.Int("rejected", len(result.Rejections.RejectedIDs)),
			zap.Duration("elapsed", elapsed),
		)
		if cfg.Interval > 0 && elapsed > cfg.Interval {
			logger.Warn("tick took longer than the expected scan interval",
				zap.Duration("elapsed", elapsed), zap.Duration("interval", cfg.Interval))
		}

		if cfg.Once {
			return nil
		}
	}
}
