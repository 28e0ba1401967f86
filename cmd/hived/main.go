// Command hived runs the substrate as a standalone daemon: it loads
// config.yaml, assembles a Hive, registers a small fleet of demo agents,
// and serves until an interrupt or terminate signal triggers a graceful
// drain.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/agent"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/config"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/coordinator"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/hive"
	hiveotel "github.com/do-ops885/ai-orchestrator-hub-sub000/internal/otel"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/resourceprobe"
	"github.com/do-ops885/ai-orchestrator-hub-sub000/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

  %s [flags]        Start the hive daemon, logging to stdout and
                     $HIVE_HOME/logs/system.jsonl.

FLAGS:
`, os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  HIVE_HOME               Data directory (default: ~/.hive)
  HIVE_LOG_LEVEL           Overrides config.yaml's log_level
  HIVE_MAX_CONCURRENT      Overrides flow_controller.max_concurrent
`)
}

func main() {
	agentCount := flag.Int("agents", 2, "number of demo worker agents to register at startup")
	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	quietLogs := !isatty.IsTerminal(os.Stdout.Fd())
	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, quietLogs)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "fingerprint", cfg.Fingerprint())

	otelProvider, err := hiveotel.Init(ctx, hiveotel.Config{Enabled: false})
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(ctx)

	metrics, err := hiveotel.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_OTEL_METRICS_INIT", err)
	}

	probe := resourceprobe.NewHostProbe(0)

	h := hive.New(cfg, demoExecutor{}, probe, metrics, nil, logger)
	h.Start(ctx)
	logger.Info("startup phase", "phase", "hive_started")

	for i := 0; i < *agentCount; i++ {
		a, err := h.Registry.Register(ctx, agent.RegisterConfig{Type: "worker"})
		if err != nil {
			logger.Warn("failed to register demo agent", "error", err)
			continue
		}
		logger.Info("demo agent registered", "agent_id", a.ID, "name", a.Name)
	}

	confWatcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := confWatcher.Start(ctx); err != nil {
		fatalStartup(logger, "E_CONFIG_WATCHER_START", err)
	}
	go func() {
		for ev := range confWatcher.Events() {
			logger.Info("config hot-reload event", "path", ev.Path, "op", ev.Op.String())
			if _, err := config.Load(); err != nil {
				logger.Error("config.yaml reload failed", "error", err)
			}
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	drainTimeout := 5 * time.Second
	if err := h.Stop(drainTimeout); err != nil {
		logger.Warn("hive did not drain within the timeout", "error", err)
	}
	logger.Info("shutdown complete")
}

// demoExecutor is the AgentExecutor wired into the daemon when no real
// neural/tool backend is configured. The spec treats agent execution as
// an opaque execute(task)->result functor; this just echoes the task id.
type demoExecutor struct{}

func (demoExecutor) Execute(ctx context.Context, task coordinator.Task) (string, error) {
	return fmt.Sprintf("completed %s (%s)", task.ID, task.Title), nil
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"runtime","trace_id":"-","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano), reasonCode, message)
	}
	os.Exit(1)
}
