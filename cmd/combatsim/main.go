package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/OCAP2/combatsim/internal/combatlog"
	"github.com/OCAP2/combatsim/internal/config"
	"github.com/OCAP2/combatsim/internal/dispatcher"
	"github.com/OCAP2/combatsim/internal/influx"
	"github.com/OCAP2/combatsim/internal/loader"
	"github.com/OCAP2/combatsim/internal/logging"
	"github.com/OCAP2/combatsim/internal/monitor"
	intOtel "github.com/OCAP2/combatsim/internal/otel"
	"github.com/OCAP2/combatsim/internal/sim"
	"github.com/OCAP2/combatsim/pkg/core"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.1.0"
	BuildDate      string = "unknown"

	AppName string = "combatsim"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	// RunContext adds session and step to every log line
	RunContext = &logging.RunContext{}

	SessionStartTime time.Time = time.Now()

	LogFilePath string
	LogFile     *os.File

	gelfWriter *gelf.Writer
)

// flags
var (
	configDir   = pflag.String("config", ".", "directory containing "+config.FileName)
	interactive = pflag.BoolP("interactive", "i", false, "read commands from stdin instead of running to the end")
	stateOut    = pflag.String("state-out", "", "write the final GeoJSON state to this file")
	showVersion = pflag.Bool("version", false, "print version and exit")
)

func init() {
	pflag.String("scenario", "", "scenario file (json, yaml or toml)")
	pflag.Uint64("seed", 0, "random seed, 0 derives one from the clock")
	pflag.Int("max-steps", 1000, "step cap for a run")
	pflag.Duration("step-interval", 0, "pause between steps")
	pflag.String("log-level", "info", "log level")
}

// bindFlags lets command line flags override the config file.
func bindFlags(fs *pflag.FlagSet) error {
	bindings := map[string]string{
		"sim.scenario":     "scenario",
		"sim.seed":         "seed",
		"sim.maxSteps":     "max-steps",
		"sim.stepInterval": "step-interval",
		"logLevel":         "log-level",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}
	return nil
}

func main() {
	pflag.Parse()
	if *showVersion {
		fmt.Printf("%s %s (built %s)\n", AppName, CurrentVersion, BuildDate)
		return
	}
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(logging.Options{Level: "info"})
	Logger = SlogManager.Logger()

	if err := config.Load(*configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}
	if err := bindFlags(pflag.CommandLine); err != nil {
		return err
	}

	if err := setupLogging(); err != nil {
		return err
	}
	defer closeLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	simCfg := config.GetSimConfig()
	if simCfg.Scenario == "" {
		return errors.New("no scenario given, use --scenario or sim.scenario")
	}
	scenario, err := loader.Load(simCfg.Scenario)
	if scenario == nil {
		return err
	}
	if err != nil {
		Logger.Warn("Scenario loaded with skipped records", "error", err)
	}
	Logger.Info("Scenario loaded",
		"file", simCfg.Scenario,
		"units", len(scenario.Units),
		"rules", scenario.Rules.Len(),
		"default_rules", scenario.DefaultRules)

	if simCfg.Seed == 0 {
		simCfg.Seed = uint64(time.Now().UnixNano())
	}
	Logger.Info("Using seed", "seed", simCfg.Seed)

	// event logger: jsonl first, then mirrors
	logCfg := config.GetCombatLogConfig()
	dbLog := logging.NewZerolog(logWriter(), viper.GetString("logLevel"), "database")
	backends := createBackends(logCfg, config.GetStorageConfig(), SessionStartTime, Logger, dbLog)
	events, err := combatlog.New(ctx, combatlog.Config{
		SessionID:     SessionStartTime.Format(combatlog.SessionIDLayout),
		PollInterval:  logCfg.PollInterval,
		DrainTimeout:  logCfg.DrainTimeout,
		JoinTimeout:   logCfg.JoinTimeout,
		HighWaterMark: logCfg.HighWaterMark,
	}, Logger, backends...)
	if err != nil {
		return fmt.Errorf("failed to start combat log: %w", err)
	}
	RunContext.SetSession(events.SessionID())

	simulation := sim.New(sim.Options{
		Seed:                    simCfg.Seed,
		Sink:                    events,
		Logger:                  Logger,
		Potential:               potentialWeights(simCfg.Potential),
		DefeatThreshold:         simCfg.DefeatThreshold,
		DrawOnMutualElimination: simCfg.DrawOnMutualElimination,
	})

	a := &app{
		sim:      simulation,
		events:   events,
		runCtx:   RunContext,
		log:      Logger,
		out:      os.Stdout,
		maxSteps: simCfg.MaxSteps,
		interval: simCfg.StepInterval,
	}
	events.SetStatisticsProvider(a.latestStatistics)

	// the logger shuts down on every exit path, including signals
	shutdownLogging := sync.OnceFunc(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := simulation.ShutdownLogging(shutdownCtx); err != nil {
			Logger.Error("Combat log shutdown finished with errors", "error", err)
		}
		for name, path := range events.ExportedFiles() {
			Logger.Info("Combat log written", "backend", name, "path", path)
		}
	})
	defer shutdownLogging()

	if err := simulation.Initialize(scenario.Units, scenario.Rules); err != nil {
		if !simulation.IsRunning() {
			return fmt.Errorf("failed to initialize simulation: %w", err)
		}
		Logger.Warn("Simulation initialized with skipped units", "error", err)
	}
	a.publish()

	if im := setupInflux(ctx); im != nil {
		a.influx = im
		defer func() {
			if err := im.Close(); err != nil {
				Logger.Warn("Failed to close influx manager", "error", err)
			}
		}()
	}

	stopMonitor, err := setupMonitor(a)
	if err != nil {
		Logger.Error("Failed to start monitor", "error", err)
	} else {
		defer stopMonitor()
	}

	if *interactive {
		err = runInteractive(ctx, a, os.Stdin)
	} else {
		_, err = a.run(ctx, 0)
		if errors.Is(err, errMaxSteps) {
			err = nil
		}
	}
	if errors.Is(err, context.Canceled) {
		Logger.Warn("Interrupted, shutting down")
		err = nil
	}
	if err != nil {
		return err
	}

	shutdownLogging()
	a.printStatistics()
	if *stateOut != "" {
		if err := writeStateFile(*stateOut, simulation.ExportState()); err != nil {
			Logger.Error("Failed to write state file", "path", *stateOut, "error", err)
		}
	}
	return nil
}

// runInteractive reads one command per line until :SHUTDOWN:, EOF or a
// signal. Lines are read on a separate goroutine; commands run here.
func runInteractive(ctx context.Context, a *app, in io.Reader) error {
	d, err := dispatcher.New(Logger)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	registerCommands(ctx, d, a)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(a.out, a.statusLine())
	for !a.quit {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			e, err := dispatcher.ParseLine(line)
			if errors.Is(err, dispatcher.ErrEmptyLine) {
				continue
			}
			result, err := d.Dispatch(e)
			if err != nil {
				fmt.Fprintln(a.out, "error:", err)
				continue
			}
			fmt.Fprintln(a.out, result)
		}
	}
	return nil
}

func setupLogging() error {
	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}

	LogFilePath = logging.LogFilePath(logsDir, AppName, SessionStartTime)
	if _, err := os.Stat(LogFilePath); err == nil {
		os.Rename(LogFilePath, LogFilePath+".old")
	}
	var err error
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(context.Background(), intOtel.FromConfig(otelCfg, LogFile))
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "file", LogFilePath, "endpoint", otelCfg.Endpoint)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}

	var extra []slog.Handler
	graylogCfg := config.GetGraylogConfig()
	if graylogCfg.Enabled {
		h, w, err := logging.NewGelfHandler(graylogCfg.Address, viper.GetString("logLevel"))
		if err != nil {
			Logger.Error("Failed to initialize Graylog handler", "error", err)
		} else {
			gelfWriter = w
			extra = append(extra, h)
		}
	}

	SlogManager.Setup(logging.Options{
		File:     LogFile,
		Console:  true,
		Level:    viper.GetString("logLevel"),
		Provider: otelLogProvider,
		Extra:    extra,
		Context:  RunContext.Attrs,
	})
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", LogFilePath, "version", CurrentVersion)
	return nil
}

func closeLogging() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "failed to flush logs:", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "failed to shut down OTel:", err)
		}
	}
	if gelfWriter != nil {
		gelfWriter.Close()
	}
	if LogFile != nil {
		LogFile.Close()
	}
}

// logWriter is where the zerolog-based infrastructure managers write.
func logWriter() io.Writer {
	if LogFile != nil {
		return LogFile
	}
	return os.Stdout
}

func setupInflux(ctx context.Context) *influx.Manager {
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		return nil
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = viper.GetString("logsDir")
	}
	im := influx.NewManager(logging.NewZerolog(logWriter(), viper.GetString("logLevel"), "influx"), cfg)
	if err := im.Connect(ctx); err != nil {
		Logger.Error("Failed to set up influx metrics", "error", err)
		return nil
	}
	return im
}

// setupMonitor starts the status file writer and the /metrics endpoint when
// configured. The returned func stops both.
func setupMonitor(a *app) (func(), error) {
	cfg := config.GetMonitorConfig()

	var collector *monitor.Collector
	var server *http.Server
	if cfg.MetricsListen != "" {
		var err error
		collector, err = monitor.NewCollector(nil)
		if err != nil {
			return nil, err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		server = &http.Server{Addr: cfg.MetricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				Logger.Error("Metrics server failed", "error", err)
			}
		}()
		Logger.Info("Serving metrics", "addr", cfg.MetricsListen)
	}

	var svc *monitor.Service
	if cfg.Enabled || collector != nil {
		svc = monitor.NewService(monitor.Dependencies{
			Source:     a.latestStatus,
			Logger:     Logger,
			StatusFile: cfg.StatusFile,
			Interval:   cfg.Interval,
			Collector:  collector,
		})
		if err := svc.Start(); err != nil {
			if server != nil {
				server.Close()
			}
			return nil, err
		}
	}

	return func() {
		if svc != nil {
			svc.Stop()
		}
		if server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			server.Shutdown(ctx)
		}
	}, nil
}

func potentialWeights(in map[string]float64) map[core.UnitType]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[core.UnitType]float64, len(in))
	for name, w := range in {
		if t, ok := core.ParseUnitType(name); ok {
			out[t] = w
		}
	}
	return out
}

func writeStateFile(path string, state sim.StateExport) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeJSON(f, state); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
