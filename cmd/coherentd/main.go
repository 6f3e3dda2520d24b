package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/coherentd/internal/config"
	"codeberg.org/mutker/coherentd/internal/errors"
	"codeberg.org/mutker/coherentd/internal/logger"
	"codeberg.org/mutker/coherentd/internal/pid"
	"codeberg.org/mutker/coherentd/internal/runtime"
	"codeberg.org/mutker/coherentd/internal/server"
	"codeberg.org/mutker/coherentd/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

var (
	cfg       *config.Config
	rt        *runtime.Runtime
	collector telemetry.Collector
	statusSrv *server.Server
)

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	// The debug and verbose flags take precedence over the configured
	// level.
	if !cfg.Debug && !cfg.Verbose {
		logger.SetLogLevel(logger.LevelFromString(cfg.LogLevel))
	}
	logger.Debug().Msg("Config loaded")

	rt, err = runtime.New(runtime.Config{
		Domains:           cfg.Domains,
		PulseRateHz:       cfg.PulseRate,
		Retention:         cfg.Retention,
		Ceiling:           cfg.Ceiling,
		Threshold:         cfg.Threshold,
		GrowthProbability: runtime.DefaultGrowthProbability,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize runtime")
	}

	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.Enabled = cfg.Telemetry && !cfg.Monitor
	if cfg.TelemetryDB != "" {
		telemetryCfg.DBPath = cfg.TelemetryDB
	}
	collector, err = telemetry.NewService(telemetryCfg, logger.Default())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize telemetry")
	}

	if cfg.Listen != "" {
		statusSrv, err = server.New(cfg.Listen, rt, logger.Default())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize status server")
		}
	}
}

func main() {
	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("failed to write PID file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	rt.StartHeartbeat()
	if statusSrv != nil {
		statusSrv.Start()
	}

	if err := loop(ctx); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}
	cleanup()
}

func loop(ctx context.Context) error {
	if cfg.Interval <= 0 {
		return fmt.Errorf("invalid interval: %d", cfg.Interval)
	}

	interval := time.Duration(cfg.Interval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if cfg.Monitor {
		logger.Info().Msg("Monitor mode activated. Logging runtime status...")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			exerciseDomains()
			st := rt.Status()
			logStatus(st)

			if err := collector.Record(ctx, snapshotFromStatus(st)); err != nil {
				logger.Warn().Err(err).
					Str("code", string(errors.CodeOf(err))).
					Msg("failed to record telemetry snapshot")
			}
		}
	}
}

// exerciseDomains routes a small background workload through every
// configured domain so the tree keeps accumulating observations even
// when no external caller is driving Execute.
func exerciseDomains() {
	for _, domain := range cfg.Domains {
		_, _ = rt.Execute(domain, func() (any, error) {
			time.Sleep(time.Duration(rand.Intn(100)) * time.Microsecond)
			return nil, nil
		})
	}
}

func logStatus(st runtime.Status) {
	event := logger.Info().
		Uint64("ops_total", st.OpsTotal).
		Uint64("epochs", st.Epochs).
		Bool("pulse_locked", st.PulseLocked).
		Float64("pulse_coherence", st.PulseCoherence).
		Int("spine_stage", st.SpineStage).
		Float64("root_score", st.RootScore).
		Str("root_health", st.RootHealth)

	if st.PulseLocked {
		event = event.Float64("pulse_locked_hz", st.PulseLockedHz)
	}
	for name, domain := range st.Domains {
		event = event.Float64("score_"+name, domain.Score)
	}

	event.Msg("Runtime status")
}

func snapshotFromStatus(st runtime.Status) *telemetry.Snapshot {
	scores := make(map[string]float64, len(st.Domains))
	for name, domain := range st.Domains {
		scores[name] = domain.Score
	}

	return &telemetry.Snapshot{
		Timestamp:      time.Now(),
		OpsTotal:       st.OpsTotal,
		Epochs:         st.Epochs,
		PulseLocked:    st.PulseLocked,
		PulseCoherence: st.PulseCoherence,
		PulseLockedHz:  st.PulseLockedHz,
		SpineStage:     st.SpineStage,
		RootScore:      st.RootScore,
		RootHealth:     st.RootHealth,
		DomainScores:   scores,
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup() {
	rt.StopHeartbeat()

	if statusSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := statusSrv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to shut down status server")
		}
	}

	if err := collector.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close telemetry")
	}

	if err := pid.Remove(); err != nil {
		logger.Error().Err(err).Msg("failed to remove PID file")
	}

	logger.Info().Msg("Shutdown completed")
}
