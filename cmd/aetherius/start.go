package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/AetheriusMC/aetherius/pkg/component"
	"github.com/AetheriusMC/aetherius/pkg/daemon"
	"github.com/AetheriusMC/aetherius/pkg/events"
	"github.com/AetheriusMC/aetherius/pkg/log"
	"github.com/AetheriusMC/aetherius/pkg/metrics"
	"github.com/AetheriusMC/aetherius/pkg/pipeline"
	"github.com/AetheriusMC/aetherius/pkg/storage"
	"github.com/AetheriusMC/aetherius/pkg/supervisor"
	"github.com/AetheriusMC/aetherius/pkg/types"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the engine: game server, console daemon, and components",
	Long: `Start brings the whole engine up in the foreground: it launches (or
adopts) the game server, loads and enables components, and serves the
persistent console socket until interrupted or a console client sends
!quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		noServer, _ := cmd.Flags().GetBool("no-server")
		return runEngine(noServer)
	},
}

func init() {
	startCmd.Flags().Bool("no-server", false, "Bring the engine up without starting the game server")
}

func runEngine(noServer bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := log.WithComponent("engine")

	bus := events.NewBus(events.Config{})

	sup := supervisor.New(supervisor.Config{
		JarPath:        cfg.Server.JarPath,
		WorkingDir:     cfg.Server.WorkingDir,
		JavaBin:        cfg.Server.JavaBin,
		JavaArgs:       cfg.Server.JavaArgs,
		Command:        cfg.Server.Command,
		StopTimeout:    cfg.Server.StopTimeout.Std(),
		StartupGrace:   cfg.Server.StartupGrace.Std(),
		CaptureWindow:  cfg.Server.CaptureWindow.Std(),
		AutoRestart:    cfg.Server.AutoRestart,
		RestartBackoff: cfg.Server.RestartBackoff.Std(),
	}, bus)

	adopted, err := sup.Adopt()
	if err != nil {
		logger.Warn().Err(err).Msg("adoption check failed")
	}
	if adopted {
		fmt.Println("✓ Adopted already-running game server")
	} else if !noServer {
		if err := sup.Start(); err != nil {
			return fmt.Errorf("failed to start game server: %w", err)
		}
		fmt.Println("✓ Game server starting")
	}

	queue, err := pipeline.NewQueue(filepath.Join(cfg.Server.WorkingDir, "queue"))
	if err != nil {
		return fmt.Errorf("failed to open command queue: %w", err)
	}
	proc := pipeline.NewProcessor(queue, sup, sup.Captures(), pipeline.ProcessorConfig{
		PollInterval:  cfg.Queue.PollInterval.Std(),
		CaptureWindow: cfg.Queue.CaptureWindow.Std(),
		GCMaxAge:      cfg.Queue.GCMaxAge.Std(),
	})
	proc.Start()
	fmt.Println("✓ Command pipeline running")

	components := component.NewLoader(component.Config{
		Dir:            cfg.Components.Dir,
		StartupTimeout: cfg.Components.StartupTimeout.Std(),
	}, bus)
	bootComponents(components, logger)

	store, err := storage.NewBoltStore(cfg.Daemon.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}

	d := daemon.New(daemon.Config{
		SocketPath: cfg.Daemon.SocketPath,
	}, sup, components, bus, store)
	if err := d.Start(); err != nil {
		if errors.Is(err, daemon.ErrSocketInUse) {
			return fmt.Errorf("another engine instance is already running: %w", err)
		}
		return err
	}
	fmt.Printf("✓ Console ready on %s\n", cfg.Daemon.SocketPath)

	collector := metrics.NewCollector(sup, bus, components)
	collector.Start()

	var metricsSrv *http.Server
	if cfg.Daemon.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.Daemon.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		fmt.Printf("✓ Metrics on http://%s/metrics\n", cfg.Daemon.MetricsAddr)
	}

	fmt.Println()
	fmt.Println("Engine is running. Attach with 'aetherius console', Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case <-d.Quit():
		fmt.Println("Shutdown requested from console...")
	}

	proc.Stop()
	collector.Stop()
	components.Shutdown()
	if err := sup.Stop(); err != nil && !errors.Is(err, supervisor.ErrNotRunning) {
		logger.Warn().Err(err).Msg("game server stop failed")
	}
	d.Shutdown()
	if metricsSrv != nil {
		_ = metricsSrv.Close()
	}
	_ = store.Close()

	fmt.Println("✓ Shutdown complete")
	return nil
}

// bootComponents discovers, loads, and enables everything under the
// components directory. Failures are per-component and non-fatal except
// a dependency cycle, which loads nothing.
func bootComponents(loader *component.Loader, logger zerolog.Logger) {
	if _, err := loader.Scan(); err != nil {
		logger.Warn().Err(err).Msg("component scan failed")
		return
	}
	n, err := loader.LoadAll()
	if err != nil {
		logger.Warn().Err(err).Msg("component load failed")
		return
	}
	enabled := 0
	for _, snap := range loader.List() {
		if snap.State != types.ComponentLoaded {
			continue
		}
		if err := loader.Enable(snap.Info.Name); err != nil {
			logger.Warn().Err(err).Str("component", snap.Info.Name).Msg("component enable failed")
			continue
		}
		enabled++
	}
	if n > 0 {
		fmt.Printf("✓ Components: %d loaded, %d enabled\n", n, enabled)
	}
}
