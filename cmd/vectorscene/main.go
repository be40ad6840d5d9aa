// Command vectorscene is a headless driver for the scene assembly and
// tile pipeline core: it loads a scene from a URL, drives Update at a
// fixed tick, and logs scene-ready/tile-manager progress. It has no
// renderer (per spec.md's non-goals, OpenGL draw state is out of scope)
// and exists to exercise the pipeline end to end from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NERVsystems/vectorscene/pkg/coords"
	"github.com/NERVsystems/vectorscene/pkg/mapengine"
	"github.com/NERVsystems/vectorscene/pkg/monitoring"
	"github.com/NERVsystems/vectorscene/pkg/scenegraph"
	"github.com/NERVsystems/vectorscene/pkg/sceneurl"
	"github.com/NERVsystems/vectorscene/pkg/tracing"
	ver "github.com/NERVsystems/vectorscene/pkg/version"
)

var (
	sceneURL       string
	centerFlag     string
	zoomFlag       float64
	debug          bool
	showVersion    bool
	userAgent      string
	tickInterval   time.Duration
	runFor         time.Duration
	asyncLoad      bool
	enableMonitor  bool
	monitoringAddr string
)

func init() {
	flag.StringVar(&sceneURL, "scene", "", "Scene document URL to load (required unless --version)")
	flag.StringVar(&centerFlag, "center", "0,0", "Initial camera center, any of decimal/DMS/MGRS/UTM")
	flag.Float64Var(&zoomFlag, "zoom", 10, "Initial camera zoom level")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&showVersion, "version", false, "Print version information and exit")
	flag.StringVar(&userAgent, "user-agent", "vectorscene/0.1", "User-Agent string for tile and document requests")
	flag.DurationVar(&tickInterval, "tick", 16*time.Millisecond, "Update tick interval")
	flag.DurationVar(&runFor, "run-for", 0, "Exit after this duration (0 runs until interrupted)")
	flag.BoolVar(&asyncLoad, "async", true, "Load the scene asynchronously")
	flag.BoolVar(&enableMonitor, "enable-monitoring", true, "Enable the Prometheus metrics endpoint")
	flag.StringVar(&monitoringAddr, "monitoring-addr", ":9090", "Monitoring server address")
}

func main() {
	flag.Parse()

	if showVersion {
		info := ver.Info()
		fmt.Printf("vectorscene %s (commit %s, built %s, %s)\n",
			info["version"], info["commit"], info["build_date"], info["go_version"])
		return
	}

	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if sceneURL == "" {
		logger.Error("--scene is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, ver.Version)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("error shutting down tracing", "error", err)
			}
		}()
	}

	var healthChecker *monitoring.HealthChecker
	if enableMonitor {
		healthChecker = monitoring.NewHealthChecker(monitoring.ServiceName, ver.Version)
		defer healthChecker.Shutdown()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/healthz", healthChecker.HealthHandler())
		mux.Handle("/readyz", healthChecker.ReadinessHandler())
		mux.Handle("/livez", healthChecker.LivenessHandler())
		srv := &http.Server{
			Addr:              monitoringAddr,
			Handler:           mux,
			ReadHeaderTimeout: 30 * time.Second,
		}
		go func() {
			logger.Info("starting Prometheus metrics server", "addr", monitoringAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("monitoring server error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown monitoring server", "error", err)
			}
		}()
	}

	root, err := sceneurl.Parse(sceneURL)
	if err != nil {
		logger.Error("invalid --scene URL", "url", sceneURL, "error", err)
		os.Exit(1)
	}

	center, err := coords.Parse(centerFlag)
	if err != nil {
		logger.Error("invalid --center", "value", centerFlag, "error", err)
		os.Exit(1)
	}

	m := mapengine.New(mapengine.Config{
		UserAgent:       userAgent,
		MaxCachedTiles:  2048,
		MaxCacheBytes:   256 << 20,
		OnRequestRender: func() { slog.Debug("render requested") },
	})
	defer m.Shutdown()

	tileMonitors := newTileSourceMonitors(m, healthChecker)
	defer tileMonitors.stopAll()

	m.OnSceneReady(func(id uint64, errs []error) {
		logger.Info("scene ready", "scene_id", id, "errors", len(errs))
		for _, e := range errs {
			logger.Warn("scene load error", "scene_id", id, "error", e)
		}
		tileMonitors.sync()
	})
	m.SetCamera(mapengine.Camera{Center: center.Location, Zoom: zoomFlag})
	m.Resize(1280, 720)

	id := m.LoadScene(scenegraph.Options{RootURL: root}, asyncLoad)
	logger.Info("scene load started", "scene_id", id, "async", asyncLoad, "center_format", center.Format)

	runLoop(ctx, m, logger)
}

// tileSourceMonitors keeps one monitoring.ConnectionMonitor running per
// tile source on the current scene, feeding the /healthz surface real
// tile-source reachability instead of leaving it unfed. sync is called
// from the scene-ready callback to reconcile the monitor set against
// whatever sources the new current scene registered.
type tileSourceMonitors struct {
	m  *mapengine.Map
	hc *monitoring.HealthChecker

	mu       sync.Mutex
	monitors map[string]*monitoring.ConnectionMonitor
}

func newTileSourceMonitors(m *mapengine.Map, hc *monitoring.HealthChecker) *tileSourceMonitors {
	return &tileSourceMonitors{m: m, hc: hc, monitors: make(map[string]*monitoring.ConnectionMonitor)}
}

// sync starts a monitor for every source id on the current scene that
// doesn't already have one, and stops monitors for ids that no longer
// exist (a prior scene's sources, now disposed).
func (t *tileSourceMonitors) sync() {
	if t.hc == nil {
		return
	}
	ids := t.m.SourceIDs()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for id := range want {
		if _, ok := t.monitors[id]; ok {
			continue
		}
		sourceID := id
		mon := monitoring.NewConnectionMonitor(sourceID, t.hc, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return t.m.ProbeSource(ctx, sourceID)
		}, 30*time.Second)
		mon.Start()
		t.monitors[id] = mon
	}

	for id, mon := range t.monitors {
		if want[id] {
			continue
		}
		mon.Stop()
		t.hc.RemoveConnection(id)
		delete(t.monitors, id)
	}
}

func (t *tileSourceMonitors) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, mon := range t.monitors {
		mon.Stop()
		delete(t.monitors, id)
	}
}

func runLoop(ctx context.Context, m *mapengine.Map, logger *slog.Logger) {
	var deadline <-chan time.Time
	if runFor > 0 {
		timer := time.NewTimer(runFor)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-deadline:
			logger.Info("run-for elapsed, shutting down")
			return
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			state := m.Update(dt)
			if state&mapengine.StateSceneReady != 0 {
				logger.Debug("frame", "state", state)
			}
		}
	}
}
