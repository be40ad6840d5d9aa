// Package mapengine is the thin public surface described in spec.md
// §4.10: it owns the shared platform transport, decode pool, and tile
// cache; drains a main-thread job queue each frame; ticks the current
// scene against the live camera; and hands ready tile geometry to an
// external Renderer. It never blocks on I/O from Update or Render.
package mapengine

import (
	"context"
	"image"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/NERVsystems/vectorscene/pkg/geo"
	"github.com/NERVsystems/vectorscene/pkg/platform"
	"github.com/NERVsystems/vectorscene/pkg/scenegraph"
	"github.com/NERVsystems/vectorscene/pkg/tilecache"
	"github.com/NERVsystems/vectorscene/pkg/tilemanager"
	"github.com/NERVsystems/vectorscene/pkg/tilemath"
	"github.com/NERVsystems/vectorscene/pkg/tilesource"
	"github.com/NERVsystems/vectorscene/pkg/workpool"
)

// Config configures a new Map.
type Config struct {
	UserAgent       string
	DecodeWorkers   int
	MaxCachedTiles  int
	MaxCacheBytes   int64
	RetryOptions    platform.RetryOptions
	OnRequestRender func()
}

// State is the set of flags Update reports about the frame it drove.
type State uint32

const (
	// StateSceneReady is set once the current scene has completed its
	// initial build and can be rendered.
	StateSceneReady State = 1 << iota
	// StateCameraAnimating is set while the camera is still easing
	// toward a target set via SetCamera.
	StateCameraAnimating
)

// Camera is the view a Map renders from.
type Camera struct {
	Center   geo.Location
	Zoom     float64
	Rotation float64
	Tilt     float64
	Padding  [4]float64 // top, right, bottom, left
}

// Renderer is the external draw-call collaborator; defined here as the
// contract this package issues calls against, not implemented (OpenGL
// state management is out of scope per spec.md §1 non-goals).
type Renderer interface {
	DrawTile(id tilemath.ID, sourceID string, meshes []tilesource.Mesh)
	DrawMarker(m scenegraph.Marker)
	Present()
}

// Map is the public façade.
type Map struct {
	req        platform.Requester
	decodePool *workpool.Pool
	cache      *tilecache.Cache[*tilesource.Tile]
	ordered    *workpool.Ordered
	lifecycle  *scenegraph.Lifecycle

	mu           sync.Mutex
	camera       Camera
	targetCamera Camera
	animating    bool
	viewport     image.Point

	jobMu sync.Mutex
	jobs  []func()

	tileOpsMu sync.Mutex
	tileOps   []tilemanager.ClientTileSourceOp

	readyMu sync.Mutex
	onReady func(id uint64, errs []error)
}

// New builds a Map with its own platform transport, decode pool, and tile
// cache, sized per cfg.
func New(cfg Config) *Map {
	workers := cfg.DecodeWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	req := platform.NewHTTPRequester(platform.Config{
		UserAgent:       cfg.UserAgent,
		RetryOptions:    cfg.RetryOptions,
		OnRequestRender: cfg.OnRequestRender,
	})
	decodePool := workpool.NewPool(workers)
	cache := tilecache.New[*tilesource.Tile]("tile", cfg.MaxCachedTiles, cfg.MaxCacheBytes)
	ordered := workpool.NewOrdered()

	m := &Map{
		req:        req,
		decodePool: decodePool,
		cache:      cache,
		ordered:    ordered,
	}
	m.lifecycle = scenegraph.NewLifecycle(ordered, req, decodePool, cache, m.handleSceneReady)
	return m
}

// OnSceneReady registers the callback invoked once per completed scene
// load (sync or async) with its id and any non-fatal build errors.
func (m *Map) OnSceneReady(fn func(id uint64, errs []error)) {
	m.readyMu.Lock()
	m.onReady = fn
	m.readyMu.Unlock()
}

func (m *Map) handleSceneReady(id uint64, errs []error) {
	m.readyMu.Lock()
	fn := m.onReady
	m.readyMu.Unlock()
	if fn != nil {
		fn(id, errs)
	}
}

// LoadScene starts (or runs, if !async) a scene load from opts and
// returns its id.
func (m *Map) LoadScene(opts scenegraph.Options, async bool) uint64 {
	if async {
		return m.lifecycle.LoadAsync(opts)
	}
	scene, err := m.lifecycle.LoadSync(opts)
	if err != nil {
		slog.Error("synchronous scene load failed", "error", err)
	}
	return scene.ID()
}

// Update drains the main-thread job queue, advances the camera toward
// its target, hands staged tile-source ops to the current scene, ticks its
// tile manager and labels against the live view, and reports the frame's state flags. It never
// blocks on I/O.
func (m *Map) Update(dt time.Duration) State {
	m.drainJobs()

	m.mu.Lock()
	animating := m.advanceCamera(dt)
	view := m.viewLocked()
	m.mu.Unlock()

	var state State
	if animating {
		state |= StateCameraAnimating
	}

	scene := m.lifecycle.Current()
	if scene == nil {
		return state
	}
	m.drainTileOps(scene)
	if scene.CompleteScene(view) {
		state |= StateSceneReady
	}
	return state
}

// Render issues draw calls for the current scene's ready tiles and
// markers to r, then asks it to present the frame. A no-op if no scene
// is ready yet.
func (m *Map) Render(r Renderer) {
	scene := m.lifecycle.Current()
	if scene == nil || !scene.Ready() {
		return
	}
	for _, sourceID := range scene.SourceIDs() {
		for _, tile := range scene.Manager().Snapshot(sourceID) {
			r.DrawTile(tile.ID, tile.SourceID, tile.Meshes)
		}
	}
	for _, marker := range scene.Markers().All() {
		r.DrawMarker(marker)
	}
	r.Present()
}

// Resize records the new viewport, applied on the next Update.
func (m *Map) Resize(w, h int) {
	m.enqueue(func() {
		m.mu.Lock()
		m.viewport = image.Point{X: w, Y: h}
		m.mu.Unlock()
	})
}

// SetCamera stages c as the camera's new ease target, applied starting
// on the next Update.
func (m *Map) SetCamera(c Camera) {
	m.enqueue(func() {
		m.mu.Lock()
		m.targetCamera = c
		m.animating = m.targetCamera != m.camera
		m.mu.Unlock()
	})
}

// AddTileSource builds a tile source from cfg (cfg.ID names it) and
// stages it for registration at the head of the next Update.
func (m *Map) AddTileSource(cfg tilesource.Config) {
	src := tilesource.New(cfg.ID, cfg, m.req, m.decodePool, m.cache)
	m.stageTileOp(tilemanager.ClientTileSourceOp{SourceID: cfg.ID, Add: src})
}

// RemoveTileSource unregisters the named tile source and releases its
// tiles, applied at the head of the next Update.
func (m *Map) RemoveTileSource(id string) {
	m.stageTileOp(tilemanager.ClientTileSourceOp{SourceID: id, Remove: true})
}

// ClearTileSource drops the named source's cached tiles without
// unregistering it, applied at the head of the next Update.
func (m *Map) ClearTileSource(id string) {
	m.stageTileOp(tilemanager.ClientTileSourceOp{SourceID: id, Clear: true})
}

// SourceIDs returns the tile source ids registered on the current scene.
// It is nil before any LoadScene call, and empty (not nil) for a scene
// that has been installed as current but hasn't finished loading its
// sources yet. Used to drive a monitoring.ConnectionMonitor per tile
// source.
func (m *Map) SourceIDs() []string {
	scene := m.lifecycle.Current()
	if scene == nil {
		return nil
	}
	return scene.SourceIDs()
}

// ProbeSource performs a lightweight health check against the named tile
// source by requesting its z0/x0/y0 tile through the normal fetch path
// (cache hit or shared in-flight fetch, same as any other tile request).
// It reports nil if no scene or no source by that id is currently
// registered, so a stale id from a just-removed source doesn't flap a
// monitor into the error state.
func (m *Map) ProbeSource(ctx context.Context, id string) error {
	scene := m.lifecycle.Current()
	if scene == nil {
		return nil
	}
	src, ok := scene.Source(id)
	if !ok {
		return nil
	}

	done := make(chan error, 1)
	src.LoadTile(ctx, tilemath.ID{Z: 0, X: 0, Y: 0}, func(_ *tilesource.Tile, err error) {
		done <- err
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels the current scene, joins the ordered worker and decode
// pool, then shuts down the platform transport.
func (m *Map) Shutdown() {
	m.lifecycle.Shutdown()
	m.decodePool.Shutdown()
	m.req.Shutdown()
}

func (m *Map) enqueue(job func()) {
	m.jobMu.Lock()
	m.jobs = append(m.jobs, job)
	m.jobMu.Unlock()
}

func (m *Map) drainJobs() {
	m.jobMu.Lock()
	jobs := m.jobs
	m.jobs = nil
	m.jobMu.Unlock()
	for _, job := range jobs {
		job()
	}
}

func (m *Map) stageTileOp(op tilemanager.ClientTileSourceOp) {
	m.tileOpsMu.Lock()
	m.tileOps = append(m.tileOps, op)
	m.tileOpsMu.Unlock()
}

func (m *Map) drainTileOps(scene *scenegraph.Scene) {
	m.tileOpsMu.Lock()
	ops := m.tileOps
	m.tileOps = nil
	m.tileOpsMu.Unlock()
	if len(ops) == 0 {
		return
	}
	scene.Manager().ApplyClientOps(ops)
}

// advanceCamera must be called with m.mu held. It eases camera toward
// targetCamera at a fixed rate and reports whether it is still animating.
func (m *Map) advanceCamera(dt time.Duration) bool {
	if !m.animating {
		return false
	}
	const easeRate = 8.0 // convergence factor per second
	t := easeRate * dt.Seconds()
	if t >= 1 {
		m.camera = m.targetCamera
		m.animating = false
		return false
	}
	m.camera = lerpCamera(m.camera, m.targetCamera, t)
	// A fixed per-step fraction only approaches the target, so snap once
	// every component is within snapEpsilon of it.
	const snapEpsilon = 1e-9
	near := func(a, b float64) bool { d := a - b; return d < snapEpsilon && d > -snapEpsilon }
	c, g := m.camera, m.targetCamera
	if near(c.Center.Latitude, g.Center.Latitude) && near(c.Center.Longitude, g.Center.Longitude) &&
		near(c.Zoom, g.Zoom) && near(c.Rotation, g.Rotation) && near(c.Tilt, g.Tilt) {
		m.camera = m.targetCamera
		m.animating = false
		return false
	}
	return true
}

func lerpCamera(a, b Camera, t float64) Camera {
	return Camera{
		Center: geo.Location{
			Latitude:  a.Center.Latitude + (b.Center.Latitude-a.Center.Latitude)*t,
			Longitude: a.Center.Longitude + (b.Center.Longitude-a.Center.Longitude)*t,
		},
		Zoom:     a.Zoom + (b.Zoom-a.Zoom)*t,
		Rotation: a.Rotation + (b.Rotation-a.Rotation)*t,
		Tilt:     a.Tilt + (b.Tilt-a.Tilt)*t,
		Padding:  b.Padding,
	}
}

// viewLocked must be called with m.mu held.
func (m *Map) viewLocked() tilemanager.View {
	return tilemanager.View{
		Center:   m.camera.Center,
		Zoom:     m.camera.Zoom,
		Pitch:    m.camera.Tilt,
		Viewport: m.viewport,
	}
}
