package scenegraph

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/NERVsystems/vectorscene/pkg/monitoring"
	"github.com/NERVsystems/vectorscene/pkg/platform"
	"github.com/NERVsystems/vectorscene/pkg/tilecache"
	"github.com/NERVsystems/vectorscene/pkg/tilesource"
	"github.com/NERVsystems/vectorscene/pkg/workpool"
)

// Lifecycle owns the current Scene and serializes scene transitions
// through a single ordered worker, implementing the async swap protocol
// of spec.md §4.9.
//
// Deviation from the abbreviated design signature: NewLifecycle also
// takes the shared platform.Requester, decode pool, and tile cache a
// Scene needs to build its tile sources, since spec.md §4.10 has the map
// façade own exactly one of each and hand them down rather than have
// every Scene construct its own.
type Lifecycle struct {
	ordered    *workpool.Ordered
	req        platform.Requester
	decodePool *workpool.Pool
	cache      *tilecache.Cache[*tilesource.Tile]
	onReady    func(id uint64, errs []error)

	mu      sync.Mutex
	current *Scene

	nextID atomic.Uint64
}

// NewLifecycle builds a Lifecycle. onReady, if non-nil, is invoked once
// per completed load (sync or async) with the scene's id and any
// non-fatal errors recorded while building it.
func NewLifecycle(ordered *workpool.Ordered, req platform.Requester, decodePool *workpool.Pool, cache *tilecache.Cache[*tilesource.Tile], onReady func(id uint64, errs []error)) *Lifecycle {
	return &Lifecycle{
		ordered:    ordered,
		req:        req,
		decodePool: decodePool,
		cache:      cache,
		onReady:    onReady,
	}
}

// LoadSync replaces the current scene with one built from opts, inline on
// the calling goroutine. The new (as yet unready) scene is installed as
// current before loading starts, and the outgoing scene is canceled then
// disposed before LoadSync returns.
func (l *Lifecycle) LoadSync(opts Options) (*Scene, error) {
	id := l.nextID.Add(1)
	scene := newScene(id)

	old := l.swapIn(scene)
	if old != nil {
		old.cancelTasks()
	}

	errs := scene.load(opts, l.req, l.decodePool, l.cache)

	if old != nil {
		l.dispose(old)
	}
	if l.onReady != nil {
		l.onReady(id, errs)
	}

	if err := fatalOf(scene, errs); err != nil {
		return scene, err
	}
	return scene, nil
}

// LoadAsync installs a new, as yet unready scene as current *synchronously*
// — before returning, not inside the ordered worker — so that two LoadAsync
// calls issued back-to-back always see each other's scene as current: the
// second call's outgoing scene is always the first call's new scene, never
// nil. Building the scene's content and disposing the outgoing one happen
// on the ordered worker as two tasks in order: Load (which runs scene.load
// and invokes onReady) then Dispose (which releases the outgoing scene and
// logs a leak warning if some other component still holds a reference to
// it). The outgoing scene's tasks are canceled synchronously, before either
// queued task runs.
func (l *Lifecycle) LoadAsync(opts Options) uint64 {
	id := l.nextID.Add(1)
	scene := newScene(id)

	old := l.swapIn(scene)
	if old != nil {
		old.cancelTasks()
	}

	l.ordered.Submit(func(ctx context.Context) {
		errs := scene.load(opts, l.req, l.decodePool, l.cache)
		if l.onReady != nil {
			l.onReady(id, errs)
		}
		l.req.RequestRender()
	})
	l.ordered.Submit(func(ctx context.Context) {
		if old == nil {
			return
		}
		l.dispose(old)
	})

	return id
}

// Current returns the lifecycle's current scene, or nil before the first
// LoadSync or LoadAsync call. A scene is current from the moment its load
// call installs it, before it is ready (see Scene.Ready).
func (l *Lifecycle) Current() *Scene {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Shutdown cancels the current scene's outstanding work and joins the
// ordered worker.
func (l *Lifecycle) Shutdown() {
	l.mu.Lock()
	cur := l.current
	l.mu.Unlock()
	if cur != nil {
		cur.cancelTasks()
	}
	l.ordered.Shutdown()
}

// swapIn installs scene as current and returns whatever was current before
// it, atomically, so a concurrent Current() call never observes a gap
// where current is nil between two overlapping loads.
func (l *Lifecycle) swapIn(scene *Scene) *Scene {
	l.mu.Lock()
	defer l.mu.Unlock()
	old := l.current
	l.current = scene
	return old
}

func (l *Lifecycle) dispose(old *Scene) {
	if remaining := old.release(); remaining != 0 {
		slog.Warn("scene disposed with outstanding references",
			"scene_id", old.id, "remaining_refs", remaining)
	}
	monitoring.RecordSceneDisposed()
}

// fatalOf reports a non-nil error only when the scene failed to build at
// all (no styles, no sources, and at least one error) — a bad individual
// document or source is recorded in errs/scene.Errors() but is not fatal.
func fatalOf(scene *Scene, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if scene.hasContent() {
		return nil
	}
	return errors.Join(errs...)
}
