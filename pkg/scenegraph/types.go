// Package scenegraph builds and owns the assembled, ready-to-render Scene:
// the merged style set, the registered tile sources, the tile manager, and
// the marker/label/font collaborators. It also serializes scene swaps
// through an ordered worker so the outgoing scene's resources are released
// only after the incoming scene finishes loading.
package scenegraph

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/NERVsystems/vectorscene/pkg/sceneimport"
	"github.com/NERVsystems/vectorscene/pkg/tilemanager"
	"github.com/NERVsystems/vectorscene/pkg/tilesource"
)

// Options is the scene-load request: the root document to import (or
// inline text), per-source URL overrides, and the display's pixel scale.
// Defined in sceneimport to avoid a scenegraph<->sceneimport import cycle;
// aliased here so callers can spell it scenegraph.Options as the design
// surface describes.
type Options = sceneimport.Options

// StyleDef is one named style block from the merged scene document. Its
// contents are opaque to this package (consumed downstream by the
// style-to-shader collaborator, which is out of scope here).
type StyleDef struct {
	Name string
	Raw  map[string]interface{}
}

// FontContext is the opaque handle to the glyph/font collaborator,
// supplied by and meaningful only to the external renderer.
type FontContext interface{}

// Scene is the assembled, ready-to-render state: one monotonic id, styles,
// tile sources by id, the tile manager, markers, labels, fonts, and any
// load-time errors. Exactly one Scene is "current"; at most one additional
// Scene may be transiently referenced by an in-flight async load/dispose
// pair.
type Scene struct {
	id uint64

	mu      sync.Mutex
	styles  []StyleDef
	sources map[string]*tilesource.Source
	manager *tilemanager.Manager
	markers *MarkerManager
	labels  *LabelManager
	fonts   FontContext
	errors  []error

	ready atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	// refCount tracks ownership: 1 while held as the lifecycle's current
	// (or outgoing) scene. A Dispose task releasing it to a nonzero count
	// means some other component retained a reference past cancellation —
	// an invariant violation, logged rather than fatal.
	refCount atomic.Int32
}

func newScene(id uint64) *Scene {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scene{
		id:      id,
		sources: make(map[string]*tilesource.Source),
		manager: tilemanager.New(tilemanager.Config{PrefetchRadius: 1}),
		markers: NewMarkerManager(),
		labels:  NewLabelManager(),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.refCount.Store(1)
	return s
}

// ID returns the scene's monotonic identifier.
func (s *Scene) ID() uint64 { return s.id }

// Ready reports whether the scene has finished its initial build.
func (s *Scene) Ready() bool { return s.ready.Load() }

// Errors returns the load-time error list recorded while building the
// scene (document parse/fetch failures, invalid source configuration).
func (s *Scene) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errors...)
}

// Styles returns the scene's merged style definitions.
func (s *Scene) Styles() []StyleDef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StyleDef(nil), s.styles...)
}

// Source looks up a registered tile source by id.
func (s *Scene) Source(id string) (*tilesource.Source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	return src, ok
}

// hasContent reports whether the scene built any styles or sources at
// all, used to distinguish a total build failure from a partial one with
// only per-document errors recorded.
func (s *Scene) hasContent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.styles) > 0 || len(s.sources) > 0
}

// SourceIDs returns the ids of every tile source registered on the scene.
func (s *Scene) SourceIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sources))
	for id := range s.sources {
		out = append(out, id)
	}
	return out
}

// Manager returns the scene's tile manager.
func (s *Scene) Manager() *tilemanager.Manager { return s.manager }

// Markers returns the scene's marker manager.
func (s *Scene) Markers() *MarkerManager { return s.markers }

// CompleteScene ticks the tile manager against view and reports whether
// the scene has finished its initial build. It is a no-op (and returns
// false) until the load task has populated styles and sources.
func (s *Scene) CompleteScene(view tilemanager.View) bool {
	if !s.ready.Load() {
		return false
	}
	s.manager.Update(s.ctx, view)
	s.labels.Update(view)
	return true
}

// cancelTasks marks the scene canceled: its context is canceled (unwinding
// any in-progress importer fetch) and every registered tile source's
// outstanding requests are canceled.
func (s *Scene) cancelTasks() {
	s.cancel()
	s.mu.Lock()
	sources := make([]*tilesource.Source, 0, len(s.sources))
	for _, src := range s.sources {
		sources = append(sources, src)
	}
	s.mu.Unlock()
	for _, src := range sources {
		src.CancelAll()
	}
}

// retain records an additional owner of the scene beyond the lifecycle's
// current/outgoing pointer.
func (s *Scene) retain() { s.refCount.Add(1) }

// release drops one reference and returns the count remaining. A dispose
// task expects this to reach zero.
func (s *Scene) release() int32 { return s.refCount.Add(-1) }
