package scenegraph

import (
	"sync"
	"sync/atomic"

	"github.com/NERVsystems/vectorscene/pkg/geo"
	"github.com/NERVsystems/vectorscene/pkg/tilemanager"
)

// Marker is a client-placed point annotation.
type Marker struct {
	ID       uint64
	Location geo.Location
}

// MarkerManager holds a scene's markers. Mutations are expected to arrive
// through the map façade's main-thread job queue, so a plain mutex
// suffices here.
type MarkerManager struct {
	mu      sync.Mutex
	markers map[uint64]Marker
	nextID  atomic.Uint64
}

// NewMarkerManager builds an empty MarkerManager.
func NewMarkerManager() *MarkerManager {
	return &MarkerManager{markers: make(map[uint64]Marker)}
}

// Add places a marker at loc and returns its id.
func (m *MarkerManager) Add(loc geo.Location) uint64 {
	id := m.nextID.Add(1)
	m.mu.Lock()
	m.markers[id] = Marker{ID: id, Location: loc}
	m.mu.Unlock()
	return id
}

// Remove drops the marker with the given id, if present.
func (m *MarkerManager) Remove(id uint64) {
	m.mu.Lock()
	delete(m.markers, id)
	m.mu.Unlock()
}

// All returns every marker currently registered.
func (m *MarkerManager) All() []Marker {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Marker, 0, len(m.markers))
	for _, mk := range m.markers {
		out = append(out, mk)
	}
	return out
}

// LabelManager places label glyphs for tile features and markers. Full
// label placement (collision, priority, text shaping) belongs to the
// glyph-atlas collaborator out of scope for this core; this is the
// lifecycle hook it ticks against the current view.
type LabelManager struct{}

// NewLabelManager builds an empty LabelManager.
func NewLabelManager() *LabelManager { return &LabelManager{} }

// Update ticks label placement against the current view.
func (l *LabelManager) Update(view tilemanager.View) {}
