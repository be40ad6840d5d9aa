// Package tilemanager drives, per camera frame, the set of tiles each
// registered source needs loaded: the visible set at the current view,
// proxy tiles standing in for what's still loading, and a prefetch ring
// around the viewport. It owns no network or decode logic itself — that
// is tilesource.Source's job — and only tracks per-tile state.
package tilemanager

import (
	"context"
	"image"
	"sort"
	"sync"

	"github.com/NERVsystems/vectorscene/pkg/geo"
	"github.com/NERVsystems/vectorscene/pkg/tilemath"
	"github.com/NERVsystems/vectorscene/pkg/tilesource"
)

// View is the camera state the manager schedules tiles against.
type View struct {
	Center   geo.Location
	Zoom     float64
	Pitch    float64
	Viewport image.Point
}

// State is a TileID's lifecycle state within one source's tile set.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

type tileEntry struct {
	state        State
	tile         *tilesource.Tile
	lastUsed     uint64
	staleFrames  int
}

// Config configures a Manager.
type Config struct {
	// PrefetchRadius is the ring width, in tiles, requested around the
	// viewport at the current zoom. Zero disables prefetch.
	PrefetchRadius int
	// StaleFrames is the number of consecutive frames a tile may go
	// unreferenced before it is removed from the tile set. Zero uses 2.
	StaleFrames int
}

// ClientTileSourceOp is a staged registration-batch entry, applied at
// the head of the next Update.
type ClientTileSourceOp struct {
	SourceID string
	Add      *tilesource.Source
	Clear    bool
	Remove   bool
}

// UpdateStats summarizes one Update call, for diagnostics/metrics.
type UpdateStats struct {
	Visible  int
	Loading  int
	Proxied  int
	Prefetch int
	Removed  int
}

type sourceState struct {
	src   *tilesource.Source
	tiles map[tilemath.ID]*tileEntry
}

// Manager maintains, per registered tile source, the tile set a camera
// view needs.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	sources map[string]*sourceState
	frame   uint64

	opsMu sync.Mutex
	ops   []ClientTileSourceOp
}

// New builds a Manager.
func New(cfg Config) *Manager {
	if cfg.StaleFrames <= 0 {
		cfg.StaleFrames = 2
	}
	return &Manager{
		cfg:     cfg,
		sources: make(map[string]*sourceState),
	}
}

// RegisterSource adds src to the manager outside the staged-ops batch,
// for direct (non-client) registration at scene build time.
func (m *Manager) RegisterSource(src *tilesource.Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[src.ID()] = &sourceState{src: src, tiles: make(map[tilemath.ID]*tileEntry)}
}

// ApplyClientOps stages a batch of add/clear/remove operations on
// client-driven tile sources, drained at the head of the next Update.
func (m *Manager) ApplyClientOps(ops []ClientTileSourceOp) {
	m.opsMu.Lock()
	defer m.opsMu.Unlock()
	m.ops = append(m.ops, ops...)
}

// Update runs one frame's tile scheduling pass for view and returns a
// summary of what it did.
func (m *Manager) Update(ctx context.Context, view View) UpdateStats {
	m.drainOps()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame++

	var stats UpdateStats
	zoom := clampZoom(view.Zoom)

	for _, ss := range m.sources {
		maxZoom := ss.src.MaxZoom()
		effectiveZoom := zoom
		if maxZoom > 0 && effectiveZoom > maxZoom {
			effectiveZoom = maxZoom
		}

		visible := tilemath.VisibleSet(view.Center.Latitude, view.Center.Longitude, float64(effectiveZoom), view.Viewport.X, view.Viewport.Y, maxZoom)
		visibleSet := make(map[tilemath.ID]bool, len(visible))
		for _, id := range visible {
			visibleSet[id] = true
		}

		centerX, centerY := tilemath.CenterTileCoords(view.Center.Latitude, view.Center.Longitude, effectiveZoom)
		requests := m.scheduleVisible(ss, visible, centerX, centerY, &stats)

		proxied := m.attachProxies(ss, visible)
		stats.Proxied += proxied

		if m.cfg.PrefetchRadius > 0 {
			ring := tilemath.PrefetchRing(visible, m.cfg.PrefetchRadius)
			requests = append(requests, m.schedulePrefetch(ss, ring, visibleSet, centerX, centerY, &stats)...)
		}

		referenced := make(map[tilemath.ID]bool, len(visible))
		for _, id := range visible {
			referenced[id] = true
		}
		for _, id := range m.ancestorsAndDescendants(ss, visible) {
			referenced[id] = true
		}
		stats.Removed += m.evictStale(ss, referenced)

		sortRequests(requests, centerX, centerY)
		for _, id := range requests {
			m.startLoad(ctx, ss, id)
		}
	}

	return stats
}

func (m *Manager) scheduleVisible(ss *sourceState, visible []tilemath.ID, centerX, centerY float64, stats *UpdateStats) []tilemath.ID {
	var toLoad []tilemath.ID
	for _, id := range visible {
		entry, ok := ss.tiles[id]
		if !ok {
			ss.tiles[id] = &tileEntry{state: StateIdle, lastUsed: m.frame}
			toLoad = append(toLoad, id)
			stats.Loading++
			continue
		}
		entry.lastUsed = m.frame
		entry.staleFrames = 0
		switch entry.state {
		case StateReady:
			stats.Visible++
		case StateLoading:
			stats.Loading++
		case StateIdle, StateCanceled:
			toLoad = append(toLoad, id)
			stats.Loading++
		}
	}
	return toLoad
}

func (m *Manager) schedulePrefetch(ss *sourceState, ring []tilemath.ID, visible map[tilemath.ID]bool, centerX, centerY float64, stats *UpdateStats) []tilemath.ID {
	var toLoad []tilemath.ID
	for _, id := range ring {
		if visible[id] {
			continue
		}
		entry, ok := ss.tiles[id]
		if !ok {
			ss.tiles[id] = &tileEntry{state: StateIdle, lastUsed: m.frame}
			toLoad = append(toLoad, id)
			stats.Prefetch++
			continue
		}
		entry.lastUsed = m.frame
		entry.staleFrames = 0
		if entry.state == StateIdle || entry.state == StateCanceled {
			toLoad = append(toLoad, id)
			stats.Prefetch++
		}
	}
	return toLoad
}

// attachProxies seeks, for each not-yet-ready visible tile, a ready
// ancestor (upward) and ready descendants (one level downward) to stand
// in until the real tile loads.
func (m *Manager) attachProxies(ss *sourceState, visible []tilemath.ID) int {
	count := 0
	for _, id := range visible {
		entry := ss.tiles[id]
		if entry == nil || entry.state == StateReady {
			continue
		}
		if parent, ok := id.Parent(); ok {
			if pe, ok := ss.tiles[parent]; ok && pe.state == StateReady {
				count++
			}
		}
		for _, child := range id.Children() {
			if ce, ok := ss.tiles[child]; ok && ce.state == StateReady {
				count++
			}
		}
	}
	return count
}

// ancestorsAndDescendants reports every TileID one level up or down from
// the visible set, so they aren't mistakenly reaped as stale while
// serving as proxies.
func (m *Manager) ancestorsAndDescendants(ss *sourceState, visible []tilemath.ID) []tilemath.ID {
	var out []tilemath.ID
	for _, id := range visible {
		if parent, ok := id.Parent(); ok {
			out = append(out, parent)
		}
		out = append(out, id.Children()[:]...)
	}
	return out
}

func (m *Manager) evictStale(ss *sourceState, referenced map[tilemath.ID]bool) int {
	removed := 0
	for id, entry := range ss.tiles {
		if referenced[id] {
			entry.staleFrames = 0
			continue
		}
		entry.staleFrames++
		if entry.staleFrames >= m.cfg.StaleFrames {
			if entry.state == StateLoading {
				ss.src.CancelTile(id)
			}
			delete(ss.tiles, id)
			removed++
		}
	}
	return removed
}

func (m *Manager) startLoad(ctx context.Context, ss *sourceState, id tilemath.ID) {
	entry, ok := ss.tiles[id]
	if !ok {
		return
	}
	entry.state = StateLoading
	ss.src.LoadTile(ctx, id, func(tile *tilesource.Tile, err error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		e, ok := ss.tiles[id]
		if !ok {
			return
		}
		if err != nil {
			e.state = StateIdle
			return
		}
		e.state = StateReady
		e.tile = tile
	})
}

// Snapshot returns the payload of every ready tile currently tracked for
// sourceID, for a renderer to draw this frame.
func (m *Manager) Snapshot(sourceID string) []*tilesource.Tile {
	m.mu.Lock()
	defer m.mu.Unlock()
	ss, ok := m.sources[sourceID]
	if !ok {
		return nil
	}
	out := make([]*tilesource.Tile, 0, len(ss.tiles))
	for _, e := range ss.tiles {
		if e.state == StateReady && e.tile != nil {
			out = append(out, e.tile)
		}
	}
	return out
}

func (m *Manager) drainOps() {
	m.opsMu.Lock()
	ops := m.ops
	m.ops = nil
	m.opsMu.Unlock()
	if len(ops) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		switch {
		case op.Add != nil:
			m.sources[op.Add.ID()] = &sourceState{src: op.Add, tiles: make(map[tilemath.ID]*tileEntry)}
		case op.Clear:
			if ss, ok := m.sources[op.SourceID]; ok {
				ss.src.ClearData()
				ss.tiles = make(map[tilemath.ID]*tileEntry)
			}
		case op.Remove:
			if ss, ok := m.sources[op.SourceID]; ok {
				ss.src.ClearData()
				delete(m.sources, op.SourceID)
			}
		}
	}
}

func sortRequests(ids []tilemath.ID, centerX, centerY float64) {
	sort.SliceStable(ids, func(i, j int) bool {
		di := tilemath.DistanceToCenter(ids[i], centerX, centerY)
		dj := tilemath.DistanceToCenter(ids[j], centerX, centerY)
		if di != dj {
			return di < dj
		}
		return ids[i].Z > ids[j].Z
	})
}

func clampZoom(zoom float64) uint32 {
	if zoom < 0 {
		return 0
	}
	return uint32(zoom + 0.5)
}
