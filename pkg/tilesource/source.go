// Package tilesource fetches and decodes tiles for a single logical
// layer: it resolves a TileID to a URL, issues a platform request,
// decodes the response on a bounded pool, and populates the shared tile
// cache. At most one fetch is ever in flight per (source, TileID).
package tilesource

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/NERVsystems/vectorscene/pkg/monitoring"
	"github.com/NERVsystems/vectorscene/pkg/platform"
	"github.com/NERVsystems/vectorscene/pkg/sceneerr"
	"github.com/NERVsystems/vectorscene/pkg/sceneurl"
	"github.com/NERVsystems/vectorscene/pkg/tilecache"
	"github.com/NERVsystems/vectorscene/pkg/tilemath"
	"github.com/NERVsystems/vectorscene/pkg/workpool"
)

// Config describes a tile source's addressing and decoding.
type Config struct {
	// ID identifies the source within a Map's client-registered tile
	// sources (mapengine.Map.AddTileSource/RemoveTileSource/ClearTileSource
	// key on it). Unused by New, which takes its id as a separate
	// argument for document-declared sources built by scenegraph.
	ID string
	// URLTemplate contains literal {z}, {x}, {y} placeholders, e.g.
	// "https://tiles.example/{z}/{x}/{y}.mvt".
	URLTemplate string
	MaxZoom     uint32
	Decoder     Decoder
	// Format labels decode metrics, e.g. "mvt", "geojson", "raster".
	Format string
}

// Source is a per-layer tile fetcher/decoder.
type Source struct {
	id  string
	cfg Config

	req        platform.Requester
	decodePool *workpool.Pool
	cache      *tilecache.Cache[*Tile]

	sf singleflight.Group

	mu      sync.Mutex
	handles map[tilemath.ID]platform.Handle
}

// New builds a Source. cache is the pipeline's shared tile cache: tiles
// this source produces are keyed by (id, TileID) within it.
func New(id string, cfg Config, req platform.Requester, decodePool *workpool.Pool, cache *tilecache.Cache[*Tile]) *Source {
	return &Source{
		id:         id,
		cfg:        cfg,
		req:        req,
		decodePool: decodePool,
		cache:      cache,
		handles:    make(map[tilemath.ID]platform.Handle),
	}
}

// ID returns the source's identifier.
func (s *Source) ID() string { return s.id }

// MaxZoom returns the source's configured maximum zoom level.
func (s *Source) MaxZoom() uint32 { return s.cfg.MaxZoom }

// LoadTile resolves id to a URL, fetches and decodes it, and delivers
// the result to cb exactly once. A cache hit delivers synchronously;
// concurrent loads of the same id share one fetch.
func (s *Source) LoadTile(ctx context.Context, id tilemath.ID, cb func(*Tile, error)) {
	key := tilecache.Key{SourceID: s.id, ID: id}
	if t, ok := s.cache.Get(key); ok {
		cb(t, nil)
		return
	}

	sfKey := strconv.FormatUint(uint64(id.Z), 10) + "/" + strconv.FormatUint(uint64(id.X), 10) + "/" + strconv.FormatUint(uint64(id.Y), 10)
	go func() {
		v, err, _ := s.sf.Do(sfKey, func() (interface{}, error) {
			return s.fetchAndDecode(ctx, id)
		})
		if err != nil {
			cb(nil, err)
			return
		}
		cb(v.(*Tile), nil)
	}()
}

// CancelTile cancels the in-flight platform request for id, if any.
// Cancellation is advisory: a fetch already past the network stage may
// still complete and populate the cache.
func (s *Source) CancelTile(id tilemath.ID) {
	s.mu.Lock()
	h, ok := s.handles[id]
	s.mu.Unlock()
	if ok {
		s.req.CancelRequest(h)
	}
}

// CancelAll cancels every request currently in flight for this source,
// used when the scene owning this source is being retired.
func (s *Source) CancelAll() {
	s.mu.Lock()
	handles := make([]platform.Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()
	for _, h := range handles {
		s.req.CancelRequest(h)
	}
}

// ClearData drops this source's cached tiles and in-flight bookkeeping.
func (s *Source) ClearData() {
	s.cache.ClearSource(s.id, false)
	s.mu.Lock()
	s.handles = make(map[tilemath.ID]platform.Handle)
	s.mu.Unlock()
}

func (s *Source) fetchAndDecode(ctx context.Context, id tilemath.ID) (*Tile, error) {
	u, err := s.resolveURL(id)
	if err != nil {
		return nil, sceneerr.Wrap(sceneerr.CodeFetch, "resolving tile url", err)
	}

	respCh := make(chan platform.Response, 1)
	handle := s.req.StartRequest(u, func(r platform.Response) { respCh <- r })
	s.setHandle(id, handle)
	defer s.clearHandle(id)

	var resp platform.Response
	select {
	case resp = <-respCh:
	case <-ctx.Done():
		s.req.CancelRequest(handle)
		return nil, sceneerr.Wrap(sceneerr.CodeCanceled, "tile load canceled", ctx.Err()).WithURL(u.String())
	}
	if resp.Err != nil {
		return nil, resp.Err
	}

	type decodeResult struct {
		meshes []Mesh
		err    error
	}
	dch := make(chan decodeResult, 1)
	s.decodePool.Submit(func(dctx context.Context) {
		meshes, err := s.cfg.Decoder.Decode(dctx, resp.Bytes)
		monitoring.RecordTileDecode(s.cfg.Format, err == nil)
		dch <- decodeResult{meshes, err}
	})

	var dr decodeResult
	select {
	case dr = <-dch:
	case <-ctx.Done():
		return nil, sceneerr.Wrap(sceneerr.CodeCanceled, "tile decode canceled", ctx.Err()).WithURL(u.String())
	}
	if dr.err != nil {
		return nil, dr.err
	}

	tile := &Tile{SourceID: s.id, ID: id, Meshes: dr.meshes}
	s.cache.Put(tilecache.Key{SourceID: s.id, ID: id}, tile)
	return tile, nil
}

func (s *Source) resolveURL(id tilemath.ID) (sceneurl.URL, error) {
	raw := strings.NewReplacer(
		"{z}", strconv.FormatUint(uint64(id.Z), 10),
		"{x}", strconv.FormatUint(uint64(id.X), 10),
		"{y}", strconv.FormatUint(uint64(id.Y), 10),
	).Replace(s.cfg.URLTemplate)
	return sceneurl.Parse(raw)
}

func (s *Source) setHandle(id tilemath.ID, h platform.Handle) {
	s.mu.Lock()
	s.handles[id] = h
	s.mu.Unlock()
}

func (s *Source) clearHandle(id tilemath.ID) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
}
