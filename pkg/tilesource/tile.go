package tilesource

import "github.com/NERVsystems/vectorscene/pkg/tilemath"

// Mesh is an opaque decoded geometry batch within a single tile. The
// renderer interprets Vertices/Indices; the pipeline only needs their
// combined size for cache accounting.
type Mesh struct {
	Layer    string
	Vertices []float32 // interleaved x,y pairs in the decoder's space: MVT tile-extent units, GeoJSON lon/lat, raster quad corners in [0,1]
	Indices  []uint32
}

func (m Mesh) byteSize() int {
	return len(m.Vertices)*4 + len(m.Indices)*4
}

// Tile is a decoded tile: one or more meshes keyed to a source and
// TileID, ready for the renderer.
type Tile struct {
	SourceID string
	ID       tilemath.ID
	Meshes   []Mesh
}

// MemoryUsage reports the combined byte footprint of all meshes,
// satisfying tilecache.Tile.
func (t *Tile) MemoryUsage() int {
	total := 0
	for _, m := range t.Meshes {
		total += m.byteSize()
	}
	return total
}
