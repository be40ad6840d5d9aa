// Package tilemath provides the Web Mercator tile grid math shared by the
// tile cache, tile source and tile manager: tile identifiers, coordinate
// conversions, and visible-set rasterization against a camera view.
package tilemath

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// ID is a tile identifier (z, x, y). Total order is (Z, X, Y) ascending.
// X wraps at 2^Z per the Web Mercator tile grid.
type ID struct {
	Z uint32
	X uint32
	Y uint32
}

// Wrapped returns id with X wrapped into [0, 2^Z).
func (id ID) Wrapped() ID {
	n := uint32(1) << id.Z
	x := id.X % n
	return ID{Z: id.Z, X: x, Y: id.Y}
}

// Less implements the total order (Z, X, Y) ascending, for use as a
// cache/priority comparator.
func (id ID) Less(other ID) bool {
	if id.Z != other.Z {
		return id.Z < other.Z
	}
	if id.X != other.X {
		return id.X < other.X
	}
	return id.Y < other.Y
}

// Parent returns the tile one zoom level up that contains id, and true,
// unless id is already at zoom 0.
func (id ID) Parent() (ID, bool) {
	if id.Z == 0 {
		return ID{}, false
	}
	return ID{Z: id.Z - 1, X: id.X / 2, Y: id.Y / 2}, true
}

// Children returns the four tiles one zoom level down contained within id.
func (id ID) Children() [4]ID {
	return [4]ID{
		{Z: id.Z + 1, X: id.X * 2, Y: id.Y * 2},
		{Z: id.Z + 1, X: id.X*2 + 1, Y: id.Y * 2},
		{Z: id.Z + 1, X: id.X * 2, Y: id.Y*2 + 1},
		{Z: id.Z + 1, X: id.X*2 + 1, Y: id.Y*2 + 1},
	}
}

func (id ID) maptile() maptile.Tile {
	return maptile.New(id.X, id.Y, maptile.Zoom(id.Z))
}

// LatLonToTile returns the tile containing (lat, lon) at the given zoom.
func LatLonToTile(lat, lon float64, zoom uint32) ID {
	lat = clampLat(lat)
	t := maptile.At(orb.Point{lon, lat}, maptile.Zoom(zoom))
	return ID{Z: zoom, X: t.X, Y: t.Y}
}

// TileToLatLon returns the north-west corner (lat, lon) of tile id.
func TileToLatLon(id ID) (lat, lon float64) {
	bound := id.maptile().Bound()
	return bound.Max.Lat(), bound.Min.Lon()
}

// TileCenter returns the geographic center of tile id.
func TileCenter(id ID) (lat, lon float64) {
	bound := id.maptile().Bound()
	return (bound.Min.Lat() + bound.Max.Lat()) / 2, (bound.Min.Lon() + bound.Max.Lon()) / 2
}

func clampLat(lat float64) float64 {
	const maxLat = 85.05112878
	if lat > maxLat {
		return maxLat
	}
	if lat < -maxLat {
		return -maxLat
	}
	return lat
}

// VisibleSet rasterizes the view frustum (approximated as a lat/lon
// bounding box around the center, sized by viewport and zoom) against the
// Web Mercator tile grid at the view's integer zoom, clamped to maxZoom.
func VisibleSet(centerLat, centerLon float64, zoom float64, viewportW, viewportH int, maxZoom uint32) []ID {
	intZoom := uint32(math.Round(zoom))
	if intZoom > maxZoom {
		intZoom = maxZoom
	}

	// Half-extent of the viewport in tile units at this zoom, assuming a
	// 256px tile, then converted back to a geographic bounding box.
	const tileSizePx = 256.0
	tilesWide := float64(viewportW) / tileSizePx / 2
	tilesHigh := float64(viewportH) / tileSizePx / 2

	n := math.Exp2(float64(intZoom))
	centerX, centerY := lonLatToTileXY(centerLon, centerLat, n)

	minX := int64(math.Floor(centerX - tilesWide))
	maxX := int64(math.Floor(centerX + tilesWide))
	minY := int64(math.Floor(centerY - tilesHigh))
	maxY := int64(math.Floor(centerY + tilesHigh))

	wrap := int64(n)
	var out []ID
	for y := minY; y <= maxY; y++ {
		if y < 0 || y >= wrap {
			continue
		}
		for x := minX; x <= maxX; x++ {
			wrappedX := ((x % wrap) + wrap) % wrap
			out = append(out, ID{Z: intZoom, X: uint32(wrappedX), Y: uint32(y)})
		}
	}
	return out
}

// PrefetchRing returns the ring of tiles at radius tiles beyond the
// bounding box of visible, at the same zoom level as visible's tiles.
func PrefetchRing(visible []ID, radius int) []ID {
	if len(visible) == 0 || radius <= 0 {
		return nil
	}
	z := visible[0].Z
	n := uint32(1) << z

	minX, maxX := visible[0].X, visible[0].X
	minY, maxY := visible[0].Y, visible[0].Y
	for _, id := range visible {
		if id.X < minX {
			minX = id.X
		}
		if id.X > maxX {
			maxX = id.X
		}
		if id.Y < minY {
			minY = id.Y
		}
		if id.Y > maxY {
			maxY = id.Y
		}
	}

	seen := make(map[ID]bool, len(visible))
	for _, id := range visible {
		seen[id] = true
	}

	var ring []ID
	loY := int64(minY) - int64(radius)
	hiY := int64(maxY) + int64(radius)
	loX := int64(minX) - int64(radius)
	hiX := int64(maxX) + int64(radius)

	for y := loY; y <= hiY; y++ {
		if y < 0 || y >= int64(n) {
			continue
		}
		for x := loX; x <= hiX; x++ {
			wrappedX := ((x % int64(n)) + int64(n)) % int64(n)
			id := ID{Z: z, X: uint32(wrappedX), Y: uint32(y)}
			if seen[id] {
				continue
			}
			seen[id] = true
			ring = append(ring, id)
		}
	}
	return ring
}

// DistanceToCenter returns a monotonic distance measure (in tile units)
// from id's center to (centerX, centerY), both in tile-grid units at id's
// zoom. Used for the tile manager's priority ordering.
func DistanceToCenter(id ID, centerX, centerY float64) float64 {
	dx := float64(id.X) + 0.5 - centerX
	dy := float64(id.Y) + 0.5 - centerY
	return math.Hypot(dx, dy)
}

// CenterTileCoords converts a geographic center to fractional tile-grid
// coordinates at the given zoom, for use with DistanceToCenter.
func CenterTileCoords(lat, lon float64, zoom uint32) (x, y float64) {
	n := math.Exp2(float64(zoom))
	return lonLatToTileXY(lon, lat, n)
}

func lonLatToTileXY(lon, lat float64, n float64) (x, y float64) {
	lat = clampLat(lat)
	x = (lon + 180.0) / 360.0 * n
	latRad := lat * math.Pi / 180.0
	y = (1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n
	return x, y
}
