package tilesource

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"

	"github.com/NERVsystems/vectorscene/pkg/sceneerr"
)

// Decoder turns a tile's raw response bytes into meshes. The wire format
// is opaque to the rest of the pipeline: callers select a Decoder per
// Source via Config.
type Decoder interface {
	Decode(ctx context.Context, raw []byte) ([]Mesh, error)
}

// MVTDecoder decodes Mapbox Vector Tile protobuf payloads.
type MVTDecoder struct{}

// Decode implements Decoder.
func (MVTDecoder) Decode(ctx context.Context, raw []byte) ([]Mesh, error) {
	layers, err := mvt.Unmarshal(raw)
	if err != nil {
		return nil, sceneerr.Wrap(sceneerr.CodeParse, "decoding mvt tile", err)
	}

	var meshes []Mesh
	for _, layer := range layers {
		var verts []float32
		for _, f := range layer.Features {
			verts = append(verts, flattenVertices(f.Geometry)...)
		}
		if len(verts) == 0 {
			continue
		}
		meshes = append(meshes, Mesh{Layer: layer.Name, Vertices: verts})
	}
	return meshes, nil
}

// GeoJSONDecoder decodes a GeoJSON FeatureCollection tile payload.
type GeoJSONDecoder struct{}

// Decode implements Decoder.
func (GeoJSONDecoder) Decode(ctx context.Context, raw []byte) ([]Mesh, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, sceneerr.Wrap(sceneerr.CodeParse, "decoding geojson tile", err)
	}

	var verts []float32
	for _, f := range fc.Features {
		verts = append(verts, flattenVertices(f.Geometry)...)
	}
	if len(verts) == 0 {
		return nil, nil
	}
	return []Mesh{{Layer: "default", Vertices: verts}}, nil
}

// RasterDecoder wraps an opaque raster payload (PNG/JPEG) as a single
// textured quad; the renderer owns actual image decoding.
type RasterDecoder struct{}

// Decode implements Decoder.
func (RasterDecoder) Decode(ctx context.Context, raw []byte) ([]Mesh, error) {
	if len(raw) == 0 {
		return nil, sceneerr.New(sceneerr.CodeParse, "empty raster tile payload")
	}
	quad := Mesh{
		Layer:    "raster",
		Vertices: []float32{0, 0, 1, 0, 1, 1, 0, 1},
		Indices:  []uint32{0, 1, 2, 0, 2, 3},
	}
	return []Mesh{quad}, nil
}

// TopoJSONDecoder is a placeholder: the retrieval pack carries no
// TopoJSON library, so this reports CodeSceneBuild rather than hand-roll
// a topology parser ungrounded in the corpus (see DESIGN.md).
type TopoJSONDecoder struct{}

// Decode implements Decoder.
func (TopoJSONDecoder) Decode(ctx context.Context, raw []byte) ([]Mesh, error) {
	return nil, sceneerr.New(sceneerr.CodeSceneBuild, "topojson decoding is not supported")
}

// flattenVertices walks any orb.Geometry and returns its points as
// interleaved x,y float32 pairs.
func flattenVertices(g orb.Geometry) []float32 {
	pts := flattenPoints(g)
	verts := make([]float32, 0, len(pts)*2)
	for _, p := range pts {
		verts = append(verts, float32(p.X()), float32(p.Y()))
	}
	return verts
}

func flattenPoints(g orb.Geometry) []orb.Point {
	if g == nil {
		return nil
	}
	switch t := g.(type) {
	case orb.Point:
		return []orb.Point{t}
	case orb.MultiPoint:
		return []orb.Point(t)
	case orb.LineString:
		return []orb.Point(t)
	case orb.MultiLineString:
		var pts []orb.Point
		for _, ls := range t {
			pts = append(pts, []orb.Point(ls)...)
		}
		return pts
	case orb.Ring:
		return []orb.Point(t)
	case orb.Polygon:
		var pts []orb.Point
		for _, r := range t {
			pts = append(pts, []orb.Point(r)...)
		}
		return pts
	case orb.MultiPolygon:
		var pts []orb.Point
		for _, p := range t {
			for _, r := range p {
				pts = append(pts, []orb.Point(r)...)
			}
		}
		return pts
	case orb.Collection:
		var pts []orb.Point
		for _, gg := range t {
			pts = append(pts, flattenPoints(gg)...)
		}
		return pts
	default:
		return nil
	}
}
