package scenegraph

import (
	"fmt"
	"strings"
	"time"

	"github.com/NERVsystems/vectorscene/pkg/monitoring"
	"github.com/NERVsystems/vectorscene/pkg/platform"
	"github.com/NERVsystems/vectorscene/pkg/sceneerr"
	"github.com/NERVsystems/vectorscene/pkg/sceneimport"
	"github.com/NERVsystems/vectorscene/pkg/tilecache"
	"github.com/NERVsystems/vectorscene/pkg/tilesource"
	"github.com/NERVsystems/vectorscene/pkg/workpool"
)

// decoderFor resolves a source's declared type to its payload decoder.
// topojson has no library in this stack and resolves to a decoder that
// always reports an unsupported-format error (see tilesource.TopoJSONDecoder).
func decoderFor(kind string) (tilesource.Decoder, string) {
	switch strings.ToLower(kind) {
	case "mvt", "":
		return tilesource.MVTDecoder{}, "mvt"
	case "geojson":
		return tilesource.GeoJSONDecoder{}, "geojson"
	case "raster":
		return tilesource.RasterDecoder{}, "raster"
	case "topojson":
		return tilesource.TopoJSONDecoder{}, "topojson"
	default:
		return tilesource.MVTDecoder{}, strings.ToLower(kind)
	}
}

// load runs the importer, builds the style list, and registers one
// tilesource.Source per entry in the merged document's "sources" map. It
// records non-fatal errors on the scene and returns the full error list.
// A canceled context yields an empty, not-ready scene with no error (per
// spec.md §5, cancellation is not itself an error).
func (s *Scene) load(opts Options, req platform.Requester, decodePool *workpool.Pool, cache *tilecache.Cache[*tilesource.Tile]) []error {
	start := time.Now()

	tree, errs := sceneimport.Load(s.ctx, opts, req, decodePool)
	if s.ctx.Err() != nil {
		monitoring.RecordSceneLoad(time.Since(start), false)
		return nil
	}

	styles := buildStyles(tree.Root)
	sources, buildErrs := s.buildSources(tree.Root, opts, req, decodePool, cache)
	errs = append(errs, buildErrs...)

	s.mu.Lock()
	s.styles = styles
	s.sources = sources
	s.errors = errs
	s.mu.Unlock()

	for _, src := range sources {
		s.manager.RegisterSource(src)
	}

	s.ready.Store(true)
	monitoring.RecordSceneLoad(time.Since(start), true)
	return errs
}

func buildStyles(root map[string]interface{}) []StyleDef {
	raw, ok := root["styles"].(map[string]interface{})
	if !ok {
		return nil
	}
	out := make([]StyleDef, 0, len(raw))
	for name, v := range raw {
		def, ok := v.(map[string]interface{})
		if !ok {
			def = map[string]interface{}{}
		}
		out = append(out, StyleDef{Name: name, Raw: def})
	}
	return out
}

// buildSources reads the document's "sources" map (type/url/url_params/
// max_zoom per spec.md §6) and constructs a tilesource.Source per entry,
// applying any opts.SourceOverrides on top of the document's own url.
func (s *Scene) buildSources(root map[string]interface{}, opts Options, req platform.Requester, decodePool *workpool.Pool, cache *tilecache.Cache[*tilesource.Tile]) (map[string]*tilesource.Source, []error) {
	raw, ok := root["sources"].(map[string]interface{})
	if !ok {
		return map[string]*tilesource.Source{}, nil
	}

	var errs []error
	out := make(map[string]*tilesource.Source, len(raw))
	for name, v := range raw {
		cfgMap, ok := v.(map[string]interface{})
		if !ok {
			errs = append(errs, sceneerr.New(sceneerr.CodeSceneBuild, "source configuration is not a map").WithURL(name))
			continue
		}

		tmpl, _ := cfgMap["url"].(string)
		if override, ok := opts.SourceOverrides[name]; ok {
			tmpl = override.String()
		}
		if tmpl == "" {
			errs = append(errs, sceneerr.New(sceneerr.CodeSceneBuild, "source has no url template").WithURL(name))
			continue
		}
		if params, ok := cfgMap["url_params"].(map[string]interface{}); ok {
			tmpl = applyURLParams(tmpl, params)
		}

		maxZoom := uint32(0)
		switch z := cfgMap["max_zoom"].(type) {
		case int:
			maxZoom = uint32(z)
		case float64:
			maxZoom = uint32(z)
		}

		kind, _ := cfgMap["type"].(string)
		decoder, format := decoderFor(kind)

		src := tilesource.New(name, tilesource.Config{
			URLTemplate: tmpl,
			MaxZoom:     maxZoom,
			Decoder:     decoder,
			Format:      format,
		}, req, decodePool, cache)
		out[name] = src
	}
	return out, errs
}

// applyURLParams substitutes each url_params token, written as {token} in
// the template, with its configured literal value. {z}, {x}, {y} are left
// for tilesource.Source to resolve per tile.
func applyURLParams(tmpl string, params map[string]interface{}) string {
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		switch k {
		case "z", "x", "y":
			continue
		}
		pairs = append(pairs, "{"+k+"}", toString(v))
	}
	if len(pairs) == 0 {
		return tmpl
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
