package sceneimport

import (
	"strconv"
	"strings"

	"github.com/NERVsystems/vectorscene/pkg/sceneurl"
)

// candidate records a scalar position, inside a single contributing
// document, that is eligible for texture-URL rewriting after merge.
// path segments are either a map key (string) or a sequence index (int).
type candidate struct {
	path []interface{}
	doc  sceneurl.URL
}

var materialSlots = []string{"emission", "ambient", "diffuse", "specular", "normal"}

// findTextureCandidates walks the fixed texture-bearing locations of a
// parsed document (styles.<name>.texture, styles.<name>.material.*.texture,
// styles.<name>.shaders.uniforms.*) and records every scalar eligible for
// later rewriting.
func findTextureCandidates(doc map[string]interface{}, from sceneurl.URL) []candidate {
	stylesRaw, ok := doc["styles"]
	if !ok {
		return nil
	}
	styles, ok := stylesRaw.(map[string]interface{})
	if !ok {
		return nil
	}

	var out []candidate
	for name, styleRaw := range styles {
		style, ok := styleRaw.(map[string]interface{})
		if !ok {
			continue
		}
		base := []interface{}{"styles", name}

		if isTextureCandidate(style["texture"]) {
			out = append(out, candidate{path: appendPath(base, "texture"), doc: from})
		}

		if mat, ok := style["material"].(map[string]interface{}); ok {
			for _, slot := range materialSlots {
				slotMap, ok := mat[slot].(map[string]interface{})
				if !ok {
					continue
				}
				if isTextureCandidate(slotMap["texture"]) {
					out = append(out, candidate{
						path: appendPath(base, "material", slot, "texture"),
						doc:  from,
					})
				}
			}
		}

		if shaders, ok := style["shaders"].(map[string]interface{}); ok {
			if uniforms, ok := shaders["uniforms"].(map[string]interface{}); ok {
				uniformBase := appendPath(base, "shaders", "uniforms")
				for uname, uval := range uniforms {
					valuePath := appendPath(uniformBase, uname)
					switch v := uval.(type) {
					case []interface{}:
						for i, elem := range v {
							if isTextureCandidate(elem) {
								out = append(out, candidate{path: appendPath(valuePath, i), doc: from})
							}
						}
					default:
						if isTextureCandidate(uval) {
							out = append(out, candidate{path: valuePath, doc: from})
						}
					}
				}
			}
		}
	}
	return out
}

// isTextureCandidate reports whether v is a non-null string that isn't a
// global reference and doesn't parse as a bool or number.
func isTextureCandidate(v interface{}) bool {
	s, ok := v.(string)
	if !ok || s == "" {
		return false
	}
	if strings.HasPrefix(s, "global.") {
		return false
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return false
	}
	if _, err := strconv.ParseBool(s); err == nil {
		return false
	}
	return true
}

func appendPath(base []interface{}, segs ...interface{}) []interface{} {
	out := make([]interface{}, len(base), len(base)+len(segs))
	copy(out, base)
	return append(out, segs...)
}

// rewriteTextures applies every recorded candidate against the merged
// tree: if the scalar also names a key under the merged top-level
// "textures" map, it is left as a named reference; otherwise it is
// resolved as a URL relative to the document it came from.
func rewriteTextures(root map[string]interface{}, candidates []candidate) []error {
	var namedTextures map[string]interface{}
	if t, ok := root["textures"].(map[string]interface{}); ok {
		namedTextures = t
	}

	var errs []error
	for _, c := range candidates {
		container, key, ok := navigate(root, c.path)
		if !ok {
			continue // path was overwritten away by a higher-precedence document
		}
		raw, ok := get(container, key)
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		if namedTextures != nil {
			if _, named := namedTextures[s]; named {
				continue
			}
		}
		resolved, err := c.doc.Resolve(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		set(container, key, resolved.String())
	}
	return errs
}

// navigate walks root along path up to its last segment, returning the
// container holding the final segment and that segment itself. It
// returns ok=false if any intermediate segment is missing or the wrong
// shape (meaning a higher-precedence document overwrote that subtree).
func navigate(root map[string]interface{}, path []interface{}) (interface{}, interface{}, bool) {
	if len(path) == 0 {
		return nil, nil, false
	}
	var cur interface{} = root
	for _, seg := range path[:len(path)-1] {
		next, ok := get(cur, seg)
		if !ok {
			return nil, nil, false
		}
		cur = next
	}
	return cur, path[len(path)-1], true
}

func get(container interface{}, key interface{}) (interface{}, bool) {
	switch k := key.(type) {
	case string:
		m, ok := container.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[k]
		return v, ok
	case int:
		s, ok := container.([]interface{})
		if !ok || k < 0 || k >= len(s) {
			return nil, false
		}
		return s[k], true
	default:
		return nil, false
	}
}

func set(container interface{}, key interface{}, value interface{}) {
	switch k := key.(type) {
	case string:
		if m, ok := container.(map[string]interface{}); ok {
			m[k] = value
		}
	case int:
		if s, ok := container.([]interface{}); ok && k >= 0 && k < len(s) {
			s[k] = value
		}
	}
}
