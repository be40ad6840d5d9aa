package sceneimport

import (
	"log/slog"
)

// deepMerge merges overlay into a copy of dst and returns it: maps
// recurse key-by-key, and any other shape at a shared key is replaced by
// overlay's value. A differing-type, non-nil overwrite is logged (not
// an error: this is the documented, intentional precedence rule).
func deepMerge(dst, overlay map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(dst))
	for k, v := range dst {
		out[k] = v
	}

	for k, ov := range overlay {
		existing, had := out[k]
		if !had {
			out[k] = ov
			continue
		}

		existingMap, existingIsMap := existing.(map[string]interface{})
		overlayMap, overlayIsMap := ov.(map[string]interface{})
		if existingIsMap && overlayIsMap {
			out[k] = deepMerge(existingMap, overlayMap)
			continue
		}

		if existing != nil && ov != nil && typeName(existing) != typeName(ov) {
			slog.Debug("scene import: overwriting value of a different type",
				"key", k,
				"existing_type", typeName(existing),
				"overlay_type", typeName(ov),
			)
		}
		out[k] = ov
	}
	return out
}

func typeName(v interface{}) string {
	switch v.(type) {
	case map[string]interface{}:
		return "map"
	case []interface{}:
		return "sequence"
	case string:
		return "string"
	case bool:
		return "bool"
	case nil:
		return "null"
	default:
		return "scalar"
	}
}
