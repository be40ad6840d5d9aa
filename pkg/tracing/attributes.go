package tracing

import "go.opentelemetry.io/otel/attribute"

// Attribute keys used across the importer, tile pipeline and scene
// lifecycle spans.
const (
	// Scene attributes
	AttrSceneID     = "scene.id"
	AttrSceneStatus = "scene.status"

	// Import attributes
	AttrImportURL   = "import.url"
	AttrImportDepth = "import.depth"

	// Tile attributes
	AttrTileSource = "tile.source"
	AttrTileZ      = "tile.z"
	AttrTileX      = "tile.x"
	AttrTileY      = "tile.y"

	// Cache attributes
	AttrCacheType = "cache.type"
	AttrCacheHit  = "cache.hit"
	AttrCacheKey  = "cache.key"

	// HTTP transport attributes
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// Cache type labels.
const (
	CacheTypeTile   = "tile"
	CacheTypeImport = "import"
)

// CacheAttributes returns attributes describing a cache operation.
func CacheAttributes(cacheType string, hit bool, key string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCacheType, cacheType),
		attribute.Bool(AttrCacheHit, hit),
		attribute.String(AttrCacheKey, key),
	}
}

// ErrorAttributes returns attributes describing an error.
func ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, "error"),
		attribute.String(AttrErrorMessage, err.Error()),
	}
}
