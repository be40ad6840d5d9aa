package sceneimport

import "github.com/NERVsystems/vectorscene/pkg/sceneurl"

// Options describes a single scene load: where the root document comes
// from and any per-source overrides layered on top of it.
type Options struct {
	// RootURL is the scene document's address. If InlineText is set,
	// RootURL is used only as the base for resolving the root's
	// relative imports and texture references, not fetched.
	RootURL sceneurl.URL
	// InlineText, if non-empty, is parsed directly as the root document
	// instead of fetching RootURL.
	InlineText string
	// SourceOverrides replaces a named tile source's configured URL
	// template, keyed by source id.
	SourceOverrides map[string]sceneurl.URL
	// PixelScale scales the scene for high-density displays.
	PixelScale float64
}
