// Package sceneurl provides the immutable URL type used to address scene
// documents, archive entries and tile sources across the engine. It
// generalizes the host-extraction idiom the platform client already uses
// for rate limiting into a full RFC-3986-style resolvable value type, and
// adds a virtual zip:// scheme for addressing entries inside an archive.
package sceneurl

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Scheme constants recognized by the importer and platform requester.
const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
	SchemeFile  = "file"
	SchemeZip   = "zip"
)

// URL is an immutable addressable resource identifier. Two URLs compare
// equal by their canonical string form.
type URL struct {
	scheme   string
	netloc   string
	pth      string
	query    string
	fragment string
}

// Parse parses raw into a URL. It accepts any absolute URL understood by
// net/url, plus the zip:// scheme documented in package docs.
func Parse(raw string) (URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return URL{}, fmt.Errorf("sceneurl: parse %q: %w", raw, err)
	}
	return fromNetURL(u), nil
}

func fromNetURL(u *url.URL) URL {
	return URL{
		scheme:   strings.ToLower(u.Scheme),
		netloc:   u.Host,
		pth:      u.Path,
		query:    u.RawQuery,
		fragment: u.Fragment,
	}
}

// Resolve resolves rel against u per RFC-3986-style reference resolution,
// the same semantics net/url.URL.ResolveReference implements.
func (u URL) Resolve(rel string) (URL, error) {
	relURL, err := url.Parse(rel)
	if err != nil {
		return URL{}, fmt.Errorf("sceneurl: resolve %q: %w", rel, err)
	}
	base := u.toNetURL()
	resolved := base.ResolveReference(relURL)
	return fromNetURL(resolved), nil
}

func (u URL) toNetURL() *url.URL {
	return &url.URL{
		Scheme:   u.scheme,
		Host:     u.netloc,
		Path:     u.pth,
		RawQuery: u.query,
		Fragment: u.fragment,
	}
}

// PathExt returns the file extension of the URL's path, without the dot,
// lower-cased. It returns "" if there is none.
func (u URL) PathExt() string {
	ext := path.Ext(u.pth)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Scheme returns the URL's scheme, lower-cased.
func (u URL) Scheme() string { return u.scheme }

// Path returns the URL's path component.
func (u URL) Path() string { return u.pth }

// IsZip reports whether the URL's path extension is "zip", meaning it
// should be treated as an archive when resolving imports.
func (u URL) IsZip() bool { return u.PathExt() == "zip" }

// String renders the canonical string form of u.
func (u URL) String() string {
	return u.toNetURL().String()
}

// EscapeReserved percent-encodes s for safe embedding as a single path
// segment (used to carry an archive's source URL inside a zip:// net-location).
func EscapeReserved(s string) string {
	return url.QueryEscape(s)
}

// UnescapeReserved reverses EscapeReserved.
func UnescapeReserved(s string) (string, error) {
	return url.QueryUnescape(s)
}

// ZipEntryURL builds the zip:// URL addressing entryPath inside the
// archive located at archive. The archive's source URL is carried
// percent-encoded as the net-location.
func ZipEntryURL(archive URL, entryPath string) URL {
	return URL{
		scheme: SchemeZip,
		netloc: EscapeReserved(archive.String()),
		pth:    "/" + strings.TrimPrefix(entryPath, "/"),
	}
}

// ArchiveURLForEntry recovers the archive URL A from a zip:// URL produced
// by ZipEntryURL, such that ArchiveURLForEntry(ZipEntryURL(A, p)) == A for
// all archive URLs A and entry paths p.
func ArchiveURLForEntry(u URL) (URL, error) {
	if u.scheme != SchemeZip {
		return URL{}, fmt.Errorf("sceneurl: %q is not a zip:// URL", u.String())
	}
	decoded, err := UnescapeReserved(u.netloc)
	if err != nil {
		return URL{}, fmt.Errorf("sceneurl: decoding archive net-location: %w", err)
	}
	return Parse(decoded)
}

// EntryPath returns the archive-relative entry path of a zip:// URL,
// stripped of its leading slash.
func (u URL) EntryPath() string {
	return strings.TrimPrefix(u.pth, "/")
}
