// Package sceneimport assembles a scene's declarative documents — which
// may cross-reference each other via an "import" field, and may live
// inside zip archives — into a single merged tree, rewriting texture
// references along the way. Fetching is cycle-safe and runs documents
// concurrently; merging is a deterministic depth-first post-order pass
// once every fetch has settled.
package sceneimport

import (
	"context"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/NERVsystems/vectorscene/pkg/archive"
	"github.com/NERVsystems/vectorscene/pkg/monitoring"
	"github.com/NERVsystems/vectorscene/pkg/platform"
	"github.com/NERVsystems/vectorscene/pkg/sceneerr"
	"github.com/NERVsystems/vectorscene/pkg/sceneurl"
	"github.com/NERVsystems/vectorscene/pkg/workpool"
)

// Tree is the assembled result of a scene import: a single merged
// document. Errors are returned beside it by Load; a document other than
// the root that fails to parse is left out of the merge and its error is
// reported there, without being fatal.
type Tree struct {
	Root map[string]interface{}
}

// docResult holds one fetched-and-parsed document's contribution.
type docResult struct {
	url        sceneurl.URL
	data       map[string]interface{}
	imports    []sceneurl.URL
	candidates []candidate
	err        error
}

type importer struct {
	ctx  context.Context
	req  platform.Requester
	work *workpool.Pool

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []sceneurl.URL
	known    map[string]bool
	inFlight int
	results  map[string]*docResult
	archives map[string]*archive.Reader
}

// Load fetches, parses, and merges a scene's document graph starting at
// opts.RootURL (or opts.InlineText, if set), returning the merged tree
// and any non-fatal errors encountered for individual documents. It
// returns a fatal error set (len(tree.Root)==0) only if the root itself
// could not be fetched or parsed, or ctx was canceled before settling.
func Load(ctx context.Context, opts Options, req platform.Requester, work *workpool.Pool) (Tree, []error) {
	im := &importer{
		ctx:      ctx,
		req:      req,
		work:     work,
		known:    make(map[string]bool),
		results:  make(map[string]*docResult),
		archives: make(map[string]*archive.Reader),
	}
	im.cond = sync.NewCond(&im.mu)

	rootKey := opts.RootURL.String()
	if opts.InlineText != "" {
		im.mu.Lock()
		im.known[rootKey] = true
		im.mu.Unlock()
		im.parseAndRecord(opts.RootURL, []byte(opts.InlineText), rootKey)
	} else {
		im.enqueue(opts.RootURL)
	}

	if canceled := im.drain(); canceled {
		return Tree{}, []error{sceneerr.New(sceneerr.CodeCanceled, "scene import canceled")}
	}

	root, ok := im.results[rootKey]
	if !ok || root.err != nil {
		msg := "root document fetch failed"
		var cause error
		if ok {
			cause = root.err
		}
		return Tree{}, []error{sceneerr.Wrap(sceneerr.CodeSceneBuild, msg, cause).WithURL(rootKey)}
	}

	visited := map[string]bool{}
	merged, errs := im.mergeNode(rootKey, visited)

	var allCandidates []candidate
	for _, r := range im.results {
		if r.err == nil {
			allCandidates = append(allCandidates, r.candidates...)
		}
	}
	errs = append(errs, rewriteTextures(merged, allCandidates)...)

	return Tree{Root: merged}, errs
}

func (im *importer) enqueue(u sceneurl.URL) {
	key := u.String()
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.known[key] {
		return
	}
	im.known[key] = true
	im.queue = append(im.queue, u)
	im.cond.Signal()
}

// drain pops and fetches URLs until the queue is empty and no fetch is
// in flight. It reports whether ctx was canceled before settling.
func (im *importer) drain() bool {
	for {
		im.mu.Lock()
		for len(im.queue) == 0 && im.inFlight > 0 {
			im.cond.Wait()
		}
		if len(im.queue) == 0 {
			im.mu.Unlock()
			return im.ctx.Err() != nil
		}
		if im.ctx.Err() != nil {
			im.mu.Unlock()
			return true
		}
		u := im.queue[0]
		im.queue = im.queue[1:]
		im.inFlight++
		im.mu.Unlock()

		go im.fetchOne(u)
	}
}

func (im *importer) fetchOne(u sceneurl.URL) {
	defer func() {
		im.mu.Lock()
		im.inFlight--
		im.cond.Signal()
		im.mu.Unlock()
	}()

	raw, actualURL, err := im.fetchDocumentBytes(u)
	if err != nil {
		im.record(u.String(), &docResult{url: u, err: err})
		return
	}
	im.parseAndRecord(actualURL, raw, u.String())
}

// fetchDocumentBytes resolves u to its document bytes. If u (or the
// resource it names) is a zip archive, the archive's base document is
// located and decompressed, and actualURL is the zip:// entry URL for
// that base document; otherwise actualURL is u unchanged.
func (im *importer) fetchDocumentBytes(u sceneurl.URL) ([]byte, sceneurl.URL, error) {
	if u.Scheme() == sceneurl.SchemeZip {
		archiveURL, err := sceneurl.ArchiveURLForEntry(u)
		if err != nil {
			return nil, u, err
		}
		reader, err := im.getArchive(archiveURL)
		if err != nil {
			return nil, u, err
		}
		entry, ok := reader.Find(u.EntryPath())
		if !ok {
			return nil, u, sceneerr.New(sceneerr.CodeArchive, "zip entry not found").WithURL(u.String())
		}
		data, err := im.decompress(reader, entry)
		return data, u, err
	}

	if u.IsZip() {
		raw, err := im.fetchBytes(u)
		if err != nil {
			return nil, u, err
		}
		reader, err := archive.NewReader(raw)
		if err != nil {
			return nil, u, err
		}
		im.putArchive(u, reader)

		base, ok := reader.BaseDocument()
		if !ok {
			return nil, u, sceneerr.New(sceneerr.CodeArchive, "zip archive has no base document").WithURL(u.String())
		}
		data, err := im.decompress(reader, base)
		if err != nil {
			return nil, u, err
		}
		return data, sceneurl.ZipEntryURL(u, base.Path), nil
	}

	raw, err := im.fetchBytes(u)
	return raw, u, err
}

func (im *importer) getArchive(archiveURL sceneurl.URL) (*archive.Reader, error) {
	key := archiveURL.String()
	im.mu.Lock()
	if r, ok := im.archives[key]; ok {
		im.mu.Unlock()
		return r, nil
	}
	im.mu.Unlock()

	raw, err := im.fetchBytes(archiveURL)
	if err != nil {
		return nil, err
	}
	reader, err := archive.NewReader(raw)
	if err != nil {
		return nil, err
	}
	im.putArchive(archiveURL, reader)
	return reader, nil
}

func (im *importer) putArchive(u sceneurl.URL, r *archive.Reader) {
	im.mu.Lock()
	im.archives[u.String()] = r
	im.mu.Unlock()
}

// fetchBytes issues a platform request and blocks until it completes or
// ctx is canceled.
func (im *importer) fetchBytes(u sceneurl.URL) ([]byte, error) {
	respCh := make(chan platform.Response, 1)
	handle := im.req.StartRequest(u, func(r platform.Response) { respCh <- r })
	select {
	case resp := <-respCh:
		monitoring.RecordImportFetch(resp.Err == nil)
		return resp.Bytes, resp.Err
	case <-im.ctx.Done():
		im.req.CancelRequest(handle)
		return nil, sceneerr.Wrap(sceneerr.CodeCanceled, "import fetch canceled", im.ctx.Err()).WithURL(u.String())
	}
}

// decompress runs zip decompression on the work pool and blocks until
// it completes or ctx is canceled.
func (im *importer) decompress(reader *archive.Reader, entry archive.Entry) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	resCh := make(chan result, 1)
	im.work.Submit(func(ctx context.Context) {
		data, err := reader.Decompress(entry)
		resCh <- result{data, err}
	})
	select {
	case res := <-resCh:
		return res.data, res.err
	case <-im.ctx.Done():
		return nil, sceneerr.Wrap(sceneerr.CodeCanceled, "zip decompress canceled", im.ctx.Err())
	}
}

func (im *importer) parseAndRecord(docURL sceneurl.URL, raw []byte, resultKey string) {
	var data map[string]interface{}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		im.record(resultKey, &docResult{url: docURL, err: sceneerr.Wrap(sceneerr.CodeParse, "parsing scene document", err).WithURL(docURL.String())})
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}

	imports := extractImports(data)
	delete(data, "import")

	candidates := findTextureCandidates(data, docURL)

	resolved := make([]sceneurl.URL, 0, len(imports))
	for _, raw := range imports {
		u, err := docURL.Resolve(raw)
		if err != nil {
			slog.Warn("scene import: skipping unresolvable import reference", "document", docURL.String(), "reference", raw, "error", err)
			continue
		}
		resolved = append(resolved, u)
	}

	im.record(resultKey, &docResult{url: docURL, data: data, imports: resolved, candidates: candidates})
	for _, u := range resolved {
		im.enqueue(u)
	}
}

func (im *importer) record(key string, r *docResult) {
	im.mu.Lock()
	im.results[key] = r
	im.mu.Unlock()
}

// extractImports reads the document's "import" field, scalar or list,
// as a list of raw reference strings.
func extractImports(data map[string]interface{}) []string {
	raw, ok := data["import"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			if s, ok := elem.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// mergeNode recursively merges urlKey's contribution with its imports'
// contributions in depth-first post-order: children merge first (later
// siblings overlay earlier ones), then urlKey's own document overlays
// and wins over the combined children. visited guards against cycles
// and redundant re-imports; a URL already visited is skipped entirely.
func (im *importer) mergeNode(urlKey string, visited map[string]bool) (map[string]interface{}, []error) {
	if visited[urlKey] {
		return nil, nil
	}
	visited[urlKey] = true

	doc, ok := im.results[urlKey]
	if !ok {
		return nil, nil
	}
	if doc.err != nil {
		return nil, []error{doc.err}
	}

	var errs []error
	merged := map[string]interface{}{}
	for _, childURL := range doc.imports {
		childTree, childErrs := im.mergeNode(childURL.String(), visited)
		errs = append(errs, childErrs...)
		if childTree != nil {
			merged = deepMerge(merged, childTree)
		}
	}
	merged = deepMerge(merged, doc.data)
	return merged, errs
}
