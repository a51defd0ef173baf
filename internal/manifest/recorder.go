package manifest

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-logfmt/logfmt"
)

/*
Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Allowed in a logged event:
- Primitive values, timestamps, URLs (as values), hashes, status codes,
  durations, identifiers (run ID, host).

Structured logging is preferred over free-form strings so a run's stderr
output can be grepped/aggregated the same way the manifest can.
*/

// Recorder is the logfmt-backed MetadataSink used by a running crawl. Writes
// are serialized behind a mutex since pages and assets are fetched by many
// goroutines concurrently.
type Recorder struct {
	mu   sync.Mutex
	name string
	w    io.Writer
	enc  *logfmt.Encoder
}

// NewRecorder returns a Recorder that writes to stderr under the given
// component name.
func NewRecorder(name string) *Recorder {
	return NewRecorderWithWriter(name, os.Stderr)
}

// NewRecorderWithWriter returns a Recorder writing logfmt lines to w. Useful
// in tests to capture output.
func NewRecorderWithWriter(name string, w io.Writer) *Recorder {
	return &Recorder{name: name, w: w, enc: logfmt.NewEncoder(w)}
}

func (r *Recorder) emit(kvs ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.enc.EncodeKeyvals(kvs...); err != nil {
		return
	}
	r.enc.EndRecord()
}

func (r *Recorder) RecordFetch(fetchURL string, httpStatus int, duration time.Duration, contentType string, depth int) {
	r.emit(
		"component", r.name,
		"event", "fetch",
		"url", fetchURL,
		"status", httpStatus,
		"duration_ms", duration.Milliseconds(),
		"content_type", contentType,
		"depth", depth,
	)
}

func (r *Recorder) RecordAssetFetch(fetchURL string, httpStatus int, duration time.Duration, assetType string) {
	r.emit(
		"component", r.name,
		"event", "asset_fetch",
		"url", fetchURL,
		"status", httpStatus,
		"duration_ms", duration.Milliseconds(),
		"asset_type", assetType,
	)
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	kvs := []interface{}{
		"component", r.name,
		"event", "artifact",
		"kind", string(kind),
		"path", path,
	}
	r.emit(append(kvs, attrsToKeyvals(attrs)...)...)
}

func (r *Recorder) RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, details string, attrs []Attribute) {
	kvs := []interface{}{
		"component", r.name,
		"event", "error",
		"time", observedAt.Format(time.RFC3339),
		"package", packageName,
		"action", action,
		"cause", cause.String(),
		"detail", details,
	}
	r.emit(append(kvs, attrsToKeyvals(attrs)...)...)
}

// RecordProgress emits one line per completed page: how far along the crawl
// is against its page cap, and how many assets have been archived so far.
func (r *Recorder) RecordProgress(pagesScraped int, pageCap int, assetCount int) {
	r.emit(
		"component", r.name,
		"event", "progress",
		"pages_scraped", pagesScraped,
		"page_cap", pageCap,
		"assets", assetCount,
	)
}

func (r *Recorder) RecordFinalCrawlStats(stats RunStats) {
	r.emit(
		"component", r.name,
		"event", "crawl_complete",
		"pages_scraped", stats.PagesScraped,
		"pages_failed", stats.PagesFailed,
		"bytes_downloaded", stats.BytesDownloaded,
		"elapsed_seconds", stats.ElapsedSeconds,
		"pages_per_second", stats.PagesPerSecond,
		"total_domains", stats.TotalDomains,
	)
}

func attrsToKeyvals(attrs []Attribute) []interface{} {
	kvs := make([]interface{}, 0, len(attrs)*2)
	for _, a := range attrs {
		kvs = append(kvs, string(a.Key), a.Value)
	}
	return kvs
}

var _ MetadataSink = (*Recorder)(nil)

// NoopSink discards every recorded event. Used by tests that still need a
// sink to satisfy the interface.
type NoopSink struct{}

func (NoopSink) RecordFetch(string, int, time.Duration, string, int)      {}
func (NoopSink) RecordAssetFetch(string, int, time.Duration, string)      {}
func (NoopSink) RecordArtifact(ArtifactKind, string, []Attribute)         {}
func (NoopSink) RecordError(time.Time, string, string, ErrorCause, string, []Attribute) {
}
func (NoopSink) RecordProgress(int, int, int)   {}
func (NoopSink) RecordFinalCrawlStats(RunStats) {}

var _ MetadataSink = (*NoopSink)(nil)

// Writer implements Finalizer by writing the run manifest as indented JSON
// to metadata.json under the run's output directory. This is the one
// allowed failure point that propagates as fatal: a manifest that
// fails to serialize leaves the run tree without its durable record.
type Writer struct{}

func (Writer) Finalize(outputDir string, m RunManifest) error {
	path := filepath.Join(outputDir, "metadata.json")
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var _ Finalizer = (*Writer)(nil)
