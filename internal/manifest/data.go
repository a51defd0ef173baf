package manifest

import "time"

/*
Canonical ErrorCause Table

ErrorCause is a closed, canonical classification used exclusively for
observability (logging, the manifest's stats block). It must never be used
to derive retry, continuation, or abort decisions: those belong to each
package's own *Error.Severity(). Pipeline packages map their local error
causes onto this table but must not invent new meanings.

If a failure does not map cleanly to a known category, CauseUnknown is used.
*/
type ErrorCause int

const (
	CauseUnknown ErrorCause = iota
	CauseNetworkFailure
	CausePolicyDisallow
	CauseContentInvalid
	CauseStorageFailure
	CauseInvariantViolation
)

func (c ErrorCause) String() string {
	switch c {
	case CauseNetworkFailure:
		return "network_failure"
	case CausePolicyDisallow:
		return "policy_disallow"
	case CauseContentInvalid:
		return "content_invalid"
	case CauseStorageFailure:
		return "storage_failure"
	case CauseInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

// ArtifactKind classifies what RecordArtifact is reporting the write of.
type ArtifactKind string

const (
	ArtifactPage     ArtifactKind = "page"
	ArtifactAsset    ArtifactKind = "asset"
	ArtifactManifest ArtifactKind = "manifest"
)

// AttributeKey enumerates the permitted logfmt keys carried alongside an
// event. Keeping this closed avoids an ad-hoc vocabulary growing across
// packages.
type AttributeKey string

const (
	AttrURL         AttributeKey = "url"
	AttrHost        AttributeKey = "host"
	AttrPath        AttributeKey = "path"
	AttrDepth       AttributeKey = "depth"
	AttrField       AttributeKey = "field"
	AttrHTTP        AttributeKey = "http_status"
	AttrAssetURL    AttributeKey = "asset_url"
	AttrAssetType   AttributeKey = "asset_type"
	AttrWritePath   AttributeKey = "write_path"
	AttrContentHash AttributeKey = "content_hash"
	AttrMessage     AttributeKey = "message"
	AttrOrigin      AttributeKey = "origin"
	AttrRetry       AttributeKey = "retry"
)

type Attribute struct {
	Key   AttributeKey
	Value string
}

func NewAttr(key AttributeKey, val string) Attribute {
	return Attribute{Key: key, Value: val}
}

// MetadataSink is the narrow logging port every pipeline package depends
// on. It never returns an error: recording an event must never be able to
// fail a crawl.
type MetadataSink interface {
	RecordFetch(fetchURL string, httpStatus int, duration time.Duration, contentType string, depth int)
	RecordAssetFetch(fetchURL string, httpStatus int, duration time.Duration, assetType string)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
	RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, details string, attrs []Attribute)
	RecordProgress(pagesScraped int, pageCap int, assetCount int)
	RecordFinalCrawlStats(stats RunStats)
}

// PageRecord is the durable, once-written record of a successfully fetched
// page. Never mutated after creation.
type PageRecord struct {
	URL         string    `json:"url"`
	FetchedAt   time.Time `json:"fetched_at"`
	ContentType string    `json:"content_type"`
	StoredPath  string    `json:"stored_path"`
	Depth       int       `json:"depth"`
	SizeBytes   int64     `json:"size_bytes"`
	OriginHost  string    `json:"origin_host"`
}

// RunStats is the terminal, derived summary of a completed crawl: aggregate
// counts and durations computed once, after the worker pool has drained.
type RunStats struct {
	PagesScraped    int            `json:"pages_scraped"`
	PagesFailed     int            `json:"pages_failed"`
	BytesDownloaded int64          `json:"bytes_downloaded"`
	ElapsedSeconds  float64        `json:"elapsed_seconds"`
	PagesPerSecond  float64        `json:"pages_per_second"`
	DomainCounts    map[string]int `json:"domain_counts"`
	TotalDomains    int            `json:"total_domains"`
}

// RunManifest is the terminal, single-write summary of a completed crawl,
// serialized to metadata.json at the root of the run's output directory.
// It is mutated only by the Controller, under single-writer discipline, and
// serialized exactly once after every worker has exited.
type RunManifest struct {
	RunID             string                `json:"run_id"`
	StartURL          string                `json:"start_url"`
	StartedAt         time.Time             `json:"started_at"`
	FinishedAt        time.Time             `json:"timestamp"`
	MaxPagesLimit     int                   `json:"max_pages_limit"`
	PagesPerDomainLim int                   `json:"pages_per_domain_limit"`
	TotalPages        int                   `json:"total_pages"`
	PagesScraped      int                   `json:"pages_scraped"`
	Stats             RunStats              `json:"stats"`
	DomainCounts      map[string]int        `json:"domain_counts"`
	Pages             map[string]PageRecord `json:"pages"`
	AssetMap          map[string]string     `json:"asset_map"`
	FailedAssets      []string              `json:"failed_assets"`
}

// Finalizer emits the run manifest exactly once, at the end of a crawl.
type Finalizer interface {
	Finalize(outputDir string, m RunManifest) error
}
