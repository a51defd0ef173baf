package crawler

import (
	"net/url"
	"time"
)

/*
Responsibilities

- Describe the per-page entry the Controller keeps for every stored page.
- Hold the mutable counters the Controller's single-writer discipline
  protects: per-origin admission counts, the global scraped/failed totals,
  and the stored PageRecords.

Nothing here does I/O; it is the bookkeeping half of the Controller.
*/

// runCounters is the Controller's single lock-guarded block of mutable
// crawl-progress state. It is guarded by Controller.mu; every field is read
// or written only while that lock is held.
type runCounters struct {
	perOriginCounts map[string]int
	pagesScraped    int
	pagesFailed     int
	bytesDownloaded int64
	pages           map[string]pageEntry
}

type pageEntry struct {
	url         url.URL
	fetchedAt   time.Time
	contentType string
	storedPath  string
	depth       int
	sizeBytes   int64
	originHost  string
}

func newRunCounters() *runCounters {
	return &runCounters{
		perOriginCounts: make(map[string]int),
		pages:           make(map[string]pageEntry),
	}
}
