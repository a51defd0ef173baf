package crawler

import (
	"time"

	"github.com/rohmanhakim/docs-archiver/internal/manifest"
)

// buildManifest assembles the terminal RunManifest from the counters the
// worker pool accumulated and the asset cache's final state. It runs once,
// after every worker has exited, so it reads c.counters and c.assetCache
// without the lock: nothing is writing to them anymore.
func (c *Controller) buildManifest(startedAt, finishedAt time.Time) manifest.RunManifest {
	elapsed := finishedAt.Sub(startedAt).Seconds()

	pages := make(map[string]manifest.PageRecord, len(c.counters.pages))
	domainCounts := make(map[string]int, len(c.counters.perOriginCounts))
	for key, entry := range c.counters.pages {
		pages[key] = manifest.PageRecord{
			URL:         entry.url.String(),
			FetchedAt:   entry.fetchedAt,
			ContentType: entry.contentType,
			StoredPath:  entry.storedPath,
			Depth:       entry.depth,
			SizeBytes:   entry.sizeBytes,
			OriginHost:  entry.originHost,
		}
		domainCounts[entry.originHost]++
	}

	assetMap, failedAssets := c.assetCache.Snapshot()

	pagesPerSecond := 0.0
	if elapsed > 0 {
		pagesPerSecond = float64(c.counters.pagesScraped) / elapsed
	}

	stats := manifest.RunStats{
		PagesScraped:    c.counters.pagesScraped,
		PagesFailed:     c.counters.pagesFailed,
		BytesDownloaded: c.counters.bytesDownloaded,
		ElapsedSeconds:  elapsed,
		PagesPerSecond:  pagesPerSecond,
		DomainCounts:    domainCounts,
		TotalDomains:    len(domainCounts),
	}

	startURL := ""
	if seeds := c.cfg.SeedURLs(); len(seeds) > 0 {
		startURL = seeds[0].String()
	}

	return manifest.RunManifest{
		RunID:             c.runID,
		StartURL:          startURL,
		StartedAt:         startedAt,
		FinishedAt:        finishedAt,
		MaxPagesLimit:     c.cfg.MaxPages(),
		PagesPerDomainLim: c.cfg.PagesPerDomain(),
		TotalPages:        len(pages),
		PagesScraped:      c.counters.pagesScraped,
		Stats:             stats,
		DomainCounts:      domainCounts,
		Pages:             pages,
		AssetMap:          assetMap,
		FailedAssets:      failedAssets,
	}
}
