package crawler

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rohmanhakim/docs-archiver/internal/frontier"
	"github.com/rohmanhakim/docs-archiver/internal/manifest"
	"github.com/rohmanhakim/docs-archiver/internal/rewrite"
)

/*
processToken drives one URL through the page pipeline:

	[QUEUED] --pop--> [ADMISSION]
	  --per-origin cap / stop signal--> [DROPPED]
	  --ok--> [FETCHING]
	[FETCHING] --robots deny / non-200 / error--> [FAILED]
	[FETCHING] --200--> [REWRITING] (html) or [STORING] (non-html)
	[REWRITING] --> [STORING]
	[STORING] --> [DISCOVERED] (extract in-scope links, enqueue)

Every call to processToken consumes exactly one unit of the Controller's
wg, whatever branch it takes.
*/
func (c *Controller) processToken(ctx context.Context, token frontier.CrawlToken) {
	defer c.wg.Done()

	u := token.URL()
	depth := token.Depth()
	host := u.Hostname()

	if c.stop.Load() {
		return
	}
	if c.originCapped(host) {
		return
	}

	if c.cfg.RespectRobotsTxt() {
		decision, robotsErr := c.robot.Decide(ctx, u)
		if robotsErr == nil && decision.CrawlDelay > 0 {
			c.limiter.SetCrawlDelay(host, decision.CrawlDelay)
		}
		if robotsErr == nil && !decision.Allowed {
			c.meta.RecordError(
				time.Now(), "crawler", "processToken.robots", manifest.CausePolicyDisallow,
				"disallowed by robots.txt",
				[]manifest.Attribute{manifest.NewAttr(manifest.AttrURL, u.String()), manifest.NewAttr(manifest.AttrDepth, strconv.Itoa(depth))},
			)
			c.countFailure()
			return
		}
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return
	}
	c.limiter.Acquire(host)
	start := time.Now()
	resp, err := c.client.FetchPage(ctx, u.String(), "")
	c.sem.Release(1)

	status := 0
	if err == nil {
		status = resp.StatusCode
	}
	c.meta.RecordFetch(u.String(), status, time.Since(start), resp.ContentType, depth)

	if err != nil || resp.StatusCode != 200 {
		c.meta.RecordError(
			time.Now(), "crawler", "processToken.fetch", manifest.CauseNetworkFailure,
			fetchErrMessage(err, status),
			[]manifest.Attribute{manifest.NewAttr(manifest.AttrURL, u.String()), manifest.NewAttr(manifest.AttrHost, host)},
		)
		c.countFailure()
		return
	}

	if !c.admitAfterFetch(host) {
		return
	}

	html := isHTML(resp.ContentType)
	body := resp.Body
	var links []rewrite.DiscoveredLink

	if html {
		out, discovered, rerr := rewrite.RewriteHTML(ctx, resp.Body, &u, c.assetFetcher, c.frontier, c.cfg.SkipAssets())
		if rerr != nil {
			c.meta.RecordError(
				time.Now(), "crawler", "processToken.rewrite", manifest.CauseContentInvalid,
				rerr.Error(),
				[]manifest.Attribute{manifest.NewAttr(manifest.AttrURL, u.String())},
			)
			// A rewriter parse failure stores the raw HTML unrewritten;
			// the page still counts as scraped, not failed.
		} else {
			body = []byte(out)
			links = discovered
		}
	}

	writeResult, writeErr := c.sink.WritePage(c.runRoot, u, resp.ContentType, body)
	if writeErr != nil {
		c.countFailure()
		return
	}

	c.recordPage(u, pageEntry{
		url:         u,
		fetchedAt:   time.Now(),
		contentType: resp.ContentType,
		storedPath:  writeResult.Path(),
		depth:       depth,
		sizeBytes:   writeResult.SizeBytes(),
		originHost:  host,
	})
	c.meta.RecordProgress(c.scrapedCount(), c.cfg.MaxPages(), c.assetCache.Size())

	if !html {
		return
	}

	for _, link := range links {
		if !c.inScope(link.URL) {
			continue
		}
		if c.cfg.MaxDepth() > 0 && depth+1 > c.cfg.MaxDepth() {
			continue
		}
		if c.cfg.MaxDepth() == 0 {
			// MAX_DEPTH=0 means the seed only; no further hops.
			continue
		}
		candidate := frontier.NewCrawlAdmissionCandidate(
			link.URL,
			frontier.SourceCrawl,
			frontier.NewDiscoveryMetadata(depth+1, nil),
		)
		if c.frontier.Submit(candidate) {
			c.wg.Add(1)
		}
	}
}

// originCapped is the cheap, non-authoritative pre-check at [ADMISSION]:
// it avoids spending a robots lookup and a fetch on a URL whose origin is
// already known to be at its per-origin cap. The cap is read literally:
// 0 means zero pages admitted from any origin, not "unlimited".
func (c *Controller) originCapped(host string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters.perOriginCounts[host] >= c.cfg.PagesPerDomain()
}

// admitAfterFetch is the authoritative admission step:
// the per-origin and global scraped counters increment immediately after a
// successful fetch, before storage, so a later storage failure still
// counts against both caps. The global cap's stop signal is set atomically
// with the last permitted increment; the worker that trips it still
// finishes processing its own page.
func (c *Controller) admitAfterFetch(host string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop.Load() {
		return false
	}
	if c.counters.perOriginCounts[host] >= c.cfg.PagesPerDomain() {
		return false
	}

	c.counters.perOriginCounts[host]++
	c.counters.pagesScraped++

	if maxPages := c.cfg.MaxPages(); maxPages > 0 && c.counters.pagesScraped >= maxPages {
		c.stop.Store(true)
	}
	return true
}

func (c *Controller) scrapedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters.pagesScraped
}

func (c *Controller) countFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters.pagesFailed++
}

func (c *Controller) recordPage(u url.URL, entry pageEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters.pages[u.String()] = entry
	c.counters.bytesDownloaded += entry.sizeBytes
}

func isHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "html")
}

func fetchErrMessage(err error, status int) string {
	if err != nil {
		return err.Error()
	}
	return "unexpected http status " + strconv.Itoa(status)
}
