package crawler

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rohmanhakim/docs-archiver/internal/assets"
	"github.com/rohmanhakim/docs-archiver/internal/config"
	"github.com/rohmanhakim/docs-archiver/internal/frontier"
	"github.com/rohmanhakim/docs-archiver/internal/httpclient"
	"github.com/rohmanhakim/docs-archiver/internal/manifest"
	"github.com/rohmanhakim/docs-archiver/internal/ratelimit"
	"github.com/rohmanhakim/docs-archiver/internal/robots"
	"github.com/rohmanhakim/docs-archiver/internal/storage"
	"github.com/rohmanhakim/docs-archiver/internal/urlpolicy"
	"github.com/rohmanhakim/docs-archiver/pkg/fileutil"
	"golang.org/x/sync/semaphore"
)

/*
Responsibilities

- Own the work queue (internal/frontier), the worker pool, the stop signal,
  and the counters that gate admission: visited set (frontier), per-origin
  counts, and the global scraped total.
- Drive one URL at a time through fetch -> rewrite -> store -> discover,
  using the policy, robots, rate-limit, and asset packages as gates and
  transforms.
- Emit the run manifest exactly once, after every worker has exited.

The Controller is the one place in the system where the crawl's shared
mutable state (visited set, per-origin counts, pages map, stop signal) is
all reachable from a single lock, matching the "single-writer discipline"
called for in the admission step.
*/

const drainPollInterval = 5 * time.Millisecond

// Controller owns the frontier, the shared HTTP client,
// rate limiter and asset cache, the worker pool, and the run manifest.
type Controller struct {
	cfg          config.Config
	client       *httpclient.Client
	sink         storage.Sink
	meta         manifest.MetadataSink
	robot        robots.Robot
	limiter      *ratelimit.ConcurrentRateLimiter
	assetCache   *assets.Cache
	assetFetcher *assets.Fetcher
	sem          *semaphore.Weighted
	frontier     *frontier.CrawlFrontier
	finalizer    manifest.Finalizer

	runRoot       string
	runID         string
	allowedHosts  map[string]struct{}

	mu       sync.Mutex
	counters *runCounters
	stop     atomic.Bool

	wg sync.WaitGroup
}

// New builds a Controller wired for a live run: a real HTTP client, local
// disk storage, a logfmt recorder, and (unless SKIP_ASSETS) a disk-backed
// asset dedup store rooted alongside OUTPUT_DIR. Callers that need to
// substitute a stub client/sink/sink (tests) should use NewWithDeps.
func New(cfg config.Config) (*Controller, error) {
	meta := manifest.NewRecorder("crawler")
	sink := storage.NewLocalSink(meta)

	var sinkIface storage.Sink = &sink
	if cfg.DryRun() {
		sinkIface = storage.NoopSink{}
	}

	var disk *assets.DiskDedupStore
	if !cfg.SkipAssets() {
		dbPath := filepath.Join(cfg.OutputDir(), "asset-dedup.db")
		if err := fileutil.EnsureDir(cfg.OutputDir()); err == nil {
			if store, openErr := assets.OpenDiskDedupStore(dbPath); openErr == nil {
				disk = store
			}
		}
	}

	robot := robots.NewCachedRobot(meta)
	robot.Init(cfg.UserAgent())

	return NewWithDeps(cfg, httpclient.New(), sinkIface, meta, robot, disk, manifest.Writer{})
}

// NewWithDeps builds a Controller from explicit collaborators, letting
// tests substitute an httptest-backed client, a NoopSink, or a capturing
// MetadataSink without touching the real filesystem or network.
func NewWithDeps(
	cfg config.Config,
	client *httpclient.Client,
	sink storage.Sink,
	meta manifest.MetadataSink,
	robot robots.Robot,
	disk *assets.DiskDedupStore,
	finalizer manifest.Finalizer,
) (*Controller, error) {
	if len(cfg.SeedURLs()) == 0 {
		return nil, fmt.Errorf("crawler: at least one seed URL is required")
	}

	limiter := ratelimit.NewConcurrentRateLimiter()
	limiter.SetBaseDelay(cfg.BaseDelay())
	limiter.SetJitter(cfg.Jitter())
	if cfg.RandomSeed() != 0 {
		limiter.SetRandomSeed(cfg.RandomSeed())
	}

	workers := cfg.Concurrency()
	if workers <= 0 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))

	assetCache := assets.NewCache(disk)
	assetFetcher := assets.NewFetcher(client, assetCache, sem, limiter, sink, meta, "")

	c := &Controller{
		cfg:          cfg,
		client:       client,
		sink:         sink,
		meta:         meta,
		robot:        robot,
		limiter:      limiter,
		assetCache:   assetCache,
		assetFetcher: assetFetcher,
		sem:          sem,
		frontier:     frontier.NewCrawlFrontier(),
		finalizer:    finalizer,
		allowedHosts: cfg.AllowedHosts(),
		counters:     newRunCounters(),
	}
	return c, nil
}

// Run drives one complete crawl: it seeds the frontier, launches the
// worker pool, waits for the queue to drain (or the stop signal to trip
// and the drain monitor to empty it), and writes metadata.json. The run
// directory is created under cfg.OutputDir() named by the start timestamp.
func (c *Controller) Run(ctx context.Context) (manifest.RunManifest, error) {
	startedAt := time.Now()
	c.runID = uuid.NewString()
	c.runRoot = filepath.Join(c.cfg.OutputDir(), startedAt.Format("20060102_150405"))

	if err := fileutil.EnsureDir(c.runRoot); err != nil {
		return manifest.RunManifest{}, fmt.Errorf("crawler: create run root: %w", err)
	}
	c.assetFetcher.SetRunRoot(c.runRoot)

	// A frontier initialized with MaxDepth unbounded: depth admission is
	// enforced by the Controller itself (see the link loop in processToken), since the
	// frontier's own "0 means unlimited" convention can't distinguish an
	// explicit MAX_DEPTH=0 (seed only) from "no cap configured".
	frontierCfg, err := config.WithDefault(c.cfg.SeedURLs()).
		WithMaxPages(c.cfg.MaxPages()).
		WithMaxDepth(0).
		Build()
	if err != nil {
		return manifest.RunManifest{}, fmt.Errorf("crawler: frontier config: %w", err)
	}
	c.frontier.Init(frontierCfg)

	for _, seed := range c.cfg.SeedURLs() {
		candidate := frontier.NewCrawlAdmissionCandidate(
			seed,
			frontier.SourceSeed,
			frontier.NewDiscoveryMetadata(0, nil),
		)
		if c.frontier.Submit(candidate) {
			c.wg.Add(1)
		}
	}

	doneCh := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(doneCh)
	}()

	workers := c.cfg.Concurrency()
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		go c.workerLoop(ctx, doneCh)
	}
	go c.drain(doneCh)

	<-doneCh

	finishedAt := time.Now()
	m := c.buildManifest(startedAt, finishedAt)

	c.assetCache.Close()

	if err := c.finalizer.Finalize(c.runRoot, m); err != nil {
		return m, fmt.Errorf("crawler: finalize manifest: %w", err)
	}
	c.summarize(m)
	return m, nil
}

// drain discards frontier tokens left behind once the stop signal trips,
// without running them through processToken. Ordinary workers already skip
// a dequeued token when c.stop is set (processToken's first check), but a
// dedicated drain loop means a tripped stop signal empties the queue
// promptly even if every worker is currently blocked mid-fetch, rather than
// waiting on each worker's own next poll.
func (c *Controller) drain(doneCh <-chan struct{}) {
	for {
		select {
		case <-doneCh:
			return
		default:
		}
		if !c.stop.Load() {
			time.Sleep(drainPollInterval)
			continue
		}
		if _, ok := c.frontier.Dequeue(); ok {
			c.wg.Done()
			continue
		}
		time.Sleep(drainPollInterval)
	}
}

// summarize emits the run's final stats line exactly once, after the
// manifest has been assembled and finalized.
func (c *Controller) summarize(m manifest.RunManifest) {
	c.meta.RecordFinalCrawlStats(m.Stats)
}

// workerLoop pops tokens until the queue is permanently drained: every
// worker shares one frontier, one HTTP client, and one rate limiter.
func (c *Controller) workerLoop(ctx context.Context, doneCh <-chan struct{}) {
	for {
		token, ok := c.frontier.Dequeue()
		if !ok {
			select {
			case <-doneCh:
				return
			case <-time.After(drainPollInterval):
				continue
			}
		}
		c.processToken(ctx, token)
	}
}

// RunRoot reports the output directory of the most recently started run.
func (c *Controller) RunRoot() string {
	return c.runRoot
}

// inScope reports whether u is eligible for crawl admission against any of
// the run's allowed hosts (ordinarily just the seed's host; a run seeded
// from several URLs may carry several).
func (c *Controller) inScope(u url.URL) bool {
	for host := range c.allowedHosts {
		if urlpolicy.InScope(u, host) {
			return true
		}
	}
	return false
}
