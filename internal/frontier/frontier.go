package frontier

import (
	"net/url"
	"sync"

	"github.com/rohmanhakim/docs-archiver/internal/config"
	"github.com/rohmanhakim/docs-archiver/pkg/urlutil"
)

/*
Frontier Responsibilities
- Maintain BFS ordering
- Deduplicate URLs
- Track crawl depth
- Prevent infinite traversal
- Knows nothing about:
	- fetching
	- extraction
	- rewriting
	- storage

It is a data structure + policy module, not a pipeline executor.
*/

// CrawlFrontier is the single admission point for discovered URLs. It
// enforces strict breadth-first ordering across depth levels, deduplicates
// submissions by canonicalized URL identity, and caps total admission at
// MaxPages. It is safe for concurrent use by multiple submitter and
// dequeuer goroutines.
type CrawlFrontier struct {
	mu sync.Mutex

	maxDepth int
	maxPages int

	queuesByDepth map[int]*FIFOQueue[CrawlToken]
	visited       Set[string]

	// currentDepth is the lowest depth level that may still hold pending
	// tokens. Dequeue advances it past exhausted levels so repeated calls
	// don't rescan already-drained depths from zero every time.
	currentDepth int
}

// NewCrawlFrontier constructs an uninitialized frontier. Call Init before
// submitting or dequeuing.
func NewCrawlFrontier() *CrawlFrontier {
	return &CrawlFrontier{
		queuesByDepth: make(map[int]*FIFOQueue[CrawlToken]),
		visited:       NewSet[string](),
		currentDepth:  0,
	}
}

// Init configures the frontier's admission limits from cfg. A MaxDepth or
// MaxPages of 0 means unlimited.
func (f *CrawlFrontier) Init(cfg config.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.maxDepth = cfg.MaxDepth()
	f.maxPages = cfg.MaxPages()
}

// Submit admits a discovered URL into the frontier if it passes depth and
// page-cap policy and has not already been seen. Identity is determined by
// the canonicalized form of the URL (scheme/host lowercased, default port
// dropped, fragment stripped, query preserved) rather than the raw url.URL
// value, which carries pointer fields that break naive map-key equality.
// It reports whether the candidate was actually admitted, so a caller
// tracking outstanding work (e.g. a sync.WaitGroup) knows whether to expect
// a corresponding Dequeue.
func (f *CrawlFrontier) Submit(candidate CrawlAdmissionCandidate) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	metadata := candidate.DiscoveryMetadata()
	depth := metadata.Depth()

	if f.maxDepth > 0 && depth > f.maxDepth {
		return false
	}

	canonicalTargetURL := urlutil.CanonicalizeIdentity(candidate.TargetURL())
	key := canonicalTargetURL.String()
	if f.visited.Contains(key) {
		return false
	}

	if f.maxPages > 0 && f.visited.Size() >= f.maxPages {
		return false
	}

	f.visited.Add(key)

	queue, ok := f.queuesByDepth[depth]
	if !ok {
		queue = NewFIFOQueue[CrawlToken]()
		f.queuesByDepth[depth] = queue
	}
	queue.Enqueue(NewCrawlToken(candidate.TargetURL(), depth))

	if depth < f.currentDepth {
		f.currentDepth = depth
	}

	return true
}

// Dequeue returns the next token in strict BFS order: every token at depth
// N is returned before any token at depth N+1. Gaps between populated depth
// levels (e.g. depth 1 never receiving any submissions) are skipped without
// panicking.
func (f *CrawlFrontier) Dequeue() (CrawlToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.dequeueLocked()
}

func (f *CrawlFrontier) dequeueLocked() (CrawlToken, bool) {
	depth := f.currentDepth
	for {
		queue, ok := f.queuesByDepth[depth]
		if ok && queue.Size() > 0 {
			f.currentDepth = depth
			return queue.Dequeue()
		}
		if !f.hasAnyAtOrAfter(depth + 1) {
			return CrawlToken{}, false
		}
		depth++
	}
}

// hasAnyAtOrAfter reports whether any known depth level >= depth still has
// pending tokens.
func (f *CrawlFrontier) hasAnyAtOrAfter(depth int) bool {
	for d, queue := range f.queuesByDepth {
		if d >= depth && queue.Size() > 0 {
			return true
		}
	}
	return false
}

// IsDepthExhausted reports whether depth has no pending tokens. Negative
// depths and depths never submitted to are always exhausted.
func (f *CrawlFrontier) IsDepthExhausted(depth int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if depth < 0 {
		return true
	}

	queue, ok := f.queuesByDepth[depth]
	if !ok {
		return true
	}
	return queue.Size() == 0
}

// CurrentMinDepth returns the smallest depth level with at least one
// pending token, or -1 if the frontier holds nothing.
func (f *CrawlFrontier) CurrentMinDepth() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	min := -1
	for d, queue := range f.queuesByDepth {
		if queue.Size() == 0 {
			continue
		}
		if min == -1 || d < min {
			min = d
		}
	}
	return min
}

// VisitedCount returns the number of unique canonicalized URLs ever
// admitted to the frontier. It is append-only: it never decreases as
// tokens are dequeued.
func (f *CrawlFrontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.visited.Size()
}

// IsVisited reports whether u has already been admitted to the frontier,
// under the same canonicalized identity Submit uses. It satisfies
// rewrite.VisitedChecker, letting the HTML rewriter distinguish anchors that
// resolve to an already-fetched page from ones that stay external links.
func (f *CrawlFrontier) IsVisited(u url.URL) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	canonicalURL := urlutil.CanonicalizeIdentity(u)
	key := canonicalURL.String()
	return f.visited.Contains(key)
}
