package robots

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rohmanhakim/docs-archiver/internal/manifest"
	"github.com/rohmanhakim/docs-archiver/internal/robots/cache"
)

/*
Responsibilities

- Fetch robots.txt per origin
- Cache rules for the crawl's duration
- Answer allow/deny for a (URL, agent) pair

Robots checks occur after a worker takes a URL from the crawl queue and
before the URL is fetched. A fetch,
parse, or network failure of any kind defaults to allow: robots.txt is
advisory infrastructure, and its unavailability must never block a crawl.
*/

const robotsFetchTimeout = 5 * time.Second

type Robot interface {
	Init(userAgent string)
	Decide(ctx context.Context, u url.URL) (Decision, *RobotsError)
}

// CachedRobot answers robots.txt decisions, caching one fetch result per
// origin for the lifetime of the crawl. A caller that finds no cached result
// blocks on the robots.txt fetch; callers that come after the result is
// cached reuse it. Lookups for one origin are not coordinated: callers that
// arrive while the first fetch is still in flight each fetch robots.txt too.
type CachedRobot struct {
	fetcher   *RobotsFetcher
	cache     cache.Cache
	meta      manifest.MetadataSink
	userAgent string
}

// NewCachedRobot constructs a Robot backed by an in-memory per-origin cache.
func NewCachedRobot(metadataSink manifest.MetadataSink) *CachedRobot {
	c := cache.NewMemoryCache()
	return &CachedRobot{
		fetcher: NewRobotsFetcherWithClient(
			metadataSink,
			"",
			&http.Client{Timeout: robotsFetchTimeout},
			c,
		),
		cache: c,
		meta:  metadataSink,
	}
}

// Init sets the user agent used both for the robots.txt HTTP request and for
// group matching within the fetched rules.
func (r *CachedRobot) Init(userAgent string) {
	r.userAgent = userAgent
	if r.cache == nil {
		r.cache = cache.NewMemoryCache()
	}
	r.fetcher = NewRobotsFetcherWithClient(
		r.meta,
		userAgent,
		&http.Client{Timeout: robotsFetchTimeout},
		r.cache,
	)
}

// Decide answers whether u may be crawled by the configured user agent. Any
// fetch or parse failure is treated as an allow-all decision for the origin
// and cached as such so repeated lookups don't keep re-fetching a
// consistently failing robots.txt.
func (r *CachedRobot) Decide(ctx context.Context, u url.URL) (Decision, *RobotsError) {
	result, err := r.fetcher.Fetch(ctx, u.Scheme, u.Host)
	if err != nil {
		if r.meta != nil {
			r.meta.RecordError(
				time.Now(), "robots", "CachedRobot.Decide", mapRobotsErrorToMetadataCause(err),
				err.Error(),
				[]manifest.Attribute{manifest.NewAttr(manifest.AttrHost, u.Host)},
			)
		}
		r.cacheAllowAll(u.Scheme, u.Host)
		return Decision{Url: u, Allowed: true, Reason: EmptyRuleSet}, nil
	}

	rs := MapResponseToRuleSet(result.Response, r.userAgent, result.FetchedAt)
	return evaluate(rs, u), nil
}

// cacheAllowAll populates the fetcher's cache with an empty (allow-all)
// response for the origin so a transient robots.txt failure doesn't cause
// every subsequent URL on that host to pay the fetch cost again.
func (r *CachedRobot) cacheAllowAll(scheme, host string) {
	if r.cache == nil {
		return
	}
	sourceURL := cacheKey(scheme, host)
	sentinel := RobotsFetchResult{
		Response: RobotsResponse{
			Host:       host,
			Sitemaps:   []string{},
			UserAgents: []UserAgentGroup{},
		},
		FetchedAt: time.Now(),
		SourceURL: sourceURL,
	}
	if data, err := serializeResult(sentinel); err == nil {
		r.cache.Put(sourceURL, data)
	}
}

// evaluate applies the longest-matching-rule-wins policy to rs for u.Path.
// Ties between an allow and a disallow rule of equal length favor allow.
func evaluate(rs ruleSet, u url.URL) Decision {
	decision := Decision{Url: u, CrawlDelay: rs.CrawlDelay()}

	if !rs.hasGroups {
		decision.Allowed = true
		decision.Reason = EmptyRuleSet
		return decision
	}
	if !rs.matchedGroup {
		decision.Allowed = true
		decision.Reason = UserAgentNotMatched
		return decision
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	bestAllowLen := -1
	for _, rule := range rs.AllowRules() {
		if matchesPath(path, rule.Prefix()) && len(rule.Prefix()) > bestAllowLen {
			bestAllowLen = len(rule.Prefix())
		}
	}

	bestDisallowLen := -1
	for _, rule := range rs.DisallowRules() {
		if matchesPath(path, rule.Prefix()) && len(rule.Prefix()) > bestDisallowLen {
			bestDisallowLen = len(rule.Prefix())
		}
	}

	if bestDisallowLen == -1 {
		decision.Allowed = true
		decision.Reason = NoMatchingRules
		return decision
	}

	if bestAllowLen >= bestDisallowLen {
		decision.Allowed = true
		decision.Reason = AllowedByRobots
		return decision
	}

	decision.Allowed = false
	decision.Reason = DisallowedByRobots
	return decision
}

// matchesPath reports whether path falls under the robots.txt prefix rule.
func matchesPath(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	return strings.HasPrefix(path, prefix)
}
