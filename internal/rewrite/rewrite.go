package rewrite

import (
	"context"
	"net/url"

	"github.com/rohmanhakim/docs-archiver/internal/urlpolicy"
)

// AssetFetcher is the narrow view of internal/assets.Fetcher the rewriter
// needs: resolve a referenced asset to its local path, or report failure.
type AssetFetcher interface {
	Fetch(ctx context.Context, assetURL url.URL, assetType urlpolicy.AssetType, referer string) (relPath string, ok bool)
}

// VisitedChecker reports whether an absolute URL already has (or will have)
// a PageRecord in this run: used to decide whether an anchor rewrites to a
// local filename or stays an absolute external link.
type VisitedChecker interface {
	IsVisited(u url.URL) bool
}

// DiscoveredLink is a not-yet-visited link found on a page, handed back to
// the Controller, which filters it by scope before enqueueing.
type DiscoveredLink struct {
	URL url.URL
}
