package assets

import (
	"context"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rohmanhakim/docs-archiver/internal/httpclient"
	"github.com/rohmanhakim/docs-archiver/internal/manifest"
	"github.com/rohmanhakim/docs-archiver/internal/ratelimit"
	"github.com/rohmanhakim/docs-archiver/internal/storage"
	"github.com/rohmanhakim/docs-archiver/internal/urlpolicy"
	"github.com/rohmanhakim/docs-archiver/pkg/urlutil"
	"golang.org/x/sync/semaphore"
)

// textualTypes decode as UTF-8 (replacement on invalid bytes) and are
// written as text; every other asset type is written as opaque bytes.
var textualTypes = map[urlpolicy.AssetType]bool{
	urlpolicy.AssetCSS: true,
	urlpolicy.AssetJS:  true,
}

// Fetcher downloads a referenced asset into the run tree, returning its
// relative local path, with de-duplication (Cache), a global concurrency cap
// (sem), and per-origin pacing (limiter).
type Fetcher struct {
	client  *httpclient.Client
	cache   *Cache
	sem     *semaphore.Weighted
	limiter *ratelimit.ConcurrentRateLimiter
	sink    storage.Sink
	meta    manifest.MetadataSink
	runRoot string
}

func NewFetcher(
	client *httpclient.Client,
	cache *Cache,
	sem *semaphore.Weighted,
	rateLimiter *ratelimit.ConcurrentRateLimiter,
	sink storage.Sink,
	meta manifest.MetadataSink,
	runRoot string,
) *Fetcher {
	return &Fetcher{
		client:  client,
		cache:   cache,
		sem:     sem,
		limiter: rateLimiter,
		sink:    sink,
		meta:    meta,
		runRoot: runRoot,
	}
}

// SetRunRoot updates the directory asset bytes are written under. The
// Controller constructs a Fetcher before a run's timestamped output
// directory name is known, then fixes it here once Run starts.
func (f *Fetcher) SetRunRoot(runRoot string) {
	f.runRoot = runRoot
}

// Fetch resolves an asset reference to its local relative path, downloading
// and storing it on first sight. ok is false whenever the asset ends up in
// the negative cache, including on this call's own failure.
func (f *Fetcher) Fetch(ctx context.Context, assetURL url.URL, assetType urlpolicy.AssetType, referer string) (relPath string, ok bool) {
	canonicalAssetURL := urlutil.CanonicalizeIdentity(assetURL)
	key := canonicalAssetURL.String()

	if path, found, failed := f.cache.lookup(key); found {
		if failed {
			return "", false
		}
		return path, true
	}

	r, owned := f.cache.acquire(key)
	if !owned {
		<-r.done
		return r.result, r.ok
	}

	path, fetchErr := f.fetchAndStore(ctx, assetURL, assetType, referer)
	if fetchErr != nil {
		f.meta.RecordError(
			time.Now(),
			"assets",
			"Fetcher.Fetch",
			mapAssetErrorToMetadataCause(fetchErr),
			fetchErr.Error(),
			[]manifest.Attribute{
				manifest.NewAttr(manifest.AttrAssetURL, assetURL.String()),
				manifest.NewAttr(manifest.AttrAssetType, string(assetType)),
			},
		)
		f.cache.fail(key)
		return "", false
	}

	f.cache.publish(key, path)
	return path, true
}

func (f *Fetcher) fetchAndStore(ctx context.Context, assetURL url.URL, assetType urlpolicy.AssetType, referer string) (string, *AssetError) {
	host := assetURL.Hostname()
	f.limiter.Acquire(host)

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return "", &AssetError{Message: err.Error(), Retryable: true, Cause: ErrCauseFetchFailure, URL: assetURL.String()}
	}
	start := time.Now()
	resp, err := f.client.FetchAsset(ctx, assetURL.String(), referer)
	f.sem.Release(1)

	if err == nil && resp.StatusCode == 403 {
		// A 403 on the full browser-fidelity profile gets one retry with a
		// minimal header set. Assets only; page fetches never retry.
		resp, err = f.client.FetchMinimal(ctx, assetURL.String())
	}

	f.meta.RecordAssetFetch(assetURL.String(), resp.StatusCode, time.Since(start), string(assetType))

	if err != nil {
		return "", &AssetError{Message: err.Error(), Retryable: true, Cause: ErrCauseFetchFailure, URL: assetURL.String()}
	}
	if resp.StatusCode != 200 {
		cause := ErrCauseUnexpectedHTTP
		if resp.StatusCode == 403 {
			cause = ErrCauseForbidden
		}
		return "", &AssetError{
			Message:   "non-200 response",
			Retryable: false,
			Cause:     cause,
			URL:       assetURL.String(),
		}
	}

	relPath := urlpolicy.AssetLocalPath(assetURL, assetType)
	content := resp.Body
	if textualTypes[assetType] {
		content = toValidUTF8(content)
	}

	if werr := f.sink.WriteAsset(f.runRoot, relPath, content); werr != nil {
		return "", &AssetError{Message: werr.Error(), Retryable: false, Cause: ErrCauseStorageFailure, URL: assetURL.String()}
	}
	return relPath, nil
}

// toValidUTF8 decodes raw as UTF-8, substituting U+FFFD for invalid
// sequences. Applied only to textual asset types; binaries stay opaque.
func toValidUTF8(raw []byte) []byte {
	if utf8.Valid(raw) {
		return raw
	}
	return []byte(strings.ToValidUTF8(string(raw), "�"))
}
