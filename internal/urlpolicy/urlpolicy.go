package urlpolicy

import (
	"net/url"
	"strings"

	"github.com/rohmanhakim/docs-archiver/pkg/hashutil"
	"github.com/rohmanhakim/docs-archiver/pkg/urlutil"
)

/*
Responsibilities
- Decide whether a URL may be admitted to the crawl
- Classify a URL as an asset reference
- Compute the stable digest used as a filename stem
- Compute the local relative path an asset is written to

The policy is pure: no I/O, safe to call from any worker, deterministic
across processes.
*/

// InScope reports whether url is eligible for crawl admission given the
// seed's origin host. The caller is responsible for stripping the URL
// fragment before calling.
func InScope(u url.URL, seedHost string) bool {
	if _, excluded := excludedSchemes[strings.ToLower(u.Scheme)]; excluded {
		return false
	}

	if !strings.EqualFold(u.Host, seedHost) {
		return false
	}

	base := pathBasename(u.Path)
	if ext := pathExtension(u.Path); ext != "" {
		if _, blacklisted := downloadBlacklist[ext]; blacklisted {
			return false
		}
	}
	// tar.gz is a compound extension; pathExtension only ever sees the
	// final dot-segment ("gz"), so it needs its own check here.
	if strings.HasSuffix(strings.ToLower(base), ".tar.gz") {
		return false
	}

	lowerPath := strings.ToLower(u.Path)
	for _, segment := range excludedPathSegments {
		if strings.HasPrefix(lowerPath, segment) {
			return false
		}
	}

	query := u.Query()
	for _, key := range excludedQueryKeys {
		if query.Has(key) {
			return false
		}
	}

	return true
}

// ClassifyAsset maps a URL to an AssetType by its file extension. The
// boolean return reports whether the URL was recognized as an asset at all;
// when false, the URL is not an asset by extension.
func ClassifyAsset(u url.URL) (AssetType, bool) {
	ext := pathExtension(u.Path)
	assetType, ok := extensionToAssetType[ext]
	return assetType, ok
}

// Digest returns the 128-bit hex digest over the canonical URL bytes. It is
// deterministic across processes and used as the filename stem for both
// saved pages and saved assets.
func Digest(u url.URL) string {
	canonical := urlutil.CanonicalizeIdentity(u)
	digest, err := hashutil.HashBytes([]byte(canonical.String()), hashutil.HashAlgoMD5)
	if err != nil {
		// HashAlgoMD5 is always a supported algorithm; this branch is
		// unreachable in practice.
		return ""
	}
	return digest
}

// AssetLocalPath returns the relative path an asset of the given type,
// referenced by url, is written to under the run root.
func AssetLocalPath(u url.URL, assetType AssetType) string {
	digest := Digest(u)
	ext := assetExtension(u.Path, assetType)
	return assetType.subdir() + "/" + digest + ext
}

// pathBasename returns the final path segment (after the last "/").
func pathBasename(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// pathExtension returns the lowercase extension (without the dot) of a URL
// path, or "" if there is none.
func pathExtension(path string) string {
	base := pathBasename(path)
	dot := strings.LastIndexByte(base, '.')
	if dot < 0 || dot == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[dot+1:])
}

// assetExtension picks the extension used for a stored asset filename: the
// URL's own extension if it's short enough and non-empty, else a
// type-specific default.
func assetExtension(path string, assetType AssetType) string {
	ext := pathExtension(path)
	if ext != "" && len(ext) <= 10 {
		return "." + ext
	}
	return assetType.defaultExt()
}
