package rewrite

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/rohmanhakim/docs-archiver/internal/urlpolicy"
)

// urlTokenPattern matches CSS url(...) tokens, tolerating optional single or
// double quotes and whitespace inside the parentheses. Capture group order:
// double-quoted, single-quoted, unquoted.
var urlTokenPattern = regexp.MustCompile(`url\(\s*(?:"([^"]*)"|'([^']*)'|([^'")\s][^'")]*))\s*\)`)

var fontExtensions = map[string]bool{
	"woff": true, "woff2": true, "ttf": true, "eot": true, "otf": true,
}

// RewriteCSS finds every url(...) reference in css,
// fetches each one via fetcher, and textually substitutes resolved
// references with url("../{asset_local_path}"), consistently across quote
// variants. It is pure with respect to CSS structure: no CSS parser is
// involved, only token substitution.
func RewriteCSS(ctx context.Context, css string, base url.URL, fetcher AssetFetcher, referer string) string {
	if !strings.Contains(css, "url(") {
		return css
	}

	// localPaths memoizes fetch results per raw reference so a stylesheet
	// repeating the same URL issues one fetch and rewrites consistently.
	localPaths := make(map[string]string)

	return urlTokenPattern.ReplaceAllStringFunc(css, func(token string) string {
		m := urlTokenPattern.FindStringSubmatch(token)
		raw := strings.TrimSpace(firstNonEmpty(m[1], m[2], m[3]))
		if raw == "" || strings.HasPrefix(raw, "data:") {
			return token
		}

		if local, done := localPaths[raw]; done {
			if local == "" {
				return token
			}
			return `url("../` + local + `")`
		}

		abs, err := base.Parse(raw)
		if err != nil {
			localPaths[raw] = ""
			return token
		}

		assetType := urlpolicy.AssetImage
		if fontExtensions[strings.ToLower(extOf(abs.Path))] {
			assetType = urlpolicy.AssetFont
		}

		localPath, ok := fetcher.Fetch(ctx, *abs, assetType, referer)
		if !ok {
			localPaths[raw] = ""
			return token
		}
		localPaths[raw] = localPath
		return `url("../` + localPath + `")`
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func extOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}
	return path[idx+1:]
}
