package rewrite

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rohmanhakim/docs-archiver/internal/urlpolicy"
)

var srcAttrs = []string{"src", "data-src", "data-lazy-src"}
var srcsetAttrs = []string{"srcset", "data-srcset"}

// RewriteHTML parses raw HTML rooted at base, triggers an
// asset fetch (via fetcher) for every enumerated reference, rewrites
// attributes/inline CSS to local paths, rewrites intra-site anchors, and
// returns the serialized result plus every not-yet-visited link discovered
// on the page (the Controller filters them by scope before enqueuing).
//
// Processing is sequential within a page: the order of rewrites is not
// externally observable, so there is no need for intra-page parallelism;
// parallelism across pages already carries throughput.
func RewriteHTML(
	ctx context.Context,
	raw []byte,
	base *url.URL,
	fetcher AssetFetcher,
	visited VisitedChecker,
	skipAssets bool,
) (rewritten string, links []DiscoveredLink, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
	if err != nil {
		return "", nil, err
	}

	if !skipAssets {
		rewriteImageLike(ctx, doc, base, fetcher)
		rewriteStylesheetsAndFonts(ctx, doc, base, fetcher)
		rewriteScripts(ctx, doc, base, fetcher)
		rewriteMedia(ctx, doc, base, fetcher)
		rewriteInlineCSS(ctx, doc, base, fetcher)
	}

	links = rewriteLinks(doc, base, visited)

	out, err := doc.Html()
	if err != nil {
		return "", nil, err
	}
	return out, links, nil
}

func rewriteImageLike(ctx context.Context, doc *goquery.Document, base *url.URL, fetcher AssetFetcher) {
	doc.Find("img, picture source").Each(func(_ int, sel *goquery.Selection) {
		for _, attr := range srcAttrs {
			rewriteSingleAttr(ctx, sel, attr, base, fetcher, urlpolicy.AssetImage, base.String())
		}
		for _, attr := range srcsetAttrs {
			rewriteSrcsetAttr(ctx, sel, attr, base, fetcher)
		}
	})
}

func rewriteStylesheetsAndFonts(ctx context.Context, doc *goquery.Document, base *url.URL, fetcher AssetFetcher) {
	doc.Find("link[href]").Each(func(_ int, sel *goquery.Selection) {
		rel := strings.ToLower(attrOr(sel, "rel", ""))
		switch {
		case strings.Contains(rel, "stylesheet"):
			rewriteSingleAttr(ctx, sel, "href", base, fetcher, urlpolicy.AssetCSS, base.String())
		case strings.Contains(rel, "font"):
			rewriteSingleAttr(ctx, sel, "href", base, fetcher, urlpolicy.AssetFont, base.String())
		}
	})
}

func rewriteScripts(ctx context.Context, doc *goquery.Document, base *url.URL, fetcher AssetFetcher) {
	doc.Find("script[src]").Each(func(_ int, sel *goquery.Selection) {
		rewriteSingleAttr(ctx, sel, "src", base, fetcher, urlpolicy.AssetJS, base.String())
	})
}

func rewriteMedia(ctx context.Context, doc *goquery.Document, base *url.URL, fetcher AssetFetcher) {
	doc.Find("video[src], audio[src], video source[src], audio source[src]").Each(func(_ int, sel *goquery.Selection) {
		rewriteSingleAttr(ctx, sel, "src", base, fetcher, urlpolicy.AssetMedia, base.String())
	})
}

func rewriteInlineCSS(ctx context.Context, doc *goquery.Document, base *url.URL, fetcher AssetFetcher) {
	doc.Find("style").Each(func(_ int, sel *goquery.Selection) {
		text := sel.Text()
		if strings.TrimSpace(text) == "" {
			return
		}
		rewritten := RewriteCSS(ctx, text, *base, fetcher, base.String())
		sel.SetText(rewritten)
	})

	doc.Find("[style]").Each(func(_ int, sel *goquery.Selection) {
		style, ok := sel.Attr("style")
		if !ok || !strings.Contains(style, "url(") {
			return
		}
		sel.SetAttr("style", RewriteCSS(ctx, style, *base, fetcher, base.String()))
	})
}

func rewriteSingleAttr(
	ctx context.Context,
	sel *goquery.Selection,
	attr string,
	base *url.URL,
	fetcher AssetFetcher,
	assetType urlpolicy.AssetType,
	referer string,
) {
	val, ok := sel.Attr(attr)
	if !ok || strings.TrimSpace(val) == "" || strings.HasPrefix(strings.TrimSpace(val), "data:") {
		return
	}
	abs, err := base.Parse(val)
	if err != nil {
		return
	}
	localPath, ok := fetcher.Fetch(ctx, *abs, assetType, referer)
	if ok {
		sel.SetAttr(attr, "../"+localPath)
	} else {
		sel.SetAttr(attr, abs.String())
	}
}

// rewriteSrcsetAttr rewrites only the URL token of each candidate in a
// srcset-shaped attribute, preserving width/density descriptors.
func rewriteSrcsetAttr(ctx context.Context, sel *goquery.Selection, attr string, base *url.URL, fetcher AssetFetcher) {
	val, ok := sel.Attr(attr)
	if !ok || strings.TrimSpace(val) == "" {
		return
	}
	candidates := strings.Split(val, ",")
	rewritten := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		fields := strings.Fields(candidate)
		if len(fields) == 0 {
			continue
		}
		urlToken, descriptor := fields[0], strings.Join(fields[1:], " ")

		if strings.HasPrefix(urlToken, "data:") {
			rewritten = append(rewritten, candidate)
			continue
		}
		abs, err := base.Parse(urlToken)
		if err != nil {
			rewritten = append(rewritten, candidate)
			continue
		}
		localPath, ok := fetcher.Fetch(ctx, *abs, urlpolicy.AssetImage, base.String())
		newToken := abs.String()
		if ok {
			newToken = "../" + localPath
		}
		if descriptor != "" {
			rewritten = append(rewritten, newToken+" "+descriptor)
		} else {
			rewritten = append(rewritten, newToken)
		}
	}
	sel.SetAttr(attr, strings.Join(rewritten, ", "))
}

func rewriteLinks(doc *goquery.Document, base *url.URL, visited VisitedChecker) []DiscoveredLink {
	var links []DiscoveredLink
	doc.Find("a[href], area[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
			return
		}
		abs, err := base.Parse(href)
		if err != nil {
			return
		}
		abs.Fragment = ""
		abs.RawFragment = ""

		if visited != nil && visited.IsVisited(*abs) {
			sel.SetAttr("href", urlpolicy.Digest(*abs)+".html")
		} else {
			sel.SetAttr("href", abs.String())
			links = append(links, DiscoveredLink{URL: *abs})
		}
	})
	return links
}

func attrOr(sel *goquery.Selection, attr, fallback string) string {
	if v, ok := sel.Attr(attr); ok {
		return v
	}
	return fallback
}
