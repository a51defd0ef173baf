package httpclient

import "net/http"

// PageHeaders builds the header profile for a document navigation: Accept
// lists HTML first, Sec-Fetch-Dest is "document".
func PageHeaders(userAgent, referer string) http.Header {
	h := commonHeaders(userAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}

// AssetHeaders builds the header profile for an embedded-resource fetch:
// Accept favors image formats, Sec-Fetch-Dest is "image", Sec-Fetch-Site is
// "same-origin" (assets are fetched relative to the page that referenced
// them).
func AssetHeaders(userAgent, referer string) http.Header {
	h := commonHeaders(userAgent)
	h.Set("Accept", "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8")
	h.Set("Sec-Fetch-Dest", "image")
	h.Set("Sec-Fetch-Mode", "no-cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}

// minimalHeaders is the reduced header set used for the asset 403 retry: a
// User-Agent only, on the theory that the full browser-fidelity profile is
// itself what some servers fingerprint and block.
func minimalHeaders(userAgent, _ string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	return h
}

func commonHeaders(userAgent string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("DNT", "1")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	return h
}
