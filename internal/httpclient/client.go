package httpclient

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"
)

/*
Responsibilities
- Issue GETs that look like a real desktop browser issued them
- Share one connection pool, cookie jar, and redirect policy across workers
- Carry three header profiles (page, asset, minimal) and a rotating User-Agent pool

A single Client is built once by the Controller and shared by every worker;
net/http.Client is safe for concurrent use, and so is everything in this
package.
*/

const (
	pageTimeout    = 30 * time.Second
	assetTimeout   = 30 * time.Second
	overallTimeout = 60 * time.Second
	maxIdlePerHost = 10
	maxIdleTotal   = 100
)

// defaultUserAgents is the rotation pool of four desktop-browser strings:
// two Chrome builds (Windows, Mac), one Firefox, one Safari.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

// Response is the body bytes plus the response metadata a caller needs to
// make storage and rewrite decisions.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
	SetCookie   []string
}

// Client is a long-lived, worker-shared HTTP client with browser-like
// headers, a shared cookie jar, and TLS verification disabled.
type Client struct {
	http      *http.Client
	cookies   *CookieStore
	userAgent func() string

	mu      sync.Mutex
	rng     *rand.Rand
	agents  []string
	agentAt int
}

// New builds a Client. TLS verification is disabled by design: the archiver
// targets sites with self-signed or misconfigured certificates as readily as
// well-formed ones, and it never transmits credentials of its own.
func New() *Client {
	jar, _ := cookiejar.New(nil)
	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		MaxIdleConns:        maxIdleTotal,
		MaxIdleConnsPerHost: maxIdlePerHost,
		MaxConnsPerHost:     maxIdlePerHost,
	}
	c := &Client{
		http: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   overallTimeout,
		},
		cookies: NewCookieStore(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		agents:  append([]string(nil), defaultUserAgents...),
	}
	return c
}

// nextUserAgent rotates through the pool; rotation rather than per-request
// random choice keeps header churn observable/deterministic in tests while
// still varying across requests.
func (c *Client) nextUserAgent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ua := c.agents[c.agentAt%len(c.agents)]
	c.agentAt++
	return ua
}

// FetchPage issues a page GET: Accept/Sec-Fetch headers identify a document
// navigation. No retry is performed on non-200: pages get exactly one
// attempt.
func (c *Client) FetchPage(ctx context.Context, rawURL, referer string) (Response, error) {
	return c.do(ctx, rawURL, referer, PageHeaders, pageTimeout)
}

// FetchAsset issues an asset GET with asset-profile headers. Callers
// implement the 403-minimal-header retry themselves (internal/assets), since
// that retry is asset-specific policy, not a client-level concern.
func (c *Client) FetchAsset(ctx context.Context, rawURL, referer string) (Response, error) {
	return c.do(ctx, rawURL, referer, AssetHeaders, assetTimeout)
}

// FetchMinimal issues a GET with only a User-Agent header set: used for the
// asset 403 retry, where a full browser header profile is itself what
// triggered the block.
func (c *Client) FetchMinimal(ctx context.Context, rawURL string) (Response, error) {
	return c.do(ctx, rawURL, "", minimalHeaders, assetTimeout)
}

// decodeBody reads resp.Body, undoing gzip/deflate content-encoding. Because
// the request set its own Accept-Encoding header (to look browser-authentic),
// net/http's automatic transparent decompression is disabled, so this
// package must do it itself. Brotli ("br") responses are read raw: the
// standard library has no decoder and brotli is rare enough over plain HTTP
// that falling back to raw bytes (rather than pulling in a new dependency
// for a single Accept-Encoding token) is an acceptable degradation.
func decodeBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return raw, nil
		}
		defer zr.Close()
		decoded, err := io.ReadAll(zr)
		if err != nil {
			return raw, nil
		}
		return decoded, nil
	case "deflate":
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return raw, nil
		}
		defer zr.Close()
		decoded, err := io.ReadAll(zr)
		if err != nil {
			return raw, nil
		}
		return decoded, nil
	default:
		return raw, nil
	}
}

func (c *Client) do(
	ctx context.Context,
	rawURL string,
	referer string,
	profile func(userAgent, referer string) http.Header,
	timeout time.Duration,
) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header = profile(c.nextUserAgent(), referer)

	if host := req.URL.Hostname(); host != "" {
		if cookie := c.cookies.CookieHeader(host); cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return Response{}, fmt.Errorf("read body: %w", err)
	}

	setCookie := resp.Header["Set-Cookie"]
	if host := req.URL.Hostname(); host != "" && len(setCookie) > 0 {
		c.cookies.Observe(host, setCookie)
	}

	return Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		SetCookie:   setCookie,
	}, nil
}
