package httpclient

import (
	"strings"
	"sync"
)

// CookieStore is a best-effort, last-writer-wins map from host to the most
// recently observed Set-Cookie values for that host. A stale read is
// tolerable: cookie capture here is opportunistic, not session management.
//
// This sits alongside the http.Client's own cookiejar.Jar (which already
// handles same-origin cookie replay correctly); CookieStore exists because
// the archiver sometimes wants to inject a host's last-known cookies on a
// request built outside the jar's normal Set-Cookie/attach cycle (e.g. an
// asset fetch routed through a different code path than the jar expects).
type CookieStore struct {
	mu    sync.Mutex
	byHost map[string]string
}

func NewCookieStore() *CookieStore {
	return &CookieStore{byHost: make(map[string]string)}
}

// Observe records the cookie values seen in a response's Set-Cookie headers
// for host, overwriting anything previously recorded.
func (c *CookieStore) Observe(host string, setCookie []string) {
	if len(setCookie) == 0 {
		return
	}
	pairs := make([]string, 0, len(setCookie))
	for _, sc := range setCookie {
		if nv := firstPair(sc); nv != "" {
			pairs = append(pairs, nv)
		}
	}
	if len(pairs) == 0 {
		return
	}
	c.mu.Lock()
	c.byHost[host] = strings.Join(pairs, "; ")
	c.mu.Unlock()
}

// CookieHeader returns the Cookie header value to send for host, or "" if
// nothing has been observed yet.
func (c *CookieStore) CookieHeader(host string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byHost[host]
}

// firstPair extracts the "name=value" portion of a Set-Cookie header,
// discarding attributes (Path, Domain, Expires, ...).
func firstPair(setCookie string) string {
	if idx := strings.IndexByte(setCookie, ';'); idx >= 0 {
		setCookie = setCookie[:idx]
	}
	return strings.TrimSpace(setCookie)
}
