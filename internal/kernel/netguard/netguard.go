// Package netguard implements the network guard (C5) described in
// spec.md §4.5: domain whitelist enforcement, token-bucket rate limiting,
// an LRU response cache, and timeout-clamped outbound HTTP.
package netguard

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opskernel/pluginhost/internal/kernel/audit"
	"github.com/opskernel/pluginhost/internal/kernel/kernelerr"
	"github.com/opskernel/pluginhost/internal/kernel/permission"
)

const (
	cacheCapacity      = 1000
	defaultCacheTTL    = 300 * time.Second
	defaultTimeout     = 30 * time.Second
	maxTimeout         = 300 * time.Second
)

// Request is an outbound HTTP request issued on a plugin's behalf.
type Request struct {
	Method     string
	URL        string
	Headers    map[string]string
	Body       string
	TimeoutSec int
}

// Response is the result of a dispatched Request.
type Response struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// Guard mediates every plugin network request through domain validation,
// rate limiting, response caching, and audit logging.
type Guard struct {
	permissions *permission.Store
	audit       *audit.Logger
	cache       *lruCache
	client      *http.Client
}

// New returns a Guard. permissions supplies both domain whitelist checks
// and the per-plugin token bucket (CheckRateLimit), matching
// network_proxy.rs's ownership of rate limiting inside the proxy itself —
// here it is delegated to the shared permission.Store so C2 remains the
// single source of rate-limiting state.
func New(permissions *permission.Store, auditLog *audit.Logger) *Guard {
	return &Guard{
		permissions: permissions,
		audit:       auditLog,
		cache:       newLRUCache(cacheCapacity),
		client:      &http.Client{},
	}
}

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "PATCH": true, "HEAD": true,
}

// Do validates, rate-limits, (optionally) serves from cache, dispatches,
// caches, and audit-logs a single request for pluginID.
func (g *Guard) Do(pluginID string, req Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "OPTIONS" || !allowedMethods[method] {
		g.log(pluginID, req.URL, "request", false, fmt.Sprintf("unsupported method: %s", req.Method))
		return nil, &kernelerr.PermissionDenied{Detail: fmt.Sprintf("unsupported HTTP method: %s", req.Method)}
	}

	host, err := hostOf(req.URL)
	if err != nil {
		g.log(pluginID, req.URL, "request", false, err.Error())
		return nil, &kernelerr.PermissionDenied{Detail: err.Error()}
	}
	if !g.permissions.ValidateNetwork(pluginID, host) {
		g.log(pluginID, req.URL, "request", false, fmt.Sprintf("domain not permitted: %s", host))
		return nil, &kernelerr.PermissionDenied{Detail: fmt.Sprintf("domain not permitted: %s", host)}
	}

	if !g.permissions.CheckRateLimit(pluginID) {
		return nil, &kernelerr.PermissionDenied{Detail: "rate limit exceeded"}
	}

	key := cacheKey(method, req.URL, req.Headers)
	if method == "GET" {
		if cached, ok := g.cache.get(key); ok {
			g.log(pluginID, req.URL, "request_cached", true, "")
			return cached, nil
		}
	}

	timeout := clampTimeout(req.TimeoutSec)
	client := g.client
	if timeout != g.client.Timeout {
		clone := *g.client
		clone.Timeout = timeout
		client = &clone
	}

	var bodyReader io.Reader
	if req.Body != "" {
		bodyReader = bytes.NewBufferString(req.Body)
	}
	httpReq, err := http.NewRequest(method, req.URL, bodyReader)
	if err != nil {
		g.log(pluginID, req.URL, "request", false, err.Error())
		return nil, &kernelerr.FileSystem{Detail: fmt.Sprintf("failed to build request: %v", err)}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		g.log(pluginID, req.URL, "request", false, err.Error())
		return nil, &kernelerr.FileSystem{Detail: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		g.log(pluginID, req.URL, "request", false, err.Error())
		return nil, &kernelerr.FileSystem{Detail: fmt.Sprintf("failed to read response body: %v", err)}
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	out := &Response{Status: resp.StatusCode, Headers: headers, Body: string(bodyBytes)}

	if method == "GET" && resp.StatusCode == http.StatusOK {
		g.cache.set(key, out, defaultCacheTTL)
	}

	g.log(pluginID, req.URL, "request", true, "")
	return out, nil
}

// Get, Post, Put, Delete are convenience wrappers over Do (supplemented
// from original_source's convenience HTTP verb methods).
func (g *Guard) Get(pluginID, url string, headers map[string]string) (*Response, error) {
	return g.Do(pluginID, Request{Method: "GET", URL: url, Headers: headers})
}

func (g *Guard) Post(pluginID, url, body string, headers map[string]string) (*Response, error) {
	return g.Do(pluginID, Request{Method: "POST", URL: url, Body: body, Headers: headers})
}

func (g *Guard) Put(pluginID, url, body string, headers map[string]string) (*Response, error) {
	return g.Do(pluginID, Request{Method: "PUT", URL: url, Body: body, Headers: headers})
}

func (g *Guard) Delete(pluginID, url string, headers map[string]string) (*Response, error) {
	return g.Do(pluginID, Request{Method: "DELETE", URL: url, Headers: headers})
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("invalid URL: %s", rawURL)
	}
	return u.Hostname(), nil
}

// cacheKey mirrors network_proxy.rs's cache_key: "METHOD:URL", plus
// ":auth:<value>" when an Authorization header is present, so distinct
// credentials never share a cache slot.
func cacheKey(method, rawURL string, headers map[string]string) string {
	key := method + ":" + rawURL
	for k, v := range headers {
		if strings.EqualFold(k, "Authorization") {
			key += ":auth:" + v
			break
		}
	}
	return key
}

func clampTimeout(requestedSec int) time.Duration {
	if requestedSec <= 0 {
		return defaultTimeout
	}
	d := time.Duration(requestedSec) * time.Second
	if d > maxTimeout {
		return maxTimeout
	}
	return d
}

func (g *Guard) log(pluginID, resource, action string, result bool, errMsg string) {
	if g.audit != nil {
		_ = g.audit.Log(pluginID, "network.request", resource, action, result, errMsg)
	}
}
