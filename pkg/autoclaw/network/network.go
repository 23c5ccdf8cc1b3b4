// Package network covers web search, HTTP requests, downloads, and
// connectivity checks.
package network

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	psnet "github.com/shirou/gopsutil/v4/net"
	"golang.org/x/net/html"
)

const (
	userAgent       = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	searchEndpoint  = "https://html.duckduckgo.com/html/"
	weatherEndpoint = "https://wttr.in"
	openWeatherURL  = "https://api.openweathermap.org/data/2.5/weather"
	publicIPURL     = "https://api.ipify.org"

	maxResponseBody = 4 << 20
	downloadChunk   = 8192
)

// Client performs network operations with a shared HTTP client.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a network client. A nil httpClient gets a 30s
// timeout default.
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:   httpClient,
		logger: logger.With("component", "network"),
	}
}

// SearchResult is a single web search hit.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

// Search queries DuckDuckGo's HTML endpoint and returns up to limit
// results.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if limit <= 0 {
		limit = 10
	}

	searchURL := searchEndpoint + "?q=" + url.QueryEscape(query)
	body, err := c.fetch(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}

	results, err := parseSearchResults(bytes.NewReader(body), limit)
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}
	c.logger.Info("web search", "query", query, "results", len(results))
	return results, nil
}

// parseSearchResults extracts result links and snippets from the
// DuckDuckGo HTML page.
func parseSearchResults(r io.Reader, limit int) ([]SearchResult, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	var current *SearchResult

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= limit && current == nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			classes := attr(n, "class")
			switch {
			case strings.Contains(classes, "result__a"):
				if current != nil && current.Title != "" && len(results) < limit {
					results = append(results, *current)
				}
				current = &SearchResult{
					Title:  strings.TrimSpace(textContent(n)),
					URL:    cleanResultURL(attr(n, "href")),
					Source: "DuckDuckGo",
				}
			case strings.Contains(classes, "result__snippet"):
				if current != nil && current.Description == "" {
					current.Description = strings.TrimSpace(textContent(n))
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	if current != nil && current.Title != "" && len(results) < limit {
		results = append(results, *current)
	}
	return results, nil
}

// cleanResultURL unwraps DuckDuckGo's redirect links, which carry the
// target in a uddg query parameter.
func cleanResultURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}

// APIResponse carries the outcome of APIRequest.
type APIResponse struct {
	StatusCode int
	JSON       map[string]any
	Body       string
}

// APIRequest performs an HTTP request with an optional JSON body and
// decodes a JSON response when the server sends one.
func (c *Client) APIRequest(ctx context.Context, method, rawURL string, headers map[string]string, body any) (*APIResponse, error) {
	method = strings.ToUpper(method)
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
	default:
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	out := &APIResponse{StatusCode: resp.StatusCode, Body: string(data)}
	var decoded map[string]any
	if json.Unmarshal(data, &decoded) == nil {
		out.JSON = decoded
	}
	return out, nil
}

// DownloadFile streams rawURL into destDir and returns the written
// path. The filename defaults to the last URL path segment.
func (c *Client) DownloadFile(ctx context.Context, rawURL, destDir, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	if filename == "" {
		if u, err := url.Parse(rawURL); err == nil {
			filename = path.Base(u.Path)
		}
		if filename == "" || filename == "." || filename == "/" {
			filename = "download"
		}
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create destination directory: %w", err)
	}
	dest := filepath.Join(destDir, filename)
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create %q: %w", dest, err)
	}
	defer f.Close()

	written, err := io.CopyBuffer(f, resp.Body, make([]byte, downloadChunk))
	if err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("write %q: %w", dest, err)
	}

	c.logger.Info("file downloaded", "url", rawURL, "path", dest, "bytes", written)
	return dest, nil
}

// TestConnectivity checks reachability of a host. With a port it dials
// TCP; without one it resolves the name.
func (c *Client) TestConnectivity(ctx context.Context, host string, port int, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if port > 0 {
		dialer := net.Dialer{Timeout: timeout}
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, fmt.Sprint(port)))
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}

	resolveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := net.DefaultResolver.LookupHost(resolveCtx, host)
	return err == nil
}

// Weather fetches current conditions for a city: OpenWeatherMap when an
// API key is configured, wttr.in otherwise.
func (c *Client) Weather(ctx context.Context, city, apiKey string) (map[string]any, error) {
	if strings.TrimSpace(city) == "" {
		return nil, fmt.Errorf("empty city")
	}

	var requestURL string
	if apiKey != "" {
		q := url.Values{}
		q.Set("q", city)
		q.Set("appid", apiKey)
		q.Set("units", "metric")
		requestURL = openWeatherURL + "?" + q.Encode()
	} else {
		requestURL = weatherEndpoint + "/" + url.PathEscape(city) + "?format=j1"
	}

	body, err := c.fetch(ctx, requestURL)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}
	return data, nil
}

// SiteStatus is the outcome of a website check.
type SiteStatus struct {
	URL         string        `json:"url"`
	Up          bool          `json:"up"`
	StatusCode  int           `json:"status_code"`
	Latency     time.Duration `json:"latency"`
	ContentHash string        `json:"content_hash"`
	Changed     bool          `json:"changed"`
	CheckedAt   time.Time     `json:"checked_at"`
}

// CheckWebsite fetches rawURL and reports availability, latency, and
// whether the content hash differs from previousHash. Pass an empty
// previousHash on the first check.
func (c *Client) CheckWebsite(ctx context.Context, rawURL, previousHash string) (SiteStatus, error) {
	status := SiteStatus{URL: rawURL, CheckedAt: time.Now()}

	start := time.Now()
	body, code, err := c.fetchStatus(ctx, rawURL)
	status.Latency = time.Since(start)
	status.StatusCode = code
	if err != nil {
		return status, fmt.Errorf("check %s: %w", rawURL, err)
	}

	status.Up = code >= 200 && code < 400
	sum := sha256.Sum256(body)
	status.ContentHash = hex.EncodeToString(sum[:])
	status.Changed = previousHash != "" && previousHash != status.ContentHash

	c.logger.Info("website checked",
		"url", rawURL,
		"up", status.Up,
		"status", code,
		"changed", status.Changed)
	return status, nil
}

// Info describes the local network environment.
type Info struct {
	Hostname   string   `json:"hostname"`
	LocalIPs   []string `json:"local_ips"`
	PublicIP   string   `json:"public_ip,omitempty"`
	Interfaces []string `json:"interfaces"`
}

// NetworkInfo collects hostname, addresses, and interface names. The
// public IP lookup failing is not an error.
func (c *Client) NetworkInfo(ctx context.Context) (Info, error) {
	var info Info

	hostname, err := os.Hostname()
	if err != nil {
		return info, fmt.Errorf("hostname: %w", err)
	}
	info.Hostname = hostname

	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return info, fmt.Errorf("list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		info.Interfaces = append(info.Interfaces, iface.Name)
		for _, addr := range iface.Addrs {
			ip, _, err := net.ParseCIDR(addr.Addr)
			if err != nil || ip.IsLoopback() {
				continue
			}
			info.LocalIPs = append(info.LocalIPs, ip.String())
		}
	}

	if body, err := c.fetch(ctx, publicIPURL); err == nil {
		info.PublicIP = strings.TrimSpace(string(body))
	} else {
		c.logger.Debug("public IP lookup failed", "error", err)
	}
	return info, nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	body, code, err := c.fetchStatus(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", code)
	}
	return body, nil
}

func (c *Client) fetchStatus(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
