package engine

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shin315/fetchopt/internal/netopt"
	"github.com/shin315/fetchopt/internal/utils"
)

// ClientConfig mirrors the knobs of the pooled HTTP client.
type ClientConfig struct {
	KATimeout       time.Duration
	MaxConns        int
	MaxConnsPerHost int
	ProxyURL        string
	ProxyUsername   string
	ProxyPassword   string
	UserAgent       string
	Headers         map[string]string
}

// Client is a pooled HTTP client with a DNS-cached dialer. Request
// timeouts come from the caller's context, not the client, so each
// request can carry its own adaptive budget.
type Client struct {
	client *http.Client
	config ClientConfig
}

var filenameRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)

func NewClient(cfg ClientConfig, dns *netopt.DNSCache) *Client {
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 90 * time.Second
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 100
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = 100
	}
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		IdleConnTimeout:     cfg.KATimeout,
		MaxIdleConns:        cfg.MaxConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		DisableCompression:  true,
	}
	if dns != nil {
		transport.DialContext = func(ctx context.Context, network, address string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(address)
			if err != nil {
				return dialer.DialContext(ctx, network, address)
			}
			resolved := dns.Resolve(ctx, host)
			return dialer.DialContext(ctx, network, net.JoinHostPort(resolved, port))
		}
	} else {
		transport.DialContext = dialer.DialContext
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err == nil {
			if cfg.ProxyUsername != "" {
				if cfg.ProxyPassword != "" {
					proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
				} else {
					proxyURL.User = url.User(cfg.ProxyUsername)
				}
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &Client{
		client: &http.Client{Transport: transport},
		config: cfg,
	}
}

func (c *Client) SetHeader(key, value string) {
	if c.config.Headers == nil {
		c.config.Headers = make(map[string]string)
	}
	c.config.Headers[key] = value
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", utils.ToolUserAgent)
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	return c.client.Do(req)
}

// CloseIdleConnections drains the pool. Cancelled downloads call this so
// their half-read connections are not reused.
func (c *Client) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

// RemoteInfo describes a remote file from its HEAD response.
type RemoteInfo struct {
	Size     int64
	Filename string
}

// Head fetches size and a suggested filename for link. A missing
// Content-Length yields Size 0, which downstream treats as unknown.
func (c *Client) Head(ctx context.Context, link string) (*RemoteInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, classifyRequestError("head", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, &TransientError{Op: "head", Err: &HTTPError{URL: link, StatusCode: resp.StatusCode}}
	}
	if resp.StatusCode >= 400 {
		return nil, &HTTPError{URL: link, StatusCode: resp.StatusCode}
	}
	info := &RemoteInfo{Filename: filenameFromResponse(resp, link)}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if size, err := strconv.ParseInt(cl, 10, 64); err == nil && size > 0 {
			info.Size = size
		}
	}
	return info, nil
}

// Get opens a streaming GET. The caller owns the body.
func (c *Client) Get(ctx context.Context, link string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating GET request: %w", err)
	}
	req.Header.Set("Connection", "keep-alive")
	resp, err := c.Do(req)
	if err != nil {
		return nil, classifyRequestError("get", err)
	}
	if resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, &TransientError{Op: "get", Err: &HTTPError{URL: link, StatusCode: resp.StatusCode}}
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, &HTTPError{URL: link, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// classifyRequestError translates transport errors into the engine
// taxonomy so library-specific error types never leak to callers.
func classifyRequestError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return &TransientError{Op: op, Err: err}
}

// filenameFromResponse infers an output filename from the
// Content-Disposition header, falling back to the URL path.
func filenameFromResponse(resp *http.Response, link string) string {
	if contentDisposition := resp.Header.Get("Content-Disposition"); contentDisposition != "" {
		if _, params, err := mime.ParseMediaType(contentDisposition); err == nil {
			if fn, ok := params["filename"]; ok && fn != "" {
				return filenameRegex.ReplaceAllString(fn, "_")
			}
			if fn, ok := params["filename*"]; ok && strings.HasPrefix(fn, "UTF-8''") {
				unescaped, _ := url.PathUnescape(strings.TrimPrefix(fn, "UTF-8''"))
				return filenameRegex.ReplaceAllString(unescaped, "_")
			}
		}
	}
	parsedURL, err := url.Parse(link)
	if err != nil {
		return ""
	}
	pathParts := strings.Split(parsedURL.Path, "/")
	name := pathParts[len(pathParts)-1]
	if name == "" {
		return "download"
	}
	return filenameRegex.ReplaceAllString(name, "_")
}
