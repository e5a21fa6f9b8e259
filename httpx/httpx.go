// Package httpx holds the HTTP plumbing shared by the pipeline stages.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pevans/waybackfed/config"
	"golang.org/x/net/html/charset"
)

// MaxRedirects bounds redirect chains on every client.
const MaxRedirects = 15

// maxBodySize caps how much of a response body is read.
const maxBodySize = 16 << 20

// StatusError reports a non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s (%s)", e.Code, http.StatusText(e.Code), e.URL)
}

// Page is a fetched and charset-decoded document.
type Page struct {
	URL         string
	ContentType string
	Body        []byte
}

// NewClient creates an HTTP client with the given timeout. When proxy has a
// credential, requests are routed through the proxy matching their scheme.
func NewClient(timeout time.Duration, proxy *config.ProxyConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != nil && proxy.Enabled() {
		p := *proxy
		transport.Proxy = func(req *http.Request) (*url.URL, error) {
			return p.URL(req.URL.Scheme), nil
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", MaxRedirects)
			}
			return nil
		},
	}
}

// Fetch performs a GET and returns the body decoded to UTF-8. Any status
// other than 200 is returned as a *StatusError.
func Fetch(ctx context.Context, client *http.Client, rawURL, userAgent string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	var body io.Reader = io.LimitReader(resp.Body, maxBodySize)
	if decoded, err := charset.NewReader(body, contentType); err == nil {
		body = decoded
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Page{URL: rawURL, ContentType: contentType, Body: data}, nil
}
