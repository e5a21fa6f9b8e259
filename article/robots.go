package article

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsPolicy answers robots.txt questions for a user agent, caching one
// rule group per host.
type RobotsPolicy struct {
	client    *http.Client
	userAgent string

	mu     sync.Mutex
	groups map[string]*robotstxt.Group
}

// NewRobotsPolicy creates a policy that fetches robots.txt files with client.
func NewRobotsPolicy(client *http.Client, userAgent string) *RobotsPolicy {
	return &RobotsPolicy{
		client:    client,
		userAgent: userAgent,
		groups:    map[string]*robotstxt.Group{},
	}
}

// Allowed reports whether rawURL may be fetched. Hosts whose robots.txt
// can't be retrieved are treated as allowing everything.
func (p *RobotsPolicy) Allowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("failed to parse URL: %w", err)
	}
	if u.Host == "" {
		return false, fmt.Errorf("URL has no host: %s", rawURL)
	}

	group, err := p.group(ctx, u)
	if err != nil {
		return true, err
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path), nil
}

func (p *RobotsPolicy) group(ctx context.Context, u *url.URL) (*robotstxt.Group, error) {
	key := u.Scheme + "://" + u.Host

	p.mu.Lock()
	group, ok := p.groups[key]
	p.mu.Unlock()
	if ok {
		return group, nil
	}

	group, err := p.fetch(ctx, key+"/robots.txt")
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.groups[key] = group
	p.mu.Unlock()
	return group, nil
}

func (p *RobotsPolicy) fetch(ctx context.Context, robotsURL string) (*robotstxt.Group, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse robots.txt: %w", err)
	}
	return data.FindGroup(p.userAgent), nil
}

// RobotsExtractor skips URLs the policy disallows and delegates the rest.
type RobotsExtractor struct {
	Policy *RobotsPolicy
	Next   Extractor
}

// Extract implements Extractor. A disallowed URL is Empty.
func (e *RobotsExtractor) Extract(ctx context.Context, rawURL string) Result {
	allowed, err := e.Policy.Allowed(ctx, rawURL)
	if err != nil && !allowed {
		return Failed(err)
	}
	if !allowed {
		return Empty()
	}
	return e.Next.Extract(ctx, rawURL)
}
