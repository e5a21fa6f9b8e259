// Package wayback discovers archived snapshots of seed pages through the
// Wayback Machine availability API.
package wayback

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pevans/waybackfed/httpx"
)

// Custom errors for snapshot lookups
var (
	ErrNoSnapshot = errors.New("no snapshot available")
	ErrWrongYear  = errors.New("snapshot from a different year")
)

// Snapshot is the closest capture returned by a lookup.
type Snapshot struct {
	Timestamp string
	URL       string
}

// availabilityResponse mirrors the availability API payload.
type availabilityResponse struct {
	ArchivedSnapshots struct {
		Closest *struct {
			Timestamp string `json:"timestamp"`
			URL       string `json:"url"`
			Status    string `json:"status"`
			Available bool   `json:"available"`
		} `json:"closest"`
	} `json:"archived_snapshots"`
}

// Client queries the availability endpoint.
type Client struct {
	lookupURL  string
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a lookup client for the given endpoint.
func NewClient(lookupURL string, httpClient *http.Client, userAgent string) *Client {
	return &Client{
		lookupURL:  lookupURL,
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

// Lookup returns the capture of seed closest to timestamp. A response with
// no closest capture yields ErrNoSnapshot.
func (c *Client) Lookup(ctx context.Context, seed, timestamp string) (*Snapshot, error) {
	query := url.Values{}
	query.Set("url", seed)
	query.Set("timestamp", timestamp)

	page, err := httpx.Fetch(ctx, c.httpClient, c.lookupURL+"?"+query.Encode(), c.userAgent)
	if err != nil {
		return nil, err
	}

	var resp availabilityResponse
	if err := json.Unmarshal(page.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse lookup response: %w", err)
	}

	closest := resp.ArchivedSnapshots.Closest
	if closest == nil || closest.Timestamp == "" || closest.URL == "" {
		return nil, ErrNoSnapshot
	}

	return &Snapshot{Timestamp: closest.Timestamp, URL: closest.URL}, nil
}

// DayTimestamp formats day as a lookup timestamp with a random time of day,
// so consecutive runs don't hit identical cache keys.
func DayTimestamp(day time.Time, rnd *rand.Rand) string {
	return fmt.Sprintf("%s%02d%02d%02d",
		day.Format("20060102"), rnd.IntN(24), rnd.IntN(60), rnd.IntN(60))
}

// MatchesYear reports whether an archive timestamp falls in year. The lookup
// silently falls back to the nearest capture, which may be years away.
func MatchesYear(timestamp string, year int) bool {
	return strings.HasPrefix(timestamp, strconv.Itoa(year))
}

var originalURLPattern = regexp.MustCompile(`web/\d+/(.+)`)

// OriginalURL returns the original page URL embedded in a snapshot URL.
func OriginalURL(snapshotURL string) (string, bool) {
	match := originalURLPattern.FindStringSubmatch(snapshotURL)
	if match == nil {
		return "", false
	}
	return match[1], true
}
