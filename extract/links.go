// Package extract implements link extraction: it pulls outbound links out of
// captured snapshot pages and recovers the original site URLs behind them.
package extract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// MinURLLength is the shortest link, in characters, worth keeping.
const MinURLLength = 10

// RecoverURL returns the original URL behind a link found in a snapshot page.
// Archive links look like /web/<timestamp>/<original>; anything else is kept
// from its first "http" onwards. Links that yield no usable URL are rejected.
func RecoverURL(link string) (string, bool) {
	if utf8.RuneCountInString(link) < MinURLLength {
		return "", false
	}

	parts := strings.Split(link, "/")
	if len(parts) >= 3 && parts[1] == "web" {
		original := strings.Join(parts[3:], "/")
		if !strings.HasPrefix(original, "http") {
			return "", false
		}
		return original, true
	}

	if i := strings.Index(link, "http"); i >= 0 {
		return link[i:], true
	}

	return "", false
}

// RecoverLinks applies RecoverURL to every link, in order, dropping rejects.
func RecoverLinks(links []string) []string {
	recovered := make([]string, 0, len(links))
	for _, link := range links {
		if original, ok := RecoverURL(link); ok {
			recovered = append(recovered, original)
		}
	}
	return recovered
}

// ParseLinks returns the raw link targets of a captured page in document
// order. Feed documents yield their item links; everything else is parsed as
// HTML and yields every <a href>.
func ParseLinks(body []byte, contentType string) ([]string, error) {
	if isFeed(body, contentType) {
		if links, err := parseFeedLinks(body); err == nil {
			return links, nil
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			links = append(links, strings.TrimSpace(href))
		}
	})

	return links, nil
}

func isFeed(body []byte, contentType string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "rss") || strings.Contains(ct, "atom") {
		return true
	}
	if strings.Contains(ct, "html") {
		return false
	}

	head := bytes.TrimSpace(body)
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.HasPrefix(head, []byte("<?xml")) &&
		(bytes.Contains(head, []byte("<rss")) || bytes.Contains(head, []byte("<feed")))
}

func parseFeedLinks(body []byte) ([]string, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	var links []string
	for _, item := range feed.Items {
		if item.Link != "" {
			links = append(links, item.Link)
			continue
		}
		links = append(links, item.Links...)
	}
	return links, nil
}
