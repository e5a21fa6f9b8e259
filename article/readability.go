package article

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	readability "github.com/go-shiori/go-readability"
	"github.com/pevans/waybackfed/httpx"
)

// ReadabilityExtractor fetches a live page and extracts its article with
// go-readability, filling in metadata from the page's <meta> tags.
type ReadabilityExtractor struct {
	client    *http.Client
	userAgent string
	now       func() time.Time
}

// NewReadabilityExtractor creates an extractor that fetches pages with client.
func NewReadabilityExtractor(client *http.Client, userAgent string) *ReadabilityExtractor {
	return &ReadabilityExtractor{
		client:    client,
		userAgent: userAgent,
		now:       time.Now,
	}
}

// Extract implements Extractor. A page without any main text is Empty.
func (e *ReadabilityExtractor) Extract(ctx context.Context, rawURL string) Result {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return Failed(fmt.Errorf("failed to parse URL: %w", err))
	}

	page, err := httpx.Fetch(ctx, e.client, rawURL, e.userAgent)
	if err != nil {
		return Failed(err)
	}

	parsed, err := readability.FromReader(bytes.NewReader(page.Body), pageURL)
	if err != nil {
		return Failed(fmt.Errorf("failed to extract article: %w", err))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return Failed(fmt.Errorf("failed to parse HTML: %w", err))
	}

	maintext, err := contentText(parsed.Content)
	if err != nil {
		return Failed(err)
	}

	title := strings.TrimSpace(parsed.Title)
	if maintext == "" && title == "" {
		return Empty()
	}

	meta := readMeta(doc)
	byline := firstNonEmpty(parsed.Byline, meta["author"], meta["article:author"])

	a := &Article{
		Title:        title,
		TitlePage:    strings.TrimSpace(doc.Find("title").First().Text()),
		Authors:      ParseAuthors(byline),
		DatePublish:  parsePublished(meta),
		DateDownload: e.now().UTC().Format(DateTimeLayout),
		Description:  optional(firstNonEmpty(meta["og:description"], meta["description"], parsed.Excerpt)),
		Maintext:     maintext,
		Language:     optional(firstNonEmpty(attr(doc, "html", "lang"), meta["og:locale"], meta["language"])),
		ImageURL:     optional(firstNonEmpty(meta["og:image"], meta["twitter:image"])),
		SourceDomain: pageURL.Hostname(),
		URL:          rawURL,
		SiteName:     optional(meta["og:site_name"]),
	}

	return Success(a)
}

// readMeta collects <meta> values keyed by lower-cased name or property.
// The first occurrence of a key wins.
func readMeta(doc *goquery.Document) map[string]string {
	meta := map[string]string{}
	doc.Find("meta[content]").Each(func(_ int, s *goquery.Selection) {
		key := s.AttrOr("property", "")
		if key == "" {
			key = s.AttrOr("name", "")
		}
		if key == "" {
			key = s.AttrOr("itemprop", "")
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return
		}
		if _, ok := meta[key]; ok {
			return
		}
		meta[key] = strings.TrimSpace(s.AttrOr("content", ""))
	})
	return meta
}

var publishedKeys = []string{
	"article:published_time",
	"og:published_time",
	"datepublished",
	"pubdate",
	"publishdate",
	"date",
	"dc.date",
}

// parsePublished returns the publish time from the first parseable meta tag.
func parsePublished(meta map[string]string) *string {
	for _, key := range publishedKeys {
		value := meta[key]
		if value == "" {
			continue
		}
		t, err := dateparse.ParseAny(value)
		if err != nil {
			continue
		}
		s := t.Format(DateTimeLayout)
		return &s
	}
	return nil
}

const paragraphMark = "\u2029"

var (
	blockTags  = "p, div, br, li, h1, h2, h3, h4, h5, h6, tr, blockquote, pre"
	whitespace = regexp.MustCompile(`\s+`)
)

// contentText flattens readability's content HTML into one line of text per
// block element.
func contentText(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse article content: %w", err)
	}

	doc.Find(blockTags).Each(func(_ int, s *goquery.Selection) {
		s.BeforeHtml(paragraphMark)
		s.AfterHtml(paragraphMark)
	})

	var lines []string
	for block := range strings.SplitSeq(doc.Text(), paragraphMark) {
		if line := strings.TrimSpace(whitespace.ReplaceAllString(block, " ")); line != "" {
			lines = append(lines, line)
		}
	}

	return strings.Join(lines, "\n"), nil
}

// ParseAuthors splits a byline into author names. Names are separated by
// ", " or, failing that, " and "; a leading "By " is dropped.
func ParseAuthors(byline string) []string {
	byline = strings.TrimSpace(byline)
	if len(byline) > 3 && strings.EqualFold(byline[:3], "by ") {
		byline = strings.TrimSpace(byline[3:])
	}
	if byline == "" {
		return []string{}
	}

	sep := ""
	switch {
	case strings.Contains(byline, ", "):
		sep = ", "
	case strings.Contains(byline, " and "):
		sep = " and "
	default:
		return []string{byline}
	}

	authors := []string{}
	for part := range strings.SplitSeq(byline, sep) {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "and ") {
			part = strings.TrimSpace(part[4:])
		}
		if part != "" {
			authors = append(authors, part)
		}
	}
	return authors
}

func attr(doc *goquery.Document, selector, name string) string {
	return strings.TrimSpace(doc.Find(selector).First().AttrOr(name, ""))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
