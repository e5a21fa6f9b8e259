package article

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pevans/waybackfed/newsfeed"
)

// ParseWaybackTime returns the capture day encoded in the first eight
// characters of a snapshot timestamp, or nil if they are not a valid date.
func ParseWaybackTime(waybackID string) *newsfeed.Date {
	if len(waybackID) < 8 {
		return nil
	}
	t, err := time.Parse("20060102", waybackID[:8])
	if err != nil {
		return nil
	}
	return &newsfeed.Date{Time: t}
}

// Normalize derives the output record for rec. Records without main text
// produce nothing.
func Normalize(rec RawRecord) (newsfeed.ArticleRecord, bool) {
	if strings.TrimSpace(rec.Maintext) == "" {
		return newsfeed.ArticleRecord{}, false
	}

	authors := rec.Authors
	if authors == nil {
		authors = []string{}
	}

	return newsfeed.ArticleRecord{
		Title:       rec.Title,
		Authors:     authors,
		URL:         rec.URL,
		DatePublish: rec.DatePublish,
		Description: rec.Description,
		Maintext:    rec.Maintext,
		WaybackTime: ParseWaybackTime(rec.WaybackID),
		TextLen:     utf8.RuneCountInString(rec.Maintext),
	}, true
}
