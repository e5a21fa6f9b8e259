package newsfeed

import (
	"bytes"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// DateLayout is the wire format of Date.
const DateLayout = "2006-01-02"

// Date is a calendar day serialized as "YYYY-MM-DD".
type Date struct {
	time.Time
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to parse date: %w", err)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("failed to parse date: %w", err)
	}
	d.Time = t
	return nil
}

// ArticleRecord is one normalized article: a line of the cleaned output
// stream and, when mirroring is enabled, a document in MongoDB.
type ArticleRecord struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	URL         string   `json:"url"`
	DatePublish *string  `json:"date_publish"`
	Description *string  `json:"description"`
	Maintext    string   `json:"maintext"`
	WaybackTime *Date    `json:"wayback_time"`
	TextLen     int      `json:"text_len"`
}
