package article

// DateTimeLayout is the format of date_publish and date_download.
const DateTimeLayout = "2006-01-02 15:04:05"

// Article is the payload extracted from a live article page.
type Article struct {
	Title        string   `json:"title"`
	TitlePage    string   `json:"title_page"`
	Authors      []string `json:"authors"`
	DatePublish  *string  `json:"date_publish"`
	DateDownload string   `json:"date_download"`
	Description  *string  `json:"description"`
	Maintext     string   `json:"maintext"`
	Language     *string  `json:"language"`
	ImageURL     *string  `json:"image_url"`
	SourceDomain string   `json:"source_domain"`
	URL          string   `json:"url"`
	SiteName     *string  `json:"site_name"`
}

// RawRecord is an Article tagged with the snapshot it was discovered in.
type RawRecord struct {
	Article
	WaybackID string `json:"wayback_id"`
}
