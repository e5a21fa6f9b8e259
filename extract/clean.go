package extract

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/pevans/waybackfed/table"
)

// CleanOptions selects which recovered links survive cleaning.
type CleanOptions struct {
	BaseDomain string   // required substring, e.g. "cnn.com"
	Exclude    []string // markers of non-article pages, e.g. "/video/"
}

// Clean filters a link table down to candidate article URLs: duplicates by
// URL are dropped (first kept), off-site URLs and excluded markers are
// removed, short URLs are removed, and the rest is stably sorted by length.
func Clean(rows []table.Link, opts CleanOptions) []table.Link {
	seen := make(map[string]bool, len(rows))
	cleaned := make([]table.Link, 0, len(rows))

	for _, row := range rows {
		if seen[row.URL] {
			continue
		}
		seen[row.URL] = true

		if !keep(row.URL, opts) {
			continue
		}
		cleaned = append(cleaned, row)
	}

	slices.SortStableFunc(cleaned, func(a, b table.Link) int {
		return utf8.RuneCountInString(a.URL) - utf8.RuneCountInString(b.URL)
	})

	return cleaned
}

func keep(url string, opts CleanOptions) bool {
	if !strings.Contains(url, opts.BaseDomain) {
		return false
	}
	for _, marker := range opts.Exclude {
		if marker != "" && strings.Contains(url, marker) {
			return false
		}
	}
	return utf8.RuneCountInString(url) >= MinURLLength
}

// CarryStatus copies the status of rows already in previous onto the matching
// URLs of cleaned, so rebuilding the cleaned table keeps fetch progress.
func CarryStatus(cleaned, previous []table.Link) int {
	if len(previous) == 0 {
		return 0
	}

	statuses := make(map[string]table.Status, len(previous))
	for _, row := range previous {
		if _, ok := statuses[row.URL]; !ok {
			statuses[row.URL] = row.Status
		}
	}

	carried := 0
	for i := range cleaned {
		if status, ok := statuses[cleaned[i].URL]; ok && status != cleaned[i].Status {
			cleaned[i].Status = status
			carried++
		}
	}
	return carried
}
