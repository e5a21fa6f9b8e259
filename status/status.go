// Package status reports per-site pipeline progress from the state files.
package status

import (
	"github.com/pevans/waybackfed/article"
	"github.com/pevans/waybackfed/config"
	"github.com/pevans/waybackfed/newsfeed"
	"github.com/pevans/waybackfed/table"
)

// SiteStatus summarizes the state files of one site.
type SiteStatus struct {
	Site            string       `json:"site"`
	Snapshots       table.Counts `json:"snapshots"`
	UncleanedLinks  int          `json:"uncleaned_links"`
	CleanedLinks    table.Counts `json:"cleaned_links"`
	RawArticles     int          `json:"raw_articles"`
	CleanedArticles int          `json:"cleaned_articles"`
}

// Collect reads every state file of site and counts rows per status.
// Missing files count as empty.
func Collect(cfg *config.FileConfig, site string) (*SiteStatus, error) {
	if _, err := cfg.Site(site); err != nil {
		return nil, err
	}

	snapshots, err := table.LoadSnapshots(cfg.SitePath(site, config.SnapshotsFile))
	if err != nil {
		return nil, err
	}
	uncleaned, err := table.LoadLinks(cfg.SitePath(site, config.UncleanedLinksFile))
	if err != nil {
		return nil, err
	}
	cleaned, err := table.LoadLinks(cfg.SitePath(site, config.CleanedLinksFile))
	if err != nil {
		return nil, err
	}
	store, err := article.LoadRawStore(cfg.SitePath(site, config.ArticlesFile))
	if err != nil {
		return nil, err
	}

	feed, err := newsfeed.NewNewsFeed(cfg.SitePath(site, config.CleanedArticlesFile))
	if err != nil {
		return nil, err
	}
	written, err := feed.Count()
	if err != nil {
		return nil, err
	}

	return &SiteStatus{
		Site:            site,
		Snapshots:       table.CountSnapshots(snapshots),
		UncleanedLinks:  len(uncleaned),
		CleanedLinks:    table.CountLinks(cleaned),
		RawArticles:     store.Len(),
		CleanedArticles: written,
	}, nil
}
