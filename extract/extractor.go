package extract

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pevans/waybackfed/config"
	"github.com/pevans/waybackfed/httpx"
	"github.com/pevans/waybackfed/table"
	"go.uber.org/zap"
)

// Extractor runs the link extraction stage for a site.
type Extractor struct {
	cfg    *config.FileConfig
	client *http.Client
	logger *zap.Logger
}

// Result summarizes an extraction run.
type Result struct {
	Processed int // pending snapshot rows visited
	Done      int
	Failed    int
	Links     int // links appended to the uncleaned table
	Cleaned   int // rows in the cleaned table afterwards
	Carried   int // cleaned rows that kept an earlier status
}

// NewExtractor creates an extractor. Snapshot pages are fetched with client,
// which is expected to carry the proxy configuration.
func NewExtractor(cfg *config.FileConfig, client *http.Client, logger *zap.Logger) *Extractor {
	return &Extractor{cfg: cfg, client: client, logger: logger}
}

// Extract fetches every pending snapshot of site, appends the recovered
// links to the uncleaned table and marks each snapshot done or failed. The
// snapshot table is saved after every row. The cleaned table is rebuilt at
// the end, including after cancellation.
func (e *Extractor) Extract(ctx context.Context, site string) (*Result, error) {
	siteCfg, err := e.cfg.Site(site)
	if err != nil {
		return nil, err
	}
	if err := e.cfg.EnsureSiteDir(site); err != nil {
		return nil, err
	}

	log := e.logger.With(zap.String("site", site))
	snapshotsPath := e.cfg.SitePath(site, config.SnapshotsFile)
	uncleanedPath := e.cfg.SitePath(site, config.UncleanedLinksFile)

	rows, err := table.LoadSnapshots(snapshotsPath)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var runErr error

	for i := range rows {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if rows[i].Status != table.StatusPending {
			continue
		}

		result.Processed++
		n, err := e.extractRow(ctx, rows[i], uncleanedPath)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				runErr = ctxErr
				break
			}
			log.Error("Failed to extract links",
				zap.String("timestamp", rows[i].Timestamp),
				zap.String("url", rows[i].URL),
				zap.Error(err),
			)
			rows[i].Status = table.StatusFailed
			result.Failed++
		} else {
			log.Info("Extracted links",
				zap.String("timestamp", rows[i].Timestamp),
				zap.Int("links", n),
			)
			rows[i].Status = table.StatusDone
			result.Done++
			result.Links += n
		}

		if err := table.SaveSnapshots(snapshotsPath, rows); err != nil {
			log.Error("Failed to save snapshot table", zap.Error(err))
		}
	}

	cleaned, carried, err := e.clean(site, siteCfg)
	if err != nil {
		log.Error("Failed to clean links", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	result.Cleaned = cleaned
	result.Carried = carried

	log.Info("Completed link extraction",
		zap.Int("processed", result.Processed),
		zap.Int("done", result.Done),
		zap.Int("failed", result.Failed),
		zap.Int("links", result.Links),
		zap.Int("cleaned", result.Cleaned),
	)

	return result, runErr
}

// extractRow fetches one snapshot page and appends its recovered links.
func (e *Extractor) extractRow(ctx context.Context, row table.Snapshot, uncleanedPath string) (int, error) {
	page, err := httpx.Fetch(ctx, e.client, row.URL, "")
	if err != nil {
		return 0, err
	}

	links, err := ParseLinks(page.Body, page.ContentType)
	if err != nil {
		return 0, err
	}

	recovered := RecoverLinks(links)
	out := make([]table.Link, 0, len(recovered))
	for _, link := range recovered {
		out = append(out, table.Link{ID: row.Timestamp, URL: link, Status: table.StatusPending})
	}

	if err := table.AppendLinks(uncleanedPath, out); err != nil {
		return 0, fmt.Errorf("failed to append links: %w", err)
	}

	return len(out), nil
}

// Clean rebuilds the cleaned link table of site from its uncleaned table.
func (e *Extractor) Clean(site string) (int, error) {
	siteCfg, err := e.cfg.Site(site)
	if err != nil {
		return 0, err
	}
	n, _, err := e.clean(site, siteCfg)
	return n, err
}

func (e *Extractor) clean(site string, siteCfg config.SiteConfig) (int, int, error) {
	uncleaned, err := table.LoadLinks(e.cfg.SitePath(site, config.UncleanedLinksFile))
	if err != nil {
		return 0, 0, err
	}

	cleanedPath := e.cfg.SitePath(site, config.CleanedLinksFile)
	previous, err := table.LoadLinks(cleanedPath)
	if err != nil {
		return 0, 0, err
	}

	cleaned := Clean(uncleaned, CleanOptions{
		BaseDomain: siteCfg.BaseURL,
		Exclude:    siteCfg.Exclude,
	})
	carried := CarryStatus(cleaned, previous)

	if err := table.SaveLinks(cleanedPath, cleaned); err != nil {
		return 0, 0, err
	}

	return len(cleaned), carried, nil
}
