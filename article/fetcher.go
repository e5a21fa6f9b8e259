package article

import (
	"context"
	"errors"
	"fmt"

	"github.com/pevans/waybackfed/config"
	"github.com/pevans/waybackfed/newsfeed"
	"github.com/pevans/waybackfed/table"
	"go.uber.org/zap"
)

// CheckpointEvery is the row interval at which progress is persisted.
const CheckpointEvery = 20

// Mirror receives a copy of every normalized record written.
type Mirror interface {
	Upsert(ctx context.Context, site string, rec newsfeed.ArticleRecord) error
}

// Fetcher runs the article fetch stage for a site.
type Fetcher struct {
	cfg       *config.FileConfig
	extractor Extractor
	mirror    Mirror
	logger    *zap.Logger
}

// FetchResult summarizes a fetch run.
type FetchResult struct {
	Processed int // pending rows visited
	Done      int
	Empty     int
	Failed    int
	Written   int // normalized records appended
}

// NewFetcher creates a fetcher that extracts articles with extractor.
func NewFetcher(cfg *config.FileConfig, extractor Extractor, logger *zap.Logger) *Fetcher {
	return &Fetcher{cfg: cfg, extractor: extractor, logger: logger}
}

// WithMirror sets an optional mirror for normalized records.
func (f *Fetcher) WithMirror(m Mirror) *Fetcher {
	f.mirror = m
	return f
}

// Fetch extracts every pending URL of the site's cleaned link table. Each
// row ends done, none or failed. The link table and raw store are saved
// every CheckpointEvery rows, counted by position in the table, and once at
// the end.
func (f *Fetcher) Fetch(ctx context.Context, site string) (*FetchResult, error) {
	if _, err := f.cfg.Site(site); err != nil {
		return nil, err
	}
	if err := f.cfg.EnsureSiteDir(site); err != nil {
		return nil, err
	}

	log := f.logger.With(zap.String("site", site))
	linksPath := f.cfg.SitePath(site, config.CleanedLinksFile)

	links, err := table.LoadLinks(linksPath)
	if err != nil {
		return nil, err
	}
	store, err := LoadRawStore(f.cfg.SitePath(site, config.ArticlesFile))
	if err != nil {
		return nil, err
	}
	feed, err := newsfeed.NewNewsFeed(f.cfg.SitePath(site, config.CleanedArticlesFile))
	if err != nil {
		return nil, err
	}

	result := &FetchResult{}
	var runErr error

	for i := range links {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if links[i].Status != table.StatusPending {
			continue
		}

		res := f.extract(ctx, links[i].URL)
		if res.Kind == KindFailed && ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}

		result.Processed++
		links[i].Status = f.apply(ctx, log, site, links[i], res, store, feed, result)

		if i%CheckpointEvery == 0 {
			f.checkpoint(log, linksPath, links, store)
		}
	}

	f.checkpoint(log, linksPath, links, store)

	log.Info("Completed article fetch",
		zap.Int("processed", result.Processed),
		zap.Int("done", result.Done),
		zap.Int("empty", result.Empty),
		zap.Int("failed", result.Failed),
		zap.Int("written", result.Written),
	)

	return result, runErr
}

func (f *Fetcher) extract(ctx context.Context, url string) Result {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Article.Timeout)
	defer cancel()

	res := f.extractor.Extract(ctx, url)
	if res.Kind == KindSuccess && res.Article == nil {
		return Failed(errors.New("extractor returned no article"))
	}
	return res
}

// apply records one extraction outcome and returns the row's new status.
func (f *Fetcher) apply(
	ctx context.Context,
	log *zap.Logger,
	site string,
	link table.Link,
	res Result,
	store *RawStore,
	feed *newsfeed.NewsFeed,
	result *FetchResult,
) table.Status {
	switch res.Kind {
	case KindEmpty:
		log.Info("No article found", zap.String("url", link.URL))
		result.Empty++
		return table.StatusNone

	case KindFailed:
		log.Error("Failed to fetch article", zap.String("url", link.URL), zap.Error(res.Err))
		result.Failed++
		return table.StatusFailed
	}

	rec := RawRecord{Article: *res.Article, WaybackID: link.ID}
	store.Put(link.URL, rec)

	if normalized, ok := Normalize(rec); ok {
		if err := feed.Add(normalized); err != nil {
			log.Error("Failed to append article", zap.String("url", link.URL), zap.Error(err))
			result.Failed++
			return table.StatusFailed
		}
		result.Written++

		if f.mirror != nil {
			if err := f.mirror.Upsert(ctx, site, normalized); err != nil {
				log.Warn("Failed to mirror article", zap.String("url", link.URL), zap.Error(err))
			}
		}
	}

	log.Info("Fetched article",
		zap.String("url", link.URL),
		zap.String("id", link.ID),
		zap.Int("text_len", len([]rune(rec.Maintext))),
	)
	result.Done++
	return table.StatusDone
}

func (f *Fetcher) checkpoint(log *zap.Logger, linksPath string, links []table.Link, store *RawStore) {
	if err := table.SaveLinks(linksPath, links); err != nil {
		log.Error("Failed to save link table", zap.Error(err))
	}
	if err := store.Save(); err != nil {
		log.Error("Failed to save article store", zap.Error(fmt.Errorf("%s: %w", config.ArticlesFile, err)))
	}
}
