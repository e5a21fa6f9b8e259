package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pevans/waybackfed/article"
	"github.com/pevans/waybackfed/config"
	"github.com/pevans/waybackfed/extract"
	"github.com/pevans/waybackfed/httpx"
	"github.com/pevans/waybackfed/ledger"
	"github.com/pevans/waybackfed/logging"
	"github.com/pevans/waybackfed/newsfeed"
	"github.com/pevans/waybackfed/pipeline"
	"github.com/pevans/waybackfed/wayback"
	"go.uber.org/zap"
)

// app holds what every command shares: flags, configuration and the
// long-lived stores.
type app struct {
	configPath string
	dataDir    string
	logLevel   string
	noLedger   bool

	cfg    *config.FileConfig
	logger *zap.Logger
	ledger *ledger.Store
	mirror *newsfeed.MongoMirror
}

// load loads and validates configuration and builds the logger. Flags take
// precedence over the environment and the file.
func (a *app) load() error {
	cfg, err := config.LoadConfigFile(a.configPath)
	if err != nil {
		return err
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development, cfg.Log.File)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) close() {
	if a.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.mirror.Close(ctx); err != nil {
			a.logger.Warn("Failed to close mongo mirror", zap.Error(err))
		}
		cancel()
	}
	if a.ledger != nil {
		a.ledger.Close()
	}
	if a.logger != nil {
		a.logger.Sync()
	}
}

// sites returns the sites named in args, or every target when args is
// empty.
func (a *app) sites(args []string) ([]string, error) {
	if len(args) == 0 {
		return a.cfg.Targets, nil
	}
	for _, site := range args {
		if _, err := a.cfg.Site(site); err != nil {
			return nil, err
		}
	}
	return args, nil
}

// openLedger opens the run ledger, creating its directory if needed.
func (a *app) openLedger() (*ledger.Store, error) {
	if a.ledger != nil {
		return a.ledger, nil
	}

	path := a.cfg.LedgerPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	store, err := ledger.NewStore(path)
	if err != nil {
		return nil, err
	}
	a.ledger = store
	return store, nil
}

// openMirror connects the optional MongoDB mirror. It returns nil when no
// URI is configured.
func (a *app) openMirror(ctx context.Context) (*newsfeed.MongoMirror, error) {
	if a.cfg.Storage.Mongo.URI == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	mirror, err := newsfeed.NewMongoMirror(ctx, a.cfg.Storage.Mongo)
	if err != nil {
		return nil, err
	}
	a.mirror = mirror
	return mirror, nil
}

// pipeline wires the real stages together.
func (a *app) pipeline(ctx context.Context) *pipeline.Pipeline {
	cfg := a.cfg

	lookupClient := httpx.NewClient(cfg.Archive.Timeout, nil)
	snapshotClient := httpx.NewClient(cfg.Archive.Timeout, &cfg.Proxy)
	articleClient := httpx.NewClient(cfg.Article.Timeout, nil)

	var extractor article.Extractor = article.NewReadabilityExtractor(articleClient, cfg.Article.UserAgent)
	if cfg.Article.RespectRobots {
		extractor = &article.RobotsExtractor{
			Policy: article.NewRobotsPolicy(articleClient, cfg.Article.UserAgent),
			Next:   extractor,
		}
	}

	fetcher := article.NewFetcher(cfg, extractor, a.logger)
	mirror, err := a.openMirror(ctx)
	if err != nil {
		a.logger.Warn("Mongo mirror disabled", zap.Error(err))
	} else if mirror != nil {
		fetcher.WithMirror(mirror)
	}

	p := pipeline.New(a.logger).
		Register(pipeline.StageDiscover, pipeline.DiscoverStage{
			Discoverer: wayback.NewDiscoverer(cfg, wayback.NewClient(cfg.Archive.LookupURL, lookupClient, cfg.Article.UserAgent), a.logger),
		}).
		Register(pipeline.StageExtract, pipeline.ExtractStage{
			Extractor: extract.NewExtractor(cfg, snapshotClient, a.logger),
		}).
		Register(pipeline.StageFetch, pipeline.FetchStage{Fetcher: fetcher})

	if !a.noLedger {
		store, err := a.openLedger()
		if err != nil {
			a.logger.Warn("Run ledger disabled", zap.Error(err))
		} else {
			p.WithRecorder(store)
		}
	}

	return p
}
