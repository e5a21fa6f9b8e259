package wayback

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/pevans/waybackfed/config"
	"github.com/pevans/waybackfed/table"
	"go.uber.org/zap"
)

// Discoverer runs the snapshot discovery stage: one lookup per seed per
// calendar day, collected into the site's snapshot table.
type Discoverer struct {
	cfg    *config.FileConfig
	client *Client
	logger *zap.Logger
	rnd    *rand.Rand
}

// DiscoverResult summarizes a discovery run.
type DiscoverResult struct {
	Queried    int // lookups issued
	Found      int // snapshots accepted
	Skipped    int // days with no usable snapshot
	Duplicates int // rows removed by timestamp dedupe
	Total      int // rows in the table afterwards
}

// NewDiscoverer creates a discoverer.
func NewDiscoverer(cfg *config.FileConfig, client *Client, logger *zap.Logger) *Discoverer {
	return &Discoverer{
		cfg:    cfg,
		client: client,
		logger: logger,
		rnd:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
}

// Discover looks up every day of every seed of site and merges the accepted
// snapshots into the snapshot table as pending rows. Existing rows keep
// their status; duplicates by timestamp keep the first occurrence.
func (d *Discoverer) Discover(ctx context.Context, site string) (*DiscoverResult, error) {
	siteCfg, err := d.cfg.Site(site)
	if err != nil {
		return nil, err
	}
	if err := d.cfg.EnsureSiteDir(site); err != nil {
		return nil, err
	}

	path := d.cfg.SitePath(site, config.SnapshotsFile)
	rows, err := table.LoadSnapshots(path)
	if err != nil {
		return nil, err
	}

	log := d.logger.With(zap.String("site", site))
	result := &DiscoverResult{}

	var runErr error
seeds:
	for _, seed := range siteCfg.Seeds {
		for _, target := range seed.Targets() {
			log.Info("Fetching snapshots",
				zap.String("seed", target),
				zap.Int("start_year", seed.StartYear),
				zap.Int("end_year", seed.EndYear),
			)

			found, err := d.discoverSeed(ctx, log, target, seed.StartYear, seed.EndYear, result)
			rows = append(rows, found...)
			if err != nil {
				runErr = err
				break seeds
			}
		}
	}

	before := len(rows)
	rows = table.DedupeSnapshots(rows)
	result.Duplicates = before - len(rows)
	result.Total = len(rows)

	if err := table.SaveSnapshots(path, rows); err != nil {
		log.Error("Failed to save snapshot table", zap.String("path", path), zap.Error(err))
		return result, errors.Join(runErr, err)
	}

	log.Info("Completed fetching snapshots",
		zap.Int("queried", result.Queried),
		zap.Int("found", result.Found),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("total", result.Total),
	)

	return result, runErr
}

// discoverSeed walks every day in [startYear, endYear] for one target URL.
// It returns the rows found so far along with ctx.Err() on cancellation.
func (d *Discoverer) discoverSeed(
	ctx context.Context,
	log *zap.Logger,
	target string,
	startYear, endYear int,
	result *DiscoverResult,
) ([]table.Snapshot, error) {
	var rows []table.Snapshot

	first := true
	for day := time.Date(startYear, 1, 1, 0, 0, 0, 0, time.UTC); day.Year() <= endYear; day = day.AddDate(0, 0, 1) {
		if !first {
			if err := sleep(ctx, d.cfg.Archive.Delay); err != nil {
				return rows, err
			}
		}
		first = false

		if err := ctx.Err(); err != nil {
			return rows, err
		}

		snapshot, err := d.lookupDay(ctx, target, day)
		result.Queried++
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return rows, ctxErr
			}
			result.Skipped++
			d.logSkip(log, target, day, err)
			continue
		}

		if original, ok := OriginalURL(snapshot.URL); ok && original != target {
			log.Debug("Snapshot points to a different URL",
				zap.String("seed", target),
				zap.String("original", original),
			)
		}

		log.Info("Found snapshot",
			zap.String("date", day.Format(time.DateOnly)),
			zap.String("timestamp", snapshot.Timestamp),
			zap.String("url", snapshot.URL),
		)
		result.Found++
		rows = append(rows, table.Snapshot{
			Timestamp: snapshot.Timestamp,
			URL:       snapshot.URL,
			Status:    table.StatusPending,
		})
	}

	return rows, nil
}

func (d *Discoverer) lookupDay(ctx context.Context, target string, day time.Time) (*Snapshot, error) {
	snapshot, err := d.client.Lookup(ctx, target, DayTimestamp(day, d.rnd))
	if err != nil {
		return nil, err
	}
	if !MatchesYear(snapshot.Timestamp, day.Year()) {
		return nil, ErrWrongYear
	}
	return snapshot, nil
}

func (d *Discoverer) logSkip(log *zap.Logger, target string, day time.Time, err error) {
	fields := []zap.Field{
		zap.String("seed", target),
		zap.String("date", day.Format(time.DateOnly)),
	}

	switch {
	case errors.Is(err, ErrNoSnapshot):
		log.Warn("No snapshot found", fields...)
	case errors.Is(err, ErrWrongYear):
		log.Warn("Snapshot from wrong year", fields...)
	default:
		log.Error("Failed to fetch archive", append(fields, zap.Error(err))...)
	}
}

// sleep waits for delay or until ctx is done.
func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
