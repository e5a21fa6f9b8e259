package pipeline

import (
	"context"

	"github.com/pevans/waybackfed/article"
	"github.com/pevans/waybackfed/extract"
	"github.com/pevans/waybackfed/ledger"
	"github.com/pevans/waybackfed/wayback"
)

// DiscoverStage adapts a Discoverer to StageRunner. Skipped days count as
// empty.
type DiscoverStage struct {
	Discoverer *wayback.Discoverer
}

// Run implements StageRunner.
func (s DiscoverStage) Run(ctx context.Context, site string) (ledger.Counts, error) {
	result, err := s.Discoverer.Discover(ctx, site)
	if result == nil {
		return ledger.Counts{}, err
	}
	return ledger.Counts{
		Processed: result.Queried,
		Succeeded: result.Found,
		Empty:     result.Skipped,
	}, err
}

// ExtractStage adapts an Extractor to StageRunner.
type ExtractStage struct {
	Extractor *extract.Extractor
}

// Run implements StageRunner.
func (s ExtractStage) Run(ctx context.Context, site string) (ledger.Counts, error) {
	result, err := s.Extractor.Extract(ctx, site)
	if result == nil {
		return ledger.Counts{}, err
	}
	return ledger.Counts{
		Processed: result.Processed,
		Succeeded: result.Done,
		Failed:    result.Failed,
	}, err
}

// FetchStage adapts a Fetcher to StageRunner.
type FetchStage struct {
	Fetcher *article.Fetcher
}

// Run implements StageRunner.
func (s FetchStage) Run(ctx context.Context, site string) (ledger.Counts, error) {
	result, err := s.Fetcher.Fetch(ctx, site)
	if result == nil {
		return ledger.Counts{}, err
	}
	return ledger.Counts{
		Processed: result.Processed,
		Succeeded: result.Done,
		Empty:     result.Empty,
		Failed:    result.Failed,
	}, err
}
