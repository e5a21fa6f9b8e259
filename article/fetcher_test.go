package article

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pevans/waybackfed/config"
	"github.com/pevans/waybackfed/newsfeed"
	"github.com/pevans/waybackfed/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Test helper: a cnn site whose cleaned link table holds rows
func setupLinks(t *testing.T, rows []table.Link) *config.FileConfig {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Targets = []string{"cnn"}
	cfg.Sites = map[string]config.SiteConfig{
		"cnn": {
			BaseURL: "cnn.com",
			Seeds:   []config.SeedConfig{{Link: "https://www.cnn.com/us", StartYear: 2021, EndYear: 2021}},
		},
	}
	require.NoError(t, cfg.EnsureSiteDir("cnn"))
	require.NoError(t, table.SaveLinks(cfg.SitePath("cnn", config.CleanedLinksFile), rows))
	return cfg
}

func pendingLinks(n int) []table.Link {
	rows := make([]table.Link, n)
	for i := range rows {
		rows[i] = table.Link{
			ID:     "20210615123456",
			URL:    fmt.Sprintf("https://www.cnn.com/2021/06/15/story-%02d", i),
			Status: table.StatusPending,
		}
	}
	return rows
}

func successFor(url string) Result {
	return Success(&Article{Title: "Story", URL: url, Maintext: "Body of " + url, Authors: []string{}})
}

func loadCleaned(t *testing.T, cfg *config.FileConfig) []table.Link {
	rows, err := table.LoadLinks(cfg.SitePath("cnn", config.CleanedLinksFile))
	require.NoError(t, err)
	return rows
}

func feedLines(t *testing.T, cfg *config.FileConfig) []newsfeed.ArticleRecord {
	feed, err := newsfeed.NewNewsFeed(cfg.SitePath("cnn", config.CleanedArticlesFile))
	require.NoError(t, err)
	result, err := feed.List()
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	return result.Items
}

type fakeMirror struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (m *fakeMirror) Upsert(_ context.Context, site string, rec newsfeed.ArticleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls = append(m.urls, site+" "+rec.URL)
	return m.err
}

// TestFetch_Outcomes verifies each extraction outcome maps to its status
// and only successful articles with text reach the output stream
func TestFetch_Outcomes(t *testing.T) {
	cfg := setupLinks(t, []table.Link{
		{ID: "20210615123456", URL: "https://www.cnn.com/ok", Status: table.StatusPending},
		{ID: "20210616123456", URL: "https://www.cnn.com/empty", Status: table.StatusPending},
		{ID: "20210617123456", URL: "https://www.cnn.com/broken", Status: table.StatusPending},
		{ID: "20210618123456", URL: "https://www.cnn.com/already", Status: table.StatusDone},
		{ID: "20210619123456", URL: "https://www.cnn.com/notext", Status: table.StatusPending},
	})

	var seen []string
	extractor := ExtractorFunc(func(ctx context.Context, url string) Result {
		seen = append(seen, url)
		switch {
		case strings.HasSuffix(url, "/ok"):
			return successFor(url)
		case strings.HasSuffix(url, "/empty"):
			return Empty()
		case strings.HasSuffix(url, "/notext"):
			return Success(&Article{Title: "Gallery", URL: url})
		default:
			return Failed(errors.New("connection reset"))
		}
	})
	mirror := &fakeMirror{}

	result, err := NewFetcher(cfg, extractor, zap.NewNop()).WithMirror(mirror).Fetch(context.Background(), "cnn")
	require.NoError(t, err)

	assert.Equal(t, &FetchResult{Processed: 4, Done: 2, Empty: 1, Failed: 1, Written: 1}, result)
	assert.NotContains(t, seen, "https://www.cnn.com/already")

	rows := loadCleaned(t, cfg)
	assert.Equal(t, table.StatusDone, rows[0].Status)
	assert.Equal(t, table.StatusNone, rows[1].Status)
	assert.Equal(t, table.StatusFailed, rows[2].Status)
	assert.Equal(t, table.StatusDone, rows[3].Status)
	assert.Equal(t, table.StatusDone, rows[4].Status)

	items := feedLines(t, cfg)
	require.Len(t, items, 1)
	assert.Equal(t, "https://www.cnn.com/ok", items[0].URL)
	require.NotNil(t, items[0].WaybackTime)
	assert.Equal(t, "2021-06-15", items[0].WaybackTime.Format("2006-01-02"))
	assert.Equal(t, len("Body of https://www.cnn.com/ok"), items[0].TextLen)

	store, err := LoadRawStore(cfg.SitePath("cnn", config.ArticlesFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.cnn.com/ok", "https://www.cnn.com/notext"}, store.Keys())
	rec, _ := store.Get("https://www.cnn.com/notext")
	assert.Equal(t, "20210619123456", rec.WaybackID)

	assert.Equal(t, []string{"cnn https://www.cnn.com/ok"}, mirror.urls)
}

// TestFetch_MirrorFailureIsNotFatal verifies the row still completes
func TestFetch_MirrorFailureIsNotFatal(t *testing.T) {
	cfg := setupLinks(t, pendingLinks(1))
	extractor := ExtractorFunc(func(ctx context.Context, url string) Result { return successFor(url) })

	result, err := NewFetcher(cfg, extractor, zap.NewNop()).
		WithMirror(&fakeMirror{err: errors.New("mongo down")}).
		Fetch(context.Background(), "cnn")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Done)
	assert.Equal(t, table.StatusDone, loadCleaned(t, cfg)[0].Status)
}

// TestFetch_CheckpointsEveryTwentyRows verifies progress reaches disk
// during the run, not only at the end
func TestFetch_CheckpointsEveryTwentyRows(t *testing.T) {
	cfg := setupLinks(t, pendingLinks(25))

	doneOnDisk := map[int]int{}
	index := 0
	extractor := ExtractorFunc(func(ctx context.Context, url string) Result {
		rows := loadCleaned(t, cfg)
		done := 0
		for _, row := range rows {
			if row.Status == table.StatusDone {
				done++
			}
		}
		doneOnDisk[index] = done
		index++
		return successFor(url)
	})

	_, err := NewFetcher(cfg, extractor, zap.NewNop()).Fetch(context.Background(), "cnn")
	require.NoError(t, err)

	assert.Equal(t, 0, doneOnDisk[0])
	assert.Equal(t, 1, doneOnDisk[1], "row 0 is a checkpoint")
	assert.Equal(t, 1, doneOnDisk[20])
	assert.Equal(t, 21, doneOnDisk[21], "row 20 is a checkpoint")
	assert.Equal(t, 21, doneOnDisk[24])

	for _, row := range loadCleaned(t, cfg) {
		assert.Equal(t, table.StatusDone, row.Status)
	}
}

// TestFetch_ResumesAfterInterruption verifies an interrupted run persists
// its progress and a restart processes only the remaining rows
func TestFetch_ResumesAfterInterruption(t *testing.T) {
	cfg := setupLinks(t, pendingLinks(10))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	interrupting := ExtractorFunc(func(_ context.Context, url string) Result {
		calls++
		if calls == 5 {
			cancel()
		}
		return successFor(url)
	})

	result, err := NewFetcher(cfg, interrupting, zap.NewNop()).Fetch(ctx, "cnn")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, result.Done)

	rows := loadCleaned(t, cfg)
	for i, row := range rows {
		want := table.StatusPending
		if i < 5 {
			want = table.StatusDone
		}
		assert.Equal(t, want, row.Status, "row %d", i)
	}
	assert.Len(t, feedLines(t, cfg), 5)

	var resumed []string
	counting := ExtractorFunc(func(_ context.Context, url string) Result {
		resumed = append(resumed, url)
		return successFor(url)
	})

	result, err = NewFetcher(cfg, counting, zap.NewNop()).Fetch(context.Background(), "cnn")
	require.NoError(t, err)
	assert.Equal(t, 5, result.Processed)
	assert.Equal(t, pendingLinks(10)[5].URL, resumed[0])
	assert.Len(t, resumed, 5)

	assert.Len(t, feedLines(t, cfg), 10)
	store, err := LoadRawStore(cfg.SitePath("cnn", config.ArticlesFile))
	require.NoError(t, err)
	assert.Equal(t, 10, store.Len())
}

// TestFetch_RowTimeout verifies a slow extraction fails only its own row
func TestFetch_RowTimeout(t *testing.T) {
	cfg := setupLinks(t, pendingLinks(2))
	cfg.Article.Timeout = 20 * time.Millisecond

	extractor := ExtractorFunc(func(ctx context.Context, url string) Result {
		if strings.HasSuffix(url, "-00") {
			<-ctx.Done()
			return Failed(ctx.Err())
		}
		return successFor(url)
	})

	result, err := NewFetcher(cfg, extractor, zap.NewNop()).Fetch(context.Background(), "cnn")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Done)

	rows := loadCleaned(t, cfg)
	assert.Equal(t, table.StatusFailed, rows[0].Status)
	assert.Equal(t, table.StatusDone, rows[1].Status)
}

// TestFetch_KeepsExistingStore verifies earlier raw records are preserved
func TestFetch_KeepsExistingStore(t *testing.T) {
	cfg := setupLinks(t, pendingLinks(1))

	store, err := LoadRawStore(cfg.SitePath("cnn", config.ArticlesFile))
	require.NoError(t, err)
	store.Put("https://www.cnn.com/earlier", rawRecord("https://www.cnn.com/earlier", "20200101000000", "old"))
	require.NoError(t, store.Save())

	extractor := ExtractorFunc(func(ctx context.Context, url string) Result { return successFor(url) })
	_, err = NewFetcher(cfg, extractor, zap.NewNop()).Fetch(context.Background(), "cnn")
	require.NoError(t, err)

	loaded, err := LoadRawStore(cfg.SitePath("cnn", config.ArticlesFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.cnn.com/earlier", pendingLinks(1)[0].URL}, loaded.Keys())
}

func TestFetch_NoLinksTable(t *testing.T) {
	cfg := setupLinks(t, nil)
	require.NoError(t, os.Remove(cfg.SitePath("cnn", config.CleanedLinksFile)))

	result, err := NewFetcher(cfg, ExtractorFunc(func(context.Context, string) Result {
		t.Fatal("no rows to extract")
		return Empty()
	}), zap.NewNop()).Fetch(context.Background(), "cnn")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
}
