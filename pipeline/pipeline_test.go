package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pevans/waybackfed/article"
	"github.com/pevans/waybackfed/config"
	"github.com/pevans/waybackfed/extract"
	"github.com/pevans/waybackfed/httpx"
	"github.com/pevans/waybackfed/ledger"
	"github.com/pevans/waybackfed/newsfeed"
	"github.com/pevans/waybackfed/table"
	"github.com/pevans/waybackfed/wayback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRunner records the sites it ran for and returns scripted results.
type fakeRunner struct {
	name   string
	calls  *[]string
	counts ledger.Counts
	errFor map[string]error
	onRun  func()
}

func (f *fakeRunner) Run(_ context.Context, site string) (ledger.Counts, error) {
	*f.calls = append(*f.calls, site+":"+f.name)
	if f.onRun != nil {
		f.onRun()
	}
	return f.counts, f.errFor[site]
}

func newFakePipeline(calls *[]string, errFor map[string]error) *Pipeline {
	p := New(zap.NewNop())
	for _, stage := range AllStages {
		p.Register(stage, &fakeRunner{name: string(stage), calls: calls, errFor: errFor})
	}
	return p
}

func TestParseStages(t *testing.T) {
	stages, err := ParseStages(nil)
	require.NoError(t, err)
	assert.Equal(t, AllStages, stages)

	stages, err = ParseStages([]string{"fetch", "discover"})
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageDiscover, StageFetch}, stages, "always in execution order")

	_, err = ParseStages([]string{"crawl"})
	assert.True(t, errors.Is(err, ErrUnknownStage))
}

// TestRun_Order verifies stages run in order for each site in turn
func TestRun_Order(t *testing.T) {
	var calls []string
	err := newFakePipeline(&calls, nil).Run(context.Background(), []string{"cnn", "foxnews"}, AllStages)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"cnn:discover", "cnn:extract", "cnn:fetch",
		"foxnews:discover", "foxnews:extract", "foxnews:fetch",
	}, calls)
}

// TestRun_SiteFailure verifies a failing stage stops its site only
func TestRun_SiteFailure(t *testing.T) {
	var calls []string
	boom := errors.New("lookup service down")

	p := New(zap.NewNop()).
		Register(StageDiscover, &fakeRunner{name: "discover", calls: &calls, errFor: map[string]error{"cnn": boom}}).
		Register(StageExtract, &fakeRunner{name: "extract", calls: &calls})

	err := p.Run(context.Background(), []string{"cnn", "foxnews"}, []Stage{StageDiscover, StageExtract})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "cnn discover")

	assert.Equal(t, []string{"cnn:discover", "foxnews:discover", "foxnews:extract"}, calls)
}

func TestRun_MissingRunner(t *testing.T) {
	err := New(zap.NewNop()).Run(context.Background(), []string{"cnn"}, []Stage{StageFetch})
	assert.True(t, errors.Is(err, ErrUnknownStage))
}

// TestRun_Cancelled verifies no further sites start after cancellation
func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls []string
	p := New(zap.NewNop()).Register(StageDiscover, &fakeRunner{
		name:  "discover",
		calls: &calls,
		onRun: cancel,
	})

	err := p.Run(ctx, []string{"cnn", "foxnews"}, []Stage{StageDiscover})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, []string{"cnn:discover"}, calls)
}

// TestRun_RecordsLedger verifies every stage run lands in the ledger
func TestRun_RecordsLedger(t *testing.T) {
	store, err := ledger.NewStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer store.Close()

	var calls []string
	boom := errors.New("disk full")
	p := New(zap.NewNop()).WithRecorder(store).
		Register(StageDiscover, &fakeRunner{name: "discover", calls: &calls, counts: ledger.Counts{Processed: 5, Succeeded: 4, Empty: 1}}).
		Register(StageExtract, &fakeRunner{name: "extract", calls: &calls, errFor: map[string]error{"cnn": boom}})

	require.Error(t, p.Run(context.Background(), []string{"cnn"}, []Stage{StageDiscover, StageExtract}))

	runs, err := store.ListRuns(ledger.RunFilter{Site: "cnn"})
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "extract", runs[0].Stage)
	require.NotNil(t, runs[0].LastError)
	assert.Equal(t, "disk full", *runs[0].LastError)

	assert.Equal(t, "discover", runs[1].Stage)
	assert.Equal(t, ledger.Counts{Processed: 5, Succeeded: 4, Empty: 1}, runs[1].Counts)
	assert.Nil(t, runs[1].LastError)
	assert.True(t, runs[1].Finished())
}

// TestRun_EndToEnd drives all three real stages against fake archive,
// snapshot and article servers
func TestRun_EndToEnd(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/available":
			ts := r.URL.Query().Get("timestamp")
			if !strings.HasPrefix(ts, "20190101") {
				fmt.Fprint(w, `{"archived_snapshots": {}}`)
				return
			}
			fmt.Fprintf(w, `{"archived_snapshots": {"closest": {"timestamp": "20190101120000", "url": %q, "status": "200", "available": true}}}`,
				server.URL+"/snapshot/20190101120000")
		case r.URL.Path == "/snapshot/20190101120000":
			fmt.Fprintf(w, `<html><body>
				<a href="/web/20190101120000/%[1]s/2019/01/01/us/storm/index.html">storm</a>
				<a href="/web/20190101120000/%[1]s/video/clip-of-the-day">video</a>
				<a href="/web/20190101120000/https://www.foxnews.com/us/other">offsite</a>
				<a href="/web/20190101120000/%[1]s/2019/01/01/gallery">gallery</a>
			</body></html>`, server.URL)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Targets = []string{"local"}
	cfg.Sites = map[string]config.SiteConfig{
		"local": {
			BaseURL: "127.0.0.1",
			Seeds:   []config.SeedConfig{{Link: "https://www.cnn.com/us", StartYear: 2019, EndYear: 2019}},
			Exclude: []string{"/video/"},
		},
	}
	cfg.Archive.LookupURL = server.URL + "/available"
	cfg.Archive.Delay = 0

	client := httpx.NewClient(5*time.Second, nil)
	extractor := article.ExtractorFunc(func(_ context.Context, url string) article.Result {
		if strings.HasSuffix(url, "/gallery") {
			return article.Empty()
		}
		return article.Success(&article.Article{Title: "Storm", URL: url, Maintext: "Heavy rain.", Authors: []string{}})
	})

	p := New(zap.NewNop()).
		Register(StageDiscover, DiscoverStage{wayback.NewDiscoverer(cfg, wayback.NewClient(cfg.Archive.LookupURL, client, ""), zap.NewNop())}).
		Register(StageExtract, ExtractStage{extract.NewExtractor(cfg, client, zap.NewNop())}).
		Register(StageFetch, FetchStage{article.NewFetcher(cfg, extractor, zap.NewNop())})

	require.NoError(t, p.Run(context.Background(), []string{"local"}, AllStages))

	snapshots, err := table.LoadSnapshots(cfg.SitePath("local", config.SnapshotsFile))
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, table.StatusDone, snapshots[0].Status)

	cleaned, err := table.LoadLinks(cfg.SitePath("local", config.CleanedLinksFile))
	require.NoError(t, err)
	require.Len(t, cleaned, 2)
	assert.Equal(t, server.URL+"/2019/01/01/gallery", cleaned[0].URL)
	assert.Equal(t, table.StatusNone, cleaned[0].Status)
	assert.Equal(t, server.URL+"/2019/01/01/us/storm/index.html", cleaned[1].URL)
	assert.Equal(t, table.StatusDone, cleaned[1].Status)

	feed, err := newsfeed.NewNewsFeed(cfg.SitePath("local", config.CleanedArticlesFile))
	require.NoError(t, err)
	result, err := feed.List()
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "2019-01-01", result.Items[0].WaybackTime.Format("2006-01-02"))

	// A second run has nothing left to do
	require.NoError(t, p.Run(context.Background(), []string{"local"}, []Stage{StageExtract, StageFetch}))
	result, err = feed.List()
	require.NoError(t, err)
	assert.Len(t, result.Items, 1)
}
