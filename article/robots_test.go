package article

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func robotsServer(t *testing.T, body string, status int) (*httptest.Server, *atomic.Int32) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fetches.Add(1)
			w.WriteHeader(status)
			w.Write([]byte(body))
			return
		}
		w.Write([]byte("<html></html>"))
	}))
	t.Cleanup(server.Close)
	return server, &fetches
}

// TestRobotsPolicy_Allowed verifies rules are applied and cached per host
func TestRobotsPolicy_Allowed(t *testing.T) {
	server, fetches := robotsServer(t, "User-agent: *\nDisallow: /private/\n", http.StatusOK)
	policy := NewRobotsPolicy(server.Client(), "waybackfed")

	allowed, err := policy.Allowed(context.Background(), server.URL+"/news/story")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = policy.Allowed(context.Background(), server.URL+"/private/story")
	require.NoError(t, err)
	assert.False(t, allowed)

	assert.Equal(t, int32(1), fetches.Load())
}

func TestRobotsPolicy_MissingFileAllowsAll(t *testing.T) {
	server, _ := robotsServer(t, "", http.StatusNotFound)
	policy := NewRobotsPolicy(server.Client(), "waybackfed")

	allowed, err := policy.Allowed(context.Background(), server.URL+"/private/story")
	require.NoError(t, err)
	assert.True(t, allowed)
}

// TestRobotsExtractor verifies disallowed URLs are Empty without fetching
func TestRobotsExtractor(t *testing.T) {
	server, _ := robotsServer(t, "User-agent: *\nDisallow: /private/\n", http.StatusOK)

	var calls int
	next := ExtractorFunc(func(ctx context.Context, url string) Result {
		calls++
		return Success(&Article{URL: url, Maintext: "text"})
	})
	extractor := &RobotsExtractor{Policy: NewRobotsPolicy(server.Client(), "waybackfed"), Next: next}

	res := extractor.Extract(context.Background(), server.URL+"/private/story")
	assert.Equal(t, KindEmpty, res.Kind)
	assert.Equal(t, 0, calls)

	res = extractor.Extract(context.Background(), server.URL+"/news/story")
	assert.Equal(t, KindSuccess, res.Kind)
	assert.Equal(t, 1, calls)
}
