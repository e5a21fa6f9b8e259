package ledger

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: create a test ledger store with a controllable clock
func createTestStore(t *testing.T) (*Store, *time.Time) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	store, err := NewStore(dbPath)
	require.NoError(t, err, "should create ledger store")
	t.Cleanup(func() { store.Close() })

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	return store, &clock
}

// TestNewStore_ExistingDatabase verifies runs persist across connections
func TestNewStore_ExistingDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	store1, err := NewStore(dbPath)
	require.NoError(t, err)
	_, err = store1.StartRun("cnn", "discover")
	require.NoError(t, err)
	store1.Close()

	store2, err := NewStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	runs, err := store2.ListRuns(RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 1, "data should persist across connections")
}

// TestStartAndFinishRun verifies a run's lifecycle is recorded
func TestStartAndFinishRun(t *testing.T) {
	store, clock := createTestStore(t)

	run, err := store.StartRun("cnn", "fetch")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, run.RunID)
	assert.False(t, run.Finished())

	*clock = clock.Add(90 * time.Second)
	counts := Counts{Processed: 10, Succeeded: 7, Empty: 2, Failed: 1}
	require.NoError(t, store.FinishRun(run.RunID, counts, errors.New("context canceled")))

	got, err := store.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "cnn", got.Site)
	assert.Equal(t, "fetch", got.Stage)
	assert.Equal(t, counts, got.Counts)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), got.StartedAt)
	require.True(t, got.Finished())
	assert.Equal(t, 90*time.Second, got.FinishedAt.Sub(got.StartedAt))
	require.NotNil(t, got.LastError)
	assert.Equal(t, "context canceled", *got.LastError)
}

func TestFinishRun_NoError(t *testing.T) {
	store, _ := createTestStore(t)

	run, err := store.StartRun("cnn", "extract")
	require.NoError(t, err)
	require.NoError(t, store.FinishRun(run.RunID, Counts{Processed: 1, Succeeded: 1}, nil))

	got, err := store.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Nil(t, got.LastError)
}

func TestFinishRun_Unknown(t *testing.T) {
	store, _ := createTestStore(t)
	err := store.FinishRun(uuid.New(), Counts{}, nil)
	assert.True(t, errors.Is(err, ErrRunNotFound))

	_, err = store.GetRun(uuid.New())
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

// TestListRuns verifies ordering, filters and limit
func TestListRuns(t *testing.T) {
	store, clock := createTestStore(t)

	for i, entry := range []struct{ site, stage string }{
		{"cnn", "discover"},
		{"cnn", "extract"},
		{"foxnews", "discover"},
		{"cnn", "fetch"},
	} {
		*clock = clock.Add(time.Duration(i+1) * time.Minute)
		_, err := store.StartRun(entry.site, entry.stage)
		require.NoError(t, err)
	}

	runs, err := store.ListRuns(RunFilter{Site: "cnn"})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "fetch", runs[0].Stage, "newest first")
	assert.Equal(t, "extract", runs[1].Stage)
	assert.Equal(t, "discover", runs[2].Stage)

	runs, err = store.ListRuns(RunFilter{Stage: "discover"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "foxnews", runs[0].Site)

	runs, err = store.ListRuns(RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

// TestListRuns_SameInstant verifies insertion order breaks timestamp ties
func TestListRuns_SameInstant(t *testing.T) {
	store, _ := createTestStore(t)

	first, err := store.StartRun("cnn", "discover")
	require.NoError(t, err)
	second, err := store.StartRun("cnn", "extract")
	require.NoError(t, err)

	runs, err := store.ListRuns(RunFilter{Site: "cnn"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID, runs[0].RunID)
	assert.Equal(t, first.RunID, runs[1].RunID)
}
