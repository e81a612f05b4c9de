package telemetry

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "telemetry.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	require.NoError(t, InitTelemetrySchema(db))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestStore(t *testing.T) *SQLiteMetricsStore {
	t.Helper()
	store, err := NewSQLiteMetricsStore(setupTestDB(t))
	require.NoError(t, err)
	return store
}

func TestSQLiteMetricsStore_ModelCounts_Incremental(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveModelCounts("2026-10-01", map[string]int64{"people.person": 3, "news.newspage": 1}))
	require.NoError(t, store.SaveModelCounts("2026-10-01", map[string]int64{"people.person": 2}))

	counts, err := store.GetModelCounts("2026-10-01", "2026-10-01")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"people.person": 5, "news.newspage": 1}, counts)
}

func TestSQLiteMetricsStore_DateRange(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveModelCounts("2026-09-30", map[string]int64{"people.person": 1}))
	require.NoError(t, store.SaveModelCounts("2026-10-01", map[string]int64{"people.person": 2}))
	require.NoError(t, store.SaveModelCounts("2026-10-02", map[string]int64{"people.person": 4}))

	counts, err := store.GetModelCounts("2026-10-01", "2026-10-02")
	require.NoError(t, err)
	assert.Equal(t, int64(6), counts["people.person"])
}

func TestSQLiteMetricsStore_TopTerms(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertTermCounts(map[string]int64{"jane": 3, "doe": 1, "policy": 5}))
	require.NoError(t, store.UpsertTermCounts(map[string]int64{"doe": 5}))

	terms, err := store.GetTopTerms(2)
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, TermCount{Term: "doe", Count: 6}, terms[0])
	assert.Equal(t, TermCount{Term: "policy", Count: 5}, terms[1])
}

func TestSQLiteMetricsStore_EmptyMapsAreNoops(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.UpsertTermCounts(nil))
	assert.NoError(t, store.SaveModelCounts("2026-10-01", nil))
	assert.NoError(t, store.SaveLatencyCounts("2026-10-01", map[LatencyBucket]int64{}))
}

func TestSQLiteMetricsStore_ZeroResultQueries_KeepsNewest(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	for i := 0; i < 105; i++ {
		require.NoError(t, store.AddZeroResultQuery("q"+string(rune('a'+i%26)), now))
	}
	require.NoError(t, store.AddZeroResultQuery("latest", now))

	queries, err := store.GetZeroResultQueries(200)
	require.NoError(t, err)
	assert.Len(t, queries, 100)
	assert.Equal(t, "latest", queries[0])
}

func TestSQLiteMetricsStore_LatencyCounts(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveLatencyCounts("2026-10-01", map[LatencyBucket]int64{BucketP10: 4, BucketP500: 1}))
	require.NoError(t, store.SaveLatencyCounts("2026-10-01", map[LatencyBucket]int64{BucketP10: 1}))

	counts, err := store.GetLatencyCounts("2026-10-01", "2026-10-01")
	require.NoError(t, err)
	assert.Equal(t, map[LatencyBucket]int64{BucketP10: 5, BucketP500: 1}, counts)
}

func TestNewSQLiteMetricsStore_NilDB(t *testing.T) {
	_, err := NewSQLiteMetricsStore(nil)
	assert.Error(t, err)
}
