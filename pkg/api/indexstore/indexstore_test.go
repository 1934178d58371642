package indexstore_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/minibench/pkg/api/indexstore"
	"github.com/ethpandaops/minibench/pkg/config"
	"github.com/ethpandaops/minibench/pkg/ledger"
)

func setupTestStore(t *testing.T) indexstore.Store {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := indexstore.NewStore(log, cfg)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func testRuns() []ledger.ExperimentRun {
	return []ledger.ExperimentRun{
		{ExperimentName: "zeta", NodeCount: 2, Capacity: 4, Difficulty: 3, RequestedTxCount: 20, SucceededTxCount: 15, TotalHTTPSeconds: 3, ThroughputTxPerSec: 5, ObservedBlockCount: 5, AvgBlockTimeSeconds: 0.25},
		{ExperimentName: "alpha", NodeCount: 3, Capacity: 8, Difficulty: 4, RequestedTxCount: 10, SucceededTxCount: 10, TotalHTTPSeconds: 1.5, ThroughputTxPerSec: 10 / 1.5, ObservedBlockCount: 3, AvgBlockTimeSeconds: 1.125},
		{ExperimentName: "zeta", NodeCount: 1, Capacity: 4, Difficulty: 0, RequestedTxCount: 5},
	}
}

func TestStore_ReplaceAndListRuns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	want := testRuns()
	require.NoError(t, s.ReplaceRuns(ctx, "results.csv", want))

	runs, err := s.ListRuns(ctx, "results.csv")
	require.NoError(t, err)
	require.Len(t, runs, len(want))

	for i, r := range runs {
		assert.Equal(t, i, r.RowIndex)
		assert.Equal(t, want[i], r.ExperimentRun())
		assert.False(t, r.IndexedAt.IsZero())
	}
}

func TestStore_ReplaceRunsIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceRuns(ctx, "results.csv", testRuns()))
	require.NoError(t, s.ReplaceRuns(ctx, "results.csv", testRuns()))

	n, err := s.CountRuns(ctx, "results.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "rebuild must not duplicate rows")

	require.NoError(t, s.ReplaceRuns(ctx, "results.csv", testRuns()[:1]))

	n, err = s.CountRuns(ctx, "results.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.ReplaceRuns(ctx, "results.csv", nil))

	runs, err := s.ListRuns(ctx, "results.csv")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStore_LedgersAreIsolated(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceRuns(ctx, "a.csv", testRuns()))
	require.NoError(t, s.ReplaceRuns(ctx, "b.csv", testRuns()[:2]))
	require.NoError(t, s.ReplaceRuns(ctx, "a.csv", testRuns()[:1]))

	a, err := s.CountRuns(ctx, "a.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(1), a)

	b, err := s.CountRuns(ctx, "b.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(2), b)
}

func TestStore_ListExperimentNames(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceRuns(ctx, "results.csv", testRuns()))

	names, err := s.ListExperimentNames(ctx, "results.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}

func TestStore_UnsupportedDriver(t *testing.T) {
	s := indexstore.NewStore(logrus.New(), &config.DatabaseConfig{Driver: "mysql"})
	require.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}
