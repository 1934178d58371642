package indexer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethpandaops/minibench/pkg/api/indexstore"
	"github.com/ethpandaops/minibench/pkg/config"
	"github.com/ethpandaops/minibench/pkg/ledger"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func setupStore(t *testing.T) indexstore.Store {
	t.Helper()

	s := indexstore.NewStore(testLogger(), &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	})
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func writeLedger(t *testing.T, path string, runs ...ledger.ExperimentRun) {
	t.Helper()

	l := ledger.New(testLogger(), path, nil)
	for i := range runs {
		require.NoError(t, l.Append(&runs[i]))
	}
}

func TestIndexer_SyncOnce(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.csv")
	missing := filepath.Join(dir, "missing.csv")
	broken := filepath.Join(dir, "broken.csv")

	writeLedger(t, good,
		ledger.ExperimentRun{ExperimentName: "a", NodeCount: 2, Capacity: 4, RequestedTxCount: 1, SucceededTxCount: 1},
		ledger.ExperimentRun{ExperimentName: "b", NodeCount: 3, Capacity: 8, RequestedTxCount: 1},
	)
	require.NoError(t, os.WriteFile(broken, []byte(strings.Join(ledger.Columns, ",")+"\nx,y\n"), 0o644))

	store := setupStore(t)
	idx := NewIndexer(testLogger(), store, []string{good, missing, broken}, time.Hour, 2)

	err := idx.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), broken)
	assert.NotContains(t, err.Error(), missing)

	runs, err := store.ListRuns(context.Background(), good)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "a", runs[0].ExperimentName)
	assert.Equal(t, "b", runs[1].ExperimentName)

	n, err := store.CountRuns(context.Background(), missing)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIndexer_PicksUpAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	writeLedger(t, path, ledger.ExperimentRun{ExperimentName: "first", RequestedTxCount: 1})

	store := setupStore(t)
	idx := NewIndexer(testLogger(), store, []string{path}, time.Hour, 0)

	require.NoError(t, idx.SyncOnce(context.Background()))

	writeLedger(t, path, ledger.ExperimentRun{ExperimentName: "second", RequestedTxCount: 1})
	require.NoError(t, idx.SyncOnce(context.Background()))

	names, err := store.ListExperimentNames(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, names)
}

func TestIndexer_StartStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	writeLedger(t, path, ledger.ExperimentRun{ExperimentName: "bg", RequestedTxCount: 1})

	store := setupStore(t)
	idx := NewIndexer(testLogger(), store, []string{path}, 10*time.Millisecond, 1)

	require.NoError(t, idx.Start(context.Background()))

	require.Eventually(t, func() bool {
		n, err := store.CountRuns(context.Background(), path)

		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, idx.Stop())
	require.NoError(t, idx.Stop())
}
