package api

import (
	"context"
	"errors"
	"os"

	"github.com/ethpandaops/minibench/pkg/api/indexstore"
	"github.com/ethpandaops/minibench/pkg/ledger"
)

// RunSource provides the ledger rows the API aggregates over.
type RunSource interface {
	Runs(ctx context.Context) ([]ledger.ExperimentRun, error)
}

// RunSourceFunc adapts a function to RunSource.
type RunSourceFunc func(ctx context.Context) ([]ledger.ExperimentRun, error)

// Runs calls f.
func (f RunSourceFunc) Runs(ctx context.Context) ([]ledger.ExperimentRun, error) {
	return f(ctx)
}

// NewLedgerSource reads the ledger file on every call. A ledger that does
// not exist yet has no runs.
func NewLedgerSource(l *ledger.Ledger) RunSource {
	return RunSourceFunc(func(context.Context) ([]ledger.ExperimentRun, error) {
		runs, err := l.LoadAll()
		if errors.Is(err, os.ErrNotExist) {
			return []ledger.ExperimentRun{}, nil
		}

		return runs, err
	})
}

// NewIndexSource reads the indexed mirror of the ledger at ledgerPath.
func NewIndexSource(store indexstore.Store, ledgerPath string) RunSource {
	return RunSourceFunc(func(ctx context.Context) ([]ledger.ExperimentRun, error) {
		indexed, err := store.ListRuns(ctx, ledgerPath)
		if err != nil {
			return nil, err
		}

		runs := make([]ledger.ExperimentRun, 0, len(indexed))
		for i := range indexed {
			runs = append(runs, indexed[i].ExperimentRun())
		}

		return runs, nil
	})
}
