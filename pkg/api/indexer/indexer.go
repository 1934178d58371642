package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ethpandaops/minibench/pkg/api/indexstore"
	"github.com/ethpandaops/minibench/pkg/ledger"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// defaultConcurrency is the number of ledgers read in parallel when no
// explicit concurrency value is configured.
const defaultConcurrency = 4

// Indexer is a background service that periodically reads ledger files
// and mirrors their rows into the index store.
type Indexer interface {
	Start(ctx context.Context) error
	Stop() error
	// SyncOnce runs a single full pass and reports every ledger that failed.
	SyncOnce(ctx context.Context) error
}

// Compile-time interface check.
var _ Indexer = (*indexer)(nil)

type indexer struct {
	log         logrus.FieldLogger
	store       indexstore.Store
	paths       []string
	interval    time.Duration
	concurrency int
	done        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	dbMu        sync.Mutex // serializes DB writes to avoid SQLite contention
}

// NewIndexer creates a new background indexer for the given ledger paths.
func NewIndexer(
	log logrus.FieldLogger,
	store indexstore.Store,
	paths []string,
	interval time.Duration,
	concurrency int,
) Indexer {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &indexer{
		log:         log.WithField("component", "indexer"),
		store:       store,
		paths:       paths,
		interval:    interval,
		concurrency: concurrency,
		done:        make(chan struct{}),
	}
}

// Start launches a background goroutine that runs an immediate indexing
// pass and then ticks at the configured interval.
func (idx *indexer) Start(ctx context.Context) error {
	idx.log.WithFields(logrus.Fields{
		"interval":    idx.interval.String(),
		"concurrency": idx.concurrency,
		"ledgers":     len(idx.paths),
	}).Info("Starting indexer")

	idx.wg.Add(1)

	go func() {
		defer idx.wg.Done()

		idx.runPass(ctx)

		ticker := time.NewTicker(idx.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				idx.runPass(ctx)
			case <-idx.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop signals the indexer goroutine to stop and waits for it.
func (idx *indexer) Stop() error {
	idx.stopOnce.Do(func() { close(idx.done) })
	idx.wg.Wait()

	idx.log.Info("Indexer stopped")

	return nil
}

// SyncOnce mirrors every ledger once.
func (idx *indexer) SyncOnce(ctx context.Context) error {
	start := time.Now()

	var (
		mu   sync.Mutex
		errs []error
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)

	for _, path := range idx.paths {
		g.Go(func() error {
			if err := idx.indexLedger(gCtx, path); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				mu.Unlock()
			}

			// Per-ledger failures must not cancel the other ledgers.
			return nil
		})
	}

	_ = g.Wait()

	idx.log.WithFields(logrus.Fields{
		"ledgers":  len(idx.paths),
		"failed":   len(errs),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("Indexing pass completed")

	return errors.Join(errs...)
}

// runPass executes one pass and logs failures.
func (idx *indexer) runPass(ctx context.Context) {
	if err := idx.SyncOnce(ctx); err != nil {
		idx.log.WithError(err).Warn("Indexing pass failed for some ledgers")
	}
}

// indexLedger loads a whole ledger and replaces its mirror. A missing
// ledger is mirrored as empty; a malformed one leaves the previous mirror
// untouched.
func (idx *indexer) indexLedger(ctx context.Context, path string) error {
	runs, err := ledger.New(idx.log, path, nil).LoadAll()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}

		runs = nil
	}

	idx.dbMu.Lock()
	defer idx.dbMu.Unlock()

	if err := idx.store.ReplaceRuns(ctx, path, runs); err != nil {
		return err
	}

	idx.log.WithFields(logrus.Fields{
		"ledger": path,
		"runs":   len(runs),
	}).Debug("Indexed ledger")

	return nil
}
