package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethpandaops/minibench/pkg/api/indexer"
	"github.com/ethpandaops/minibench/pkg/api/indexstore"
	"github.com/ethpandaops/minibench/pkg/config"
	"github.com/ethpandaops/minibench/pkg/ledger"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	// Addr returns the bound listen address once started.
	Addr() string
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	runs       RunSource
	indexStore indexstore.Store
	indexer    indexer.Indexer
	httpServer *http.Server
	addr       string
	wg         sync.WaitGroup
	done       chan struct{}
	stopOnce   sync.Once
}

// NewServer creates a new API server over the configured ledger.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
) Server {
	return &server{
		log:  log.WithField("component", "api"),
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start prepares the run source and starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	// With indexing enabled runs are served from the SQL mirror, which the
	// indexer keeps in sync; otherwise the ledger is read per request.
	if s.cfg.Index.Enabled {
		if err := s.prepareIndexing(ctx); err != nil {
			return fmt.Errorf("preparing indexing: %w", err)
		}
	} else {
		s.runs = NewLedgerSource(ledger.New(s.log, s.cfg.Ledger.Path, nil))
	}

	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.API.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.API.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.API.Server.Listen, err)
	}

	s.addr = ln.Addr().String()

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.addr).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	// Start the background indexer after the API is listening.
	if s.indexer != nil {
		if err := s.indexer.Start(ctx); err != nil {
			return fmt.Errorf("starting indexer: %w", err)
		}
	}

	return nil
}

// Addr returns the address the server is listening on.
func (s *server) Addr() string {
	return s.addr
}

// Stop gracefully shuts down the HTTP server and closes the index store.
func (s *server) Stop() error {
	s.stopOnce.Do(func() { close(s.done) })

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.indexer != nil {
		if err := s.indexer.Stop(); err != nil {
			s.log.WithError(err).Warn("Indexer stop error")
		}
	}

	if s.indexStore != nil {
		if err := s.indexStore.Stop(); err != nil {
			return fmt.Errorf("stopping index store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}

// prepareIndexing starts the index store and creates the indexer without
// starting its background goroutine.
func (s *server) prepareIndexing(ctx context.Context) error {
	s.indexStore = indexstore.NewStore(s.log, &s.cfg.Index.Database)

	if err := s.indexStore.Start(ctx); err != nil {
		return fmt.Errorf("starting index store: %w", err)
	}

	s.indexer = indexer.NewIndexer(
		s.log,
		s.indexStore,
		s.cfg.LedgerPaths(),
		s.cfg.Index.Interval,
		s.cfg.Index.Concurrency,
	)

	s.runs = NewIndexSource(s.indexStore, s.cfg.Ledger.Path)

	s.log.Info("Indexing service enabled")

	return nil
}
