// Package summary folds the attempts of one run and a node metrics snapshot
// into a single ledger row.
package summary

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/ethpandaops/minibench/pkg/driver"
	"github.com/ethpandaops/minibench/pkg/ledger"
	"github.com/ethpandaops/minibench/pkg/node"
	"github.com/sirupsen/logrus"
)

// ErrMetricsSnapshot marks a failed post-run metrics query. The run is still
// summarized with zeroed node-derived fields.
var ErrMetricsSnapshot = errors.New("metrics snapshot unavailable")

// Meta is the operator-supplied context of a run.
type Meta struct {
	ExperimentName   string
	NodeCount        int
	RequestedTxCount int
}

// MetricsSource returns the node's current metrics. node.Client satisfies it.
type MetricsSource interface {
	GetMetrics(ctx context.Context) (*node.Metrics, error)
}

// Result is a summarized run together with the sample statistics that were
// reported for it.
type Result struct {
	Run *ledger.ExperimentRun
	// Latency and MiningTime cover succeeded attempts only.
	Latency    *Stats
	MiningTime *Stats
	Attempts   int
	// Failure is the error of the attempt that ended the run early, if any.
	Failure error
	// SnapshotErr is set when the metrics query failed; it wraps
	// ErrMetricsSnapshot.
	SnapshotErr error
}

// Summarizer consumes a run's attempts and produces its ledger row.
type Summarizer struct {
	log     logrus.FieldLogger
	metrics MetricsSource
}

// NewSummarizer creates a new summarizer.
func NewSummarizer(log logrus.FieldLogger, metrics MetricsSource) *Summarizer {
	return &Summarizer{
		log:     log.WithField("component", "summary"),
		metrics: metrics,
	}
}

// Summarize drains attempts, then issues a single metrics query and folds
// both into the run's row. A failed metrics query is logged and degrades the
// row instead of failing it.
func (s *Summarizer) Summarize(
	ctx context.Context,
	attempts iter.Seq[driver.Attempt],
	meta Meta,
) *Result {
	var collected []driver.Attempt
	for a := range attempts {
		collected = append(collected, a)
	}

	res := &Result{Attempts: len(collected)}

	if n := len(collected); n > 0 && !collected[n-1].Succeeded {
		res.Failure = collected[n-1].Err
	}

	snapshot, err := s.metrics.GetMetrics(ctx)
	if err != nil {
		res.SnapshotErr = fmt.Errorf("%w: %w", ErrMetricsSnapshot, err)
		snapshot = nil

		s.log.WithError(err).Warn("Failed to fetch node metrics, recording run with zeroed node fields")
	}

	res.Run = Fold(collected, snapshot, meta)
	res.Latency, res.MiningTime = sampleStats(collected, meta.RequestedTxCount)

	s.report(res)

	return res
}

func (s *Summarizer) report(res *Result) {
	run := res.Run

	fields := logrus.Fields{
		"experiment":     run.ExperimentName,
		"succeeded":      run.SucceededTxCount,
		"requested":      run.RequestedTxCount,
		"total_http":     run.TotalHTTPSeconds,
		"throughput":     run.ThroughputTxPerSec,
		"num_blocks":     run.ObservedBlockCount,
		"avg_block_time": run.AvgBlockTimeSeconds,
		"capacity":       run.Capacity,
		"difficulty":     run.Difficulty,
	}

	log := s.log.WithFields(fields)

	if res.Latency.Count > 0 {
		log = log.WithFields(res.Latency.fields("latency")).
			WithFields(res.MiningTime.fields("mining"))
	}

	if res.Failure != nil {
		log.WithError(res.Failure).Info("Run ended early")

		return
	}

	log.Info("Run completed")
}

// Fold reduces attempts and a metrics snapshot into one row. A nil snapshot
// yields zero capacity, difficulty, block count and average block time.
// At most RequestedTxCount succeeded attempts are counted.
func Fold(attempts []driver.Attempt, snapshot *node.Metrics, meta Meta) *ledger.ExperimentRun {
	var (
		succeeded int
		latency   time.Duration
		mining    float64
	)

	for _, a := range attempts {
		if !a.Succeeded || succeeded >= meta.RequestedTxCount {
			continue
		}

		succeeded++
		latency += a.Latency
		mining += a.MiningTime
	}

	run := &ledger.ExperimentRun{
		ExperimentName:   meta.ExperimentName,
		NodeCount:        meta.NodeCount,
		RequestedTxCount: meta.RequestedTxCount,
		SucceededTxCount: succeeded,
		TotalHTTPSeconds: latency.Seconds(),
	}

	if run.TotalHTTPSeconds > 0 {
		run.ThroughputTxPerSec = float64(succeeded) / run.TotalHTTPSeconds
	}

	if snapshot == nil {
		return run
	}

	run.Capacity = snapshot.Capacity
	run.Difficulty = snapshot.Difficulty
	run.ObservedBlockCount = snapshot.NumBlocks
	// Genesis has no mining time, so it is left out of the denominator.
	run.AvgBlockTimeSeconds = mining / float64(max(1, snapshot.NumBlocks-1))

	return run
}

func sampleStats(attempts []driver.Attempt, limit int) (latency, mining *Stats) {
	lat := make([]float64, 0, len(attempts))
	mine := make([]float64, 0, len(attempts))

	for _, a := range attempts {
		if !a.Succeeded || len(lat) >= limit {
			continue
		}

		lat = append(lat, a.LatencySeconds())
		mine = append(mine, a.MiningTime)
	}

	return calculateStats(lat), calculateStats(mine)
}
