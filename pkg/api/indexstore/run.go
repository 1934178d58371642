package indexstore

import (
	"time"

	"github.com/ethpandaops/minibench/pkg/ledger"
)

// Run is one indexed ledger row.
type Run struct {
	ID         uint   `gorm:"primaryKey"`
	LedgerPath string `gorm:"not null;uniqueIndex:idx_runs_ledger_row"`
	// RowIndex is the 0-based position of the run within its ledger.
	RowIndex int `gorm:"not null;uniqueIndex:idx_runs_ledger_row"`

	ExperimentName      string `gorm:"index"`
	NodeCount           int    `gorm:"index"`
	Capacity            int    `gorm:"index"`
	Difficulty          int    `gorm:"index"`
	RequestedTxCount    int
	SucceededTxCount    int
	TotalHTTPSeconds    float64
	ThroughputTxPerSec  float64
	ObservedBlockCount  int
	AvgBlockTimeSeconds float64

	IndexedAt time.Time
}

// NewRun builds the index record for the row-th run of a ledger.
func NewRun(ledgerPath string, row int, r *ledger.ExperimentRun, indexedAt time.Time) *Run {
	return &Run{
		LedgerPath:          ledgerPath,
		RowIndex:            row,
		ExperimentName:      r.ExperimentName,
		NodeCount:           r.NodeCount,
		Capacity:            r.Capacity,
		Difficulty:          r.Difficulty,
		RequestedTxCount:    r.RequestedTxCount,
		SucceededTxCount:    r.SucceededTxCount,
		TotalHTTPSeconds:    r.TotalHTTPSeconds,
		ThroughputTxPerSec:  r.ThroughputTxPerSec,
		ObservedBlockCount:  r.ObservedBlockCount,
		AvgBlockTimeSeconds: r.AvgBlockTimeSeconds,
		IndexedAt:           indexedAt,
	}
}

// ExperimentRun converts the record back into a ledger row.
func (r *Run) ExperimentRun() ledger.ExperimentRun {
	return ledger.ExperimentRun{
		ExperimentName:      r.ExperimentName,
		NodeCount:           r.NodeCount,
		Capacity:            r.Capacity,
		Difficulty:          r.Difficulty,
		RequestedTxCount:    r.RequestedTxCount,
		SucceededTxCount:    r.SucceededTxCount,
		TotalHTTPSeconds:    r.TotalHTTPSeconds,
		ThroughputTxPerSec:  r.ThroughputTxPerSec,
		ObservedBlockCount:  r.ObservedBlockCount,
		AvgBlockTimeSeconds: r.AvgBlockTimeSeconds,
	}
}
