package ledger

import (
	"fmt"
	"math"
	"strconv"
)

// Column names of the ledger file, in their fixed order.
const (
	ColExperimentName      = "experiment_name"
	ColNodeCount           = "node_count"
	ColCapacity            = "capacity"
	ColDifficulty          = "difficulty"
	ColRequestedTxCount    = "requested_tx_count"
	ColSucceededTxCount    = "succeeded_tx_count"
	ColTotalHTTPSeconds    = "total_http_seconds"
	ColThroughputTxPerSec  = "throughput_tx_per_sec"
	ColObservedBlockCount  = "observed_block_count"
	ColAvgBlockTimeSeconds = "avg_block_time_seconds"
)

// Columns is the ledger header.
var Columns = []string{
	ColExperimentName,
	ColNodeCount,
	ColCapacity,
	ColDifficulty,
	ColRequestedTxCount,
	ColSucceededTxCount,
	ColTotalHTTPSeconds,
	ColThroughputTxPerSec,
	ColObservedBlockCount,
	ColAvgBlockTimeSeconds,
}

// legacyColumns is the header written by the earlier results.csv tooling.
// Same order and types, older names.
var legacyColumns = []string{
	"experiment_name",
	"n_nodes",
	"capacity",
	"difficulty",
	"n_tx",
	"success_tx",
	"total_http_time",
	"throughput",
	"num_blocks",
	"avg_block_time",
}

// ExperimentRun is one ledger row: the summary of a single benchmark run.
// Rows are immutable once appended.
type ExperimentRun struct {
	ExperimentName      string  `json:"experiment_name" yaml:"experiment_name"`
	NodeCount           int     `json:"node_count" yaml:"node_count"`
	Capacity            int     `json:"capacity" yaml:"capacity"`
	Difficulty          int     `json:"difficulty" yaml:"difficulty"`
	RequestedTxCount    int     `json:"requested_tx_count" yaml:"requested_tx_count"`
	SucceededTxCount    int     `json:"succeeded_tx_count" yaml:"succeeded_tx_count"`
	TotalHTTPSeconds    float64 `json:"total_http_seconds" yaml:"total_http_seconds"`
	ThroughputTxPerSec  float64 `json:"throughput_tx_per_sec" yaml:"throughput_tx_per_sec"`
	ObservedBlockCount  int     `json:"observed_block_count" yaml:"observed_block_count"`
	AvgBlockTimeSeconds float64 `json:"avg_block_time_seconds" yaml:"avg_block_time_seconds"`
}

// Validate checks the row invariants that hold for every appended run.
func (r *ExperimentRun) Validate() error {
	switch {
	case r.NodeCount < 0:
		return fmt.Errorf("node_count must not be negative, got %d", r.NodeCount)
	case r.Capacity < 0:
		return fmt.Errorf("capacity must not be negative, got %d", r.Capacity)
	case r.Difficulty < 0:
		return fmt.Errorf("difficulty must not be negative, got %d", r.Difficulty)
	case r.RequestedTxCount < 0:
		return fmt.Errorf("requested_tx_count must not be negative, got %d", r.RequestedTxCount)
	case r.SucceededTxCount < 0 || r.SucceededTxCount > r.RequestedTxCount:
		return fmt.Errorf(
			"succeeded_tx_count %d outside [0, %d]", r.SucceededTxCount, r.RequestedTxCount,
		)
	case r.ObservedBlockCount < 0:
		return fmt.Errorf("observed_block_count must not be negative, got %d", r.ObservedBlockCount)
	}

	floats := []struct {
		name  string
		value float64
	}{
		{ColTotalHTTPSeconds, r.TotalHTTPSeconds},
		{ColThroughputTxPerSec, r.ThroughputTxPerSec},
		{ColAvgBlockTimeSeconds, r.AvgBlockTimeSeconds},
	}

	for _, f := range floats {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
			return fmt.Errorf("%s must be a finite non-negative number, got %v", f.name, f.value)
		}
	}

	return nil
}

// record renders the row in column order. Floats use the shortest
// representation that parses back to the same value.
func (r *ExperimentRun) record() []string {
	return []string{
		r.ExperimentName,
		strconv.Itoa(r.NodeCount),
		strconv.Itoa(r.Capacity),
		strconv.Itoa(r.Difficulty),
		strconv.Itoa(r.RequestedTxCount),
		strconv.Itoa(r.SucceededTxCount),
		formatFloat(r.TotalHTTPSeconds),
		formatFloat(r.ThroughputTxPerSec),
		strconv.Itoa(r.ObservedBlockCount),
		formatFloat(r.AvgBlockTimeSeconds),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
