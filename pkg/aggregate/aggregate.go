// Package aggregate groups ledger rows by an independent variable and
// computes per-group means of a dependent variable.
package aggregate

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ethpandaops/minibench/pkg/ledger"
)

// KeyField is an independent variable rows can be grouped by.
type KeyField string

const (
	KeyCapacity   KeyField = ledger.ColCapacity
	KeyDifficulty KeyField = ledger.ColDifficulty
	KeyNodeCount  KeyField = ledger.ColNodeCount
)

// KeyFields lists the supported grouping keys.
var KeyFields = []KeyField{KeyCapacity, KeyDifficulty, KeyNodeCount}

// ValueField is a numeric ledger column that can be averaged.
type ValueField string

const (
	ValueThroughput         ValueField = ledger.ColThroughputTxPerSec
	ValueAvgBlockTime       ValueField = ledger.ColAvgBlockTimeSeconds
	ValueTotalHTTPSeconds   ValueField = ledger.ColTotalHTTPSeconds
	ValueSucceededTxCount   ValueField = ledger.ColSucceededTxCount
	ValueRequestedTxCount   ValueField = ledger.ColRequestedTxCount
	ValueObservedBlockCount ValueField = ledger.ColObservedBlockCount
)

// ValueFields lists the supported dependent variables.
var ValueFields = []ValueField{
	ValueThroughput,
	ValueAvgBlockTime,
	ValueTotalHTTPSeconds,
	ValueSucceededTxCount,
	ValueRequestedTxCount,
	ValueObservedBlockCount,
}

// Short and legacy column names accepted on input.
var (
	keyAliases = map[string]KeyField{
		"nodes":   KeyNodeCount,
		"n_nodes": KeyNodeCount,
	}
	valueAliases = map[string]ValueField{
		"throughput":      ValueThroughput,
		"avg_block_time":  ValueAvgBlockTime,
		"total_http_time": ValueTotalHTTPSeconds,
		"success_tx":      ValueSucceededTxCount,
		"n_tx":            ValueRequestedTxCount,
		"num_blocks":      ValueObservedBlockCount,
	}
)

// ParseKeyField resolves a grouping key by column name or alias.
func ParseKeyField(s string) (KeyField, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	if k, ok := keyAliases[s]; ok {
		return k, nil
	}

	if k := KeyField(s); slices.Contains(KeyFields, k) {
		return k, nil
	}

	return "", fmt.Errorf("unsupported key field %q (use one of %s)", s, joinFields(KeyFields))
}

// ParseValueField resolves a dependent variable by column name or alias.
func ParseValueField(s string) (ValueField, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	if v, ok := valueAliases[s]; ok {
		return v, nil
	}

	if v := ValueField(s); slices.Contains(ValueFields, v) {
		return v, nil
	}

	return "", fmt.Errorf("unsupported value field %q (use one of %s)", s, joinFields(ValueFields))
}

// Series is one point of an aggregate series.
type Series struct {
	GroupKey    int     `json:"group_key" yaml:"group_key"`
	SampleCount int     `json:"sample_count" yaml:"sample_count"`
	MeanValue   float64 `json:"mean_value" yaml:"mean_value"`
}

// GroupBy groups rows by exact equality on key and averages value within
// each group. The result is ordered by ascending key. Values within a group
// are summed in sorted order so the result does not depend on row order.
func GroupBy(rows []ledger.ExperimentRun, key KeyField, value ValueField) ([]Series, error) {
	keyOf, err := keyGetter(key)
	if err != nil {
		return nil, err
	}

	valueOf, err := valueGetter(value)
	if err != nil {
		return nil, err
	}

	groups := make(map[int][]float64, 8)
	for i := range rows {
		k := keyOf(&rows[i])
		groups[k] = append(groups[k], valueOf(&rows[i]))
	}

	out := make([]Series, 0, len(groups))

	for _, k := range slices.Sorted(maps.Keys(groups)) {
		values := groups[k]
		slices.Sort(values)

		var sum float64
		for _, v := range values {
			sum += v
		}

		out = append(out, Series{
			GroupKey:    k,
			SampleCount: len(values),
			MeanValue:   sum / float64(len(values)),
		})
	}

	return out, nil
}

// FilterByExperiment returns the rows whose experiment name equals name.
// An empty name returns rows unchanged.
func FilterByExperiment(rows []ledger.ExperimentRun, name string) []ledger.ExperimentRun {
	if name == "" {
		return rows
	}

	out := make([]ledger.ExperimentRun, 0, len(rows))

	for _, r := range rows {
		if r.ExperimentName == name {
			out = append(out, r)
		}
	}

	return out
}

func keyGetter(key KeyField) (func(*ledger.ExperimentRun) int, error) {
	switch key {
	case KeyCapacity:
		return func(r *ledger.ExperimentRun) int { return r.Capacity }, nil
	case KeyDifficulty:
		return func(r *ledger.ExperimentRun) int { return r.Difficulty }, nil
	case KeyNodeCount:
		return func(r *ledger.ExperimentRun) int { return r.NodeCount }, nil
	default:
		return nil, fmt.Errorf("unsupported key field %q", key)
	}
}

func valueGetter(value ValueField) (func(*ledger.ExperimentRun) float64, error) {
	switch value {
	case ValueThroughput:
		return func(r *ledger.ExperimentRun) float64 { return r.ThroughputTxPerSec }, nil
	case ValueAvgBlockTime:
		return func(r *ledger.ExperimentRun) float64 { return r.AvgBlockTimeSeconds }, nil
	case ValueTotalHTTPSeconds:
		return func(r *ledger.ExperimentRun) float64 { return r.TotalHTTPSeconds }, nil
	case ValueSucceededTxCount:
		return func(r *ledger.ExperimentRun) float64 { return float64(r.SucceededTxCount) }, nil
	case ValueRequestedTxCount:
		return func(r *ledger.ExperimentRun) float64 { return float64(r.RequestedTxCount) }, nil
	case ValueObservedBlockCount:
		return func(r *ledger.ExperimentRun) float64 { return float64(r.ObservedBlockCount) }, nil
	default:
		return nil, fmt.Errorf("unsupported value field %q", value)
	}
}

func joinFields[T ~string](fields []T) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = string(f)
	}

	return strings.Join(parts, ", ")
}
