package aggregate

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/ethpandaops/minibench/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rows() []ledger.ExperimentRun {
	return []ledger.ExperimentRun{
		{ExperimentName: "a", NodeCount: 2, Capacity: 8, Difficulty: 3, ThroughputTxPerSec: 10, AvgBlockTimeSeconds: 0.4},
		{ExperimentName: "b", NodeCount: 3, Capacity: 4, Difficulty: 4, ThroughputTxPerSec: 3, AvgBlockTimeSeconds: 1.2},
		{ExperimentName: "a", NodeCount: 2, Capacity: 4, Difficulty: 3, ThroughputTxPerSec: 5, AvgBlockTimeSeconds: 0.6},
		{ExperimentName: "c", NodeCount: 1, Capacity: 16, Difficulty: 0, ThroughputTxPerSec: 0.1, AvgBlockTimeSeconds: 0},
		{ExperimentName: "c", NodeCount: 3, Capacity: 16, Difficulty: 0, ThroughputTxPerSec: 0.2, AvgBlockTimeSeconds: 0},
		{ExperimentName: "c", NodeCount: 3, Capacity: 16, Difficulty: 4, ThroughputTxPerSec: 0.3, AvgBlockTimeSeconds: 2},
	}
}

func TestGroupBy(t *testing.T) {
	tests := []struct {
		name  string
		key   KeyField
		value ValueField
		want  []Series
	}{
		{
			name:  "throughput by capacity",
			key:   KeyCapacity,
			value: ValueThroughput,
			want: []Series{
				{GroupKey: 4, SampleCount: 2, MeanValue: 4},
				{GroupKey: 8, SampleCount: 1, MeanValue: 10},
				{GroupKey: 16, SampleCount: 3, MeanValue: (0.1 + 0.2 + 0.3) / 3},
			},
		},
		{
			name:  "block time by difficulty",
			key:   KeyDifficulty,
			value: ValueAvgBlockTime,
			want: []Series{
				{GroupKey: 0, SampleCount: 2, MeanValue: 0},
				{GroupKey: 3, SampleCount: 2, MeanValue: 0.5},
				{GroupKey: 4, SampleCount: 2, MeanValue: 1.6},
			},
		},
		{
			name:  "throughput by node count",
			key:   KeyNodeCount,
			value: ValueThroughput,
			want: []Series{
				{GroupKey: 1, SampleCount: 1, MeanValue: 0.1},
				{GroupKey: 2, SampleCount: 2, MeanValue: 7.5},
				{GroupKey: 3, SampleCount: 3, MeanValue: (0.2 + 0.3 + 3) / 3},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GroupBy(rows(), tt.key, tt.value)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))

			for i := range tt.want {
				assert.Equal(t, tt.want[i].GroupKey, got[i].GroupKey)
				assert.Equal(t, tt.want[i].SampleCount, got[i].SampleCount)
				assert.InDelta(t, tt.want[i].MeanValue, got[i].MeanValue, 1e-12)
			}
		})
	}
}

func TestGroupBy_SharedCapacity(t *testing.T) {
	in := []ledger.ExperimentRun{
		{Capacity: 4, ThroughputTxPerSec: 2},
		{Capacity: 4, ThroughputTxPerSec: 6},
	}

	got, err := GroupBy(in, KeyCapacity, ValueThroughput)
	require.NoError(t, err)
	assert.Equal(t, []Series{{GroupKey: 4, SampleCount: 2, MeanValue: 4}}, got)
}

func TestGroupBy_OrderIndependent(t *testing.T) {
	base := rows()

	want, err := GroupBy(base, KeyCapacity, ValueThroughput)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(1, 2))

	for range 20 {
		shuffled := slices.Clone(base)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		got, err := GroupBy(shuffled, KeyCapacity, ValueThroughput)
		require.NoError(t, err)
		assert.Equal(t, want, got, "series must be bit-identical for any row order")
	}
}

func TestGroupBy_Empty(t *testing.T) {
	got, err := GroupBy(nil, KeyDifficulty, ValueAvgBlockTime)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGroupBy_InvalidFields(t *testing.T) {
	_, err := GroupBy(rows(), KeyField("experiment_name"), ValueThroughput)
	require.Error(t, err)

	_, err = GroupBy(rows(), KeyCapacity, ValueField("experiment_name"))
	require.Error(t, err)
}

func TestParseKeyField(t *testing.T) {
	tests := []struct {
		input   string
		want    KeyField
		wantErr bool
	}{
		{input: "capacity", want: KeyCapacity},
		{input: " Difficulty ", want: KeyDifficulty},
		{input: "node_count", want: KeyNodeCount},
		{input: "nodes", want: KeyNodeCount},
		{input: "n_nodes", want: KeyNodeCount},
		{input: "throughput", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKeyField(tt.input)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseValueField(t *testing.T) {
	tests := []struct {
		input   string
		want    ValueField
		wantErr bool
	}{
		{input: "throughput_tx_per_sec", want: ValueThroughput},
		{input: "throughput", want: ValueThroughput},
		{input: "avg_block_time", want: ValueAvgBlockTime},
		{input: "observed_block_count", want: ValueObservedBlockCount},
		{input: "success_tx", want: ValueSucceededTxCount},
		{input: "capacity", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseValueField(tt.input)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterByExperiment(t *testing.T) {
	assert.Len(t, FilterByExperiment(rows(), ""), 6)
	assert.Len(t, FilterByExperiment(rows(), "c"), 3)
	assert.Empty(t, FilterByExperiment(rows(), "missing"))
}

func TestPresets(t *testing.T) {
	all := Presets()
	require.Len(t, all, 3)

	p, err := LookupPreset("block-time-vs-difficulty")
	require.NoError(t, err)
	assert.Equal(t, KeyDifficulty, p.Key)
	assert.Equal(t, ValueAvgBlockTime, p.Value)

	_, err = LookupPreset("latency-vs-moon-phase")
	require.Error(t, err)

	computed, err := ComputePresets(rows())
	require.NoError(t, err)
	require.Len(t, computed, 3)
	assert.Equal(t, "throughput-vs-capacity", computed[0].Name)
	assert.Len(t, computed[0].Points, 3)
	assert.Len(t, computed[2].Points, 3)
}
