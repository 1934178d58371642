package aggregate

import (
	"fmt"

	"github.com/ethpandaops/minibench/pkg/ledger"
)

// Preset is a named series the analysis tooling plots.
type Preset struct {
	Name   string     `json:"name" yaml:"name"`
	Title  string     `json:"title" yaml:"title"`
	XLabel string     `json:"x_label" yaml:"x_label"`
	YLabel string     `json:"y_label" yaml:"y_label"`
	Key    KeyField   `json:"key" yaml:"key"`
	Value  ValueField `json:"value" yaml:"value"`
}

// PresetSeries is a preset together with its computed points.
type PresetSeries struct {
	Preset `yaml:",inline"`
	Points []Series `json:"points" yaml:"points"`
}

var presets = []Preset{
	{
		Name:   "throughput-vs-capacity",
		Title:  "Throughput vs Block Capacity",
		XLabel: "Block capacity (transactions per block)",
		YLabel: "Throughput (tx/s)",
		Key:    KeyCapacity,
		Value:  ValueThroughput,
	},
	{
		Name:   "block-time-vs-difficulty",
		Title:  "Average Block Time vs Difficulty",
		XLabel: "Difficulty (leading zeros)",
		YLabel: "Average block time (s)",
		Key:    KeyDifficulty,
		Value:  ValueAvgBlockTime,
	},
	{
		Name:   "throughput-vs-nodes",
		Title:  "Throughput vs Number of Nodes",
		XLabel: "Number of nodes",
		YLabel: "Throughput (tx/s)",
		Key:    KeyNodeCount,
		Value:  ValueThroughput,
	},
}

// Presets returns the built-in series definitions.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)

	return out
}

// LookupPreset returns the preset with the given name.
func LookupPreset(name string) (Preset, error) {
	for _, p := range presets {
		if p.Name == name {
			return p, nil
		}
	}

	return Preset{}, fmt.Errorf("unknown preset %q", name)
}

// ComputePresets evaluates every preset over rows.
func ComputePresets(rows []ledger.ExperimentRun) ([]PresetSeries, error) {
	out := make([]PresetSeries, 0, len(presets))

	for _, p := range presets {
		points, err := GroupBy(rows, p.Key, p.Value)
		if err != nil {
			return nil, fmt.Errorf("computing %s: %w", p.Name, err)
		}

		out = append(out, PresetSeries{Preset: p, Points: points})
	}

	return out, nil
}
