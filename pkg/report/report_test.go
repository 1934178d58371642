package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ethpandaops/minibench/pkg/aggregate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testSeries() []aggregate.PresetSeries {
	p, _ := aggregate.LookupPreset("throughput-vs-capacity")

	return []aggregate.PresetSeries{
		{
			Preset: p,
			Points: []aggregate.Series{
				{GroupKey: 4, SampleCount: 2, MeanValue: 4.5},
				{GroupKey: 8, SampleCount: 1, MeanValue: 10},
			},
		},
		{
			Preset: aggregate.Preset{Name: "custom", Key: aggregate.KeyDifficulty, Value: aggregate.ValueAvgBlockTime},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"table", "JSON", "yaml", "csv"} {
		_, err := ParseFormat(s)
		assert.NoError(t, err, s)
	}

	_, err := ParseFormat("png")
	assert.Error(t, err)
}

func TestWrite_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatTable, testSeries()))

	want := "## Throughput vs Block Capacity\n\n" +
		"| capacity | Runs | Mean throughput_tx_per_sec |\n" +
		"|---|---|---|\n" +
		"| 4 | 2 | 4.5 |\n" +
		"| 8 | 1 | 10 |\n" +
		"\n" +
		"## avg_block_time_seconds by difficulty\n\n" +
		"No runs recorded.\n"

	assert.Equal(t, want, buf.String())
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, testSeries()[:1]))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "throughput-vs-capacity", got[0]["name"])
	assert.Equal(t, "capacity", got[0]["key"])
	assert.Len(t, got[0]["points"], 2)
}

func TestWrite_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatYAML, testSeries()[:1]))

	var got []struct {
		Name   string             `yaml:"name"`
		Points []aggregate.Series `yaml:"points"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "throughput-vs-capacity", got[0].Name)
	assert.Equal(t, testSeries()[0].Points, got[0].Points)
}

func TestWrite_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, testSeries()))

	want := "series,key,value,group_key,sample_count,mean_value\n" +
		"throughput-vs-capacity,capacity,throughput_tx_per_sec,4,2,4.5\n" +
		"throughput-vs-capacity,capacity,throughput_tx_per_sec,8,1,10\n"

	assert.Equal(t, want, buf.String())
}

func TestFormatValue(t *testing.T) {
	tests := map[float64]string{
		0:        "0",
		10:       "10",
		0.5:      "0.5",
		1.23457:  "1.2346",
		100.0001: "100.0001",
	}

	for in, want := range tests {
		assert.Equal(t, want, formatValue(in))
	}
}
