package ledger

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func sampleRuns() []ExperimentRun {
	return []ExperimentRun{
		{
			ExperimentName:      "baseline",
			NodeCount:           2,
			Capacity:            4,
			Difficulty:          3,
			RequestedTxCount:    20,
			SucceededTxCount:    15,
			TotalHTTPSeconds:    3,
			ThroughputTxPerSec:  5,
			ObservedBlockCount:  5,
			AvgBlockTimeSeconds: 0.1 + 0.2,
		},
		{
			ExperimentName:      `quoted, "name"`,
			NodeCount:           3,
			Capacity:            8,
			Difficulty:          0,
			RequestedTxCount:    10,
			SucceededTxCount:    0,
			ObservedBlockCount:  0,
			AvgBlockTimeSeconds: 0,
		},
		{
			ExperimentName:      "multi\nline",
			NodeCount:           1,
			Capacity:            1,
			Difficulty:          5,
			RequestedTxCount:    7,
			SucceededTxCount:    7,
			TotalHTTPSeconds:    1.2345678901234567,
			ThroughputTxPerSec:  7 / 1.2345678901234567,
			ObservedBlockCount:  8,
			AvgBlockTimeSeconds: 1e-7,
		},
	}
}

func TestLedger_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	l := New(testLogger(), path, nil)

	want := sampleRuns()
	for i := range want {
		require.NoError(t, l.Append(&want[i]))
	}

	got, err := l.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLedger_HeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	l := New(testLogger(), path, nil)

	_, err := os.Stat(path)
	require.True(t, errors.Is(err, os.ErrNotExist))

	run := sampleRuns()[0]
	require.NoError(t, l.Append(&run))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(Columns, ","), lines[0])
	assert.Equal(t, "baseline,2,4,3,20,15,3,5,5,0.3", lines[1])

	require.NoError(t, l.Append(&run))

	data, err = os.ReadFile(path)
	require.NoError(t, err)

	lines = strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, 1, strings.Count(string(data), ColExperimentName))
	assert.Equal(t, lines[1], lines[2])
}

func TestLedger_AppendToEmptyFileWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	l := New(testLogger(), path, nil)
	run := sampleRuns()[0]
	require.NoError(t, l.Append(&run))

	got, err := l.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, []ExperimentRun{run}, got)
}

func TestLedger_AppendAfterUnterminatedLine(t *testing.T) {
	header := strings.Join(Columns, ",")
	runs := sampleRuns()

	tests := []struct {
		name     string
		existing string
		want     []ExperimentRun
	}{
		{
			name:     "header only",
			existing: header,
			want:     []ExperimentRun{runs[0]},
		},
		{
			name:     "header and row",
			existing: header + "\n" + "first,1,2,3,4,4,2,2,3,0.5",
			want: []ExperimentRun{
				{
					ExperimentName:      "first",
					NodeCount:           1,
					Capacity:            2,
					Difficulty:          3,
					RequestedTxCount:    4,
					SucceededTxCount:    4,
					TotalHTTPSeconds:    2,
					ThroughputTxPerSec:  2,
					ObservedBlockCount:  3,
					AvgBlockTimeSeconds: 0.5,
				},
				runs[0],
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "results.csv")
			require.NoError(t, os.WriteFile(path, []byte(tt.existing), 0o644))

			l := New(testLogger(), path, nil)
			run := runs[0]
			require.NoError(t, l.Append(&run))

			got, err := l.LoadAll()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLedger_AppendRejectsInvalidRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	l := New(testLogger(), path, nil)

	run := sampleRuns()[0]
	run.SucceededTxCount = run.RequestedTxCount + 1

	require.Error(t, l.Append(&run))

	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "no file may be created for a rejected row")
}

func TestLedger_LoadAllMissingFile(t *testing.T) {
	l := New(testLogger(), filepath.Join(t.TempDir(), "missing.csv"), nil)

	_, err := l.LoadAll()
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDecode(t *testing.T) {
	header := strings.Join(Columns, ",") + "\n"

	tests := []struct {
		name       string
		input      string
		wantRows   int
		wantRow    int
		wantColumn string
	}{
		{name: "empty file", input: "", wantRows: 0},
		{name: "header only", input: header, wantRows: 0},
		{
			name:     "legacy header",
			input:    "experiment_name,n_nodes,capacity,difficulty,n_tx,success_tx,total_http_time,throughput,num_blocks,avg_block_time\r\nold,2,4,3,20,15,3.0,5.0,5,0.25\r\n",
			wantRows: 1,
		},
		{
			name:     "byte order mark",
			input:    "\ufeff" + header + "a,1,1,1,1,1,1,1,1,1\n",
			wantRows: 1,
		},
		{
			name:    "unknown header",
			input:   "name,nodes\n",
			wantRow: 1,
		},
		{
			name:    "too few columns",
			input:   header + "a,1,1,1,1,1,1,1,1,1\nb,1,1\n",
			wantRow: 3,
		},
		{
			name:    "too many columns",
			input:   header + "a,1,1,1,1,1,1,1,1,1,1\n",
			wantRow: 2,
		},
		{
			name:       "non-numeric integer",
			input:      header + "a,two,1,1,1,1,1,1,1,1\n",
			wantRow:    2,
			wantColumn: ColNodeCount,
		},
		{
			name:       "fractional integer",
			input:      header + "a,1,1.5,1,1,1,1,1,1,1\n",
			wantRow:    2,
			wantColumn: ColCapacity,
		},
		{
			name:       "non-numeric float",
			input:      header + "a,1,1,1,1,1,1,fast,1,1\n",
			wantRow:    2,
			wantColumn: ColThroughputTxPerSec,
		},
		{
			name:       "non-finite float",
			input:      header + "a,1,1,1,1,1,NaN,1,1,1\n",
			wantRow:    2,
			wantColumn: ColTotalHTTPSeconds,
		},
		{
			name:    "broken quoting",
			input:   header + "\"a,1,1,1,1,1,1,1,1,1\n",
			wantRow: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(strings.NewReader(tt.input))

			if tt.wantRow == 0 {
				require.NoError(t, err)
				assert.Len(t, got, tt.wantRows)

				return
			}

			require.Error(t, err)
			assert.Nil(t, got)

			var serr *SchemaError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tt.wantRow, serr.Row)
			assert.Equal(t, tt.wantColumn, serr.Column)
			assert.True(t, IsSchemaError(err))
		})
	}
}

func TestLedger_LoadAllWrapsSchemaError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(Columns, ",")+"\nbad\n"), 0o644))

	_, err := New(testLogger(), path, nil).LoadAll()
	require.Error(t, err)
	assert.True(t, IsSchemaError(err))
	assert.Contains(t, err.Error(), "row 2")
}

func TestExperimentRun_Validate(t *testing.T) {
	base := sampleRuns()[0]

	tests := []struct {
		name    string
		mutate  func(r *ExperimentRun)
		wantErr bool
	}{
		{name: "valid", mutate: func(*ExperimentRun) {}},
		{name: "negative nodes", mutate: func(r *ExperimentRun) { r.NodeCount = -1 }, wantErr: true},
		{name: "negative capacity", mutate: func(r *ExperimentRun) { r.Capacity = -1 }, wantErr: true},
		{name: "succeeded exceeds requested", mutate: func(r *ExperimentRun) { r.SucceededTxCount = 21 }, wantErr: true},
		{name: "negative latency", mutate: func(r *ExperimentRun) { r.TotalHTTPSeconds = -1 }, wantErr: true},
		{name: "zero snapshot fields", mutate: func(r *ExperimentRun) {
			r.Capacity, r.Difficulty, r.ObservedBlockCount, r.AvgBlockTimeSeconds = 0, 0, 0, 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.mutate(&r)

			err := r.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
