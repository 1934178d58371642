// Package ledger persists experiment run summaries in an append-only CSV
// file with a fixed column schema.
package ledger

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/ethpandaops/minibench/pkg/fsutil"
	"github.com/sirupsen/logrus"
)

const filePerm = 0o644

// Ledger is a single-writer, append-only store of ExperimentRun rows.
type Ledger struct {
	log   logrus.FieldLogger
	path  string
	owner *fsutil.OwnerConfig
}

// New creates a ledger backed by the file at path. The file is created on
// the first Append.
func New(log logrus.FieldLogger, path string, owner *fsutil.OwnerConfig) *Ledger {
	return &Ledger{
		log:   log.WithField("component", "ledger"),
		path:  path,
		owner: owner,
	}
}

// Path returns the backing file path.
func (l *Ledger) Path() string {
	return l.path
}

// Append writes run as one row, writing the header first when the file is
// missing or empty. The row is written in a single write call; if that
// fails the file is truncated back to its previous size.
func (l *Ledger) Append(run *ExperimentRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}

	f, size, err := fsutil.OpenAppend(l.path, filePerm, l.owner)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}

	data, err := encode(run, size == 0)
	if err != nil {
		_ = f.Close()

		return fmt.Errorf("encoding row: %w", err)
	}

	// A hand-edited file may end mid-line; start the row on a fresh one.
	unterminated, err := endsUnterminated(l.path, size)
	if err != nil {
		_ = f.Close()

		return fmt.Errorf("reading ledger tail: %w", err)
	}

	if unterminated {
		data = append([]byte{'\n'}, data...)
	}

	if _, err := f.Write(data); err != nil {
		if terr := f.Truncate(size); terr != nil {
			l.log.WithError(terr).Error("Failed to roll back partial row")
		}

		_ = f.Close()

		return fmt.Errorf("writing row: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()

		return fmt.Errorf("syncing ledger: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing ledger: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"path":       l.path,
		"experiment": run.ExperimentName,
		"size":       units.HumanSize(float64(size + int64(len(data)))),
	}).Info("Appended run to ledger")

	return nil
}

// endsUnterminated reports whether a non-empty file at path does not end
// with a newline.
func endsUnterminated(path string, size int64) (bool, error) {
	if size == 0 {
		return false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	var last [1]byte
	if _, err := f.ReadAt(last[:], size-1); err != nil {
		return false, err
	}

	return last[0] != '\n', nil
}

// LoadAll reads every row in insertion order. A missing file yields an
// error wrapping os.ErrNotExist; an empty file yields no rows.
func (l *Ledger) LoadAll() ([]ExperimentRun, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	defer func() { _ = f.Close() }()

	runs, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", l.path, err)
	}

	return runs, nil
}

// Decode parses ledger CSV from r. Any malformed record fails the whole
// decode with a *SchemaError.
func Decode(r io.Reader) ([]ExperimentRun, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []ExperimentRun{}, nil
	}

	if err != nil {
		return nil, &SchemaError{Row: 1, Err: err}
	}

	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	if !slices.Equal(header, Columns) && !slices.Equal(header, legacyColumns) {
		return nil, &SchemaError{
			Row: 1,
			Err: fmt.Errorf("unexpected header %q", strings.Join(header, ",")),
		}
	}

	runs := make([]ExperimentRun, 0, 16)

	for row := 2; ; row++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return runs, nil
		}

		if err != nil {
			return nil, &SchemaError{Row: row, Err: err}
		}

		run, err := decodeRecord(row, record)
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}
}

func encode(run *ExperimentRun, withHeader bool) ([]byte, error) {
	var buf bytes.Buffer

	w := csv.NewWriter(&buf)

	if withHeader {
		if err := w.Write(Columns); err != nil {
			return nil, err
		}
	}

	if err := w.Write(run.record()); err != nil {
		return nil, err
	}

	w.Flush()

	if err := w.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeRecord(row int, record []string) (ExperimentRun, error) {
	if len(record) != len(Columns) {
		return ExperimentRun{}, &SchemaError{
			Row: row,
			Err: fmt.Errorf("expected %d columns, got %d", len(Columns), len(record)),
		}
	}

	d := recordDecoder{row: row, record: record}

	run := ExperimentRun{
		ExperimentName:      record[0],
		NodeCount:           d.intAt(1),
		Capacity:            d.intAt(2),
		Difficulty:          d.intAt(3),
		RequestedTxCount:    d.intAt(4),
		SucceededTxCount:    d.intAt(5),
		TotalHTTPSeconds:    d.floatAt(6),
		ThroughputTxPerSec:  d.floatAt(7),
		ObservedBlockCount:  d.intAt(8),
		AvgBlockTimeSeconds: d.floatAt(9),
	}

	if d.err != nil {
		return ExperimentRun{}, d.err
	}

	return run, nil
}

// recordDecoder keeps the first conversion error so a record can be decoded
// field by field.
type recordDecoder struct {
	row    int
	record []string
	err    error
}

func (d *recordDecoder) intAt(i int) int {
	if d.err != nil {
		return 0
	}

	v, err := strconv.Atoi(strings.TrimSpace(d.record[i]))
	if err != nil {
		d.err = &SchemaError{Row: d.row, Column: Columns[i], Value: d.record[i], Err: err}

		return 0
	}

	return v
}

func (d *recordDecoder) floatAt(i int) float64 {
	if d.err != nil {
		return 0
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(d.record[i]), 64)
	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		err = errors.New("value is not finite")
	}

	if err != nil {
		d.err = &SchemaError{Row: d.row, Column: Columns[i], Value: d.record[i], Err: err}

		return 0
	}

	return v
}
