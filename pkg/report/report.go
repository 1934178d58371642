// Package report renders aggregate series as markdown tables, JSON, YAML or
// CSV.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ethpandaops/minibench/pkg/aggregate"
	"gopkg.in/yaml.v3"
)

// Format is an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatCSV   Format = "csv"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q (use table, json, yaml or csv)", s)
	}
}

// Write renders series to w in the given format.
func Write(w io.Writer, format Format, series []aggregate.PresetSeries) error {
	switch format {
	case FormatTable:
		return writeTable(w, series)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(series)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(series); err != nil {
			return err
		}

		return enc.Close()
	case FormatCSV:
		return writeCSV(w, series)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func writeTable(w io.Writer, series []aggregate.PresetSeries) error {
	var sb strings.Builder

	for i, s := range series {
		if i > 0 {
			sb.WriteString("\n")
		}

		title := s.Title
		if title == "" {
			title = fmt.Sprintf("%s by %s", s.Value, s.Key)
		}

		fmt.Fprintf(&sb, "## %s\n\n", title)

		if len(s.Points) == 0 {
			sb.WriteString("No runs recorded.\n")

			continue
		}

		fmt.Fprintf(&sb, "| %s | Runs | Mean %s |\n", s.Key, s.Value)
		sb.WriteString("|---|---|---|\n")

		for _, p := range s.Points {
			fmt.Fprintf(&sb, "| %d | %d | %s |\n", p.GroupKey, p.SampleCount, formatValue(p.MeanValue))
		}
	}

	_, err := io.WriteString(w, sb.String())

	return err
}

func writeCSV(w io.Writer, series []aggregate.PresetSeries) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"series", "key", "value", "group_key", "sample_count", "mean_value"}); err != nil {
		return err
	}

	for _, s := range series {
		for _, p := range s.Points {
			if err := cw.Write([]string{
				s.Name,
				string(s.Key),
				string(s.Value),
				strconv.Itoa(p.GroupKey),
				strconv.Itoa(p.SampleCount),
				strconv.FormatFloat(p.MeanValue, 'g', -1, 64),
			}); err != nil {
				return err
			}
		}
	}

	cw.Flush()

	return cw.Error()
}

// formatValue renders a mean with four decimals, trimming trailing zeros.
func formatValue(v float64) string {
	formatted := strconv.FormatFloat(v, 'f', 4, 64)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")

	return formatted
}
