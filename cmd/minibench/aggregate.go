package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ethpandaops/minibench/pkg/aggregate"
	"github.com/ethpandaops/minibench/pkg/fsutil"
	"github.com/ethpandaops/minibench/pkg/ledger"
	"github.com/ethpandaops/minibench/pkg/report"
	"github.com/spf13/cobra"
)

var (
	aggLedgerPath string
	aggKey        string
	aggValue      string
	aggPreset     string
	aggExperiment string
	aggFormat     string
	aggOutput     string
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Group ledger rows and compute per-group means",
	Long: `Read the results ledger and print per-group mean values. Without --key
and --value every built-in preset series is printed.`,
	RunE: runAggregate,
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
	aggregateCmd.Flags().StringVar(&aggLedgerPath, "ledger", "",
		"Path of the results ledger (defaults to ledger.path)")
	aggregateCmd.Flags().StringVar(&aggKey, "key", "",
		"Grouping key: capacity, difficulty or node_count")
	aggregateCmd.Flags().StringVar(&aggValue, "value", "",
		"Value column to average, e.g. throughput_tx_per_sec")
	aggregateCmd.Flags().StringVar(&aggPreset, "preset", "",
		"Print a single preset series by name")
	aggregateCmd.Flags().StringVar(&aggExperiment, "experiment", "",
		"Only include runs with this experiment name")
	aggregateCmd.Flags().StringVar(&aggFormat, "format", string(report.FormatTable),
		"Output format: table, json, yaml or csv")
	aggregateCmd.Flags().StringVar(&aggOutput, "output", "",
		"Write output to this file instead of stdout")

	aggregateCmd.MarkFlagsRequiredTogether("key", "value")
	aggregateCmd.MarkFlagsMutuallyExclusive("key", "preset")
}

func runAggregate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	format, err := report.ParseFormat(aggFormat)
	if err != nil {
		return err
	}

	path := cfg.Ledger.Path
	if aggLedgerPath != "" {
		path = aggLedgerPath
	}

	rows, err := ledger.New(log, path, nil).LoadAll()
	if err != nil {
		return fmt.Errorf("loading ledger: %w", err)
	}

	rows = aggregate.FilterByExperiment(rows, aggExperiment)

	series, err := selectSeries(rows)
	if err != nil {
		return err
	}

	if aggOutput == "" {
		return report.Write(os.Stdout, format, series)
	}

	owner, err := fsutil.ParseOwner(cfg.Ledger.Owner)
	if err != nil {
		return fmt.Errorf("parsing ledger.owner: %w", err)
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, format, series); err != nil {
		return err
	}

	if err := fsutil.WriteFile(aggOutput, buf.Bytes(), 0o644, owner); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	log.WithField("path", aggOutput).Info("Aggregate written")

	return nil
}

func selectSeries(rows []ledger.ExperimentRun) ([]aggregate.PresetSeries, error) {
	switch {
	case aggKey != "":
		key, err := aggregate.ParseKeyField(aggKey)
		if err != nil {
			return nil, err
		}

		value, err := aggregate.ParseValueField(aggValue)
		if err != nil {
			return nil, err
		}

		points, err := aggregate.GroupBy(rows, key, value)
		if err != nil {
			return nil, err
		}

		return []aggregate.PresetSeries{{
			Preset: aggregate.Preset{Name: fmt.Sprintf("%s-by-%s", value, key), Key: key, Value: value},
			Points: points,
		}}, nil
	case aggPreset != "":
		preset, err := aggregate.LookupPreset(aggPreset)
		if err != nil {
			return nil, err
		}

		points, err := aggregate.GroupBy(rows, preset.Key, preset.Value)
		if err != nil {
			return nil, err
		}

		return []aggregate.PresetSeries{{Preset: preset, Points: points}}, nil
	default:
		return aggregate.ComputePresets(rows)
	}
}
