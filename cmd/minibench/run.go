package main

import (
	"context"
	"fmt"

	"github.com/ethpandaops/minibench/pkg/api/indexer"
	"github.com/ethpandaops/minibench/pkg/api/indexstore"
	"github.com/ethpandaops/minibench/pkg/config"
	"github.com/ethpandaops/minibench/pkg/driver"
	"github.com/ethpandaops/minibench/pkg/fsutil"
	"github.com/ethpandaops/minibench/pkg/ledger"
	"github.com/ethpandaops/minibench/pkg/summary"
	"github.com/ethpandaops/minibench/pkg/sysinfo"
	"github.com/ethpandaops/minibench/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	runTargetURL      string
	runReceiver       int
	runAmount         int
	runCount          int
	runExperimentName string
	runNodes          int
	runLedgerPath     string
	runMaxRate        float64
	runUpload         bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one benchmark and append its summary to the ledger",
	Long: `Issue up to --count sequential transactions against the target node,
stopping at the first failure, then fetch the node's metrics once and append
one row to the results ledger.`,
	RunE: runBenchmark,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runTargetURL, "target-url", config.DefaultTargetURL,
		"Base URL of the node under test")
	runCmd.Flags().IntVar(&runReceiver, "receiver", config.DefaultReceiver,
		"Receiver node id for every transaction")
	runCmd.Flags().IntVar(&runAmount, "amount", config.DefaultAmount,
		"Amount transferred per transaction")
	runCmd.Flags().IntVar(&runCount, "count", config.DefaultCount,
		"Number of transactions to attempt")
	runCmd.Flags().StringVar(&runExperimentName, "experiment-name", config.DefaultExperimentName,
		"Label recorded with the run")
	runCmd.Flags().IntVar(&runNodes, "nodes", config.DefaultNodes,
		"Network size recorded with the run")
	runCmd.Flags().StringVar(&runLedgerPath, "ledger", config.DefaultLedgerPath,
		"Path of the results ledger")
	runCmd.Flags().Float64Var(&runMaxRate, "max-rate", 0,
		"Maximum transactions per second (0 disables pacing)")
	runCmd.Flags().BoolVar(&runUpload, "upload", false,
		"Upload the ledger to S3 after the run (requires upload.s3 config)")
}

// applyRunFlags overrides config values with explicitly set flags.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("target-url") {
		cfg.Driver.TargetURL = runTargetURL
	}

	if flags.Changed("receiver") {
		cfg.Driver.Receiver = runReceiver
	}

	if flags.Changed("amount") {
		cfg.Driver.Amount = runAmount
	}

	if flags.Changed("count") {
		cfg.Driver.Count = runCount
	}

	if flags.Changed("experiment-name") {
		cfg.Driver.ExperimentName = runExperimentName
	}

	if flags.Changed("nodes") {
		cfg.Driver.Nodes = runNodes
	}

	if flags.Changed("ledger") {
		cfg.Ledger.Path = runLedgerPath
	}

	if flags.Changed("max-rate") {
		cfg.Driver.MaxRate = runMaxRate
	}

	if flags.Changed("upload") {
		cfg.Upload.S3.Enabled = runUpload
	}
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	applyRunFlags(cmd, cfg)

	if err := cfg.ValidateDriver(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if err := cfg.ValidateUpload(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	owner, err := fsutil.ParseOwner(cfg.Ledger.Owner)
	if err != nil {
		return fmt.Errorf("parsing ledger.owner: %w", err)
	}

	ctx := cmd.Context()

	var uploader upload.Uploader
	if cfg.Upload.S3.Enabled {
		uploader = upload.NewS3Uploader(log, &cfg.Upload.S3)

		if err := uploader.Preflight(ctx); err != nil {
			return fmt.Errorf("upload preflight: %w", err)
		}
	}

	sysinfo.Log(ctx, log)

	client := newNodeClient(cfg)

	log.WithFields(logrus.Fields{
		"target":     cfg.Driver.TargetURL,
		"experiment": cfg.Driver.ExperimentName,
		"nodes":      cfg.Driver.Nodes,
	}).Info("Benchmark starting")

	drv := driver.New(log, client, driver.Options{
		Receiver: cfg.Driver.Receiver,
		Amount:   cfg.Driver.Amount,
		Count:    cfg.Driver.Count,
		MaxRate:  cfg.Driver.MaxRate,
	})

	res := summary.NewSummarizer(log, client).Summarize(ctx, drv.Run(ctx), summary.Meta{
		ExperimentName:   cfg.Driver.ExperimentName,
		NodeCount:        cfg.Driver.Nodes,
		RequestedTxCount: cfg.Driver.Count,
	})

	if err := ledger.New(log, cfg.Ledger.Path, owner).Append(res.Run); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	// The row is durable at this point; follow-up failures are reported
	// but do not fail the run.
	if uploader != nil {
		if _, err := uploader.UploadLedger(ctx, cfg.Ledger.Path); err != nil {
			log.WithError(err).Error("Failed to upload ledger")
		}
	}

	if cfg.Index.Enabled {
		if err := syncIndex(ctx, cfg); err != nil {
			log.WithError(err).Error("Failed to update ledger index")
		}
	}

	return nil
}

// syncIndex performs a single indexing pass over the configured ledgers.
func syncIndex(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidateIndex(); err != nil {
		return fmt.Errorf("validating index config: %w", err)
	}

	store := indexstore.NewStore(log, &cfg.Index.Database)
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("starting index store: %w", err)
	}

	defer func() {
		if err := store.Stop(); err != nil {
			log.WithError(err).Warn("Failed to close index store")
		}
	}()

	idx := indexer.NewIndexer(log, store, cfg.LedgerPaths(), cfg.Index.Interval, cfg.Index.Concurrency)

	return idx.SyncOnce(ctx)
}
