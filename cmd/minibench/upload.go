package main

import (
	"fmt"

	"github.com/ethpandaops/minibench/pkg/upload"
	"github.com/spf13/cobra"
)

var uploadLedgerPath string

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload the results ledger to S3-compatible storage",
	RunE:  runUploadLedger,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadLedgerPath, "ledger", "",
		"Path of the ledger to upload (defaults to ledger.path)")
}

func runUploadLedger(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if !cfg.Upload.S3.Enabled {
		return fmt.Errorf("S3 upload is not enabled in config (upload.s3.enabled)")
	}

	if err := cfg.ValidateUpload(); err != nil {
		return fmt.Errorf("validating upload config: %w", err)
	}

	path := cfg.Ledger.Path
	if uploadLedgerPath != "" {
		path = uploadLedgerPath
	}

	uploader := upload.NewS3Uploader(log, &cfg.Upload.S3)
	ctx := cmd.Context()

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("upload preflight: %w", err)
	}

	key, err := uploader.UploadLedger(ctx, path)
	if err != nil {
		return fmt.Errorf("uploading ledger: %w", err)
	}

	log.WithField("key", key).Info("Upload completed successfully")

	return nil
}
