package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/minibench/pkg/api"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve ledger runs and aggregate series over HTTP",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "",
		"Listen address (defaults to api.server.listen)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if serveListen != "" {
		cfg.API.Server.Listen = serveListen
	}

	if err := cfg.ValidateAPI(); err != nil {
		return fmt.Errorf("validating api config: %w", err)
	}

	if cfg.Index.Enabled {
		if err := cfg.ValidateIndex(); err != nil {
			return fmt.Errorf("validating index config: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(log, cfg)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	log.WithField("addr", srv.Addr()).Info("API server listening")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down API server")

		if err := srv.Stop(); err != nil {
			return fmt.Errorf("stopping api server: %w", err)
		}

		return nil
	})

	return g.Wait()
}
