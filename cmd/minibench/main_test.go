package main

import (
	"testing"

	"github.com/ethpandaops/minibench/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	for _, name := range []string{
		"run", "aggregate", "index", "serve", "upload",
		"tx", "transactions", "balance", "version",
	} {
		t.Run(name, func(t *testing.T) {
			cmd, _, err := rootCmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, cmd.Name())
		})
	}

	upload, _, err := rootCmd.Find([]string{"upload"})
	require.NoError(t, err)
	assert.NotNil(t, upload.RunE)
}

func TestApplyRunFlags(t *testing.T) {
	cfg := &config.Config{
		Driver: config.DriverConfig{
			TargetURL: "http://from-config:5000",
			Count:     20,
			Nodes:     2,
		},
		Ledger: config.LedgerConfig{Path: "results.csv"},
	}

	require.NoError(t, runCmd.Flags().Set("count", "3"))
	require.NoError(t, runCmd.Flags().Set("upload", "true"))

	applyRunFlags(runCmd, cfg)

	assert.Equal(t, 3, cfg.Driver.Count)
	assert.True(t, cfg.Upload.S3.Enabled)
	assert.Equal(t, "http://from-config:5000", cfg.Driver.TargetURL)
	assert.Equal(t, 2, cfg.Driver.Nodes)
	assert.Equal(t, "results.csv", cfg.Ledger.Path)
}
