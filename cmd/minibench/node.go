package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethpandaops/minibench/pkg/config"
	"github.com/ethpandaops/minibench/pkg/node"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	nodeTargetURL string
	txReceiver    int
	txAmount      int
)

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Submit a single transaction to the node",
	RunE:  runTx,
}

var transactionsCmd = &cobra.Command{
	Use:   "transactions",
	Short: "List the transactions of the node's latest block",
	RunE:  runTransactions,
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the node wallet balance",
	RunE:  runBalance,
}

func init() {
	for _, cmd := range []*cobra.Command{txCmd, transactionsCmd, balanceCmd} {
		rootCmd.AddCommand(cmd)
		cmd.Flags().StringVar(&nodeTargetURL, "target-url", config.DefaultTargetURL,
			"Base URL of the node")
	}

	txCmd.Flags().IntVar(&txReceiver, "receiver", config.DefaultReceiver,
		"Receiver node id")
	txCmd.Flags().IntVar(&txAmount, "amount", config.DefaultAmount,
		"Amount to transfer")
}

func newNodeClient(cfg *config.Config) node.Client {
	return node.NewClient(log, &node.Config{
		BaseURL:   cfg.Driver.TargetURL,
		APIPrefix: cfg.Driver.APIPrefix,
		PathStyle: cfg.Driver.PathStyle,
		Timeout:   cfg.Driver.RequestTimeout,
	})
}

// loadNodeClient loads config, applies --target-url and validates the
// driver settings the client depends on.
func loadNodeClient(cmd *cobra.Command) (node.Client, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	if cmd.Flags().Changed("target-url") {
		cfg.Driver.TargetURL = nodeTargetURL
	}

	if cmd.Flags().Changed("receiver") {
		cfg.Driver.Receiver = txReceiver
	}

	if cmd.Flags().Changed("amount") {
		cfg.Driver.Amount = txAmount
	}

	if err := cfg.ValidateDriver(); err != nil {
		return nil, nil, fmt.Errorf("validating config: %w", err)
	}

	return newNodeClient(cfg), cfg, nil
}

func runTx(cmd *cobra.Command, args []string) error {
	client, cfg, err := loadNodeClient(cmd)
	if err != nil {
		return err
	}

	res, err := client.CreateTransaction(cmd.Context(), cfg.Driver.Receiver, cfg.Driver.Amount)
	if err != nil {
		return fmt.Errorf("creating transaction: %w", err)
	}

	fields := logrus.Fields{
		"status":      res.StatusCode,
		"mining_time": res.MiningTime,
		"server_time": res.ServerTime.String(),
	}

	if res.Balance != nil {
		fields["balance"] = *res.Balance
	}

	log.WithFields(fields).Info(res.Message)

	return nil
}

func runTransactions(cmd *cobra.Command, args []string) error {
	client, _, err := loadNodeClient(cmd)
	if err != nil {
		return err
	}

	txs, err := client.GetTransactions(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing transactions: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(txs)
}

func runBalance(cmd *cobra.Command, args []string) error {
	client, _, err := loadNodeClient(cmd)
	if err != nil {
		return err
	}

	balance, err := client.GetBalance(cmd.Context())
	if err != nil {
		return fmt.Errorf("getting balance: %w", err)
	}

	fmt.Println(balance)

	return nil
}
