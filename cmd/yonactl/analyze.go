package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"YONASettlement/internal/config"
	"YONASettlement/internal/ledger"
	"YONASettlement/internal/models"
	"YONASettlement/internal/pathfinding"
	"YONASettlement/internal/pricing"

	"github.com/spf13/cobra"
)

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [from] [to] [amount]",
		Short: "Price a conversion on the ledger order books",
		Long: `Runs the route search used for templates. Assets are CODE or CODE.ISSUER,
for example: yonactl analyze XRP RLUSD.rMxCKbEDwqr76QuheSUMdEGf4B9xJ8m5De 100`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			bps, _ := cmd.Flags().GetInt("bps")
			configPath, _ := cmd.Flags().GetString("config")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			policy, err := pricing.NewPolicy(bps)
			if err != nil {
				return err
			}
			var amount float64
			if _, err := fmt.Sscan(args[2], &amount); err != nil || amount <= 0 {
				return fmt.Errorf("amount must be a positive number: %q", args[2])
			}

			rpc, err := ledger.NewMultiRPCClient(cfg.Ledger.RPCEndpoints, cfg.Ledger.FailoverThreshold, cfg.LedgerTimeout())
			if err != nil {
				return err
			}
			engine := &pathfinding.Engine{
				Books:   ledger.NewClient(rpc, cfg.Ledger.BookLimit, nil),
				Bridges: cfg.Pathfinding.Bridges,
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			analysis, err := engine.AnalyzeMarket(ctx, pathfinding.MarketRequest{
				From:           parseIssue(args[0]),
				To:             parseIssue(args[1]),
				Amount:         amount,
				SlippageBuffer: policy.SlippageBuffer(),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), analysis)
		},
	}
	cmd.Flags().Int("bps", 50, "Slippage buffer in basis points")
	cmd.Flags().String("config", "", "Config file (CONFIG_PATH or configs/config.yaml when empty)")
	cmd.Flags().Duration("timeout", 30*time.Second, "Overall timeout")
	return cmd
}

func parseIssue(v string) models.Issue {
	code, issuer, _ := strings.Cut(v, ".")
	return models.Issue{Currency: code, Issuer: issuer}
}
