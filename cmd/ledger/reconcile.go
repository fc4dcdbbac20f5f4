package main

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"paper-ledger/internal/clock"
	"paper-ledger/internal/reconcile"
)

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Refresh position prices and recompute the account total once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			rec := reconcile.New(store, newQuoteSource(cfg, log), clock.New(),
				cfg.Ledger.DiscrepancyThreshold, cfg.Ledger.PerformanceRetention, log)

			res, err := rec.ReconcileOnce(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("cash:            %s\n", res.Cash.Round(2))
			fmt.Printf("positions value: %s\n", res.PositionsValue.Round(2))
			fmt.Printf("total:           %s\n", res.Total.Round(2))
			fmt.Printf("previous total:  %s\n", res.PreviousTotal.Round(2))
			fmt.Printf("drift:           %s\n", res.Discrepancy().Round(2))
			return nil
		},
	}
}

func newCheckDiscrepancyCmd() *cobra.Command {
	var threshold string

	cmd := &cobra.Command{
		Use:   "check-discrepancy",
		Short: "Compare the stored account total against a recomputation",
		Long: `Compares the stored account total against cash plus the value of open
positions at their stored prices, without writing anything. Exits 2 when
the drift exceeds the threshold, for use in health checks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			limit := cfg.Ledger.DiscrepancyThreshold
			if threshold != "" {
				limit, err = decimal.NewFromString(threshold)
				if err != nil {
					return fmt.Errorf("invalid threshold %q: %w", threshold, err)
				}
			}

			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			rec := reconcile.New(store, newQuoteSource(cfg, log), clock.New(),
				cfg.Ledger.DiscrepancyThreshold, cfg.Ledger.PerformanceRetention, log)

			drift, err := rec.CheckDiscrepancy(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("drift: %s\n", drift.Round(2))
			if drift.Abs().GreaterThan(limit) {
				fmt.Fprintf(os.Stderr, "drift %s exceeds threshold %s\n",
					drift.Round(2), limit)
				os.Exit(2)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&threshold, "threshold", "",
		"drift above which the check fails (default from config)")
	return cmd
}
