package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"paper-ledger/internal/pnl"
)

func newBackfillCmd() *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "backfill-pnl",
		Short: "Recompute realized P&L for historical sells using FIFO matching",
		Long: `Replays the complete order history, matches each sell against the
oldest open buy lots and reports every order whose stored realized P&L
diverges from the recomputation. Dry-run by default; pass --apply to
write the corrected values.`,
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

			report, err := pnl.NewBackfiller(store, log).Run(context.Background(), apply)
			if err != nil {
				return err
			}

			mode := "dry run"
			if report.Applied {
				mode = "applied"
			}
			fmt.Printf("%s: scanned %d orders, %d updates, %d unmatched sells, total realized %s\n",
				mode, report.OrdersScanned, len(report.Updates),
				len(report.Unmatched), report.TotalRealized.Round(2))
			for _, u := range report.Updates {
				fmt.Printf("  order %d %s: %s -> %s\n",
					u.OrderID, u.Symbol, u.OldPnl.Round(2), u.NewPnl.Round(2))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "write the recomputed values")
	return cmd
}
