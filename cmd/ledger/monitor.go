package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"paper-ledger/internal/clock"
	"paper-ledger/internal/kafka"
	"paper-ledger/internal/monitor"
)

func newMonitorCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "monitor-stops",
		Short: "Watch stop-loss positions and sell when the stop is breached",
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

			var pub monitor.Publisher
			if cfg.Kafka.Enabled {
				producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.OrdersTopic)
				defer producer.Close()
				pub = producer
			}

			if interval <= 0 {
				interval = cfg.Ledger.StopLossInterval
			}

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			mon := monitor.New(store, newQuoteSource(cfg, log), pub, clock.New(), log)
			mon.Run(ctx, interval)
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0,
		"time between stop-loss checks (default from config)")
	return cmd
}
