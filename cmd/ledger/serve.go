package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"paper-ledger/internal/analytics"
	"paper-ledger/internal/api"
	"paper-ledger/internal/clock"
	"paper-ledger/internal/kafka"
	"paper-ledger/internal/monitor"
	"paper-ledger/internal/quotes"
	"paper-ledger/internal/reconcile"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the reconciliation and stop-loss loops",
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

			src := newQuoteSource(cfg, log)
			clk := clock.New()
			tracker := analytics.NewTracker(store, cfg.Thresholds, log)

			var producer *kafka.Producer
			if cfg.Kafka.Enabled {
				producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.OrdersTopic)
				defer producer.Close()
			}

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			rec := reconcile.New(store, src, clk,
				cfg.Ledger.DiscrepancyThreshold, cfg.Ledger.PerformanceRetention, log)
			go rec.Run(ctx, cfg.Ledger.ReconcileInterval)

			var pub monitor.Publisher
			if producer != nil {
				pub = producer
			}
			mon := monitor.New(store, src, pub, clk, log)
			go mon.Run(ctx, cfg.Ledger.StopLossInterval)

			if cfg.Kafka.Enabled {
				sink, _ := src.(*quotes.Cache)
				consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TicksTopic,
					cfg.Kafka.GroupID, store, sink, log)
				go func() {
					if err := consumer.Start(ctx); err != nil {
						log.Error().Err(err).Msg("tick consumer exited")
					}
				}()
			}

			handler := api.NewHandler(store, producer, tracker, log)
			srv := &http.Server{
				Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
				Handler:      api.SetupRoutes(handler),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", srv.Addr).Msg("http server listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				log.Info().Msg("shutting down")
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
