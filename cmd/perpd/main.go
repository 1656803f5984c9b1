package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"perpd/internal/bus"
	"perpd/internal/config"
	"perpd/internal/engine"
	"perpd/internal/ingress"
	"perpd/internal/runtime"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	eng := engine.NewWithTiers(cfg.OutboundQueueSize, engine.TiersFromConfig(cfg), time.Now)

	b, err := bus.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to kafka")
	}
	defer b.Close()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Error().Err(err).Msg("metrics server exited")
		}
	}()

	sup := runtime.New(ctx)

	sup.Go("trade-request-ingress", func(t *tomb.Tomb) error {
		return b.Consume(sup.Context(), cfg.TradeRequestTopic, cfg.TradeRequestGroup, func(raw []byte) error {
			req, err := bus.DecodeTradeRequest(raw)
			if err != nil {
				return err
			}
			eng.SubmitTrade(req)
			return nil
		})
	})

	sup.Go("price-update-ingress", func(t *tomb.Tomb) error {
		return b.Consume(sup.Context(), cfg.PriceUpdateTopic, cfg.PriceUpdateGroup, func(raw []byte) error {
			var upd ingress.PriceUpdate
			if err := ingress.Decode(raw, &upd); err != nil {
				return err
			}
			eng.ApplyPriceUpdate(upd)
			return nil
		})
	})

	sup.Go("balance-snapshot-ingress", func(t *tomb.Tomb) error {
		return b.Consume(sup.Context(), cfg.BalanceResponseTopic, cfg.BalanceResponseGroup, func(raw []byte) error {
			var resp ingress.BalanceResponse
			if err := ingress.Decode(raw, &resp); err != nil {
				return err
			}
			eng.ApplyBalanceSnapshot(resp)
			return nil
		})
	})

	sup.Go("holdings-snapshot-ingress", func(t *tomb.Tomb) error {
		return b.Consume(sup.Context(), cfg.HoldingsResponseTopic, cfg.HoldingsResponseGroup, func(raw []byte) error {
			var resp ingress.HoldingsResponse
			if err := ingress.Decode(raw, &resp); err != nil {
				return err
			}
			eng.ApplyHoldingsSnapshot(resp)
			return nil
		})
	})

	sup.Go("risk-monitor", func(t *tomb.Tomb) error {
		ticker := time.NewTicker(cfg.RiskScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-t.Dying():
				return nil
			case <-ticker.C:
				eng.RunRiskScan()
			}
		}
	})

	sup.Go("delivery", func(t *tomb.Tomb) error {
		return b.DeliveryLoop(sup.Context(), eng.Sink())
	})

	<-ctx.Done()
	sup.Kill(nil)
	if err := sup.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("engine shut down with error")
		os.Exit(1)
	}
}
