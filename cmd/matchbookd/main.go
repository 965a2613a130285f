package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"matchbook/params"
	"matchbook/pkg/api"
	"matchbook/pkg/exchange/engine"
	"matchbook/pkg/exchange/ledger"
	"matchbook/pkg/exchange/market"
	"matchbook/pkg/router"
	"matchbook/pkg/snapshot"
	"matchbook/pkg/storage"
	"matchbook/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("") // "" means load .env from current directory

	logger, err := util.NewLoggerWithFile(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// ---- Markets (fixed at startup) ----
	registry := market.NewRegistry()
	for _, mc := range cfg.Markets {
		m, err := market.New(mc.BaseAsset, mc.QuoteAsset)
		if err != nil {
			logger.Fatal("market config", zap.Error(err))
		}
		if err := registry.Register(m); err != nil {
			logger.Fatal("market registration", zap.Error(err))
		}
	}

	// ---- Event fan-out ----
	// The engine publishes into a buffered channel; the dispatcher forwards
	// to the trade archive and the websocket hub. Full buffers drop rather
	// than block the processing path.
	events := make(chan engine.Event, 4096)
	publish := func(ev engine.Event) {
		select {
		case events <- ev:
		default:
			logger.Warn("event buffer full, dropping event")
		}
	}

	// ---- Engine: resume from snapshot or start from configured defaults ----
	engCfg := engine.Config{RejectSelfTrade: cfg.Engine.RejectSelfTrade}
	st, err := snapshot.Load(cfg.Snapshot.Path)
	if err != nil {
		logger.Fatal("snapshot load", zap.String("path", cfg.Snapshot.Path), zap.Error(err))
	}

	var eng *engine.Engine
	if st != nil {
		eng = engine.NewFromState(engCfg, registry, st, publish, logger)
		logger.Info("state restored from snapshot",
			zap.String("path", cfg.Snapshot.Path),
			zap.Int("markets", len(st.Markets)),
			zap.Int("ledgerEntries", len(st.Ledger)))
	} else {
		led := ledger.NewLedger()
		for _, seed := range cfg.SeedBalances {
			if err := led.Deposit(seed.Owner, seed.Asset, seed.Amount); err != nil {
				logger.Fatal("seed balance", zap.Error(err))
			}
		}
		eng = engine.New(engCfg, registry, led, publish, logger)
		logger.Info("no snapshot found, starting from configured defaults",
			zap.Int("markets", registry.Count()),
			zap.Int("seedBalances", len(cfg.SeedBalances)))
	}

	bus := router.New(eng, cfg.Engine.QueueSize, cfg.Engine.RequestTimeout, logger)

	archive, err := storage.NewTradeArchive(cfg.TradeDBPath, logger)
	if err != nil {
		logger.Fatal("trade archive", zap.Error(err))
	}
	defer archive.Close()

	srv := api.NewServer(bus, eng.Ledger(), archive, cfg.Gateway.AllowedOrigins, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Single consumer: the only write path into the engine.
	go bus.Run(ctx)

	sched := snapshot.NewScheduler(
		bus,
		&snapshot.Writer{Path: cfg.Snapshot.Path},
		cfg.Snapshot.Interval,
		util.RealClock{},
		logger,
	)
	go sched.Run(ctx)

	archiveEvents := make(chan engine.Event, 4096)
	go archive.Consume(ctx, archiveEvents)
	go dispatch(ctx, events, archiveEvents, srv.Hub())

	go func() {
		if err := srv.Start(cfg.Gateway.Listen); err != nil {
			logger.Error("gateway stopped", zap.Error(err))
			stop()
		}
	}()

	logger.Info("matchbook up",
		zap.String("listen", cfg.Gateway.Listen),
		zap.Duration("snapshotInterval", cfg.Snapshot.Interval))

	<-ctx.Done()
	logger.Info("shutting down")
}

// dispatch fans engine events out to the trade archive and the websocket
// hub. Neither consumer may block the other.
func dispatch(ctx context.Context, in <-chan engine.Event, archive chan<- engine.Event, hub *api.Hub) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-in:
			select {
			case archive <- ev:
			default:
			}
			switch t := ev.(type) {
			case engine.TradeAdded:
				hub.BroadcastToChannel("trades@"+t.Market, t)
			case engine.OrderUpdate:
				if t.Market != "" {
					hub.BroadcastToChannel("orders@"+t.Market, t)
				} else {
					hub.BroadcastToChannel("orders", t)
				}
			}
		}
	}
}
