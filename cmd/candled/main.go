// candled is the market data service: it ingests ticks, aggregates them
// into multi-timeframe candles, fans completed and partial bars out to
// websocket subscribers with per-session indicator streams, and serves
// the REST surface for historical indicator and level analysis.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"candleflow/config"
	"candleflow/internal/api"
	"candleflow/internal/gateway"
	"candleflow/internal/history"
	"candleflow/internal/logger"
	"candleflow/internal/marketdata/agg"
	"candleflow/internal/marketdata/stream"
	"candleflow/internal/markethours"
	"candleflow/internal/metrics"
	"candleflow/internal/model"
	"candleflow/pkg/smartconnect"
)

func main() {
	cfg := config.Load()
	log := logger.Init("candled", logger.ParseLevel(cfg.LogLevel))
	log.Info("starting", "addr", cfg.Addr(), "metrics_addr", cfg.MetricsAddr)

	prom := metrics.New()

	// ---- Tick stream manager ----
	mgr := stream.NewManager(stream.Config{
		Grace:      cfg.AggregatorGrace,
		TickBuffer: cfg.TickBufferSize,
		AggOptions: agg.Options{
			Tolerance: cfg.Tolerance,
			FillGaps:  cfg.FillGaps,
		},
	})
	mgr.OnTick = prom.TicksTotal.Inc
	mgr.OnDispatchDrop = prom.DispatchDrops.Inc
	mgr.OnLateDropped = prom.LateTicks.Inc

	// ---- Subscriber hub + broadcaster ----
	hub := gateway.NewHub(gateway.Config{
		MaxSessions:       cfg.MaxSessions,
		QueueDepth:        cfg.QueueDepth,
		DropThreshold:     cfg.DropThreshold,
		DropWindow:        cfg.DropWindow,
		Heartbeat:         cfg.Heartbeat,
		DefaultTimeframes: cfg.DefaultTimeframes,
	}, mgr)
	hub.OnSessionOpen = func() { prom.SessionsOpen.Inc() }
	hub.OnSessionClose = func() { prom.SessionsOpen.Dec() }
	hub.OnRefused = prom.SessionsRefused.Inc
	hub.OnSlowConsumer = prom.SlowConsumers.Inc
	hub.OnSessionDrops = func(n uint64) { prom.SessionDrops.Add(float64(n)) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bcast := gateway.NewBroadcaster(hub, mgr, cfg.WindowCap)
	bcast.OnCandle = func(tf string, complete bool) {
		prom.CandlesTotal.WithLabelValues(tf, strconv.FormatBool(complete)).Inc()
	}
	bcast.OnIndicatorCompute = prom.IndicatorCompute.Observe
	go bcast.Run(ctx)

	// Aggregator gauge, refreshed off the hot path.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				prom.Aggregators.Set(float64(mgr.Snapshot().Aggregators))
			}
		}
	}()

	// ---- Historical source ----
	client := smartconnect.New(smartconnect.Config{
		APIKey:     cfg.AngelAPIKey,
		ClientCode: cfg.AngelClientCode,
		Password:   cfg.AngelPassword,
		TOTPSecret: cfg.AngelTOTPSecret,
	})
	src := history.NewSmartAPISource(client, cfg.HistoricalTimeout)

	if cfg.AngelAPIKey != "" && cfg.AngelTOTPSecret != "" {
		loginCtx, loginCancel := context.WithTimeout(ctx, 15*time.Second)
		if err := client.Login(loginCtx); err != nil {
			log.Warn("upstream login failed, historical endpoints degraded", "err", err)
		} else {
			log.Info("upstream session established")
		}
		loginCancel()
	}

	// ---- Health + metrics listener ----
	health := metrics.NewHealth(hub.SessionCount, func() int {
		return mgr.Snapshot().Aggregators
	})
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	go func() {
		if err := metricsSrv.Start(); err != nil {
			log.Error("metrics server failed", "err", err)
		}
	}()

	// ---- Tick feed ----
	feedCtx, feedCancel := context.WithCancel(ctx)
	defer feedCancel()
	if cfg.FeedURL != "" {
		feed := smartconnect.NewFeed(smartconnect.FeedConfig{
			URL:        cfg.FeedURL,
			APIKey:     cfg.AngelAPIKey,
			ClientCode: cfg.AngelClientCode,
			FeedToken:  client.FeedToken(),
			AuthToken:  client.AuthToken(),
		})
		feed.OnConnect = func() {
			prom.FeedReconnects.Inc()
			health.SetFeedUp(true)
		}
		feed.OnTick = func(t smartconnect.FeedTick) {
			health.NoteTick(t.TS)
			mgr.ProcessTick(model.Tick{
				Symbol:   t.Symbol,
				Exchange: t.Exchange,
				Price:    t.Price,
				Size:     t.Size,
				TS:       t.TS,
			})
		}
		go func() {
			feed.Run(feedCtx)
			health.SetFeedUp(false)
		}()
		log.Info("tick feed enabled", "url", cfg.FeedURL)
	} else {
		log.Warn("FEED_URL unset, running without live ingestion")
	}
	log.Info("market status", "status", markethours.StatusString(time.Now()))

	// ---- REST + websocket server ----
	apiSrv := api.NewServer(api.Options{
		Source:       src,
		Manager:      mgr,
		SessionCount: hub.SessionCount,
		Metrics:      prom,
		CORSOrigins:  cfg.CORSOrigins,
		WSHandler:    http.HandlerFunc(hub.HandleWS),
		Log:          log,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           apiSrv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("listening", "addr", cfg.Addr())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "err", err)
			cancel()
		}
	}()

	// ---- Shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	log.Info("shutdown signal received")

	// Order: stop accepting, stop ingesting, drain aggregators, then
	// tear down the listeners.
	hub.Shutdown(cfg.ShutdownDeadline)
	feedCancel()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.ShutdownDeadline)
	if err := mgr.Close(drainCtx); err != nil {
		log.Warn("aggregator drain incomplete", "err", err)
	}
	drainCancel()
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	httpSrv.Shutdown(stopCtx)
	metricsSrv.Stop(stopCtx)
	log.Info("shutdown complete")
}
