// Command server is the synapsetrade-core binary: it wires every
// package's concrete implementation together and starts the HTTP API,
// the metrics server, and the background open-order reconciliation loop.
// Grounded on the teacher's cmd/trader/main.go wiring root: flat
// sequential construction, no DI framework.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/synapsetrade/core/api"
	"github.com/synapsetrade/core/config"
	"github.com/synapsetrade/core/domain"
	"github.com/synapsetrade/core/events"
	"github.com/synapsetrade/core/logger"
	"github.com/synapsetrade/core/metrics"
	"github.com/synapsetrade/core/openorder"
	"github.com/synapsetrade/core/orderqueue"
	"github.com/synapsetrade/core/position"
	"github.com/synapsetrade/core/pricecache"
	"github.com/synapsetrade/core/record"
	"github.com/synapsetrade/core/store"
	"github.com/synapsetrade/core/trading"
	"github.com/synapsetrade/core/wspool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config: " + err.Error())
	}
	logger.Init(cfg.LogLevel, os.Stdout)

	db, err := store.Open(cfg.SQLiteDSN)
	if err != nil {
		logger.Errorf("store: failed to open database: %v", err)
		os.Exit(1)
	}

	entities := store.NewEntityStore(db)
	positionStore := store.NewPositionStore(db)
	recordStore := store.NewRecordStore(db)
	queueStore := store.NewOrderQueueStore(db)
	openOrderStore := store.NewOpenOrderStore(db)

	bus := api.NewBroadcaster()
	emitter := events.New(bus)

	adapters := trading.NewAdapterResolver(entities, entities, cfg.AccountCipherKey)

	priceCache := pricecache.New(5 * time.Second)
	pool := wspool.New(&quoteSink{cache: priceCache})

	capitalHooks := trading.NewCapitalHooks(entities)
	positions := position.New(positionStore, capitalHooks, emitter)
	records := record.New(recordStore, capitalHooks.ReflectPnL)
	openOrders := openorder.New(openOrderStore, adapters)
	queue := orderqueue.New(queueStore)
	precision := trading.NewPrecisionCache()

	core := trading.New(entities, adapters, precision, priceCache, queue, positions, records, openOrders, emitter, pool, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runReconciler(ctx, entities, openOrders)

	router := api.NewRouter(core, entities, bus)
	httpServer := &http.Server{Addr: cfg.HTTPListenAddr, Handler: router}
	metricsServer := &http.Server{Addr: cfg.MetricsListenAddr, Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})}

	go func() {
		logger.Infof("api: listening on %s", cfg.HTTPListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("api: server error: %v", err)
		}
	}()
	go func() {
		logger.Infof("metrics: listening on %s", cfg.MetricsListenAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("metrics: server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Infof("server: shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
}

// runReconciler periodically re-fetches every active account's stale
// OpenOrders (spec.md §4.10), since exchange fill webhooks can be missed
// or arrive out of order.
func runReconciler(ctx context.Context, entities *store.EntityStore, openOrders *openorder.Manager) {
	ticker := time.NewTicker(openorder.ReconcileThreshold)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			accountIDs, err := entities.ListActiveAccounts(ctx)
			if err != nil {
				logger.Warnf("server: failed to list active accounts for reconciliation: %v", err)
				continue
			}
			for _, id := range accountIDs {
				if err := openOrders.ReconcileOpenOrders(ctx, id); err != nil {
					logger.Warnf("server: reconcile failed for account %d: %v", id, err)
				}
			}
		}
	}
}

// quoteSink adapts the WebSocket Pool's public-feed quotes into the
// Price Cache (spec.md §4.12 feeding §4.5's effective-price resolution).
// Every public feed is subscribed as MarketSpot today; futures/
// securities books are resolved on demand via the REST fallback path in
// pricecache.Cache.Get instead of a dedicated feed.
type quoteSink struct {
	cache *pricecache.Cache
}

func (s *quoteSink) OnQuote(q wspool.PriceQuote) {
	price, err := decimal.NewFromString(q.Price)
	if err != nil {
		logger.Warnf("server: malformed quote price %q for %s %s: %v", q.Price, q.Exchange, q.Symbol, err)
		return
	}
	s.cache.Set(q.Exchange, domain.MarketSpot, q.Symbol, price)
}
