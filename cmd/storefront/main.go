// Command storefront serves the catalog, cart and checkout engine over HTTP.
//
// Configuration comes from defaults, STOREFRONT_* environment variables and
// an optional JSON or YAML file given with -config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itsneelabh/storefront"
	"github.com/itsneelabh/storefront/api"
	"github.com/itsneelabh/storefront/cart"
	"github.com/itsneelabh/storefront/catalog"
	"github.com/itsneelabh/storefront/checkout"
	"github.com/itsneelabh/storefront/connectivity"
	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/events"
	"github.com/itsneelabh/storefront/keysync"
	"github.com/itsneelabh/storefront/order"
	"github.com/itsneelabh/storefront/pricing"
	"github.com/itsneelabh/storefront/queue"
	"github.com/itsneelabh/storefront/resilience"
	"github.com/itsneelabh/storefront/telemetry"
	"github.com/itsneelabh/storefront/tracker"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "JSON or YAML configuration file")
	flag.Parse()

	var opts []core.Option
	if configFile != "" {
		opts = append(opts, core.WithConfigFile(configFile))
	}
	cfg, err := core.NewConfig(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := core.NewProductionLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Storefront stopped with error", map[string]interface{}{
			"error": err.Error(),
		})
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *core.Config, logger *core.ProductionLogger) error {
	start := time.Now()

	tp, err := telemetry.Setup(ctx, cfg.Telemetry,
		telemetry.WithLogger(logger),
		telemetry.WithVersion(storefront.Version),
	)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer shutdownWith(cfg.HTTP.ShutdownTimeout, "telemetry", logger, tp.Shutdown)
	recorder := telemetry.NewRecorder(tp.MeterProvider())

	local, localCloser, err := openLocal(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("local storage: %w", err)
	}
	defer localCloser.Close()

	remote, err := openRemote(ctx, cfg.Remote, logger)
	if err != nil {
		return fmt.Errorf("remote store: %w", err)
	}
	defer remote.Close()

	// Catalog: first read, then live updates. A failed first read serves the
	// local cache.
	catalogSvc := catalog.NewService(remote, local,
		catalog.WithLogger(logger),
		catalog.WithRecorder(recorder),
		catalog.WithDocument(cfg.Remote.KeysDocument, cfg.Remote.ProductsField),
		catalog.WithFilters(catalog.Filters{
			HideStockless: cfg.Catalog.HideStockless,
			HideMinZero:   cfg.Catalog.HideMinZero,
		}),
	)
	if meta, err := catalogSvc.Load(ctx); err != nil {
		logger.Warn("Catalog served from cache", map[string]interface{}{"status": meta.String()})
	}
	if err := catalogSvc.Watch(ctx); err != nil {
		logger.Warn("Catalog live updates unavailable", map[string]interface{}{"error": err.Error()})
	}
	defer catalogSvc.Close()

	var cartOpts []cart.Option
	cartOpts = append(cartOpts, cart.WithLogger(logger))
	if d := cfg.Checkout.CartDiscount; d.Type != "" && d.Value > 0 {
		cartOpts = append(cartOpts, cart.WithDiscountRule(pricing.CartDiscountRule(pricing.Discount{Type: d.Type, Value: d.Value})))
	}
	shoppingCart, err := cart.Open(ctx, local, cartOpts...)
	if err != nil {
		return fmt.Errorf("cart: %w", err)
	}

	// Pricing tables. Both degrade to defaults when their sources fail.
	payments, err := pricing.LoadOrEnsurePaymentOptions(ctx, remote, cfg.Remote.KeysDocument)
	if err != nil {
		logger.Warn("Using default payment options", map[string]interface{}{"error": err.Error()})
	}
	fees := pricing.NewDistrictLoader(cfg.Districts.FetchTimeout, pricing.WithLoaderLogger(logger)).
		Load(ctx, cfg.Districts.Sources, cfg.Districts.OverrideSources)
	engine := pricing.NewEngine(payments, fees)

	// Submission: retry inside a circuit breaker, orders queued on failure.
	breaker, err := resilience.NewCircuitBreaker(&resilience.CircuitBreakerConfig{
		Name:    "order-submit",
		Logger:  logger,
		Metrics: resilience.NewOTelMetricsCollector(ctx, tp.MeterProvider()),
	})
	if err != nil {
		return fmt.Errorf("circuit breaker: %w", err)
	}
	submitter := checkout.NewRemoteSubmitter(remote,
		checkout.WithCollection(cfg.Remote.OrdersCollection),
		checkout.WithRetry(resilience.RetryConfigFrom(cfg.Retry)),
		checkout.WithCircuitBreaker(breaker),
		checkout.WithSubmitterLogger(logger),
	)

	var publisher events.Publisher = events.NoOpPublisher{}
	if cfg.Events.Enabled {
		kp, err := events.NewKafkaPublisher(cfg.Events, logger)
		if err != nil {
			return fmt.Errorf("events: %w", err)
		}
		publisher = kp
	}
	defer publisher.Close()

	var flow *checkout.Flow
	pending, err := queue.New(local, submitter,
		queue.WithLogger(logger),
		queue.WithRecorder(recorder),
		queue.OnSent(func(ctx context.Context, id string, o order.Order) {
			flow.OrderSent(ctx, id, o)
		}),
	)
	if err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	if err := recorder.QueueDepth(func() int { return pending.Len(context.Background()) }); err != nil {
		logger.Warn("Queue depth gauge unavailable", map[string]interface{}{"error": err.Error()})
	}

	flowCfg := checkout.ConfigFrom(cfg)
	flowCfg.UserAgent = storefront.UserAgent()
	flow, err = checkout.NewFlow(flowCfg, shoppingCart, engine, local, submitter, pending,
		checkout.WithLogger(logger),
		checkout.WithRecorder(recorder),
		checkout.WithPublisher(publisher),
	)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	// Flushing: on schedule and whenever the remote store comes back.
	flusher, err := queue.NewFlusher(pending, cfg.Queue.FlushSchedule, logger)
	if err != nil {
		return err
	}
	if err := flusher.Start(ctx); err != nil {
		return fmt.Errorf("flusher: %w", err)
	}
	defer flusher.Stop()

	monitor, err := connectivity.FromConfig(remote, cfg.Queue, logger)
	if err != nil {
		return err
	}
	monitor.OnOnline(flusher.OnOnline)
	monitor.Start(ctx)
	defer monitor.Stop()

	trackerOpts := []tracker.Option{
		tracker.WithLogger(logger),
		tracker.WithRecorder(recorder),
		tracker.WithCollection(cfg.Remote.OrdersCollection),
	}
	if cfg.Tracker.CancellationAlert {
		trackerOpts = append(trackerOpts, tracker.WithCancellationAlert(tracker.AlertFunc(func(ctx context.Context, v tracker.View) {
			logger.Warn("Order canceled by the point of sale", map[string]interface{}{
				"order_id": v.OrderID,
				"total":    v.TotalLabel,
			})
		})))
	}
	orders := tracker.New(remote, local, trackerOpts...)
	if cfg.Tracker.WatchHistory {
		sub, err := orders.WatchHistory(ctx, func(v tracker.View) {
			logger.Info("Order status", map[string]interface{}{
				"order_id": v.OrderID,
				"status":   string(v.Status),
			})
		}, nil)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			logger.Warn("Order history watch failed", map[string]interface{}{"error": err.Error()})
		}
		if sub != nil {
			defer sub.Unsubscribe()
		}
	}

	if cfg.KeySync.Enabled {
		uploader, err := keysync.NewUploader(remote, local,
			keysync.WithDocument(cfg.Remote.KeysDocument),
			keysync.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		auto, err := keysync.FromConfig(uploader, cfg.KeySync)
		if err != nil {
			return err
		}
		if err := auto.Start(ctx); err != nil {
			return err
		}
		defer auto.Stop()
	}

	keys := keysync.NewFetcher(remote,
		keysync.WithDocument(cfg.Remote.KeysDocument),
		keysync.WithLogger(logger),
	)
	server, err := api.New(cfg.HTTP, api.Deps{
		Catalog:  catalogSvc,
		Cart:     shoppingCart,
		Checkout: flow,
		Queue:    pending,
		Tracker:  orders,
		Local:    local,
		Monitor:  monitor,
		Keys:     keys,
	}, api.WithLogger(logger))
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	logger.Info("Storefront started", map[string]interface{}{
		"version":     storefront.Version,
		"address":     server.Addr(),
		"storage":     cfg.Storage.Provider,
		"remote":      cfg.Remote.Provider,
		"pending":     pending.Len(ctx),
		"startup_ms":  time.Since(start).Milliseconds(),
		"catalog":     catalogSvc.Meta().String(),
		"delivery":    cfg.Checkout.DeliveryFees,
		"events":      cfg.Events.Enabled,
		"key_sync":    cfg.KeySync.Enabled,
		"git_commit":  storefront.GitCommit,
		"build_date":  storefront.BuildDate,
		"districts":   len(fees.Names()),
		"payment_opt": len(payments),
	})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully", nil)
	shutdownWith(cfg.HTTP.ShutdownTimeout, "http", logger, server.Shutdown)
	return <-errCh
}

func shutdownWith(timeout time.Duration, what string, logger core.Logger, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("Shutdown error", map[string]interface{}{
			"component": what,
			"error":     err.Error(),
		})
	}
}
