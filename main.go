package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appinventory "github.com/Zhima-Mochi/minishop-orders/internal/application/inventory"
	appinvoice "github.com/Zhima-Mochi/minishop-orders/internal/application/invoice"
	apporder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	apppayment "github.com/Zhima-Mochi/minishop-orders/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-orders/internal/config"
	dominventory "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	dominvoice "github.com/Zhima-Mochi/minishop-orders/internal/domain/invoice"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/client"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/redis"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-orders/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-orders/internal/presentation/worker"
)

const tracerName = "minishop.orders"

// stores groups the persistence the service runs on.
type stores struct {
	orders    domorder.Repository
	outbox    domoutbox.Store
	inventory dominventory.Repository
	invoices  dominvoice.Repository
	close     func()
}

func main() {
	cfg := config.MustLoad()

	baseLogger := logging.MustNewLogger(logging.Options{
		Service: cfg.Service,
		Env:     cfg.Env,
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
	})
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	if err := run(cfg, baseLogger); err != nil {
		baseLogger.Error("service_failed", zap.Error(err))
		_ = baseLogger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, baseLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := zaplogger.New(baseLogger)

	tp, err := oteltrace.InitProvider(ctx, oteltrace.ProviderConfig{
		Service:  cfg.Service,
		Env:      cfg.Env,
		Endpoint: cfg.Telemetry.OTLPEndpoint,
		Insecure: cfg.Telemetry.Insecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	counters, histograms := prometrics.Standard(prometrics.New("", "", reg))
	tel := infraobs.New(oteltrace.New(tracerName), logger, infraobs.Instruments{
		Counters:   counters,
		Histograms: histograms,
	})

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()
	seq := redis.NewSequence(rdb, cfg.Redis.SequenceKey, tel)

	bus := outbox.NewBus(logger)
	bus.Start(ctx)
	defer bus.Stop(context.Background())

	relay := outbox.NewRelay(st.outbox, bus, apporder.DecodeEffect, outbox.RelayConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		Lease:        cfg.Outbox.Lease,
		BaseBackoff:  cfg.Outbox.BaseBackoff,
		MaxBackoff:   cfg.Outbox.MaxBackoff,
	}, tel)

	ids := id.NewUUIDGenerator()
	orders := apporder.NewOrchestrator(apporder.Deps{
		Repo:      st.orders,
		Sequence:  seq,
		IDs:       ids,
		Notifier:  relay,
		Publisher: bus,
		Tel:       tel,
	})

	self := selfURL(cfg.HTTP.Addr)
	apporder.NewEffectWorker(
		workerpresentation.Instrumented(bus, logger),
		client.NewInventory(client.Config{BaseURL: orDefault(cfg.Inventory.BaseURL, self), Timeout: cfg.Inventory.Timeout}, tel),
		client.NewInvoice(client.Config{BaseURL: orDefault(cfg.Invoice.BaseURL, self), Timeout: cfg.Invoice.Timeout}, tel),
		tel,
	).Start()

	if len(cfg.Kafka.Brokers) > 0 {
		sink := kafka.NewSink(kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), logger)
		sink.Subscribe(workerpresentation.Instrumented(bus, logger), domorder.LifecycleEvents...)
		defer func() { _ = sink.Close() }()
		logger.Info("kafka_sink_enabled", observability.F("topic", cfg.Kafka.Topic))
	}

	hexCase := dompayment.HexUpper
	if strings.EqualFold(cfg.VNPay.HashCase, "lower") {
		hexCase = dompayment.HexLower
	}
	spaces := dompayment.SpacePercent
	if strings.EqualFold(cfg.VNPay.Spaces, "plus") {
		spaces = dompayment.SpacePlus
	}
	gateway := dompayment.NewGateway(dompayment.GatewayConfig{
		TmnCode:   cfg.VNPay.TmnCode,
		Secret:    cfg.VNPay.Secret,
		PayURL:    cfg.VNPay.PayURL,
		ReturnURL: cfg.VNPay.ReturnURL,
		Version:   cfg.VNPay.Version,
		Command:   cfg.VNPay.Command,
		CurrCode:  cfg.VNPay.CurrCode,
		Locale:    cfg.VNPay.Locale,
		OrderType: cfg.VNPay.OrderType,
		HexCase:   hexCase,
		Spaces:    spaces,
	})

	handler := httppresentation.NewHandler(httppresentation.Services{
		Orders:    orders,
		Inventory: appinventory.NewService(st.inventory, tel),
		Invoices:  appinvoice.NewService(st.invoices, ids, tel),
		Payments:  apppayment.NewService(gateway, orders.Get, orders.Complete, tel),
	}, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), tel)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	relay.Start(ctx)
	defer relay.Stop(context.Background())

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http_server_start", observability.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_server_shutdown_error", observability.F("error", err))
		return err
	}
	logger.Info("http_server_stopped")
	return nil
}

// openStores connects Postgres, applying migrations when configured, or
// falls back to in-memory stores when no database URL is set.
func openStores(ctx context.Context, cfg *config.Config, logger observability.Logger) (stores, error) {
	if cfg.MemoryStores() {
		logger.Warn("memory_stores_enabled")
		orders := memory.NewOrderRepository()
		return stores{
			orders:    orders,
			outbox:    orders,
			inventory: memory.NewInventoryRepository(),
			invoices:  memory.NewInvoiceRepository(),
			close:     func() {},
		}, nil
	}

	if cfg.Postgres.Migrate {
		if err := postgres.Migrate(cfg.Postgres.URL); err != nil {
			return stores{}, err
		}
	}
	pool, err := postgres.NewPool(ctx, postgres.Config{
		URL:      cfg.Postgres.URL,
		MaxConns: cfg.Postgres.MaxConns,
		MinConns: cfg.Postgres.MinConns,
	})
	if err != nil {
		return stores{}, err
	}
	return stores{
		orders:    postgres.NewOrderRepository(pool),
		outbox:    postgres.NewOutboxStore(pool),
		inventory: postgres.NewInventoryRepository(pool),
		invoices:  postgres.NewInvoiceRepository(pool),
		close:     pool.Close,
	}, nil
}

// selfURL is the loopback base URL of the HTTP server listening on addr.
func selfURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return def
}
