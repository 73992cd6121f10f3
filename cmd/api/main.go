package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dejobratic/orderbus/internal/bus"
	"github.com/dejobratic/orderbus/internal/config"
	"github.com/dejobratic/orderbus/internal/database"
	"github.com/dejobratic/orderbus/internal/eventstore"
	eventmemory "github.com/dejobratic/orderbus/internal/eventstore/memory"
	eventpostgres "github.com/dejobratic/orderbus/internal/eventstore/postgres"
	idemmemory "github.com/dejobratic/orderbus/internal/idempotency/memory"
	idempostgres "github.com/dejobratic/orderbus/internal/idempotency/postgres"
	"github.com/dejobratic/orderbus/internal/messaging"
	ordersadapters "github.com/dejobratic/orderbus/internal/orders/adapters"
	httpadapter "github.com/dejobratic/orderbus/internal/orders/adapters/http"
	ordersapp "github.com/dejobratic/orderbus/internal/orders/app"
	"github.com/dejobratic/orderbus/internal/orders/app/commands"
	ordersmetrics "github.com/dejobratic/orderbus/internal/orders/metrics"
	"github.com/dejobratic/orderbus/internal/orders/ports"
	"github.com/dejobratic/orderbus/internal/retailers"
	"github.com/dejobratic/orderbus/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName                = "github.com/dejobratic/orderbus"
	idempotencyPurgeInterval = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, telemetry.ParseLevel(cfg.Telemetry.LogLevel))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("orderbus api stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:      cfg.Service.Name,
		ServiceVersion:   cfg.Service.Version,
		Environment:      cfg.Service.Environment,
		OTLPEndpoint:     cfg.Telemetry.OTelEndpoint,
		EnableTracing:    cfg.Telemetry.EnableTracing,
		EnableMetrics:    cfg.Telemetry.EnableMetrics,
		EnablePrometheus: cfg.Telemetry.EnablePrometheus,
		SampleRate:       cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	meter := tel.Meter(meterName)
	m, err := newMetrics(meter)
	if err != nil {
		return err
	}

	forward := cfg.NATS.Enabled() && cfg.NATS.Forward
	routing, err := config.LoadRouting(cfg.Routing.Path, forward)
	if err != nil {
		return fmt.Errorf("load routing: %w", err)
	}

	var (
		store     eventstore.Store
		idemStore ports.IdempotencyStore
		pool      *pgxpool.Pool
	)

	switch cfg.Database.Backend {
	case config.StoreBackendPostgres:
		pool, err = openDatabase(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		if _, err := database.RegisterPoolMetrics(meter, database.StatsOf(pool)); err != nil {
			return err
		}

		store = eventstore.NewObservableStore(eventpostgres.NewStore(pool), m.database)
		pgIdem := idempostgres.NewStore(pool, cfg.Idempotency.TTL)
		idemStore = pgIdem
		go purgeIdempotencyKeys(ctx, pgIdem, logger)
	default:
		store = eventstore.NewObservableStore(eventmemory.NewStore(), m.database)
		idemStore = idemmemory.NewStore(cfg.Idempotency.TTL)
	}

	var (
		nc      *nats.Conn
		channel retailers.Channel = messaging.NewLogChannel(logger)
	)
	if cfg.NATS.Enabled() {
		nc, err = messaging.Connect(cfg.NATS.URL, cfg.Service.Name, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		channel = messaging.NewNATSChannel(nc, m.messaging)
	}

	p, err := newPipeline(pipelineDeps{
		routing: routing,
		store:   store,
		idem:    idemStore,
		channel: channel,
		nc:      nc,
		nats:    cfg.NATS,
		forward: forward,
		metrics: m,
		logger:  logger,
	})
	if err != nil {
		return err
	}

	handler := newHTTPHandler(p.service, m.http, logger, func(mux *http.ServeMux) {
		mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
			if err := checkReady(r.Context(), pool, nc); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
			respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		})
		mux.Handle("GET "+cfg.HTTP.MetricsPath, tel.MetricsHandler())
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "port", cfg.HTTP.Port, "store", cfg.Database.Backend, "nats", cfg.NATS.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownGrace)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	} else {
		logger.Info("http server stopped")
	}

	if err := p.router.Drain(shutdownCtx); err != nil {
		logger.Warn("in-flight deliveries abandoned", "error", err)
	}

	if nc != nil {
		if err := nc.Drain(); err != nil {
			logger.Warn("nats drain failed", "error", err)
		}
	}

	return nil
}

type pipelineDeps struct {
	routing *config.Routing
	store   eventstore.Store
	idem    ports.IdempotencyStore
	channel retailers.Channel
	nc      *nats.Conn
	nats    config.NATSConfig
	forward bool
	metrics *metricsSet
	logger  *slog.Logger
}

type pipeline struct {
	router  *bus.Router
	service *ordersapp.Service
}

// newPipeline binds every routing target to its handler and puts the order
// service in front of the router.
func newPipeline(deps pipelineDeps) (*pipeline, error) {
	m, logger := deps.metrics, deps.logger

	handlers := map[string]bus.Handler{
		config.TargetEventStore: eventstore.NewWriter(deps.store,
			eventstore.WithLogger(logger),
			eventstore.WithMetrics(m.eventstore),
		),
	}
	for _, retailer := range deps.routing.Retailers {
		adapter, err := retailers.NewAdapter(retailer, deps.channel,
			retailers.WithLogger(logger),
			retailers.WithMetrics(m.retailers),
			retailers.WithDefaultChannel(deps.nats.NotificationChannel),
		)
		if err != nil {
			return nil, err
		}
		handlers[retailer.Target()] = adapter
	}
	if deps.forward {
		handlers[config.TargetForwarder] = messaging.NewForwarder(deps.nc, deps.nats.SubjectPrefix, m.messaging)
	}

	rules, err := bus.NewRuleSet(deps.routing.BusRules(), handlers)
	if err != nil {
		return nil, err
	}
	for _, rule := range rules.Rules() {
		logger.Info("routing rule loaded",
			"rule", rule.Name,
			"source_prefix", rule.SourcePrefix,
			"detail_types", rule.DetailTypes,
			"target", rule.Target,
		)
	}

	router := bus.NewRouter(rules, bus.WithObserver(m.bus), bus.WithLogger(logger))

	service := ordersapp.NewService(
		ordersadapters.NewObservablePublisher(router, m.bus),
		commands.RoutingTable(deps.routing.Retailers.RoutingTable()),
		deps.store,
		deps.idem,
		logger,
		m.orders,
	)

	return &pipeline{router: router, service: service}, nil
}

// newHTTPHandler builds the API mux. extra registers operational routes
// that depend on process-level resources.
func newHTTPHandler(service *ordersapp.Service, metrics *httpadapter.Metrics, logger *slog.Logger, extra func(*http.ServeMux)) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if extra != nil {
		extra(mux)
	}

	httpadapter.NewHandler(service).Register(mux)

	return httpadapter.WithRecovery(
		httpadapter.WithLogging(
			httpadapter.WithMetrics(mux, metrics),
			logger,
		),
		logger,
	)
}

type metricsSet struct {
	bus        *bus.Metrics
	eventstore *eventstore.Metrics
	database   *database.Metrics
	orders     *ordersmetrics.Metrics
	http       *httpadapter.Metrics
	retailers  *retailers.Metrics
	messaging  *messaging.Metrics
}

func newMetrics(meter metric.Meter) (*metricsSet, error) {
	var (
		m   metricsSet
		err error
	)

	if m.bus, err = bus.NewMetrics(meter); err != nil {
		return nil, fmt.Errorf("create bus metrics: %w", err)
	}
	if m.eventstore, err = eventstore.NewMetrics(meter); err != nil {
		return nil, fmt.Errorf("create event store metrics: %w", err)
	}
	if m.database, err = database.NewMetrics(meter); err != nil {
		return nil, fmt.Errorf("create database metrics: %w", err)
	}
	if m.orders, err = ordersmetrics.NewMetrics(meter); err != nil {
		return nil, fmt.Errorf("create orders metrics: %w", err)
	}
	if m.http, err = httpadapter.NewMetrics(meter); err != nil {
		return nil, fmt.Errorf("create http metrics: %w", err)
	}
	if m.retailers, err = retailers.NewMetrics(meter); err != nil {
		return nil, fmt.Errorf("create retailer metrics: %w", err)
	}
	if m.messaging, err = messaging.NewMetrics(meter); err != nil {
		return nil, fmt.Errorf("create messaging metrics: %w", err)
	}

	return &m, nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if cfg.AutoMigrate {
		version, err := database.RunMigrations(cfg.URL, cfg.MigrationsPath)
		if err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations applied", "version", version)
	}

	pool, err := database.NewPool(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pool, nil
}

type expiredKeyPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// purgeIdempotencyKeys removes expired idempotency keys until ctx is done.
func purgeIdempotencyKeys(ctx context.Context, store expiredKeyPurger, logger *slog.Logger) {
	ticker := time.NewTicker(idempotencyPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := store.DeleteExpired(ctx)
			if err != nil {
				logger.Warn("idempotency key purge failed", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Debug("idempotency keys purged", "deleted", deleted)
			}
		}
	}
}

func checkReady(ctx context.Context, pool *pgxpool.Pool, nc *nats.Conn) error {
	if pool != nil {
		if err := database.CheckHealth(ctx, pool); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if nc != nil {
		if err := messaging.CheckHealth(nc); err != nil {
			return err
		}
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
