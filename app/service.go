package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/agrimarket/alloc/api/orders"
	"github.com/agrimarket/alloc/config"
	"github.com/agrimarket/alloc/core/alloc"
	coreinv "github.com/agrimarket/alloc/core/inventory"
	corelog "github.com/agrimarket/alloc/core/logger"
	coremetrics "github.com/agrimarket/alloc/core/metrics"
	"github.com/agrimarket/alloc/core/planlog"
	"github.com/agrimarket/alloc/core/reserve"
	"github.com/agrimarket/alloc/infra/inventory"
	"github.com/agrimarket/alloc/infra/logger"
	"github.com/agrimarket/alloc/infra/metrics"
	"github.com/agrimarket/alloc/infra/mqtt"
	"github.com/agrimarket/alloc/internal/eventbus"
)

// Service orchestrates the allocation coordinator and its transports.
type Service struct {
	Coordinator *reserve.Coordinator
	connector   *mqtt.Connector
	store       coreinv.Store
	audit       planlog.LogStore
	bus         *eventbus.Bus
	log         corelog.Logger
	apiEnabled  bool
	apiAddr     string
	promPort    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	store, err := newInventoryStore(cfg.Inventory)
	if err != nil {
		return nil, fmt.Errorf("inventory store: %w", err)
	}

	audit, err := newAuditLog(cfg.PlanLog)
	if err != nil {
		return nil, fmt.Errorf("plan log: %w", err)
	}

	bus := eventbus.New()
	engine := alloc.NewEngine(cfg.Alloc, nil, logger.New("engine"))
	coord, err := reserve.NewCoordinator(cfg.Reserve, engine, store, logger.New("coordinator"),
		reserve.WithMetrics(sink),
		reserve.WithBus(bus),
		reserve.WithAuditLog(audit),
	)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	svc := &Service{
		Coordinator: coord,
		store:       store,
		audit:       audit,
		bus:         bus,
		log:         logg,
		apiEnabled:  cfg.API.Enabled,
		apiAddr:     cfg.API.Addr,
		promPort:    promPort(cfg.Metrics),
	}

	if cfg.MQTT.Enabled {
		conn, err := mqtt.NewConnector(cfg.MQTT, coord)
		if err != nil {
			return nil, fmt.Errorf("mqtt connector: %w", err)
		}
		svc.connector = conn
	}
	return svc, nil
}

// Run starts the configured transports and blocks until the context is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.apiEnabled {
		mux := http.NewServeMux()
		mux.Handle("/v1/allocate", orders.NewAllocateHandler(s.Coordinator, s.log))
		mux.Handle("/healthz", orders.NewHealthHandler())
		srv := &http.Server{Addr: s.apiAddr, Handler: mux}
		go func() {
			s.log.Infof("api listening on %s", s.apiAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.log.Errorf("api server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
	if s.promPort != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	<-ctx.Done()
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.connector != nil {
		s.connector.Close()
	}
	var err error
	if s.audit != nil {
		err = s.audit.Close()
	}
	if closer, ok := s.store.(interface{ Close() error }); ok {
		if cerr := closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func newInventoryStore(cfg config.InventoryConfig) (coreinv.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return inventory.NewSQLiteStore(cfg.Path)
	default:
		return inventory.NewMemoryStore(), nil
	}
}

func newAuditLog(cfg config.PlanLogConfig) (planlog.LogStore, error) {
	switch cfg.Backend {
	case "sqlite":
		return planlog.NewSQLiteStore(cfg.Path)
	case "rotating":
		return planlog.NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	default:
		return planlog.NewJSONLStore(cfg.Path)
	}
}

func promPort(cfg coremetrics.Config) string {
	for _, s := range cfg.Sinks {
		if s.Type == "prometheus" {
			return cfg.PrometheusPort
		}
	}
	return ""
}
