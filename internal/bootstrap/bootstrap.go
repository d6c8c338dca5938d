// Package bootstrap wires config into the store, courier gateway and services
// shared by ship-api, ship-worker and shipctl.
package bootstrap

import (
	"context"
	"time"

	"github.com/BearBump/ShipSync/config"
	"github.com/BearBump/ShipSync/internal/broker/kafka"
	"github.com/BearBump/ShipSync/internal/cache"
	"github.com/BearBump/ShipSync/internal/cache/rediscache"
	"github.com/BearBump/ShipSync/internal/integrations/courier"
	"github.com/BearBump/ShipSync/internal/integrations/courier/emulatorv1"
	"github.com/BearBump/ShipSync/internal/integrations/courier/fake"
	"github.com/BearBump/ShipSync/internal/integrations/courier/track24http"
	"github.com/BearBump/ShipSync/internal/services/reconciler"
	"github.com/BearBump/ShipSync/internal/services/refresher"
	"github.com/BearBump/ShipSync/internal/services/shipments"
	"github.com/BearBump/ShipSync/internal/storage/memstore"
	"github.com/BearBump/ShipSync/internal/storage/pgshipments"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Store is everything the binaries need from a shipment store.
type Store interface {
	reconciler.Store
	shipments.Repository
	refresher.Repository
}

type Factories struct {
	NewStore       func(ctx context.Context, cfg *config.Config) (Store, func(), error)
	NewCache       func(cfg *config.Config) (cache.BytesCache, func())
	NewRateLimiter func(cfg *config.Config) (courier.RateLimiter, func())
	NewPublisher   func(cfg *config.Config) (reconciler.Publisher, func())
	NewGateway     func(cfg *config.Config) courier.Gateway
}

func DefaultFactories() Factories {
	return Factories{
		NewStore: func(ctx context.Context, cfg *config.Config) (Store, func(), error) {
			switch cfg.ShipSync.Store {
			case StoreMemory:
				return memstore.New(), nil, nil
			case StorePostgres, "":
				st, err := OpenPostgresWithRetry(ctx, cfg.Database.ConnString(), 60*time.Second)
				if err != nil {
					return nil, nil, err
				}
				return st, st.Close, nil
			default:
				return nil, nil, errors.Errorf("unknown store %q", cfg.ShipSync.Store)
			}
		},
		NewCache: func(cfg *config.Config) (cache.BytesCache, func()) {
			addr := cfg.Redis.Address()
			if addr == "" {
				return nil, nil
			}
			rc := rediscache.New(addr).WithPrefix(cfg.Redis.KeyPrefix)
			return rc, func() { _ = rc.Close() }
		},
		NewRateLimiter: func(cfg *config.Config) (courier.RateLimiter, func()) {
			addr := cfg.Redis.Address()
			if addr == "" || cfg.ShipSync.GatewayRateLimitPerMinute <= 0 {
				return nil, nil
			}
			rl := rediscache.NewRateLimiter(addr).WithPrefix(cfg.Redis.KeyPrefix)
			return rl, func() { _ = rl.Close() }
		},
		NewPublisher: func(cfg *config.Config) (reconciler.Publisher, func()) {
			brokers := cfg.Kafka.Brokers()
			if len(brokers) == 0 {
				return nil, nil
			}
			p := kafka.NewProducer(brokers)
			return p, func() { _ = p.Close() }
		},
		NewGateway: NewGateway,
	}
}

// NewGateway выбирает адаптер перевозчика по courier_mode. Без base_url всегда fake.
func NewGateway(cfg *config.Config) courier.Gateway {
	s := cfg.ShipSync
	if s.CourierBaseURL == "" {
		return fake.New()
	}
	switch s.CourierMode {
	case "track24":
		return track24http.New(s.CourierBaseURL, s.CourierAPIKey, s.CourierDomain)
	case "emulatorv1":
		return emulatorv1.New(s.CourierBaseURL, s.CourierAPIKey, s.CourierName)
	default:
		return fake.New()
	}
}

// OpenPostgresWithRetry ждёт, пока postgres поднимется (docker-compose стартует всё разом).
func OpenPostgresWithRetry(ctx context.Context, connString string, wait time.Duration) (*pgshipments.Storage, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for {
		st, err := pgshipments.New(ctx, connString)
		if err == nil {
			return st, nil
		}
		lastErr = err
		if time.Now().After(deadline) {
			return nil, errors.Wrapf(lastErr, "postgres is not ready after %s", wait)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func PlannerConfig(cfg *config.Config) refresher.PlannerConfig {
	s := cfg.ShipSync
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return refresher.PlannerConfig{
		DeliveredDelay: sec(s.NextCheckDeliveredSeconds),
		ActiveMinDelay: sec(s.NextCheckActiveMinSeconds),
		ActiveMaxDelay: sec(s.NextCheckActiveMaxSeconds),
		DefaultDelay:   sec(s.NextCheckDefaultSeconds),
		Backoff1:       sec(s.Backoff1Seconds),
		Backoff2:       sec(s.Backoff2Seconds),
		Backoff3:       sec(s.Backoff3Seconds),
		Backoff4:       sec(s.Backoff4Seconds),
	}
}

type Deps struct {
	Config     *config.Config
	Logger     *zap.Logger
	Store      Store
	Gateway    courier.Gateway
	Reconciler *reconciler.Service
	Shipments  *shipments.Service

	closers []func()
}

func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, f Factories) (*Deps, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{Config: cfg, Logger: logger}

	st, closeStore, err := f.NewStore(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	d.Store = st
	d.addCloser(closeStore)

	gw := f.NewGateway(cfg)
	if f.NewRateLimiter != nil {
		rl, closeRL := f.NewRateLimiter(cfg)
		if rl != nil {
			gw = courier.NewRateLimited(gw, rl, cfg.ShipSync.CourierName, int64(cfg.ShipSync.GatewayRateLimitPerMinute))
			d.addCloser(closeRL)
		}
	}
	d.Gateway = gw

	rec := reconciler.New(st, gw, logger.Named("reconciler")).
		WithGatewayTimeout(cfg.ShipSync.GatewayTimeout())

	var c cache.BytesCache
	if f.NewCache != nil {
		var closeCache func()
		c, closeCache = f.NewCache(cfg)
		if c != nil {
			rec.WithCache(c, cfg.ShipSync.ViewCacheTTL())
			d.addCloser(closeCache)
		}
	}
	if f.NewPublisher != nil {
		p, closePub := f.NewPublisher(cfg)
		if p != nil {
			rec.WithPublisher(p, cfg.Kafka.ReconciledTopicName)
			d.addCloser(closePub)
		}
	}
	d.Reconciler = rec
	d.Shipments = shipments.New(st, c, cfg.ShipSync.ViewCacheTTL(), logger.Named("shipments"))

	logger.Info("dependencies ready",
		zap.String("store", cfg.ShipSync.Store),
		zap.String("courier_mode", cfg.ShipSync.CourierMode),
		zap.Bool("cache", c != nil),
	)
	return d, nil
}

func (d *Deps) addCloser(fn func()) {
	if fn != nil {
		d.closers = append(d.closers, fn)
	}
}

// Close releases resources in reverse order of acquisition.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
