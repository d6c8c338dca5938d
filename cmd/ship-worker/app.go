package main

import (
	"context"
	"time"

	"github.com/BearBump/ShipSync/config"
	"github.com/BearBump/ShipSync/internal/bootstrap"
	"github.com/BearBump/ShipSync/internal/broker/kafka"
	"github.com/BearBump/ShipSync/internal/services/refresher"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type requestConsumer interface {
	Consume(ctx context.Context, handler kafka.Handler) error
}

type workerOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	// consumer == nil: запросы на сверку из Kafka не читаем, работает только расписание.
	consumer     requestConsumer
	retryBackoff time.Duration
}

func newRefresher(cfg *config.Config, deps *bootstrap.Deps) *refresher.Refresher {
	s := cfg.ShipSync
	return refresher.New(deps.Store, deps.Reconciler, deps.Logger.Named("refresher")).
		WithSettings(s.RefreshSchedule, s.RefreshBatchSize, s.RefreshConcurrency, s.RefreshLease()).
		WithPlanner(bootstrap.PlannerConfig(cfg))
}

func runShipWorker(ctx context.Context, cfg *config.Config, deps *bootstrap.Deps, opts workerOpts) error {
	ref := newRefresher(cfg, deps)
	logger := deps.Logger

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ref.Run(gctx)
	})
	g.Go(func() error {
		return runWorkerHTTPServer(gctx, workerHTTPOpts{
			httpAddr:   opts.httpAddr,
			onListen:   opts.onListen,
			refresher:  ref,
			reconciler: deps.Reconciler,
			cfg:        cfg,
			logger:     logger,
		})
	})
	if opts.consumer != nil {
		g.Go(func() error {
			consumeLoop(gctx, opts.consumer, ref.HandleRequest, opts.retryBackoff, logger)
			return gctx.Err()
		})
	}

	// Trigger the first cycle right away instead of waiting for the schedule.
	ref.Trigger()

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// consumeLoop перезапускает Consume после ошибок, пока ctx жив.
func consumeLoop(ctx context.Context, c requestConsumer, h kafka.Handler, backoff time.Duration, logger *zap.Logger) {
	if backoff <= 0 {
		backoff = time.Second
	}
	for {
		err := c.Consume(ctx, h)
		if ctx.Err() != nil {
			return
		}
		logger.Warn("reconcile requests consumer failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}
