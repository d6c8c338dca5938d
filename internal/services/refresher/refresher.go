// Package refresher periodically reconciles shipments whose next check is due.
// It is a caller of the reconciliation service, not a part of it.
package refresher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ShipSync/internal/broker/messages"
	"github.com/BearBump/ShipSync/internal/models"
	"github.com/BearBump/ShipSync/internal/services/reconciler"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const DefaultSchedule = "@every 30s"

type Repository interface {
	ClaimDueShipments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.Shipment, error)
	ScheduleNextCheck(ctx context.Context, id uint64, at time.Time, failed bool) error
}

type Reconciler interface {
	Reconcile(ctx context.Context, id uint64) (reconciler.Result, error)
}

type Refresher struct {
	repo    Repository
	rec     Reconciler
	planner *Planner
	logger  *zap.Logger
	now     func() time.Time

	schedule    string
	batchSize   int
	concurrency int
	lease       time.Duration

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalRequests       atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, rec Reconciler, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		repo: repo, rec: rec, logger: logger,
		planner:           NewPlanner(DefaultPlannerConfig(), nil),
		now:               time.Now,
		schedule:          DefaultSchedule,
		batchSize:         100,
		concurrency:       10,
		lease:             120 * time.Second,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (r *Refresher) WithSettings(schedule string, batchSize, concurrency int, lease time.Duration) *Refresher {
	if schedule != "" {
		r.schedule = schedule
	}
	if batchSize > 0 {
		r.batchSize = batchSize
	}
	if concurrency > 0 {
		r.concurrency = concurrency
	}
	if lease > 0 {
		r.lease = lease
	}
	return r
}

func (r *Refresher) WithPlanner(cfg PlannerConfig) *Refresher {
	r.planner = NewPlanner(cfg, nil)
	return r
}

// Trigger forces an immediate cycle (best-effort, non-blocking).
func (r *Refresher) Trigger() {
	r.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalRequests  int64      `json:"totalRequests"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (r *Refresher) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalClaimed:   r.totalClaimed.Load(),
		TotalProcessed: r.totalProcessed.Load(),
		TotalRequests:  r.totalRequests.Load(),
		TotalErrors:    r.totalErrors.Load(),
		InFlight:       r.inFlight.Load(),
	}
	if n := r.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := r.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

// Run cycles on the cron schedule and on Trigger until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(r.schedule, r.Trigger); err != nil {
		return errors.Wrapf(err, "parse schedule %q", r.schedule)
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.triggerCh:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce claims one batch of due shipments and reconciles it.
func (r *Refresher) RunOnce(ctx context.Context) int {
	now := r.now().UTC()
	r.lastCycleUnixNano.Store(now.UnixNano())

	items, err := r.repo.ClaimDueShipments(ctx, now, r.batchSize, r.lease)
	if err != nil {
		r.logger.Error("claim due shipments", zap.Error(err))
		r.setLastError(err)
		return 0
	}
	r.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, sh := range items {
		sem <- struct{}{}
		wg.Add(1)
		r.inFlight.Add(1)
		go func(sh models.Shipment) {
			defer func() {
				r.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := r.processOne(ctx, sh.ID); err != nil {
				r.totalErrors.Add(1)
				r.setLastError(err)
				r.logger.Error("refresh shipment", zap.Uint64("shipment_id", sh.ID), zap.Error(err))
			}
			r.totalProcessed.Add(1)
		}(sh)
	}
	wg.Wait()
	return len(items)
}

// HandleRequest обрабатывает ReconcileRequested из Kafka. Нечитаемые сообщения и
// неизвестные поставки подтверждаются, чтобы не блокировать партицию.
func (r *Refresher) HandleRequest(ctx context.Context, key, value []byte) error {
	r.totalRequests.Add(1)
	msg, err := messages.DecodeReconcileRequested(value)
	if err != nil {
		r.logger.Warn("skip reconcile request", zap.ByteString("key", key), zap.Error(err))
		return nil
	}
	return r.processOne(ctx, msg.ShipmentID)
}

func (r *Refresher) processOne(ctx context.Context, id uint64) error {
	res, err := r.rec.Reconcile(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		r.logger.Info("shipment is gone", zap.Uint64("shipment_id", id))
		return nil
	}
	if err != nil {
		return err
	}

	var delay time.Duration
	failed := false
	switch res.Outcome {
	case reconciler.OutcomeReconciled:
		delay = r.planner.NextCheckDelay(res.Shipment.LastStatusCategory)
	case reconciler.OutcomeNoTrackingNumber:
		delay = r.planner.NoTrackingDelay()
	default:
		failed = true
		delay = r.planner.BackoffDelay(res.Shipment.CheckFailCount + 1)
	}

	if err := r.repo.ScheduleNextCheck(ctx, id, r.now().UTC().Add(delay), failed); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "schedule next check")
	}
	return nil
}

func (r *Refresher) setLastError(err error) {
	r.lastErrorMu.Lock()
	r.lastError = err.Error()
	r.lastErrorMu.Unlock()
}
