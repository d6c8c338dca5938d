// Package reconciler refreshes a shipment from its courier feed and merges the
// result into the shipment's persisted history.
//
// Reconciliations of one shipment never interleave. Inside a process concurrent
// callers for the same id share the in-flight result; across processes the
// store rejects a save built on a stale load and the merge is redone on fresh
// state. Different ids run in parallel.
package reconciler

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/BearBump/ShipSync/internal/broker/messages"
	"github.com/BearBump/ShipSync/internal/cache"
	"github.com/BearBump/ShipSync/internal/integrations/courier"
	"github.com/BearBump/ShipSync/internal/models"
	"github.com/BearBump/ShipSync/internal/services/history"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultGatewayTimeout = 10 * time.Second
	maxSaveAttempts       = 5
)

type Store interface {
	Load(ctx context.Context, id uint64) (models.Shipment, models.StatusHistory, error)
	// Save must persist the shipment status fields and the history as one unit,
	// and must fail with models.ErrVersionConflict when sh.Version is not the
	// stored version.
	Save(ctx context.Context, id uint64, sh models.Shipment, h models.StatusHistory) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Outcome string

const (
	OutcomeReconciled         Outcome = "reconciled"
	OutcomeNoTrackingNumber   Outcome = "no_tracking_number"
	OutcomeGatewayUnavailable Outcome = "gateway_unavailable"
)

type Result struct {
	Outcome  Outcome
	Shipment models.Shipment
	History  models.StatusHistory
	// Reason is set only for OutcomeGatewayUnavailable.
	Reason *courier.GatewayError
	// Added: события, которых не было в истории до сверки.
	Added   models.StatusHistory
	Skipped []history.SkippedRecord
	Meta    *models.BatchMeta
	// Shared is true when one in-flight reconciliation answered several callers.
	Shared bool
}

// Stale reports that the returned state is the last known one, not a fresh refresh.
func (r Result) Stale() bool {
	return r.Outcome != OutcomeReconciled
}

func (r Result) clone() Result {
	out := r
	out.Shipment = r.Shipment.Clone()
	out.History = r.History.Clone()
	out.Added = r.Added.Clone()
	if r.Skipped != nil {
		out.Skipped = append([]history.SkippedRecord(nil), r.Skipped...)
	}
	if r.Meta != nil {
		m := *r.Meta
		out.Meta = &m
	}
	if r.Reason != nil {
		reason := *r.Reason
		out.Reason = &reason
	}
	return out
}

type Stats struct {
	Reconciled         int64 `json:"reconciled"`
	NoTracking         int64 `json:"no_tracking"`
	GatewayUnavailable int64 `json:"gateway_unavailable"`
	SkippedEvents      int64 `json:"skipped_events"`
	Shared             int64 `json:"shared"`
	SaveConflicts      int64 `json:"save_conflicts"`
}

type Service struct {
	store  Store
	gw     courier.Gateway
	logger *zap.Logger
	tracer trace.Tracer

	publisher Publisher
	topic     string

	cache    cache.BytesCache
	cacheTTL time.Duration

	gatewayTimeout time.Duration
	now            func() time.Time

	group   singleflight.Group
	waiters *waiters

	reconciled  atomic.Int64
	noTracking  atomic.Int64
	unavailable atomic.Int64
	skipped     atomic.Int64
	shared      atomic.Int64
	conflicts   atomic.Int64
}

func New(store Store, gw courier.Gateway, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:          store,
		gw:             gw,
		logger:         logger,
		tracer:         otel.Tracer("github.com/BearBump/ShipSync/internal/services/reconciler"),
		gatewayTimeout: defaultGatewayTimeout,
		now:            time.Now,
		waiters:        newWaiters(),
	}
}

// WithPublisher включает уведомление ShipmentReconciled в topic.
func (s *Service) WithPublisher(p Publisher, topic string) *Service {
	s.publisher = p
	s.topic = topic
	return s
}

// WithCache refreshes the shipment view in c after every successful reconciliation.
func (s *Service) WithCache(c cache.BytesCache, ttl time.Duration) *Service {
	s.cache = c
	s.cacheTTL = ttl
	return s
}

func (s *Service) WithGatewayTimeout(d time.Duration) *Service {
	if d > 0 {
		s.gatewayTimeout = d
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Reconcile fetches the courier feed for the shipment and merges it into its
// history. The only error outcomes are an unknown id (models.ErrNotFound) and
// store failures; everything else is reported through Result.Outcome.
//
// A shared flight is not tied to the caller that started it: it is cancelled
// only when every caller waiting on it has cancelled.
func (s *Service) Reconcile(ctx context.Context, id uint64) (Result, error) {
	key := strconv.FormatUint(id, 10)
	leave := s.waiters.join(key, ctx)
	defer leave()

	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.reconcile(ctx, key, id)
	})
	if err != nil {
		return Result{}, err
	}
	res := v.(Result)
	if shared {
		s.shared.Add(1)
		res = res.clone()
		res.Shared = true
	}
	return res, nil
}

// Snapshot returns the persisted state without contacting the courier.
func (s *Service) Snapshot(ctx context.Context, id uint64) (models.Shipment, models.StatusHistory, error) {
	sh, h, err := s.store.Load(ctx, id)
	if err != nil {
		return models.Shipment{}, nil, errors.Wrap(err, "load shipment")
	}
	return sh, h, nil
}

func (s *Service) Stats() Stats {
	return Stats{
		Reconciled:         s.reconciled.Load(),
		NoTracking:         s.noTracking.Load(),
		GatewayUnavailable: s.unavailable.Load(),
		SkippedEvents:      s.skipped.Load(),
		Shared:             s.shared.Load(),
		SaveConflicts:      s.conflicts.Load(),
	}
}

func (s *Service) reconcile(ctx context.Context, key string, id uint64) (Result, error) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	s.waiters.start(key, cancel)
	defer s.waiters.finish(key)

	ctx, span := s.tracer.Start(ctx, "reconciler.Reconcile",
		trace.WithAttributes(attribute.Int64("shipment.id", int64(id))))
	defer span.End()
	// Хранилище не видит отмену: она действует только на вызов курьера.
	storeCtx := context.WithoutCancel(ctx)

	sh, h, err := s.store.Load(storeCtx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load shipment")
		return Result{}, errors.Wrap(err, "load shipment")
	}

	if !sh.HasTrackNumber() {
		s.noTracking.Add(1)
		span.SetAttributes(attribute.String("outcome", string(OutcomeNoTrackingNumber)))
		return Result{Outcome: OutcomeNoTrackingNumber, Shipment: sh, History: h}, nil
	}

	batch, err := s.fetch(ctx, key, *sh.TrackNumber)
	if err != nil {
		reason := courier.Classify(err)
		s.unavailable.Add(1)
		s.logger.Warn("courier unavailable",
			zap.Uint64("shipment_id", id),
			zap.String("track_number", *sh.TrackNumber),
			zap.String("reason", string(reason.Class)),
			zap.Error(err),
		)
		span.SetAttributes(
			attribute.String("outcome", string(OutcomeGatewayUnavailable)),
			attribute.String("reason", string(reason.Class)),
		)
		return Result{Outcome: OutcomeGatewayUnavailable, Shipment: sh, History: h, Reason: reason}, nil
	}

	var (
		next   models.Shipment
		merged history.Result
	)
	for attempt := 1; ; attempt++ {
		next, merged = s.apply(sh, h, batch)
		err = s.store.Save(storeCtx, id, next, merged.History)
		if err == nil {
			next.Version++
			break
		}
		if !errors.Is(err, models.ErrVersionConflict) || attempt == maxSaveAttempts {
			span.RecordError(err)
			span.SetStatus(codes.Error, "save shipment")
			return Result{}, errors.Wrap(err, "save shipment")
		}
		s.conflicts.Add(1)
		s.logger.Debug("shipment saved concurrently, merging again",
			zap.Uint64("shipment_id", id),
			zap.Int("attempt", attempt),
		)
		sh, h, err = s.store.Load(storeCtx, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "reload shipment")
			return Result{}, errors.Wrap(err, "reload shipment")
		}
	}

	for _, sk := range merged.Skipped {
		s.logger.Warn("malformed event skipped",
			zap.Uint64("shipment_id", id),
			zap.Int("index", sk.Index),
			zap.String("timestamp", sk.Timestamp),
			zap.String("reason", sk.Reason),
		)
	}
	s.skipped.Add(int64(len(merged.Skipped)))
	s.reconciled.Add(1)
	span.SetAttributes(
		attribute.String("outcome", string(OutcomeReconciled)),
		attribute.Int("events.added", len(merged.Added)),
	)
	s.logger.Info("shipment reconciled",
		zap.Uint64("shipment_id", id),
		zap.String("category", string(next.LastStatusCategory)),
		zap.Int("added", len(merged.Added)),
		zap.Int("skipped", len(merged.Skipped)),
	)

	s.notify(storeCtx, next, merged.History, merged.Added)

	return Result{
		Outcome:  OutcomeReconciled,
		Shipment: next,
		History:  merged.History,
		Added:    merged.Added,
		Skipped:  merged.Skipped,
		Meta:     batch.Meta,
	}, nil
}

// apply merges batch into the loaded state. It is pure, so it can be redone on
// a fresh load after a version conflict.
func (s *Service) apply(sh models.Shipment, h models.StatusHistory, batch models.TrackingBatch) (models.Shipment, history.Result) {
	merged := history.Merge(sh.Current(), h, batch)

	next := sh.Clone()
	next.LastStatusCategory = merged.Current.Category
	next.LastStatusText = merged.Current.Text
	next.LastLocation = merged.Current.Location
	updatedAt := s.now().UTC().Truncate(time.Microsecond)
	if sh.LastUpdatedAt != nil && sh.LastUpdatedAt.After(updatedAt) {
		updatedAt = *sh.LastUpdatedAt
	}
	next.LastUpdatedAt = &updatedAt
	return next, merged
}

// fetch is the only step that honours cancellation: once every caller waiting
// on the flight is gone it fails, even if the courier already answered.
func (s *Service) fetch(ctx context.Context, key, trackNumber string) (models.TrackingBatch, error) {
	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	batch, err := s.gw.FetchTracking(gctx, trackNumber)
	if aerr := s.waiters.abandoned(key); aerr != nil {
		return models.TrackingBatch{}, aerr
	}
	if err != nil {
		return models.TrackingBatch{}, err
	}
	return batch, nil
}

// notify is best effort: failures are logged and never change the outcome.
func (s *Service) notify(ctx context.Context, sh models.Shipment, h models.StatusHistory, added models.StatusHistory) {
	if s.cache != nil {
		b, err := json.Marshal(models.ShipmentView{Shipment: sh, History: h})
		if err == nil {
			err = s.cache.Set(ctx, cache.ShipmentViewKey(sh.ID), b, s.cacheTTL)
		}
		if err != nil {
			s.logger.Warn("refresh shipment cache", zap.Uint64("shipment_id", sh.ID), zap.Error(err))
		}
	}

	if s.publisher != nil && s.topic != "" {
		msg := messages.NewShipmentReconciled(sh, added)
		b, err := msg.Encode()
		if err == nil {
			err = s.publisher.Publish(ctx, s.topic, msg.Key(), b)
		}
		if err != nil {
			s.logger.Warn("publish shipment reconciled", zap.Uint64("shipment_id", sh.ID), zap.Error(err))
		}
	}
}
