package refresher

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/ShipSync/internal/integrations/courier"
	"github.com/BearBump/ShipSync/internal/integrations/courier/fake"
	"github.com/BearBump/ShipSync/internal/models"
	"github.com/BearBump/ShipSync/internal/services/reconciler"
	"github.com/BearBump/ShipSync/internal/storage/memstore"
	"github.com/stretchr/testify/require"
)

func create(t *testing.T, st *memstore.Store, track string) models.Shipment {
	t.Helper()
	sh, err := st.Create(context.Background(), models.ShipmentCreateInput{OriginLabel: "A", DestinationLabel: "B", TrackNumber: track})
	require.NoError(t, err)
	return sh
}

func TestRefresher_RunOnce_PlansByOutcome(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	gw := fake.New()
	rec := reconciler.New(st, gw, nil)

	delivered := create(t, st, "T-A")
	failing := create(t, st, "T-B")
	create(t, st, "")

	gw.SetBatch("T-A", models.TrackingBatch{Records: []models.RawStatus{{Timestamp: "2025-03-01T10:00:00Z", Label: "Вручено"}}})
	gw.SetError("T-B", courier.HTTPStatusError(http.StatusServiceUnavailable))

	now := time.Now().UTC().Add(time.Second)
	r := New(st, rec, nil).WithSettings("", 10, 2, time.Minute)
	r.now = func() time.Time { return now }

	require.Equal(t, 2, r.RunOnce(ctx))

	got, h, err := st.Load(ctx, delivered.ID)
	require.NoError(t, err)
	require.Len(t, h, 1)
	require.Equal(t, models.StatusDelivered, got.LastStatusCategory)
	require.Equal(t, now.Add(7*24*time.Hour), got.NextCheckAt)
	require.Zero(t, got.CheckFailCount)

	got, _, err = st.Load(ctx, failing.ID)
	require.NoError(t, err)
	require.Equal(t, int32(1), got.CheckFailCount)
	require.Equal(t, now.Add(5*time.Minute), got.NextCheckAt)
	require.Nil(t, got.LastUpdatedAt)

	// второй сбой подряд: следующая ступень backoff
	now = now.Add(10 * time.Minute)
	require.Equal(t, 1, r.RunOnce(ctx))
	got, _, _ = st.Load(ctx, failing.ID)
	require.Equal(t, int32(2), got.CheckFailCount)
	require.Equal(t, now.Add(15*time.Minute), got.NextCheckAt)

	stats := r.Stats()
	require.Equal(t, int64(3), stats.TotalClaimed)
	require.Equal(t, int64(3), stats.TotalProcessed)
	require.Zero(t, stats.TotalErrors)
	require.NotNil(t, stats.LastCycleAt)
}

type errRepo struct {
	calls atomic.Int64
	err   error
}

func (r *errRepo) ClaimDueShipments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.Shipment, error) {
	r.calls.Add(1)
	return nil, r.err
}

func (r *errRepo) ScheduleNextCheck(ctx context.Context, id uint64, at time.Time, failed bool) error {
	return nil
}

func TestRefresher_RunOnce_ClaimError(t *testing.T) {
	r := New(&errRepo{err: errors.New("db down")}, nil, nil)
	require.Zero(t, r.RunOnce(context.Background()))
	require.Equal(t, "db down", r.Stats().LastError)
}

type stubReconciler struct {
	res reconciler.Result
	err error
	ids []uint64
}

func (s *stubReconciler) Reconcile(ctx context.Context, id uint64) (reconciler.Result, error) {
	s.ids = append(s.ids, id)
	return s.res, s.err
}

func TestRefresher_HandleRequest(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	gw := fake.New()
	sh := create(t, st, "T-1")
	r := New(st, reconciler.New(st, gw, nil), nil)

	require.NoError(t, r.HandleRequest(ctx, []byte("1"), []byte(`{"shipment_id":1}`)))
	require.Equal(t, 1, gw.Calls("T-1"))
	got, _, _ := st.Load(ctx, sh.ID)
	require.NotNil(t, got.LastUpdatedAt)

	// мусор и неизвестные поставки подтверждаются без ошибки
	require.NoError(t, r.HandleRequest(ctx, nil, []byte(`garbage`)))
	require.NoError(t, r.HandleRequest(ctx, nil, []byte(`{"shipment_id":999}`)))
	require.Equal(t, int64(3), r.Stats().TotalRequests)

	failing := New(st, &stubReconciler{err: errors.New("db down")}, nil)
	require.Error(t, failing.HandleRequest(ctx, nil, []byte(`{"shipment_id":1}`)))
}

func TestRefresher_NoTrackingPlansLongDelay(t *testing.T) {
	st := memstore.New()
	sh := create(t, st, "")
	now := time.Now().UTC()
	rec := &stubReconciler{res: reconciler.Result{Outcome: reconciler.OutcomeNoTrackingNumber, Shipment: sh}}
	r := New(st, rec, nil)
	r.now = func() time.Time { return now }

	require.NoError(t, r.processOne(context.Background(), sh.ID))
	got, _, _ := st.Load(context.Background(), sh.ID)
	require.Equal(t, now.Add(24*time.Hour), got.NextCheckAt)
}

func TestRefresher_Run_TriggerAndStop(t *testing.T) {
	repo := &errRepo{}
	r := New(repo, &stubReconciler{}, nil).WithSettings("@every 1h", 1, 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.Trigger()
	require.Eventually(t, func() bool { return repo.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	require.NotNil(t, r.Stats().LastTriggerAt)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not stop")
	}
}

func TestRefresher_Run_BadSchedule(t *testing.T) {
	r := New(&errRepo{}, &stubReconciler{}, nil).WithSettings("every now and then", 0, 0, 0)
	require.Error(t, r.Run(context.Background()))
}
