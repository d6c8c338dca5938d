package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/ShipSync/config"
	"github.com/BearBump/ShipSync/internal/cache"
	"github.com/BearBump/ShipSync/internal/integrations/courier"
	"github.com/BearBump/ShipSync/internal/integrations/courier/emulatorv1"
	"github.com/BearBump/ShipSync/internal/integrations/courier/fake"
	"github.com/BearBump/ShipSync/internal/integrations/courier/track24http"
	"github.com/BearBump/ShipSync/internal/models"
	"github.com/BearBump/ShipSync/internal/services/reconciler"
	"github.com/BearBump/ShipSync/internal/storage/memstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewGateway_SelectsAdapter(t *testing.T) {
	cfg := &config.Config{ShipSync: config.ShipSyncConfig{CourierBaseURL: "http://localhost:9000", CourierMode: "track24"}}
	_, ok := NewGateway(cfg).(*track24http.Client)
	require.True(t, ok)

	cfg.ShipSync.CourierMode = "emulatorv1"
	_, ok = NewGateway(cfg).(*emulatorv1.Client)
	require.True(t, ok)

	cfg.ShipSync.CourierMode = "unknown"
	_, ok = NewGateway(cfg).(*fake.Gateway)
	require.True(t, ok)

	// без base_url режим игнорируется
	cfg = &config.Config{ShipSync: config.ShipSyncConfig{CourierMode: "track24"}}
	_, ok = NewGateway(cfg).(*fake.Gateway)
	require.True(t, ok)
}

func TestDefaultFactories_OptionalInfra(t *testing.T) {
	f := DefaultFactories()
	cfg := &config.Config{}

	c, closeCache := f.NewCache(cfg)
	require.Nil(t, c)
	require.Nil(t, closeCache)

	p, closePub := f.NewPublisher(cfg)
	require.Nil(t, p)
	require.Nil(t, closePub)

	rl, _ := f.NewRateLimiter(cfg)
	require.Nil(t, rl)

	cfg.Kafka = config.KafkaConfig{Host: "localhost", Port: 9092}
	p, closePub = f.NewPublisher(cfg)
	require.NotNil(t, p)
	closePub()

	_, _, err := f.NewStore(context.Background(), &config.Config{ShipSync: config.ShipSyncConfig{Store: "sqlite"}})
	require.Error(t, err)
}

func TestPlannerConfig(t *testing.T) {
	cfg := &config.Config{ShipSync: config.ShipSyncConfig{NextCheckDeliveredSeconds: 60, Backoff2Seconds: 5}}
	pc := PlannerConfig(cfg)
	require.Equal(t, time.Minute, pc.DeliveredDelay)
	require.Equal(t, 5*time.Second, pc.Backoff2)
	require.Zero(t, pc.ActiveMinDelay)
}

type countingLimiter struct{ calls int }

func (l *countingLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	l.calls++
	return true, 1, nil
}

func TestBuild_MemoryStoreWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{
		Redis: config.RedisConfig{Addr: mr.Addr()},
		ShipSync: config.ShipSyncConfig{
			Store:                     StoreMemory,
			ViewCacheTTLSeconds:       60,
			GatewayRateLimitPerMinute: 10,
			CourierName:               "CDEK",
		},
	}
	cfg.ApplyDefaults()

	gw := fake.New()
	rl := &countingLimiter{}
	closed := 0
	f := DefaultFactories()
	f.NewGateway = func(*config.Config) courier.Gateway { return gw }
	f.NewRateLimiter = func(*config.Config) (courier.RateLimiter, func()) { return rl, func() { closed++ } }

	d, err := Build(context.Background(), cfg, nil, f)
	require.NoError(t, err)
	defer d.Close()

	_, ok := d.Store.(*memstore.Store)
	require.True(t, ok)

	ctx := context.Background()
	sh, err := d.Shipments.Create(ctx, models.ShipmentCreateInput{OriginLabel: "A", DestinationLabel: "B", TrackNumber: "T1"})
	require.NoError(t, err)

	res, err := d.Reconciler.Reconcile(ctx, sh.ID)
	require.NoError(t, err)
	require.Equal(t, reconciler.OutcomeReconciled, res.Outcome)
	require.Equal(t, 1, rl.calls)
	require.Equal(t, 1, gw.Calls("T1"))

	// сверка обновила снимок в redis
	require.True(t, mr.Exists("shipsync:"+cache.ShipmentViewKey(sh.ID)))

	d.Close()
	require.Equal(t, 1, closed)
}

func TestBuild_StoreError(t *testing.T) {
	f := DefaultFactories()
	_, err := Build(context.Background(), &config.Config{ShipSync: config.ShipSyncConfig{Store: "nope"}}, nil, f)
	require.ErrorContains(t, err, "open store")
}
