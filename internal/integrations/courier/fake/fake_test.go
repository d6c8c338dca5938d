package fake

import (
	"context"
	"errors"
	"testing"

	"github.com/BearBump/ShipSync/internal/models"
	"github.com/stretchr/testify/require"
)

func TestGateway_Generated(t *testing.T) {
	g := New()
	b1, err := g.FetchTracking(context.Background(), "A1")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(b1.Records), 2)

	b2, err := g.FetchTracking(context.Background(), "A1")
	require.NoError(t, err)
	require.Equal(t, b1, b2)
	require.Equal(t, 2, g.Calls("A1"))
}

func TestGateway_Scripts(t *testing.T) {
	g := New()
	want := models.TrackingBatch{Records: []models.RawStatus{{Timestamp: "x", Label: "y"}}}
	g.SetBatch("B", want)
	got, err := g.FetchTracking(context.Background(), "B")
	require.NoError(t, err)
	require.Equal(t, want, got)

	boom := errors.New("boom")
	g.SetError("B", boom)
	_, err = g.FetchTracking(context.Background(), "B")
	require.ErrorIs(t, err, boom)
	require.Equal(t, 2, g.TotalCalls())
}

func TestGateway_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().FetchTracking(ctx, "A")
	require.ErrorIs(t, err, context.Canceled)
}
