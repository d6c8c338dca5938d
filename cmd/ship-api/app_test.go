package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	shipmentsapi "github.com/BearBump/ShipSync/internal/api/shipments_api"
	"github.com/BearBump/ShipSync/internal/integrations/courier/fake"
	"github.com/BearBump/ShipSync/internal/services/reconciler"
	"github.com/BearBump/ShipSync/internal/services/shipments"
	"github.com/BearBump/ShipSync/internal/storage/memstore"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAPI() *shipmentsapi.ShipmentsAPI {
	st := memstore.New()
	return shipmentsapi.New(shipments.New(st, nil, 0, nil), reconciler.New(st, fake.New(), nil), nil)
}

func TestRunShipAPI_ServesAndStops(t *testing.T) {
	dir := t.TempDir()
	sw := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := shipAPIOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: sw,
		onListen:    func(httpAddr string) { addrCh <- httpAddr },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- runShipAPI(ctx, opts, newTestAPI(), zap.NewNop()) }()
	base := "http://" + <-addrCh

	resp, err := http.Get(base + "/swagger.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "\"swagger\"")

	resp, err = http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(base+"/shipments", "application/json",
		strings.NewReader(`{"originLabel":"A","destinationLabel":"B","trackNumber":"T1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting server to stop")
	}
}

func TestRunShipAPI_SwaggerRequired(t *testing.T) {
	err := runShipAPI(context.Background(), shipAPIOpts{httpAddr: "127.0.0.1:0"}, newTestAPI(), zap.NewNop())
	require.Error(t, err)

	err = runShipAPI(context.Background(), shipAPIOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: filepath.Join(t.TempDir(), "missing.json"),
	}, newTestAPI(), zap.NewNop())
	require.ErrorContains(t, err, "swagger file not found")
}
