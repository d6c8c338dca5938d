package shipments_api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BearBump/ShipSync/internal/integrations/courier"
	"github.com/BearBump/ShipSync/internal/integrations/courier/fake"
	"github.com/BearBump/ShipSync/internal/models"
	"github.com/BearBump/ShipSync/internal/services/reconciler"
	"github.com/BearBump/ShipSync/internal/services/shipments"
	"github.com/BearBump/ShipSync/internal/storage/memstore"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type env struct {
	srv *httptest.Server
	gw  *fake.Gateway
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memstore.New()
	gw := fake.New()
	api := New(shipments.New(st, nil, 0, nil), reconciler.New(st, gw, nil), nil)

	r := chi.NewRouter()
	api.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &env{srv: srv, gw: gw}
}

func (e *env) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestShipmentsAPI_CRUD(t *testing.T) {
	e := newEnv(t)

	resp, body := e.do(t, http.MethodPost, "/shipments", `{"originLabel":"Склад","destinationLabel":"ПВЗ"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.EqualValues(t, 1, body["id"])
	require.Equal(t, "CREATED", body["lastStatusCategory"])
	require.Equal(t, models.ManualStatusText, body["lastStatusText"])
	require.NotContains(t, body, "trackNumber")

	resp, body = e.do(t, http.MethodGet, "/shipments/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []any{}, body["history"])

	resp, body = e.do(t, http.MethodPut, "/shipments/1/track-number", `{"trackNumber":"102104"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "102104", body["trackNumber"])

	resp, body = e.do(t, http.MethodGet, "/shipments", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["shipments"], 1)

	resp, _ = e.do(t, http.MethodDelete, "/shipments/1", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = e.do(t, http.MethodGet, "/shipments/1", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "shipment not found", body["error"])
}

func TestShipmentsAPI_BadRequests(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.do(t, http.MethodPost, "/shipments", `{"originLabel":"","destinationLabel":"B"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/shipments", `{`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/shipments/abc", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/shipments/0/reconcile", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPut, "/shipments/7/track-number", `{"trackNumber":"X"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestShipmentsAPI_Reconcile(t *testing.T) {
	e := newEnv(t)
	e.do(t, http.MethodPost, "/shipments", `{"originLabel":"A","destinationLabel":"B"}`)

	// без трек-номера: не ошибка, а устаревшее состояние
	resp, body := e.do(t, http.MethodPost, "/shipments/1/reconcile", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no_tracking_number", body["outcome"])
	require.Equal(t, true, body["stale"])
	require.Equal(t, 0, e.gw.TotalCalls())

	e.do(t, http.MethodPut, "/shipments/1/track-number", `{"trackNumber":"102104"}`)
	e.gw.SetBatch("102104", models.TrackingBatch{Records: []models.RawStatus{
		{Timestamp: "2025-03-01T10:00:00Z", Code: "CREATED"},
		{Timestamp: "2025-03-02T10:00:00Z", Label: "Принят в пункте выдачи"},
	}})
	resp, body = e.do(t, http.MethodPost, "/shipments/1/reconcile", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "reconciled", body["outcome"])
	require.Equal(t, false, body["stale"])
	require.Len(t, body["history"], 2)
	require.EqualValues(t, 2, body["added"])
	require.NotContains(t, body, "reason")

	e.gw.SetError("102104", courier.HTTPStatusError(http.StatusBadGateway))
	resp, body = e.do(t, http.MethodPost, "/shipments/1/reconcile", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "gateway_unavailable", body["outcome"])
	require.Equal(t, true, body["stale"])
	require.Len(t, body["history"], 2)
	reason := body["reason"].(map[string]any)
	require.Equal(t, "http_status", reason["class"])
	require.EqualValues(t, 502, reason["statusCode"])

	resp, _ = e.do(t, http.MethodPost, "/shipments/99/reconcile", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type failingService struct{ ShipmentsService }

func (failingService) List(ctx context.Context) ([]models.Shipment, error) {
	return nil, errors.New("db down")
}

func TestShipmentsAPI_InternalError(t *testing.T) {
	r := chi.NewRouter()
	New(failingService{}, nil, nil).Routes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/shipments")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
