package emulatorv1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BearBump/ShipSync/internal/integrations/courier"
	"github.com/stretchr/testify/require"
)

func TestClient_FetchTracking_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/tracking/CDEK/102104", r.URL.Path)
		require.Equal(t, "k", r.URL.Query().Get("apiKey"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "track_number": "102104",
  "order_number": "A-7",
  "cost": 350.5,
  "events": [
    {"status_code":"CREATED","status_label":"","event_time":"2025-01-01T00:00:00Z"},
    {"status_code":"","status_label":"Принят в пункте выдачи","event_time":"2025-01-02T00:00:00Z","location":"Казань"}
  ]
}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "")
	b, err := c.FetchTracking(context.Background(), "102104")
	require.NoError(t, err)
	require.Len(t, b.Records, 2)
	require.Equal(t, "CREATED", b.Records[0].Code)
	require.Equal(t, "Казань", b.Records[1].Location)
	require.NotNil(t, b.Meta)
	require.Equal(t, "A-7", b.Meta.OrderNumber)
	require.Equal(t, "350.5", b.Meta.Cost)
}

func TestClient_FetchTracking_429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", "CDEK").FetchTracking(context.Background(), "123")
	require.Error(t, err)
	require.Equal(t, courier.ClassRateLimited, courier.Classify(err).Class)
}

func TestClient_FetchTracking_ForeignTrack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"track_number":"OTHER","events":[]}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", "CDEK").FetchTracking(context.Background(), "123")
	require.Equal(t, courier.ClassMalformed, courier.Classify(err).Class)
}
