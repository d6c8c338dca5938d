package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/ShipSync/config"
	"github.com/BearBump/ShipSync/internal/services/reconciler"
	"github.com/BearBump/ShipSync/internal/services/refresher"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type workerHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	refresher  *refresher.Refresher
	reconciler *reconciler.Service
	cfg        *config.Config
	logger     *zap.Logger
}

type workerStats struct {
	Refresher  refresher.Stats  `json:"refresher"`
	Reconciler reconciler.Stats `json:"reconciler"`
}

func newWorkerRouter(opts workerHTTPOpts) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(workerStats{
			Refresher:  opts.refresher.Stats(),
			Reconciler: opts.reconciler.Stats(),
		})
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		s := opts.cfg.ShipSync
		// без секретов: только настройки расписания
		out := map[string]any{
			"refreshSchedule":           s.RefreshSchedule,
			"refreshBatchSize":          s.RefreshBatchSize,
			"refreshConcurrency":        s.RefreshConcurrency,
			"refreshLeaseSeconds":       s.RefreshLeaseSeconds,
			"gatewayTimeoutSeconds":     s.GatewayTimeoutSeconds,
			"gatewayRateLimitPerMinute": s.GatewayRateLimitPerMinute,
			"courierMode":               s.CourierMode,
			"courierName":               s.CourierName,
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		opts.refresher.Trigger()
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})
	return r
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8081"
	}
	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newWorkerRouter(opts), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	opts.logger.Info("worker HTTP listening", zap.String("addr", lis.Addr().String()))
	err = srv.Serve(lis)
	if err == http.ErrServerClosed {
		return ctx.Err()
	}
	return err
}
