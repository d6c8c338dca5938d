package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/ShipSync/config"
	shipmentsapi "github.com/BearBump/ShipSync/internal/api/shipments_api"
	"github.com/BearBump/ShipSync/internal/bootstrap"
	"github.com/BearBump/ShipSync/internal/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deps, err := bootstrap.Build(ctx, cfg, log, bootstrap.DefaultFactories())
	if err != nil {
		log.Fatal("bootstrap", zap.Error(err))
	}
	defer deps.Close()

	api := shipmentsapi.New(deps.Shipments, deps.Reconciler, log.Named("api"))
	err = runShipAPI(ctx, shipAPIOpts{
		httpAddr:    cfg.ShipSync.HTTPAddr,
		swaggerPath: os.Getenv("swaggerPath"),
	}, api, log)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("ship-api stopped", zap.Error(err))
	}
}
