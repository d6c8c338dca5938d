package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ShipSync/config"
	"github.com/BearBump/ShipSync/internal/bootstrap"
	"github.com/BearBump/ShipSync/internal/broker/kafka"
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

	opts := workerOpts{httpAddr: cfg.ShipSync.WorkerHTTPAddr}
	if brokers := cfg.Kafka.Brokers(); len(brokers) > 0 {
		consumer := kafka.NewConsumer(brokers, cfg.Kafka.ReconcileRequestedTopicName, cfg.ShipSync.KafkaConsumerGroup).
			WithLogger(log.Named("consumer")).
			WithRetry(3, time.Second)
		defer func() { _ = consumer.Close() }()
		opts.consumer = consumer
		log.Info("kafka consumer started",
			zap.String("topic", cfg.Kafka.ReconcileRequestedTopicName),
			zap.String("group", cfg.ShipSync.KafkaConsumerGroup))
	}

	if err := runShipWorker(ctx, cfg, deps, opts); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("ship-worker stopped", zap.Error(err))
	}
}
