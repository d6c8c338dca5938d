package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/BearBump/ShipSync/config"
	shipmentsapi "github.com/BearBump/ShipSync/internal/api/shipments_api"
	"github.com/BearBump/ShipSync/internal/bootstrap"
	"github.com/BearBump/ShipSync/internal/broker/kafka"
	"github.com/BearBump/ShipSync/internal/broker/messages"
	"github.com/BearBump/ShipSync/internal/logger"
	"github.com/BearBump/ShipSync/internal/models"
	"github.com/BearBump/ShipSync/internal/services/classifier"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
	Close() error
}

// cliEnv отделяет команды от инфраструктуры, чтобы их можно было гонять в тестах.
type cliEnv struct {
	loadDeps     func(ctx context.Context, configPath string) (*bootstrap.Deps, error)
	newPublisher func(cfg *config.Config) (publisher, error)
}

func defaultEnv() cliEnv {
	return cliEnv{
		loadDeps: func(ctx context.Context, configPath string) (*bootstrap.Deps, error) {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return nil, err
			}
			// в CLI логируем только предупреждения, вывод команды идёт в stdout
			cfg.Log.Level = "warn"
			cfg.Log.Encoding = "console"
			log, err := logger.New(cfg.Log)
			if err != nil {
				return nil, err
			}
			return bootstrap.Build(ctx, cfg, log, bootstrap.DefaultFactories())
		},
		newPublisher: func(cfg *config.Config) (publisher, error) {
			brokers := cfg.Kafka.Brokers()
			if len(brokers) == 0 {
				return nil, errors.New("kafka is not configured")
			}
			return kafka.NewProducer(brokers), nil
		},
	}
}

func newRootCmd(env cliEnv) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "shipctl",
		Short:         "ShipSync operator tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("configPath"), "path to config.yaml")

	withDeps := func(cmd *cobra.Command, fn func(ctx context.Context, d *bootstrap.Deps) error) error {
		if configPath == "" {
			return errors.New("--config or configPath env var is required")
		}
		ctx := cmd.Context()
		d, err := env.loadDeps(ctx, configPath)
		if err != nil {
			return err
		}
		defer d.Close()
		return fn(ctx, d)
	}

	root.AddCommand(classifyCmd())
	root.AddCommand(reconcileCmd(withDeps))
	root.AddCommand(historyCmd(withDeps))
	root.AddCommand(requestCmd(withDeps, env))
	return root
}

type classifyOutput struct {
	Category models.StatusCategory `json:"category"`
	Source   classifier.Source     `json:"source"`
	Rule     string                `json:"rule,omitempty"`
}

func classifyCmd() *cobra.Command {
	var code, label string
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Show which category a raw courier status maps to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := classifier.Explain(models.RawStatus{Code: code, Label: label})
			return writeJSON(cmd.OutOrStdout(), classifyOutput{Category: m.Category, Source: m.Source, Rule: m.Rule})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "courier status code")
	cmd.Flags().StringVar(&label, "label", "", "courier status label")
	return cmd
}

type depsRunner func(cmd *cobra.Command, fn func(ctx context.Context, d *bootstrap.Deps) error) error

func reconcileCmd(withDeps depsRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <id>",
		Short: "Reconcile one shipment against its courier feed now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withDeps(cmd, func(ctx context.Context, d *bootstrap.Deps) error {
				res, err := d.Reconciler.Reconcile(ctx, id)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), shipmentsapi.NewReconcileResponse(res))
			})
		},
	}
}

func historyCmd(withDeps depsRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Print the stored status history without contacting the courier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withDeps(cmd, func(ctx context.Context, d *bootstrap.Deps) error {
				sh, h, err := d.Reconciler.Snapshot(ctx, id)
				if err != nil {
					return err
				}
				if h == nil {
					h = models.StatusHistory{}
				}
				return writeJSON(cmd.OutOrStdout(), models.ShipmentView{Shipment: sh, History: h})
			})
		},
	}
}

// requestCmd ставит сверку в очередь воркера через Kafka.
func requestCmd(withDeps depsRunner, env cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "request <id>",
		Short: "Ask ship-worker to reconcile a shipment out of schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withDeps(cmd, func(ctx context.Context, d *bootstrap.Deps) error {
				p, err := env.newPublisher(d.Config)
				if err != nil {
					return err
				}
				defer func() { _ = p.Close() }()

				msg := messages.ReconcileRequested{ShipmentID: id}
				b, err := msg.Encode()
				if err != nil {
					return err
				}
				if err := p.Publish(ctx, d.Config.Kafka.ReconcileRequestedTopicName, msg.Key(), b); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "requested reconcile of shipment %d\n", id)
				return err
			})
		},
	}
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Errorf("invalid shipment id %q", s)
	}
	return id, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
