// Package main is the entry point for the FreshSaver flow engine: the
// automation runtime that walks user-authored flows over kitchen inventory,
// serves the flow editor API, and runs the periodic batch evaluator.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/config"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/credstore"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/delivery"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/engine"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/flowstore"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/gateway"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/inventory"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/ledger"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/metric"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/natsclient"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/recipe"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/scheduler"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "flowengine"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// CLI overrides beat both file and environment
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	logger.Info("Starting flow engine",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	signalCtx, signalCancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	registry := metric.NewRegistry()

	natsClient, err := connectNATS(signalCtx, cfg, logger, registry)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := natsClient.Close(closeCtx); err != nil {
			logger.Warn("NATS close failed", "error", err)
		}
	}()

	stores, err := buildStores(signalCtx, natsClient)
	if err != nil {
		return err
	}
	defer stores.credentials.Close()

	eng, err := buildEngine(cfg, stores, registry, logger)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	if cliCfg.RunOnce {
		summary, err := eng.RunBatch(signalCtx)
		if err != nil {
			return fmt.Errorf("batch run: %w", err)
		}
		logger.Info("Batch run finished",
			"matched", summary.Matched, "completed", summary.Completed, "failed", summary.Failed)
		return nil
	}

	return serve(signalCtx, cfg, eng, stores, registry, logger)
}

// connectNATS creates the client and establishes the connection
func connectNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger, registry *metric.Registry) (*natsclient.Client, error) {
	natsClient, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithLogger(logger),
		natsclient.WithReconnect(cfg.NATS.MaxReconnects, cfg.NATS.ReconnectWait.Std()),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := natsClient.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	registry.Core.RecordNATSStatus(true)

	return natsClient, nil
}

// stores bundles the KV-backed persistence layers
type stores struct {
	flows       *flowstore.Store
	items       *inventory.Store
	ledger      *ledger.Store
	credentials *credstore.Store
}

func buildStores(ctx context.Context, natsClient *natsclient.Client) (*stores, error) {
	flows, err := flowstore.NewStore(ctx, natsClient)
	if err != nil {
		return nil, fmt.Errorf("create flow store: %w", err)
	}
	items, err := inventory.NewStore(ctx, natsClient)
	if err != nil {
		return nil, fmt.Errorf("create inventory store: %w", err)
	}
	ledgerStore, err := ledger.NewStore(ctx, natsClient)
	if err != nil {
		return nil, fmt.Errorf("create notification ledger: %w", err)
	}
	credentials, err := credstore.NewStore(ctx, natsClient)
	if err != nil {
		return nil, fmt.Errorf("create credential store: %w", err)
	}

	return &stores{
		flows:       flows,
		items:       items,
		ledger:      ledgerStore,
		credentials: credentials,
	}, nil
}

// recipeAdapter bridges the prompt-oriented engine contract to the
// request-oriented generator
type recipeAdapter struct {
	gen *recipe.Generator
}

func (a recipeAdapter) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	return a.gen.Generate(ctx, apiKey, recipe.Request{Prompt: prompt})
}

func buildEngine(cfg *config.Config, st *stores, registry *metric.Registry, logger *slog.Logger) (*engine.Engine, error) {
	collab := engine.Collaborators{
		Items:       st.items,
		Flows:       st.flows,
		Ledger:      st.ledger,
		Credentials: st.credentials,
		Recipes:     recipeAdapter{gen: recipe.NewGenerator(cfg.Recipe)},
		Webhooks:    delivery.NewWebhookClient(cfg.Webhook),
	}

	// Without a delivery provider the engine still runs; notification nodes
	// log and skip
	if cfg.Delivery.BaseURL != "" {
		messenger, err := delivery.NewMessenger(cfg.Delivery)
		if err != nil {
			return nil, err
		}
		collab.Notifier = messenger
	} else {
		logger.Warn("No delivery provider configured; sms and email nodes will be skipped")
	}

	return engine.New(collab,
		engine.WithLogger(logger),
		engine.WithStepBudget(cfg.Engine.StepBudget),
		engine.WithMetricsRegistry(registry),
	)
}

// serve runs the HTTP gateway and the batch scheduler until a shutdown signal
func serve(ctx context.Context, cfg *config.Config, eng *engine.Engine, st *stores, registry *metric.Registry, logger *slog.Logger) error {
	server, err := gateway.NewServer(cfg.HTTP, eng, st.flows, registry, logger)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Start(groupCtx)
	})

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(eng, cfg.Scheduler.Interval.Std(),
			scheduler.WithLogger(logger),
			scheduler.WithMetricsRegistry(registry),
		)
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		if err := sched.Start(groupCtx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
	} else {
		logger.Info("Batch scheduler disabled")
	}

	registry.Core.RecordServiceStatus(appName, 1)
	registry.Core.RecordHealthStatus(appName, true)
	logger.Info("Flow engine ready", "addr", cfg.HTTP.Addr)

	err = group.Wait()
	registry.Core.RecordServiceStatus(appName, 0)
	if err != nil && ctx.Err() == nil {
		return err
	}

	logger.Info("Flow engine shutdown complete")
	return nil
}
