package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"HealthSentinel/internal/action"
	"HealthSentinel/internal/api"
	"HealthSentinel/internal/collector"
	"HealthSentinel/internal/config"
	"HealthSentinel/internal/engine"
	"HealthSentinel/internal/history"
	"HealthSentinel/internal/lock"
	"HealthSentinel/internal/logging"
	"HealthSentinel/internal/notifier"
	"HealthSentinel/internal/report"
	"HealthSentinel/internal/scheduler"
	"HealthSentinel/internal/telemetry"

	"go.uber.org/zap"
)

func main() {
	boot, _ := zap.NewProduction()

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		boot.Fatal("load config", zap.Error(err))
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		boot.Fatal("init logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("HealthSentinel starting...", zap.String("config", cfgPath))

	if err := cfg.Validate(); err != nil {
		logger.Fatal("config validation", zap.Error(err))
	}

	// Catalog first: an invalid catalog must stop startup
	catalog, err := action.LoadCatalog(cfg.Actions.CatalogPath)
	if err != nil {
		logger.Fatal("load action catalog", zap.Error(err))
	}

	src, err := collector.New(cfg.Source, cfg.Proxy, logger)
	if err != nil {
		logger.Fatal("init source", zap.Error(err))
	}
	logger.Info("data source ready", zap.String("source", src.Name()))

	store, err := history.Open(cfg.History, cfg.Database, logger)
	if err != nil {
		logger.Fatal("open history store", zap.Error(err))
	}
	defer store.Close()

	locker := lock.New(cfg.Redis, logger)
	defer locker.Close()

	keeper, err := report.NewKeeper(cfg.StateFile)
	if err != nil {
		logger.Fatal("load last run report", zap.Error(err))
	}

	metrics := telemetry.New()

	// Publishers: Kafka for downstream consumers, Telegram for operators
	var publishers notifier.Fanout
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := notifier.NewKafkaPublisher(cfg.Kafka, logger)
		if err != nil {
			logger.Fatal("init kafka publisher", zap.Error(err))
		}
		defer kp.Close()
		publishers = append(publishers, kp)
		logger.Info("kafka publisher enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	var tn *notifier.TelegramNotifier
	var sender notifier.Sender
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
		sender = tn
		publishers = append(publishers, notifier.NewDigestPublisher(tn, cfg.Telegram.MinSeverity))
	}

	deps := engine.Deps{
		Source:  src,
		Store:   store,
		Locker:  locker,
		Catalog: catalog,
		Metrics: metrics,
		Reports: keeper,
	}
	if len(publishers) > 0 {
		deps.Publisher = publishers
	}
	eng, err := engine.New(cfg, deps, logger)
	if err != nil {
		logger.Fatal("init engine", zap.Error(err))
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.NewScheduler(ctx, eng, store, sender, cfg.History.RetentionDays, logger)
	if err := sched.RegisterAll(cfg.Schedule.RunCron, cfg.Schedule.PruneCron); err != nil {
		logger.Fatal("register cron tasks", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		logger.Info("telegram polling started")
	}

	srv := api.NewServer(ctx, eng, store, metrics, logger)
	go func() {
		if err := srv.ListenAndServe(ctx, cfg.HTTP.Addr); err != nil {
			logger.Error("http server", zap.Error(err))
			cancel()
		}
	}()

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		logger.Info("RUN_ON_START enabled, executing scoring run now")
		go sched.RunNow()
	}

	logger.Info("HealthSentinel is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("shutdown signal received, stopping...")
	case <-ctx.Done():
	}
	cancel()
	logger.Info("HealthSentinel stopped")
}
