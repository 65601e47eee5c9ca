package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Krchnk/valutatrade-hub/internal/accounts"
	"github.com/Krchnk/valutatrade-hub/internal/apperrors"
	"github.com/Krchnk/valutatrade-hub/internal/cli"
	"github.com/Krchnk/valutatrade-hub/internal/config"
	"github.com/Krchnk/valutatrade-hub/internal/currency"
	"github.com/Krchnk/valutatrade-hub/internal/events"
	"github.com/Krchnk/valutatrade-hub/internal/handlers"
	"github.com/Krchnk/valutatrade-hub/internal/ingestion"
	"github.com/Krchnk/valutatrade-hub/internal/ledger"
	"github.com/Krchnk/valutatrade-hub/internal/logging"
	"github.com/Krchnk/valutatrade-hub/internal/metrics"
	"github.com/Krchnk/valutatrade-hub/internal/rates"
	"github.com/Krchnk/valutatrade-hub/internal/scheduler"
	"github.com/Krchnk/valutatrade-hub/internal/storages"
	"github.com/Krchnk/valutatrade-hub/internal/storages/jsonfile"
	"github.com/Krchnk/valutatrade-hub/internal/storages/postgres"
	"github.com/Krchnk/valutatrade-hub/internal/trading"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("c", "config.json", "path to config file")
	envPath := flag.String("env", ".env", "path to env file")
	serve := flag.Bool("serve", false, "run the HTTP API instead of the shell")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath, *envPath)
	if err != nil {
		if errors.Is(err, apperrors.ErrConfigMalformed) {
			fmt.Fprintln(os.Stderr, "Error: "+apperrors.Message(err))
		}
		logrus.WithError(err).Fatal("failed to load config")
	}

	logger, logCloser, err := logging.New(cfg.Log, *serve)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open log file")
	}
	defer logCloser.Close()
	logger.WithFields(logrus.Fields{
		"storage":  cfg.StorageDriver,
		"base":     cfg.Rates.BaseCurrency,
		"ttl":      cfg.Rates.TTL.String(),
		"interval": cfg.Rates.UpdateInterval.String(),
	}).Info("configuration loaded")

	store, err := openStorage(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open storage")
	}
	defer store.Close()

	registry := currency.Default()
	if _, err := registry.Get(cfg.Rates.BaseCurrency); err != nil {
		logger.WithError(err).Fatal("unsupported base currency")
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	publisher := events.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	defer publisher.Close()

	repo := ledger.NewRepository(store, logger)
	cache := rates.NewCache(store, cfg.Rates.TTL, logger)
	history := rates.NewHistory(store, rates.DefaultHistoryLimit, logger)

	updater := ingestion.NewUpdater(cache, history, registry, ingestion.DefaultProviders(cfg, registry, logger), logger)
	updater.SetMetrics(m)
	updater.SetPublisher(publisher)

	engine := trading.NewEngine(registry, cache, repo, cfg.Rates.BaseCurrency, logger)
	engine.SetMetrics(m)
	engine.SetPublisher(publisher)

	sched := scheduler.New(updater.Refresh, cfg.Rates.UpdateInterval, logger)
	defer sched.Stop()

	acc := accounts.NewService(repo, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve {
		sched.Start()
		h := handlers.NewHandler(acc, engine, cache, updater, cfg.JWTSecret, logger)
		router := handlers.NewRouter(h, m, reg, nil)
		logger.WithField("port", cfg.HTTPPort).Info("starting HTTP server")
		if err := router.Run(cfg.HTTPPort); err != nil {
			logger.WithError(err).Error("failed to run server")
			return 1
		}
		return 0
	}

	app := cli.New(cli.Deps{
		Accounts:  acc,
		Engine:    engine,
		Cache:     cache,
		Updater:   updater,
		Scheduler: sched,
		Registry:  registry,
	}, os.Stdout, os.Stderr, logger)

	if flag.NArg() > 0 {
		return int(app.Execute(ctx, strings.Join(flag.Args(), " ")))
	}
	if err := app.Run(ctx, os.Stdin); err != nil {
		logger.WithError(err).Error("failed to read input")
		return 1
	}
	return 0
}

func openStorage(cfg config.Config, logger logrus.FieldLogger) (storages.Storage, error) {
	if cfg.StorageDriver == "postgres" {
		return postgres.NewStorage(cfg.DBConfig, logger)
	}
	return jsonfile.NewStorage(cfg.DataDir, logger)
}
