package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lordmallam/orca/config"
	"github.com/lordmallam/orca/internal/channel"
	"github.com/lordmallam/orca/internal/metrics"
	"github.com/lordmallam/orca/logger"
	"github.com/lordmallam/orca/processor"
	"github.com/lordmallam/orca/reader/aisstream"
	"github.com/lordmallam/orca/reaper"
	"github.com/lordmallam/orca/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Orca.Name,
		"version": cfg.Orca.Version,
	}).Info("starting orca")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.InitCloudWatch(os.Getenv("AWS_REGION"), "Orca", cfg.Logging.DashboardName)
		logger.StartReport(ctx, log, 30*time.Second)
	}

	if cfg.Metrics.Enabled {
		metrics.Init(cfg.Metrics.Addr)
	}

	channels := channel.NewChannels(cfg.Channels.RawBuffer)
	defer channels.Close()

	go channels.StartMetricsReporting(ctx)

	db, err := writer.Open(cfg)
	if err != nil {
		log.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	defer db.Close()

	sink := writer.NewPostgresWriter(db)
	streamReader := aisstream.NewReader(cfg, channels)
	accumulator := processor.NewAccumulator(cfg, channels, sink)
	staleReaper := reaper.NewReaper(db, cfg)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := streamReader.Start(ctx); err != nil {
			log.WithError(err).Warn("aisstream reader failed to start")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := accumulator.Start(ctx); err != nil {
			log.WithError(err).Warn("accumulator failed to start")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := staleReaper.Start(ctx); err != nil {
			log.WithError(err).Warn("reaper failed to start")
		}
	}()

	time.Sleep(2 * time.Second)
	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	// Stop the feed first so the accumulator can drain what is queued and
	// flush it before the process exits.
	log.Info("stopping aisstream reader")
	streamReader.Stop()

	log.Info("stopping accumulator")
	accumulator.Stop()

	log.Info("stopping reaper")
	staleReaper.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("orca stopped")
}
