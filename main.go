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

	"signalflow/api"
	"signalflow/archive"
	"signalflow/config"
	"signalflow/dashboard"
	"signalflow/logger"
	"signalflow/marketdata"
	"signalflow/metrics"
	"signalflow/models"
	"signalflow/store"
	"signalflow/stream"
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
		"service": cfg.Signalflow.Name,
		"version": cfg.Signalflow.Version,
		"env":     config.AppEnvironment(),
	}).Info("starting signalflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Init()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, "")
		interval := cfg.Metrics.CloudWatch.FlushInterval.Std()
		if interval <= 0 {
			interval = time.Minute
		}
		metrics.StartCloudWatchPublisher(ctx, interval)
	}

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	// Token precedence: config/env first, then the persisted token file.
	tokenStore := api.NewTokenStore(cfg.API.TokenFile)
	token := cfg.API.Token
	if token == "" {
		stored, err := tokenStore.Load()
		if err != nil {
			log.WithError(err).Warn("failed to read persisted API token")
		}
		token = stored
	} else if cfg.API.TokenFile != "" {
		if err := tokenStore.Save(token); err != nil {
			log.WithError(err).Warn("failed to persist API token")
		}
	}

	st := store.New(store.Capacities{
		Signals:         cfg.Buffers.Signals,
		MarketUpdates:   cfg.Buffers.MarketUpdates,
		ChannelMessages: cfg.Buffers.ChannelMessages,
		Transfers:       cfg.Buffers.Transfers,
		PriceHistory:    cfg.Buffers.PriceHistory,
	})

	apiClient := api.NewClient(api.Config{
		BaseURL:           cfg.API.BaseURL,
		Token:             token,
		Timeout:           cfg.API.Timeout.Std(),
		CacheTTL:          cfg.API.CacheTTL.Std(),
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		BurstSize:         cfg.API.BurstSize,
	})

	var (
		archiver  *archive.Archiver
		archiveCh chan models.Signal
	)
	if cfg.Archive.Enabled && cfg.Storage.S3.Enabled {
		buffer := cfg.Archive.ChannelBuffer
		if buffer <= 0 {
			buffer = 1000
		}
		archiveCh = make(chan models.Signal, buffer)
		archiver, err = archive.NewArchiver(cfg, archiveCh)
		if err != nil {
			log.WithError(err).Error("failed to create signal archiver")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("archive disabled; signals kept in memory only")
	}

	streamURL, err := stream.BuildStreamURL(cfg.API.BaseURL, cfg.Stream.URL, token)
	if err != nil {
		log.WithError(err).Error("failed to build stream URL")
		os.Exit(1)
	}

	var archiveSend chan<- models.Signal
	if archiveCh != nil {
		archiveSend = archiveCh
	}
	streamClient := stream.NewClient(stream.Options{
		URL:               streamURL,
		HeartbeatInterval: cfg.Stream.HeartbeatInterval.Std(),
		MaxAttempts:       cfg.Stream.Reconnect.MaxAttempts,
		BaseDelay:         cfg.Stream.Reconnect.BaseDelay.Std(),
		MaxDelay:          cfg.Stream.Reconnect.MaxDelay.Std(),
		Store:             st,
		Cache:             apiClient.Cache(),
		ArchiveCh:         archiveSend,
	})

	var fallback dashboard.OHLCFallback
	if cfg.MarketData.BinanceFallback {
		fallback = marketdata.NewClient(cfg.MarketData.QuoteAsset)
	}

	dash, err := dashboard.NewServer(cfg.Dashboard, log, st, streamClient, apiClient, fallback)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard server")
		os.Exit(1)
	}

	var wg sync.WaitGroup

	if archiver != nil {
		if err := archiver.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start signal archiver")
			os.Exit(1)
		}
	}

	if err := streamClient.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start stream client")
		os.Exit(1)
	}

	if dash != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dash.Run(ctx, cfg.Signalflow.Name, cfg.Signalflow.Version); err != nil {
				log.WithError(err).Warn("dashboard server exited with error")
			}
		}()
		log.WithFields(logger.Fields{"address": dash.Address()}).Info("dashboard listening")
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	log.Info("stopping stream client")
	streamClient.Stop()

	if archiver != nil {
		log.Info("stopping signal archiver")
		close(archiveCh)
		archiver.Stop()
	}

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

	log.Info("signalflow stopped")
}
