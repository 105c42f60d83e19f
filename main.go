package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"reserveflow/config"
	"reserveflow/internal/auth"
	"reserveflow/internal/channel"
	"reserveflow/internal/engine"
	"reserveflow/internal/fetcher"
	"reserveflow/internal/stream"
	"reserveflow/internal/symbols"
	"reserveflow/internal/transport"
	"reserveflow/logger"
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
		"service": cfg.Connector.Name,
		"version": cfg.Connector.Version,
	}).Info("starting reserveflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}
	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace)
	}

	src := &cfg.Source.IndependentReserve

	channels := channel.NewChannels(
		cfg.Channels.DiffBuffer,
		cfg.Channels.TradeBuffer,
		cfg.Channels.SnapshotBuffer,
		cfg.Channels.UserBuffer,
	)
	defer channels.Close()

	limiter := transport.NewLimiter()
	factory := transport.NewFactory(cfg, limiter)
	rest := factory.RestClient()

	store := symbols.NewStore(rest, src.RestURL)
	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := store.EnsureInitialized(initCtx, src.Domain); err != nil {
		initCancel()
		log.WithError(err).Error("failed to initialize symbol map")
		os.Exit(1)
	}
	initCancel()

	pairs := src.TradingPairs
	if len(pairs) == 0 {
		pairs, err = store.TradingPairs(ctx, src.Domain)
		if err != nil {
			log.WithError(err).Error("failed to list trading pairs")
			os.Exit(1)
		}
		log.WithComponent("main").WithFields(logger.Fields{"markets": len(pairs)}).Info("no pairs configured, tracking all markets")
	}

	var authenticator *auth.Authenticator
	if src.Credentials.APIKey != "" {
		authenticator, err = auth.New(src.Credentials.APIKey, src.Credentials.APISecret, transport.SystemClock)
		if err != nil {
			log.WithError(err).Error("invalid API credentials")
			os.Exit(1)
		}
		log.WithComponent("main").Info("API credentials loaded, private endpoints enabled")
	} else {
		if env := config.AppEnvironment(); config.IsProductionLike(env) {
			log.WithComponent("main").WithFields(logger.Fields{"env": env}).Warn("no API credentials in a production-like environment")
		}
		log.WithComponent("main").Info("no API credentials, running public-only")
	}

	restFetcher := fetcher.NewFetcher(cfg, rest, store, authenticator)
	syncEngine := engine.NewEngine(cfg, channels, restFetcher, pairs)
	coordinator := stream.NewCoordinator(cfg, channels, store, factory.WsDialer(), pairs)

	var userStream *stream.UserStream
	if authenticator != nil {
		userStream = stream.NewUserStream(cfg, channels, authenticator, factory.WsDialer())
	}

	if err := syncEngine.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start sync engine")
		os.Exit(1)
	}
	if err := coordinator.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start stream coordinator")
		os.Exit(1)
	}
	if userStream != nil {
		if err := userStream.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start user stream")
			os.Exit(1)
		}
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		if userStream != nil {
			log.Info("stopping user stream")
			userStream.Stop()
		}
		log.Info("stopping stream coordinator")
		coordinator.Stop()
		log.Info("stopping sync engine")
		syncEngine.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("reserveflow stopped")
}
