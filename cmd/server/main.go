package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/clickwise/attributor/config"
	"github.com/clickwise/attributor/internal/ads/googleads"
	appmodel "github.com/clickwise/attributor/internal/app/model"
	apprepository "github.com/clickwise/attributor/internal/app/repository"
	appserver "github.com/clickwise/attributor/internal/app/server"
	appservice "github.com/clickwise/attributor/internal/app/service"
	"github.com/clickwise/attributor/internal/crm/kommo"
	"github.com/clickwise/attributor/internal/infra/logger"
	infraNATS "github.com/clickwise/attributor/internal/infra/nats"
	infraPostgres "github.com/clickwise/attributor/internal/infra/postgres"
	infraPrometheus "github.com/clickwise/attributor/internal/infra/prometheus"
	infraRedis "github.com/clickwise/attributor/internal/infra/redis"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("nats_host", cfg.NATS.Host),
		zap.String("kommo_subdomain", cfg.Kommo.Subdomain),
		zap.Int("click_ttl_minutes", cfg.App.ClickTTLMinutes),
		zap.Bool("google_ads_enabled", cfg.GoogleAds.Enabled),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB,
		&appmodel.ClickRecord{}, &appmodel.AttributionEvent{}); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	natsConn, js, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully", zap.Bool("jetstream_ready", js != nil))

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server")
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	clickRepo := apprepository.NewClickRecordRepository(gormDB)
	eventRepo := apprepository.NewAttributionEventRepository(gormDB)
	statsRepo := apprepository.NewStatsRepository(pool)

	crmClient := kommo.NewClient(cfg.Kommo, log)

	// The Ads client is an owned, constructed-once resource. When uploads
	// are disabled the orchestrator never touches it.
	var adsClient googleads.Uploader
	if cfg.GoogleAds.Enabled {
		client, err := googleads.NewClient(cfg.GoogleAds, log)
		if err != nil {
			log.Fatal("Failed to build Google Ads client", zap.Error(err))
		}
		adsClient = client
	}

	sweeper := appservice.NewExpirySweeper(log, clickRepo)
	sweeper.Start()
	defer sweeper.Stop()

	consumer := appservice.NewAttributionConsumer(js, log, eventRepo)
	if err := consumer.Start(); err != nil {
		log.Fatal("Failed to start attribution consumer", zap.Error(err))
	}

	orchestrator := appservice.NewOrchestrator(appservice.OrchestratorDeps{
		Logger:                log,
		Clicks:                clickRepo,
		Matcher:               appservice.NewMatcher(log, clickRepo),
		CRM:                   crmClient,
		Ads:                   adsClient,
		Publisher:             appservice.NewAttributionPublisher(js),
		Redis:                 redisClient,
		ClickTTL:              time.Duration(cfg.App.ClickTTLMinutes) * time.Minute,
		AdsEnabled:            cfg.GoogleAds.Enabled,
		TargetPipelineID:      cfg.Kommo.TargetPipelineID,
		TargetStageID:         cfg.Kommo.TargetStageID,
		ShortWindowSalesbotID: cfg.Kommo.ShortWindowSalesbotID,
		LongWindowSalesbotID:  cfg.Kommo.LongWindowSalesbotID,
	})

	server := appserver.New(appserver.Dependencies{
		Logger:       log,
		Redis:        redisClient,
		Orchestrator: orchestrator,
		Stats:        statsRepo,
	})

	if err := server.Listen(cfg.App.Addr); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}
