package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aimd54/fanfund-tracker/internal/api/dashboard"
	"github.com/aimd54/fanfund-tracker/internal/broadcast"
	"github.com/aimd54/fanfund-tracker/internal/cache"
	"github.com/aimd54/fanfund-tracker/internal/config"
	"github.com/aimd54/fanfund-tracker/internal/platform"
	"github.com/aimd54/fanfund-tracker/internal/repository"
	"github.com/aimd54/fanfund-tracker/internal/service/pk"
	"github.com/aimd54/fanfund-tracker/internal/service/scanner"
	"github.com/aimd54/fanfund-tracker/internal/service/scheduler"
	"github.com/aimd54/fanfund-tracker/internal/service/tracker"
	"github.com/aimd54/fanfund-tracker/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log.Info().Str("environment", cfg.Server.Environment).Msg("Starting fanfund tracker")

	db, err := repository.NewDB(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	if err := db.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	redisCache, err := cache.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	defer redisCache.Close()

	campaignRepo := repository.NewCampaignRepository(db)
	contributionRepo := repository.NewContributionRepository(db)
	rankRepo := repository.NewRankRepository(db)
	cardRepo := repository.NewCardRepository(db)
	contributorRepo := repository.NewContributorRepository(db)

	factory := platform.NewFactory(&cfg.Platforms, &cfg.Fund, log)
	broadcaster := broadcast.NewClient(&cfg.Broadcast, log)
	composer, err := broadcast.NewComposer(&cfg.Fund, &cfg.Card)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid broadcast patterns")
	}

	lockTTL := 2 * time.Duration(cfg.Fund.ScanInterval) * time.Second
	scanService := scanner.NewService(contributionRepo, redisCache, lockTTL, log)
	trackService := tracker.NewService(
		db, campaignRepo, factory, scanService, composer, broadcaster, redisCache,
		cfg.Card.Threshold, cfg.Fund.MaxConcurrency, log,
	)
	trackService.SetTierNames(cfg.Card.TierName)

	pkService := pk.NewService(factory, pk.NewSnapshotStore(cfg.PK.SnapshotDir), log)
	sched := scheduler.NewService(cfg, trackService, pkService, pk.NewRegistry(), broadcaster, log)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	defer sched.Stop()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handler := dashboard.NewHandler(campaignRepo, rankRepo, cardRepo, contributorRepo, redisCache, log)
	api := router.Group("/api")
	{
		api.GET("/campaigns", handler.ListCampaigns)
		api.GET("/campaigns/:platform/:id/leaderboard", handler.GetLeaderboard)
		api.GET("/contributors/:id/cards", handler.GetContributorCards)
	}

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Dashboard server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Dashboard server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Dashboard server shutdown failed")
	}
}
