package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tl-its-umich-edu/placement-exams/internal/app"
	"github.com/tl-its-umich-edu/placement-exams/internal/config"
	"github.com/tl-its-umich-edu/placement-exams/internal/db"
	"github.com/tl-its-umich-edu/placement-exams/internal/logger"
	"github.com/tl-its-umich-edu/placement-exams/internal/queue"
	"github.com/tl-its-umich-edu/placement-exams/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init(cfg.Logging)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting scheduler")

	// Initialize database
	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	repo := db.NewRepository(database)

	var redisClient *queue.RedisClient
	if cfg.Redis.Enabled {
		redisClient, err = queue.NewRedisClient(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
	}

	runner, err := app.NewRunner(cfg, repo, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize sync runner")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := worker.NewScheduler(ctx, runner, cfg.Schedule)
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Str("spec", cfg.Schedule.Spec).Msg("Failed to start scheduler")
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down scheduler...")

	cancel()
	scheduler.Stop()

	log.Info().Msg("Scheduler exited")
}
