package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jwebster45206/quest-engine/internal/archive"
	"github.com/jwebster45206/quest-engine/internal/config"
	"github.com/jwebster45206/quest-engine/internal/logger"
	"github.com/jwebster45206/quest-engine/internal/services/events"
	"github.com/jwebster45206/quest-engine/internal/services/queue"
	"github.com/jwebster45206/quest-engine/internal/storage"
	"github.com/jwebster45206/quest-engine/internal/transport"
	"github.com/jwebster45206/quest-engine/internal/transport/telegram"
	"github.com/jwebster45206/quest-engine/internal/worker"
	"github.com/jwebster45206/quest-engine/pkg/content"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Quest Engine Worker",
		"environment", cfg.Environment,
		"catalog", cfg.CatalogPath,
		"archive_backend", cfg.Archive.Backend)

	catalog, err := content.Load(cfg.CatalogPath)
	if err != nil {
		log.Error("Failed to load catalog", "error", err)
		os.Exit(1)
	}
	log.Info("Catalog loaded", "title", catalog.Title, "waypoints", len(catalog.Waypoints))

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer startupCancel()

	queueClient, err := queue.NewClient(startupCtx, cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	rdb := queueClient.GetRedisClient()
	inbound := queue.NewInboundQueue(queueClient)

	// store owns the Redis client from here on
	store, err := storage.Open(startupCtx, rdb, cfg, log)
	if err != nil {
		log.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing storage", "error", err)
		}
	}()
	log.Info("Storage initialized successfully", "db_path", cfg.DBPath)

	archiveStore, err := archive.Open(startupCtx, cfg.Archive, rdb)
	if err != nil {
		log.Error("Failed to initialize archive", "error", err)
		os.Exit(1)
	}
	archiveWriter := archive.NewWriter(archiveStore, cfg.Archive.QueueSize, log)

	broadcaster := events.NewBroadcaster(rdb, log)
	router := transport.Router{quest.ChannelWeb: broadcaster}
	if cfg.TelegramToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			log.Error("Failed to connect to Telegram", "error", err)
			os.Exit(1)
		}
		router[quest.ChannelTelegram] = telegram.NewSender(bot, cfg.MediaDir)
		log.Info("Telegram sender enabled", "bot", bot.Self.UserName)
	}

	machine, err := quest.New(quest.Config{
		Catalog:  catalog,
		Sessions: store,
		Progress: store,
		Archive:  archiveWriter,
		Sender:   router,
		Logger:   log,
		AdminIDs: cfg.AdminIDs,
	})
	if err != nil {
		log.Error("Failed to build quest", "error", err)
		os.Exit(1)
	}

	w := worker.New(inbound, machine, broadcaster, rdb, log, cfg.WorkerID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("Worker started, waiting for requests...")

	<-quit
	log.Info("Worker shutdown signal received")

	w.Stop()

	// Give worker time to finish current request
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("Worker did not stop in time")
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	if err := archiveWriter.Close(drainCtx); err != nil {
		log.Error("Archive writer did not drain", "error", err)
	}
	stats := archiveWriter.Stats()
	log.Info("Worker exited",
		"archived", stats.Written,
		"archive_dropped", stats.Dropped,
		"archive_failed", stats.Failed)
}
