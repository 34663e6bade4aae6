// Command bot runs the quest as a Telegram bot in a single process: updates
// are long-polled and handed to a sharded dispatcher instead of the Redis queue.
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
	"github.com/jwebster45206/quest-engine/internal/services/queue"
	"github.com/jwebster45206/quest-engine/internal/storage"
	"github.com/jwebster45206/quest-engine/internal/transport/telegram"
	"github.com/jwebster45206/quest-engine/pkg/content"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.TelegramToken == "" {
		log.Fatal("TELEGRAM_TOKEN is required")
	}

	log := logger.Setup(cfg)

	catalog, err := content.Load(cfg.CatalogPath)
	if err != nil {
		log.Error("Failed to load catalog", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := queue.NewClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	rdb := redisClient.GetRedisClient()

	store, err := storage.Open(ctx, rdb, cfg, log)
	if err != nil {
		log.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	archiveStore, err := archive.Open(ctx, cfg.Archive, rdb)
	if err != nil {
		log.Error("Failed to initialize archive", "error", err)
		os.Exit(1)
	}
	archiveWriter := archive.NewWriter(archiveStore, cfg.Archive.QueueSize, log)

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		log.Error("Failed to connect to Telegram", "error", err)
		os.Exit(1)
	}

	machine, err := quest.New(quest.Config{
		Catalog:  catalog,
		Sessions: store,
		Progress: store,
		Archive:  archiveWriter,
		Sender:   telegram.NewSender(bot, cfg.MediaDir),
		Logger:   log,
		AdminIDs: cfg.AdminIDs,
	})
	if err != nil {
		log.Error("Failed to build quest", "error", err)
		os.Exit(1)
	}

	dispatcher := quest.NewDispatcher(machine, cfg.DispatchShards, 64, log)
	// queued turns finish after a shutdown signal
	dispatcher.Start(context.WithoutCancel(ctx))

	log.Info("Starting Quest Engine Bot",
		"bot", bot.Self.UserName,
		"shards", cfg.DispatchShards,
		"waypoints", len(catalog.Waypoints))

	if err := telegram.NewPoller(bot, log).Run(ctx, dispatcher.Dispatch); err != nil {
		log.Error("Polling failed", "error", err)
	}

	dispatcher.Close()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	if err := archiveWriter.Close(drainCtx); err != nil {
		log.Error("Archive writer did not drain", "error", err)
	}
	log.Info("Bot exited")
}
