// Command console plays the quest in a terminal against an in-memory store.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwebster45206/quest-engine/internal/archive"
	"github.com/jwebster45206/quest-engine/internal/config"
	"github.com/jwebster45206/quest-engine/internal/logger"
	"github.com/jwebster45206/quest-engine/pkg/content"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

const consoleUserID = "console"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// the terminal belongs to the UI, so logs go to a file
	logFile, err := os.OpenFile(getEnv("CONSOLE_LOG", "console.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	log := logger.SetupWriter(cfg, logFile)

	catalog, err := content.Load(cfg.CatalogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load catalog: %v\n", err)
		os.Exit(1)
	}

	var sink quest.ArchiveSink
	var writer *archive.Writer
	if cfg.Archive.Backend == config.ArchiveFS {
		store, err := archive.NewFSStore(cfg.Archive.Dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open archive: %v\n", err)
			os.Exit(1)
		}
		writer = archive.NewWriter(store, cfg.Archive.QueueSize, log)
		sink = writer
	}

	store := storage.NewMemoryStore(cfg.SkipBudget)
	sender := newChannelSender(64)
	machine, err := quest.New(quest.Config{
		Catalog:  catalog,
		Sessions: store,
		Progress: store,
		Archive:  sink,
		Sender:   sender,
		Logger:   log,
		AdminIDs: []string{consoleUserID},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build quest: %v\n", err)
		os.Exit(1)
	}

	ui := NewConsoleUI(catalog, machine, store, sender)
	p := tea.NewProgram(ui, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}

	if writer != nil {
		_ = writer.Close(context.Background())
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
