// Command cnjp is a terminal reader for the CNJP news feed.
//
// It keeps one ever-growing, de-duplicated news collection: the latest feed
// merged with the full per-day archive, refreshed by a background poll that
// stages new content until the reader asks for it.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/caisiyang/CNJP/internal/archive"
	"github.com/caisiyang/CNJP/internal/config"
	"github.com/caisiyang/CNJP/internal/engine"
	"github.com/caisiyang/CNJP/internal/favorites"
	"github.com/caisiyang/CNJP/internal/fetch"
	"github.com/caisiyang/CNJP/internal/logging"
	"github.com/caisiyang/CNJP/internal/news"
	"github.com/caisiyang/CNJP/internal/ui"
	"github.com/caisiyang/CNJP/internal/view"
)

func main() {
	if err := logging.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	defer logging.Close()

	cfg, err := config.Load()
	if err != nil {
		fatal("Failed to load config: %v", err)
	}

	dataDir := config.DataDir()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		fatal("Failed to create data directory: %v", err)
	}

	// Archive disk cache is optional; a failure to open it only costs
	// cross-session reuse.
	var disk *archive.DiskCache
	if cfg.ArchiveCache {
		disk, err = archive.OpenDiskCache(filepath.Join(dataDir, "archive.db"))
		if err != nil {
			logging.Warn("archive cache disabled", "error", err)
			disk = nil
		} else {
			defer disk.Close()
		}
	}

	favs, err := favorites.Open(filepath.Join(dataDir, "favorites.db"))
	if err != nil {
		logging.Warn("favorites disabled", "error", err)
		favs = nil
	} else {
		defer favs.Close()
	}

	// The program handle does not exist yet when the engine and pipeline
	// are built; send is bound just before the engine starts.
	var send func(tea.Msg)
	deliver := func(msg tea.Msg) {
		if send != nil {
			send(msg)
		}
	}

	client := fetch.NewClient(cfg.BaseURL, cfg.FallbackURL, cfg.FetchTimeout())
	pages := archive.NewStore(disk)
	eng := engine.New(client, pages, engine.Options{
		PollInterval: cfg.PollInterval(),
		Notify: func(ev engine.Event) {
			deliver(ui.EngineEvent{Event: ev})
		},
	})

	pipe := view.NewPipeline(news.DefaultCategories(), view.Options{
		Debounce: cfg.SearchDebounce(),
		PageSize: cfg.PageSize,
		OnCommit: func() {
			deliver(ui.PipelineCommitted{})
		},
	})
	defer pipe.Close()

	app := ui.New(eng, pipe, favs)
	p := tea.NewProgram(app, tea.WithAltScreen())
	send = p.Send

	ctx, cancel := context.WithCancel(context.Background())
	eng.Start(ctx)

	logging.Info("starting UI", "base_url", cfg.BaseURL, "poll", cfg.PollInterval())
	if _, err := p.Run(); err != nil {
		cancel()
		eng.Wait()
		logging.Error("application error", "error", err)
		fatal("Error: %v", err)
	}

	cancel()
	eng.Wait()
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
