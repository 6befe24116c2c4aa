package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jwulff/ragscope/internal/app"
	"github.com/jwulff/ragscope/internal/logger"
	"github.com/jwulff/ragscope/internal/stream"
)

func runUI(args []string) error {
	fs, cf := newFlagSet("ui")
	fs.Parse(args)

	cfg, err := loadConfig(cf)
	if err != nil {
		return err
	}

	// The terminal belongs to bubbletea, so logs only go to a file.
	log := logger.Nop()
	if cfg.Log.File != "" {
		log, err = logger.New(cfg.Log.Level, cfg.Log.File)
		if err != nil {
			return err
		}
	}
	defer log.Sync()

	stopMetrics := serveMetrics(cfg.Metrics.Addr, log)
	defer stopMetrics()

	opts := app.Options{
		URL:            cfg.Stream.URL,
		Logger:         log,
		ResizeDebounce: cfg.UI.ResizeDebounce.Std(),
		HistoryLimit:   cfg.UI.HistoryLimit,
		PreviewLength:  cfg.UI.PreviewLength,
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Error("history disabled", zap.Error(err))
	} else if store != nil {
		defer store.Close()
		opts.Store = store
	}

	fwd := &app.Forwarder{}
	client := stream.New(streamConfig(cfg, log), fwd)
	opts.Client = client

	p := tea.NewProgram(app.New(opts), tea.WithAltScreen())
	fwd.Bind(p, client.Attempts)

	log.Info("starting ui", zap.String("url", cfg.Stream.URL), zap.String("version", version))
	_, runErr := p.Run()
	client.Close()
	if runErr != nil {
		return fmt.Errorf("run tui: %w", runErr)
	}
	return nil
}
