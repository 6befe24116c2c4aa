// Command ragscope watches a RAG pipeline's monitor stream.
//
// Usage:
//
//	ragscope [ui]      interactive terminal board (default)
//	ragscope watch     headless; logs every state change
//	ragscope history   print recent runs
//	ragscope mcp       serve run history as MCP tools on stdio
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jwulff/ragscope/internal/config"
	"github.com/jwulff/ragscope/internal/db"
	"github.com/jwulff/ragscope/internal/logger"
	"github.com/jwulff/ragscope/internal/stream"
)

var version = "dev"

func main() {
	cmd := "ui"
	args := os.Args[1:]
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "ui":
		err = runUI(args)
	case "watch":
		err = runWatch(args)
	case "history":
		err = runHistory(args)
	case "mcp":
		err = runMCP(args)
	case "version":
		fmt.Println("ragscope", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want ui, watch, history, mcp or version)\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ragscope %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	configPath string
	url        string
}

func newFlagSet(name string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet("ragscope "+name, flag.ExitOnError)
	cf := &commonFlags{}
	fs.StringVar(&cf.configPath, "config", "", "path to a TOML config file (default $RAGSCOPE_CONFIG)")
	fs.StringVar(&cf.url, "url", "", "monitor stream URL (overrides config)")
	return fs, cf
}

func loadConfig(cf *commonFlags) (*config.Config, error) {
	cfg, err := config.Load(cf.configPath)
	if err != nil {
		return nil, err
	}
	if cf.url != "" {
		cfg.Stream.URL = cf.url
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func streamConfig(cfg *config.Config, log *logger.Logger) stream.Config {
	return stream.Config{
		URL:         cfg.Stream.URL,
		MaxAttempts: cfg.Stream.MaxReconnectAttempts,
		Delay:       cfg.Stream.ReconnectDelay.Std(),
		Logger:      log,
	}
}

// openStore opens the history database for writing, or returns nil when
// history is disabled.
func openStore(cfg *config.Config) (*db.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	store, err := db.Open(cfg.History.Path, cfg.History.MaxRuns)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

// serveMetrics exposes /metrics on addr until the returned stop func is
// called. An empty addr does nothing.
func serveMetrics(addr string, log *logger.Logger) (stop func()) {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("metrics shutdown", zap.Error(err))
		}
	}
}
