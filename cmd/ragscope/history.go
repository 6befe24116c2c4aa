package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jwulff/ragscope/internal/db"
	"github.com/jwulff/ragscope/internal/logger"
	"github.com/jwulff/ragscope/internal/mcpserver"
	"github.com/jwulff/ragscope/internal/timing"
)

func runHistory(args []string) error {
	fs, cf := newFlagSet("history")
	limit := fs.Int("limit", 0, "number of runs to print (default ui.history_limit)")
	fs.Parse(args)

	cfg, err := loadConfig(cf)
	if err != nil {
		return err
	}
	if *limit <= 0 {
		*limit = cfg.UI.HistoryLimit
	}

	store, err := db.OpenReadOnly(cfg.History.Path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Println("No runs recorded yet.")
		return nil
	}
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.RecentRuns(context.Background(), *limit)
	if err != nil {
		return err
	}
	return printRuns(os.Stdout, runs, time.Now())
}

func printRuns(w io.Writer, runs []db.Run, now time.Time) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded yet.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTOTAL\tTYPE\tFINISHED\tQUERY")
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		query := strings.ReplaceAll(r.Query, "\n", " ")
		if len([]rune(query)) > 60 {
			query = string([]rune(query)[:59]) + "…"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			id, r.Status, timing.FormatSeconds(r.TotalMs), r.PipelineType,
			humanize.RelTime(r.FinishedAt, now, "ago", "from now"), query)
	}
	return tw.Flush()
}

func runMCP(args []string) error {
	fs, cf := newFlagSet("mcp")
	fs.Parse(args)

	cfg, err := loadConfig(cf)
	if err != nil {
		return err
	}

	// stdout carries the protocol; keep logging on stderr and quiet.
	level := cfg.Log.Level
	if level == "info" || level == "debug" {
		level = "warn"
	}
	log, err := logger.New(level)
	if err != nil {
		return err
	}
	defer log.Sync()

	// The UI or watcher may not have created the database yet.
	store, err := db.Open(cfg.History.Path, cfg.History.MaxRuns)
	if err != nil {
		return err
	}
	defer store.Close()

	return mcpserver.Serve(mcpserver.New(store, log, version))
}
