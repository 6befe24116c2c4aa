package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/jwulff/ragscope/internal/console"
	"github.com/jwulff/ragscope/internal/db"
	"github.com/jwulff/ragscope/internal/logger"
	"github.com/jwulff/ragscope/internal/pipeline"
	"github.com/jwulff/ragscope/internal/protocol"
	"github.com/jwulff/ragscope/internal/stream"
)

// runSaver persists finished runs. *db.Store satisfies it.
type runSaver interface {
	SaveRun(ctx context.Context, r db.Run) (string, error)
}

// watcher drives the machine from stream callbacks. The client calls it from
// a single goroutine.
type watcher struct {
	ctx     context.Context
	sink    *console.Sink
	machine *pipeline.Machine
	store   runSaver
	log     *logger.Logger
}

var _ stream.Handler = (*watcher)(nil)

func newWatcher(ctx context.Context, log *logger.Logger, store runSaver, previewLen int) *watcher {
	sink := console.New(log)
	return &watcher{
		ctx:     ctx,
		sink:    sink,
		machine: pipeline.New(sink, pipeline.WithLogger(log), pipeline.WithPreviewLength(previewLen)),
		store:   store,
		log:     logger.OrNop(log),
	}
}

func (w *watcher) ConnectionChanged(s stream.State) { w.sink.RenderConnectionState(s) }

func (w *watcher) Opened() { w.machine.Restore() }

func (w *watcher) Event(ev protocol.Event) {
	run := w.machine.Apply(ev)
	if run == nil || w.store == nil {
		return
	}
	id, err := w.store.SaveRun(w.ctx, db.FromPipeline(*run))
	if err != nil {
		w.log.Error("save run", zap.Error(err))
		return
	}
	w.log.Debug("run saved", zap.String("id", id))
}

func runWatch(args []string) error {
	fs, cf := newFlagSet("watch")
	fs.Parse(args)

	cfg, err := loadConfig(cf)
	if err != nil {
		return err
	}

	log, err := logger.NewDevelopment(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopMetrics := serveMetrics(cfg.Metrics.Addr, log)
	defer stopMetrics()

	var saver runSaver
	store, err := openStore(cfg)
	if err != nil {
		log.Error("history disabled", zap.Error(err))
	} else if store != nil {
		defer store.Close()
		saver = store
	}

	w := newWatcher(ctx, log, saver, cfg.UI.PreviewLength)
	client := stream.New(streamConfig(cfg, log), w)

	log.Info("watching", zap.String("url", cfg.Stream.URL))
	err = client.Run(ctx)
	if errors.Is(err, stream.ErrRetriesExhausted) {
		return err
	}
	return nil
}
