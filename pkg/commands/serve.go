package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hit-tracker/pkg/config"
	"hit-tracker/pkg/errors"
	"hit-tracker/pkg/logger"
	"hit-tracker/pkg/monitoring"
	"hit-tracker/pkg/report"
	"hit-tracker/pkg/server"
	"hit-tracker/pkg/storage"
	"hit-tracker/pkg/store"
	"hit-tracker/pkg/syncer"
)

// ServeCmd runs the HTTP server together with the sync scheduler.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hit tracker",
	Long: `Start the hit tracker HTTP server.

Every GET / records a visit for the client address (X-Real-IP, falling back
to the connection address) and answers with a plain-text report. Visits are
written to the durable store every sync.interval, and once more on shutdown.

Examples:
  hits serve
  HITS_SERVER_PORT=8080 hits serve
  hits serve --config /etc/hits/hits.toml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return Serve(ctx, cfg)
}

// Serve rebuilds in-memory state from the durable store, then serves until
// ctx is cancelled. A failed rehydration aborts startup.
func Serve(ctx context.Context, cfg *config.Config) error {
	log := logger.ComponentLogger("serve")
	started := time.Now()

	st, err := store.Open(store.Config{Driver: cfg.Store.Driver, Path: cfg.Store.Path}, logger.ComponentLogger("store"))
	if err != nil {
		return errors.Wrap(err, "open durable store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warnw("Failed to close durable store", logger.FieldError, err)
		}
	}()

	tracker := storage.NewVisitTrackerWithConfig(storage.TrackerConfig{
		RecentSize: cfg.Tracker.RecentSize,
		TopK:       cfg.Tracker.TopK,
		Window:     cfg.Tracker.Window,
	}, storage.WithLogger(logger.ComponentLogger("storage")))

	if err := tracker.Rehydrate(ctx, st); err != nil {
		return errors.WithHintf(err, "check that %s is a readable %s store", cfg.Store.Path, cfg.Store.Driver)
	}

	latest, err := st.LatestVisit(ctx)
	if err != nil {
		return errors.Wrap(errors.Mark(err, errors.ErrRehydrate), "read latest durable visit")
	}
	watermark := started
	if latest.After(watermark) {
		watermark = latest
	}
	tracker.Ledger().Fence(watermark)

	collector := monitoring.NewCollector()
	scheduler := syncer.New(tracker.Ledger(), st, syncer.Config{
		Interval:     cfg.Sync.Interval,
		Window:       cfg.Tracker.Window,
		TopK:         cfg.Tracker.TopK,
		WriteTimeout: cfg.Sync.WriteTimeout,
	}, watermark, logger.ComponentLogger("syncer"), syncer.WithRecorder(collector))
	scheduler.Start()

	srv := server.NewServer(tracker, scheduler, collector, server.Config{
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Report: report.Options{
			RecentSize: cfg.Tracker.RecentSize,
			TopK:       cfg.Tracker.TopK,
			Window:     cfg.Tracker.Window,
		},
	}, logger.ComponentLogger("server"))

	serveErr := srv.Start(ctx)

	scheduler.Stop()
	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Sync.WriteTimeout)
	defer cancel()
	if err := scheduler.RunOnce(flushCtx); err != nil {
		log.Errorw("Final flush failed, unsynced visits are lost",
			logger.FieldError, err,
			logger.FieldWatermark, scheduler.Watermark())
	} else {
		log.Infow("Final flush complete", logger.FieldWatermark, scheduler.Watermark())
	}

	return serveErr
}
