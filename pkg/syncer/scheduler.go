// Package syncer periodically purges the in-memory ledger and appends the
// visits recorded since the last successful sync to the durable store.
package syncer

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"hit-tracker/pkg/errors"
	"hit-tracker/pkg/logger"
	"hit-tracker/pkg/models"
)

// Purger applies the retention policy and returns the purge instant together
// with the ledger as it stood before any timestamp was filtered.
type Purger interface {
	Purge(window time.Duration, topK int) (time.Time, []models.LedgerEntry)
}

// Writer appends rows in one atomic operation: all rows or none.
type Writer interface {
	AppendVisits(ctx context.Context, rows []models.VisitRow) error
}

// Recorder receives the outcome of every sync cycle.
type Recorder interface {
	RecordSyncCycle(rows int, duration time.Duration, err error)
}

type State int32

const (
	StateIdle State = iota
	StateFlushing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFlushing:
		return "flushing"
	default:
		return "unknown"
	}
}

type Config struct {
	Interval     time.Duration
	Window       time.Duration
	TopK         int
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:     time.Minute,
		Window:       10 * time.Minute,
		TopK:         10,
		WriteTimeout: 30 * time.Second,
	}
}

// Stats is a point-in-time copy of scheduler counters.
type Stats struct {
	State       string    `json:"state"`
	Watermark   time.Time `json:"watermark"`
	Cycles      int64     `json:"cycles"`
	Failures    int64     `json:"failures"`
	RowsWritten int64     `json:"rows_written"`
	LastCycleAt time.Time `json:"last_cycle_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`

	// CarriedRows counts visits from failed cycles that have aged out of
	// the ledger and are held for the next write.
	CarriedRows int `json:"carried_rows"`
}

// Scheduler runs purge-then-append cycles. Cycles never overlap: the loop
// sleeps a full interval after each cycle finishes, and RunOnce callers are
// serialized with the loop.
type Scheduler struct {
	purger   Purger
	writer   Writer
	recorder Recorder
	cfg      Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.SugaredLogger

	cycleMu sync.Mutex

	mu        sync.Mutex
	watermark time.Time
	carried   []models.VisitRow
	state     State
	stats     Stats
}

type Option func(*Scheduler)

func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		s.recorder = r
	}
}

// New creates a scheduler whose first cycle writes visits strictly after
// watermark.
func New(purger Purger, writer Writer, cfg Config, watermark time.Time, log *zap.SugaredLogger, opts ...Option) *Scheduler {
	if log == nil {
		log = logger.ComponentLogger("syncer")
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		purger:    purger,
		writer:    writer,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		logger:    log,
		watermark: watermark,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins the sync loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Infow("Sync scheduler started",
		"interval", s.cfg.Interval,
		logger.FieldWatermark, s.Watermark())
}

// Stop cancels the loop and waits for it to exit. A cycle in flight has its
// write cancelled and leaves the watermark where it was.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Infow("Sync scheduler stopped", logger.FieldWatermark, s.Watermark())
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
			// Failures are logged and counted inside RunOnce.
			_ = s.RunOnce(s.ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// RunOnce performs a single cycle: purge, compute the delta past the
// watermark, append it, and advance the watermark on success.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	started := time.Now()
	s.setState(StateFlushing)
	defer s.setState(StateIdle)

	now, snapshot := s.purger.Purge(s.cfg.Window, s.cfg.TopK)

	s.mu.Lock()
	watermark := s.watermark
	carried := s.carried
	s.mu.Unlock()

	rows := mergeRows(carried, Delta(snapshot, watermark, now))

	err := s.write(ctx, rows)
	elapsed := time.Since(started)

	s.mu.Lock()
	s.stats.Cycles++
	s.stats.LastCycleAt = now
	if err != nil {
		// The purge above already dropped these from the ledger, so they
		// exist only here until a write succeeds.
		s.carried = expired(rows, now.Add(-s.cfg.Window))
		s.stats.Failures++
		s.stats.LastError = err.Error()
	} else {
		s.carried = nil
		s.watermark = now
		s.stats.RowsWritten += int64(len(rows))
		s.stats.LastError = ""
	}
	s.stats.CarriedRows = len(s.carried)
	cycle := s.stats.Cycles
	carriedN := len(s.carried)
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.RecordSyncCycle(len(rows), elapsed, err)
	}

	if err != nil {
		s.logger.Warnw("Sync cycle failed",
			logger.FieldError, err,
			logger.FieldCycle, cycle,
			logger.FieldRows, len(rows),
			"carried_rows", carriedN,
			logger.FieldWatermark, watermark)
		return err
	}

	if len(rows) > 0 {
		s.logger.Infow("Synced visits",
			logger.FieldRows, len(rows),
			logger.FieldCycle, cycle,
			logger.FieldDurationMS, elapsed.Milliseconds())
	} else {
		s.logger.Debugw("Nothing to sync", logger.FieldCycle, cycle)
	}

	return nil
}

func (s *Scheduler) write(ctx context.Context, rows []models.VisitRow) error {
	if len(rows) == 0 {
		return nil
	}

	writeCtx := ctx
	if s.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, s.cfg.WriteTimeout)
		defer cancel()
	}

	err := s.writer.AppendVisits(writeCtx, rows)
	if err == nil {
		return nil
	}

	if errors.Is(writeCtx.Err(), context.DeadlineExceeded) {
		err = errors.Mark(err, errors.ErrWriteTimeout)
		return errors.WithHintf(errors.Wrap(err, "append visits"),
			"the write did not finish within %s", s.cfg.WriteTimeout)
	}
	return errors.Wrap(err, "append visits")
}

// Delta flattens the timestamps in (watermark, now] into one row per visit,
// ordered by time. Identifiers with nothing pending contribute no rows.
func Delta(entries []models.LedgerEntry, watermark, now time.Time) []models.VisitRow {
	var rows []models.VisitRow
	for _, e := range entries {
		for _, ts := range e.RecentTimestamps {
			if ts.After(watermark) && !ts.After(now) {
				rows = append(rows, models.VisitRow{ID: e.ID, VisitedAt: ts})
			}
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].VisitedAt.Before(rows[j].VisitedAt)
	})
	return rows
}

// mergeRows orders carried rows from failed cycles together with the new delta.
// The two never overlap: carried rows are no longer in the ledger.
func mergeRows(carried, delta []models.VisitRow) []models.VisitRow {
	if len(carried) == 0 {
		return delta
	}
	rows := make([]models.VisitRow, 0, len(carried)+len(delta))
	rows = append(rows, carried...)
	rows = append(rows, delta...)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].VisitedAt.Before(rows[j].VisitedAt)
	})
	return rows
}

// expired returns the rows visited before cutoff.
func expired(rows []models.VisitRow, cutoff time.Time) []models.VisitRow {
	var out []models.VisitRow
	for _, r := range rows {
		if r.VisitedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Scheduler) Watermark() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.State = s.state.String()
	stats.Watermark = s.watermark
	return stats
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
