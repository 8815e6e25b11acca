package storage

import (
	"context"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"hit-tracker/pkg/errors"
	"hit-tracker/pkg/logger"
	"hit-tracker/pkg/models"
)

type TrackerConfig struct {
	RecentSize int
	TopK       int
	Window     time.Duration
}

func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		RecentSize: DefaultRecentSize,
		TopK:       10,
		Window:     10 * time.Minute,
	}
}

// HistoryReader is the read side of the durable store used at startup.
type HistoryReader interface {
	ReadAllCounts(ctx context.Context) ([]models.CountEntry, error)
	ReadRecentRows(ctx context.Context, since time.Time) ([]models.VisitRow, error)
	ReadLastN(ctx context.Context, n int) ([]string, error)
}

// VisitTracker combines the ledger and the recent-visitor queue behind one
// entry point. The two are locked independently and never at the same time.
type VisitTracker struct {
	ledger *Ledger
	recent *RecentQueue
	config TrackerConfig
	clock  func() time.Time
	logger *zap.SugaredLogger

	startTime   atomic.Int64
	totalVisits atomic.Int64
	lastVisit   atomic.Int64
}

type TrackerOption func(*VisitTracker)

func WithTrackerClock(clock func() time.Time) TrackerOption {
	return func(t *VisitTracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

func WithLogger(log *zap.SugaredLogger) TrackerOption {
	return func(t *VisitTracker) {
		if log != nil {
			t.logger = log
		}
	}
}

func NewVisitTracker() *VisitTracker {
	return NewVisitTrackerWithConfig(DefaultTrackerConfig())
}

func NewVisitTrackerWithConfig(config TrackerConfig, opts ...TrackerOption) *VisitTracker {
	t := &VisitTracker{
		config: config,
		clock:  time.Now,
		logger: logger.ComponentLogger("storage"),
	}

	for _, opt := range opts {
		opt(t)
	}

	t.ledger = NewLedger(WithClock(t.clock))
	t.recent = NewRecentQueue(config.RecentSize)
	t.startTime.Store(t.clock().UnixNano())

	return t
}

// RecordVisit records one visit by id and returns the combined view right
// after it. The ledger copy and the queue copy are each consistent on their own.
func (t *VisitTracker) RecordVisit(id string) models.CombinedSnapshot {
	entries := t.ledger.RecordVisit(id)
	lastN := t.recent.Touch(id)

	now := t.clock()
	t.totalVisits.Add(1)
	t.lastVisit.Store(now.UnixNano())

	return t.combine(now, entries, lastN)
}

// View returns the combined view without recording anything.
func (t *VisitTracker) View() models.CombinedSnapshot {
	entries := t.ledger.Snapshot()
	lastN := t.recent.Items()

	return t.combine(t.clock(), entries, lastN)
}

func (t *VisitTracker) combine(now time.Time, entries []models.LedgerEntry, lastN []string) models.CombinedSnapshot {
	policy := RetentionPolicy{Window: t.config.Window, TopK: t.config.TopK}

	// Ledger stamps can run a few nanoseconds ahead of the clock.
	for _, e := range entries {
		if n := len(e.RecentTimestamps); n > 0 && e.RecentTimestamps[n-1].After(now) {
			now = e.RecentTimestamps[n-1]
		}
	}

	allTime := make([]models.CountEntry, 0, len(entries))
	recent := make([]models.CountEntry, 0, len(entries))
	for _, e := range entries {
		allTime = append(allTime, models.CountEntry{ID: e.ID, Count: e.AllTimeCount})

		var inWindow uint64
		for _, ts := range e.RecentTimestamps {
			if policy.InWindow(now, ts) {
				inWindow++
			}
		}
		if inWindow > 0 {
			recent = append(recent, models.CountEntry{ID: e.ID, Count: inWindow})
		}
	}

	sortCounts(allTime)
	sortCounts(recent)

	return models.CombinedSnapshot{
		AllTimeCounts:         allTime,
		RecentCountsInWindow:  recent,
		LastNDistinctVisitors: lastN,
		TakenAt:               now,
	}
}

// Rehydrate rebuilds the ledger and queue from durable history so a restart
// does not reset all-time counts. Any read failure is fatal to startup and is
// returned wrapped as errors.ErrRehydrate.
func (t *VisitTracker) Rehydrate(ctx context.Context, src HistoryReader) error {
	now := t.clock()

	counts, err := src.ReadAllCounts(ctx)
	if err != nil {
		return errors.Wrap(errors.Mark(err, errors.ErrRehydrate), "rehydrate: read all counts")
	}

	rows, err := src.ReadRecentRows(ctx, now.Add(-t.config.Window))
	if err != nil {
		return errors.Wrap(errors.Mark(err, errors.ErrRehydrate), "rehydrate: read recent rows")
	}

	lastN, err := src.ReadLastN(ctx, t.recent.Capacity())
	if err != nil {
		return errors.Wrap(errors.Mark(err, errors.ErrRehydrate), "rehydrate: read last visitors")
	}

	policy := RetentionPolicy{Window: t.config.Window, TopK: t.config.TopK}
	recentByID := make(map[string][]time.Time)
	for _, row := range rows {
		if policy.InWindow(now, row.VisitedAt) {
			recentByID[row.ID] = append(recentByID[row.ID], row.VisitedAt)
		}
	}

	for _, c := range counts {
		t.ledger.Seed(c.ID, c.Count, recentByID[c.ID])
		delete(recentByID, c.ID)
	}
	for id, ts := range recentByID {
		t.ledger.Seed(id, uint64(len(ts)), ts)
	}

	// Oldest first, so the newest ends up at the front.
	for _, id := range lastN {
		t.recent.Touch(id)
	}

	_, _ = t.ledger.PurgeAndSnapshot(now, t.config.Window, t.config.TopK)
	_, evicted := t.ledger.LastPurge()

	t.logger.Infow("Rehydrated visit ledger",
		logger.FieldTracked, t.ledger.Len(),
		logger.FieldEvicted, evicted,
		"durable_identifiers", len(counts),
		"recent_rows", len(rows),
		"last_visitors", len(lastN))

	return nil
}

func (t *VisitTracker) Ledger() *Ledger {
	return t.ledger
}

func (t *VisitTracker) Recent() *RecentQueue {
	return t.recent
}

func (t *VisitTracker) Config() TrackerConfig {
	return t.config
}

func (t *VisitTracker) GetSystemMetrics() *models.SystemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := &models.SystemStats{
		TotalVisits:     t.totalVisits.Load(),
		TrackedVisitors: t.ledger.Len(),
		RecentVisitors:  t.recent.Len(),
		MemoryUsage:     int64(m.Alloc),
		Uptime:          t.clock().Sub(time.Unix(0, t.startTime.Load())).String(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.HostMemoryUsed = vm.UsedPercent
	}

	if last := t.lastVisit.Load(); last != 0 {
		stats.LastVisitTime = time.Unix(0, last).UTC()
	}

	stats.LastPurgeTime, stats.LastPurgeEvicted = t.ledger.LastPurge()

	return stats
}

func (t *VisitTracker) Reset() {
	t.ledger.Reset()
	t.recent.Reset()
	t.totalVisits.Store(0)
	t.lastVisit.Store(0)
	t.startTime.Store(t.clock().UnixNano())
}

func sortCounts(counts []models.CountEntry) {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].ID < counts[j].ID
	})
}
