package storage

import (
	"sort"
	"sync"
	"time"

	"hit-tracker/pkg/models"
)

// Ledger maps identifiers to their visit records.
//
// All mutation happens under mu. Nothing in here performs I/O, so holders of
// the lock are bounded by O(tracked identifiers) at worst (purge).
type Ledger struct {
	records map[string]*models.VisitRecord
	clock   func() time.Time
	mu      sync.Mutex

	// lastStamp is the latest instant handed out or fenced. Visit stamps are
	// strictly after it, so a purge instant doubles as an exclusive watermark.
	lastStamp time.Time

	lastPurgeAt      time.Time
	lastPurgeEvicted int
}

type LedgerOption func(*Ledger)

// WithClock replaces time.Now as the source of visit timestamps.
func WithClock(clock func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		records: make(map[string]*models.VisitRecord),
		clock:   time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// RecordVisit counts one visit for id at the current clock instant and
// returns a copy of the whole ledger as it stood right after the update.
func (l *Ledger) RecordVisit(id string) []models.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, exists := l.records[id]
	if !exists {
		rec = &models.VisitRecord{}
		l.records[id] = rec
	}
	rec.AllTimeCount++
	rec.RecentTimestamps = append(rec.RecentTimestamps, l.stampLocked())

	return l.snapshotLocked()
}

func (l *Ledger) Snapshot() []models.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.snapshotLocked()
}

// PurgeAndSnapshot applies the retention policy for (window, topK) at now,
// evicting records in place, and returns now along with the snapshot taken
// before any timestamp was filtered. The pre-filter snapshot is what the sync
// step needs: it still holds every visit made since the last sync.
func (l *Ledger) PurgeAndSnapshot(now time.Time, window time.Duration, topK int) (time.Time, []models.LedgerEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.purgeLocked(now, RetentionPolicy{Window: window, TopK: topK})
}

// Purge is PurgeAndSnapshot with now read from the ledger clock while the lock
// is held. Every visit recorded afterwards is stamped strictly after now.
func (l *Ledger) Purge(window time.Duration, topK int) (time.Time, []models.LedgerEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if now.Before(l.lastStamp) {
		now = l.lastStamp
	}
	l.lastStamp = now

	return l.purgeLocked(now, RetentionPolicy{Window: window, TopK: topK})
}

// Fence makes every later visit stamp fall strictly after t.
func (l *Ledger) Fence(t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t.After(l.lastStamp) {
		l.lastStamp = t
	}
}

func (l *Ledger) stampLocked() time.Time {
	now := l.clock()
	if !now.After(l.lastStamp) {
		now = l.lastStamp.Add(time.Nanosecond)
	}
	l.lastStamp = now
	return now
}

func (l *Ledger) purgeLocked(now time.Time, policy RetentionPolicy) (time.Time, []models.LedgerEntry) {
	snapshot := l.snapshotLocked()

	counts := make([]uint64, 0, len(l.records))
	for _, rec := range l.records {
		rec.RecentTimestamps = policy.FilterTimestamps(now, rec.RecentTimestamps)
		counts = append(counts, rec.AllTimeCount)
	}

	threshold := policy.Threshold(counts)
	evicted := 0
	for id, rec := range l.records {
		if !policy.Retains(rec.AllTimeCount, len(rec.RecentTimestamps), threshold) {
			delete(l.records, id)
			evicted++
		}
	}

	l.lastPurgeAt = now
	l.lastPurgeEvicted = evicted

	return now, snapshot
}

// Seed installs a record during rehydration, replacing any existing one.
// count is raised to len(timestamps) if it would otherwise break the
// count >= timestamps invariant.
func (l *Ledger) Seed(id string, count uint64, timestamps []time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := make([]time.Time, len(timestamps))
	copy(ts, timestamps)
	sort.Slice(ts, func(i, j int) bool {
		return ts[i].Before(ts[j])
	})

	if count < uint64(len(ts)) {
		count = uint64(len(ts))
	}

	l.records[id] = &models.VisitRecord{
		AllTimeCount:     count,
		RecentTimestamps: ts,
	}
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.records)
}

// LastPurge reports when the last purge ran and how many records it evicted.
func (l *Ledger) LastPurge() (time.Time, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.lastPurgeAt, l.lastPurgeEvicted
}

func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = make(map[string]*models.VisitRecord)
	l.lastStamp = time.Time{}
	l.lastPurgeAt = time.Time{}
	l.lastPurgeEvicted = 0
}

// snapshotLocked deep-copies the ledger, ordered by count descending then id.
func (l *Ledger) snapshotLocked() []models.LedgerEntry {
	entries := make([]models.LedgerEntry, 0, len(l.records))
	for id, rec := range l.records {
		ts := make([]time.Time, len(rec.RecentTimestamps))
		copy(ts, rec.RecentTimestamps)
		entries = append(entries, models.LedgerEntry{
			ID:               id,
			AllTimeCount:     rec.AllTimeCount,
			RecentTimestamps: ts,
		})
	}

	sortEntries(entries)
	return entries
}

func sortEntries(entries []models.LedgerEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AllTimeCount != entries[j].AllTimeCount {
			return entries[i].AllTimeCount > entries[j].AllTimeCount
		}
		return entries[i].ID < entries[j].ID
	})
}
