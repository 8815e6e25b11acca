package storage

import (
	"sort"
	"time"

	"hit-tracker/pkg/models"
)

// RetentionPolicy decides which identifiers and timestamps stay in memory
// after a purge: a record survives if it was active within Window or if its
// all-time count reaches the TopK-th largest count.
//
// The K-th threshold counts duplicates individually, so every identifier tied
// at the K-th count survives and the survivor set may exceed TopK entries.
// TopK <= 0 disables count-based retention.
type RetentionPolicy struct {
	Window time.Duration
	TopK   int
}

// Threshold returns the TopK-th largest value of counts.
// It returns 0 when counts has fewer than TopK values, including when empty.
func (p RetentionPolicy) Threshold(counts []uint64) uint64 {
	if p.TopK <= 0 || len(counts) < p.TopK {
		return 0
	}

	sorted := make([]uint64, len(counts))
	copy(sorted, counts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] > sorted[j]
	})

	return sorted[p.TopK-1]
}

// InWindow reports whether ts lies in [now-Window, now].
// Instants after now come from a skewed clock and never count as recent.
func (p RetentionPolicy) InWindow(now, ts time.Time) bool {
	if ts.After(now) {
		return false
	}
	return !ts.Before(now.Add(-p.Window))
}

// FilterTimestamps returns the timestamps of ts that are in the window.
// The input slice is not modified.
func (p RetentionPolicy) FilterTimestamps(now time.Time, ts []time.Time) []time.Time {
	kept := make([]time.Time, 0, len(ts))
	for _, t := range ts {
		if p.InWindow(now, t) {
			kept = append(kept, t)
		}
	}
	return kept
}

// Retains applies the survival rule to an already filtered record.
func (p RetentionPolicy) Retains(count uint64, recent int, threshold uint64) bool {
	if recent > 0 {
		return true
	}
	return p.TopK > 0 && count >= threshold
}

// Apply returns the surviving entries with their timestamps filtered to the window.
// Order of the input is preserved.
func (p RetentionPolicy) Apply(now time.Time, entries []models.LedgerEntry) []models.LedgerEntry {
	counts := make([]uint64, len(entries))
	for i, e := range entries {
		counts[i] = e.AllTimeCount
	}
	threshold := p.Threshold(counts)

	survivors := make([]models.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		kept := p.FilterTimestamps(now, e.RecentTimestamps)
		if !p.Retains(e.AllTimeCount, len(kept), threshold) {
			continue
		}
		survivors = append(survivors, models.LedgerEntry{
			ID:               e.ID,
			AllTimeCount:     e.AllTimeCount,
			RecentTimestamps: kept,
		})
	}
	return survivors
}
