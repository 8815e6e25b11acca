package models

import "time"

// VisitRecord is the in-memory state kept per identifier.
// AllTimeCount >= len(RecentTimestamps) always holds.
type VisitRecord struct {
	AllTimeCount     uint64
	RecentTimestamps []time.Time
}

// LedgerEntry is a copied (identifier, count, timestamps) triple.
type LedgerEntry struct {
	ID               string      `json:"id"`
	AllTimeCount     uint64      `json:"all_time_count"`
	RecentTimestamps []time.Time `json:"recent_timestamps"`
}

type CountEntry struct {
	ID    string `json:"id"`
	Count uint64 `json:"count"`
}

// CombinedSnapshot is the consistent view returned to callers after a visit.
// Count lists are ordered by count descending, then identifier ascending.
type CombinedSnapshot struct {
	AllTimeCounts         []CountEntry `json:"all_time_counts"`
	RecentCountsInWindow  []CountEntry `json:"recent_counts_in_window"`
	LastNDistinctVisitors []string     `json:"last_n_distinct_visitors"`
	TakenAt               time.Time    `json:"taken_at"`
}

// VisitRow is one durable row: a single visit by one identifier.
type VisitRow struct {
	ID        string    `json:"id"`
	VisitedAt time.Time `json:"visited_at"`
}

type SystemStats struct {
	TotalVisits      int64     `json:"total_visits"`
	TrackedVisitors  int       `json:"tracked_visitors"`
	RecentVisitors   int       `json:"recent_visitors"`
	MemoryUsage      int64     `json:"memory_usage_bytes"`
	HostMemoryUsed   float64   `json:"host_memory_used_percent,omitempty"`
	Uptime           string    `json:"uptime"`
	LastVisitTime    time.Time `json:"last_visit_time,omitempty"`
	LastPurgeTime    time.Time `json:"last_purge_time,omitempty"`
	LastPurgeEvicted int       `json:"last_purge_evicted"`
}

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

type HealthStatus struct {
	Status    string    `json:"status"`
	Watermark time.Time `json:"watermark"`
	SyncState string    `json:"sync_state"`
}
