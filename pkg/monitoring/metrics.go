package monitoring

import (
	"sync"
	"time"
)

// latencySamples bounds the rolling latency window.
const latencySamples = 1000

// Collector aggregates HTTP request metrics and durable sync outcomes.
type Collector struct {
	mu sync.RWMutex

	startTime time.Time

	requests    int64
	errors      int64
	lastRequest time.Time
	latencies   []time.Duration
	next        int
	routes      map[string]*RouteMetrics
	statusCodes map[int]int64

	sync SyncMetrics
}

type RouteMetrics struct {
	Requests    int64         `json:"requests"`
	Errors      int64         `json:"errors"`
	TotalTime   time.Duration `json:"total_time"`
	MinTime     time.Duration `json:"min_time"`
	MaxTime     time.Duration `json:"max_time"`
	LastRequest time.Time     `json:"last_request"`
}

type SyncMetrics struct {
	Cycles        int64         `json:"cycles"`
	Failures      int64         `json:"failures"`
	RowsWritten   int64         `json:"rows_written"`
	LastDuration  time.Duration `json:"last_duration"`
	LastSuccessAt time.Time     `json:"last_success_at,omitempty"`
	LastFailureAt time.Time     `json:"last_failure_at,omitempty"`
	LastError     string        `json:"last_error,omitempty"`
}

type Snapshot struct {
	TotalRequests       int64                   `json:"total_requests"`
	AverageResponseTime time.Duration           `json:"average_response_time"`
	MinResponseTime     time.Duration           `json:"min_response_time"`
	MaxResponseTime     time.Duration           `json:"max_response_time"`
	RequestsPerSecond   float64                 `json:"requests_per_second"`
	ErrorRate           float64                 `json:"error_rate"`
	Uptime              time.Duration           `json:"uptime"`
	LastRequestTime     time.Time               `json:"last_request_time"`
	Routes              map[string]RouteMetrics `json:"routes"`
	StatusCodes         map[int]int64           `json:"status_codes"`
	Sync                SyncMetrics             `json:"sync"`
}

func NewCollector() *Collector {
	return &Collector{
		startTime:   time.Now(),
		latencies:   make([]time.Duration, 0, latencySamples),
		routes:      make(map[string]*RouteMetrics),
		statusCodes: make(map[int]int64),
	}
}

// RecordRequest counts one served request. route is the mux path template,
// not the raw URL, so the route map stays bounded.
func (c *Collector) RecordRequest(route string, elapsed time.Duration, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.requests++
	c.lastRequest = now

	if len(c.latencies) < latencySamples {
		c.latencies = append(c.latencies, elapsed)
	} else {
		c.latencies[c.next] = elapsed
	}
	c.next = (c.next + 1) % latencySamples

	failed := status >= 400
	if failed {
		c.errors++
	}
	c.statusCodes[status]++

	rm, ok := c.routes[route]
	if !ok {
		rm = &RouteMetrics{MinTime: elapsed, MaxTime: elapsed}
		c.routes[route] = rm
	}
	rm.Requests++
	rm.TotalTime += elapsed
	rm.LastRequest = now
	if elapsed < rm.MinTime {
		rm.MinTime = elapsed
	}
	if elapsed > rm.MaxTime {
		rm.MaxTime = elapsed
	}
	if failed {
		rm.Errors++
	}
}

// RecordSyncCycle counts one scheduler cycle; err is nil on success.
func (c *Collector) RecordSyncCycle(rows int, elapsed time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sync.Cycles++
	c.sync.LastDuration = elapsed
	if err != nil {
		c.sync.Failures++
		c.sync.LastFailureAt = time.Now()
		c.sync.LastError = err.Error()
		return
	}
	c.sync.RowsWritten += int64(rows)
	c.sync.LastSuccessAt = time.Now()
	c.sync.LastError = ""
}

func (c *Collector) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := &Snapshot{
		TotalRequests:   c.requests,
		Uptime:          time.Since(c.startTime),
		LastRequestTime: c.lastRequest,
		Routes:          make(map[string]RouteMetrics, len(c.routes)),
		StatusCodes:     make(map[int]int64, len(c.statusCodes)),
		Sync:            c.sync,
	}

	if len(c.latencies) > 0 {
		var total time.Duration
		snap.MinResponseTime = c.latencies[0]
		snap.MaxResponseTime = c.latencies[0]
		for _, d := range c.latencies {
			total += d
			if d < snap.MinResponseTime {
				snap.MinResponseTime = d
			}
			if d > snap.MaxResponseTime {
				snap.MaxResponseTime = d
			}
		}
		snap.AverageResponseTime = total / time.Duration(len(c.latencies))
	}

	if secs := snap.Uptime.Seconds(); secs > 0 {
		snap.RequestsPerSecond = float64(c.requests) / secs
	}
	if c.requests > 0 {
		snap.ErrorRate = float64(c.errors) / float64(c.requests) * 100
	}

	for route, rm := range c.routes {
		snap.Routes[route] = *rm
	}
	for code, n := range c.statusCodes {
		snap.StatusCodes[code] = n
	}

	return snap
}

// Route returns a copy of one route's counters, or nil if never hit.
func (c *Collector) Route(route string) *RouteMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rm, ok := c.routes[route]
	if !ok {
		return nil
	}
	out := *rm
	return &out
}

func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.requests = 0
	c.errors = 0
	c.lastRequest = time.Time{}
	c.latencies = c.latencies[:0]
	c.next = 0
	c.routes = make(map[string]*RouteMetrics)
	c.statusCodes = make(map[int]int64)
	c.sync = SyncMetrics{}
}
