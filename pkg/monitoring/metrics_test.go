package monitoring

import (
	"errors"
	"testing"
	"time"
)

func TestCollector_RecordRequest(t *testing.T) {
	collector := NewCollector()

	collector.RecordRequest("/", 2*time.Millisecond, 200)
	collector.RecordRequest("/stats", 1*time.Millisecond, 200)
	collector.RecordRequest("/", 3*time.Millisecond, 400)

	snap := collector.Snapshot()

	if snap.TotalRequests != 3 {
		t.Errorf("Expected 3 total requests, got %d", snap.TotalRequests)
	}

	if snap.ErrorRate < 33.0 || snap.ErrorRate > 34.0 {
		t.Errorf("Expected error rate ~33.33%%, got %.2f%%", snap.ErrorRate)
	}

	if len(snap.Routes) != 2 {
		t.Errorf("Expected 2 routes, got %d", len(snap.Routes))
	}

	visit, ok := snap.Routes["/"]
	if !ok {
		t.Fatal("Expected metrics for the visit route")
	}
	if visit.Requests != 2 {
		t.Errorf("Expected 2 visit requests, got %d", visit.Requests)
	}
	if visit.Errors != 1 {
		t.Errorf("Expected 1 visit error, got %d", visit.Errors)
	}
}

func TestCollector_ResponseTimes(t *testing.T) {
	collector := NewCollector()

	collector.RecordRequest("/", 100*time.Millisecond, 200)
	collector.RecordRequest("/", 200*time.Millisecond, 200)
	collector.RecordRequest("/", 300*time.Millisecond, 200)

	snap := collector.Snapshot()

	if snap.AverageResponseTime != 200*time.Millisecond {
		t.Errorf("Expected average response time 200ms, got %v", snap.AverageResponseTime)
	}
	if snap.MinResponseTime != 100*time.Millisecond {
		t.Errorf("Expected min response time 100ms, got %v", snap.MinResponseTime)
	}
	if snap.MaxResponseTime != 300*time.Millisecond {
		t.Errorf("Expected max response time 300ms, got %v", snap.MaxResponseTime)
	}
}

func TestCollector_LatencyWindowIsBounded(t *testing.T) {
	collector := NewCollector()

	collector.RecordRequest("/", time.Hour, 200)
	for i := 0; i < latencySamples; i++ {
		collector.RecordRequest("/", time.Millisecond, 200)
	}

	snap := collector.Snapshot()
	if snap.MaxResponseTime != time.Millisecond {
		t.Errorf("Expected the oldest sample to be overwritten, max is %v", snap.MaxResponseTime)
	}
	if snap.TotalRequests != latencySamples+1 {
		t.Errorf("Expected %d requests counted, got %d", latencySamples+1, snap.TotalRequests)
	}

	route := collector.Route("/")
	if route.MaxTime != time.Hour {
		t.Errorf("Expected route max to remember the slow request, got %v", route.MaxTime)
	}
}

func TestCollector_StatusCodes(t *testing.T) {
	collector := NewCollector()

	collector.RecordRequest("/", 100*time.Millisecond, 200)
	collector.RecordRequest("/", 100*time.Millisecond, 400)
	collector.RecordRequest("/health", 100*time.Millisecond, 503)
	collector.RecordRequest("/", 100*time.Millisecond, 200)

	snap := collector.Snapshot()

	if snap.StatusCodes[200] != 2 {
		t.Errorf("Expected 2 status 200, got %d", snap.StatusCodes[200])
	}
	if snap.StatusCodes[400] != 1 {
		t.Errorf("Expected 1 status 400, got %d", snap.StatusCodes[400])
	}
	if snap.StatusCodes[503] != 1 {
		t.Errorf("Expected 1 status 503, got %d", snap.StatusCodes[503])
	}
}

func TestCollector_RecordSyncCycle(t *testing.T) {
	collector := NewCollector()

	collector.RecordSyncCycle(4, 10*time.Millisecond, nil)
	collector.RecordSyncCycle(2, 20*time.Millisecond, errors.New("database is locked"))

	sync := collector.Snapshot().Sync
	if sync.Cycles != 2 {
		t.Errorf("Expected 2 cycles, got %d", sync.Cycles)
	}
	if sync.Failures != 1 {
		t.Errorf("Expected 1 failure, got %d", sync.Failures)
	}
	if sync.RowsWritten != 4 {
		t.Errorf("Expected only committed rows counted, got %d", sync.RowsWritten)
	}
	if sync.LastError != "database is locked" {
		t.Errorf("Expected last error recorded, got %q", sync.LastError)
	}
	if sync.LastDuration != 20*time.Millisecond {
		t.Errorf("Expected last duration 20ms, got %v", sync.LastDuration)
	}

	collector.RecordSyncCycle(1, time.Millisecond, nil)
	sync = collector.Snapshot().Sync
	if sync.LastError != "" {
		t.Errorf("Expected last error cleared after success, got %q", sync.LastError)
	}
	if sync.LastSuccessAt.IsZero() || sync.LastFailureAt.IsZero() {
		t.Error("Expected both success and failure times to be set")
	}
}

func TestCollector_Reset(t *testing.T) {
	collector := NewCollector()

	collector.RecordRequest("/", 100*time.Millisecond, 200)
	collector.RecordSyncCycle(3, time.Millisecond, nil)

	collector.Reset()

	snap := collector.Snapshot()
	if snap.TotalRequests != 0 {
		t.Errorf("Expected 0 requests after reset, got %d", snap.TotalRequests)
	}
	if len(snap.Routes) != 0 {
		t.Errorf("Expected 0 routes after reset, got %d", len(snap.Routes))
	}
	if len(snap.StatusCodes) != 0 {
		t.Errorf("Expected 0 status codes after reset, got %d", len(snap.StatusCodes))
	}
	if snap.Sync.Cycles != 0 {
		t.Errorf("Expected sync counters cleared, got %d cycles", snap.Sync.Cycles)
	}
}

func TestCollector_Route(t *testing.T) {
	collector := NewCollector()

	collector.RecordRequest("/stats", 100*time.Millisecond, 200)
	collector.RecordRequest("/stats", 200*time.Millisecond, 500)

	route := collector.Route("/stats")
	if route == nil {
		t.Fatal("Expected route metrics, got nil")
	}
	if route.Requests != 2 {
		t.Errorf("Expected 2 requests, got %d", route.Requests)
	}
	if route.Errors != 1 {
		t.Errorf("Expected 1 error, got %d", route.Errors)
	}
	if route.MinTime != 100*time.Millisecond {
		t.Errorf("Expected min time 100ms, got %v", route.MinTime)
	}
	if route.MaxTime != 200*time.Millisecond {
		t.Errorf("Expected max time 200ms, got %v", route.MaxTime)
	}

	if collector.Route("/nonexistent") != nil {
		t.Error("Expected nil for a route never hit")
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	collector := NewCollector()

	done := make(chan bool, 10)

	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				collector.RecordRequest("/", 50*time.Millisecond, 200)
				collector.RecordSyncCycle(1, time.Millisecond, nil)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	snap := collector.Snapshot()
	if snap.TotalRequests != 1000 {
		t.Errorf("Expected 1000 total requests, got %d", snap.TotalRequests)
	}
	if snap.Sync.RowsWritten != 1000 {
		t.Errorf("Expected 1000 rows written, got %d", snap.Sync.RowsWritten)
	}
}

func BenchmarkCollector_RecordRequest(b *testing.B) {
	collector := NewCollector()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			collector.RecordRequest("/", 100*time.Millisecond, 200)
		}
	})
}
