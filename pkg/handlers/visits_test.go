package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hit-tracker/pkg/models"
	"hit-tracker/pkg/monitoring"
	"hit-tracker/pkg/report"
	"hit-tracker/pkg/storage"
	"hit-tracker/pkg/syncer"
)

type fakeSync struct {
	watermark time.Time
}

func (f fakeSync) Watermark() time.Time { return f.watermark }
func (f fakeSync) State() syncer.State  { return syncer.StateIdle }
func (f fakeSync) Stats() syncer.Stats {
	return syncer.Stats{State: "idle", Watermark: f.watermark, Cycles: 4, RowsWritten: 9}
}

func reportOptions() report.Options {
	return report.Options{RecentSize: 5, TopK: 10, Window: 10 * time.Minute}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		remoteAddr string
		want       string
	}{
		{"header", "203.0.113.7", "10.0.0.1:5555", "203.0.113.7"},
		{"header list takes last", "198.51.100.1, 203.0.113.7", "10.0.0.1:5555", "203.0.113.7"},
		{"header list trims", "198.51.100.1,   203.0.113.9  ", "", "203.0.113.9"},
		{"empty last entry falls back", "198.51.100.1, ", "10.0.0.1:5555", "10.0.0.1"},
		{"remote addr", "", "10.0.0.1:5555", "10.0.0.1"},
		{"remote addr ipv6", "", "[2001:db8::1]:443", "2001:db8::1"},
		{"remote addr without port", "", "10.0.0.2", "10.0.0.2"},
		{"nothing", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.header != "" {
				req.Header.Set("X-Real-IP", tt.header)
			}

			if got := ClientIP(req); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestVisitHandler_Success(t *testing.T) {
	tracker := storage.NewVisitTracker()
	handler := VisitHandler(tracker, reportOptions())

	for _, ip := range []string{"1.1.1.1", "1.1.1.1", "1.1.1.1", "2.2.2.2"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Real-IP", ip)
		w := httptest.NewRecorder()
		handler(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
		}
		if i := w.Header().Get("Content-Type"); !strings.HasPrefix(i, "text/plain") {
			t.Errorf("Expected text/plain, got %s", i)
		}
		if ip == "2.2.2.2" {
			body := w.Body.String()
			if !strings.HasPrefix(body, "Last 5\n======\n2.2.2.2\n1.1.1.1\n") {
				t.Errorf("Unexpected recency section:\n%s", body)
			}
			if !strings.Contains(body, "Top 10\n======\n1.1.1.1: 3\n2.2.2.2: 1\n") {
				t.Errorf("Unexpected top section:\n%s", body)
			}
			if !strings.Contains(body, "Top 10 in last 10 min\n") {
				t.Errorf("Missing windowed section:\n%s", body)
			}
		}
	}
}

func TestVisitHandler_Unidentified(t *testing.T) {
	tracker := storage.NewVisitTracker()
	handler := VisitHandler(tracker, reportOptions())

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = ""

	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if w.Body.String() != UnidentifiedMessage {
		t.Errorf("Expected %q, got %q", UnidentifiedMessage, w.Body.String())
	}
	if n := tracker.GetSystemMetrics().TotalVisits; n != 0 {
		t.Errorf("Expected no visit recorded, got %d", n)
	}
}

func TestStatsHandler_DoesNotRecord(t *testing.T) {
	tracker := storage.NewVisitTracker()
	tracker.RecordVisit("1.1.1.1")
	tracker.RecordVisit("2.2.2.2")
	handler := StatsHandler(tracker)

	req := httptest.NewRequest("GET", "/stats", nil)
	req.Header.Set("X-Real-IP", "9.9.9.9")

	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response struct {
		Success bool                    `json:"success"`
		Data    models.CombinedSnapshot `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if !response.Success {
		t.Errorf("Expected success=true, got %t", response.Success)
	}
	if len(response.Data.AllTimeCounts) != 2 {
		t.Errorf("Expected 2 identifiers, got %d", len(response.Data.AllTimeCounts))
	}
	if len(response.Data.LastNDistinctVisitors) != 2 || response.Data.LastNDistinctVisitors[0] != "2.2.2.2" {
		t.Errorf("Unexpected last visitors: %v", response.Data.LastNDistinctVisitors)
	}
}

func TestHealthHandler(t *testing.T) {
	watermark := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	handler := HealthHandler(fakeSync{watermark: watermark})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var health models.HealthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to unmarshal health: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("Expected healthy, got %s", health.Status)
	}
	if !health.Watermark.Equal(watermark) {
		t.Errorf("Expected watermark %v, got %v", watermark, health.Watermark)
	}
	if health.SyncState != "idle" {
		t.Errorf("Expected idle sync state, got %s", health.SyncState)
	}
}

func TestHealthHandler_NoSync(t *testing.T) {
	handler := HealthHandler(nil)

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestMetricsHandler(t *testing.T) {
	collector := monitoring.NewCollector()
	collector.RecordRequest("/", time.Millisecond, 200)
	tracker := storage.NewVisitTracker()
	tracker.RecordVisit("1.1.1.1")

	handler := MetricsHandler(collector, tracker, fakeSync{watermark: time.Now()})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response struct {
		Success bool            `json:"success"`
		Data    MetricsResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal metrics: %v", err)
	}
	if response.Data.Requests == nil || response.Data.Requests.TotalRequests != 1 {
		t.Errorf("Expected 1 request in metrics, got %+v", response.Data.Requests)
	}
	if response.Data.System == nil || response.Data.System.TotalVisits != 1 {
		t.Errorf("Expected 1 visit in system metrics, got %+v", response.Data.System)
	}
	if response.Data.Sync == nil || response.Data.Sync.RowsWritten != 9 {
		t.Errorf("Expected sync stats, got %+v", response.Data.Sync)
	}
}

func TestNotFoundHandler(t *testing.T) {
	w := httptest.NewRecorder()
	NotFoundHandler()(w, httptest.NewRequest("GET", "/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	var response models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal error response: %v", err)
	}
	if response.Success || response.Code != "NOT_FOUND" {
		t.Errorf("Unexpected error response %+v", response)
	}
}

func BenchmarkVisitHandler(b *testing.B) {
	tracker := storage.NewVisitTracker()
	handler := VisitHandler(tracker, reportOptions())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		w := httptest.NewRecorder()
		handler(w, req)
	}
}
