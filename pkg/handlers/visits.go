package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"hit-tracker/pkg/logger"
	"hit-tracker/pkg/models"
	"hit-tracker/pkg/monitoring"
	"hit-tracker/pkg/report"
	"hit-tracker/pkg/syncer"
)

// UnidentifiedMessage is returned when a request carries no usable client address.
const UnidentifiedMessage = "something weird about how you're accessing this site\n"

// Tracker is the in-memory visit state served over HTTP.
type Tracker interface {
	RecordVisit(id string) models.CombinedSnapshot
	View() models.CombinedSnapshot
	GetSystemMetrics() *models.SystemStats
}

// SyncStatus reports on the durable sync loop. May be nil.
type SyncStatus interface {
	Watermark() time.Time
	State() syncer.State
	Stats() syncer.Stats
}

// ClientIP identifies the visitor. X-Real-IP wins; when a proxy chain left a
// comma list there, the last entry is the one our proxy appended. Otherwise
// the host part of RemoteAddr is used.
func ClientIP(r *http.Request) string {
	if header := r.Header.Get("X-Real-IP"); header != "" {
		parts := strings.Split(header, ",")
		if ip := strings.TrimSpace(parts[len(parts)-1]); ip != "" {
			return ip
		}
	}

	if r.RemoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// VisitHandler records a visit for the caller and answers with the text report.
func VisitHandler(tracker Tracker, opts report.Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := ClientIP(r)
		if id == "" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(UnidentifiedMessage))
			return
		}

		snap := tracker.RecordVisit(id)

		log := logger.LoggerFromContext(r.Context())
		log.Debugw("Visit recorded", logger.FieldIdentifier, id)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := report.Render(w, report.Sections(snap, opts)); err != nil {
			log.Warnw("Failed to write report", logger.FieldError, err)
		}
	}
}

// StatsHandler returns the combined view as JSON without recording a visit.
func StatsHandler(tracker Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.APIResponse{
			Success: true,
			Data:    tracker.View(),
		})
	}
}

func HealthHandler(sync SyncStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := models.HealthStatus{Status: "healthy"}
		if sync != nil {
			health.Watermark = sync.Watermark()
			health.SyncState = sync.State().String()
		}
		writeJSON(w, http.StatusOK, health)
	}
}

type MetricsResponse struct {
	Requests *monitoring.Snapshot `json:"requests"`
	System   *models.SystemStats  `json:"system"`
	Sync     *syncer.Stats        `json:"sync,omitempty"`
}

func MetricsHandler(collector *monitoring.Collector, tracker Tracker, sync SyncStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := MetricsResponse{
			Requests: collector.Snapshot(),
			System:   tracker.GetSystemMetrics(),
		}
		if sync != nil {
			stats := sync.Stats()
			resp.Sync = &stats
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Success: true, Data: resp})
	}
}

// NotFoundHandler answers unknown routes with the JSON error shape.
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no such endpoint: "+r.URL.Path)
	}
}

func MethodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Logger.Warnw("Failed to encode response", logger.FieldError, err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, models.ErrorResponse{
		Success: false,
		Error:   msg,
		Code:    code,
	})
}
