package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"hit-tracker/pkg/errors"
	"hit-tracker/pkg/handlers"
	"hit-tracker/pkg/logger"
	"hit-tracker/pkg/monitoring"
	"hit-tracker/pkg/report"
)

// RequestIDHeader is echoed back on every response.
const RequestIDHeader = "X-Request-ID"

// unmatchedRoute labels requests that hit no registered route.
const unmatchedRoute = "unmatched"

type Config struct {
	Port            int
	ShutdownTimeout time.Duration
	Report          report.Options
}

type Server struct {
	tracker handlers.Tracker
	sync    handlers.SyncStatus
	metrics *monitoring.Collector
	router  *mux.Router
	cfg     Config
	logger  *zap.SugaredLogger
}

// NewServer wires the HTTP surface. sync may be nil when no scheduler runs.
func NewServer(tracker handlers.Tracker, sync handlers.SyncStatus, metrics *monitoring.Collector, cfg Config, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = logger.ComponentLogger("server")
	}
	if metrics == nil {
		metrics = monitoring.NewCollector()
	}

	s := &Server{
		tracker: tracker,
		sync:    sync,
		metrics: metrics,
		router:  mux.NewRouter(),
		cfg:     cfg,
		logger:  log,
	}
	s.SetupRoutes()
	return s
}

func (s *Server) SetupRoutes() {
	s.router.HandleFunc("/", handlers.VisitHandler(s.tracker, s.cfg.Report)).Methods("GET")
	s.router.HandleFunc("/stats", handlers.StatsHandler(s.tracker)).Methods("GET")
	s.router.HandleFunc("/health", handlers.HealthHandler(s.sync)).Methods("GET")
	s.router.HandleFunc("/metrics", handlers.MetricsHandler(s.metrics, s.tracker, s.sync)).Methods("GET")

	s.router.NotFoundHandler = handlers.NotFoundHandler()
	s.router.MethodNotAllowedHandler = handlers.MethodNotAllowedHandler()
}

// Handler returns the router wrapped in request-ID, logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	return s.instrument(s.router)
}

// Start serves until ctx is cancelled, then drains in-flight requests for up
// to the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("Hit tracker listening",
			logger.FieldAddress, srv.Addr,
			"endpoints", []string{"GET /", "GET /stats", "GET /health", "GET /metrics"})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "listen on %s", srv.Addr)
	case <-ctx.Done():
	}

	s.logger.Infow("Shutting down HTTP server", "timeout", s.cfg.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	return nil
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)
		r = r.WithContext(logger.WithRequestID(r.Context(), requestID))

		route := s.routeTemplate(r)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		s.metrics.RecordRequest(route, elapsed, rec.status)

		logger.LoggerFromContext(r.Context()).Debugw("Request served",
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, rec.status,
			logger.FieldDurationMS, elapsed.Milliseconds())
	})
}

// routeTemplate keeps metric labels bounded to registered paths.
func (s *Server) routeTemplate(r *http.Request) string {
	var match mux.RouteMatch
	if !s.router.Match(r, &match) || match.MatchErr != nil || match.Route == nil {
		return unmatchedRoute
	}
	tmpl, err := match.Route.GetPathTemplate()
	if err != nil {
		return unmatchedRoute
	}
	return tmpl
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}
