// Package api serves outage detection over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/1F47E/geo-outage-rtree/internal/logging"
	"github.com/1F47E/geo-outage-rtree/pkg/cluster"
	"github.com/1F47E/geo-outage-rtree/pkg/geo"
	"github.com/1F47E/geo-outage-rtree/pkg/geocode"
	"github.com/1F47E/geo-outage-rtree/pkg/metrics"
	"github.com/1F47E/geo-outage-rtree/pkg/models"
	"github.com/1F47E/geo-outage-rtree/pkg/pipeline"
)

const maxBodyBytes = 32 << 20

// Options configures a Server.
type Options struct {
	Runner          *pipeline.Runner
	Metrics         *metrics.Collector
	Log             logging.Logger
	Metric          geo.Metric
	DefaultPostcode string
}

// Server holds the HTTP handlers.
type Server struct {
	runner   *pipeline.Runner
	metrics  *metrics.Collector
	log      logging.Logger
	metric   geo.Metric
	postcode string
}

func New(opts Options) *Server {
	s := &Server{
		runner:   opts.Runner,
		metrics:  opts.Metrics,
		log:      opts.Log,
		metric:   opts.Metric,
		postcode: opts.DefaultPostcode,
	}
	if s.log == nil {
		s.log = logging.Noop()
	}
	if s.metric == nil {
		s.metric = geo.Vincenty
	}
	return s
}

// Router returns the chi router with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/detect", s.handleDetect)
		r.Get("/snapshot", s.handleSnapshot)
		r.Post("/refresh", s.handleRefresh)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, log := logging.WithRequestLogger(r.Context(), s.log)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(ctx))

		log.Debug(ctx, "request handled",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Any("took", time.Since(start)))
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_, log := logging.WithRequestLogger(r.Context(), s.log)
		log.Error(r.Context(), "failed to encode response",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Err(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.writeJSON(w, r, status, errorResponse{Error: err.Error()})
}

// healthResponse is returned by GET /healthz. LastRefresh is omitted until
// the first successful refresh.
type healthResponse struct {
	OK           bool       `json:"ok"`
	Service      string     `json:"service"`
	LastPostcode string     `json:"last_postcode,omitempty"`
	LastRefresh  *time.Time `json:"last_refresh,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{OK: true, Service: "outagemap"}
	if s.runner != nil && s.runner.State != nil {
		if last := s.runner.State.LastRefresh(); !last.IsZero() {
			resp.LastRefresh = &last
			resp.LastPostcode = s.runner.State.LastPostcode()
		}
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

// DetectRequest is the body of POST /v1/detect. Omitted parameters fall back
// to the server's configured values.
type DetectRequest struct {
	Nodes          []models.Node `json:"nodes"`
	RadiusMeters   *float64      `json:"radius_meters,omitempty"`
	ThresholdRatio *float64      `json:"threshold_ratio,omitempty"`
	Strategy       string        `json:"strategy,omitempty"`
}

// DetectResponse is returned by POST /v1/detect.
type DetectResponse struct {
	Zones     []models.AffectedZone `json:"zones"`
	Locations []models.Location     `json:"locations"`
	Summary   cluster.Summary       `json:"summary"`
	Strategy  string                `json:"strategy"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, errors.New("malformed request body: "+err.Error()))
		return
	}

	params := s.defaultParams()
	if req.RadiusMeters != nil {
		params.RadiusMeters = *req.RadiusMeters
	}
	if req.ThresholdRatio != nil {
		params.ThresholdRatio = *req.ThresholdRatio
	}

	strategy := cluster.StrategyRTree
	if s.runner != nil && s.runner.Detector != nil {
		strategy = s.runner.Detector.Strategy()
	}
	if req.Strategy != "" {
		parsed, err := cluster.ParseStrategy(req.Strategy)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		strategy = parsed
	}

	detector := cluster.NewDetector(cluster.WithStrategy(strategy), cluster.WithMetric(s.metric))
	start := time.Now()
	report, err := detector.Report(req.Nodes, params.RadiusMeters, params.ThresholdRatio)
	s.metrics.ObserveDetection(strategy.String(), time.Since(start), err)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, cluster.ErrInvalidParameter) || errors.Is(err, cluster.ErrInvalidLocation) {
			status = http.StatusBadRequest
		}
		s.writeError(w, r, status, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, DetectResponse{
		Zones:     report.Zones,
		Locations: cluster.Locations(report.Zones),
		Summary:   report.Summary,
		Strategy:  strategy.String(),
	})
}

func (s *Server) defaultParams() pipeline.Params {
	if s.runner != nil {
		return s.runner.Params
	}
	return pipeline.Params{RadiusMeters: 200, ThresholdRatio: 0.5}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil || s.runner.State == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, errors.New("no snapshot source configured"))
		return
	}

	if postcode := strings.TrimSpace(r.URL.Query().Get("postcode")); postcode != "" {
		snap, _, err := s.runner.Ensure(r.Context(), postcode)
		if err != nil {
			s.writeError(w, r, refreshStatus(err), err)
			return
		}
		s.writeJSON(w, r, http.StatusOK, snap)
		return
	}

	snap, ok := s.runner.State.Current()
	if !ok {
		s.writeError(w, r, http.StatusServiceUnavailable, errors.New("no snapshot yet"))
		return
	}
	s.writeJSON(w, r, http.StatusOK, snap)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, errors.New("no snapshot source configured"))
		return
	}

	postcode := strings.TrimSpace(r.URL.Query().Get("postcode"))
	if postcode == "" && s.runner.State != nil {
		postcode = s.runner.State.LastPostcode()
	}
	if postcode == "" {
		postcode = s.postcode
	}

	snap, err := s.runner.Refresh(r.Context(), postcode)
	if err != nil {
		s.writeError(w, r, refreshStatus(err), err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, snap)
}

func refreshStatus(err error) int {
	switch {
	case errors.Is(err, geocode.ErrUnknownPostcode):
		return http.StatusNotFound
	case errors.Is(err, cluster.ErrInvalidParameter), errors.Is(err, cluster.ErrInvalidLocation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
