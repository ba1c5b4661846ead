package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/punchamoorthee/procurefin/internal/domain"
	"github.com/punchamoorthee/procurefin/internal/models"
	"github.com/punchamoorthee/procurefin/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procurefin_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "procurefin_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type PlanService interface {
	Create(ctx context.Context, req models.CreatePlanRequest) (domain.Plan, error)
	List(ctx context.Context) ([]domain.Plan, error)
	Get(ctx context.Context, id string) (models.PlanResponse, error)
	Activate(ctx context.Context, id string) (models.SnapshotResponse, error)
	RegenerateSnapshot(ctx context.Context, id string) (models.SnapshotResponse, error)
	Close(ctx context.Context, id string) (domain.Plan, error)
	Reopen(ctx context.Context, id string) (domain.Plan, error)
	Reconcile(ctx context.Context, id string) (models.ReconciliationResponse, error)
}

type ContributionService interface {
	Record(ctx context.Context, req models.RecordContributionRequest) (models.ContributionResponse, error)
	Post(ctx context.Context, id string, req models.PostContributionRequest, idempotencyKey, reqHash string) (*models.ContributionResponse, *models.IdempotencyRecord, error)
	Void(ctx context.Context, id string) (models.ContributionResponse, error)
}

type PayableService interface {
	Status(ctx context.Context, id string) (models.PayableStatusResponse, error)
	OutstandingTax(ctx context.Context, id string) (models.OutstandingTaxResponse, error)
}

type Handler struct {
	plans         PlanService
	contributions ContributionService
	payables      PayableService
	log           *zap.Logger
	loc           *time.Location
	now           func() time.Time
}

// NewHandler wires the services. loc decides "today" for calculator requests
// that do not name one.
func NewHandler(plans PlanService, contributions ContributionService, payables PayableService, log *zap.Logger, loc *time.Location) *Handler {
	return &Handler{plans: plans, contributions: contributions, payables: payables, log: log, loc: loc, now: time.Now}
}

// NewRouter mounts every route. gate guards the mutating ledger routes.
func NewRouter(h *Handler, gate mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(instrument)
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()

	calc := apiV1.PathPrefix("/calc").Subrouter()
	calc.HandleFunc("/prorate", h.ProrateHandler).Methods("POST")
	calc.HandleFunc("/tax/base", h.TaxFromBaseHandler).Methods("POST")
	calc.HandleFunc("/tax/gross", h.TaxFromGrossHandler).Methods("POST")
	calc.HandleFunc("/tax/proportional", h.TaxProportionalHandler).Methods("POST")
	calc.HandleFunc("/due-date", h.DueDateHandler).Methods("POST")
	calc.HandleFunc("/payment-status", h.PaymentStatusHandler).Methods("POST")
	calc.HandleFunc("/fifo", h.FIFOHandler).Methods("POST")

	apiV1.HandleFunc("/plans", h.ListPlansHandler).Methods("GET")
	apiV1.HandleFunc("/plans/{id}", h.GetPlanHandler).Methods("GET")
	apiV1.HandleFunc("/plans/{id}/reconciliation", h.ReconcilePlanHandler).Methods("GET")
	apiV1.HandleFunc("/payables/{id}/status", h.PayableStatusHandler).Methods("GET")
	apiV1.HandleFunc("/payables/{id}/outstanding-tax", h.OutstandingTaxHandler).Methods("GET")

	write := apiV1.NewRoute().Subrouter()
	write.Use(gate, h.audit)
	write.HandleFunc("/plans", h.CreatePlanHandler).Methods("POST")
	write.HandleFunc("/plans/{id}/activate", h.ActivatePlanHandler).Methods("POST")
	write.HandleFunc("/plans/{id}/snapshot", h.SnapshotPlanHandler).Methods("POST")
	write.HandleFunc("/plans/{id}/close", h.ClosePlanHandler).Methods("POST")
	write.HandleFunc("/plans/{id}/reopen", h.ReopenPlanHandler).Methods("POST")
	write.HandleFunc("/contributions", h.RecordContributionHandler).Methods("POST")
	write.HandleFunc("/contributions/{id}/post", h.PostContributionHandler).Methods("POST")
	write.HandleFunc("/contributions/{id}/void", h.VoidContributionHandler).Methods("POST")

	return r
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument records request counts and latency per route template.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
		defer timer.ObserveDuration()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

// audit logs every mutating call with the caller the gate identified.
func (h *Handler) audit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Info("ledger write",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("subject", Subject(r.Context())),
			zap.String("role", Role(r.Context())),
			zap.Int("status", rec.status),
		)
	})
}

// decodeJSON reports 422 for well-formed bodies carrying invalid amounts or
// terms and 400 for anything else it cannot read.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if domain.IsValidation(err) {
			respondWithError(w, http.StatusUnprocessableEntity, err.Error())
			return false
		}
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return false
	}
	return true
}

// respondWithServiceError maps sentinel errors to status codes. Anything
// unrecognised is logged and hidden behind a 500.
func (h *Handler) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrIdempotencyConflict):
		respondWithError(w, http.StatusConflict, "Request processing in progress")
	case errors.Is(err, service.ErrIdempotencyMismatch):
		respondWithError(w, http.StatusUnprocessableEntity, "Key reuse with mismatched payload")
	case errors.Is(err, domain.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case domain.IsValidation(err):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
