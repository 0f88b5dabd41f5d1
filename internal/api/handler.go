package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/campushq/campusledger/internal/auth"
	"github.com/campushq/campusledger/internal/cache"
	"github.com/campushq/campusledger/internal/domain"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campusledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// Store is the persistence surface the handlers drive. The Postgres
// implementation lives in internal/store.
type Store interface {
	ListReference(ctx context.Context, kind domain.ReferenceKind, params domain.ListParams) ([]domain.ReferenceEntry, int64, error)
	CreateReference(ctx context.Context, kind domain.ReferenceKind, name string) (*domain.ReferenceEntry, error)
	UpdateReference(ctx context.Context, kind domain.ReferenceKind, id uuid.UUID, name string) (*domain.ReferenceEntry, error)
	DeleteReference(ctx context.Context, kind domain.ReferenceKind, id uuid.UUID) error

	ListJobPositions(ctx context.Context, params domain.ListParams) ([]domain.JobPosition, int64, error)
	CreateJobPosition(ctx context.Context, name string) (*domain.JobPosition, error)
	UpdateJobPosition(ctx context.Context, id uuid.UUID, name string) (*domain.JobPosition, error)
	DeleteJobPosition(ctx context.Context, id uuid.UUID) error

	ListStaff(ctx context.Context, params domain.ListParams) ([]domain.StaffMember, int64, error)
	GetStaff(ctx context.Context, id uuid.UUID) (*domain.StaffMember, error)
	GetStaffByUsername(ctx context.Context, username string) (*domain.StaffMember, error)
	CreateStaff(ctx context.Context, req domain.CreateStaffRequest) (*domain.StaffMember, error)
	UpdateStaff(ctx context.Context, id uuid.UUID, req domain.UpdateStaffRequest) (*domain.StaffMember, error)
	DeleteStaff(ctx context.Context, id uuid.UUID) error

	ListStudents(ctx context.Context, filter domain.StudentFilter) ([]domain.Student, int64, error)
	GetStudent(ctx context.Context, id uuid.UUID) (*domain.Student, error)
	CreateStudent(ctx context.Context, req domain.CreateStudentRequest) (*domain.Student, error)
	UpdateStudentStatus(ctx context.Context, id uuid.UUID, next domain.StudentStatus) (*domain.Student, error)
	WaitedCount(ctx context.Context) (int64, error)

	ListCoinRules(ctx context.Context, status domain.RuleStatus, params domain.ListParams) ([]domain.CoinRule, int64, error)
	GetCoinRule(ctx context.Context, id uuid.UUID) (*domain.CoinRule, error)
	CreateCoinRule(ctx context.Context, req domain.CoinRuleRequest) (*domain.CoinRule, error)
	UpdateCoinRule(ctx context.Context, id uuid.UUID, req domain.CoinRuleRequest) (*domain.CoinRule, error)
	SetCoinRuleStatus(ctx context.Context, id uuid.UUID, archive bool) (*domain.CoinRule, error)

	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, int64, error)
	IssueCoins(ctx context.Context, req domain.IssueRequest, staffID, staffPositionID uuid.UUID, idemKey, reqHash string) (*domain.IssueResult, *domain.StoredResponse, error)
	DeleteTransaction(ctx context.Context, id, deletedBy uuid.UUID, reason string) (*domain.DeleteResult, error)
	ListDeletionAudits(ctx context.Context, params domain.ListParams) ([]domain.DeletionAudit, int64, error)

	ListProducts(ctx context.Context, includeArchived bool, params domain.ListParams) ([]domain.Product, int64, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	CreateProduct(ctx context.Context, req domain.ProductRequest) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, req domain.ProductRequest) (*domain.Product, error)
	ArchiveProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	RestockProduct(ctx context.Context, id uuid.UUID, quantity int64) (*domain.Product, error)

	CreateOrder(ctx context.Context, req domain.CreateOrderRequest, actorID uuid.UUID, actorName string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int64, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, req domain.OrderTransitionRequest, actorID uuid.UUID, actorName, idemKey, reqHash string) (*domain.OrderTransitionResult, *domain.StoredResponse, error)
	ListRedemptionAudits(ctx context.Context, orderID uuid.UUID, params domain.ListParams) ([]domain.RedemptionAuditLog, int64, error)
}

type Handler struct {
	store     Store
	authority *auth.Authority
	limiter   *auth.LoginLimiter
	counts    *cache.Counts
	log       zerolog.Logger
}

func NewHandler(s Store, authority *auth.Authority, counts *cache.Counts, log zerolog.Logger) *Handler {
	return &Handler{
		store:     s,
		authority: authority,
		limiter:   auth.NewLoginLimiter(10),
		counts:    counts,
		log:       log,
	}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware records the request counter and latency histogram,
// labeled by the matched route template.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}

		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		timer.ObserveDuration()
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"detail": message})
}

// respondStoreError maps domain sentinels to HTTP statuses. Field-level
// validation failures serialize as {"field": ["message", ...]}.
func (h *Handler) respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var fe domain.FieldErrors
	if errors.As(err, &fe) {
		respondWithJSON(w, http.StatusBadRequest, fe)
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, domain.ErrForbidden):
		respondWithError(w, http.StatusForbidden, "You do not have permission to perform this action")
	case errors.Is(err, domain.ErrStateConflict):
		respondWithError(w, http.StatusConflict, "Invalid state transition")
	case errors.Is(err, domain.ErrInUse):
		respondWithError(w, http.StatusConflict, "Entry is referenced by other records")
	case errors.Is(err, domain.ErrDuplicateName):
		respondWithJSON(w, http.StatusBadRequest, domain.FieldErrors{"name": {"An entry with this name already exists."}})
	// 400 with a field-style body so clients that only flatten 400 payloads
	// still surface the real message.
	case errors.Is(err, domain.ErrInsufficientBalance):
		respondWithJSON(w, http.StatusBadRequest, domain.FieldErrors{"non_field_errors": {"Insufficient coin balance."}})
	case errors.Is(err, domain.ErrInsufficientStock):
		respondWithJSON(w, http.StatusBadRequest, domain.FieldErrors{"non_field_errors": {"Insufficient stock."}})
	case errors.Is(err, domain.ErrIdempotencyConflict):
		respondWithError(w, http.StatusConflict, "Request processing in progress")
	case errors.Is(err, domain.ErrIdempotencyMismatch):
		respondWithError(w, http.StatusUnprocessableEntity, "Key reuse with mismatched payload")
	default:
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// viewer pulls the authenticated Viewer off the context; a miss means the
// route was wired without the auth middleware.
func (h *Handler) viewer(w http.ResponseWriter, r *http.Request) (auth.Viewer, bool) {
	v, err := auth.ViewerFrom(r.Context())
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return auth.Viewer{}, false
	}
	return v, true
}

func forbid(w http.ResponseWriter) {
	respondWithError(w, http.StatusForbidden, "You do not have permission to perform this action")
}

// decodeJSON reads the body into dst.
func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// readIdempotentBody extracts the Idempotency-Key header and the request
// hash, restoring the body for decoding.
func readIdempotentBody(w http.ResponseWriter, r *http.Request) (idemKey, reqHash string, ok bool) {
	idemKey = r.Header.Get("Idempotency-Key")
	if idemKey == "" {
		respondWithError(w, http.StatusBadRequest, "Missing Idempotency-Key header")
		return "", "", false
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Stream read error")
		return "", "", false
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	hash := sha256.Sum256(body)
	return idemKey, hex.EncodeToString(hash[:]), true
}

// replayStored writes a previously recorded response verbatim.
func replayStored(w http.ResponseWriter, stored *domain.StoredResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(stored.ResponseStatus)
	w.Write(stored.ResponseBody)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

func listParams(r *http.Request) domain.ListParams {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	return domain.ListParams{Page: page, Size: size}.Normalize()
}
