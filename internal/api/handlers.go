package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bankcore/internal/domain"
	"bankcore/internal/idgen"
	"bankcore/internal/service"
	"bankcore/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bank_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	transfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_transfers_total",
		Help: "Transfer attempts by outcome kind",
	}, []string{"outcome"})
)

type Handler struct {
	engine  *service.TransferEngine
	onboard *service.Onboarding
	ids     *idgen.Generator
}

func NewHandler(engine *service.TransferEngine, onboard *service.Onboarding, ids *idgen.Generator) *Handler {
	return &Handler{engine: engine, onboard: onboard, ids: ids}
}

// statusForErr maps the error taxonomy to stable HTTP statuses so callers can
// discriminate failure kinds without parsing free text.
func statusForErr(err error) int {
	switch {
	case errors.Is(err, service.ErrAuthenticationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrSameAccount),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, store.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrIdempotencyMismatch):
		return http.StatusConflict
	case errors.Is(err, service.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// outcomeForErr labels the transfer metric; one stable label per error kind.
func outcomeForErr(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, service.ErrSameAccount):
		return "same_account"
	case errors.Is(err, service.ErrAuthenticationFailed):
		return "auth_failed"
	case errors.Is(err, service.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, store.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrIdempotencyMismatch),
		errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, service.ErrTransient):
		return "transient"
	default:
		return "error"
	}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	// A degraded id generator risks identifier collisions; report the
	// process unhealthy so the deployment refuses traffic.
	if h.ids.Degraded() {
		h.respondJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/transfers"))
	defer timer.ObserveDuration()

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "malformed JSON body")
		return
	}

	txn, err := h.engine.Transfer(r.Context(), req, r.Header.Get("Idempotency-Key"))
	transfersTotal.WithLabelValues(outcomeForErr(err)).Inc()
	if err != nil {
		if errors.Is(err, service.ErrTransient) {
			w.Header().Set("Retry-After", "1")
		}
		h.respondError(w, r, statusForErr(err), err.Error())
		return
	}

	w.Header().Set("Location", "/api/v1/transactions/"+txn.ID)
	h.respondJSON(w, r, http.StatusCreated, txn)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]

	txns, err := h.engine.TransactionsByAccount(r.Context(), number)
	if err != nil {
		h.respondError(w, r, statusForErr(err), err.Error())
		return
	}
	if txns == nil {
		txns = []domain.Transaction{}
	}
	h.respondJSON(w, r, http.StatusOK, txns)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	balance, err := h.engine.BalanceOf(r.Context(), id)
	if err != nil {
		h.respondError(w, r, statusForErr(err), err.Error())
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]string{
		"account_id": id,
		"balance":    balance.StringFixed(2),
	})
}

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req service.CustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "malformed JSON body")
		return
	}

	c, err := h.onboard.CreateCustomer(r.Context(), req)
	if err != nil {
		h.respondError(w, r, statusForErr(err), err.Error())
		return
	}
	h.respondJSON(w, r, http.StatusCreated, c)
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req service.AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "malformed JSON body")
		return
	}

	a, err := h.onboard.CreateAccount(r.Context(), req)
	if err != nil {
		h.respondError(w, r, statusForErr(err), err.Error())
		return
	}
	h.respondJSON(w, r, http.StatusCreated, a)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.onboard.CloseAccount(r.Context(), id); err != nil {
		h.respondError(w, r, statusForErr(err), err.Error())
		return
	}
	httpRequestsTotal.WithLabelValues(r.Method, endpointLabel(r), "204").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// endpointLabel uses the route template, not the raw path, to keep the metric
// cardinality bounded.
func endpointLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

func (h *Handler) respondJSON(w http.ResponseWriter, r *http.Request, code int, payload any) {
	httpRequestsTotal.WithLabelValues(r.Method, endpointLabel(r), strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, code int, message string) {
	if code >= 500 {
		log.Printf("request failed: correlation=%s status=%d %s", CorrelationID(r.Context()), code, message)
	}
	h.respondJSON(w, r, code, map[string]string{"error": message})
}
