package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type correlationKey struct{}

// CorrelationID returns the request's correlation id, or "" outside a request.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// withCorrelation tags every request with a correlation id and echoes it back,
// so a failed transfer can be tied to its log line from either side.
func withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := r.Header.Get("X-Correlation-ID")
		if cid == "" {
			cid = uuid.NewString()
		}
		w.Header().Set("X-Correlation-ID", cid)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey{}, cid)))
	})
}

func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(withCorrelation)

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/customers", h.CreateCustomer).Methods("POST")
	apiV1.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	apiV1.HandleFunc("/accounts/{id}", h.DeleteAccount).Methods("DELETE")
	apiV1.HandleFunc("/accounts/{id}/balance", h.GetBalance).Methods("GET")
	apiV1.HandleFunc("/accounts/{number}/transactions", h.ListTransactions).Methods("GET")
	apiV1.HandleFunc("/transfers", h.CreateTransfer).Methods("POST")

	return r
}
