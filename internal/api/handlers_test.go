package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"bankcore/internal/config"
	"bankcore/internal/domain"
	"bankcore/internal/idgen"
	"bankcore/internal/service"
	"bankcore/internal/store"
)

func TestStatusForErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", service.ErrInvalidInput, http.StatusUnprocessableEntity},
		{"same account", service.ErrSameAccount, http.StatusUnprocessableEntity},
		{"insufficient funds", store.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{"auth failed", service.ErrAuthenticationFailed, http.StatusUnauthorized},
		{"pin mismatch", service.ErrPINMismatch, http.StatusUnauthorized},
		{"not found", store.ErrNotFound, http.StatusNotFound},
		{"conflict", store.ErrConflict, http.StatusConflict},
		{"idempotency mismatch", store.ErrIdempotencyMismatch, http.StatusConflict},
		{"transient", service.ErrTransient, http.StatusServiceUnavailable},
		{"other", errors.New("x"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusForErr(tc.err); got != tc.want {
				t.Fatalf("got %d want %d", got, tc.want)
			}
		})
	}
}

func newTestRouter(t *testing.T) (*mux.Router, store.Store) {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemory()
	seed(t, mem)

	ids := idgen.New()
	if err := ids.Seed(ctx, mem); err != nil {
		t.Fatalf("seed id generator: %v", err)
	}

	cfg := &config.Config{
		TransferCeiling: decimal.RequireFromString("1000000.00"),
		TransferModes:   []string{"bank transfer", "upi"},
		DefaultMode:     "bank transfer",
		TransferTimeout: 2 * time.Second,
		PINLength:       6,
	}
	v := service.NewIdentityVerifier(cfg.PINLength)
	engine := service.NewTransferEngine(mem, ids, v, cfg)
	onboard := service.NewOnboarding(mem, ids, v)
	return NewRouter(NewHandler(engine, onboard, ids)), mem
}

func seed(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	err := s.CreateCustomer(ctx, &domain.Customer{
		ID: "CUST_1", Name: "Asha Rao", Phone: "9000000001",
		NationalID: "100000000001", PIN: "123456", Status: domain.CustomerActive,
	})
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	for _, acc := range []struct {
		id, number, balance string
	}{
		{"ACC_1", "1111111111", "100.00"},
		{"ACC_2", "2222222222", "50.00"},
	} {
		err := s.CreateAccount(ctx, &domain.Account{
			ID: acc.id, CustomerID: "CUST_1", Number: acc.number,
			HolderName: "Asha Rao", Balance: decimal.RequireFromString(acc.balance),
			Status: domain.AccountActive,
		})
		if err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}
}

func postTransfer(t *testing.T, router *mux.Router, body string, idemKey string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/transfers", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const happyTransfer = `{
	"sender_account_number": "1111111111",
	"receiver_account_number": "2222222222",
	"amount": "30.00",
	"pin": "123456",
	"mode": "upi"
}`

func TestCreateTransferEndpoint(t *testing.T) {
	router, mem := newTestRouter(t)

	rec := postTransfer(t, router, happyTransfer, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Fatal("missing correlation id header")
	}

	var txn map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &txn); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	id, _ := txn["transaction_id"].(string)
	if !strings.HasPrefix(id, "TXN_") {
		t.Fatalf("transaction_id = %q", id)
	}
	if got := rec.Header().Get("Location"); got != "/api/v1/transactions/"+id {
		t.Fatalf("Location = %q", got)
	}

	balance, err := mem.Balance(context.Background(), "ACC_1")
	if err != nil {
		t.Fatal(err)
	}
	if !balance.Equal(decimal.RequireFromString("70.00")) {
		t.Fatalf("sender balance = %s, want 70.00", balance)
	}
}

func TestCreateTransferFailureStatuses(t *testing.T) {
	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"amount": `, http.StatusBadRequest},
		{"wrong pin", strings.Replace(happyTransfer, "123456", "654321", 1), http.StatusUnauthorized},
		{"insufficient funds", strings.Replace(happyTransfer, "30.00", "500.00", 1), http.StatusUnprocessableEntity},
		{"unknown receiver", strings.Replace(happyTransfer, "2222222222", "0000000000", 1), http.StatusNotFound},
		{"same account", strings.Replace(happyTransfer, "2222222222", "1111111111", 1), http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, _ := newTestRouter(t)
			rec := postTransfer(t, router, tc.body, "")
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tc.want, rec.Body)
			}
			var payload map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if payload["error"] == "" {
				t.Fatal("error body missing message")
			}
		})
	}
}

func TestIdempotentReplayEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	first := postTransfer(t, router, happyTransfer, "req-7")
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d", first.Code)
	}
	replay := postTransfer(t, router, happyTransfer, "req-7")
	if replay.Code != http.StatusCreated {
		t.Fatalf("replay status = %d", replay.Code)
	}

	var a, b map[string]any
	json.Unmarshal(first.Body.Bytes(), &a)
	json.Unmarshal(replay.Body.Bytes(), &b)
	if a["transaction_id"] != b["transaction_id"] {
		t.Fatalf("replay issued a new transaction: %v vs %v", a["transaction_id"], b["transaction_id"])
	}
}

func TestListTransactionsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	for i := 0; i < 2; i++ {
		if rec := postTransfer(t, router, happyTransfer, ""); rec.Code != http.StatusCreated {
			t.Fatalf("transfer %d: status %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest("GET", "/api/v1/accounts/1111111111/transactions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var txns []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &txns); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txns))
	}
}

func TestGetBalanceEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/accounts/ACC_2/balance", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["balance"] != "50.00" {
		t.Fatalf("balance = %q, want 50.00", payload["balance"])
	}
}

func TestOnboardingEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	customer := `{"name":"Ravi Kumar","phone":"9000000002","national_id":"100000000002","pin":"654321"}`
	req := httptest.NewRequest("POST", "/api/v1/customers", bytes.NewBufferString(customer))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create customer status = %d, body %s", rec.Code, rec.Body)
	}

	account := `{"national_id":"100000000002","account_number":"4444444444","holder_name":"Ravi Kumar","opening_balance":"10.00"}`
	req = httptest.NewRequest("POST", "/api/v1/accounts", bytes.NewBufferString(account))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account status = %d, body %s", rec.Code, rec.Body)
	}
	var acc map[string]any
	json.Unmarshal(rec.Body.Bytes(), &acc)
	id, _ := acc["account_id"].(string)

	req = httptest.NewRequest("DELETE", "/api/v1/accounts/"+id, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete account status = %d", rec.Code)
	}
}

type failingSeq struct{}

func (failingSeq) MaxSequence(context.Context, idgen.Kind) (uint64, error) {
	return 0, fmt.Errorf("store unreachable")
}

func TestHealthReportsDegradedIDGenerator(t *testing.T) {
	router, mem := newTestRouter(t)
	_ = mem

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy status = %d", rec.Code)
	}

	ids := idgen.New()
	if err := ids.Seed(context.Background(), failingSeq{}); err == nil {
		t.Fatal("seed should fail")
	}
	h := NewHandler(nil, nil, ids)
	rec = httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d, want 503", rec.Code)
	}
}
