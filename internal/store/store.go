// Package store owns durable state: accounts, customers, the append-only
// transaction log, and the idempotency ledger. The Postgres implementation is
// authoritative; the in-memory implementation backs tests and upholds the same
// consistency contract.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"bankcore/internal/domain"
	"bankcore/internal/idgen"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrConflict            = errors.New("uniqueness conflict")
	ErrIdempotencyMismatch = errors.New("idempotency key reuse with mismatched payload")
	// ErrContention marks a transfer that lost a lock race with a concurrent
	// transaction. Nothing was committed; the caller may retry.
	ErrContention = errors.New("storage contention")
)

// Idempotency identifies a transfer request for exactly-once semantics. Key is
// the client-chosen token; RequestHash is a canonical digest of the request
// payload, so key reuse with a different payload is detectable.
type Idempotency struct {
	Key         string
	RequestHash string
}

// Store is the full durable-state contract.
type Store interface {
	// Customers.
	CreateCustomer(ctx context.Context, c *domain.Customer) error
	CustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	CustomerByNationalID(ctx context.Context, nationalID string) (*domain.Customer, error)

	// Accounts. Balance is read here but mutated only by ExecTransfer.
	CreateAccount(ctx context.Context, a *domain.Account) error
	AccountByID(ctx context.Context, id string) (*domain.Account, error)
	AccountByNumber(ctx context.Context, number string) (*domain.Account, error)
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)
	// DeleteAccount hard-removes an account and, cascading, every transaction
	// that references it.
	DeleteAccount(ctx context.Context, accountID string) error

	// Transaction log.
	TransactionsByAccount(ctx context.Context, number string) ([]domain.Transaction, error)

	// ExecTransfer is the single atomic unit of work for moving funds: it
	// locks both accounts in identifier order, performs the authoritative
	// funds check, debits the sender, credits the receiver, and appends txn
	// to the log. Either every effect commits or none does.
	//
	// With a non-nil idem, a replay carrying the same key and request hash
	// returns the originally committed transaction without moving funds
	// again; the same key with a different hash is ErrIdempotencyMismatch.
	ExecTransfer(ctx context.Context, txn *domain.Transaction, idem *Idempotency) (*domain.Transaction, error)

	// MaxSequence seeds the identifier counters at startup.
	MaxSequence(ctx context.Context, kind idgen.Kind) (uint64, error)
}
