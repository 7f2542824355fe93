package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/shopspring/decimal"

	"bankcore/internal/config"
	"bankcore/internal/domain"
	"bankcore/internal/idgen"
	"bankcore/internal/store"
)

// TransferEngine orchestrates a funds movement: input policy, account
// resolution, sender authentication, and the atomic commit through the store.
// All failure paths return typed errors; a caller never observes a partially
// applied transfer.
type TransferEngine struct {
	store       store.Store
	ids         *idgen.Generator
	verifier    *IdentityVerifier
	ceiling     decimal.Decimal
	modes       map[string]struct{}
	defaultMode string
	timeout     time.Duration
}

func NewTransferEngine(s store.Store, ids *idgen.Generator, v *IdentityVerifier, cfg *config.Config) *TransferEngine {
	modes := make(map[string]struct{}, len(cfg.TransferModes))
	for _, m := range cfg.TransferModes {
		modes[m] = struct{}{}
	}
	return &TransferEngine{
		store:       s,
		ids:         ids,
		verifier:    v,
		ceiling:     cfg.TransferCeiling,
		modes:       modes,
		defaultMode: strings.ToLower(cfg.DefaultMode),
		timeout:     cfg.TransferTimeout,
	}
}

// Transfer moves funds between two accounts identified by their external
// account numbers. idemKey, when non-empty, makes the request replay-safe:
// a retry with the same key and payload returns the original transaction.
func (e *TransferEngine) Transfer(ctx context.Context, req domain.TransferRequest, idemKey string) (*domain.Transaction, error) {
	req.SenderNumber = strings.TrimSpace(req.SenderNumber)
	req.ReceiverNumber = strings.TrimSpace(req.ReceiverNumber)

	if req.SenderNumber == "" {
		return nil, fmt.Errorf("%w: sender account number is required", ErrInvalidInput)
	}
	if req.ReceiverNumber == "" {
		return nil, fmt.Errorf("%w: receiver account number is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Amount) == "" {
		return nil, fmt.Errorf("%w: amount is required", ErrInvalidInput)
	}
	if req.PIN == "" {
		return nil, fmt.Errorf("%w: pin is required", ErrInvalidInput)
	}
	// Purely syntactic, so it precedes every lookup.
	if req.SenderNumber == req.ReceiverNumber {
		return nil, ErrSameAccount
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q is not a number", ErrInvalidInput, req.Amount)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if !amount.Equal(amount.Round(2)) {
		return nil, fmt.Errorf("%w: amount cannot have more than two decimal places", ErrInvalidInput)
	}
	if amount.GreaterThan(e.ceiling) {
		return nil, fmt.Errorf("%w: amount exceeds per-transfer ceiling of %s", ErrInvalidInput, e.ceiling.StringFixed(2))
	}

	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = e.defaultMode
	}
	if _, ok := e.modes[mode]; !ok {
		return nil, fmt.Errorf("%w: unsupported transfer mode %q", ErrInvalidInput, req.Mode)
	}

	// A transfer that cannot finish in time aborts wholesale; the store
	// rolls back and the caller may retry.
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	sender, err := e.store.AccountByNumber(ctx, req.SenderNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: sender account %s", store.ErrNotFound, req.SenderNumber)
		}
		return nil, e.wrapStorage(err)
	}
	receiver, err := e.store.AccountByNumber(ctx, req.ReceiverNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: receiver account %s", store.ErrNotFound, req.ReceiverNumber)
		}
		return nil, e.wrapStorage(err)
	}
	if sender.Status != domain.AccountActive {
		return nil, fmt.Errorf("%w: sender account is not active", ErrInvalidInput)
	}
	if receiver.Status != domain.AccountActive {
		return nil, fmt.Errorf("%w: receiver account is not active", ErrInvalidInput)
	}

	// Only the sender authorizes the movement.
	owner, err := e.store.CustomerByID(ctx, sender.CustomerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: owning customer of account %s", store.ErrNotFound, sender.Number)
		}
		return nil, e.wrapStorage(err)
	}
	if err := e.verifier.Authenticate(owner, req.PIN); err != nil {
		return nil, err
	}

	txn := &domain.Transaction{
		ID:                e.ids.Next(idgen.KindTransaction),
		SenderAccountID:   sender.ID,
		ReceiverAccountID: receiver.ID,
		SenderNumber:      sender.Number,
		ReceiverNumber:    receiver.Number,
		Amount:            amount,
		Mode:              mode,
		Description:       strings.TrimSpace(req.Description),
		CreatedAt:         time.Now().UTC(),
	}

	var idem *store.Idempotency
	if idemKey != "" {
		hash, err := hashTransferRequest(req, amount, mode, idemKey)
		if err != nil {
			return nil, fmt.Errorf("hash transfer request: %w", err)
		}
		idem = &store.Idempotency{Key: idemKey, RequestHash: hash}
	}

	committed, err := e.store.ExecTransfer(ctx, txn, idem)
	if err != nil {
		return nil, e.wrapStorage(err)
	}
	return committed, nil
}

// TransactionsByAccount lists the committed movements naming the account as
// sender or receiver, most recent first.
func (e *TransferEngine) TransactionsByAccount(ctx context.Context, number string) ([]domain.Transaction, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, fmt.Errorf("%w: account number is required", ErrInvalidInput)
	}
	txns, err := e.store.TransactionsByAccount(ctx, number)
	if err != nil {
		return nil, e.wrapStorage(err)
	}
	return txns, nil
}

// BalanceOf reads the current balance by internal account identifier.
func (e *TransferEngine) BalanceOf(ctx context.Context, accountID string) (decimal.Decimal, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return decimal.Zero, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	balance, err := e.store.Balance(ctx, accountID)
	if err != nil {
		return decimal.Zero, e.wrapStorage(err)
	}
	return balance, nil
}

func (e *TransferEngine) wrapStorage(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrInsufficientFunds),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrIdempotencyMismatch):
		return err
	case errors.Is(err, store.ErrContention),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrTransient, err)
	default:
		return fmt.Errorf("transfer storage failure: %w", err)
	}
}

// transferShape is the canonical, deterministic request shape hashed for
// idempotency. No floats, no maps; field order is fixed by the struct.
type transferShape struct {
	SenderNumber   string `json:"sender_account_number"`
	ReceiverNumber string `json:"receiver_account_number"`
	Amount         string `json:"amount"`
	Mode           string `json:"mode"`
	IdempotencyKey string `json:"idempotency_key"`
}

func hashTransferRequest(req domain.TransferRequest, amount decimal.Decimal, mode, key string) (string, error) {
	raw, err := json.Marshal(transferShape{
		SenderNumber:   req.SenderNumber,
		ReceiverNumber: req.ReceiverNumber,
		Amount:         amount.StringFixed(2),
		Mode:           mode,
		IdempotencyKey: key,
	})
	if err != nil {
		return "", err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
