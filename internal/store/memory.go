package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bankcore/internal/domain"
	"bankcore/internal/idgen"
)

// Memory is a mutex-guarded Store. Every call runs under the store lock, so a
// transfer is trivially one atomic unit: all of its checks and mutations
// happen before any other caller can observe intermediate state.
type Memory struct {
	mu           sync.RWMutex
	customers    map[string]*domain.Customer
	accounts     map[string]*domain.Account
	byNumber     map[string]string
	byNationalID map[string]string
	byPhone      map[string]string
	transactions map[string]*domain.Transaction
	txnOrder     []string
	idem         map[string]memIdem
}

type memIdem struct {
	hash  string
	txnID string
}

func NewMemory() *Memory {
	return &Memory{
		customers:    make(map[string]*domain.Customer),
		accounts:     make(map[string]*domain.Account),
		byNumber:     make(map[string]string),
		byNationalID: make(map[string]string),
		byPhone:      make(map[string]string),
		transactions: make(map[string]*domain.Transaction),
		idem:         make(map[string]memIdem),
	}
}

func (m *Memory) CreateCustomer(_ context.Context, c *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.customers[c.ID]; ok {
		return fmt.Errorf("%w: customer %s", ErrConflict, c.ID)
	}
	if _, ok := m.byPhone[c.Phone]; ok {
		return fmt.Errorf("%w: customer phone or national id already registered", ErrConflict)
	}
	if _, ok := m.byNationalID[c.NationalID]; ok {
		return fmt.Errorf("%w: customer phone or national id already registered", ErrConflict)
	}

	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	cp := *c
	m.customers[c.ID] = &cp
	m.byPhone[c.Phone] = c.ID
	m.byNationalID[c.NationalID] = c.ID
	return nil
}

func (m *Memory) CustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[id]
	if !ok {
		return nil, fmt.Errorf("%w: customer", ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) CustomerByNationalID(ctx context.Context, nationalID string) (*domain.Customer, error) {
	m.mu.RLock()
	id, ok := m.byNationalID[nationalID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: customer", ErrNotFound)
	}
	return m.CustomerByID(ctx, id)
}

func (m *Memory) CreateAccount(_ context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.customers[a.CustomerID]; !ok {
		return fmt.Errorf("%w: customer %s", ErrNotFound, a.CustomerID)
	}
	if _, ok := m.accounts[a.ID]; ok {
		return fmt.Errorf("%w: account %s", ErrConflict, a.ID)
	}
	if _, ok := m.byNumber[a.Number]; ok {
		return fmt.Errorf("%w: account number %s already exists", ErrConflict, a.Number)
	}

	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	m.accounts[a.ID] = &cp
	m.byNumber[a.Number] = a.ID
	return nil
}

func (m *Memory) AccountByID(_ context.Context, id string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountLocked(id)
}

func (m *Memory) accountLocked(id string) (*domain.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account", ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) AccountByNumber(_ context.Context, number string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byNumber[number]
	if !ok {
		return nil, fmt.Errorf("%w: account", ErrNotFound)
	}
	return m.accountLocked(id)
}

func (m *Memory) Balance(_ context.Context, accountID string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	return a.Balance, nil
}

func (m *Memory) DeleteAccount(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	delete(m.accounts, accountID)
	delete(m.byNumber, a.Number)

	// Cascade: drop transactions naming the account, and idempotency entries
	// bound to those transactions.
	kept := m.txnOrder[:0]
	for _, id := range m.txnOrder {
		t := m.transactions[id]
		if t.SenderAccountID == accountID || t.ReceiverAccountID == accountID {
			delete(m.transactions, id)
			for key, rec := range m.idem {
				if rec.txnID == id {
					delete(m.idem, key)
				}
			}
			continue
		}
		kept = append(kept, id)
	}
	m.txnOrder = kept
	return nil
}

func (m *Memory) TransactionsByAccount(_ context.Context, number string) ([]domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.byNumber[number]; !ok {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, number)
	}

	var txns []domain.Transaction
	for i := len(m.txnOrder) - 1; i >= 0; i-- {
		t := m.transactions[m.txnOrder[i]]
		if t.SenderNumber == number || t.ReceiverNumber == number {
			txns = append(txns, *t)
		}
	}
	return txns, nil
}

func (m *Memory) ExecTransfer(_ context.Context, txn *domain.Transaction, idem *Idempotency) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idem != nil {
		if rec, ok := m.idem[idem.Key]; ok {
			if rec.hash != idem.RequestHash {
				return nil, ErrIdempotencyMismatch
			}
			stored, ok := m.transactions[rec.txnID]
			if !ok {
				return nil, fmt.Errorf("idempotency key %q reserved without transaction", idem.Key)
			}
			cp := *stored
			return &cp, nil
		}
	}

	sender, ok := m.accounts[txn.SenderAccountID]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, txn.SenderAccountID)
	}
	receiver, ok := m.accounts[txn.ReceiverAccountID]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, txn.ReceiverAccountID)
	}
	if _, ok := m.transactions[txn.ID]; ok {
		return nil, fmt.Errorf("%w: transaction id %s already written", ErrConflict, txn.ID)
	}
	if sender.Balance.LessThan(txn.Amount) {
		return nil, ErrInsufficientFunds
	}

	now := time.Now().UTC()
	sender.Balance = sender.Balance.Sub(txn.Amount)
	sender.UpdatedAt = now
	receiver.Balance = receiver.Balance.Add(txn.Amount)
	receiver.UpdatedAt = now

	cp := *txn
	m.transactions[txn.ID] = &cp
	m.txnOrder = append(m.txnOrder, txn.ID)
	if idem != nil {
		m.idem[idem.Key] = memIdem{hash: idem.RequestHash, txnID: txn.ID}
	}
	return txn, nil
}

func (m *Memory) MaxSequence(_ context.Context, kind idgen.Kind) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var max uint64
	seen := func(id string) {
		if n, ok := idgen.Sequence(id); ok && n > max {
			max = n
		}
	}
	switch kind {
	case idgen.KindAccount:
		for id := range m.accounts {
			seen(id)
		}
	case idgen.KindCustomer:
		for id := range m.customers {
			seen(id)
		}
	case idgen.KindTransaction:
		for id := range m.transactions {
			seen(id)
		}
	default:
		return 0, fmt.Errorf("unknown sequence kind %q", kind)
	}
	return max, nil
}
