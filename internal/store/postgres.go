package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"bankcore/internal/domain"
	"bankcore/internal/idgen"
)

// Postgres is the authoritative Store backed by pgx. Transfers run inside a
// single database transaction with row locks taken in account-identifier
// order, so two opposing transfers between the same pair of accounts cannot
// deadlock.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &Postgres{db: pool}, nil
}

func (s *Postgres) Close() {
	s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isSerializationFailure matches the SQLSTATEs PostgreSQL raises when a
// transaction loses a lock race: 40001 (serialization failure, the usual
// outcome of a blocked FOR UPDATE under REPEATABLE READ once the winner
// commits) and 40P01 (deadlock detected).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

// classifyTxErr folds lost lock races into ErrContention so callers can treat
// them as retryable rather than fatal.
func classifyTxErr(err error) error {
	if isSerializationFailure(err) {
		return fmt.Errorf("%w: %v", ErrContention, err)
	}
	return err
}

func (s *Postgres) CreateCustomer(ctx context.Context, c *domain.Customer) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO customers (customer_id, name, phone, national_id, pin, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Phone, c.NationalID, c.PIN, c.Status,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: customer phone or national id already registered", ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("customer insert failed: %w", err)
	}
	return nil
}

func (s *Postgres) CustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	return s.customerBy(ctx, "customer_id", id)
}

func (s *Postgres) CustomerByNationalID(ctx context.Context, nationalID string) (*domain.Customer, error) {
	return s.customerBy(ctx, "national_id", nationalID)
}

func (s *Postgres) customerBy(ctx context.Context, column, value string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRow(ctx,
		`SELECT customer_id, name, phone, national_id, pin, status, created_at, updated_at
		   FROM customers WHERE `+column+` = $1`,
		value,
	).Scan(&c.ID, &c.Name, &c.Phone, &c.NationalID, &c.PIN, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: customer", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Postgres) CreateAccount(ctx context.Context, a *domain.Account) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO accounts (account_id, customer_id, account_number, holder_name,
		                       bank_name, linked_phone, balance, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8)
		 RETURNING created_at, updated_at`,
		a.ID, a.CustomerID, a.Number, a.HolderName,
		a.BankName, a.LinkedPhone, a.Balance.StringFixed(2), a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: account number %s already exists", ErrConflict, a.Number)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("%w: customer %s", ErrNotFound, a.CustomerID)
	}
	if err != nil {
		return fmt.Errorf("account insert failed: %w", err)
	}
	return nil
}

const accountColumns = `account_id, customer_id, account_number, holder_name,
	bank_name, linked_phone, balance::text, status, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var balance string
	err := row.Scan(&a.ID, &a.CustomerID, &a.Number, &a.HolderName,
		&a.BankName, &a.LinkedPhone, &balance, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: account", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	a.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("corrupt balance for account %s: %w", a.ID, err)
	}
	return &a, nil
}

func (s *Postgres) AccountByID(ctx context.Context, id string) (*domain.Account, error) {
	return scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_id = $1`, id))
}

func (s *Postgres) AccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	return scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, number))
}

func (s *Postgres) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var balance string
	err := s.db.QueryRow(ctx,
		`SELECT balance::text FROM accounts WHERE account_id = $1`, accountID,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	if err != nil {
		return decimal.Zero, err
	}
	b, err := decimal.NewFromString(balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt balance for account %s: %w", accountID, err)
	}
	return b, nil
}

func (s *Postgres) DeleteAccount(ctx context.Context, accountID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM accounts WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("account delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	return nil
}

const transactionColumns = `transaction_id, sender_account_id, receiver_account_id,
	sender_account_number, receiver_account_number, amount::text, mode, description, created_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var amount string
	err := row.Scan(&t.ID, &t.SenderAccountID, &t.ReceiverAccountID,
		&t.SenderNumber, &t.ReceiverNumber, &amount, &t.Mode, &t.Description, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount for transaction %s: %w", t.ID, err)
	}
	return &t, nil
}

func (s *Postgres) TransactionsByAccount(ctx context.Context, number string) ([]domain.Transaction, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE account_number = $1)`, number,
	).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, number)
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+transactionColumns+`
		   FROM transactions
		  WHERE sender_account_number = $1 OR receiver_account_number = $1
		  ORDER BY created_at DESC, (substring(transaction_id from '[0-9]+$'))::bigint DESC`,
		number)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

// ExecTransfer executes the debit, credit, and log append within one database
// transaction with deterministic lock ordering. The funds check reads the
// sender balance under FOR UPDATE, so check and mutation are indivisible.
// Under REPEATABLE READ the loser of a row lock race aborts with a
// serialization failure; that surfaces as ErrContention, not a fatal error.
func (s *Postgres) ExecTransfer(ctx context.Context, txn *domain.Transaction, idem *Idempotency) (*domain.Transaction, error) {
	committed, err := s.execTransfer(ctx, txn, idem)
	if err != nil {
		return nil, classifyTxErr(err)
	}
	return committed, nil
}

func (s *Postgres) execTransfer(ctx context.Context, txn *domain.Transaction, idem *Idempotency) (*domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if idem != nil {
		// Serialize per key so a reservation is never observed without its
		// transaction id.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, idem.Key); err != nil {
			return nil, err
		}
		tag, err := tx.Exec(ctx,
			`INSERT INTO idempotency (key, request_hash) VALUES ($1, $2)
			 ON CONFLICT (key) DO NOTHING`,
			idem.Key, idem.RequestHash)
		if err != nil {
			return nil, fmt.Errorf("idempotency reservation failed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var storedHash string
			var storedTxn *string
			err := tx.QueryRow(ctx,
				`SELECT request_hash, transaction_id FROM idempotency WHERE key = $1`,
				idem.Key).Scan(&storedHash, &storedTxn)
			if err != nil {
				return nil, fmt.Errorf("idempotency query failed: %w", err)
			}
			if storedHash != idem.RequestHash {
				return nil, ErrIdempotencyMismatch
			}
			if storedTxn == nil {
				return nil, fmt.Errorf("idempotency key %q reserved without transaction", idem.Key)
			}
			committed, err := scanTransaction(tx.QueryRow(ctx,
				`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1`,
				*storedTxn))
			if err != nil {
				return nil, err
			}
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("tx commit failed: %w", err)
			}
			return committed, nil
		}
	}

	// Acquire row locks in identifier order.
	first, second := txn.SenderAccountID, txn.ReceiverAccountID
	if first > second {
		first, second = second, first
	}
	balances := make(map[string]decimal.Decimal, 2)
	for _, id := range []string{first, second} {
		var raw string
		err := tx.QueryRow(ctx,
			`SELECT balance::text FROM accounts WHERE account_id = $1 FOR UPDATE`, id,
		).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
		}
		if err != nil {
			return nil, fmt.Errorf("lock acquisition failed: %w", err)
		}
		balances[id], err = decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt balance for account %s: %w", id, err)
		}
	}

	if balances[txn.SenderAccountID].LessThan(txn.Amount) {
		return nil, ErrInsufficientFunds
	}

	amount := txn.Amount.StringFixed(2)
	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance - $1::numeric, updated_at = now() WHERE account_id = $2`,
		amount, txn.SenderAccountID); err != nil {
		return nil, fmt.Errorf("debit failed: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance + $1::numeric, updated_at = now() WHERE account_id = $2`,
		amount, txn.ReceiverAccountID); err != nil {
		return nil, fmt.Errorf("credit failed: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (transaction_id, sender_account_id, receiver_account_id,
		                           sender_account_number, receiver_account_number,
		                           amount, mode, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)`,
		txn.ID, txn.SenderAccountID, txn.ReceiverAccountID,
		txn.SenderNumber, txn.ReceiverNumber,
		amount, txn.Mode, txn.Description, txn.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: transaction id %s already written", ErrConflict, txn.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("transaction insert failed: %w", err)
	}

	if idem != nil {
		if _, err := tx.Exec(ctx,
			`UPDATE idempotency SET transaction_id = $1 WHERE key = $2`,
			txn.ID, idem.Key); err != nil {
			return nil, fmt.Errorf("idempotency update failed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return txn, nil
}

func (s *Postgres) MaxSequence(ctx context.Context, kind idgen.Kind) (uint64, error) {
	var table, column string
	switch kind {
	case idgen.KindAccount:
		table, column = "accounts", "account_id"
	case idgen.KindCustomer:
		table, column = "customers", "customer_id"
	case idgen.KindTransaction:
		table, column = "transactions", "transaction_id"
	default:
		return 0, fmt.Errorf("unknown sequence kind %q", kind)
	}

	var max int64
	err := s.db.QueryRow(ctx, fmt.Sprintf(
		`SELECT COALESCE(MAX((substring(%s from '[0-9]+$'))::bigint), 0) FROM %s`,
		column, table)).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max sequence for %s: %w", kind, err)
	}
	return uint64(max), nil
}
