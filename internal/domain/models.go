package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus is the lifecycle state of an account. Only active accounts
// participate in transfers.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountInactive  AccountStatus = "inactive"
	AccountSuspended AccountStatus = "suspended"
	AccountClosed    AccountStatus = "closed"
)

// CustomerStatus is the lifecycle state of a customer record.
type CustomerStatus string

const (
	CustomerActive   CustomerStatus = "active"
	CustomerInactive CustomerStatus = "inactive"
)

// Account holds the balance and metadata for one bank account. The balance is
// authoritative and mutated only through the store's transfer path; it is
// never negative after a committed operation.
type Account struct {
	ID          string          `json:"account_id"`
	CustomerID  string          `json:"customer_id"`
	Number      string          `json:"account_number"`
	HolderName  string          `json:"holder_name"`
	BankName    string          `json:"bank_name"`
	LinkedPhone string          `json:"linked_phone"`
	Balance     decimal.Decimal `json:"balance"`
	Status      AccountStatus   `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Customer owns one or more accounts. The PIN authorizes outgoing transfers
// from any of them and is never serialized.
type Customer struct {
	ID         string         `json:"customer_id"`
	Name       string         `json:"name"`
	Phone      string         `json:"phone"`
	NationalID string         `json:"national_id"`
	PIN        string         `json:"-"`
	Status     CustomerStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Transaction is the immutable audit record of one committed funds movement.
// It is written exactly once, inside the same unit of work as the balance
// mutations it documents, and is removed only by cascading account deletion.
type Transaction struct {
	ID                string          `json:"transaction_id"`
	SenderAccountID   string          `json:"sender_account_id"`
	ReceiverAccountID string          `json:"receiver_account_id"`
	SenderNumber      string          `json:"sender_account_number"`
	ReceiverNumber    string          `json:"receiver_account_number"`
	Amount            decimal.Decimal `json:"amount"`
	Mode              string          `json:"mode"`
	Description       string          `json:"description,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// TransferRequest is the caller's intent to move funds. Amount arrives as a
// string so the engine owns the fixed-point parsing policy; the PIN is carried
// for authentication only and never stored.
type TransferRequest struct {
	SenderNumber   string `json:"sender_account_number"`
	ReceiverNumber string `json:"receiver_account_number"`
	Amount         string `json:"amount"`
	PIN            string `json:"pin"`
	Mode           string `json:"mode,omitempty"`
	Description    string `json:"description,omitempty"`
}
