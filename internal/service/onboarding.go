package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"bankcore/internal/domain"
	"bankcore/internal/idgen"
	"bankcore/internal/store"
)

// Onboarding creates the customer and account records the transfer engine
// operates on. Balance never changes through this path after creation.
type Onboarding struct {
	store    store.Store
	ids      *idgen.Generator
	verifier *IdentityVerifier
}

func NewOnboarding(s store.Store, ids *idgen.Generator, v *IdentityVerifier) *Onboarding {
	return &Onboarding{store: s, ids: ids, verifier: v}
}

type CustomerRequest struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	NationalID string `json:"national_id"`
	PIN        string `json:"pin"`
}

type AccountRequest struct {
	NationalID     string `json:"national_id"`
	Number         string `json:"account_number"`
	HolderName     string `json:"holder_name"`
	BankName       string `json:"bank_name"`
	OpeningBalance string `json:"opening_balance"`
}

func (o *Onboarding) CreateCustomer(ctx context.Context, req CustomerRequest) (*domain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	phone := strings.TrimSpace(req.Phone)
	nationalID := strings.TrimSpace(req.NationalID)

	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(phone) != 10 || !allDigits(phone) {
		return nil, fmt.Errorf("%w: phone must be a 10-digit number", ErrInvalidInput)
	}
	if len(nationalID) != 12 || !allDigits(nationalID) {
		return nil, fmt.Errorf("%w: national id must be a 12-digit number", ErrInvalidInput)
	}
	if !o.verifier.ValidPINFormat(req.PIN) {
		return nil, fmt.Errorf("%w: pin must be a %d-digit number", ErrInvalidInput, o.verifier.pinLength)
	}

	c := &domain.Customer{
		ID:         o.ids.Next(idgen.KindCustomer),
		Name:       name,
		Phone:      phone,
		NationalID: nationalID,
		PIN:        req.PIN,
		Status:     domain.CustomerActive,
	}
	if err := o.store.CreateCustomer(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateAccount links a new account to the customer holding the given
// national id, mirroring the onboarding flow: the contact phone is taken from
// the customer record, never from the caller.
func (o *Onboarding) CreateAccount(ctx context.Context, req AccountRequest) (*domain.Account, error) {
	nationalID := strings.TrimSpace(req.NationalID)
	number := strings.TrimSpace(req.Number)
	holder := strings.TrimSpace(req.HolderName)

	if nationalID == "" {
		return nil, fmt.Errorf("%w: national id is required", ErrInvalidInput)
	}
	if number == "" {
		return nil, fmt.Errorf("%w: account number is required", ErrInvalidInput)
	}
	if holder == "" {
		return nil, fmt.Errorf("%w: holder name is required", ErrInvalidInput)
	}

	opening := decimal.Zero
	if s := strings.TrimSpace(req.OpeningBalance); s != "" {
		var err error
		opening, err = decimal.NewFromString(s)
		if err != nil || opening.Sign() < 0 || !opening.Equal(opening.Round(2)) {
			return nil, fmt.Errorf("%w: opening balance must be a non-negative amount with at most two decimal places", ErrInvalidInput)
		}
	}

	owner, err := o.store.CustomerByNationalID(ctx, nationalID)
	if err != nil {
		return nil, err
	}

	a := &domain.Account{
		ID:          o.ids.Next(idgen.KindAccount),
		CustomerID:  owner.ID,
		Number:      number,
		HolderName:  holder,
		BankName:    strings.TrimSpace(req.BankName),
		LinkedPhone: owner.Phone,
		Balance:     opening,
		Status:      domain.AccountActive,
	}
	if err := o.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// CloseAccount hard-removes an account; the store cascades removal of every
// transaction referencing it.
func (o *Onboarding) CloseAccount(ctx context.Context, accountID string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	return o.store.DeleteAccount(ctx, accountID)
}
