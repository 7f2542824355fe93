package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bankcore/internal/idgen"
	"bankcore/internal/store"
)

func newOnboarding(t *testing.T) (*Onboarding, store.Store) {
	t.Helper()
	s := store.NewMemory()
	ids := idgen.New()
	if err := ids.Seed(context.Background(), s); err != nil {
		t.Fatalf("seed id generator: %v", err)
	}
	return NewOnboarding(s, ids, NewIdentityVerifier(6)), s
}

func TestOnboardCustomerAndAccount(t *testing.T) {
	o, s := newOnboarding(t)
	ctx := context.Background()

	c, err := o.CreateCustomer(ctx, CustomerRequest{
		Name: "Asha Rao", Phone: "9000000001", NationalID: "100000000001", PIN: "123456",
	})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	if !strings.HasPrefix(c.ID, "CUST_") {
		t.Fatalf("customer id %q lacks kind prefix", c.ID)
	}

	a, err := o.CreateAccount(ctx, AccountRequest{
		NationalID: "100000000001", Number: "1111111111",
		HolderName: "Asha Rao", OpeningBalance: "250.00",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if !strings.HasPrefix(a.ID, "ACC_") || a.CustomerID != c.ID {
		t.Fatalf("account %+v not linked to %s", a, c.ID)
	}
	// Contact phone comes from the customer record, never from the caller.
	if a.LinkedPhone != "9000000001" {
		t.Fatalf("linked phone = %q, want customer phone", a.LinkedPhone)
	}

	got, err := s.AccountByNumber(ctx, "1111111111")
	if err != nil {
		t.Fatalf("AccountByNumber: %v", err)
	}
	if !got.Balance.Equal(a.Balance) {
		t.Fatalf("opening balance = %s, want %s", got.Balance, a.Balance)
	}
}

func TestOnboardCustomerValidation(t *testing.T) {
	o, _ := newOnboarding(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  CustomerRequest
	}{
		{"missing name", CustomerRequest{Phone: "9000000001", NationalID: "100000000001", PIN: "123456"}},
		{"short phone", CustomerRequest{Name: "A", Phone: "90001", NationalID: "100000000001", PIN: "123456"}},
		{"bad national id", CustomerRequest{Name: "A", Phone: "9000000001", NationalID: "12", PIN: "123456"}},
		{"bad pin", CustomerRequest{Name: "A", Phone: "9000000001", NationalID: "100000000001", PIN: "12"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := o.CreateCustomer(ctx, tc.req); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestOnboardDuplicateCustomer(t *testing.T) {
	o, _ := newOnboarding(t)
	ctx := context.Background()

	req := CustomerRequest{Name: "Asha Rao", Phone: "9000000001", NationalID: "100000000001", PIN: "123456"}
	if _, err := o.CreateCustomer(ctx, req); err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	if _, err := o.CreateCustomer(ctx, req); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
}

func TestOnboardAccountRequiresCustomer(t *testing.T) {
	o, _ := newOnboarding(t)

	_, err := o.CreateAccount(context.Background(), AccountRequest{
		NationalID: "100000000099", Number: "1111111111", HolderName: "Nobody",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestCloseAccount(t *testing.T) {
	o, s := newOnboarding(t)
	ctx := context.Background()

	if _, err := o.CreateCustomer(ctx, CustomerRequest{
		Name: "Asha Rao", Phone: "9000000001", NationalID: "100000000001", PIN: "123456",
	}); err != nil {
		t.Fatal(err)
	}
	a, err := o.CreateAccount(ctx, AccountRequest{
		NationalID: "100000000001", Number: "1111111111", HolderName: "Asha Rao",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := o.CloseAccount(ctx, a.ID); err != nil {
		t.Fatalf("CloseAccount: %v", err)
	}
	if _, err := s.AccountByID(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("closed account still readable: %v", err)
	}
}
