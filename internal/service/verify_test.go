package service

import (
	"errors"
	"testing"

	"bankcore/internal/domain"
)

func TestAuthenticate(t *testing.T) {
	v := NewIdentityVerifier(6)
	owner := &domain.Customer{ID: "CUST_1", PIN: "123456"}

	cases := []struct {
		name     string
		supplied string
		want     error
	}{
		{"correct", "123456", nil},
		{"mismatch", "654321", ErrPINMismatch},
		{"too short", "1234", ErrPINFormat},
		{"too long", "1234567", ErrPINFormat},
		{"not numeric", "12a456", ErrPINFormat},
		{"empty", "", ErrPINFormat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Authenticate(owner, tc.supplied)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("Authenticate = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("Authenticate = %v, want %v", err, tc.want)
			}
			if !errors.Is(err, ErrAuthenticationFailed) {
				t.Fatalf("%v must match ErrAuthenticationFailed", err)
			}
		})
	}
}

func TestValidPINFormat(t *testing.T) {
	v := NewIdentityVerifier(4)
	if !v.ValidPINFormat("0042") {
		t.Error("0042 should satisfy a 4-digit policy")
	}
	for _, pin := range []string{"123", "12345", "12x4", ""} {
		if v.ValidPINFormat(pin) {
			t.Errorf("%q should not satisfy a 4-digit policy", pin)
		}
	}
}
