package service

import (
	"crypto/subtle"

	"bankcore/internal/domain"
)

// IdentityVerifier authenticates a transfer against the sender's stored PIN.
// It never logs or persists the supplied credential.
type IdentityVerifier struct {
	pinLength int
}

func NewIdentityVerifier(pinLength int) *IdentityVerifier {
	return &IdentityVerifier{pinLength: pinLength}
}

// Authenticate compares the supplied PIN to the customer's stored PIN. The
// comparison runs even when the format gate fails, so a format rejection and a
// mismatch share one latency profile and cannot be told apart by timing.
func (v *IdentityVerifier) Authenticate(c *domain.Customer, supplied string) error {
	formatOK := len(supplied) == v.pinLength && allDigits(supplied)
	match := subtle.ConstantTimeCompare([]byte(c.PIN), []byte(supplied)) == 1

	if !formatOK {
		return ErrPINFormat
	}
	if !match {
		return ErrPINMismatch
	}
	return nil
}

// ValidPINFormat reports whether pin satisfies the credential policy. Used at
// onboarding, where the timing of the answer is not sensitive.
func (v *IdentityVerifier) ValidPINFormat(pin string) bool {
	return len(pin) == v.pinLength && allDigits(pin)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
