package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput covers malformed or missing transfer fields, caught
	// before any store access.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSameAccount rejects a transfer whose sender and receiver numbers are
	// equal, before any lookup.
	ErrSameAccount = errors.New("sender and receiver account are the same")
	// ErrAuthenticationFailed covers every credential rejection. Both
	// concrete kinds below match it via errors.Is.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrTransient marks a storage or timeout failure that the caller may
	// retry; nothing was committed.
	ErrTransient = errors.New("temporary failure, retry")

	ErrPINFormat   = fmt.Errorf("%w: credential format invalid", ErrAuthenticationFailed)
	ErrPINMismatch = fmt.Errorf("%w: credential mismatch", ErrAuthenticationFailed)
)
