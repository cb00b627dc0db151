package tx

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNegativeAmount is returned when a spend asks for a negative amount
	ErrNegativeAmount = errors.New("amount must not be negative")

	// ErrIDMismatch is returned when a transaction id does not match its contents
	ErrIDMismatch = errors.New("transaction id mismatch")

	// ErrUnauthorized is returned when an input's authorization does not
	// entitle it to the referenced output
	ErrUnauthorized = errors.New("input not authorized")
)

// InsufficientBalanceError is returned when the spendable outputs of the
// spender do not cover the requested amount.
type InsufficientBalanceError struct {
	Available int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("not enough balance: current balance %d, requested %d", e.Available, e.Requested)
}
