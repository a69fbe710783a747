package settlement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidAmount       = errors.New("invalid amount (must be > 0)")
	ErrInvalidReference    = errors.New("payment must reference exactly one payable or receivable matching its type")
	ErrInsufficientBalance = errors.New("insufficient remaining balance")
	ErrConflict            = errors.New("concurrent ledger modification, retry")
)

// InsufficientBalanceError reports both sides of a rejected drawdown so
// the caller can render an actionable message.
type InsufficientBalanceError struct {
	Kind      string // "payable" or "receivable"
	ID        int64
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("amount %s exceeds %s %d remaining balance %s",
		e.Requested.StringFixed(2), e.Kind, e.ID, e.Available.StringFixed(2))
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}
