package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type CreatePayableInput struct {
	ClientID    int64
	SiteID      int64
	Date        time.Time
	TotalAmount decimal.Decimal
	Description string
	Proof       []string
}

type CreateReceivableInput struct {
	ClientID    int64
	SiteID      int64
	Date        time.Time
	TotalAmount decimal.Decimal
	Description string
}

type RecordPaymentInput struct {
	ClientID     int64
	SiteID       int64
	Type         PaymentType
	Amount       decimal.Decimal
	PaymentDate  time.Time
	Method       string
	Proof        []string
	ReceivedBy   string
	Notes        string
	PayableID    *int64
	ReceivableID *int64
}

// Validate checks reference consistency: exactly one target, matching the
// payment type. Balance checks happen later, under the transaction.
func (in RecordPaymentInput) Validate() error {
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	switch in.Type {
	case PaymentPayableDeduction:
		if in.PayableID == nil || in.ReceivableID != nil {
			return ErrInvalidReference
		}
	case PaymentReceivablePayment:
		if in.ReceivableID == nil || in.PayableID != nil {
			return ErrInvalidReference
		}
	default:
		return ErrInvalidReference
	}
	return nil
}

// PayableFilter narrows list queries; zero values mean "any".
type PayableFilter struct {
	ClientID int64
	SiteID   int64
	OpenOnly bool // Active or Partially Used, oldest first
}

type ReceivableFilter struct {
	ClientID    int64
	SiteID      int64
	PendingOnly bool
}

type PaymentFilter struct {
	ClientID     int64
	SiteID       int64
	Type         PaymentType
	PayableID    int64
	ReceivableID int64
}

// Service is the settlement engine: the only component allowed to mutate
// remaining balances and statuses. Every mutating call takes the acting
// user id and writes the audit columns itself.
type Service interface {
	CreatePayable(ctx context.Context, in CreatePayableInput, actorID int64) (Payable, error)
	CreateReceivable(ctx context.Context, in CreateReceivableInput, actorID int64) (Receivable, error)
	GetPayable(ctx context.Context, id int64) (Payable, error)
	GetReceivable(ctx context.Context, id int64) (Receivable, error)
	ListPayables(ctx context.Context, f PayableFilter) ([]Payable, error)
	ListReceivables(ctx context.Context, f ReceivableFilter) ([]Receivable, error)

	// ApplyDeduction draws down a payable; ApplyPayment pays down a
	// receivable. Both fail with InsufficientBalanceError when the amount
	// exceeds the remaining balance and re-derive status on success.
	ApplyDeduction(ctx context.Context, payableID int64, amount decimal.Decimal, actorID int64) (Payable, error)
	ApplyPayment(ctx context.Context, receivableID int64, amount decimal.Decimal, actorID int64) (Receivable, error)

	// RecordPayment applies the referenced balance mutation and inserts
	// the immutable Payment row in one atomic step.
	RecordPayment(ctx context.Context, in RecordPaymentInput, actorID int64) (Payment, error)
	GetPayment(ctx context.Context, id int64) (Payment, error)
	ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, error)

	// Administrative removal, outside the settlement flow. Refused once
	// payments reference the record.
	DeletePayable(ctx context.Context, id int64) error
	DeleteReceivable(ctx context.Context, id int64) error
}
