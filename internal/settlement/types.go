package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Statuses are stored as human-readable strings so ad hoc SQL against the
// ledger stays legible.
type PayableStatus string

const (
	PayableActive        PayableStatus = "Active"
	PayablePartiallyUsed PayableStatus = "Partially Used"
	PayableFullyUsed     PayableStatus = "Fully Used"
)

type ReceivableStatus string

const (
	ReceivablePending       ReceivableStatus = "Pending"
	ReceivablePartiallyPaid ReceivableStatus = "Partially Paid"
	ReceivableFullyPaid     ReceivableStatus = "Fully Paid"
)

type PaymentType string

const (
	PaymentPayableDeduction  PaymentType = "Payable Deduction"
	PaymentReceivablePayment PaymentType = "Receivable Payment"
)

// Payable is an advance credit the operation owes a client, drawn down
// over time. RemainingBalance never exceeds TotalAmount and never goes
// below zero; Status is derived from the two on every write.
type Payable struct {
	ID               int64           `json:"id"`
	ClientID         int64           `json:"client_id"`
	SiteID           int64           `json:"site_id"`
	Date             time.Time       `json:"date"`
	Description      string          `json:"description,omitempty"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	Status           PayableStatus   `json:"status"`
	Proof            []string        `json:"proof,omitempty"`
	CreatedBy        int64           `json:"created_by,omitempty"`
	ModifiedBy       int64           `json:"modified_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Receivable is a debt a client owes the operation, paid down by
// recorded payments. Same balance invariant as Payable.
type Receivable struct {
	ID               int64            `json:"id"`
	ClientID         int64            `json:"client_id"`
	SiteID           int64            `json:"site_id"`
	Date             time.Time        `json:"date"`
	Description      string           `json:"description,omitempty"`
	TotalAmount      decimal.Decimal  `json:"total_amount"`
	RemainingBalance decimal.Decimal  `json:"remaining_balance"`
	Status           ReceivableStatus `json:"status"`
	CreatedBy        int64            `json:"created_by,omitempty"`
	ModifiedBy       int64            `json:"modified_by,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Payment is an append-only ledger entry: money moved against exactly one
// Payable or one Receivable. There is no update or delete path.
type Payment struct {
	ID           int64           `json:"id"`
	Reference    string          `json:"reference"`
	ClientID     int64           `json:"client_id"`
	SiteID       int64           `json:"site_id"`
	Type         PaymentType     `json:"payment_type"`
	Amount       decimal.Decimal `json:"amount"`
	PaymentDate  time.Time       `json:"payment_date"`
	Method       string          `json:"payment_method,omitempty"`
	Proof        []string        `json:"proof,omitempty"`
	ReceivedBy   string          `json:"received_by,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	PayableID    *int64          `json:"payable_id,omitempty"`
	ReceivableID *int64          `json:"receivable_id,omitempty"`
	CreatedBy    int64           `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PayableStatusFor derives status from (remaining, total). Active only
// holds before the first deduction. Status is never stored independently
// of a balance write.
func PayableStatusFor(remaining, total decimal.Decimal) PayableStatus {
	switch {
	case remaining.IsZero():
		return PayableFullyUsed
	case remaining.LessThan(total):
		return PayablePartiallyUsed
	default:
		return PayableActive
	}
}

func ReceivableStatusFor(remaining, total decimal.Decimal) ReceivableStatus {
	switch {
	case remaining.IsZero():
		return ReceivableFullyPaid
	case remaining.LessThan(total):
		return ReceivablePartiallyPaid
	default:
		return ReceivablePending
	}
}
