package settlement

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InMemory implements Service with in-process concurrency safety. It backs
// local runs and HTTP tests; the postgres store is the durable path.
type InMemory struct {
	mu          sync.Mutex
	payables    map[int64]*Payable
	receivables map[int64]*Receivable
	payments    map[int64]*Payment
	seq         int64

	// External references from income postings. A payable drawn down only
	// through a posting has no payment row, so delete refusal needs these.
	payableRefs    map[int64]int
	receivableRefs map[int64]int
}

var _ Service = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{
		payables:       make(map[int64]*Payable),
		receivables:    make(map[int64]*Receivable),
		payments:       make(map[int64]*Payment),
		payableRefs:    make(map[int64]int),
		receivableRefs: make(map[int64]int),
	}
}

// NotePayableReference records an income posting's reference to a payable
// so administrative deletes refuse while the posting exists.
func (s *InMemory) NotePayableReference(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payableRefs[id]++
}

// NoteReceivableReference records an income posting's reference to a
// receivable (the auto-created shortfall).
func (s *InMemory) NoteReceivableReference(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receivableRefs[id]++
}

func (s *InMemory) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *InMemory) CreatePayable(ctx context.Context, in CreatePayableInput, actorID int64) (Payable, error) {
	if !in.TotalAmount.IsPositive() {
		return Payable{}, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	p := &Payable{
		ID:               s.nextID(),
		ClientID:         in.ClientID,
		SiteID:           in.SiteID,
		Date:             in.Date,
		Description:      in.Description,
		TotalAmount:      in.TotalAmount,
		RemainingBalance: in.TotalAmount,
		Status:           PayableActive,
		Proof:            append([]string(nil), in.Proof...),
		CreatedBy:        actorID,
		ModifiedBy:       actorID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.payables[p.ID] = p
	return *p, nil
}

func (s *InMemory) CreateReceivable(ctx context.Context, in CreateReceivableInput, actorID int64) (Receivable, error) {
	if !in.TotalAmount.IsPositive() {
		return Receivable{}, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createReceivableLocked(in, actorID), nil
}

// createReceivableLocked exists so the income coordinator can create the
// shortfall receivable inside one critical section with its own writes.
func (s *InMemory) createReceivableLocked(in CreateReceivableInput, actorID int64) Receivable {
	now := time.Now().UTC()
	r := &Receivable{
		ID:               s.nextID(),
		ClientID:         in.ClientID,
		SiteID:           in.SiteID,
		Date:             in.Date,
		Description:      in.Description,
		TotalAmount:      in.TotalAmount,
		RemainingBalance: in.TotalAmount,
		Status:           ReceivablePending,
		CreatedBy:        actorID,
		ModifiedBy:       actorID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.receivables[r.ID] = r
	return *r
}

func (s *InMemory) GetPayable(ctx context.Context, id int64) (Payable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payables[id]
	if !ok {
		return Payable{}, ErrNotFound
	}
	return *p, nil
}

func (s *InMemory) GetReceivable(ctx context.Context, id int64) (Receivable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receivables[id]
	if !ok {
		return Receivable{}, ErrNotFound
	}
	return *r, nil
}

func (s *InMemory) ListPayables(ctx context.Context, f PayableFilter) ([]Payable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []Payable
	for _, p := range s.payables {
		if f.ClientID != 0 && p.ClientID != f.ClientID {
			continue
		}
		if f.SiteID != 0 && p.SiteID != f.SiteID {
			continue
		}
		if f.OpenOnly && p.Status == PayableFullyUsed {
			continue
		}
		res = append(res, *p)
	}
	if f.OpenOnly {
		// Oldest first: drawdown consumes the earliest credit.
		sort.Slice(res, func(i, j int) bool { return res[i].Date.Before(res[j].Date) })
	} else {
		sort.Slice(res, func(i, j int) bool { return res[i].Date.After(res[j].Date) })
	}
	return res, nil
}

func (s *InMemory) ListReceivables(ctx context.Context, f ReceivableFilter) ([]Receivable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []Receivable
	for _, r := range s.receivables {
		if f.ClientID != 0 && r.ClientID != f.ClientID {
			continue
		}
		if f.SiteID != 0 && r.SiteID != f.SiteID {
			continue
		}
		if f.PendingOnly && r.Status == ReceivableFullyPaid {
			continue
		}
		res = append(res, *r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date.After(res[j].Date) })
	return res, nil
}

func (s *InMemory) ApplyDeduction(ctx context.Context, payableID int64, amount decimal.Decimal, actorID int64) (Payable, error) {
	if !amount.IsPositive() {
		return Payable{}, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyDeductionLocked(payableID, amount, actorID)
}

func (s *InMemory) applyDeductionLocked(payableID int64, amount decimal.Decimal, actorID int64) (Payable, error) {
	p, ok := s.payables[payableID]
	if !ok {
		return Payable{}, ErrNotFound
	}
	if amount.GreaterThan(p.RemainingBalance) {
		return Payable{}, &InsufficientBalanceError{
			Kind:      "payable",
			ID:        payableID,
			Requested: amount,
			Available: p.RemainingBalance,
		}
	}
	p.RemainingBalance = p.RemainingBalance.Sub(amount)
	p.Status = PayableStatusFor(p.RemainingBalance, p.TotalAmount)
	p.ModifiedBy = actorID
	p.UpdatedAt = time.Now().UTC()
	return *p, nil
}

func (s *InMemory) ApplyPayment(ctx context.Context, receivableID int64, amount decimal.Decimal, actorID int64) (Receivable, error) {
	if !amount.IsPositive() {
		return Receivable{}, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyPaymentLocked(receivableID, amount, actorID)
}

func (s *InMemory) applyPaymentLocked(receivableID int64, amount decimal.Decimal, actorID int64) (Receivable, error) {
	r, ok := s.receivables[receivableID]
	if !ok {
		return Receivable{}, ErrNotFound
	}
	if amount.GreaterThan(r.RemainingBalance) {
		return Receivable{}, &InsufficientBalanceError{
			Kind:      "receivable",
			ID:        receivableID,
			Requested: amount,
			Available: r.RemainingBalance,
		}
	}
	r.RemainingBalance = r.RemainingBalance.Sub(amount)
	r.Status = ReceivableStatusFor(r.RemainingBalance, r.TotalAmount)
	r.ModifiedBy = actorID
	r.UpdatedAt = time.Now().UTC()
	return *r, nil
}

func (s *InMemory) RecordPayment(ctx context.Context, in RecordPaymentInput, actorID int64) (Payment, error) {
	if err := in.Validate(); err != nil {
		return Payment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// The balance mutation and the payment row land together or not at
	// all; under one mutex the failed mutation simply returns first.
	switch in.Type {
	case PaymentPayableDeduction:
		if _, err := s.applyDeductionLocked(*in.PayableID, in.Amount, actorID); err != nil {
			return Payment{}, err
		}
	case PaymentReceivablePayment:
		if _, err := s.applyPaymentLocked(*in.ReceivableID, in.Amount, actorID); err != nil {
			return Payment{}, err
		}
	}

	p := &Payment{
		ID:           s.nextID(),
		Reference:    uuid.NewString(),
		ClientID:     in.ClientID,
		SiteID:       in.SiteID,
		Type:         in.Type,
		Amount:       in.Amount,
		PaymentDate:  in.PaymentDate,
		Method:       in.Method,
		Proof:        append([]string(nil), in.Proof...),
		ReceivedBy:   in.ReceivedBy,
		Notes:        in.Notes,
		PayableID:    in.PayableID,
		ReceivableID: in.ReceivableID,
		CreatedBy:    actorID,
		CreatedAt:    time.Now().UTC(),
	}
	s.payments[p.ID] = p
	return *p, nil
}

func (s *InMemory) GetPayment(ctx context.Context, id int64) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return *p, nil
}

func (s *InMemory) ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []Payment
	for _, p := range s.payments {
		if f.ClientID != 0 && p.ClientID != f.ClientID {
			continue
		}
		if f.SiteID != 0 && p.SiteID != f.SiteID {
			continue
		}
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		if f.PayableID != 0 && (p.PayableID == nil || *p.PayableID != f.PayableID) {
			continue
		}
		if f.ReceivableID != 0 && (p.ReceivableID == nil || *p.ReceivableID != f.ReceivableID) {
			continue
		}
		res = append(res, *p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].PaymentDate.After(res[j].PaymentDate) })
	return res, nil
}

func (s *InMemory) DeletePayable(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payables[id]; !ok {
		return ErrNotFound
	}
	if s.payableRefs[id] > 0 {
		return ErrConflict
	}
	for _, p := range s.payments {
		if p.PayableID != nil && *p.PayableID == id {
			return ErrConflict
		}
	}
	delete(s.payables, id)
	return nil
}

func (s *InMemory) DeleteReceivable(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receivables[id]; !ok {
		return ErrNotFound
	}
	if s.receivableRefs[id] > 0 {
		return ErrConflict
	}
	for _, p := range s.payments {
		if p.ReceivableID != nil && *p.ReceivableID == id {
			return ErrConflict
		}
	}
	delete(s.receivables, id)
	return nil
}
