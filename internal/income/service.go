package income

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"komir.org/internal/directory"
	"komir.org/internal/settlement"
)

type PostIncomeInput struct {
	SiteID            int64
	ClientID          *int64
	TruckNumber       string
	LoadingDate       time.Time
	DriverName        string
	DriverPhone       string
	BuyerName         string
	VehicleNumber     string
	QuantityTons      decimal.Decimal
	CoalPrice         decimal.Decimal
	GrossAmount       decimal.Decimal
	Commission        decimal.Decimal
	AmountFromPayable decimal.Decimal
	AmountCash        decimal.Decimal
	PayableID         *int64
	Status            string
	EvidencePhotos    []string
	Description       string
	Notes             string
}

// Validate checks business invariants before any durable write.
func (in PostIncomeInput) Validate() error {
	if !in.GrossAmount.IsPositive() {
		return settlement.ErrInvalidAmount
	}
	for _, d := range []decimal.Decimal{in.Commission, in.AmountFromPayable, in.AmountCash, in.QuantityTons, in.CoalPrice} {
		if d.IsNegative() {
			return settlement.ErrInvalidAmount
		}
	}
	if in.Commission.GreaterThan(in.GrossAmount) {
		return settlement.ErrInvalidAmount
	}
	if in.AmountFromPayable.IsPositive() && in.PayableID == nil {
		return settlement.ErrInvalidReference
	}
	switch in.Status {
	case "", StatusDraft, StatusCompleted:
	default:
		return ErrInvalidStatus
	}
	return nil
}

type Filter struct {
	SiteID   int64
	ClientID int64
}

// Service posts and reads income records. PostIncome runs the payable
// drawdown, the income insert, and the shortfall receivable as one
// all-or-nothing unit.
type Service interface {
	PostIncome(ctx context.Context, in PostIncomeInput, actorID int64) (View, error)
	GetIncome(ctx context.Context, id int64) (View, error)
	ListIncome(ctx context.Context, f Filter) ([]Income, error)
}

// InMemory coordinates over the in-memory ledger and directory. All
// validation runs before the first mutation, so the drawdown/insert pair
// cannot be left half-applied.
type InMemory struct {
	mu      sync.Mutex
	ledger  *settlement.InMemory
	dir     directory.Service
	incomes map[int64]*Income
	seq     int64
}

var _ Service = (*InMemory)(nil)

func NewInMemory(ledger *settlement.InMemory, dir directory.Service) *InMemory {
	return &InMemory{
		ledger:  ledger,
		dir:     dir,
		incomes: make(map[int64]*Income),
	}
}

func (s *InMemory) PostIncome(ctx context.Context, in PostIncomeInput, actorID int64) (View, error) {
	if err := in.Validate(); err != nil {
		return View{}, err
	}
	if _, err := s.dir.GetSite(ctx, in.SiteID); err != nil {
		return View{}, err
	}
	if in.ClientID != nil {
		if _, err := s.dir.GetClient(ctx, *in.ClientID); err != nil {
			return View{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Draw down the payable first: an insufficient balance must abort the
	// whole posting with no income record.
	if in.PayableID != nil && in.AmountFromPayable.IsPositive() {
		if _, err := s.ledger.ApplyDeduction(ctx, *in.PayableID, in.AmountFromPayable, actorID); err != nil {
			return View{}, err
		}
	}

	now := time.Now().UTC()
	s.seq++
	inc := &Income{
		ID:                s.seq,
		SiteID:            in.SiteID,
		ClientID:          in.ClientID,
		TruckNumber:       in.TruckNumber,
		LoadingDate:       in.LoadingDate,
		DriverName:        in.DriverName,
		DriverPhone:       in.DriverPhone,
		BuyerName:         in.BuyerName,
		VehicleNumber:     in.VehicleNumber,
		QuantityTons:      in.QuantityTons,
		CoalPrice:         in.CoalPrice,
		GrossAmount:       in.GrossAmount,
		Commission:        in.Commission,
		AmountFromPayable: in.AmountFromPayable,
		AmountCash:        in.AmountCash,
		PayableID:         in.PayableID,
		Status:            in.Status,
		EvidencePhotos:    append([]string(nil), in.EvidencePhotos...),
		Description:       in.Description,
		Notes:             in.Notes,
		CreatedBy:         actorID,
		ModifiedBy:        actorID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if inc.Status == "" {
		inc.Status = StatusDraft
	}

	outstanding := inc.Net().Sub(in.AmountFromPayable.Add(in.AmountCash))
	if outstanding.IsPositive() && in.ClientID != nil {
		rec, err := s.ledger.CreateReceivable(ctx, settlement.CreateReceivableInput{
			ClientID:    *in.ClientID,
			SiteID:      in.SiteID,
			Date:        in.LoadingDate,
			TotalAmount: outstanding,
			Description: ShortfallDescription(inc.ID, inc.TruckNumber, inc.LoadingDate),
		}, actorID)
		if err != nil {
			return View{}, err
		}
		inc.ReceivableID = &rec.ID
	}

	// The ledger refuses to delete anything this posting points at.
	if inc.PayableID != nil {
		s.ledger.NotePayableReference(*inc.PayableID)
	}
	if inc.ReceivableID != nil {
		s.ledger.NoteReceivableReference(*inc.ReceivableID)
	}

	s.incomes[inc.ID] = inc
	return s.viewLocked(ctx, *inc)
}

func (s *InMemory) GetIncome(ctx context.Context, id int64) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incomes[id]
	if !ok {
		return View{}, ErrNotFound
	}
	return s.viewLocked(ctx, *inc)
}

func (s *InMemory) ListIncome(ctx context.Context, f Filter) ([]Income, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []Income
	for _, inc := range s.incomes {
		if f.SiteID != 0 && inc.SiteID != f.SiteID {
			continue
		}
		if f.ClientID != 0 && (inc.ClientID == nil || *inc.ClientID != f.ClientID) {
			continue
		}
		res = append(res, *inc)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].LoadingDate.After(res[j].LoadingDate) })
	return res, nil
}

func (s *InMemory) viewLocked(ctx context.Context, inc Income) (View, error) {
	v := View{Income: inc}
	if site, err := s.dir.GetSite(ctx, inc.SiteID); err == nil {
		v.Site = &site
	}
	if inc.ClientID != nil {
		if c, err := s.dir.GetClient(ctx, *inc.ClientID); err == nil {
			v.Client = &c
		}
	}
	if inc.PayableID != nil {
		if p, err := s.ledger.GetPayable(ctx, *inc.PayableID); err == nil {
			v.Payable = &p
		}
	}
	if inc.ReceivableID != nil {
		if r, err := s.ledger.GetReceivable(ctx, *inc.ReceivableID); err == nil {
			v.Receivable = &r
		}
	}
	return v, nil
}

// ShortfallDescription labels the receivable auto-created for the
// uncollected part of a sale so the two records stay traceable.
func ShortfallDescription(incomeID int64, truck string, loadingDate time.Time) string {
	return fmt.Sprintf("Outstanding balance from income #%d (truck %s, %s)",
		incomeID, truck, loadingDate.Format("2006-01-02"))
}
