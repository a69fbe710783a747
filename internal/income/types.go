// Package income records coal sale/delivery events and reconciles how much
// of each sale was collected. A sale may draw down an existing payable
// credit; any shortfall becomes a receivable owed by the client.
package income

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"komir.org/internal/directory"
	"komir.org/internal/settlement"
)

const (
	StatusDraft     = "draft"
	StatusCompleted = "completed"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidStatus = errors.New("status must be draft or completed")
)

// Income is one recorded truck load leaving a site.
type Income struct {
	ID                int64           `json:"id"`
	SiteID            int64           `json:"site_id"`
	ClientID          *int64          `json:"client_id,omitempty"`
	TruckNumber       string          `json:"truck_number"`
	LoadingDate       time.Time       `json:"loading_date"`
	DriverName        string          `json:"driver_name"`
	DriverPhone       string          `json:"driver_phone,omitempty"`
	BuyerName         string          `json:"buyer_name,omitempty"`
	VehicleNumber     string          `json:"vehicle_number,omitempty"`
	QuantityTons      decimal.Decimal `json:"quantity_tons"`
	CoalPrice         decimal.Decimal `json:"coal_price"`
	GrossAmount       decimal.Decimal `json:"gross_amount"`
	Commission        decimal.Decimal `json:"commission"`
	AmountFromPayable decimal.Decimal `json:"amount_from_payable"`
	AmountCash        decimal.Decimal `json:"amount_cash"`
	PayableID         *int64          `json:"payable_id,omitempty"`
	ReceivableID      *int64          `json:"receivable_id,omitempty"`
	Status            string          `json:"status"`
	EvidencePhotos    []string        `json:"evidence_photos,omitempty"`
	Description       string          `json:"description,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	CreatedBy         int64           `json:"created_by,omitempty"`
	ModifiedBy        int64           `json:"modified_by,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Net is the income value after commission.
func (i Income) Net() decimal.Decimal {
	return i.GrossAmount.Sub(i.Commission)
}

// View joins an income with its related records for the caller.
type View struct {
	Income
	Client     *directory.Client      `json:"client,omitempty"`
	Site       *directory.Site        `json:"site,omitempty"`
	Payable    *settlement.Payable    `json:"payable,omitempty"`
	Receivable *settlement.Receivable `json:"receivable,omitempty"`
}
