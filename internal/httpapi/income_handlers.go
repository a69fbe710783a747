package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"komir.org/internal/audit"
	"komir.org/internal/directory"
	"komir.org/internal/income"
	"komir.org/internal/obs"
)

type postIncomeRequest struct {
	SiteID            int64           `json:"site_id"`
	ClientID          *int64          `json:"client_id"`
	TruckNumber       string          `json:"truck_number"`
	LoadingDate       string          `json:"loading_date"`
	DriverName        string          `json:"driver_name"`
	DriverPhone       string          `json:"driver_phone"`
	BuyerName         string          `json:"buyer_name"`
	VehicleNumber     string          `json:"vehicle_number"`
	QuantityTons      decimal.Decimal `json:"quantity_tons"`
	CoalPrice         decimal.Decimal `json:"coal_price"`
	GrossAmount       decimal.Decimal `json:"gross_amount"`
	Commission        decimal.Decimal `json:"commission"`
	AmountFromPayable decimal.Decimal `json:"amount_from_payable"`
	AmountCash        decimal.Decimal `json:"amount_cash"`
	PayableID         *int64          `json:"payable_id"`
	Status            string          `json:"status"`
	EvidencePhotos    []string        `json:"evidence_photos"`
	Description       string          `json:"description"`
	Notes             string          `json:"notes"`
}

func (a *API) handleIncomeCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listIncome(w, r)
	case http.MethodPost:
		a.postIncome(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleIncomeResource(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r, "/v1/income/")
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		v, err := a.income.GetIncome(r.Context(), id)
		if err != nil {
			handleIncomeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) postIncome(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req postIncomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	loading, err := parseDate(req.LoadingDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "loading_date must be YYYY-MM-DD")
		return
	}
	if req.SiteID <= 0 {
		writeError(w, r, http.StatusBadRequest, "site_id is required")
		return
	}

	v, err := a.income.PostIncome(r.Context(), income.PostIncomeInput{
		SiteID:            req.SiteID,
		ClientID:          req.ClientID,
		TruckNumber:       req.TruckNumber,
		LoadingDate:       loading,
		DriverName:        req.DriverName,
		DriverPhone:       req.DriverPhone,
		BuyerName:         req.BuyerName,
		VehicleNumber:     req.VehicleNumber,
		QuantityTons:      req.QuantityTons,
		CoalPrice:         req.CoalPrice,
		GrossAmount:       req.GrossAmount,
		Commission:        req.Commission,
		AmountFromPayable: req.AmountFromPayable,
		AmountCash:        req.AmountCash,
		PayableID:         req.PayableID,
		Status:            req.Status,
		EvidencePhotos:    req.EvidencePhotos,
		Description:       req.Description,
		Notes:             req.Notes,
	}, actor)
	if err != nil {
		obs.ObserveSettlementOp("income.post", opResult(err))
		handleIncomeError(w, r, err)
		return
	}
	obs.ObserveSettlementOp("income.post", "ok")

	fields := map[string]any{
		"income_id": v.Income.ID,
		"site_id":   v.Income.SiteID,
		"gross":     v.Income.GrossAmount.String(),
		"net":       v.Income.Net().String(),
	}
	if v.Income.PayableID != nil {
		fields["payable_id"] = *v.Income.PayableID
		fields["amount_from_payable"] = v.Income.AmountFromPayable.String()
	}
	if v.Income.ReceivableID != nil {
		fields["receivable_id"] = *v.Income.ReceivableID
	}
	_ = audit.LogEvent(r.Context(), "income.post", fields)

	w.Header().Set("Location", "/v1/income/"+strconv.FormatInt(v.Income.ID, 10))
	writeJSON(w, http.StatusCreated, v)
}

func (a *API) listIncome(w http.ResponseWriter, r *http.Request) {
	f := income.Filter{
		SiteID:   queryID(r, "site_id"),
		ClientID: queryID(r, "client_id"),
	}
	items, err := a.income.ListIncome(r.Context(), f)
	if err != nil {
		handleIncomeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func handleIncomeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, income.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, income.ErrInvalidStatus):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		handleSettlementError(w, r, err)
	}
}
