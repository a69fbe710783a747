package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"komir.org/internal/audit"
	"komir.org/internal/obs"
	"komir.org/internal/settlement"
)

type createPayableRequest struct {
	ClientID    int64           `json:"client_id"`
	SiteID      int64           `json:"site_id"`
	Date        string          `json:"date"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Description string          `json:"description"`
	Proof       []string        `json:"proof"`
}

type createReceivableRequest struct {
	ClientID    int64           `json:"client_id"`
	SiteID      int64           `json:"site_id"`
	Date        string          `json:"date"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Description string          `json:"description"`
}

type recordPaymentRequest struct {
	ClientID     int64           `json:"client_id"`
	SiteID       int64           `json:"site_id"`
	PaymentType  string          `json:"payment_type"`
	Amount       decimal.Decimal `json:"amount"`
	PaymentDate  string          `json:"payment_date"`
	Method       string          `json:"payment_method"`
	Proof        []string        `json:"proof"`
	ReceivedBy   string          `json:"received_by"`
	Notes        string          `json:"notes"`
	PayableID    *int64          `json:"payable_id"`
	ReceivableID *int64          `json:"receivable_id"`
}

func (a *API) handlePayablesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listPayables(w, r)
	case http.MethodPost:
		a.createPayable(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePayableResource(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r, "/v1/payables/")
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		p, err := a.settle.GetPayable(r.Context(), id)
		if err != nil {
			handleSettlementError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodDelete:
		if _, ok := requireActor(w, r); !ok {
			return
		}
		if err := a.settle.DeletePayable(r.Context(), id); err != nil {
			handleSettlementError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "settlement.payable.delete", map[string]any{
			"payable_id": id,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) createPayable(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createPayableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if req.ClientID <= 0 || req.SiteID <= 0 {
		writeError(w, r, http.StatusBadRequest, "client_id and site_id are required")
		return
	}

	p, err := a.settle.CreatePayable(r.Context(), settlement.CreatePayableInput{
		ClientID:    req.ClientID,
		SiteID:      req.SiteID,
		Date:        date,
		TotalAmount: req.TotalAmount,
		Description: req.Description,
		Proof:       req.Proof,
	}, actor)
	if err != nil {
		handleSettlementError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "settlement.payable.create", map[string]any{
		"payable_id": p.ID,
		"client_id":  p.ClientID,
		"amount":     p.TotalAmount.String(),
	})

	w.Header().Set("Location", "/v1/payables/"+strconv.FormatInt(p.ID, 10))
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) listPayables(w http.ResponseWriter, r *http.Request) {
	f := settlement.PayableFilter{
		ClientID: queryID(r, "client_id"),
		SiteID:   queryID(r, "site_id"),
		OpenOnly: r.URL.Query().Get("open") == "true",
	}
	items, err := a.settle.ListPayables(r.Context(), f)
	if err != nil {
		handleSettlementError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleReceivablesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listReceivables(w, r)
	case http.MethodPost:
		a.createReceivable(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleReceivableResource(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r, "/v1/receivables/")
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		rec, err := a.settle.GetReceivable(r.Context(), id)
		if err != nil {
			handleSettlementError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		if _, ok := requireActor(w, r); !ok {
			return
		}
		if err := a.settle.DeleteReceivable(r.Context(), id); err != nil {
			handleSettlementError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "settlement.receivable.delete", map[string]any{
			"receivable_id": id,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) createReceivable(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createReceivableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if req.ClientID <= 0 || req.SiteID <= 0 {
		writeError(w, r, http.StatusBadRequest, "client_id and site_id are required")
		return
	}

	rec, err := a.settle.CreateReceivable(r.Context(), settlement.CreateReceivableInput{
		ClientID:    req.ClientID,
		SiteID:      req.SiteID,
		Date:        date,
		TotalAmount: req.TotalAmount,
		Description: req.Description,
	}, actor)
	if err != nil {
		handleSettlementError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "settlement.receivable.create", map[string]any{
		"receivable_id": rec.ID,
		"client_id":     rec.ClientID,
		"amount":        rec.TotalAmount.String(),
	})

	w.Header().Set("Location", "/v1/receivables/"+strconv.FormatInt(rec.ID, 10))
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) listReceivables(w http.ResponseWriter, r *http.Request) {
	f := settlement.ReceivableFilter{
		ClientID:    queryID(r, "client_id"),
		SiteID:      queryID(r, "site_id"),
		PendingOnly: r.URL.Query().Get("pending") == "true",
	}
	items, err := a.settle.ListReceivables(r.Context(), f)
	if err != nil {
		handleSettlementError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handlePaymentsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listPayments(w, r)
	case http.MethodPost:
		a.recordPayment(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// Payments are immutable once written: the resource supports GET only.
func (a *API) handlePaymentResource(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r, "/v1/payments/")
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		p, err := a.settle.GetPayment(r.Context(), id)
		if err != nil {
			handleSettlementError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) recordPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req recordPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	date, err := parseDate(req.PaymentDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "payment_date must be YYYY-MM-DD")
		return
	}
	if req.ClientID <= 0 || req.SiteID <= 0 {
		writeError(w, r, http.StatusBadRequest, "client_id and site_id are required")
		return
	}

	p, err := a.settle.RecordPayment(r.Context(), settlement.RecordPaymentInput{
		ClientID:     req.ClientID,
		SiteID:       req.SiteID,
		Type:         settlement.PaymentType(req.PaymentType),
		Amount:       req.Amount,
		PaymentDate:  date,
		Method:       req.Method,
		Proof:        req.Proof,
		ReceivedBy:   req.ReceivedBy,
		Notes:        req.Notes,
		PayableID:    req.PayableID,
		ReceivableID: req.ReceivableID,
	}, actor)
	if err != nil {
		obs.ObserveSettlementOp("payment.record", opResult(err))
		handleSettlementError(w, r, err)
		return
	}
	obs.ObserveSettlementOp("payment.record", "ok")

	fields := map[string]any{
		"payment_id": p.ID,
		"reference":  p.Reference,
		"type":       string(p.Type),
		"amount":     p.Amount.String(),
	}
	if p.PayableID != nil {
		fields["payable_id"] = *p.PayableID
	}
	if p.ReceivableID != nil {
		fields["receivable_id"] = *p.ReceivableID
	}
	_ = audit.LogEvent(r.Context(), "settlement.payment.record", fields)

	w.Header().Set("Location", "/v1/payments/"+strconv.FormatInt(p.ID, 10))
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) listPayments(w http.ResponseWriter, r *http.Request) {
	f := settlement.PaymentFilter{
		ClientID:     queryID(r, "client_id"),
		SiteID:       queryID(r, "site_id"),
		Type:         settlement.PaymentType(r.URL.Query().Get("type")),
		PayableID:    queryID(r, "payable_id"),
		ReceivableID: queryID(r, "receivable_id"),
	}
	items, err := a.settle.ListPayments(r.Context(), f)
	if err != nil {
		handleSettlementError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// --- shared helpers ---

func requireActor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	actor := audit.ActorFromContext(r.Context())
	if actor == 0 {
		writeError(w, r, http.StatusBadRequest, "X-Actor-Id header is required")
		return 0, false
	}
	return actor, true
}

func resourceID(w http.ResponseWriter, r *http.Request, prefix string) (int64, bool) {
	raw := strings.TrimPrefix(r.URL.Path, prefix)
	if raw == "" || strings.Contains(raw, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return 0, false
	}
	return id, true
}

func queryID(r *http.Request, key string) int64 {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(raw))
}

func opResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, settlement.ErrInsufficientBalance):
		return "insufficient_balance"
	default:
		return "error"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleSettlementError(w http.ResponseWriter, r *http.Request, err error) {
	var ib *settlement.InsufficientBalanceError
	switch {
	case errors.As(err, &ib):
		payload := map[string]any{
			"error":     ib.Error(),
			"requested": ib.Requested.String(),
			"available": ib.Available.String(),
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusConflict, payload)
	case errors.Is(err, settlement.ErrInvalidAmount), errors.Is(err, settlement.ErrInvalidReference):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, settlement.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, settlement.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
