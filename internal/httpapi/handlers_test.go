package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"

	"komir.org/internal/directory"
	"komir.org/internal/income"
	"komir.org/internal/settlement"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

var actorHeaders = map[string]string{"X-Actor-Id": "42"}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	ledger := settlement.NewInMemory()
	dir := directory.NewInMemory()
	inc := income.NewInMemory(ledger, dir)

	api := New(ReadyProbe{}, "test", ledger, inc, dir)
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string) *http.Response {
	return c.do(http.MethodGet, path, nil, nil)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func idOf(t *testing.T, body map[string]any) int64 {
	t.Helper()
	f, ok := body["id"].(float64)
	if !ok {
		t.Fatalf("expected numeric id, got %T (%v)", body["id"], body["id"])
	}
	return int64(f)
}

func amountEquals(v any, want string) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	got, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return got.Equal(decimal.RequireFromString(want))
}

func (c *apiClient) createDirectory() (clientID, siteID int64) {
	c.t.Helper()
	resp := c.post("/v1/clients", map[string]any{"name": "Altai Trading"}, actorHeaders)
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("create client: status %d", resp.StatusCode)
	}
	clientID = idOf(c.t, decodeBody(c.t, resp))

	resp = c.post("/v1/sites", map[string]any{"name": "North Pit"}, actorHeaders)
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("create site: status %d", resp.StatusCode)
	}
	siteID = idOf(c.t, decodeBody(c.t, resp))
	return clientID, siteID
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestHealthz(t *testing.T) {
	c := newTestAPI(t)
	resp := c.get("/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["service"] != "komir-api" {
		t.Fatalf("unexpected service: %v", body["service"])
	}
}

func TestPayableLifecycleOverHTTP(t *testing.T) {
	c := newTestAPI(t)
	clientID, siteID := c.createDirectory()

	resp := c.post("/v1/payables", map[string]any{
		"client_id":    clientID,
		"site_id":      siteID,
		"date":         "2025-06-01",
		"total_amount": "1000.00",
		"description":  "prepayment for June coal",
	}, actorHeaders)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create payable: status %d", resp.StatusCode)
	}
	payable := decodeBody(t, resp)
	if payable["status"] != string(settlement.PayableActive) {
		t.Fatalf("new payable status = %v", payable["status"])
	}
	if !amountEquals(payable["remaining_balance"], "1000.00") {
		t.Fatalf("remaining = %v", payable["remaining_balance"])
	}
	payableID := idOf(t, payable)

	// Income posting draws the payable down and leaves it partially used.
	resp = c.post("/v1/income", map[string]any{
		"site_id":             siteID,
		"client_id":           clientID,
		"truck_number":        "KZ-774",
		"loading_date":        "2025-06-10",
		"gross_amount":        "600.00",
		"amount_from_payable": "400.00",
		"amount_cash":         "200.00",
		"payable_id":          payableID,
	}, actorHeaders)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("post income: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.get("/v1/payables/" + itoa(payableID))
	updated := decodeBody(t, resp)
	if updated["status"] != string(settlement.PayablePartiallyUsed) {
		t.Fatalf("payable status after drawdown = %v", updated["status"])
	}
	if !amountEquals(updated["remaining_balance"], "600.00") {
		t.Fatalf("remaining after drawdown = %v", updated["remaining_balance"])
	}
}

func TestIncomeInsufficientPayableReturns409WithDetail(t *testing.T) {
	c := newTestAPI(t)
	clientID, siteID := c.createDirectory()

	resp := c.post("/v1/payables", map[string]any{
		"client_id":    clientID,
		"site_id":      siteID,
		"date":         "2025-06-01",
		"total_amount": "100.00",
	}, actorHeaders)
	payableID := idOf(t, decodeBody(t, resp))

	resp = c.post("/v1/income", map[string]any{
		"site_id":             siteID,
		"client_id":           clientID,
		"truck_number":        "KZ-101",
		"loading_date":        "2025-06-02",
		"gross_amount":        "500.00",
		"amount_from_payable": "300.00",
		"payable_id":          payableID,
	}, actorHeaders)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if !amountEquals(body["requested"], "300.00") {
		t.Fatalf("requested = %v", body["requested"])
	}
	if !amountEquals(body["available"], "100.00") {
		t.Fatalf("available = %v", body["available"])
	}

	// The failed posting must not create an income record.
	resp = c.get("/v1/income")
	list := decodeBody(t, resp)
	if items, ok := list["items"].([]any); ok && len(items) != 0 {
		t.Fatalf("expected no income records, got %d", len(items))
	}
}

func TestShortfallReceivableThenPaymentToFullyPaid(t *testing.T) {
	c := newTestAPI(t)
	clientID, siteID := c.createDirectory()

	// No payable: 5000 gross, 200 commission, 3000 cash -> 1800 outstanding.
	resp := c.post("/v1/income", map[string]any{
		"site_id":      siteID,
		"client_id":    clientID,
		"truck_number": "KZ-774",
		"loading_date": "2025-06-10",
		"gross_amount": "5000.00",
		"commission":   "200.00",
		"amount_cash":  "3000.00",
	}, actorHeaders)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("post income: status %d", resp.StatusCode)
	}
	view := decodeBody(t, resp)
	rec, ok := view["receivable"].(map[string]any)
	if !ok {
		t.Fatalf("expected receivable in view, got %v", view["receivable"])
	}
	if !amountEquals(rec["total_amount"], "1800.00") {
		t.Fatalf("receivable total = %v", rec["total_amount"])
	}
	if rec["status"] != string(settlement.ReceivablePending) {
		t.Fatalf("receivable status = %v", rec["status"])
	}
	receivableID := idOf(t, rec)

	resp = c.post("/v1/payments", map[string]any{
		"client_id":      clientID,
		"site_id":        siteID,
		"payment_type":   string(settlement.PaymentReceivablePayment),
		"amount":         "1800.00",
		"payment_date":   "2025-06-15",
		"payment_method": "Bank Transfer",
		"receivable_id":  receivableID,
	}, actorHeaders)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("record payment: status %d", resp.StatusCode)
	}
	payment := decodeBody(t, resp)
	if payment["reference"] == "" || payment["reference"] == nil {
		t.Fatal("payment reference missing")
	}

	resp = c.get("/v1/receivables/" + itoa(receivableID))
	after := decodeBody(t, resp)
	if after["status"] != string(settlement.ReceivableFullyPaid) {
		t.Fatalf("receivable status after payment = %v", after["status"])
	}
}

func TestPaymentResourceIsReadOnly(t *testing.T) {
	c := newTestAPI(t)

	for _, method := range []string{http.MethodPut, http.MethodPatch, http.MethodDelete} {
		resp := c.do(method, "/v1/payments/1", nil, actorHeaders)
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("%s /v1/payments/1: expected 405, got %d", method, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestDeleteReferencedPayableReturnsConflict(t *testing.T) {
	c := newTestAPI(t)
	clientID, siteID := c.createDirectory()

	resp := c.post("/v1/payables", map[string]any{
		"client_id":    clientID,
		"site_id":      siteID,
		"date":         "2025-06-01",
		"total_amount": "1000.00",
	}, actorHeaders)
	payableID := idOf(t, decodeBody(t, resp))

	resp = c.post("/v1/payments", map[string]any{
		"client_id":    clientID,
		"site_id":      siteID,
		"payment_type": string(settlement.PaymentPayableDeduction),
		"amount":       "100.00",
		"payment_date": "2025-06-05",
		"payable_id":   payableID,
	}, actorHeaders)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("record payment: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodDelete, "/v1/payables/"+itoa(payableID), nil, actorHeaders)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on delete, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMutationRequiresActorHeader(t *testing.T) {
	c := newTestAPI(t)

	resp := c.post("/v1/clients", map[string]any{"name": "No Actor"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without actor header, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["error"] == "" || body["error"] == nil {
		t.Fatal("expected error message")
	}
}

func TestRecordPaymentRejectsMismatchedReference(t *testing.T) {
	c := newTestAPI(t)
	clientID, siteID := c.createDirectory()

	// Payable deduction without a payable reference.
	resp := c.post("/v1/payments", map[string]any{
		"client_id":    clientID,
		"site_id":      siteID,
		"payment_type": string(settlement.PaymentPayableDeduction),
		"amount":       "100.00",
		"payment_date": "2025-06-05",
	}, actorHeaders)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
