// Command smoke-settle walks the settlement flow end to end against a
// running API: directory setup, a payable drawdown through an income
// posting, a shortfall receivable, and the payment that closes it.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

var (
	baseURL = "http://localhost:8080"
	client  = &http.Client{Timeout: 10 * time.Second}
)

func main() {
	if addr := os.Getenv("KOMIR_API_URL"); addr != "" {
		baseURL = addr
	}

	clientID := postExpect201("/v1/clients", map[string]any{"name": "Smoke Trading"})["id"]
	siteID := postExpect201("/v1/sites", map[string]any{"name": "Smoke Pit"})["id"]

	payable := postExpect201("/v1/payables", map[string]any{
		"client_id":    clientID,
		"site_id":      siteID,
		"date":         time.Now().UTC().Format("2006-01-02"),
		"total_amount": "1000.00",
		"description":  "smoke prepayment",
	})
	if payable["status"] != "Active" {
		log.Fatalf("new payable status = %v", payable["status"])
	}

	// Drawdown: 400 from the payable, 200 cash, nothing outstanding.
	postExpect201("/v1/income", map[string]any{
		"site_id":             siteID,
		"client_id":           clientID,
		"truck_number":        "SMOKE-1",
		"loading_date":        time.Now().UTC().Format("2006-01-02"),
		"gross_amount":        "600.00",
		"amount_from_payable": "400.00",
		"amount_cash":         "200.00",
		"payable_id":          payable["id"],
	})

	after := getJSON(fmt.Sprintf("/v1/payables/%v", payable["id"]))
	mustAmount(after["remaining_balance"], "600.00", "payable remaining after drawdown")
	if after["status"] != "Partially Used" {
		log.Fatalf("payable status after drawdown = %v", after["status"])
	}

	// Shortfall: 5000 gross, 200 commission, 3000 cash -> 1800 receivable.
	view := postExpect201("/v1/income", map[string]any{
		"site_id":      siteID,
		"client_id":    clientID,
		"truck_number": "SMOKE-2",
		"loading_date": time.Now().UTC().Format("2006-01-02"),
		"gross_amount": "5000.00",
		"commission":   "200.00",
		"amount_cash":  "3000.00",
	})
	rec, ok := view["receivable"].(map[string]any)
	if !ok {
		log.Fatalf("expected shortfall receivable, got %v", view["receivable"])
	}
	mustAmount(rec["total_amount"], "1800.00", "shortfall receivable total")

	postExpect201("/v1/payments", map[string]any{
		"client_id":      clientID,
		"site_id":        siteID,
		"payment_type":   "Receivable Payment",
		"amount":         "1800.00",
		"payment_date":   time.Now().UTC().Format("2006-01-02"),
		"payment_method": "Bank Transfer",
		"receivable_id":  rec["id"],
	})

	closed := getJSON(fmt.Sprintf("/v1/receivables/%v", rec["id"]))
	if closed["status"] != "Fully Paid" {
		log.Fatalf("receivable status after payment = %v", closed["status"])
	}
	mustAmount(closed["remaining_balance"], "0.00", "receivable remaining after payment")

	fmt.Printf("✅ settlement smoke test passed: payable=%v receivable=%v\n", payable["id"], rec["id"])
}

func postExpect201(path string, body map[string]any) map[string]any {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal %s body: %v", path, err)
	}
	req, err := http.NewRequest(http.MethodPost, baseURL+path, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("new request %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "1")

	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		log.Fatalf("POST %s: status %d", path, resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatalf("decode %s response: %v", path, err)
	}
	return out
}

func getJSON(path string) map[string]any {
	resp, err := client.Get(baseURL + path)
	if err != nil {
		log.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatalf("decode %s response: %v", path, err)
	}
	return out
}

func mustAmount(v any, want, what string) {
	s, ok := v.(string)
	if !ok {
		log.Fatalf("%s: expected amount string, got %T (%v)", what, v, v)
	}
	got, err := decimal.NewFromString(s)
	if err != nil {
		log.Fatalf("%s: bad amount %q: %v", what, s, err)
	}
	if !got.Equal(decimal.RequireFromString(want)) {
		log.Fatalf("%s: got %s, want %s", what, got, want)
	}
}
