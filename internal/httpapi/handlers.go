// Package httpapi is the HTTP layer of the komir back office.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"komir.org/internal/directory"
	"komir.org/internal/income"
	"komir.org/internal/obs"
	"komir.org/internal/settlement"
)

// ReadyProbe pings the database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API wires the settlement, income and directory services to HTTP.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	settle settlement.Service
	income income.Service
	dir    directory.Service

	rateBurst  int
	ratePerSec float64
}

func New(rp ReadyProbe, version string, settle settlement.Service, inc income.Service, dir directory.Service) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		settle:     settle,
		income:     inc,
		dir:        dir,
		rateBurst:  100,
		ratePerSec: 50,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/payables", a.handlePayablesCollection)
	a.mux.HandleFunc("/v1/payables/", a.handlePayableResource)
	a.mux.HandleFunc("/v1/receivables", a.handleReceivablesCollection)
	a.mux.HandleFunc("/v1/receivables/", a.handleReceivableResource)
	a.mux.HandleFunc("/v1/payments", a.handlePaymentsCollection)
	a.mux.HandleFunc("/v1/payments/", a.handlePaymentResource)
	a.mux.HandleFunc("/v1/income", a.handleIncomeCollection)
	a.mux.HandleFunc("/v1/income/", a.handleIncomeResource)
	a.mux.HandleFunc("/v1/clients", a.handleClientsCollection)
	a.mux.HandleFunc("/v1/clients/", a.handleClientResource)
	a.mux.HandleFunc("/v1/sites", a.handleSitesCollection)
	a.mux.HandleFunc("/v1/sites/", a.handleSiteResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// SetRateLimit overrides the default per-IP limiter settings. Call before
// Handler.
func (a *API) SetRateLimit(burst int, perSec float64) {
	if burst > 0 {
		a.rateBurst = burst
	}
	if perSec > 0 {
		a.ratePerSec = perSec
	}
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = LoggingJSON(h)
	h = Actor(h)
	h = RequestID(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "komir-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "komir-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
