package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"komir.org/internal/config"
	"komir.org/internal/directory"
	"komir.org/internal/httpapi"
	"komir.org/internal/income"
	"komir.org/internal/obs"
	"komir.org/internal/settlement"
	"komir.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	cfg := config.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		settleSvc settlement.Service
		incomeSvc income.Service
		dirSvc    directory.Service
		probe     httpapi.ReadyProbe
		store     *pg.Store
	)
	if cfg.PostgresDSN != "" {
		var err error
		store, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		settleSvc = store
		incomeSvc = store
		dirSvc = store
		probe = httpapi.ReadyProbe{DB: store.DB()}
	} else {
		// No DSN: volatile in-memory backend, handy for local runs.
		ledger := settlement.NewInMemory()
		dir := directory.NewInMemory()
		settleSvc = ledger
		incomeSvc = income.NewInMemory(ledger, dir)
		dirSvc = dir
	}

	api := httpapi.New(probe, version, settleSvc, incomeSvc, dirSvc)
	api.SetRateLimit(cfg.RateLimitBurst, cfg.RateLimitPerSec)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting komir-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}
