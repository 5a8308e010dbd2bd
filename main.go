package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"lg/nutrition-ledger-go-api/internal/config"
	"lg/nutrition-ledger-go-api/internal/dayclose"
	"lg/nutrition-ledger-go-api/internal/metrics"
	"lg/nutrition-ledger-go-api/internal/store"
)

func main() {
	log.SetPrefix("lg/nutrition-ledger-go-api: ")
	log.SetFlags(0)

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := store.OpenPool(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()
	fmt.Println("DB pool ready!")

	backupSvc, err := cfg.OpenBackup(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to open %s sync backend: %v\n", cfg.SyncBackend, err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	pg := store.NewPostgres(pool)
	h := &Handler{
		store:       pg,
		foods:       pg,
		backup:      backupSvc,
		metrics:     collector,
		clock:       clock.WallClock,
		targetMode:  cfg.TargetMode,
		syncTimeout: cfg.SyncTimeout,
	}
	h.closer = dayclose.New(dayclose.Config{
		Ledgers:     pg,
		Backup:      backupSvc,
		Metrics:     collector,
		Clock:       clock.WallClock,
		SyncTimeout: cfg.SyncTimeout,
	})

	fmt.Printf("Starting gin app on %s (sync: %s)...\n", cfg.ServerAddr, cfg.SyncBackend)

	router := gin.Default()
	router.SetTrustedProxies(nil)
	h.registerRoutes(router, reg)

	if err := router.Run(cfg.ServerAddr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
