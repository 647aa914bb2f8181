package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"

	"example.com/leadimport/internal/collab"
	"example.com/leadimport/internal/config"
	"example.com/leadimport/internal/database"
	"example.com/leadimport/internal/events"
	"example.com/leadimport/internal/handlers"
	"example.com/leadimport/internal/importjob"
	"example.com/leadimport/internal/scheduler"
)

func main() {
	log.Println("Starting Lead Import Service...")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Configuration:")
	log.Printf("  PORT: %s", cfg.Port)
	log.Printf("  VALIDATION_SERVICE_URL: %s", cfg.ValidationServiceURL)
	log.Printf("  ENRICHMENT_SERVICE_URL: %s", cfg.EnrichmentServiceURL)
	log.Printf("  MATCH_THRESHOLD: %.2f, SUGGEST_THRESHOLD: %.2f", cfg.MatchThreshold, cfg.SuggestThreshold)
	log.Printf("  IMPORT_BATCH_SIZE: %d", cfg.BatchSize)

	manager := importjob.NewManager(importjob.Config{
		Validator: collab.NewHTTPValidator(cfg.ValidationServiceURL, cfg.CollaboratorTimeout),
		Enricher:  collab.NewHTTPEnricher(cfg.EnrichmentServiceURL, cfg.CollaboratorTimeout),
		BatchSize: cfg.BatchSize,
	}, cfg.Detector())

	// --- Job events ---
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		conn, js, err := events.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		nc = conn
		publisher := events.NewPublisher(js)
		if err := publisher.EnsureStream(); err != nil {
			log.Fatalf("Failed to set up JetStream stream: %v", err)
		}
		manager.AddObserver(publisher)
	} else {
		log.Println("NATS_URL not set, job events will not be published.")
	}

	// --- Archive ---
	var archive handlers.JobArchive
	if cfg.Database.Driver != "" {
		db, err := database.Connect(cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to archive database: %v", err)
		}
		a := database.NewArchive(db, manager.Leads())
		manager.AddObserver(a)
		archive = a
	} else {
		log.Println("DB_DRIVER not set, finished jobs will not be archived.")
	}

	// --- Scheduled imports ---
	var schedules *scheduler.Service
	if cfg.SchedulesFile != "" {
		list, err := scheduler.LoadFile(cfg.SchedulesFile)
		if err != nil {
			log.Fatalf("Failed to load schedules: %v", err)
		}
		schedules = scheduler.NewService(manager, nil)
		if err := schedules.Register(list); err != nil {
			log.Fatalf("Failed to register schedules: %v", err)
		}
		schedules.Start()
	}

	router := gin.Default()
	handlers.NewAPI(manager, archive).RegisterRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Lead Import Service listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// --- Graceful Shutdown Handling ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Lead Import Service is shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if schedules != nil {
		select {
		case <-schedules.Stop().Done():
		case <-ctx.Done():
			log.Println("Timed out waiting for scheduled imports to stop.")
		}
	}
	if err := manager.Shutdown(ctx); err != nil {
		log.Printf("Import jobs did not stop cleanly: %v", err)
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			log.Printf("NATS drain error: %v", err)
		}
	}

	log.Println("Lead Import Service stopped gracefully.")
}
