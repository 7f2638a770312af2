package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/yousifm93/income-engine/internal/config"
	"github.com/yousifm93/income-engine/internal/dispatch"
	"github.com/yousifm93/income-engine/internal/handler"
	"github.com/yousifm93/income-engine/internal/integrations/docai"
	"github.com/yousifm93/income-engine/internal/repository"
	"github.com/yousifm93/income-engine/internal/service"
	"github.com/yousifm93/income-engine/internal/utils/email"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	reqs, err := config.LoadRequirements(cfg.RequirementsFile)
	if err != nil {
		logger.Fatalf("Failed to load document requirements: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	docRepo := repository.NewDocumentRepository(db)
	calcRepo := repository.NewCalculationRepository(db)

	var notifier service.Notifier
	if cfg.NotificationsEnabled() {
		notifier = email.NewSender(cfg, logger)
	}

	svc := service.NewService(docRepo, calcRepo, reqs, notifier, logger)
	h := handler.NewHandler(svc, logger)

	// Extraction dispatcher (skipped when no extraction backend is configured;
	// documents then stay pending until one is)
	extractor, err := docai.NewExtractor(cfg, logger)
	if err != nil {
		logger.Warnf("Field extraction disabled: %v", err)
	} else {
		dispatcher := dispatch.NewDispatcher(docRepo, extractor, cfg.DocumentDir, logger)
		if err := dispatcher.Start(cfg.DispatchSpec); err != nil {
			logger.Fatalf("Failed to start extraction dispatcher: %v", err)
		}
		defer dispatcher.Stop()
	}

	// Setup router
	r := mux.NewRouter()
	h.Routes(r)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"healthy","service":"income-engine"}`)
	}).Methods("GET")

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
