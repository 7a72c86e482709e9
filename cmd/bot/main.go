package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sellsignal/outreach-bot/internal/analyzer"
	"github.com/sellsignal/outreach-bot/internal/archive"
	"github.com/sellsignal/outreach-bot/internal/automation"
	"github.com/sellsignal/outreach-bot/internal/config"
	"github.com/sellsignal/outreach-bot/internal/listening"
	"github.com/sellsignal/outreach-bot/internal/matching"
	"github.com/sellsignal/outreach-bot/internal/notifications"
	"github.com/sellsignal/outreach-bot/internal/publish"
	"github.com/sellsignal/outreach-bot/internal/quota"
	"github.com/sellsignal/outreach-bot/internal/ratelimit"
	"github.com/sellsignal/outreach-bot/internal/rules"
	"github.com/sellsignal/outreach-bot/internal/scheduler"
	"github.com/sellsignal/outreach-bot/internal/sources"
	"github.com/sellsignal/outreach-bot/internal/store"
	"github.com/sellsignal/outreach-bot/internal/triggers"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting outreach bot")

	repo, err := store.Open(cfg.DataDir)
	if err != nil {
		logrus.Fatalf("Failed to open repository: %v", err)
	}
	defer repo.Close()

	var archiver archive.Archiver
	if cfg.StorageAccount != "" {
		archiver, err = archive.NewAzureArchive(cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize archive: %v", err)
		}
	}

	notificationService := notifications.NewService(cfg)

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Window:               time.Duration(cfg.RateWindowMS) * time.Millisecond,
		MaxRequestsPerWindow: cfg.MaxRequestsPerWindow,
		RequestDelay:         time.Duration(cfg.RequestDelayMS) * time.Millisecond,
		SpamThreshold:        cfg.SpamThreshold,
		SpamWindow:           time.Duration(cfg.SpamWindowMS) * time.Millisecond,
	})

	serviceLimiter := ratelimit.NewServiceLimiter(map[string]ratelimit.ServiceQuota{
		"twitter": {Budget: 450, Window: 15 * time.Minute},
		"reddit":  {Budget: 60, Window: time.Minute},
	})

	quotaManager := quota.NewManager(repo, notificationService, cfg.QuotaLimits)

	triggerMatcher := triggers.NewMatcher(repo)
	oracle := analyzer.NewHTTPOracle(cfg.OracleURL, cfg.OracleAPIKey, time.Duration(cfg.OracleTimeoutMS)*time.Millisecond)
	analyzerService := analyzer.NewService(oracle, triggerMatcher)
	productMatcher := matching.NewMatcher(repo)
	ruleEngine := rules.NewEngine(repo)

	controller := automation.NewController(cfg.Automation, limiter, quotaManager, ruleEngine)

	publisher := publish.NewHTTPPublisher(map[string]string{
		"twitter": "https://api.twitter.com/2/tweets",
		"reddit":  "https://oauth.reddit.com/api/comment",
	}, serviceLimiter)

	platformSources := []sources.Source{
		sources.NewTwitterSource(cfg.TwitterBearerToken),
		sources.NewRedditSource(cfg.RedditClientID, cfg.RedditClientSecret),
	}

	listeningService := listening.NewService(cfg, repo, platformSources, analyzerService,
		productMatcher, ruleEngine, controller, publisher, notificationService, archiver, quotaManager)
	defer listeningService.Close()

	schedulerService := scheduler.NewService(cfg, listeningService, limiter, quotaManager)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheckHandler).Methods("GET")
	router.HandleFunc("/metrics", metricsHandler(listeningService)).Methods("GET")
	router.HandleFunc("/trigger", triggerHandler(listeningService)).Methods("POST")
	router.HandleFunc("/pause", pauseHandler(controller)).Methods("POST")
	router.HandleFunc("/resume", resumeHandler(controller)).Methods("POST")
	router.HandleFunc("/mode", modeHandler(controller)).Methods("PUT")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

func metricsHandler(listeningService *listening.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(listeningService.GetMetrics()))
	}
}

func triggerHandler(listeningService *listening.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		go func() {
			if err := listeningService.RunCycle(); err != nil {
				logrus.Errorf("Manual cycle trigger failed: %v", err)
			}
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"Listening cycle triggered"}`))
	}
}

func pauseHandler(controller *automation.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		controller.Pause()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"paused":true}`))
	}
}

func resumeHandler(controller *automation.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		controller.Resume()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"paused":false}`))
	}
}

func modeHandler(controller *automation.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
			return
		}
		if err := controller.SetMode(body.Mode); err != nil {
			http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"mode":%q}`, body.Mode)
	}
}
