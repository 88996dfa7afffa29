package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campustap/internal/config"
	"campustap/internal/directory"
	"campustap/internal/httpapi"
	"campustap/internal/httpmiddleware"
	"campustap/internal/queue"
	"campustap/internal/reminder"
	"campustap/internal/scan"
	"campustap/internal/session"
	"campustap/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	strategy, err := session.ParseStrategy(cfg.SessionStrategy)
	if err != nil {
		return err
	}

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	var debounce scan.Debouncer
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
		debounce = scan.NewMemoryDebouncer(cfg.DebounceWindow)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "campustap:backfill")
		debounce = scan.NewRedisDebouncer(redisClient.Client, cfg.DebounceWindow)
	}

	dirRepo := directory.NewRepository(db.Client)
	sessRepo := session.NewRepository(db.Client)
	ledger := scan.NewLedgerRepository(db.Client)

	scans := scan.NewService(
		directory.NewResolver(dirRepo),
		session.NewResolver(sessRepo, strategy),
		ledger,
		debounce,
	)
	reminders := reminder.NewService(reminder.NewRepository(db.Client), cfg.ReminderLead)

	h := httpapi.New(cfg, scans, sessRepo, ledger, dirRepo, reminders, q)
	r := httpapi.NewRouter(h, httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s (session strategy: %s)", cfg.HTTPPort, strategy)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}
