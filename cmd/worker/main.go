package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campustap/internal/config"
	"campustap/internal/directory"
	"campustap/internal/metrics"
	"campustap/internal/queue"
	"campustap/internal/reminder"
	"campustap/internal/scan"
	"campustap/internal/session"
	"campustap/internal/store"
)

// Worker consumes backfill messages and, when enabled, periodically fans
// out class-start reminders.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "campustap:backfill")
	}

	strategy, err := session.ParseStrategy(cfg.SessionStrategy)
	if err != nil {
		log.Fatalf("bad session strategy: %v", err)
	}
	ledger := scan.NewLedgerRepository(db.Client)
	scans := scan.NewService(
		directory.NewResolver(directory.NewRepository(db.Client)),
		session.NewResolver(session.NewRepository(db.Client), strategy),
		ledger,
		scan.NewMemoryDebouncer(cfg.DebounceWindow),
	)

	if cfg.ReminderInterval > 0 {
		reminders := reminder.NewService(reminder.NewRepository(db.Client), cfg.ReminderLead)
		go func() {
			ticker := time.NewTicker(cfg.ReminderInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					stats, err := reminders.Dispatch(ctx)
					if err != nil {
						log.Printf("reminder dispatch failed: %v", err)
						continue
					}
					if stats.NotificationsSent > 0 {
						log.Printf("sent %d reminders for %d sessions", stats.NotificationsSent, stats.SessionsProcessed)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "backfill" {
			continue
		}

		code := string(msg.Body)
		n, err := scans.Backfill(ctx, code)
		if err != nil {
			log.Printf("backfill for %s failed: %v", code, err)
			continue
		}
		if n > 0 {
			metrics.BackfilledRecords.Add(float64(n))
			log.Printf("backfilled %d record(s) for %s", n, code)
		}
	}

	log.Println("worker stopped")
}
