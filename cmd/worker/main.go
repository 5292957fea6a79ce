package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"campusattend/internal/app"
	"campusattend/internal/config"
)

// Worker reconciles absences, refreshes timetables and delivers
// notifications against the shared Postgres and Redis backends.
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

	if cfg.LedgerBackend != app.BackendPostgres {
		log.Fatalf("worker needs LEDGER_BACKEND=postgres, got %q", cfg.LedgerBackend)
	}
	if cfg.QueueBackend != app.BackendRedis {
		log.Printf("WARNING: QUEUE_BACKEND=%s, notifications published by the api will not reach this worker", cfg.QueueBackend)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("worker init failed: %v", err)
	}
	defer a.Close()

	d := a.Dispatcher()
	if err := d.Start(ctx); err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	var wg sync.WaitGroup
	for name, run := range map[string]func(context.Context) error{
		"reconciler":       a.Reconciler().Run,
		"schedule refresh": a.RunScheduleRefresh,
	} {
		wg.Add(1)
		go func(name string, run func(context.Context) error) {
			defer wg.Done()
			if err := run(ctx); err != nil {
				log.Printf("%s failed: %v", name, err)
				cancel()
			}
		}(name, run)
	}

	log.Println("worker started")
	<-ctx.Done()
	wg.Wait()
	d.Wait()
	log.Println("worker stopped")
}
