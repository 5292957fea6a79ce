package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"campusattend/internal/app"
	"campusattend/internal/config"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var wg sync.WaitGroup
	background := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				log.Printf("%s stopped: %v", name, err)
			}
		}()
	}

	background("schedule refresh", a.RunScheduleRefresh)

	// memory state lives in this process, so the worker duties run here too
	if cfg.LedgerBackend == app.BackendMemory {
		background("reconciler", a.Reconciler().Run)
	}
	if cfg.QueueBackend == app.BackendMemory {
		d := a.Dispatcher()
		if err := d.Start(ctx); err != nil {
			return err
		}
		defer d.Wait()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      a.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s (ledger=%s queue=%s lock=%s)", cfg.HTTPPort, cfg.LedgerBackend, cfg.QueueBackend, cfg.LockBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server error: %v", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	cancel()
	wg.Wait()
	log.Println("Server exited")
	return nil
}
