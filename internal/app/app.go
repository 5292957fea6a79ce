// Package app wires configuration into the running components shared by
// the api and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"campusattend/internal/api"
	"campusattend/internal/attendance"
	"campusattend/internal/auth"
	"campusattend/internal/config"
	"campusattend/internal/credential"
	"campusattend/internal/keylock"
	"campusattend/internal/notify"
	"campusattend/internal/policy"
	"campusattend/internal/queue"
	"campusattend/internal/reconcile"
	"campusattend/internal/roster"
	"campusattend/internal/schedule"
	"campusattend/internal/seed"
	"campusattend/internal/store"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// App holds the wired components.
type App struct {
	Config   config.App
	Policy   policy.Policy
	Schedule *schedule.Provider
	Roster   attendance.Roster
	Ledger   attendance.Ledger
	Locker   keylock.Locker
	Queue    queue.Queue
	Notifier *notify.QueueNotifier
	Service  *attendance.Service
	DB       *store.DB
	Redis    *store.Redis
}

// New builds every component for cfg and loads the schedule once.
func New(ctx context.Context, cfg config.App) (*App, error) {
	p, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	key, err := cfg.BiometricKey()
	if err != nil {
		return nil, err
	}
	var cipher *credential.TemplateCipher
	if key != nil {
		if cipher, err = credential.NewTemplateCipher(key); err != nil {
			return nil, err
		}
	}

	a := &App{Config: cfg, Policy: p}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if cfg.QueueBackend == BackendRedis || cfg.LockBackend == BackendRedis {
		a.Redis = store.NewRedis(cfg.RedisAddr)
	}

	var (
		source schedule.Source
		creds  credential.Store
	)
	switch cfg.LedgerBackend {
	case BackendMemory:
		mem := roster.NewMemory()
		source = schedule.StaticSource{}
		f, err := loadSeed(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		if f != nil {
			if err := f.Apply(mem, cipher); err != nil {
				return nil, err
			}
			source = f
			log.Printf("seeded %d timetables and %d students from %s", len(f.TimetableList), len(f.Students), cfg.SeedFile)
		}
		a.Roster, creds = mem, mem
		a.Ledger = attendance.NewMemoryLedger(p)

	case BackendPostgres:
		db, err := store.NewDB(ctx, cfg.DatabaseURL, cfg.StoreTimeout)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.DB = db
		if err := store.Migrate(ctx, db.Client); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		students := roster.NewRepository(db.Client)
		timetables := schedule.NewRepository(db.Client)
		f, err := loadSeed(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		if f != nil {
			if err := f.Sync(ctx, students, timetables, cipher); err != nil {
				return nil, err
			}
			log.Printf("synced seed file %s into postgres", cfg.SeedFile)
		}
		a.Roster, creds, source = students, students, timetables
		a.Ledger = attendance.NewPostgresLedger(db.Client, p)

	default:
		return nil, fmt.Errorf("unknown LEDGER_BACKEND %q", cfg.LedgerBackend)
	}

	switch cfg.LockBackend {
	case BackendRedis:
		a.Locker = keylock.NewRedis(a.Redis.Client, "campusattend:lock:", 2*cfg.StoreTimeout)
	default:
		a.Locker = keylock.NewInProcess()
	}

	switch cfg.QueueBackend {
	case BackendRedis:
		a.Queue = queue.NewRedisQueue(a.Redis.Client, queue.DefaultKey)
	default:
		a.Queue = queue.NewInMemory(256)
	}
	a.Notifier = notify.NewQueueNotifier(a.Queue, cfg.StoreTimeout)

	a.Schedule = schedule.NewProvider(source, p)
	if err := a.Schedule.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	a.Service = attendance.NewService(attendance.Deps{
		Roster:   a.Roster,
		Verifier: credential.NewValidator(creds, cipher),
		Schedule: a.Schedule,
		Ledger:   a.Ledger,
		Locker:   a.Locker,
		Notifier: a.Notifier,
	}, p, cfg.StoreTimeout)

	ok = true
	return a, nil
}

func loadSeed(path string) (*seed.File, error) {
	if path == "" {
		return nil, nil
	}
	f, err := seed.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("seed file %s not found, starting empty", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return f, nil
}

// Router builds the HTTP handler.
func (a *App) Router() *gin.Engine {
	checks := map[string]api.HealthCheck{}
	if a.DB != nil {
		checks["db"] = a.DB.Healthy
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Healthy
	}
	return api.NewRouter(a.Service, api.Options{
		Issuer:              auth.NewIssuer(a.Config.JWTIssuer, a.Config.JWTSigningKey, a.Config.AccessTTL, a.Config.RefreshTTL),
		RequireTerminalAuth: a.Config.RequireTerminalAuth,
		ProvisioningKey:     a.Config.TerminalProvisioningKey,
		RateLimitPerSec:     a.Config.RateLimitPerSec,
		RateBurst:           a.Config.RateBurst,
		CacheTTL:            a.Config.CacheTTL,
		CORSOrigins:         a.Config.CORSOrigins,
		Checks:              checks,
	})
}

// Reconciler builds the absence reconciler.
func (a *App) Reconciler() *reconcile.Reconciler {
	return reconcile.New(reconcile.Deps{
		Schedule: a.Schedule,
		Roster:   a.Roster,
		Ledger:   a.Ledger,
		Locker:   a.Locker,
		Notifier: a.Notifier,
	}, a.Policy, a.Config.ReconcileSchedule, a.Config.StoreTimeout).WithLookback(a.Config.ReconcileLookbackDays)
}

// Dispatcher builds the notification worker pool.
func (a *App) Dispatcher() *notify.Dispatcher {
	var sender notify.Sender = notify.LogSender{}
	if a.Config.NotifyWebhookURL != "" {
		sender = notify.NewWebhookSender(a.Config.NotifyWebhookURL, 5*time.Second)
	}
	return notify.NewDispatcher(a.Config.NotifyWorkers, a.Queue, sender, 5*time.Second)
}

// RunScheduleRefresh reloads timetables on the SCHEDULE_REFRESH cron until
// ctx is done. A failed reload keeps serving the previous index.
func (a *App) RunScheduleRefresh(ctx context.Context) error {
	c := cron.New(cron.WithLocation(a.Policy.Loc()), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(a.Config.ScheduleRefresh, func() {
		rctx, cancel := context.WithTimeout(ctx, a.Config.StoreTimeout)
		defer cancel()
		if err := a.Schedule.Refresh(rctx); err != nil {
			log.Printf("schedule refresh failed, keeping previous timetable: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule refresh spec %q: %w", a.Config.ScheduleRefresh, err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Close releases connections and waits for pending notifications.
func (a *App) Close() {
	if a.Notifier != nil {
		a.Notifier.Wait()
	}
	if err := a.DB.Close(); err != nil {
		log.Printf("close db: %v", err)
	}
	if err := a.Redis.Close(); err != nil {
		log.Printf("close redis: %v", err)
	}
}
