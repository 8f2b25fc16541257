package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/shivanishrees/malscan/internal/application"
	appanalysis "github.com/shivanishrees/malscan/internal/application/analysis"
	"github.com/shivanishrees/malscan/internal/config"
	domain "github.com/shivanishrees/malscan/internal/domain/analysis"
	"github.com/shivanishrees/malscan/internal/infra/db/mysql"
	"github.com/shivanishrees/malscan/internal/infra/db/postgres"
	"github.com/shivanishrees/malscan/internal/infra/db/sqlite"
	"github.com/shivanishrees/malscan/internal/infra/httpserver"
	"github.com/shivanishrees/malscan/internal/infra/modules/aianalyst"
	"github.com/shivanishrees/malscan/internal/infra/modules/reputation"
	"github.com/shivanishrees/malscan/internal/infra/modules/sandbox"
	"github.com/shivanishrees/malscan/internal/infra/modules/static"
	"github.com/shivanishrees/malscan/internal/infra/quarantine"
	"github.com/shivanishrees/malscan/internal/infra/reconstruct"
	"github.com/shivanishrees/malscan/internal/infra/registry"
	minioStore "github.com/shivanishrees/malscan/internal/infra/storage"
	"github.com/shivanishrees/malscan/internal/infra/storage/records"
	"github.com/shivanishrees/malscan/internal/middleware"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	warnings, err := cfg.Scoring.Validate()
	if err != nil {
		log.Fatalf("scoring config invalid: %v", err)
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// record store
	repo, db, err := buildRepository(ctx, cfg, log)
	if err != nil {
		log.Fatalf("storage init error: %v", err)
	}
	if db != nil {
		defer db.Close()
	}

	// optional artifact mirror
	var artifacts domain.ArtifactStore
	if cfg.Minio.Endpoint != "" {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		artifacts = store
	}

	if err := os.MkdirAll(cfg.Storage.UploadDir, 0o750); err != nil {
		log.Fatalf("upload dir error: %v", err)
	}
	qstore, err := quarantine.NewStore(cfg.Storage.QuarantineDir, artifacts, log)
	if err != nil {
		log.Fatalf("quarantine init error: %v", err)
	}
	rebuilder, err := reconstruct.NewRebuilder(cfg.Storage.ReconstructedDir, log)
	if err != nil {
		log.Fatalf("reconstruction init error: %v", err)
	}

	// module directory, wired once at startup
	reg := registry.New()
	mustRegister(log, reg, static.New())
	mustRegister(log, reg, sandbox.New())

	repEntries := map[string]reputation.Entry{}
	if cfg.ReputationSeed != "" {
		repEntries, err = reputation.LoadSeedFile(cfg.ReputationSeed)
		if err != nil {
			log.Fatalf("reputation seed error: %v", err)
		}
	}
	mustRegister(log, reg, reputation.New(repEntries))

	if cfg.AI.APIKey != "" {
		mustRegister(log, reg, aianalyst.New(cfg.AI.APIKey, cfg.AI.Model))
		if _, ok := cfg.Scoring.Modules["ai_analyst"]; !ok {
			log.Warn("ai_analyst registered but has no scoring weight configured; it will not influence verdicts")
		}
	}
	log.WithField("modules", reg.Names()).Info("analysis modules registered")

	svc := &appanalysis.Service{
		Repo:     repo,
		Registry: reg,
		Scoring:  cfg.Scoring,
		Clock:    application.SystemClock{},
		Log:      log,
	}

	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	mux.Use(middleware.Logging(log))
	mux.Use(middleware.MetricsMiddleware)
	if len(cfg.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(cfg.APIKeys))
	}
	mux.Use(middleware.RateLimit(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate))

	checkers := map[string]middleware.HealthChecker{}
	if db != nil {
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	}
	mux.Get("/health", middleware.HealthHandler(checkers))
	mux.Get("/metrics", middleware.MetricsHandler)
	mux.Mount("/", httpserver.NewRouter(svc, qstore, rebuilder, cfg.Storage.UploadDir, cfg.AllowedTypes, log))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown error: %v", err)
	}
}

// buildRepository wires the configured record store. SQL drivers sit behind
// the ristretto-cached store with a TTL eviction janitor; "memory" skips
// SQL entirely.
func buildRepository(ctx context.Context, cfg *config.Config, log *logrus.Logger) (domain.Repository, *sql.DB, error) {
	ttl := cfg.RecordTTL()

	var (
		db   *sql.DB
		repo records.SQLRepository
		err  error
	)
	switch cfg.Storage.Driver {
	case "", "memory":
		store := records.NewMemoryStore(ttl)
		startMemoryJanitor(ctx, store, cfg.EvictionInterval(), log)
		return store, nil, nil
	case "sqlite":
		if p := cfg.Storage.SQLitePath; p != "" {
			os.MkdirAll(filepath.Dir(p), 0o750)
		}
		db, err = sqlite.Connect(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		repo = sqlite.NewRecordRepository(db)
	case "mysql":
		db, err = mysql.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, err
		}
		repo = mysql.NewRecordRepository(db)
	case "postgres":
		db, err = postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		repo = postgres.NewRecordRepository(db)
	default:
		return nil, nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}

	store, err := records.NewStore(repo, ttl, log)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	store.StartJanitor(ctx, cfg.EvictionInterval())
	return store, db, nil
}

func startMemoryJanitor(ctx context.Context, store *records.MemoryStore, interval time.Duration, log *logrus.Logger) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := store.DeleteExpired(ctx); err == nil && n > 0 {
					log.WithField("evicted", n).Debug("expired analysis records removed")
				}
			}
		}
	}()
}

func mustRegister(log *logrus.Logger, reg *registry.Registry, m domain.Module) {
	if err := reg.Register(m); err != nil {
		log.Fatalf("module registration error: %v", err)
	}
}

