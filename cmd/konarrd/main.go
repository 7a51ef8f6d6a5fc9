// Command konarrd is the konarr-core daemon: it loads configuration,
// migrates and opens the system-of-record database, wires every store and
// pipeline component, and runs the background task orchestrator until
// told to stop. Grounded on apps/worker/cmd/worker/main.go's shape (load
// config, build dependencies, start background loop, wait for a signal).
// No HTTP API is started here — request/response transport is out of
// scope per spec §1; the only endpoint this process exposes is the
// Prometheus /metrics page.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/42ByteLabs/konarr-core/internal/advisorydb"
	"github.com/42ByteLabs/konarr-core/internal/alerts"
	"github.com/42ByteLabs/konarr-core/internal/blobstore"
	konarrcache "github.com/42ByteLabs/konarr-core/internal/cache"
	"github.com/42ByteLabs/konarr-core/internal/catalogue"
	"github.com/42ByteLabs/konarr-core/internal/config"
	"github.com/42ByteLabs/konarr-core/internal/matcher"
	"github.com/42ByteLabs/konarr-core/internal/metrics"
	"github.com/42ByteLabs/konarr-core/internal/observability"
	"github.com/42ByteLabs/konarr-core/internal/ports"
	"github.com/42ByteLabs/konarr-core/internal/stats"
	"github.com/42ByteLabs/konarr-core/internal/store/advisories"
	alertstore "github.com/42ByteLabs/konarr-core/internal/store/alerts"
	"github.com/42ByteLabs/konarr-core/internal/store/components"
	storedb "github.com/42ByteLabs/konarr-core/internal/store/db"
	"github.com/42ByteLabs/konarr-core/internal/store/migrate"
	"github.com/42ByteLabs/konarr-core/internal/store/projects"
	"github.com/42ByteLabs/konarr-core/internal/store/settings"
	"github.com/42ByteLabs/konarr-core/internal/store/snapshots"
	syncpkg "github.com/42ByteLabs/konarr-core/internal/sync"
	"github.com/42ByteLabs/konarr-core/internal/tasks"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("konarrd\nVersion: %s\nBuild Time: %s\nGit Commit: %s\n", version, buildTime, gitCommit)
		os.Exit(0)
	}

	logger := observability.NewStandardLogger("konarrd")
	logger.Info("starting konarrd", map[string]interface{}{
		"version": version, "build_time": buildTime, "git_commit": gitCommit,
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("konarrd exited with error: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger observability.Logger) error {
	shutdown, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "konarr-core",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	database, err := storedb.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = database.Close() }()

	if database.Driver == "postgres" {
		manager := migrate.New(database.DB.DB, migrate.Config{Timeout: time.Minute})
		if err := manager.Up(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations applied", nil)
	} else {
		logger.Info("skipping golang-migrate run for sqlite-backed agent database", nil)
	}

	settingsStore := settings.New(database.DB)
	if err := settingsStore.Seed(ctx); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	if err := settingsStore.PruneDeleted(ctx); err != nil {
		return fmt.Errorf("prune deleted settings: %w", err)
	}

	mx := metrics.New()

	cat, err := buildCatalogue(ctx, cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("build catalogue: %w", err)
	}

	projectsStore := projects.New(database.DB)
	snapshotsStore := snapshots.New(database.DB)
	componentsStore := components.New(database.DB, cat)
	advisoriesStore := advisories.New(database.DB)
	alertsStore := alertstore.New(database.DB)

	calculator := alerts.New(projectsStore, snapshotsStore, alertsStore, settingsStore, logger)
	rollup := stats.New(projectsStore, componentsStore, alertsStore, advisoriesStore, settingsStore, logger)

	// internal/ingest is a library component the (out-of-scope, per spec §1)
	// transport layer calls into per request; this daemon only owns the
	// background task orchestrator below. The legacy blob store is validated
	// at startup so a misconfigured backend fails fast rather than only
	// surfacing once the migration path in spec §9 is actually exercised.
	if _, err := buildBlobStore(ctx, cfg.Blob); err != nil {
		return fmt.Errorf("build blob store: %w", err)
	}

	advisoryDBDir := cfg.Server.DataDir + "/grypedb"
	syncer := syncpkg.New(http.DefaultClient, advisoryDBDir, settingsStore, logger)

	matcherDB, err := advisorydb.Open(advisoryDBDir)
	if err != nil {
		logger.Info("no local advisory database yet, installing before starting", map[string]interface{}{
			"error": err.Error(),
		})
		if _, syncErr := syncer.Sync(ctx); syncErr != nil {
			return fmt.Errorf("initial advisory database sync: %w", syncErr)
		}
		matcherDB, err = advisorydb.Open(advisoryDBDir)
		if err != nil {
			return fmt.Errorf("open advisory database after initial sync: %w", err)
		}
	}
	defer func() { _ = matcherDB.Close() }()

	matcherEngine := matcher.New(matcherDB, advisoriesStore, alertsStore, logger)
	matcherEngine.WithMetrics(mx)

	rescanTask := tasks.NewRescanTask(settingsStore, projectsStore, snapshotsStore, matcherEngine, logger)

	orchestrator := tasks.New(syncer, rescanTask, calculator, rollup, cfg.Tasks.Period, logger)
	orchestrator.WithMetrics(mx)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg.Metrics.Address, logger)
	}

	orchestratorDone := make(chan struct{})
	go func() {
		defer close(orchestratorDone)
		orchestrator.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("received shutdown signal", nil)

	orchestrator.Stop()
	<-orchestratorDone

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown", map[string]interface{}{"error": err.Error()})
		}
	}

	logger.Info("konarrd stopped gracefully", nil)
	return nil
}

// buildCatalogue attaches a shared Redis-backed CatalogueCache when
// cfg.Address is set; otherwise the Catalogue runs with its local LRU only.
func buildCatalogue(ctx context.Context, cfg config.CacheConfig, logger observability.Logger) (*catalogue.Catalogue, error) {
	cat := catalogue.New()
	if cfg.Address == "" {
		return cat, nil
	}

	redisCache, err := konarrcache.NewRedisCache(konarrcache.RedisConfig{
		Address:      cfg.Address,
		Password:     cfg.Password,
		Database:     cfg.Database,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		PoolTimeout:  cfg.PoolTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect shared cache: %w", err)
	}

	remote, err := konarrcache.NewCatalogueCache(redisCache, konarrcache.CatalogueCacheConfig{
		L1MaxSize:  cfg.L1MaxSize,
		DefaultTTL: cfg.DefaultTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("build catalogue cache: %w", err)
	}
	logger.Info("catalogue cache attached to shared redis", map[string]interface{}{"address": cfg.Address})
	return cat.WithRemoteCache(remote), nil
}

// buildBlobStore selects the legacy on-disk SBOM migration backend per spec
// §9. "s3" requires S3Bucket; anything else falls back to the local
// filesystem store rooted at LocalDir.
func buildBlobStore(ctx context.Context, cfg config.BlobConfig) (ports.BlobStore, error) {
	if cfg.Backend == "s3" {
		return blobstore.NewS3Store(ctx, blobstore.S3Config{
			Region:           cfg.S3Region,
			Bucket:           cfg.S3Bucket,
			Endpoint:         cfg.S3Endpoint,
			ForcePathStyle:   cfg.S3ForcePathStyle,
			UploadPartSize:   cfg.S3UploadPartSize,
			DownloadPartSize: cfg.S3DownloadPartSize,
			Concurrency:      cfg.S3Concurrency,
			RequestTimeout:   cfg.S3RequestTimeout,
		})
	}
	return blobstore.NewLocalStore(cfg.LocalDir)
}

func startMetricsServer(address string, logger observability.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: address, Handler: mux}

	go func() {
		logger.Info("starting metrics server", map[string]interface{}{"address": address})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", map[string]interface{}{"error": err.Error()})
		}
	}()
	return srv
}
