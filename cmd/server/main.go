package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shiva/geomatch/config"
	"github.com/shiva/geomatch/internal/geocode"
	"github.com/shiva/geomatch/internal/handler"
	"github.com/shiva/geomatch/internal/ledger"
	"github.com/shiva/geomatch/internal/matcher"
	"github.com/shiva/geomatch/internal/middleware"
	"github.com/shiva/geomatch/internal/override"
	"github.com/shiva/geomatch/internal/repository"
	"github.com/shiva/geomatch/internal/scheduler"
	"github.com/shiva/geomatch/internal/simulation"
	"github.com/shiva/geomatch/internal/sync"
	"github.com/shiva/geomatch/internal/travel"
	"github.com/shiva/geomatch/pkg/cache"
	"github.com/shiva/geomatch/pkg/db"
)

func main() {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.InitLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	// ── Connect to PostgreSQL ───────────────────────────
	pgPool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("PostgreSQL connected")

	// ── Connect to Redis ────────────────────────────────
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	// ── Startup validation (§6.4): the scheduling_meta singleton must
	// name this deployment, or we refuse to serve traffic against the
	// wrong database.
	metaRepo := repository.NewMetaRepository(pgPool)
	meta, err := metaRepo.Get(ctx)
	if err != nil {
		logger.Fatal("failed to read scheduling_meta; has the schema been migrated?", zap.Error(err))
	}
	if meta.ProjectName != cfg.Postgres.ProjectName {
		logger.Fatal("scheduling_meta.project_name mismatch, refusing to start",
			zap.String("expected", cfg.Postgres.ProjectName), zap.String("found", meta.ProjectName))
	}

	// ── Repositories ─────────────────────────────────────
	clientRepo := repository.NewClientRepository(pgPool)
	techRepo := repository.NewTechnicianRepository(pgPool)
	overrideRepo := repository.NewOverrideRepository(pgPool)
	simRepo := repository.NewSimulationRepository(pgPool)
	matchRunRepo := repository.NewMatchRunRepository(pgPool)
	syncRunRepo := repository.NewSyncRunRepository(pgPool)
	travelRepo := repository.NewTravelTimeRepository(pgPool)

	// ── Geocoder (C2) ────────────────────────────────────
	var geoProvider geocode.Provider = geocode.NewGoogleProvider(cfg.Geocode.GoogleAPIKey, &http.Client{Timeout: 10 * time.Second})
	geocoder := geocode.New(geocode.Config{
		Provider:         geoProvider,
		Pool:             pgPool,
		MinSpacing:       cfg.Geocode.MinRequestSpacing,
		MaxRetries:       cfg.Geocode.MaxRetries,
		BreakerThreshold: cfg.Geocode.BreakerThreshold,
		CacheTTLDays:     cfg.Geocode.CacheTTLDays,
		Logger:           logger.Named("geocode"),
	})

	// ── Travel-Time Cache (C3) ───────────────────────────
	// A real routing provider (Google Distance Matrix or similar) slots
	// in here once dedicated credentials exist for it; until then, the
	// Haversine fallback estimator (§4.2) is always available and the
	// matcher flags every auto-matched assignment it produces via
	// Explain.Flags=["haversine_fallback"].
	travelProvider := travel.NewHaversineProvider()
	travelCache := travel.New(redisClient, travelRepo, travelProvider, travel.Config{
		BucketName:       cfg.Travel.PeakBucketName,
		SampleTimes:      cfg.Travel.SampleTimeList(),
		LegacyBuckets:    cfg.Travel.LegacyBucketList(),
		TTL:              time.Duration(cfg.Travel.TTLDays) * 24 * time.Hour,
		ConcurrencyLimit: cfg.Travel.ConcurrencyLimit,
	}, logger.Named("travel"))

	// ── Override Store (C4) ──────────────────────────────
	overrideStore := override.New(overrideRepo, override.LastWriteWins, logger.Named("override"))

	// ── Matcher (C5) ─────────────────────────────────────
	matchSvc := matcher.New(clientRepo, techRepo, overrideStore, geocoder, travelCache, matcher.Config{
		MaxTravelMinutes: cfg.Match.MaxTravelMinutes,
	}, logger.Named("matcher"))

	// ── Match Run Ledger (C9) + Runner ───────────────────
	matchLedger := ledger.New(matchRunRepo)
	runner := ledger.NewRunner(clientRepo, techRepo, matchSvc, matchLedger, metaRepo, logger.Named("runner"))

	// ── Simulation / Approval State Machine (C7) ─────────
	simSvc := simulation.New(clientRepo, techRepo, simRepo, geocoder, logger.Named("simulation"))

	// ── CRM Sync (C8) ─────────────────────────────────────
	syncSvc := sync.New(clientRepo, travelCache, geocoder, syncRunRepo, logger.Named("sync"))

	// ── Scheduler ─────────────────────────────────────────
	sched, err := scheduler.New(cfg.Scheduler, runner, logger.Named("scheduler"))
	if err != nil {
		logger.Fatal("failed to configure scheduler", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	// ── Handlers ──────────────────────────────────────────
	locationHandler := handler.NewLocationHandler(clientRepo, techRepo, travelCache, logger.Named("handler.location"))
	matchingHandler := handler.NewMatchingHandler(runner, matchLedger, clientRepo, logger.Named("handler.matching"))
	overrideHandler := handler.NewOverrideHandler(overrideStore)
	simulationHandler := handler.NewSimulationHandler(simSvc, logger.Named("handler.simulation"))
	syncHandler := handler.NewSyncHandler(syncSvc, syncRunRepo, logger.Named("handler.sync"))

	// ── Router ────────────────────────────────────────────
	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler(pgPool, redisClient)).Methods(http.MethodGet)

	router.HandleFunc("/location/update", locationHandler.UpdateLocation).Methods(http.MethodPost)
	router.HandleFunc("/location/{entityType}/{entityId}", locationHandler.GetLocation).Methods(http.MethodGet)

	admin := router.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/matching/run-matching", matchingHandler.RunMatching).Methods(http.MethodPost)
	admin.HandleFunc("/matching/matching-status", matchingHandler.MatchingStatus).Methods(http.MethodGet)
	admin.HandleFunc("/matching/unmatched", matchingHandler.Unmatched).Methods(http.MethodGet)

	admin.HandleFunc("/scheduling/overrides", overrideHandler.Upsert).Methods(http.MethodPost)
	admin.HandleFunc("/scheduling/overrides", overrideHandler.GetByPair).Methods(http.MethodGet)
	admin.HandleFunc("/scheduling/overrides", overrideHandler.DeleteByPair).Methods(http.MethodDelete)
	admin.HandleFunc("/scheduling/overrides/{id}", overrideHandler.GetByID).Methods(http.MethodGet)
	admin.HandleFunc("/scheduling/overrides/{id}", overrideHandler.DeleteByID).Methods(http.MethodDelete)

	admin.HandleFunc("/simulation/add-client", simulationHandler.AddClient).Methods(http.MethodPost)
	admin.HandleFunc("/simulation/run", simulationHandler.RunSimulation).Methods(http.MethodPost)
	admin.HandleFunc("/simulation/proposals", simulationHandler.ListProposals).Methods(http.MethodGet)
	admin.HandleFunc("/simulation/approve/{id}", simulationHandler.Approve).Methods(http.MethodPost)
	admin.HandleFunc("/simulation/reject/{id}", simulationHandler.Reject).Methods(http.MethodPost)
	admin.HandleFunc("/simulation/defer/{id}", simulationHandler.Defer).Methods(http.MethodPost)

	admin.HandleFunc("/rbts/{id}/reopen", simulationHandler.ReopenTechnician).Methods(http.MethodPost)

	admin.HandleFunc("/scheduling/sync-clients", syncHandler.SyncClients).Methods(http.MethodPost)
	admin.HandleFunc("/scheduling/sync-clients/status", syncHandler.SyncStatus).Methods(http.MethodGet)

	httpLogger := logger.Named("http")
	httpHandler := middleware.CORS(middleware.RequestLogger(httpLogger)(middleware.Recoverer(httpLogger)(router)))

	// ── Start HTTP server ─────────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.ServerAddr()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server gracefully stopped")
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// healthHandler returns an HTTP handler that checks PG and Redis connectivity.
func healthHandler(pgPool *pgxpool.Pool, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string),
		}

		if err := db.HealthCheck(r.Context(), pgPool); err != nil {
			resp.Status = "degraded"
			resp.Services["postgres"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["postgres"] = "healthy"
		}

		if err := cache.HealthCheck(r.Context(), redisClient); err != nil {
			resp.Status = "degraded"
			resp.Services["redis"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["redis"] = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}
