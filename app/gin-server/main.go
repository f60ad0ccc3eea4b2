package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/careerforge/careerforge/config"
	"github.com/careerforge/careerforge/internal/api/handlers"
	"github.com/careerforge/careerforge/internal/api/middleware"
	"github.com/careerforge/careerforge/internal/api/routes"
	"github.com/careerforge/careerforge/internal/cache"
	"github.com/careerforge/careerforge/internal/logger"
	"github.com/careerforge/careerforge/internal/models"
	"github.com/careerforge/careerforge/internal/providers/llm"
	"github.com/careerforge/careerforge/internal/providers/stt"
	"github.com/careerforge/careerforge/internal/realtime"
	mongorepo "github.com/careerforge/careerforge/internal/repositories/mongo"
	pgrepo "github.com/careerforge/careerforge/internal/repositories/postgres"
	"github.com/careerforge/careerforge/internal/services"
	"github.com/careerforge/careerforge/internal/storage"
	"github.com/careerforge/careerforge/internal/workers"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := config.InitMongo(cfg.Mongo); err != nil {
		log.Fatalf("MongoDB init error: %v", err)
	}
	log.Info("MongoDB connected")
	if err := config.EnsureMongoIndexes(cfg.Mongo.DB); err != nil {
		log.WithError(err).Warn("ensure mongo indexes")
	}

	if err := config.InitPostgres(cfg.Postgres); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	if err := config.PostgresDB.AutoMigrate(&models.Resume{}); err != nil {
		log.Fatalf("PostgreSQL migrate error: %v", err)
	}
	log.Info("PostgreSQL connected")

	if err := config.InitRedis(cfg.Redis); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	log.Info("Redis connected")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store storage.ObjectStore
	if cfg.Storage.Bucket != "" {
		gcs, err := storage.NewGCSStore(ctx, cfg.Storage.Bucket)
		if err != nil {
			log.Fatalf("GCS init error: %v", err)
		}
		defer gcs.Close()
		store = gcs
	} else {
		log.Warn("GCS_BUCKET not set, audio and resume uploads are disabled")
	}

	var speech stt.Provider
	if cfg.Google.SpeechEnabled {
		gs, err := stt.NewGoogleSpeech(ctx)
		if err != nil {
			log.Fatalf("Speech init error: %v", err)
		}
		defer gs.Close()
		speech = gs
	}

	provider, err := newLLM(ctx, cfg)
	if err != nil {
		log.Fatalf("LLM init error: %v", err)
	}
	if provider != nil {
		defer provider.Close()
		log.WithField("provider", provider.Name()).Info("LLM ready")
	} else {
		log.Info("no LLM configured, using question bank and heuristic scoring")
	}

	mdb := config.MongoClient.Database(cfg.Mongo.DB)
	rdb := config.RedisClient
	bus := realtime.NewRedisBus(rdb)

	interviewSvc := services.NewInterviewService(services.InterviewDeps{
		Interviews: mongorepo.NewInterviewRepo(mdb),
		Store:      store,
		STT:        speech,
		LLM:        provider,
		Cache:      cache.NewRedisCache(rdb),
		Bus:        bus,
		Logger:     log,
		HistoryTTL: cfg.HistoryTTL,
		LLMTimeout: cfg.LLM.Timeout,
	})
	bufferSvc := services.NewBufferService(mongorepo.NewBufferRepo(mdb), cfg.AudioChunkTTL)
	eventSvc := services.NewEventService(mongorepo.NewEventRepo(mdb))
	resumeSvc := services.NewResumeService(pgrepo.NewResumeRepo(config.PostgresDB), store, provider, cfg.LLM.Timeout, log)

	if speech != nil && cfg.Worker.AudioWorkers > 0 {
		pool := &workers.AudioWorkerPool{
			Redis:      rdb,
			Buffers:    bufferSvc,
			Interviews: interviewSvc,
			Bus:        bus,
			NumWorkers: cfg.Worker.AudioWorkers,
			STT:        speech,
			Logger:     log,
			Stream:     cfg.Worker.Stream,
			Group:      cfg.Worker.Group,
		}
		if err := pool.Start(ctx); err != nil {
			log.Fatalf("audio workers: %v", err)
		}
		log.WithField("workers", cfg.Worker.AudioWorkers).Info("audio workers started")
	}

	deps := routes.Deps{
		Interview: handlers.NewInterviewHandler(interviewSvc, cfg.Google.SpeechLang),
		Resume:    handlers.NewResumeHandler(resumeSvc),
		WS: handlers.NewWSHandler(handlers.WSDeps{
			Interviews:     interviewSvc,
			Buffers:        bufferSvc,
			Events:         eventSvc,
			Redis:          rdb,
			Stream:         cfg.Worker.Stream,
			Language:       cfg.Google.SpeechLang,
			Logger:         log,
			AllowedOrigins: cfg.AllowedOrigins,
		}),
		JWT: middleware.JWTOptions{
			Secret:   cfg.JWT.Secret,
			Issuer:   cfg.JWT.Issuer,
			Audience: cfg.JWT.Audience,
		},
		Idempotency:    middleware.NewRedisIdempotencyStore(rdb),
		IdempotencyTTL: cfg.IdempotencyTTL,
		Ready:          config.Ping,
		Logger:         log,
	}
	if cfg.Limiter.Enabled {
		deps.Counter = middleware.NewRedisCounter(rdb)
		deps.Limits = routes.Limits{
			AIMax:     cfg.Limiter.AIMax,
			AIWindow:  cfg.Limiter.AIWindow,
			APIMax:    cfg.Limiter.APIMax,
			APIWindow: cfg.Limiter.APIWindow,
		}
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	routes.RegisterRoutes(r, deps)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	_ = config.MongoClient.Disconnect(shutdownCtx)
	_ = rdb.Close()
}

// newLLM returns nil when no provider is configured.
func newLLM(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "vertex":
		model := cfg.LLM.Model
		if model == "" {
			model = "gemini-1.5-flash"
		}
		v, err := llm.NewVertexGemini(ctx, cfg.Google.ProjectID, cfg.Google.Location, model)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "openai":
		model := cfg.LLM.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return llm.NewOpenAI(cfg.LLM.OpenAIKey, cfg.LLM.OpenAIBaseURL, model), nil
	default:
		return nil, nil
	}
}
