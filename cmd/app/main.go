package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/portfoliobinder/internal/config"
	logpkg "github.com/local/portfoliobinder/internal/logger"
	"github.com/local/portfoliobinder/internal/metrics"
	"github.com/local/portfoliobinder/internal/portfolio"
	"github.com/local/portfoliobinder/internal/session"
	"github.com/local/portfoliobinder/internal/statuscheck"
	"github.com/local/portfoliobinder/internal/storage"
	"github.com/local/portfoliobinder/internal/store"
	web "github.com/local/portfoliobinder/internal/web"
)

func main() {
	cfg := cfgpkg.FromEnv()

	if err := logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	}); err != nil {
		log.Warn().Err(err).Msg("file logging disabled")
	}
	defer logpkg.Close()

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Build records
	var (
		builds     store.Builds = store.NewMemory()
		redisCheck statuscheck.Pinger
	)
	if cfg.Store.RedisURL != "" {
		rb, err := store.NewRedisBuilds(cfg.Store.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		builds = rb
		redisCheck = statuscheck.PingFunc(func(ctx context.Context) error { return rb.Client().Ping(ctx).Err() })
	}
	defer builds.Close()

	// Archive
	var (
		archive      storage.Archive = storage.Nop{}
		archiveCheck statuscheck.Pinger
	)
	switch cfg.Archive.Backend {
	case "", "none":
	case "local":
		archive = storage.NewLocal(cfg.Archive.Dir, cfg.Archive.Password)
		archiveCheck = statuscheck.DirWritable(cfg.Archive.Dir)
	case "s3":
		s3a, err := storage.NewS3Archive(ctx, storage.S3Options{
			Bucket:          cfg.Archive.Bucket,
			Prefix:          cfg.Archive.Prefix,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			Password:        cfg.Archive.Password,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init s3 archive")
		}
		archive, archiveCheck = s3a, s3a
	default:
		log.Fatal().Str("backend", cfg.Archive.Backend).Msg("unknown archive backend")
	}
	log.Info().Str("archive", archive.Backend()).Bool("redis", cfg.Store.RedisURL != "").Msg("storage configured")

	// Portfolio service
	sessions := session.NewRegistry(cfg.Binder.SessionTTL)
	svc := portfolio.New(portfolio.Dependencies{
		Sessions: sessions,
		Builds:   builds,
		Archive:  archive,
	}, portfolio.Options{
		DefaultFilename: cfg.Binder.DefaultFilename,
		TOCTitle:        cfg.Binder.TOCTitle,
		PreviewScale:    cfg.Binder.PreviewScale,
	})
	sessions.OnExpire = func(int) { metrics.SetActiveSessions(sessions.Len()) }
	go sessions.Janitor(ctx, cfg.Binder.JanitorInterval)

	checker := statuscheck.New(statuscheck.Options{
		Redis:          redisCheck,
		Archive:        archiveCheck,
		ArchiveBackend: archive.Backend(),
	})

	// Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", portfolio.SessionHeader},
		ExposedHeaders:   []string{"Content-Disposition", "X-Build-ID", "X-Page-Count"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		s := checker.Summary(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !s.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(s)
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	portfolio.NewHandler(svc, portfolio.HandlerOptions{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		UploadRate:     cfg.Server.UploadRate,
	}).RegisterRoutes(r)

	web.New(svc, web.Options{
		Username:       cfg.Server.WebUser,
		Password:       cfg.Server.WebPassword,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Status:         checker.Summary,
	}).RegisterRoutes(r)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/web/", http.StatusFound)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown incomplete")
	}
	log.Info().Msg("shutdown complete")
}
