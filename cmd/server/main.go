// Package main runs the poll HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/refpoll/backend/config"
	"github.com/refpoll/backend/internal/auth"
	"github.com/refpoll/backend/internal/ballots"
	"github.com/refpoll/backend/internal/middleware"
	"github.com/refpoll/backend/internal/polls"
	"github.com/refpoll/backend/internal/worker"
	"github.com/refpoll/backend/pkg/database"
	"github.com/refpoll/backend/pkg/metrics"
	"github.com/refpoll/backend/pkg/queue"
	"github.com/refpoll/backend/pkg/redis"
	"github.com/refpoll/backend/pkg/response"
	"github.com/refpoll/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:       int32(cfg.Database.MaxConns),
		ConnectTimeout: time.Duration(cfg.Database.ConnectTimeout) * time.Second,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New("refpoll", promReg)
	if err != nil {
		logger.Fatal("metrics", zap.Error(err))
	}

	pollRepo := polls.NewRepository(pool)
	registry := polls.NewRegistry(pollRepo, polls.Config{
		StoreTimeout: cfg.Voting.StoreTimeout(),
		TokenBytes:   cfg.Voting.TokenBytes,
	}, m, logger)
	engine := ballots.NewEngine(registry, ballots.NewRepository(pool), ballots.Config{
		StoreTimeout: cfg.Voting.StoreTimeout(),
	}, m, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, redis.Options{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			OpTimeout: cfg.Voting.StoreTimeout(),
		}, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()

		engine.SetCache(ballots.NewRedisCache(rdb.Client, cfg.Voting.ResultsCacheTTL()))

		if cfg.AWS.ResultsBucket != "" {
			s3Client, err := storage.NewS3(ctx, storage.S3Config{
				Region:          cfg.AWS.Region,
				AccessKeyID:     cfg.AWS.AccessKeyID,
				SecretAccessKey: cfg.AWS.SecretAccessKey,
				ResultsBucket:   cfg.AWS.ResultsBucket,
				Endpoint:        cfg.AWS.S3Endpoint,
			}, logger)
			if err != nil {
				logger.Fatal("s3", zap.Error(err))
			}
			jobQueue := queue.NewQueue(rdb.Client, logger)
			registry.SetClosedNotifier(worker.NewExportNotifier(jobQueue))

			// Background worker (results export to S3)
			go worker.NewExportProcessor(engine, s3Client, jobQueue, logger).Run(workerCtx)
			logger.Info("export worker started")
		}
	} else {
		logger.Warn("REDIS_ADDR not set; results cache and exports disabled")
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	router := newRouter(cfg, pool, promReg, routes{
		auth:    auth.NewHandler(auth.NewRepository(pool), jwtService, logger),
		polls:   polls.NewHandler(registry, cfg.Voting.FrontendURL),
		ballots: ballots.NewHandler(engine),
		jwt:     middleware.JWT(jwtService),
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

type routes struct {
	auth    *auth.Handler
	polls   *polls.Handler
	ballots *ballots.Handler
	jwt     gin.HandlerFunc
}

func newRouter(cfg *config.Config, pool *pgxpool.Pool, gatherer prometheus.Gatherer, h routes, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// Auth (no JWT)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", h.auth.Register)
		authGroup.POST("/login", h.auth.Login)
	}

	// Voters (poll token is the credential)
	router.GET("/polls/:token", h.polls.Get)
	router.POST("/polls/:token/ballots", h.ballots.Submit)
	router.GET("/polls/:token/results", h.ballots.Results)

	// Organizers
	api := router.Group("")
	api.Use(h.jwt)
	{
		api.POST("/polls", h.polls.Create)
		api.GET("/polls", h.polls.List)
		api.POST("/polls/:token/close", h.polls.Close)
		api.POST("/polls/:token/reopen", h.polls.Reopen)
	}

	return router
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
