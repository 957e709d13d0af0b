// Package main runs the background job worker (results export to S3).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/refpoll/backend/config"
	"github.com/refpoll/backend/internal/ballots"
	"github.com/refpoll/backend/internal/polls"
	"github.com/refpoll/backend/internal/worker"
	"github.com/refpoll/backend/pkg/database"
	"github.com/refpoll/backend/pkg/queue"
	"github.com/refpoll/backend/pkg/redis"
	"github.com/refpoll/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Redis.Addr == "" || cfg.AWS.ResultsBucket == "" {
		logger.Fatal("worker needs REDIS_ADDR and AWS_S3_RESULTS_BUCKET")
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

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

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

	registry := polls.NewRegistry(polls.NewRepository(pool), polls.Config{
		StoreTimeout: cfg.Voting.StoreTimeout(),
		TokenBytes:   cfg.Voting.TokenBytes,
	}, nil, logger)
	engine := ballots.NewEngine(registry, ballots.NewRepository(pool), ballots.Config{
		StoreTimeout: cfg.Voting.StoreTimeout(),
	}, nil, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewExportProcessor(engine, s3Client, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
