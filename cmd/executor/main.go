package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/vishnukl-alation/hive/internal/adapter/codec"
	"github.com/vishnukl-alation/hive/internal/adapter/driver/local"
	"github.com/vishnukl-alation/hive/internal/adapter/logging"
	"github.com/vishnukl-alation/hive/internal/adapter/redis/payloadport"
	"github.com/vishnukl-alation/hive/internal/adapter/redis/trackingport"
	"github.com/vishnukl-alation/hive/internal/config"
	"github.com/vishnukl-alation/hive/internal/core/services/executor"
	"github.com/vishnukl-alation/hive/internal/core/services/job"
	logger2 "github.com/vishnukl-alation/hive/internal/global/logger"
	"github.com/vishnukl-alation/hive/internal/observability"
	"github.com/vishnukl-alation/hive/internal/tcp"
)

func main() {
	InitReader()
	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sysCfg := config.NewSystemConfig()
	logger := logging.NewZapLoggerWithConfig(sysCfg.Log).With("service", "executor")
	logger2.Logger = logger
	defer func() { _ = logger.Sync() }()
	logger.Info("Starting remote executor")

	shutdownTracing, err := observability.InitTracing(sysCfg.Tracing.Exporter, "hive-executor")
	if err != nil {
		logger.Error("Failed to init tracing", "error", err)
		os.Exit(1)
	}

	payloadCodec, err := codec.NewDefaultPayloadCodec()
	if err != nil {
		logger.Error("Failed to build payload codec", "error", err)
		os.Exit(1)
	}

	driver := local.NewDriver(local.Config{
		AppName:            sysCfg.Executor.AppName,
		DefaultParallelism: sysCfg.Executor.DefaultParallelism,
		StageDelay:         sysCfg.Executor.StageDelay,
	}, logger)

	opts := []executor.Option{executor.WithMaxConcurrentJobs(sysCfg.Executor.MaxConcurrentJobs)}

	// SECONDARY PORTS
	var redisClient *redis.Client
	if sysCfg.RedisConfig.Url != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     sysCfg.RedisConfig.Url,
			Password: sysCfg.RedisConfig.Password,
			DB:       sysCfg.RedisConfig.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("Failed to reach redis", "addr", sysCfg.RedisConfig.Url, "error", err)
			os.Exit(1)
		}
		opts = append(opts,
			executor.WithPayloadStore(payloadport.NewPayloadRepository(redisClient, sysCfg.RedisConfig.PayloadTTL, logger)),
			executor.WithTrackingRegistry(trackingport.NewTrackingRepository(redisClient, logger)),
		)
	}

	//services
	exec := executor.NewExecutorService(driver, job.NewDefaultRegistry(payloadCodec), payloadCodec, logger, opts...)

	//server
	tcpServer := tcp.NewTCPServer(exec, logger, tcp.WithAddress(sysCfg.Executor.Address))
	if err := tcpServer.Start(); err != nil {
		logger.Error("Failed to start executor server", "error", err)
		os.Exit(1)
	}

	<-quit
	logger.Info("Shutting down executor...")

	ctx, cancel := context.WithTimeout(context.Background(), sysCfg.Executor.ShutdownTimeout)
	defer cancel()
	if err := tcpServer.Stop(ctx); err != nil {
		logger.Error("Failed to stop executor server", "error", err)
	}
	if err := exec.Shutdown(ctx); err != nil {
		logger.Error("Failed to drain running jobs", "error", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Error("Failed to flush traces", "error", err)
	}

	logger.Info("successfully shutdown executor")
}

func InitReader() {
	environment := ""
	if len(os.Args) < 2 {
		log.Fatalf("Env not supplied in argument")
	} else {
		environment = os.Args[1]
	}

	err := godotenv.Load(environment + ".env")
	if err != nil {
		log.Fatalf("Error loading %s.env file", environment)
	}
}
