package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/vishnukl-alation/hive/internal/adapter/codec"
	"github.com/vishnukl-alation/hive/internal/adapter/crypto"
	"github.com/vishnukl-alation/hive/internal/adapter/logging"
	"github.com/vishnukl-alation/hive/internal/adapter/postgres/jobrepository"
	"github.com/vishnukl-alation/hive/internal/adapter/redis/payloadport"
	"github.com/vishnukl-alation/hive/internal/config"
	"github.com/vishnukl-alation/hive/internal/core/services/client"
	"github.com/vishnukl-alation/hive/internal/core/services/submission"
	logger2 "github.com/vishnukl-alation/hive/internal/global/logger"
	http2 "github.com/vishnukl-alation/hive/internal/http"
	"github.com/vishnukl-alation/hive/internal/observability"
	"github.com/vishnukl-alation/hive/internal/schedulerengine"
	"github.com/vishnukl-alation/hive/internal/tcp/channel"
)

// usage: coordinator <env> [token <subject>]
func main() {
	InitReader()
	sysCfg := config.NewSystemConfig()

	if len(os.Args) >= 4 && os.Args[2] == "token" {
		printToken(sysCfg, os.Args[3])
		return
	}

	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	logger := logging.NewZapLoggerWithConfig(sysCfg.Log).With("service", "coordinator")
	logger2.Logger = logger
	defer func() { _ = logger.Sync() }()
	logger.Info("Starting coordinator")

	shutdownTracing, err := observability.InitTracing(sysCfg.Tracing.Exporter, "hive-coordinator")
	if err != nil {
		logger.Error("Failed to init tracing", "error", err)
		os.Exit(1)
	}

	payloadCodec, err := codec.NewDefaultPayloadCodec()
	if err != nil {
		logger.Error("Failed to build payload codec", "error", err)
		os.Exit(1)
	}

	ctxBg, stopBg := context.WithCancel(context.Background())
	defer stopBg()

	// SECONDARY PORTS
	clientOpts := make([]client.Option, 0)
	serviceOpts := []submission.Option{
		submission.WithAwaitTimeout(sysCfg.Client.AwaitTimeout),
		submission.WithRetention(sysCfg.Client.HandleRetention),
	}

	var redisClient *redis.Client
	if sysCfg.RedisConfig.Url != "" && sysCfg.Client.PayloadRefThreshold > 0 {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     sysCfg.RedisConfig.Url,
			Password: sysCfg.RedisConfig.Password,
			DB:       sysCfg.RedisConfig.DB,
		})
		store := payloadport.NewPayloadRepository(redisClient, sysCfg.RedisConfig.PayloadTTL, logger)
		clientOpts = append(clientOpts, client.WithPayloadStore(store, sysCfg.Client.PayloadRefThreshold))
	}

	var db *sqlx.DB
	if sysCfg.PostgresConfig.Url != "" {
		db, err = setupDatabase(ctxBg, sysCfg.PostgresConfig.Url)
		if err != nil {
			logger.Error("Failed to set up database", "error", err)
			os.Exit(1)
		}
		jobRepo := jobrepository.NewJobRepository(db, logger)
		if err := jobRepo.Migrate(ctxBg); err != nil {
			os.Exit(1)
		}
		clientOpts = append(clientOpts, client.WithJobRepository(jobRepo))
		serviceOpts = append(serviceOpts, submission.WithJobRepository(jobRepo))
	}

	connect := func(ctx context.Context) (client.IRemoteClient, error) {
		dialCtx, cancel := context.WithTimeout(ctx, sysCfg.Client.DialTimeout)
		defer cancel()
		ch, err := channel.Dial(dialCtx, sysCfg.Client.ExecutorAddress, logger)
		if err != nil {
			return nil, err
		}
		return client.NewRemoteClient(dialCtx, ch, payloadCodec, logger, clientOpts...)
	}
	serviceOpts = append(serviceOpts, submission.WithReconnect(connect))

	remote, err := connect(ctxBg)
	if err != nil {
		logger.Error("Failed to connect to executor", "addr", sysCfg.Client.ExecutorAddress, "error", err)
		os.Exit(1)
	}

	//services
	submissionSvc := submission.NewSubmissionService(remote, payloadCodec, logger, serviceOpts...)
	serviceProvider := http2.NewServiceProvider(submissionSvc, crypto.NewJWTService(sysCfg.JwtConfig))

	//server
	httpServer := http2.NewServer(sysCfg.HTTP.Port, "coordinator", *serviceProvider, logger)
	if err := httpServer.Init(); err != nil {
		logger.Error("Failed to init http server", "error", err)
		os.Exit(1)
	}
	httpServer.Start(ctxBg)

	engine := schedulerengine.NewSchedulerEngine(sysCfg.Client, submissionSvc, logger)
	engine.Start(ctxBg)

	<-quit
	logger.Info("Shutting down coordinator...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Stop(ctx); err != nil {
		logger.Error("Failed to stop http server", "error", err)
	}
	stopBg()
	engine.Wait()
	if err := remote.Close(); err != nil {
		logger.Debug("Executor channel closed", "error", err)
	}
	if db != nil {
		_ = db.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Error("Failed to flush traces", "error", err)
	}

	logger.Info("successfully shutdown coordinator")
}

// setupDatabase sets up the PostgreSQL connection
func setupDatabase(ctx context.Context, connStr string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func printToken(sysCfg *config.AppConfig, subject string) {
	token, err := crypto.NewJWTService(sysCfg.JwtConfig).GenerateTokenHMAC(context.Background(), subject, 24*time.Hour)
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}
	fmt.Println(token)
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
