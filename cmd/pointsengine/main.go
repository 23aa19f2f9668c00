package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	membershipapp "github.com/ronalzhang/lawsker-sub001/internal/membership/application"
	membershipdomain "github.com/ronalzhang/lawsker-sub001/internal/membership/domain"
	membershipmysql "github.com/ronalzhang/lawsker-sub001/internal/membership/infrastructure/persistence/mysql"
	membershiphttp "github.com/ronalzhang/lawsker-sub001/internal/membership/interfaces/http"
	"github.com/ronalzhang/lawsker-sub001/internal/points/application"
	"github.com/ronalzhang/lawsker-sub001/internal/points/domain"
	"github.com/ronalzhang/lawsker-sub001/internal/points/infrastructure/messaging"
	pointsmysql "github.com/ronalzhang/lawsker-sub001/internal/points/infrastructure/persistence/mysql"
	pointsredis "github.com/ronalzhang/lawsker-sub001/internal/points/infrastructure/persistence/redis"
	pointshttp "github.com/ronalzhang/lawsker-sub001/internal/points/interfaces/http"
	"github.com/ronalzhang/lawsker-sub001/pkg/cache"
	"github.com/ronalzhang/lawsker-sub001/pkg/config"
	"github.com/ronalzhang/lawsker-sub001/pkg/db"
	"github.com/ronalzhang/lawsker-sub001/pkg/idgen"
	"github.com/ronalzhang/lawsker-sub001/pkg/logger"
	"github.com/ronalzhang/lawsker-sub001/pkg/metrics"
	"github.com/ronalzhang/lawsker-sub001/pkg/middleware"
	"github.com/ronalzhang/lawsker-sub001/pkg/mq"
	"github.com/ronalzhang/lawsker-sub001/pkg/ratelimit"
	"github.com/ronalzhang/lawsker-sub001/pkg/response"
)

var configPath = flag.String("config", "configs/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. 初始化配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. 初始化日志
	if err := logger.Init(cfg.Logger); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}
	defer logger.Sync()
	log := logger.Get().With("service", cfg.ServiceName)
	slog.SetDefault(log)

	// 3. 初始化指标
	m := metrics.New(cfg.ServiceName)

	// 4. 初始化基础设施
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if cfg.Environment == "dev" {
		if err := database.AutoMigrate(
			&pointsmysql.AccountModel{},
			&pointsmysql.TransactionModel{},
			&pointsmysql.DailyBucketModel{},
			&pointsmysql.DailyCapModel{},
			&pointsmysql.MilestoneModel{},
			&messaging.OutboxMessage{},
			&membershipmysql.MembershipModel{},
		); err != nil {
			log.Error("failed to migrate database", "error", err)
		}
	}

	redisCache, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		log.Error("failed to init redis", "error", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	producer, err := mq.NewProducer(mq.KafkaConfig{
		Brokers:      cfg.Kafka.Brokers,
		GroupID:      cfg.Kafka.GroupID,
		MaxRetries:   cfg.Kafka.MaxRetries,
		RetryBackoff: cfg.Kafka.RetryBackoff,
	})
	if err != nil {
		log.Error("failed to init kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	// 5. 初始化仓储
	accountRepo := pointsmysql.NewAccountRepository(database.DB, log)
	txnRepo := pointsmysql.NewTransactionRepository(database.DB, log)
	dailyRepo := pointsmysql.NewDailyRepository(database.DB, log)
	milestoneRepo := pointsmysql.NewMilestoneRepository(database.DB, log)
	leaderboardRepo := pointsredis.NewLeaderboardRepository(redisCache, log)
	membershipRepo := membershipmysql.NewMembershipRepository(database.DB, log)

	outboxPub := messaging.NewOutboxPublisher(database.DB)

	// 6. 初始化应用服务
	tierCatalog := membershipdomain.NewDefaultTierCatalog()
	membershipSvc := membershipapp.NewMembershipService(membershipRepo, tierCatalog, redisCache, log)
	tierProvider := membershipapp.NewTierProviderAdapter(membershipSvc, tierCatalog, redisCache, log)

	ruleCatalog := domain.NewDefaultRuleCatalog()
	resolver := domain.NewMultiplierResolver(ruleCatalog, cfg.Engine.MultiplierFloor, cfg.Engine.MultiplierCeiling)
	levelTable := domain.NewDefaultLevelTable()
	detector := domain.NewMilestoneDetector(domain.DefaultMilestoneSpecs())
	abuseMonitor := domain.NewAbuseMonitor(cfg.Engine.AbuseDeclineThreshold)

	dailyCaps := make(map[domain.ActionKind]int, len(cfg.Engine.DailyCaps))
	for action, limit := range cfg.Engine.DailyCaps {
		dailyCaps[domain.ActionKind(action)] = limit
	}

	commandSvc := application.NewPointsCommandService(
		accountRepo, txnRepo, dailyRepo, milestoneRepo, leaderboardRepo,
		tierProvider, ruleCatalog, resolver, levelTable, detector, abuseMonitor,
		outboxPub, database.DB, idgen.Default(), m, log,
		application.EngineOptions{
			DailyCaps:       dailyCaps,
			MaxWriteRetries: cfg.Engine.MaxWriteRetries,
			RetryBackoff:    time.Duration(cfg.Engine.RetryBackoffMs) * time.Millisecond,
		},
	)
	querySvc := application.NewPointsQueryService(
		accountRepo, txnRepo, dailyRepo, milestoneRepo, leaderboardRepo,
		detector, levelTable, log,
	)

	// 7. 启动后台任务
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	relay := messaging.NewOutboxRelay(database.DB, producer, m, log,
		time.Duration(cfg.Engine.OutboxRelayInterval)*time.Second)
	go relay.Start(jobCtx)

	streakJob := application.NewStreakSweepJob(commandSvc, accountRepo, log)
	go streakJob.Start(jobCtx)

	expiryJob := membershipapp.NewExpirySweepJob(membershipSvc, membershipRepo, log, time.Hour)
	go expiryJob.Start(jobCtx)

	// 8. 初始化接口层
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(middleware.Logging(), middleware.Recovery(), middleware.Metrics(m))
	if cfg.HTTP.RateLimit.Enabled {
		limiter := ratelimit.NewRedisRateLimiter(redisCache.GetClient())
		router.Use(middleware.RateLimit(limiter, cfg.HTTP.RateLimit))
	}

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok", "service": cfg.ServiceName})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	pointshttp.NewPointsHandler(commandSvc, querySvc).RegisterRoutes(router)
	membershiphttp.NewMembershipHandler(membershipSvc).RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 9. 等待退出信号，优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	cancelJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	log.Info("server stopped")
}
