package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gSa1fe/isusP-sub000/internal/config"
	"github.com/gSa1fe/isusP-sub000/internal/handler"
	"github.com/gSa1fe/isusP-sub000/internal/infrastructure/cache"
	"github.com/gSa1fe/isusP-sub000/internal/infrastructure/database"
	"github.com/gSa1fe/isusP-sub000/internal/infrastructure/lock"
	"github.com/gSa1fe/isusP-sub000/internal/infrastructure/mq"
	"github.com/gSa1fe/isusP-sub000/internal/job"
	"github.com/gSa1fe/isusP-sub000/internal/logger"
	"github.com/gSa1fe/isusP-sub000/internal/repository"
	"github.com/gSa1fe/isusP-sub000/internal/service"
	"github.com/gSa1fe/isusP-sub000/pkg/idgen"

	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	workerID := flag.Int64("worker-id", 1, "snowflake 节点ID")
	flag.Parse()

	if err := run(*configPath, *workerID); err != nil {
		slog.Error("服务异常退出", "err", err)
		os.Exit(1)
	}
}

func run(configPath string, workerID int64) error {
	// 加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Setup(&cfg.Log)
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret 未配置")
	}

	// 初始化 ID 生成器
	if err := idgen.Init(workerID); err != nil {
		return err
	}

	// 初始化 MySQL
	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	// 初始化 Redis
	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// 初始化 Kafka
	producer, err := mq.NewSyncProducer(&cfg.Kafka)
	if err != nil {
		return err
	}
	publisher := mq.NewPublisher(producer)
	defer publisher.Close()

	// 组装服务
	topics := service.Topics{
		TopupEvents:  cfg.Kafka.Topic.TopupEvents,
		LedgerEvents: cfg.Kafka.Topic.LedgerEvents,
	}
	uow := repository.NewUnitOfWork(db)
	packages := service.NewPackageService(cfg.Wallet.Packages)
	ledger := service.NewLedgerService(uow, topics)
	topups := service.NewTopupService(uow, packages, cfg.Wallet.MaxPendingTopups, topics)
	settlement := service.NewSettlementService(uow, ledger, lock.NewSettlementLocker(redisClient, cfg.Wallet.SettleLockTTL), topics)
	wallet := service.NewWalletService(uow)

	h := handler.NewHandler(topups, settlement, ledger, wallet, packages)
	router := handler.SetupRouter(cfg, h, map[string]handler.HealthCheck{
		"mysql": sqlDB.PingContext,
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 收到 SIGINT / SIGTERM 时取消上下文，停止后台任务
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	outboxSender := job.NewOutboxSender(repository.NewOutboxRepository(db), publisher,
		cfg.Business.OutboxInterval, cfg.Business.OutboxBatchSize, cfg.Business.MaxRetryCount)
	g.Go(func() error {
		outboxSender.Start(gctx)
		return nil
	})

	reconcileJob := job.NewLedgerReconcileJob(repository.NewAccountRepository(db), wallet,
		cfg.Business.ReconcileInterval, cfg.Business.ReconcileBatch)
	g.Go(func() error {
		reconcileJob.Start(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("服务启动", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("服务启动失败: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("正在关闭服务...")

		// 关闭 HTTP 服务（等待最多5秒）
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("服务已关闭")
	return nil
}
