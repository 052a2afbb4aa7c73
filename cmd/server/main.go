package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"redeem-server/internal/application/auth"
	"redeem-server/internal/application/code_management"
	redemptionapp "redeem-server/internal/application/code_redemption"
	"redeem-server/internal/application/coupon_wallet"
	historyapp "redeem-server/internal/application/history"
	"redeem-server/internal/application/sequencer"
	templateapp "redeem-server/internal/application/template"
	"redeem-server/internal/domain/player"
	"redeem-server/internal/domain/redemption_code"
	"redeem-server/internal/domain/service"
	"redeem-server/internal/infrastructure/authz/casbin"
	redisinfra "redeem-server/internal/infrastructure/cache/redis"
	"redeem-server/internal/infrastructure/condition/cel"
	"redeem-server/internal/infrastructure/config"
	"redeem-server/internal/infrastructure/messaging/kafka"
	otelinfra "redeem-server/internal/infrastructure/observability/otel"
	"redeem-server/internal/infrastructure/persistence/mysql"
	"redeem-server/internal/infrastructure/queue"
	grpcserver "redeem-server/internal/presentation/grpc"
	"redeem-server/internal/presentation/rest"
)

const serviceName = "redeem-server"

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := otelinfra.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error(context.Background(), "Server terminated", err, nil)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *otelinfra.Logger) error {
	ctx := context.Background()

	// OpenTelemetryの初期化
	tracerShutdown, err := otelinfra.InitTracer(&cfg.OpenTelemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer shutdownWithTimeout(logger, "tracer", tracerShutdown)

	meterShutdown, err := otelinfra.InitMeter(&cfg.OpenTelemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize meter: %w", err)
	}
	defer shutdownWithTimeout(logger, "meter", meterShutdown)

	metrics, err := otelinfra.NewMetrics(serviceName)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	// データベース接続の初期化
	db, err := mysql.NewDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	// Redis（プレイヤーディレクトリと保留通知）
	redisClient, err := redisinfra.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	players, err := redisinfra.NewPlayerDirectory(redisClient, cfg.Redis.KeyPrefix, cfg.Redeem.PlayerCacheSize)
	if err != nil {
		return fmt.Errorf("failed to create player directory: %w", err)
	}
	notifications := redisinfra.NewNotificationQueue(redisClient, cfg.Redis.KeyPrefix)

	// Kafka（ゲームサーバーへの報酬配布と引き換えイベント）。無効の場合は配布しない。
	var (
		rewards  redemption_code.RewardDispatcher
		events   redemption_code.EventPublisher
		notifier player.Notifier
	)
	if cfg.Kafka.Enabled {
		rewardWriter := kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.RewardTopic)
		defer closeQuietly(logger, "kafka reward writer", rewardWriter)
		eventWriter := kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.EventTopic)
		defer closeQuietly(logger, "kafka event writer", eventWriter)

		rewards = kafka.NewRewardDispatcher(rewardWriter, cfg.Kafka.RewardTopic, logger)
		notifier = kafka.NewNotifier(rewardWriter, cfg.Kafka.RewardTopic, logger)
		events = kafka.NewEventPublisher(eventWriter, cfg.Kafka.EventTopic, logger)
	} else {
		logger.Warn(ctx, "Kafka disabled, rewards will not be dispatched", nil)
	}

	// 権限と条件式
	permissions, err := casbin.NewPermissionChecker()
	if err != nil {
		return err
	}
	conditions, err := cel.NewEvaluator(cfg.Redeem.ConditionCacheSize)
	if err != nil {
		return err
	}
	eligibility := service.NewEligibilityService(permissions, conditions)

	// 永続化の順序制御とメインコンテキスト
	dispatcher := sequencer.NewDispatcher(cfg.Redeem.PersistenceWorkers, cfg.Redeem.SequencerQueueSize)
	mainThread := sequencer.NewMainThread(cfg.Redeem.SequencerQueueSize, logger)

	// リポジトリの初期化
	codeRepo := mysql.NewRedemptionCodeRepository(db)
	templateRepo := mysql.NewRedeemTemplateRepository(db)
	logRepo := mysql.NewRedeemLogRepository(db)
	couponRepo := mysql.NewCouponRepository(db)
	txManager := mysql.NewTransactionManager(db)

	// アプリケーションサービスの初期化
	codes := code_management.NewService(
		codeRepo,
		templateRepo,
		couponRepo,
		txManager,
		dispatcher,
		conditions,
		code_management.Options{
			ServerName:        cfg.Server.Name,
			DefaultDigit:      cfg.Redeem.DefaultDigit,
			MaxBulkAmount:     cfg.Redeem.MaxBulkAmount,
			GeneratorAttempts: cfg.Redeem.GeneratorAttempts,
		},
		logger,
		metrics,
	)
	if err := codes.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load codes: %w", err)
	}
	templates := templateapp.NewService(templateRepo, codes, conditions, dispatcher, logger, metrics)
	redemption := redemptionapp.NewCodeRedemptionApplicationService(
		codes,
		eligibility,
		logRepo,
		couponRepo,
		players,
		rewards,
		events,
		mainThread,
		logger,
		metrics,
	)
	history := historyapp.NewHistoryApplicationService(logRepo, logger, metrics)
	wallet := coupon_wallet.NewService(couponRepo, codes, players, notifications, notifier, mainThread, logger, metrics)
	authService := auth.NewAuthApplicationService(&cfg.JWT, logger)

	// 非同期ジョブ（asynq）
	jobs := queue.NewClient(&cfg.Queue, &cfg.Redis)
	defer closeQuietly(logger, "job queue", jobs)
	var worker *queue.Service
	if cfg.Queue.Enabled {
		worker, err = queue.NewService(cfg, queue.NewConsumer(codes, templates, logger))
		if err != nil {
			return err
		}
		if err := worker.Start(); err != nil {
			return err
		}
	}

	// REST APIルーターの初期化
	router, err := rest.NewRouter(cfg, logger, metrics, rest.Services{
		Auth:        authService,
		Redemption:  redemption,
		History:     history,
		Codes:       codes,
		Templates:   templates,
		Wallet:      wallet,
		Permissions: permissions,
		Jobs:        jobs,
		Health: func(ctx context.Context) error {
			if err := db.HealthCheck(); err != nil {
				return err
			}
			return redisClient.Ping(ctx).Err()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	// gRPCサーバーの初期化
	grpcSrv, err := grpcserver.NewServer(cfg, logger, redemption, codes)
	if err != nil {
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}

	serveErr := make(chan error, 2)
	address := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info(ctx, "REST API server starting", map[string]interface{}{"address": address})
		if err := router.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("REST API server: %w", err)
		}
	}()
	go func() {
		if err := grpcSrv.Start(); err != nil {
			serveErr <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	// シグナルまたはサーバーエラーを待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	var runErr error
	select {
	case sig := <-quit:
		logger.Info(ctx, "Shutting down servers", map[string]interface{}{"signal": sig.String()})
	case runErr = <-serveErr:
	}

	// 受付を止めてから、投入済みの報酬配布と永続化を流し切る
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Error shutting down REST API server", err, nil)
	}
	if err := grpcSrv.Stop(shutdownCtx); err != nil {
		logger.Error(ctx, "Error shutting down gRPC server", err, nil)
	}
	if worker != nil {
		worker.Stop()
	}
	mainThread.Close()
	dispatcher.Close()

	logger.Info(ctx, "Servers stopped", nil)
	return runErr
}

func shutdownWithTimeout(logger *otelinfra.Logger, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error(ctx, "Failed to shutdown "+name, err, nil)
	}
}

func closeQuietly(logger *otelinfra.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Warn(context.Background(), "Failed to close "+name, map[string]interface{}{
			"error": err.Error(),
		})
	}
}
