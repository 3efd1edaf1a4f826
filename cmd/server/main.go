package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/adapter/ledger"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/adapter/order"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/application"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/config"
	parkingEvents "github.com/Kilat-Pet-Delivery/service-parking/internal/events"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/handler"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/lock"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/auth"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/clock"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/database"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/health"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/kafka"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/logger"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/middleware"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/repository"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/scheduler"
)

const serviceName = "service-parking"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting "+serviceName,
		zap.String("port", cfg.Port),
		zap.String("env", cfg.AppEnv),
		zap.Float64("platform_fee_percent", cfg.BookingConfig.PlatformFeePercent),
	)

	// Connect to database
	db, err := database.Connect(cfg.DBConfig, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	migrate(cfg, db, log)

	jwtManager := auth.NewJWTManager(
		cfg.JWTConfig.Secret,
		cfg.JWTConfig.AccessTokenTTL,
		cfg.JWTConfig.RefreshTokenTTL,
	)
	clk := clock.NewRealClock()

	healthHandler := health.NewHandler(db, serviceName)

	// Per-resource lock: Redis when several instances share the database
	var locker application.ResourceLocker = lock.NewLocalLocker()
	if cfg.RedisConfig.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		defer func() { _ = redisClient.Close() }()

		redisLocker := lock.NewRedisLocker(redisClient, cfg.RedisConfig.LockTTL, log)
		healthHandler.AddCheck("redis", redisLocker)
		locker = redisLocker
		log.Info("using redis resource lock", zap.String("addr", cfg.RedisConfig.Addr))
	}

	// Order adapter: Stripe when a key is configured
	var orders application.OrderAdapter
	if cfg.StripeConfig.SecretKey != "" {
		orders = order.NewStripeAdapter(cfg.StripeConfig.SecretKey, log)
	} else {
		log.Warn("stripe secret key not set, using sandbox order adapter")
		orders = order.NewSandboxAdapter(log)
	}

	// Kafka producer
	kafkaProducer := kafka.NewProducer(cfg.KafkaConfig.Brokers, log)
	defer func() { _ = kafkaProducer.Close() }()
	publisher := parkingEvents.NewKafkaPublisher(kafkaProducer, cfg.KafkaConfig.BookingTopic)

	// Repositories and application services
	bookingRepo := repository.NewGormBookingRepository(db)
	resourceRepo := repository.NewGormResourceRepository(db)
	runRepo := repository.NewGormSettlementRunRepository(db)

	settlementEngine, err := application.NewSettlementEngine(
		runRepo,
		orders,
		ledger.NewGormLedger(db, log),
		cfg.BookingConfig.FeeBasisPoints(),
		clk,
		log,
	)
	if err != nil {
		log.Fatal("failed to create settlement engine", zap.Error(err))
	}

	lifecycle, err := application.NewLifecycleService(
		bookingRepo,
		resourceRepo,
		orders,
		settlementEngine,
		locker,
		publisher,
		clk,
		cfg.BookingConfig.ExpirationWindow(),
		log,
	)
	if err != nil {
		log.Fatal("failed to create lifecycle service", zap.Error(err))
	}
	triggers := application.NewTimeTrigger(bookingRepo, lifecycle, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Approval workflow consumer
	approvalConsumer := parkingEvents.NewApprovalConsumer(
		cfg.KafkaConfig.Brokers,
		cfg.KafkaConfig.GroupID,
		cfg.KafkaConfig.ApprovalTopic,
		lifecycle,
		log,
	)
	defer func() { _ = approvalConsumer.Close() }()

	go func() {
		log.Info("starting approval event consumer", zap.String("topic", cfg.KafkaConfig.ApprovalTopic))
		if err := approvalConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("approval event consumer error", zap.Error(err))
		}
	}()

	// Time trigger schedule
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(triggers, clk, cfg.Scheduler, log)
		if err != nil {
			log.Fatal("failed to create scheduler", zap.Error(err))
		}
		sched.Start()
	}

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	healthHandler.RegisterRoutes(router)
	handler.NewBookingHandler(lifecycle).RegisterRoutes(&router.RouterGroup, jwtManager)
	handler.NewAdminBookingHandler(lifecycle, triggers, clk).RegisterRoutes(&router.RouterGroup, jwtManager)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down " + serviceName + "...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}

	log.Info(serviceName + " stopped")
}

// migrate applies the schema: AutoMigrate in development, SQL migrations elsewhere.
// The no-overlap exclusion constraint only exists in the SQL migrations.
func migrate(cfg *config.ServiceConfig, db *gorm.DB, log *zap.Logger) {
	if cfg.AppEnv == "development" {
		models := []interface{}{
			&repository.ResourceModel{},
			&repository.BookingModel{},
			&repository.SettlementRunModel{},
		}
		models = append(models, ledger.Models()...)
		if err := db.AutoMigrate(models...); err != nil {
			log.Fatal("failed to run auto-migration", zap.Error(err))
		}
		log.Info("database migration completed (dev auto-migrate)")
		return
	}

	if err := database.RunMigrations(cfg.DBConfig.DatabaseURL(), cfg.MigrationsPath, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}
}
