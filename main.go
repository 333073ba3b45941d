package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/arka/cart-service/clients"
	apperrors "github.com/arka/cart-service/common/errors"
	"github.com/arka/cart-service/common/logger"
	"github.com/arka/cart-service/common/middleware"
	"github.com/arka/cart-service/config"
	"github.com/arka/cart-service/controllers"
	"github.com/arka/cart-service/database"
	"github.com/arka/cart-service/events"
	"github.com/arka/cart-service/jobs"
	"github.com/arka/cart-service/lock"
	"github.com/arka/cart-service/models"
	"github.com/arka/cart-service/notifier"
	awspkg "github.com/arka/cart-service/pkg/aws"
	"github.com/arka/cart-service/repository"
	"github.com/arka/cart-service/routes"
	"github.com/arka/cart-service/services"
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "cart-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	awsCfg, awsErr := awspkg.LoadAWSConfig(context.Background())

	// ── CloudWatch Logs ──
	var cwWriter io.Writer
	if cfg.CloudWatchEnabled && awsErr == nil {
		cwLogs, err := awspkg.NewCloudWatchLogsClient(context.Background(), awsCfg, serviceName, "")
		if err != nil {
			log.Printf("CloudWatch Logs init failed: %v", err)
		} else {
			defer cwLogs.Close() //nolint:errcheck
			cwWriter = cwLogs
		}
	}

	zapLogger, err := logger.New(cfg.Env, cwWriter)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	if awsErr != nil {
		zapLogger.Warn("AWS config unavailable, AWS integrations disabled", zap.Error(awsErr))
	}

	db, err := database.ConnectPostgres(context.Background(), cfg.DSN(), database.DefaultPoolOptions(), zapLogger, &models.Cart{}, &models.CartLine{})
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db) //nolint:errcheck

	redisClient, err := database.NewRedisClient(context.Background(), cfg.RedisURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Redis makes locks, job leases and idempotency shared across replicas.
	// Without it everything falls back to this process.
	var (
		cartLocker lock.Locker
		jobLeases  lock.Locker
		idem       repository.IdempotencyStore
	)
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
		cartLocker = lock.NewRedisLocker(redisClient, "lock:cart:", 30*time.Second)
		jobLeases = lock.NewRedisLocker(redisClient, "lease:cart-jobs:", cfg.SweepLeaseTTL)
		idem = repository.NewRedisIdempotencyStore(redisClient)
	} else {
		zapLogger.Warn("REDIS_URL not set, using in-process locks and no checkout idempotency")
		cartLocker = lock.NewKeyedMutex()
		jobLeases = lock.NewKeyedMutex()
	}

	var metricsClient awspkg.MetricsRecorder = awspkg.NopMetrics{}
	if cfg.CloudWatchEnabled && awsErr == nil {
		metricsClient = awspkg.NewMetricsClient(awsCfg, "ECommerce/Cart", map[string]string{"Service": serviceName, "Env": cfg.Env}, true)
	}

	publisher := newPublisher(cfg, awsCfg, awsErr, zapLogger)
	defer publisher.Close() //nolint:errcheck

	var cartNotifier notifier.Notifier = notifier.NewLogNotifier(zapLogger)
	if cfg.NotificationQueueURL != "" && awsErr == nil {
		sqsNotifier, err := notifier.NewSQSNotifier(awspkg.NewSQSProducer(awsCfg, cfg.NotificationQueueURL))
		if err != nil {
			zapLogger.Fatal("Failed to init notifier", zap.Error(err))
		}
		cartNotifier = sqsNotifier
	}

	// DI chain
	userClient := clients.NewUserClient(cfg.UserServiceURL, cfg.LookupTimeout)
	productClient := clients.NewProductClient(cfg.ProductServiceURL, cfg.LookupTimeout)
	orderClient := clients.NewOrderClient(cfg.OrderServiceURL, cfg.LookupTimeout)

	cartRepo := repository.NewGormCartRepository(db)
	composer := services.NewComposer(userClient, productClient, cfg.LookupConcurrency, metricsClient, zapLogger)
	cartService := services.NewCartService(cartRepo, productClient, composer, cartLocker, cfg.MutationRetries, metricsClient, zapLogger)
	checkoutService := services.NewCheckoutService(
		cartRepo,
		orderClient,
		composer,
		cartLocker,
		idem,
		publisher,
		services.CheckoutConfig{CleanupTimeout: cfg.CheckoutCleanupTimeout, IdempotencyTTL: cfg.IdempotencyTTL},
		metricsClient,
		zapLogger,
	)
	adminService := services.NewAdminService(cartRepo, composer)

	// Background jobs
	scheduler := jobs.NewScheduler(jobLeases, zapLogger)
	sweeper := services.NewAbandonmentSweeper(cartRepo, cfg.AbandonAfter, publisher, metricsClient, zapLogger)
	reminder := services.NewAbandonedCartNotifier(cartRepo, composer, cartNotifier, cfg.CartLoginURL, metricsClient, zapLogger)
	if err := scheduler.Register("abandonment-sweep", cfg.AbandonSweepInterval, sweeper); err != nil {
		zapLogger.Fatal("Failed to register job", zap.Error(err))
	}
	if err := scheduler.Register("abandoned-cart-notify", cfg.NotificationSweepInterval, reminder); err != nil {
		zapLogger.Fatal("Failed to register job", zap.Error(err))
	}

	jobsCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	scheduler.Start(jobsCtx)
	// Carts that went idle while the service was down are swept right away
	// instead of waiting out the first interval.
	go func() {
		if _, err := scheduler.RunNow(jobsCtx, "abandonment-sweep"); err != nil {
			zapLogger.Warn("Startup abandonment sweep failed", zap.Error(err))
		}
	}()

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, 10*time.Minute)
	go limiter.RunEviction(jobsCtx)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(zapLogger),
		middleware.Metrics(metricsClient, serviceName, "/health"),
		apperrors.ErrorMiddleware(),
	)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
	})

	routes.RegisterCartRoutes(r, controllers.NewCartController(cartService, checkoutService), limiter)
	routes.RegisterAdminRoutes(r, controllers.NewAdminController(adminService))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	zapLogger.Info("Cart service started", zap.String("port", cfg.Port), zap.String("event_bus", cfg.EventBus))
	<-quit
	zapLogger.Info("Shutting down cart service...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	stopJobs()
	scheduler.Wait()
	checkoutService.Wait()
	zapLogger.Info("Server exited cleanly")
}

// newPublisher picks the cart event transport named by EVENT_BUS.
func newPublisher(cfg *config.Config, awsCfg sdkaws.Config, awsErr error, log *zap.Logger) events.Publisher {
	switch cfg.EventBus {
	case "sns":
		if awsErr != nil {
			log.Warn("EVENT_BUS=sns but AWS is unavailable, cart events disabled")
			return events.NopPublisher{}
		}
		return events.NewSNSPublisher(awspkg.NewSNSClient(awsCfg), cfg.CartEventsTopicARN)
	case "kafka":
		var brokers []string
		for _, b := range strings.Split(cfg.KafkaBrokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		return events.NewKafkaPublisher(brokers, cfg.KafkaTopic)
	default:
		return events.NopPublisher{}
	}
}
