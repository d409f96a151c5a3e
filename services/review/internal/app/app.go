package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/rakeshshah18/philanzel-sub001/pkg/database"
	"github.com/rakeshshah18/philanzel-sub001/pkg/health"
	pkgkafka "github.com/rakeshshah18/philanzel-sub001/pkg/kafka"
	"github.com/rakeshshah18/philanzel-sub001/pkg/tracing"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/config"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/event"
	handler "github.com/rakeshshah18/philanzel-sub001/services/review/internal/handler/http"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/repository"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/repository/memory"
	mongorepo "github.com/rakeshshah18/philanzel-sub001/services/review/internal/repository/mongo"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/repository/postgres"
	redisrepo "github.com/rakeshshah18/philanzel-sub001/services/review/internal/repository/redis"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/service"
)

// idempotencyTTL is how long a consumed event id is remembered.
const idempotencyTTL = 24 * time.Hour

var initTracer = tracing.InitTracer

// App wires together all dependencies and runs the review service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	rdb            *redis.Client
	mongoDB        *mongo.Database
	producer       *pkgkafka.Producer
	consumer       *pkgkafka.Consumer
	dlq            *pkgkafka.DLQProducer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := initTracer(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	repo, err := a.openStore(ctx, healthHandler)
	if err != nil {
		a.close()
		if serr := a.tracerShutdown(ctx); serr != nil {
			logger.Error("tracer shutdown error", slog.String("error", serr.Error()))
		}
		return nil, err
	}

	// Event publishing. Without brokers events are dropped.
	var publisher pkgkafka.Publisher = pkgkafka.NopPublisher{}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		if err := a.producer.Ping(ctx); err != nil {
			logger.Warn("kafka producer ping failed, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
		publisher = pkgkafka.NewBreakerPublisher(a.producer, pkgkafka.DefaultBreakerConfig("review-events"), logger)
		healthHandler.Register("kafka", a.producer.Ping)
	}

	// Build the dependency graph.
	eventProducer := event.NewProducer(publisher, logger)
	reviewService := service.NewReviewSectionService(repo, eventProducer, logger,
		service.WithMaxAttempts(cfg.ConflictMaxAttempts),
	)

	if cfg.KafkaConsumerEnabled {
		a.consumer = a.newRecalculationConsumer(reviewService)
	}

	// HTTP router.
	router := handler.NewRouter(reviewService, healthHandler, logger, handler.RouterConfig{
		ServiceName:        config.ServiceName,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		PprofCIDRs:         cfg.PprofAllowedCIDRs,

		PublicRPS:            cfg.PublicRPS,
		PublicBurst:          cfg.PublicBurst,
		RecalculatePerMinute: cfg.RecalculatePerMinute,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openStore connects the configured storage driver and returns its repository.
func (a *App) openStore(ctx context.Context, healthHandler *health.Handler) (repository.ReviewSectionRepository, error) {
	cfg, logger := a.cfg, a.logger

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)
	}

	switch cfg.StorageDriver {
	case config.DriverPostgres:
		pool, err := database.NewPostgresPoolWithLogger(ctx, cfg.Postgres(), logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, "review"); err != nil {
			logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}

		if err := database.RunMigrations(ctx, pool, postgres.Migrations(), logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")

		healthHandler.Register("postgres", pool.Ping)
		return postgres.NewReviewSectionRepository(pool), nil

	case config.DriverRedis:
		rdb, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)

		healthHandler.Register("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		return redisrepo.NewReviewSectionRepository(rdb), nil

	case config.DriverMongo:
		db, err := database.NewMongoDatabase(ctx, cfg.Mongo(), logger)
		if err != nil {
			return nil, fmt.Errorf("connect to mongodb: %w", err)
		}
		a.mongoDB = db
		logger.Info("connected to MongoDB", slog.String("database", cfg.MongoDatabase))

		repo := mongorepo.NewReviewSectionRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure mongodb indexes: %w", err)
		}

		healthHandler.Register("mongodb", func(ctx context.Context) error {
			return db.Client().Ping(ctx, nil)
		})
		return repo, nil

	case config.DriverMemory:
		logger.Warn("using in-memory review store, data is lost on restart")
		return memory.NewReviewSectionRepository(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// newRecalculationConsumer subscribes the repair pass to recalculation
// requests. Event ids are remembered in Redis when the store is Redis and in
// process memory otherwise.
func (a *App) newRecalculationConsumer(svc *service.ReviewSectionService) *pkgkafka.Consumer {
	var store pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(idempotencyTTL)
	if a.rdb != nil {
		store = pkgkafka.NewRedisIdempotencyStore(a.rdb, "review:consumed:", idempotencyTTL)
	}

	a.dlq = pkgkafka.NewDLQProducer(a.cfg.KafkaBrokers, a.logger)

	h := pkgkafka.IdempotentHandler(store, event.NewRecalculationHandler(svc, a.logger), a.logger)
	return pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  a.cfg.KafkaBrokers,
		GroupID:  a.cfg.KafkaConsumerGroup,
		Topic:    event.TopicRecalculateRequested,
		MinBytes: 1,
		MaxBytes: 10e6,
	}, h, a.dlq, a.logger)
}

// Run starts the HTTP server and the consumer, then blocks until the context
// is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("storage", a.cfg.StorageDriver),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("recalculation consumer: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	a.close()

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}

// close releases every connection that was opened. It is safe on a
// partially built App.
func (a *App) close() {
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq producer close error", slog.String("error", err.Error()))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
	if a.mongoDB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.mongoDB.Client().Disconnect(ctx); err != nil {
			a.logger.Error("mongodb disconnect error", slog.String("error", err.Error()))
		}
	}
}
