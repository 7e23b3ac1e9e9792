// Package app assembles the chat server from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"pairchat/internal/auth"
	"pairchat/internal/chat"
	"pairchat/internal/config"
	"pairchat/internal/db"
	"pairchat/internal/friends"
	"pairchat/internal/handlers"
	"pairchat/internal/incognito"
	"pairchat/internal/logging"
	"pairchat/internal/middleware"
	"pairchat/internal/notify"
	"pairchat/internal/observability"
	"pairchat/internal/permissions"
	"pairchat/internal/rabbitmq"
	"pairchat/internal/repositories"
	"pairchat/internal/telemetry"
	"pairchat/internal/ws"
)

const (
	auditRoutingKey = "audit.logs"
	dueStoreKey     = "pairchat:incognito:due"
	shutdownTimeout = 10 * time.Second
)

// App owns every long-lived component of the server.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  clockwork.Clock

	store          repositories.Store
	redis          *redis.Client
	publisher      rabbitmq.Publisher
	shutdownTracer func(context.Context) error

	hub       *ws.Hub
	scheduler *incognito.Scheduler
	sweeper   *incognito.Sweeper
	router    *gin.Engine
}

// New connects the backing services and wires the handlers.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger, clock: clockwork.NewRealClock()}

	shutdownTracer, err := observability.InitTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Env)
	if err != nil {
		return nil, err
	}
	a.shutdownTracer = shutdownTracer

	a.store, err = OpenStore(ctx, cfg, logger)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	a.publisher = rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	observability.SetPublisher(a.publisher)
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(a.publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(a.publisher)),
	)
	audit := telemetry.NewAuditEmitter(a.publisher, auditRoutingKey, cfg.ServiceName, cfg.Env, logger)

	registry := ws.NewRegistry(a.clock)
	a.hub = ws.NewHub(registry, logger.Named("ws"))

	dueStore := a.openDueStore(ctx)
	a.scheduler = incognito.NewScheduler(a.clock, dueStore, a.store.Messages, a.hub, logger.Named("incognito"))
	a.sweeper = incognito.NewSweeper(a.store.Users, a.store.Messages, a.scheduler, dueStore, a.hub, a.clock, cfg.SweepInterval, logger.Named("sweeper"))
	tracker := incognito.NewTracker(a.store.Users, a.clock, logger.Named("incognito"))
	incognitoSvc := incognito.NewService(tracker, a.scheduler, a.store.Users, a.store.Messages, a.hub, audit,
		incognito.Options{DefaultDuration: cfg.IncognitoDefault(), MaxDuration: cfg.IncognitoMax()},
		logger.Named("incognito"))

	gate := permissions.NewGate(a.store.Users, a.store.Requests)
	chatSvc := chat.NewService(chat.Deps{
		Gate:         gate,
		Messages:     a.store.Messages,
		Emitter:      a.hub,
		Presence:     registry,
		Notifier:     notify.NewEmailNotifier(a.publisher, cfg.AppURL, logger.Named("notify")),
		AutoDeleter:  incognitoSvc,
		Audit:        audit,
		Clock:        a.clock,
		HistoryLimit: cfg.HistoryLimit,
		Logger:       logger.Named("chat"),
	})
	friendSvc := friends.NewService(a.store.Users, a.store.Requests, a.hub, audit, a.clock, logger.Named("friends"))

	verifier := auth.NewVerifier(cfg.JWTSecret)
	wsHandler := ws.NewHandler(ws.Config{
		Hub:            a.hub,
		Verifier:       verifier,
		Users:          a.store.Users,
		Chat:           chatSvc,
		Friends:        friendSvc,
		Incognito:      incognitoSvc,
		Clock:          a.clock,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger.Named("ws"),
	})

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		otelgin.Middleware(cfg.ServiceName),
		handlers.RequestContext(),
		logging.GinLogger(logger.Named("http")),
		logging.GinRecovery(logger),
		observability.HTTPMetricsMiddleware(),
	)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/api/health", handlers.Health)
	router.GET("/ws", wsHandler.Handle)

	api := router.Group("/api", middleware.AuthMiddleware(verifier))
	handlers.RegisterRoutes(api,
		handlers.NewUserHandler(friendSvc, gate, logger.Named("http")),
		handlers.NewMessageHandler(chatSvc, logger.Named("http")),
	)
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)
	a.router = router

	return a, nil
}

// OpenStore connects the repositories selected by STORE_DRIVER.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		database, err := db.Connect(ctx, cfg.DatabaseDSN, logger)
		if err != nil {
			return repositories.Store{}, err
		}
		return repositories.NewPostgresStore(database), nil
	case config.DriverMongo:
		database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return repositories.Store{}, err
		}
		store, err := repositories.NewMongoStore(ctx, database)
		if err != nil {
			_ = database.Client().Disconnect(ctx)
			return repositories.Store{}, fmt.Errorf("prepare mongo store: %w", err)
		}
		return store, nil
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return repositories.NewMemoryStore(), nil
	}
	return repositories.Store{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// openDueStore prefers Redis so scheduled deletions survive restarts.
func (a *App) openDueStore(ctx context.Context) incognito.DueStore {
	if a.cfg.RedisAddr == "" {
		a.logger.Info("incognito due store in memory", zap.String("reason", "empty redis addr"))
		return incognito.NewMemoryDueStore()
	}
	rdb, err := db.ConnectRedis(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
	if err != nil {
		a.logger.Warn("incognito due store in memory", zap.Error(err))
		return incognito.NewMemoryDueStore()
	}
	a.redis = rdb
	return incognito.NewRedisDueStore(rdb, dueStoreKey)
}

// Handler exposes the router.
func (a *App) Handler() http.Handler {
	return a.router
}

// Sweep runs one incognito cleanup pass.
func (a *App) Sweep(ctx context.Context) incognito.SweepResult {
	return a.sweeper.Sweep(ctx)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	restored, err := a.scheduler.Restore(ctx)
	if err != nil {
		a.logger.Warn("restore incognito deletions", zap.Error(err))
	} else {
		a.logger.Info("incognito deletions restored", zap.Int("count", restored))
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.sweeper.Run(sweepCtx)

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close releases every backing connection. It is safe on a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.store.Close(ctx))
	if a.shutdownTracer != nil {
		errs = append(errs, a.shutdownTracer(ctx))
	}
	return errors.Join(errs...)
}
