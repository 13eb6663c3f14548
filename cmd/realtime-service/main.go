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
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	callHandler "crewdo-backend/internal/handler/http/call"
	notificationHandler "crewdo-backend/internal/handler/http/notification"
	presenceHandler "crewdo-backend/internal/handler/http/presence"
	pushHandler "crewdo-backend/internal/handler/http/push"
	wsHandler "crewdo-backend/internal/handler/ws"
	"crewdo-backend/internal/middleware"
	"crewdo-backend/internal/repository/cassandra"
	"crewdo-backend/internal/repository/cockroach"
	"crewdo-backend/internal/repository/memory"
	"crewdo-backend/internal/repository/redis"
	callService "crewdo-backend/internal/service/call"
	chatService "crewdo-backend/internal/service/chat"
	mediaService "crewdo-backend/internal/service/media"
	notificationService "crewdo-backend/internal/service/notification"
	presenceService "crewdo-backend/internal/service/presence"
	"crewdo-backend/pkg/config"
	"crewdo-backend/pkg/constants"
	"crewdo-backend/pkg/database"
	"crewdo-backend/pkg/env"
	"crewdo-backend/pkg/jwt"
	"crewdo-backend/pkg/logger"
	"crewdo-backend/pkg/metrics"
	"crewdo-backend/pkg/push"
)

// notificationStore is both the dispatcher's durable sink and the user's inbox
type notificationStore interface {
	notificationService.Repository
	notificationHandler.Inbox
}

const (
	apiRateLimit       = 300
	apiRateLimitWindow = time.Minute
	accessTokenTTL     = 15 * time.Minute
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Connect to CockroachDB
	cockroachDB, err := database.NewCockroachDB(ctx, &database.CockroachConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	})
	if err != nil {
		logger.Fatal("Failed to connect to CockroachDB", zap.Error(err))
	}
	defer cockroachDB.Close()
	logger.Info("Connected to CockroachDB")

	// 4. Connect to Cassandra
	cassandraDB, err := database.NewCassandraDB(&database.CassandraConfig{
		Hosts:       cfg.Cassandra.Hosts,
		Keyspace:    cfg.Cassandra.Keyspace,
		Consistency: cfg.Cassandra.Consistency,
		Username:    env.GetStringFromFile("CASSANDRA_USER", ""),
		Password:    env.GetStringFromFile("CASSANDRA_PASSWORD", ""),
		Timeout:     cfg.Cassandra.Timeout,
	})
	if err != nil {
		logger.Fatal("Failed to connect to Cassandra", zap.Error(err))
	}
	defer cassandraDB.Close()
	logger.Info("Connected to Cassandra")

	// 5. Connect to Redis. Without it presence stays in process memory.
	redisClient, err := database.NewRedisClient(ctx, &database.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Timeout:  cfg.Redis.Timeout,
	})
	if err != nil {
		logger.Warn("Redis unavailable, running with in-memory presence", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		logger.Info("Connected to Redis")
	}
	metrics.RecordRedisAvailable(redisClient != nil)

	// 6. Metrics
	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName, prometheus.DefaultRegisterer)

	// 7. Repositories
	channelRepo := cockroach.NewChannelRepository(cockroachDB.Pool)
	messageRepo := cassandra.NewMessageRepository(cassandraDB.Session)

	var (
		callRepo         callService.Repository
		notificationRepo notificationStore
	)
	switch cfg.Realtime.CallStore {
	case "memory":
		callRepo = memory.NewCallRepository()
		notificationRepo = memory.NewNotificationRepository()
		logger.Warn("Call state is kept in process memory and is lost on restart")
	default:
		callRepo = cockroach.NewCallRepository(cockroachDB.Pool)
		notificationRepo = cockroach.NewNotificationRepository(cockroachDB.Pool)
	}

	var (
		presenceRepo presenceService.Repository
		tokenStore   notificationService.TokenStore
		pushTokens   *redis.PushTokenRepository
		revocation   middleware.RevocationChecker
	)
	if redisClient != nil {
		presenceRepo = redis.NewPresenceRepository(redisClient)
		pushTokens = redis.NewPushTokenRepository(redisClient)
		tokenStore = pushTokens
		revocation = middleware.NewRedisRevocationChecker(redisClient)
	} else {
		presenceRepo = memory.NewPresenceRepository()
	}

	// 8. Push provider
	provider := newPushProvider(ctx, cfg)

	// 9. Services
	hub := wsHandler.NewHub(wsHandler.NewRegistry(), channelRepo)
	presenceSvc := presenceService.NewService(presenceRepo, hub)

	issuer, err := mediaService.NewLiveKitIssuer(cfg.Media.URL, cfg.Media.APIKey, cfg.Media.APISecret, cfg.Media.TokenTTL)
	if err != nil {
		logger.Fatal("Failed to create media session issuer", zap.Error(err))
	}

	dispatcher := notificationService.NewDispatcher(notificationRepo, tokenStore, provider, appMetrics)
	callSvc := callService.NewService(callRepo, hub, dispatcher, issuer)
	chatSvc := chatService.NewService(messageRepo, channelRepo)

	// 10. Authentication
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience, accessTokenTTL)
	authenticator := middleware.NewAuthenticator(jwtManager, revocation)

	gateway := wsHandler.NewGateway(
		wsHandler.GatewayConfig{
			MaxConnections: cfg.Realtime.MaxConnections,
			AllowedOrigins: cfg.Realtime.AllowedOrigins,
			SendBuffer:     constants.WebSocketSendBuffer,
		},
		hub,
		authenticator,
		presenceSvc,
		callSvc,
		chatSvc,
		channelRepo,
	)

	// 11. Router
	router := newRouter(cfg, appMetrics, authenticator, redisClient, gateway,
		callHandler.NewHandler(callSvc),
		presenceHandler.NewHandler(presenceSvc, hub.Registry()),
		notificationHandler.NewHandler(notificationRepo),
		pushTokens,
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 12. Run the server and the background sweeps until a signal arrives
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Realtime service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("environment", cfg.Server.Environment),
			zap.String("call_store", cfg.Realtime.CallStore))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return callService.NewReconciler(callSvc, cfg.Realtime.ReconcileInterval).Run(gctx)
	})
	g.Go(func() error {
		return presenceService.NewSweeper(presenceSvc, hub.Registry().IsConnected, cfg.Realtime.ReconcileInterval).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
		}
		hub.Close()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Realtime service stopped with error", zap.Error(err))
	}
	logger.Info("Server exited")
}

func newPushProvider(ctx context.Context, cfg *config.Config) push.Provider {
	if cfg.Push.FirebaseProjectID == "" && cfg.Push.FirebaseCredentialsPath == "" {
		logger.Info("Firebase not configured, push notifications are logged only")
		return &push.LogProvider{}
	}

	provider, err := push.NewFCMProvider(ctx, &push.FCMConfig{
		CredentialsPath: cfg.Push.FirebaseCredentialsPath,
		ProjectID:       cfg.Push.FirebaseProjectID,
	})
	if err != nil {
		logger.Warn("Failed to initialize Firebase, falling back to log provider", zap.Error(err))
		return &push.LogProvider{}
	}
	return provider
}

func newRouter(
	cfg *config.Config,
	appMetrics *metrics.Metrics,
	authenticator *middleware.Authenticator,
	redisClient *goredis.Client,
	gateway *wsHandler.Gateway,
	calls *callHandler.Handler,
	presence *presenceHandler.Handler,
	notifications *notificationHandler.Handler,
	pushTokens *redis.PushTokenRepository,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(cfg.Realtime.AllowedOrigins))
	router.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	router.GET("/health", middleware.HealthHandler(cfg.Server.ServiceName))
	router.GET(middleware.MetricsPath, middleware.MetricsHandler(prometheus.DefaultGatherer))

	// The socket authenticates itself from the query string or header
	router.GET("/v1/ws", gateway.ServeWS)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(authenticator))
	if redisClient != nil {
		v1.Use(middleware.NewRateLimiter(redisClient, apiRateLimit, apiRateLimitWindow).Middleware())
	}
	calls.RegisterRoutes(v1)
	presence.RegisterRoutes(v1)
	notifications.RegisterRoutes(v1)
	if pushTokens != nil {
		pushHandler.NewHandler(pushTokens).RegisterRoutes(v1)
	}
	return router
}
