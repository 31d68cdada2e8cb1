package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simpletasks/backend/internal/cache"
	"simpletasks/backend/internal/config"
	"simpletasks/backend/internal/database"
	"simpletasks/backend/internal/handlers"
	"simpletasks/backend/internal/middleware"
	"simpletasks/backend/internal/monitoring"
	"simpletasks/backend/internal/repositories"
	"simpletasks/backend/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const (
	warmerWorkers = 4
	redisPrefix   = "simpletasks:"
)

// Application holds the process-wide dependencies.
type Application struct {
	Config   *config.Config
	DB       *database.DatabasePool
	Redis    *redis.Client
	Cache    *cache.MultiLevelCache
	Versions cache.Versions
	Warmer   *cache.WorkerPool
	Router   *gin.Engine
	Server   *http.Server

	closeVersions func() error

	AuthService     *services.AuthServiceImpl
	RegisterService services.RegisterService
	TaskService     *services.CachedTaskService
}

func initializeApplication(cfg *config.Config) (*Application, error) {
	app := &Application{Config: cfg}

	log.Println("🚀 Initializing simpletasks backend...")
	log.Printf("📋 Environment: %s", cfg.Server.Environment)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	pool, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	app.DB = pool
	log.Println("✅ Database connected and configured")

	if err := repositories.Migrate(pool.DB, pool.Driver(), migrationConfig(cfg)); err != nil {
		pool.Close()
		return nil, err
	}

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		app.Redis = connectRedis(cfg)
		if app.Redis != nil {
			redisCache = cache.NewRedisCacheFromClient(app.Redis, redisPrefix)
		}
	}

	app.Cache = cache.NewMultiLevelCache(redisCache)
	if redisCache != nil {
		app.Versions = cache.NewRedisVersions(app.Redis, redisPrefix)
		log.Println("✅ Multi-level cache initialized (Memory L1 + Redis L2)")
	} else {
		memVersions := cache.NewMemoryVersions()
		app.Versions = memVersions
		app.closeVersions = memVersions.Close
		log.Println("✅ Memory cache initialized")
	}

	app.Warmer = cache.NewWorkerPool(warmerWorkers, app.Cache)
	app.Warmer.Start()

	app.AuthService = services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	app.RegisterService = services.NewRegisterService()
	app.TaskService = services.NewCachedTaskService(services.NewTaskService(), app.Cache, app.Versions, cfg.Cache.TaskTTL, cfg.Cache.ListTTL).
		WithWarmer(app.Warmer)

	monitoring.RegisterHealthCheck("database", pool.Health)
	if app.Redis != nil {
		monitoring.RegisterHealthCheck("redis", func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		})
	}

	log.Println("✅ All services initialized")
	return app, nil
}

// connectRedis returns nil when the server is unreachable; the API then runs
// with the in-memory cache and without the distributed rate limiter.
func connectRedis(cfg *config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️  Redis unavailable: %v (continuing with memory cache only)", err)
		client.Close()
		return nil
	}

	log.Println("✅ Redis connected")
	return client
}

func (app *Application) setupRoutes() {
	r := gin.New()

	r.Use(gin.Logger())
	r.Use(middleware.RecoveryWithLog())
	r.Use(monitoring.MetricsMiddleware())
	r.Use(middleware.SecureHeader())

	perSecond := rate.Limit(float64(app.Config.RateLimit.RequestsPerMin) / 60.0)
	r.Use(middleware.RateLimiter(perSecond, app.Config.RateLimit.BurstSize))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     app.Config.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", monitoring.HealthHandler())
	r.GET("/ready", monitoring.ReadinessHandler())
	r.GET("/live", monitoring.LivenessHandler())
	r.GET("/metrics", monitoring.MetricsHandler())
	r.GET("/metrics/cache", handlers.NewCacheHandler(app.Cache, app.Warmer).GetCacheStats)

	var taskMiddleware []gin.HandlerFunc
	if app.Redis != nil {
		limiter := middleware.NewDistributedRateLimiter(app.Redis)
		taskMiddleware = append(taskMiddleware, limiter.CreateMiddleware("tasks", &middleware.RateLimit{
			Rate:    app.Config.RateLimit.UserRequestsPerMin,
			Window:  time.Minute,
			KeyFunc: middleware.UserKeyFunc,
		}))
	}

	handlers.RegisterAPIRoutes(
		r.Group("/api"),
		handlers.NewAuthHandler(app.DB.DB, app.AuthService, app.RegisterService).WithWarmer(app.TaskService),
		handlers.NewTaskHandler(app.DB.DB, app.TaskService),
		middleware.AuthzMiddleware(middleware.AuthzConfig{
			Authenticator: services.NewTokenAuthenticator(app.DB.DB, app.AuthService),
		}),
		taskMiddleware...,
	)

	app.Router = r
}

func (app *Application) startServer() error {
	addr := app.Config.GetServerAddr()

	app.Server = &http.Server{
		Addr:         addr,
		Handler:      app.Router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("🚀 Server starting on %s", addr)
		log.Printf("📊 Metrics available at http://%s/metrics", addr)
		log.Printf("💚 Health check at http://%s/health", addr)

		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		app.cleanup()
		if err != nil {
			log.Printf("❌ Server failed to start: %v", err)
		}
		return err
	case <-quit:
	}

	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Server.Shutdown(ctx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
	}

	app.cleanup()
	log.Println("✅ Server stopped gracefully")
	return nil
}

func (app *Application) cleanup() {
	log.Println("🧹 Cleaning up resources...")

	if app.Warmer != nil {
		app.Warmer.Stop()
	}

	if app.closeVersions != nil {
		app.closeVersions()
	}

	if app.Cache != nil {
		if err := app.Cache.Close(); err != nil {
			log.Printf("⚠️  Error closing cache: %v", err)
		}
	}

	if app.Redis != nil {
		if err := app.Redis.Close(); err != nil {
			log.Printf("⚠️  Error closing Redis: %v", err)
		}
	}

	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			log.Printf("⚠️  Error closing database: %v", err)
		}
	}

	log.Println("✅ Cleanup complete")
}
