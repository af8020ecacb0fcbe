package main

import (
	"context"
	"log"
	"os"
	"time"

	domain "github.com/example/taskflow/domain/task"
	apimod "github.com/example/taskflow/modules/api"
	cachemod "github.com/example/taskflow/modules/cache"
	metricsmod "github.com/example/taskflow/modules/metrics"
	ratelimitmod "github.com/example/taskflow/modules/ratelimit"
	taskmod "github.com/example/taskflow/modules/task"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	"github.com/joho/godotenv"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Printf("FATAL: %v", err)
		os.Exit(1)
	}

	log.Println("=== TaskFlow API ===")
	log.Printf("Database: %s", taskmod.RedactDSN(cfg.DatabaseURL))
	log.Printf("HTTP Port: %d", cfg.Port)
	log.Printf("Strict startup: %t", cfg.Strict)
	log.Printf("Features: status=%t completedAt=%t metrics=%t", cfg.StatusField, cfg.CompletedAtTracking, cfg.MetricsEnabled)

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create mono application: %v", err)
	}

	// The framework calls SetPlugin("cache", plugin) on the task module.
	if cfg.RedisAddr != "" && cfg.CacheEnabled {
		cachePlugin := cachemod.NewPluginModule(cfg.RedisAddr, cachemod.DefaultPrefix, cfg.CacheTTL)
		cachePlugin.SetLenient(!cfg.Strict)
		if err := app.RegisterPlugin(cachePlugin, "cache"); err != nil {
			log.Fatalf("Failed to register cache plugin: %v", err)
		}
	}

	caps := domain.Capabilities{
		StatusField:         cfg.StatusField,
		CompletedAtTracking: cfg.CompletedAtTracking,
		MetricsEnabled:      cfg.MetricsEnabled,
	}
	taskModule := taskmod.NewModule(taskmod.ModuleConfig{
		Store: taskmod.StoreConfig{
			DSN:   cfg.DatabaseURL,
			Debug: cfg.DBDebug,
		},
		Strict:       cfg.Strict,
		Capabilities: caps,
	}, app.Logger())

	var apiOpts []apimod.Option
	var metricsModule *metricsmod.Module
	if taskModule.Service().Capabilities().MetricsEnabled {
		metricsModule = metricsmod.NewModule(app.Logger())
		apiOpts = append(apiOpts, apimod.WithMetrics(metricsModule))
	}

	var rateLimitModule *ratelimitmod.Module
	if cfg.RateLimitEnabled {
		redisAddr := cfg.RedisAddr
		if redisAddr == "" {
			redisAddr = "localhost:6379"
		}
		rateLimitModule = ratelimitmod.NewModule(ratelimitmod.Config{
			RedisAddr: redisAddr,
			Requests:  cfg.RateLimitRequests,
			Window:    cfg.RateLimitWindow,
		})
		apiOpts = append(apiOpts, apimod.WithRateLimiter(rateLimitModule.Handler()))
	}

	apiModule := apimod.NewModule(apimod.Config{
		Port:       cfg.Port,
		HealthMode: cfg.HealthMode,
		StaticDir:  cfg.StaticDir,
	}, taskModule.Service(), app.Logger(), apiOpts...)

	if metricsModule != nil {
		app.Register(metricsModule)
	}
	app.Register(taskModule)
	if rateLimitModule != nil {
		app.Register(rateLimitModule)
	}
	app.Register(apiModule)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		log.Printf("FATAL: failed to start app: %v", err)
		os.Exit(1)
	}

	printStartupInfo(cfg)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg Config) {
	log.Println("=== Application Started ===")
	log.Printf("API available at http://localhost:%d", cfg.Port)
	log.Println("Endpoints:")
	log.Println("  GET    /health          - Health check")
	log.Println("  GET    /api/health      - Health check")
	log.Println("  GET    /api/items       - List tasks (?category=&status=&search=)")
	log.Println("  POST   /api/items       - Create a task")
	log.Println("  GET    /api/items/:id   - Get a task")
	log.Println("  PUT    /api/items/:id   - Update a task")
	log.Println("  DELETE /api/items/:id   - Delete a task")
	log.Println("  GET    /api/stats       - Aggregate statistics")
	log.Println("  POST   /api/init        - Create collection and seed sample tasks")
	if cfg.MetricsEnabled {
		log.Println("  GET    /metrics         - Prometheus metrics")
	}
	if cfg.StaticDir != "" {
		log.Printf("Serving frontend from %s", cfg.StaticDir)
	}
	log.Println("")
	log.Println("Press Ctrl+C to shutdown")
}
