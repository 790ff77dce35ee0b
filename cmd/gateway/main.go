package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wardgate/wardgate/pkg/analytics"
	"github.com/wardgate/wardgate/pkg/config"
	"github.com/wardgate/wardgate/pkg/escalation"
	handlers "github.com/wardgate/wardgate/pkg/handlers/http"
	"github.com/wardgate/wardgate/pkg/infra/database"
	"github.com/wardgate/wardgate/pkg/infra/jwt"
	infraLogger "github.com/wardgate/wardgate/pkg/infra/logger"
	"github.com/wardgate/wardgate/pkg/middleware"
	"github.com/wardgate/wardgate/pkg/ratelimit"
	"github.com/wardgate/wardgate/pkg/server"
	"github.com/wardgate/wardgate/pkg/threat"
	"github.com/wardgate/wardgate/pkg/trust"
)

const maintenanceInterval = 5 * time.Minute

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverType := getServerType()
	envFile := os.Getenv("ENV_FILE")

	if envFile == "" {
		envFile = ".env"
	}
	err := godotenv.Load(envFile)
	if err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	logger := infraLogger.NewLogger(serverType)

	// Load configuration
	if err := config.Load("./config"); err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.GetConfig()

	// Mint an admin API token and exit
	if serverType == "token" {
		token, err := jwt.NewJwtManager(&cfg.Server).CreateToken()
		if err != nil {
			logger.Fatalf("Failed to create admin token: %v", err)
		}
		fmt.Println(token)
		return
	}

	// Redis backs blocklist persistence and the audit event stream
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Fatalf("Failed to connect to redis: %v", err)
	}

	// Threat classification
	library := threat.NewLibrary()
	if len(cfg.Security.CustomPatterns) > 0 {
		library, err = library.WithCustomPatterns(map[string]interface{}{
			"custom_patterns": cfg.Security.CustomPatterns,
		})
		if err != nil {
			logger.Fatalf("Failed to load custom threat patterns: %v", err)
		}
	}
	logger.WithField("version", library.Version()).Info("threat pattern library loaded")
	classifier := threat.NewClassifier(library, logger, nil)

	// Trust scoring and adaptive rate limiting
	registry := trust.NewRegistry(nil)
	limiter := ratelimit.NewLimiter(registry, logger, nil)

	// Analytics and the audit pipeline
	events := analytics.New(&analytics.Opts{
		MaxEvents:      cfg.Security.MaxEvents,
		RetentionHours: cfg.Security.RetentionHours,
		Logger:         logger,
	})

	writers := []analytics.Writer{analytics.NewRedisWriter(redisClient)}
	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.NewDB(logger, &database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()
		writers = append(writers, database.NewAuditWriter(db))
	}
	sink := analytics.NewSink(&analytics.SinkOpts{
		QueueSize: cfg.Security.AuditQueueSize,
		Logger:    logger,
	}, writers...)

	// Escalation policy with persisted block and whitelist state
	store := escalation.NewRedisStore(redisClient)
	policy := escalation.NewPolicy(events, sink, &escalation.Opts{
		Store:           store,
		Logger:          logger,
		SecurityHeaders: cfg.Security.SecurityHeadersEnabled,
	})
	restorePolicyState(ctx, logger, store, policy)

	jwtManager := jwt.NewJwtManager(&cfg.Server)

	//middleware
	middlewareTransport := middleware.Transport{
		PanicRecoverMiddleware:    middleware.NewPanicRecoverMiddleware(logger),
		SecurityHeadersMiddleware: middleware.NewSecurityHeadersMiddleware(cfg.Security.SecurityHeadersEnabled),
		DefenseMiddleware:         middleware.NewDefenseMiddleware(cfg.Security, classifier, limiter, policy, events, logger),
		AdminAuthMiddleware:       middleware.NewAdminAuthMiddleware(logger, jwtManager),
	}

	profileMaxAge := time.Duration(cfg.Security.ProfileMaxAgeMinutes) * time.Minute

	// Handler Transport
	handlerTransport := handlers.HandlerTransport{
		// Proxy
		ForwardedHandler: handlers.NewForwardedHandler(logger, cfg.Server.UpstreamURL),
		// System
		GetVersionHandler: handlers.NewGetVersionHandler(logger),
		// Security
		SecurityMetricsHandler: handlers.NewSecurityMetricsHandler(logger, policy, limiter, events, sink),
		ThreatAnalysisHandler:  handlers.NewThreatAnalysisHandler(logger, events),
		IPAnalysisHandler:      handlers.NewIPAnalysisHandler(logger, events),
		BlockIPHandler:         handlers.NewBlockIPHandler(logger, policy),
		WhitelistIPHandler:     handlers.NewWhitelistIPHandler(logger, policy),
		ResetClientHandler:     handlers.NewResetClientHandler(logger, limiter),
		ExportEventsHandler:    handlers.NewExportEventsHandler(logger, events),
		CleanupHandler:         handlers.NewCleanupHandler(logger, limiter, events, profileMaxAge),
	}

	adminServerDI := server.AdminServerDI{
		MiddlewareTransport: middlewareTransport,
		HandlerTransport:    handlerTransport,
		Config:              cfg,
		Logger:              logger,
	}

	proxyServerDI := server.ProxyServerDI{
		MiddlewareTransport: middlewareTransport,
		HandlerTransport:    handlerTransport,
		Config:              cfg,
		Logger:              logger,
	}

	go runMaintenance(ctx, logger, limiter, events, profileMaxAge)

	srv := initializeServer(proxyServerDI, adminServerDI)

	go func() {
		if err := srv.Run(); err != nil {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	fmt.Println("shutting down server...")
	cancel()
	if err := srv.Shutdown(); err != nil {
		fmt.Println("error shutting down server:", err)
		os.Exit(1)
	}
	sink.Close()
	fmt.Println("server gracefully stopped")
}

func restorePolicyState(
	ctx context.Context,
	logger *logrus.Logger,
	store *escalation.RedisStore,
	policy *escalation.Policy,
) {
	loadCtx, loadCancel := context.WithTimeout(ctx, 5*time.Second)
	defer loadCancel()

	var blocked, whitelisted map[string]string
	g, gCtx := errgroup.WithContext(loadCtx)
	g.Go(func() error {
		var err error
		blocked, err = store.LoadBlocked(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		whitelisted, err = store.LoadWhitelisted(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Warnf("failed to load persisted policy state: %v", err)
	}
	policy.Restore(blocked, whitelisted)
}

// runMaintenance periodically evicts idle trust profiles and expired
// analytics events.
func runMaintenance(
	ctx context.Context,
	logger *logrus.Logger,
	limiter *ratelimit.Limiter,
	events *analytics.Analytics,
	profileMaxAge time.Duration,
) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			profiles := limiter.SweepOldProfiles(profileMaxAge)
			evicted := events.Cleanup()
			logger.Debugf("maintenance sweep removed %d profiles and %d events", profiles, evicted)
		}
	}
}

func getServerType() string {
	if len(os.Args) > 1 {
		return os.Args[1]
	}
	return "proxy"
}

func initializeServer(
	proxyServerDi server.ProxyServerDI,
	adminServerDi server.AdminServerDI,
) server.Server {
	serverType := getServerType()

	switch serverType {
	case "admin":
		return server.NewAdminServer(adminServerDi)
	default:
		return server.NewProxyServer(proxyServerDi)
	}
}
