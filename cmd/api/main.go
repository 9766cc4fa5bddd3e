package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "hrms/api/swagger" // swagger docs
	"hrms/internal/auth"
	"hrms/internal/authz"
	"hrms/internal/config"
	"hrms/internal/database"
	"hrms/internal/handler"
	"hrms/internal/logger"
	"hrms/internal/permcache"
	"hrms/internal/reconciliation"
	"hrms/internal/repository"
	"hrms/internal/service"
	"hrms/internal/websocket"

	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// @title           HRMS API
// @version         1.0
// @description     Multi-tenant HR and payroll API: authentication, role-based access and payroll bank reconciliation.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Get().WithError(err).Fatal("invalid configuration")
	}
	logger.SetLevel(cfg.LogLevel)
	log := logger.Get()
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	log.Info("connected to PostgreSQL")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis is optional: without it permissions are cached per process and runs are not serialised
	var cache permcache.Cache = permcache.NewMemoryCache()
	locker := service.NewNoopRunLocker()
	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable, falling back to in-memory permission cache")
			_ = rdb.Close()
		} else {
			defer rdb.Close()
			cache = permcache.NewRedisCache(rdb)
			locker = service.NewRedisRunLocker(redislock.New(rdb))
			log.WithField("address", cfg.RedisAddress).Info("connected to Redis")
		}
	}

	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)

	// Repository -> Service -> Handler
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	payrollRepo := repository.NewPayrollRepository(db)
	reconRepo := repository.NewReconciliationRepository(db)
	statsRepo := repository.NewStatisticsRepository(db)
	txManager := repository.NewTransactionManager(db)

	tokens := auth.NewTokenService(cfg.JWT)
	engine := authz.NewEngine(cache, roleRepo, cfg.PermissionCacheTTL)

	auditService := service.NewAuditService(auditRepo, engine)
	reconService := service.NewReconciliationService(service.ReconciliationDeps{
		Repo:      reconRepo,
		Stats:     statsRepo,
		Payroll:   payrollRepo,
		TxManager: txManager,
		Audit:     auditService,
		Engine:    engine,
		Matcher:   reconciliation.NewMatcher(reconciliation.NewHeuristicScorer(cfg.ReconciliationDateWindow)),
		Locker:    locker,
		Events:    wsHub,
	})

	router := handler.NewRouter(handler.RouterDeps{
		Release:            cfg.IsRelease(),
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Tokens:             tokens,
		Engine:             engine,
		Hub:                wsHub,
		Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		Auth:           service.NewAuthService(userRepo, tokens, engine),
		Users:          service.NewUserService(userRepo, roleRepo, txManager, auditService, engine, cfg.PhoneRegion),
		Roles:          service.NewRoleService(roleRepo, txManager, auditService, engine),
		Audit:          auditService,
		Payroll:        service.NewPayrollService(payrollRepo, engine),
		Reconciliation: reconService,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
