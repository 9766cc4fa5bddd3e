package handler

import (
	"context"
	"net/http"
	"time"

	"hrms/internal/auth"
	"hrms/internal/authz"
	"hrms/internal/logger"
	"hrms/internal/middleware"
	"hrms/internal/service"
	"hrms/internal/websocket"
	"hrms/pkg/response"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RouterDeps is everything the HTTP surface needs
type RouterDeps struct {
	Release            bool
	CORSOrigins        []string
	RateLimitPerMinute int

	Tokens *auth.TokenService
	Engine *authz.Engine
	Hub    *websocket.Hub
	// Ping reports store health; nil skips the check
	Ping func(ctx context.Context) error

	Auth           service.AuthService
	Users          service.UserService
	Roles          service.RoleService
	Audit          service.AuditService
	Payroll        service.PayrollService
	Reconciliation service.ReconciliationService
}

// NewRouter assembles middleware and registers every route
func NewRouter(d RouterDeps) *gin.Engine {
	if err := RegisterValidators(); err != nil {
		logger.Get().WithError(err).Fatal("failed to register validators")
	}

	router := gin.New()
	router.Use(middleware.RequestLogger(), middleware.ErrorHandler(d.Release))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = d.CORSOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:5173"}
	}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition", "Retry-After"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", health(d.Ping))
	if d.Hub != nil {
		router.GET("/ws", websocket.ServeWs(d.Hub, d.Tokens, d.Engine))
	}

	authorizer := middleware.NewAuthorizer(d.Tokens, d.Engine)
	limiter := middleware.NewRateLimiter(d.RateLimitPerMinute)

	api := router.Group("")
	NewAuthHandler(d.Auth, authorizer, limiter).RegisterRoutes(api)
	NewUserHandler(d.Users, authorizer).RegisterRoutes(api)
	NewRoleHandler(d.Roles, authorizer).RegisterRoutes(api)
	NewAuditHandler(d.Audit, authorizer).RegisterRoutes(api)
	NewPayrollHandler(d.Payroll, authorizer).RegisterRoutes(api)
	NewReconciliationHandler(d.Reconciliation, authorizer).RegisterRoutes(api)

	return router
}

// health reports liveness plus store reachability
// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200  {object}  response.Response
// @Failure      503  {object}  response.Response
// @Router       /health [get]
func health(ping func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				logger.Get().WithError(err).Warn("health check failed")
				c.JSON(http.StatusServiceUnavailable, response.Error("SERVICE_UNAVAILABLE", "database unreachable", nil))
				return
			}
		}
		c.JSON(http.StatusOK, response.Success(gin.H{"status": "OK"}))
	}
}
