package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hrms/internal/apperror"
	"hrms/internal/auth"
	"hrms/internal/authz"
	"hrms/internal/config"
	"hrms/internal/permcache"
	"hrms/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticResolver map[uuid.UUID][]string

func (r staticResolver) ResolveUserPermissionCodes(_ context.Context, userID uuid.UUID) ([]string, error) {
	return r[userID], nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func newTokens() *auth.TokenService {
	return auth.NewTokenService(config.JWTConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
	})
}

func newRouter(resolver staticResolver) (*gin.Engine, *Authorizer, *auth.TokenService) {
	tokens := newTokens()
	engine := authz.NewEngine(permcache.NewMemoryCache(), resolver, time.Minute)
	r := gin.New()
	r.Use(ErrorHandler(false))
	return r, NewAuthorizer(tokens, engine), tokens
}

func bearer(t *testing.T, tokens *auth.TokenService, claims auth.Claims) string {
	t.Helper()
	pair, err := tokens.Issue(claims)
	require.NoError(t, err)
	return "Bearer " + pair.AccessToken
}

func do(r *gin.Engine, method, path, authorization string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body envelope
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestAuthenticate(t *testing.T) {
	r, authorizer, tokens := newRouter(nil)
	company := uuid.New()
	r.GET("/me", authorizer.Authenticate(), func(c *gin.Context) {
		scoped, ok := repository.CompanyScope(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user": ClaimsFrom(c).UserID, "scoped": ok, "company": scoped})
	})

	w, body := do(r, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)

	w, body = do(r, http.MethodGet, "/me", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "TOKEN_INVALID", body.Error.Code)

	user := uuid.New()
	w, _ = do(r, http.MethodGet, "/me", bearer(t, tokens, auth.Claims{UserID: user, Role: "finance", CompanyID: &company}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), user.String())
	assert.Contains(t, w.Body.String(), `"scoped":true`)
	assert.Contains(t, w.Body.String(), company.String())
}

func TestOptionalAuth(t *testing.T) {
	r, authorizer, tokens := newRouter(nil)
	r.GET("/feed", authorizer.OptionalAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"anonymous": ClaimsFrom(c) == nil})
	})

	w, _ := do(r, http.MethodGet, "/feed", "Bearer garbage")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"anonymous":true`)

	w, _ = do(r, http.MethodGet, "/feed", bearer(t, tokens, auth.Claims{UserID: uuid.New(), Role: "employee"}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"anonymous":false`)
}

func TestRequireRole(t *testing.T) {
	r, authorizer, tokens := newRouter(nil)
	company := uuid.New()
	r.GET("/recon", authorizer.Authenticate(), authorizer.RequireRole("admin", "finance"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w, body := do(r, http.MethodGet, "/recon", bearer(t, tokens, auth.Claims{UserID: uuid.New(), Role: "employee", CompanyID: &company}))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Access denied: insufficient role", body.Error.Message)

	w, _ = do(r, http.MethodGet, "/recon", bearer(t, tokens, auth.Claims{UserID: uuid.New(), Role: "finance", CompanyID: &company}))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = do(r, http.MethodGet, "/recon", bearer(t, tokens, auth.Claims{UserID: uuid.New(), Role: "superadmin", IsSuperAdmin: true}))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequirePermission(t *testing.T) {
	granted, denied := uuid.New(), uuid.New()
	r, authorizer, tokens := newRouter(staticResolver{
		granted: {"roles.manage", "payroll.view"},
		denied:  {"payroll.view"},
	})
	company := uuid.New()
	r.GET("/roles", authorizer.Authenticate(), authorizer.RequirePermission("roles.manage"), func(c *gin.Context) {
		c.JSON(http.StatusOK, PermissionsFrom(c))
	})

	w, body := do(r, http.MethodGet, "/roles", bearer(t, tokens, auth.Claims{UserID: denied, Role: "admin", CompanyID: &company}))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Access denied: missing permission 'roles.manage'", body.Error.Message)

	w, _ = do(r, http.MethodGet, "/roles", bearer(t, tokens, auth.Claims{UserID: granted, Role: "admin", CompanyID: &company}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["payroll.view","roles.manage"]`, w.Body.String())
}

func TestRequireCompany(t *testing.T) {
	r, authorizer, tokens := newRouter(nil)
	mine, theirs := uuid.New(), uuid.New()
	r.GET("/companies/:companyId/payroll", authorizer.Authenticate(), authorizer.RequireCompany("companyId"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/payroll", authorizer.Authenticate(), authorizer.RequireCompany("companyId"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	token := bearer(t, tokens, auth.Claims{UserID: uuid.New(), Role: "admin", CompanyID: &mine})

	w, _ := do(r, http.MethodGet, "/companies/"+mine.String()+"/payroll", token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, body := do(r, http.MethodGet, "/companies/"+theirs.String()+"/payroll", token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Access denied to this company", body.Error.Message)

	w, _ = do(r, http.MethodGet, "/payroll?companyId="+theirs.String(), token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = do(r, http.MethodGet, "/companies/not-a-uuid/payroll", token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)

	noCompany := bearer(t, tokens, auth.Claims{UserID: uuid.New(), Role: "admin"})
	w, body = do(r, http.MethodGet, "/payroll", noCompany)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Company ID required", body.Error.Message)
}

func TestErrorHandlerEnvelope(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(false))
	r.GET("/not-found", func(c *gin.Context) {
		_ = c.Error(apperror.NotFound("reconciliation not found"))
	})
	r.GET("/plain", func(c *gin.Context) {
		_ = c.Error(errors.New("connection reset"))
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	r.POST("/bind", func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err)
			return
		}
		c.Status(http.StatusOK)
	})

	w, body := do(r, http.MethodGet, "/not-found", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, body.Success)
	assert.Equal(t, "RECORD_NOT_FOUND", body.Error.Code)
	assert.Equal(t, "reconciliation not found", body.Error.Message)

	w, body = do(r, http.MethodGet, "/plain", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.Contains(t, string(body.Error.Details), "connection reset")

	w, body = do(r, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)

	w, body = do(r, http.MethodPost, "/bind", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
}

func TestErrorHandlerHidesCauseInRelease(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(true))
	r.GET("/plain", func(c *gin.Context) {
		_ = c.Error(errors.New("password=hunter2"))
	})

	w, _ := do(r, http.MethodGet, "/plain", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(false))
	limiter := NewRateLimiter(2)
	r.POST("/auth/login", limiter.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for i := 0; i < 2; i++ {
		w, _ := do(r, http.MethodPost, "/auth/login", "")
		require.Equal(t, http.StatusNoContent, w.Code)
	}

	w, body := do(r, http.MethodPost, "/auth/login", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", body.Error.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
