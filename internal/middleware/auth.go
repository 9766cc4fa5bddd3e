package middleware

import (
	"hrms/internal/apperror"
	"hrms/internal/auth"
	"hrms/internal/authz"
	"hrms/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	claimsKey      = "claims"
	permissionsKey = "permissions"

	accessTokenCookie = "access_token"
)

// Authorizer binds the token service and the authorization engine to gin routes
type Authorizer struct {
	tokens *auth.TokenService
	engine *authz.Engine
}

func NewAuthorizer(tokens *auth.TokenService, engine *authz.Engine) *Authorizer {
	return &Authorizer{tokens: tokens, engine: engine}
}

// Authenticate rejects the request unless it carries a valid access token
func (a *Authorizer) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := tokenFrom(c)
		if !ok {
			abort(c, apperror.Unauthorized("Authorization is missing"))
			return
		}
		claims, err := a.tokens.VerifyAccess(token)
		if err != nil {
			abort(c, err)
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth attaches claims when a valid token is present and proceeds anonymously otherwise
func (a *Authorizer) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := tokenFrom(c); ok {
			if claims, err := a.tokens.VerifyAccess(token); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

// RequireRole allows callers whose role tag is one of roles
func (a *Authorizer) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d := a.engine.CheckRole(ClaimsFrom(c), roles...); !d.Allowed {
			abort(c, d.Err)
			return
		}
		c.Next()
	}
}

// RequirePermission allows callers holding every code and exposes the resolved set to handlers
func (a *Authorizer) RequirePermission(codes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := a.engine.CheckPermission(c.Request.Context(), ClaimsFrom(c), codes...)
		if !d.Allowed {
			abort(c, d.Err)
			return
		}
		if d.Permissions != nil {
			c.Set(permissionsKey, d.Permissions)
		}
		c.Next()
	}
}

// RequireCompany checks the company named by the path parameter, falling back to the companyId query
func (a *Authorizer) RequireCompany(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param(param)
		if raw == "" {
			raw = c.Query("companyId")
		}

		var requested *uuid.UUID
		if raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				abort(c, apperror.Validation("invalid company id",
					apperror.FieldError{Field: param, Message: "must be a UUID"}))
				return
			}
			requested = &id
		}

		if d := a.engine.CheckCompany(ClaimsFrom(c), requested); !d.Allowed {
			abort(c, d.Err)
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the verified claims, nil for anonymous requests
func ClaimsFrom(c *gin.Context) *auth.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

// PermissionsFrom returns the codes resolved by RequirePermission, if it ran
func PermissionsFrom(c *gin.Context) []string {
	v, ok := c.Get(permissionsKey)
	if !ok {
		return nil
	}
	codes, _ := v.([]string)
	return codes
}

func tokenFrom(c *gin.Context) (string, bool) {
	if token, ok := auth.ExtractBearer(c.GetHeader("Authorization")); ok {
		return token, true
	}
	if token, err := c.Cookie(accessTokenCookie); err == nil && token != "" {
		return token, true
	}
	return "", false
}

// setClaims also scopes tenant tables to the caller's company for the rest of the request
func setClaims(c *gin.Context, claims *auth.Claims) {
	c.Set(claimsKey, claims)
	if !claims.IsSuperAdmin && claims.CompanyID != nil {
		c.Request = c.Request.WithContext(repository.WithCompanyScope(c.Request.Context(), *claims.CompanyID))
	}
}

func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
