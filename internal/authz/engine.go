// Package authz decides whether verified claims satisfy a declared requirement.
// Every check is independent: role, permission and company scope compose freely.
package authz

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"hrms/internal/apperror"
	"hrms/internal/auth"
	"hrms/internal/logger"
	"hrms/internal/permcache"
)

var (
	ErrUnauthenticated     = apperror.Unauthorized("Authentication required")
	ErrInsufficientRole    = apperror.Forbidden("Access denied: insufficient role")
	ErrCompanyRequired     = apperror.Forbidden("Company ID required")
	ErrCompanyAccessDenied = apperror.Forbidden("Access denied to this company")
)

const missingPermissionFmt = "Access denied: missing permission '%s'"

// PermissionResolver reads the role graph: user -> roles -> permission codes
type PermissionResolver interface {
	ResolveUserPermissionCodes(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// Decision is the outcome of a single check
type Decision struct {
	Allowed bool
	Err     *apperror.Error
	// Permissions is set by CheckPermission for non super-admins
	Permissions []string
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(err *apperror.Error) Decision {
	return Decision{Err: err}
}

type Engine struct {
	cache    permcache.Cache
	resolver PermissionResolver
	ttl      time.Duration
}

func NewEngine(cache permcache.Cache, resolver PermissionResolver, ttl time.Duration) *Engine {
	if ttl <= 0 {
		ttl = permcache.DefaultTTL
	}
	return &Engine{cache: cache, resolver: resolver, ttl: ttl}
}

// CheckRole allows iff the claims role is one of allowedRoles
func (e *Engine) CheckRole(claims *auth.Claims, allowedRoles ...string) Decision {
	if claims == nil {
		return Deny(ErrUnauthenticated)
	}
	if claims.IsSuperAdmin {
		return Allow()
	}
	for _, role := range allowedRoles {
		if claims.Role == role {
			return Allow()
		}
	}
	logger.Get().WithFields(map[string]interface{}{
		"userId": claims.UserID,
		"role":   claims.Role,
		"needs":  allowedRoles,
	}).Warn("role check denied")
	return Deny(ErrInsufficientRole)
}

// CheckPermission allows iff every required code is granted through the user's roles
func (e *Engine) CheckPermission(ctx context.Context, claims *auth.Claims, required ...string) Decision {
	if claims == nil {
		return Deny(ErrUnauthenticated)
	}
	if claims.IsSuperAdmin {
		return Allow()
	}

	codes, err := e.ResolvePermissions(ctx, claims.UserID)
	if err != nil {
		logger.LogError("authz", "CheckPermission", "resolve permissions", claims.UserID, err)
		return Deny(apperror.Internal(err))
	}

	granted := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		granted[c] = struct{}{}
	}
	for _, r := range required {
		if _, ok := granted[r]; !ok {
			logger.Get().WithFields(map[string]interface{}{
				"userId":     claims.UserID,
				"permission": r,
			}).Warn("permission check denied")
			d := Deny(apperror.Newf(apperror.KindForbidden, missingPermissionFmt, r))
			d.Permissions = codes
			return d
		}
	}

	return Decision{Allowed: true, Permissions: codes}
}

// CheckCompany allows iff the requested company is the caller's own
func (e *Engine) CheckCompany(claims *auth.Claims, requested *uuid.UUID) Decision {
	if claims == nil {
		return Deny(ErrUnauthenticated)
	}
	if claims.IsSuperAdmin {
		return Allow()
	}
	if requested == nil || *requested == uuid.Nil {
		return Deny(ErrCompanyRequired)
	}
	if claims.CompanyID == nil || *claims.CompanyID != *requested {
		logger.Get().WithFields(map[string]interface{}{
			"userId":    claims.UserID,
			"requested": requested.String(),
		}).Warn("company scope denied")
		return Deny(ErrCompanyAccessDenied)
	}
	return Allow()
}

// ResolvePermissions returns the user's permission codes, cache first.
// The result is deduplicated and sorted.
func (e *Engine) ResolvePermissions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if codes, ok := e.cache.Get(ctx, userID); ok {
		return codes, nil
	}

	codes, err := e.resolver.ResolveUserPermissionCodes(ctx, userID)
	if err != nil {
		return nil, err
	}
	codes = dedupe(codes)
	e.cache.Put(ctx, userID, codes, e.ttl)
	return codes, nil
}

// Invalidate evicts cached permissions after role or assignment changes
func (e *Engine) Invalidate(ctx context.Context, userIDs ...uuid.UUID) {
	e.cache.Invalidate(ctx, userIDs...)
}

func dedupe(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
