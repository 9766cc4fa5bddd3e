package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"hrms/internal/apperror"
	"hrms/internal/auth"
	"hrms/internal/authz"
	"hrms/internal/model"
	"hrms/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name          string      `json:"name" binding:"required,max=50"`
	DisplayName   string      `json:"displayName" binding:"required,max=100"`
	Description   string      `json:"description"`
	CompanyID     *uuid.UUID  `json:"companyId"` // super-admin only; nil creates a system role
	PermissionIDs []uuid.UUID `json:"permissionIds"`
}

type UpdateRoleRequest struct {
	Name        string `json:"name" binding:"omitempty,max=50"`
	DisplayName string `json:"displayName" binding:"omitempty,max=100"`
	Description string `json:"description"`
}

type UpdateRolePermissionsRequest struct {
	PermissionIDs []uuid.UUID `json:"permissionIds" binding:"required"`
}

type CreatePermissionRequest struct {
	Module      string `json:"module" binding:"required,max=50,permsegment"`
	Action      string `json:"action" binding:"required,max=50,permsegment"`
	Description string `json:"description"`
}

type UpdatePermissionRequest struct {
	Description string `json:"description" binding:"required"`
}

type RoleResponse struct {
	ID          uuid.UUID            `json:"id"`
	CompanyID   *uuid.UUID           `json:"companyId"`
	Name        string               `json:"name"`
	DisplayName string               `json:"displayName"`
	Description string               `json:"description"`
	IsSystem    bool                 `json:"isSystem"`
	Permissions []PermissionResponse `json:"permissions"`
	CreatedAt   string               `json:"createdAt"`
}

type PermissionResponse struct {
	ID          uuid.UUID `json:"id"`
	Module      string    `json:"module"`
	Action      string    `json:"action"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
}

// RBACSeed is the system permission and role catalogue loaded by the seed command
type RBACSeed struct {
	Permissions []SeedPermission `yaml:"permissions"`
	Roles       []SeedRole       `yaml:"roles"`
}

type SeedPermission struct {
	Module      string `yaml:"module"`
	Action      string `yaml:"action"`
	Description string `yaml:"description"`
}

type SeedRole struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"displayName"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"` // codes, "*" grants every seeded permission
}

var codeSegment = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context, claims *auth.Claims) ([]RoleResponse, error)
	GetRole(ctx context.Context, claims *auth.Claims, id uuid.UUID) (*RoleResponse, error)
	CreateRole(ctx context.Context, claims *auth.Claims, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, claims *auth.Claims, id uuid.UUID, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, claims *auth.Claims, id uuid.UUID) error
	UpdateRolePermissions(ctx context.Context, claims *auth.Claims, id uuid.UUID, req UpdateRolePermissionsRequest) (*RoleResponse, error)

	ListPermissions(ctx context.Context) ([]PermissionResponse, error)
	CreatePermission(ctx context.Context, claims *auth.Claims, req CreatePermissionRequest) (*PermissionResponse, error)
	UpdatePermission(ctx context.Context, claims *auth.Claims, id uuid.UUID, req UpdatePermissionRequest) (*PermissionResponse, error)

	Seed(ctx context.Context, seed RBACSeed) error
}

type roleService struct {
	repo      repository.RoleRepository
	txManager repository.TransactionManager
	audit     AuditService
	engine    *authz.Engine
}

func NewRoleService(repo repository.RoleRepository, txManager repository.TransactionManager, audit AuditService, engine *authz.Engine) RoleService {
	return &roleService{repo: repo, txManager: txManager, audit: audit, engine: engine}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context, claims *auth.Claims) ([]RoleResponse, error) {
	var companyID *uuid.UUID
	if !claims.IsSuperAdmin {
		if d := s.engine.CheckCompany(claims, claims.CompanyID); !d.Allowed {
			return nil, d.Err
		}
		companyID = claims.CompanyID
	}

	roles, err := s.repo.List(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, claims *auth.Claims, id uuid.UUID) (*RoleResponse, error) {
	role, err := s.visibleRole(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	resp := toRoleResponse(*role)
	return &resp, nil
}

func (s *roleService) CreateRole(ctx context.Context, claims *auth.Claims, req CreateRoleRequest) (*RoleResponse, error) {
	companyID := claims.CompanyID
	if claims.IsSuperAdmin {
		companyID = req.CompanyID
	} else if d := s.engine.CheckCompany(claims, claims.CompanyID); !d.Allowed {
		return nil, d.Err
	} else if req.CompanyID != nil && *req.CompanyID != *claims.CompanyID {
		return nil, authz.ErrCompanyAccessDenied
	}

	name := strings.ToLower(strings.TrimSpace(req.Name))
	if err := s.ensureNameFree(ctx, companyID, name); err != nil {
		return nil, err
	}
	permIDs := uniqueIDs(req.PermissionIDs)
	if err := s.ensurePermissionsExist(ctx, permIDs); err != nil {
		return nil, err
	}

	role := &model.Role{
		CompanyID:   companyID,
		Name:        name,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Description: req.Description,
		IsSystem:    companyID == nil,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, role); err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}
		if len(permIDs) > 0 {
			if err := s.repo.ReplacePermissions(txCtx, role.ID, permIDs); err != nil {
				return fmt.Errorf("failed to assign permissions: %w", err)
			}
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  companyID,
			UserID:     &claims.UserID,
			Action:     model.ActionCreateRole,
			EntityType: "role",
			EntityID:   role.ID.String(),
			Details:    map[string]any{"name": name, "permissionIds": permIDs},
		})
	})
	if err != nil {
		return nil, err
	}

	return s.GetRole(ctx, claims, role.ID)
}

func (s *roleService) UpdateRole(ctx context.Context, claims *auth.Claims, id uuid.UUID, req UpdateRoleRequest) (*RoleResponse, error) {
	role, err := s.mutableRole(ctx, claims, id)
	if err != nil {
		return nil, err
	}

	if name := strings.ToLower(strings.TrimSpace(req.Name)); name != "" && name != role.Name {
		if err := s.ensureNameFree(ctx, role.CompanyID, name); err != nil {
			return nil, err
		}
		role.Name = name
	}
	if req.DisplayName != "" {
		role.DisplayName = strings.TrimSpace(req.DisplayName)
	}
	role.Description = req.Description

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Update(txCtx, role); err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  role.CompanyID,
			UserID:     &claims.UserID,
			Action:     model.ActionUpdateRole,
			EntityType: "role",
			EntityID:   role.ID.String(),
			Details:    req,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.GetRole(ctx, claims, id)
}

func (s *roleService) DeleteRole(ctx context.Context, claims *auth.Claims, id uuid.UUID) error {
	role, err := s.visibleRole(ctx, claims, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return apperror.Forbidden(fmt.Sprintf("cannot delete system role '%s'", role.Name))
	}
	if d := s.engine.CheckCompany(claims, role.CompanyID); !d.Allowed {
		return d.Err
	}

	var holders []uuid.UUID
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if holders, err = s.repo.Delete(txCtx, id); err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  role.CompanyID,
			UserID:     &claims.UserID,
			Action:     model.ActionDeleteRole,
			EntityType: "role",
			EntityID:   role.ID.String(),
			Details:    map[string]any{"name": role.Name},
		})
	})
	if err != nil {
		return err
	}

	s.engine.Invalidate(ctx, holders...)
	return nil
}

// UpdateRolePermissions replaces the role's grants and evicts every holder's cache entry
func (s *roleService) UpdateRolePermissions(ctx context.Context, claims *auth.Claims, id uuid.UUID, req UpdateRolePermissionsRequest) (*RoleResponse, error) {
	role, err := s.mutableRole(ctx, claims, id)
	if err != nil {
		return nil, err
	}

	permIDs := uniqueIDs(req.PermissionIDs)
	if err := s.ensurePermissionsExist(ctx, permIDs); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.ReplacePermissions(txCtx, role.ID, permIDs); err != nil {
			return fmt.Errorf("failed to update permissions: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  role.CompanyID,
			UserID:     &claims.UserID,
			Action:     model.ActionUpdateRolePermissions,
			EntityType: "role",
			EntityID:   role.ID.String(),
			Details:    map[string]any{"permissionIds": permIDs},
		})
	})
	if err != nil {
		return nil, err
	}

	if err := s.evictHolders(ctx, role.ID); err != nil {
		return nil, err
	}
	return s.GetRole(ctx, claims, id)
}

func (s *roleService) ListPermissions(ctx context.Context) ([]PermissionResponse, error) {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, toPermissionResponse(p))
	}
	return res, nil
}

func (s *roleService) CreatePermission(ctx context.Context, claims *auth.Claims, req CreatePermissionRequest) (*PermissionResponse, error) {
	if !claims.IsSuperAdmin {
		return nil, apperror.Forbidden("only super-admins can create permissions")
	}

	perm, err := newPermission(req.Module, req.Action, req.Description)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.FindPermissionByCode(ctx, perm.Code); err == nil {
		return nil, apperror.Conflict(fmt.Sprintf("permission '%s' already exists", perm.Code))
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check permission: %w", err)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.CreatePermission(txCtx, perm); err != nil {
			return fmt.Errorf("failed to create permission: %w", err)
		}
		return s.audit.Record(txCtx, AuditEntry{
			UserID:     &claims.UserID,
			Action:     model.ActionCreatePermission,
			EntityType: "permission",
			EntityID:   perm.ID.String(),
			Details:    map[string]any{"code": perm.Code},
		})
	})
	if err != nil {
		return nil, err
	}

	resp := toPermissionResponse(*perm)
	return &resp, nil
}

// UpdatePermission only ever touches the free-text description
func (s *roleService) UpdatePermission(ctx context.Context, claims *auth.Claims, id uuid.UUID, req UpdatePermissionRequest) (*PermissionResponse, error) {
	if !claims.IsSuperAdmin {
		return nil, apperror.Forbidden("only super-admins can edit permissions")
	}

	perm, err := s.repo.FindPermissionByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("permission not found")
		}
		return nil, fmt.Errorf("failed to load permission: %w", err)
	}
	perm.Description = req.Description
	if err := s.repo.UpdatePermission(ctx, perm); err != nil {
		return nil, fmt.Errorf("failed to update permission: %w", err)
	}

	resp := toPermissionResponse(*perm)
	return &resp, nil
}

// Seed upserts system permissions and system roles, replacing their grants
func (s *roleService) Seed(ctx context.Context, seed RBACSeed) error {
	ctx = repository.WithoutCompanyScope(ctx)
	var touched []uuid.UUID

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		byCode := make(map[string]uuid.UUID, len(seed.Permissions))
		allIDs := make([]uuid.UUID, 0, len(seed.Permissions))
		for _, sp := range seed.Permissions {
			perm, err := newPermission(sp.Module, sp.Action, sp.Description)
			if err != nil {
				return err
			}
			if err := s.repo.FindOrCreatePermission(txCtx, perm); err != nil {
				return fmt.Errorf("failed to seed permission '%s': %w", perm.Code, err)
			}
			if sp.Description != "" && perm.Description != sp.Description {
				perm.Description = sp.Description
				if err := s.repo.UpdatePermission(txCtx, perm); err != nil {
					return fmt.Errorf("failed to update permission '%s': %w", perm.Code, err)
				}
			}
			byCode[perm.Code] = perm.ID
			allIDs = append(allIDs, perm.ID)
		}

		for _, sr := range seed.Roles {
			name := strings.ToLower(strings.TrimSpace(sr.Name))
			role, err := s.repo.FindByName(txCtx, nil, name)
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				role = &model.Role{Name: name, IsSystem: true}
			case err != nil:
				return fmt.Errorf("failed to load role '%s': %w", name, err)
			}
			role.DisplayName = sr.DisplayName
			role.Description = sr.Description
			role.IsSystem = true
			if role.DisplayName == "" {
				role.DisplayName = name
			}

			if role.ID == uuid.Nil {
				err = s.repo.Create(txCtx, role)
			} else {
				err = s.repo.Update(txCtx, role)
			}
			if err != nil {
				return fmt.Errorf("failed to seed role '%s': %w", name, err)
			}

			var permIDs []uuid.UUID
			for _, code := range sr.Permissions {
				if code == "*" {
					permIDs = allIDs
					break
				}
				id, ok := byCode[code]
				if !ok {
					return apperror.Validation(fmt.Sprintf("role '%s' references unknown permission '%s'", name, code))
				}
				permIDs = append(permIDs, id)
			}
			if err := s.repo.ReplacePermissions(txCtx, role.ID, permIDs); err != nil {
				return fmt.Errorf("failed to grant permissions to '%s': %w", name, err)
			}
			touched = append(touched, role.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, roleID := range touched {
		if err := s.evictHolders(ctx, roleID); err != nil {
			return err
		}
	}
	return nil
}

// --- Helpers ---

func (s *roleService) visibleRole(ctx context.Context, claims *auth.Claims, id uuid.UUID) (*model.Role, error) {
	role, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("role not found")
		}
		return nil, fmt.Errorf("failed to load role: %w", err)
	}
	if role.CompanyID != nil {
		if d := s.engine.CheckCompany(claims, role.CompanyID); !d.Allowed {
			return nil, d.Err
		}
	}
	return role, nil
}

// mutableRole is visibleRole plus: only super-admins edit system roles
func (s *roleService) mutableRole(ctx context.Context, claims *auth.Claims, id uuid.UUID) (*model.Role, error) {
	role, err := s.visibleRole(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	if role.IsSystem && !claims.IsSuperAdmin {
		return nil, apperror.Forbidden("system roles can only be changed by super-admins")
	}
	return role, nil
}

func (s *roleService) ensureNameFree(ctx context.Context, companyID *uuid.UUID, name string) error {
	if !codeSegment.MatchString(name) {
		return apperror.Validation("invalid role name",
			apperror.FieldError{Field: "name", Message: "must match " + codeSegment.String()})
	}
	_, err := s.repo.FindByName(ctx, companyID, name)
	if err == nil {
		return apperror.Conflict(fmt.Sprintf("role '%s' already exists", name))
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check role name: %w", err)
	}
	return nil
}

func (s *roleService) ensurePermissionsExist(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	perms, err := s.repo.FindPermissionsByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to fetch permissions: %w", err)
	}
	if len(perms) != len(ids) {
		return apperror.NotFound("permission not found")
	}
	return nil
}

func (s *roleService) evictHolders(ctx context.Context, roleID uuid.UUID) error {
	holders, err := s.repo.UserIDsWithRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("failed to load role holders: %w", err)
	}
	s.engine.Invalidate(ctx, holders...)
	return nil
}

func newPermission(module, action, description string) (*model.Permission, error) {
	module = strings.ToLower(strings.TrimSpace(module))
	action = strings.ToLower(strings.TrimSpace(action))

	var details []apperror.FieldError
	if !codeSegment.MatchString(module) {
		details = append(details, apperror.FieldError{Field: "module", Message: "must match " + codeSegment.String()})
	}
	if !codeSegment.MatchString(action) {
		details = append(details, apperror.FieldError{Field: "action", Message: "must match " + codeSegment.String()})
	}
	if len(details) > 0 {
		return nil, apperror.Validation("invalid permission", details...)
	}

	return &model.Permission{
		Module:      module,
		Action:      action,
		Code:        model.PermissionCode(module, action),
		Description: description,
	}, nil
}

func toRoleResponse(r model.Role) RoleResponse {
	perms := make([]PermissionResponse, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, toPermissionResponse(p))
	}
	return RoleResponse{
		ID:          r.ID,
		CompanyID:   r.CompanyID,
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		Permissions: perms,
		CreatedAt:   r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func toPermissionResponse(p model.Permission) PermissionResponse {
	return PermissionResponse{
		ID:          p.ID,
		Module:      p.Module,
		Action:      p.Action,
		Code:        p.Code,
		Description: p.Description,
	}
}
