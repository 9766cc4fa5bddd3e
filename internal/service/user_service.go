package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hrms/internal/apperror"
	"hrms/internal/auth"
	"hrms/internal/authz"
	"hrms/internal/model"
	"hrms/internal/repository"
	"hrms/pkg/pagination"

	"github.com/google/uuid"
	"github.com/ttacon/libphonenumber"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateUserRequest struct {
	Name       string      `json:"name" binding:"required,max=255"`
	Email      string      `json:"email" binding:"required,email"`
	Phone      string      `json:"phone" binding:"omitempty,max=20"`
	Password   string      `json:"password" binding:"required,min=8"`
	CompanyID  *uuid.UUID  `json:"companyId"`
	EmployeeID *uuid.UUID  `json:"employeeId"`
	RoleIDs    []uuid.UUID `json:"roleIds"`
}

type AssignRolesRequest struct {
	RoleIDs []uuid.UUID `json:"roleIds" binding:"required"`
}

// UserResponse never exposes the password hash
type UserResponse struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	CompanyID    *uuid.UUID `json:"companyId,omitempty"`
	EmployeeID   *uuid.UUID `json:"employeeId,omitempty"`
	IsSuperAdmin bool       `json:"isSuperAdmin"`
	IsActive     bool       `json:"isActive"`
	Roles        []string   `json:"roles"`
	CreatedAt    string     `json:"createdAt"`
}

// --- Interface ---

type UserService interface {
	CreateUser(ctx context.Context, claims *auth.Claims, req CreateUserRequest) (*UserResponse, error)
	AssignRoles(ctx context.Context, claims *auth.Claims, userID uuid.UUID, req AssignRolesRequest) (*UserResponse, error)
	ListUsers(ctx context.Context, claims *auth.Claims, params pagination.Params) ([]UserResponse, int64, error)
}

type userService struct {
	users       repository.UserRepository
	roles       repository.RoleRepository
	txManager   repository.TransactionManager
	audit       AuditService
	engine      *authz.Engine
	phoneRegion string
}

// NewUserService returns a new instance of UserService
func NewUserService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	txManager repository.TransactionManager,
	audit AuditService,
	engine *authz.Engine,
	phoneRegion string,
) UserService {
	return &userService{
		users:       users,
		roles:       roles,
		txManager:   txManager,
		audit:       audit,
		engine:      engine,
		phoneRegion: phoneRegion,
	}
}

// --- Implementation ---

func (s *userService) CreateUser(ctx context.Context, claims *auth.Claims, req CreateUserRequest) (*UserResponse, error) {
	companyID := claims.CompanyID
	if claims.IsSuperAdmin {
		companyID = req.CompanyID
	} else {
		target := claims.CompanyID
		if req.CompanyID != nil {
			target = req.CompanyID
		}
		if d := s.engine.CheckCompany(claims, target); !d.Allowed {
			return nil, d.Err
		}
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, apperror.Conflict("email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	phone, err := normalizePhone(req.Phone, s.phoneRegion)
	if err != nil {
		return nil, err
	}

	roleIDs := uniqueIDs(req.RoleIDs)
	if _, err := s.assignableRoles(ctx, roleIDs, companyID); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		CompanyID:  companyID,
		EmployeeID: req.EmployeeID,
		Name:       strings.TrimSpace(req.Name),
		Email:      email,
		Phone:      phone,
		Password:   string(hashed),
		IsActive:   true,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.users.Create(txCtx, user); err != nil {
			return err
		}
		if err := s.users.ReplaceRoles(txCtx, user.ID, roleIDs); err != nil {
			return err
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  companyID,
			UserID:     &claims.UserID,
			Action:     model.ActionCreateUser,
			EntityType: "user",
			EntityID:   user.ID.String(),
			Details:    map[string]any{"email": email, "roleIds": roleIDs},
		})
	})
	if err != nil {
		return nil, err
	}

	created, err := s.users.FindByID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload user: %w", err)
	}
	return toUserResponse(created), nil
}

// AssignRoles replaces the user's roles and evicts their cached permissions
func (s *userService) AssignRoles(ctx context.Context, claims *auth.Claims, userID uuid.UUID, req AssignRolesRequest) (*UserResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("user not found")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if d := s.engine.CheckCompany(claims, user.CompanyID); !d.Allowed {
		return nil, d.Err
	}

	roleIDs := uniqueIDs(req.RoleIDs)
	if _, err := s.assignableRoles(ctx, roleIDs, user.CompanyID); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.users.ReplaceRoles(txCtx, user.ID, roleIDs); err != nil {
			return err
		}
		return s.audit.Record(txCtx, AuditEntry{
			CompanyID:  user.CompanyID,
			UserID:     &claims.UserID,
			Action:     model.ActionAssignUserRoles,
			EntityType: "user",
			EntityID:   user.ID.String(),
			Details:    map[string]any{"roleIds": roleIDs},
		})
	})
	if err != nil {
		return nil, err
	}
	s.engine.Invalidate(ctx, user.ID)

	updated, err := s.users.FindByID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload user: %w", err)
	}
	return toUserResponse(updated), nil
}

func (s *userService) ListUsers(ctx context.Context, claims *auth.Claims, params pagination.Params) ([]UserResponse, int64, error) {
	var companyID *uuid.UUID
	if !claims.IsSuperAdmin {
		if d := s.engine.CheckCompany(claims, claims.CompanyID); !d.Allowed {
			return nil, 0, d.Err
		}
		companyID = claims.CompanyID
	}

	users, total, err := s.users.List(ctx, companyID, params.Offset, params.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}

	res := make([]UserResponse, 0, len(users))
	for i := range users {
		res = append(res, *toUserResponse(&users[i]))
	}
	return res, total, nil
}

// --- Helpers ---

// assignableRoles loads roleIDs and checks each is a system role or belongs to companyID
func (s *userService) assignableRoles(ctx context.Context, ids []uuid.UUID, companyID *uuid.UUID) ([]model.Role, error) {
	roles, err := s.roles.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	if len(roles) != len(ids) {
		return nil, apperror.NotFound("role not found")
	}
	for _, r := range roles {
		if r.CompanyID == nil {
			continue
		}
		if companyID == nil || *r.CompanyID != *companyID {
			return nil, apperror.Validation("role belongs to another company",
				apperror.FieldError{Field: "roleIds", Message: "role " + r.ID.String() + " is not assignable"})
		}
	}
	return roles, nil
}

func normalizePhone(phone, region string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}
	num, err := libphonenumber.Parse(phone, region)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return "", apperror.Validation("invalid phone number",
			apperror.FieldError{Field: "phone", Message: "not a valid phone number"})
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func toUserResponse(user *model.User) *UserResponse {
	roles := make([]string, 0, len(user.Roles))
	for _, r := range user.Roles {
		roles = append(roles, r.Name)
	}
	return &UserResponse{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		Phone:        user.Phone,
		CompanyID:    user.CompanyID,
		EmployeeID:   user.EmployeeID,
		IsSuperAdmin: user.IsSuperAdmin,
		IsActive:     user.IsActive,
		Roles:        roles,
		CreatedAt:    user.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
