package repository

import (
	"context"

	"hrms/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoleRepository interface {
	Create(ctx context.Context, role *model.Role) error
	Update(ctx context.Context, role *model.Role) error
	Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error)
	FindByName(ctx context.Context, companyID *uuid.UUID, name string) (*model.Role, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Role, error)
	List(ctx context.Context, companyID *uuid.UUID) ([]model.Role, error)
	ReplacePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error
	UserIDsWithRole(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error)

	CreatePermission(ctx context.Context, perm *model.Permission) error
	UpdatePermission(ctx context.Context, perm *model.Permission) error
	FindPermissionByID(ctx context.Context, id uuid.UUID) (*model.Permission, error)
	FindPermissionByCode(ctx context.Context, code string) (*model.Permission, error)
	FindPermissionsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Permission, error)
	FindOrCreatePermission(ctx context.Context, perm *model.Permission) error
	ListPermissions(ctx context.Context) ([]model.Permission, error)

	ResolveUserPermissionCodes(ctx context.Context, userID uuid.UUID) ([]string, error)
}

type roleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) Create(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).Create(role).Error
}

func (r *roleRepository) Update(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Save(role).Error
}

// Delete removes the role with its grants and assignments, returning the users it was taken from
func (r *roleRepository) Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	db := GetDB(ctx, r.db)
	if err := db.Where("role_id = ?", id).Delete(&model.RolePermission{}).Error; err != nil {
		return nil, err
	}

	var removed []model.UserRole
	if err := db.Clauses(clause.Returning{Columns: []clause.Column{{Name: "user_id"}}}).
		Where("role_id = ?", id).Delete(&removed).Error; err != nil {
		return nil, err
	}
	if err := db.Where("id = ?", id).Delete(&model.Role{}).Error; err != nil {
		return nil, err
	}

	holders := make([]uuid.UUID, 0, len(removed))
	for _, ur := range removed {
		holders = append(holders, ur.UserID)
	}
	return holders, nil
}

func (r *roleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).Preload("Permissions").First(&role, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) FindByName(ctx context.Context, companyID *uuid.UUID, name string) (*model.Role, error) {
	var role model.Role
	q := GetDB(ctx, r.db).Where("name = ?", name)
	if companyID == nil {
		q = q.Where("company_id IS NULL")
	} else {
		q = q.Where("company_id = ?", *companyID)
	}
	if err := q.First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Role, error) {
	var roles []model.Role
	if len(ids) == 0 {
		return roles, nil
	}
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

// List returns the company's roles plus system roles; nil companyID lists everything
func (r *roleRepository) List(ctx context.Context, companyID *uuid.UUID) ([]model.Role, error) {
	var roles []model.Role
	q := GetDB(ctx, r.db).Preload("Permissions")
	if companyID != nil {
		q = q.Where("company_id = ? OR company_id IS NULL", *companyID)
	}
	if err := q.Order("is_system desc, name asc").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *roleRepository) ReplacePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	db := GetDB(ctx, r.db)
	role := model.Role{ID: roleID}

	var perms []model.Permission
	if len(permissionIDs) > 0 {
		if err := db.Where("id IN ?", permissionIDs).Find(&perms).Error; err != nil {
			return err
		}
	}
	return db.Model(&role).Association("Permissions").Replace(perms)
}

func (r *roleRepository) UserIDsWithRole(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := GetDB(ctx, r.db).Model(&model.UserRole{}).
		Where("role_id = ?", roleID).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *roleRepository) CreatePermission(ctx context.Context, perm *model.Permission) error {
	return GetDB(ctx, r.db).Create(perm).Error
}

func (r *roleRepository) UpdatePermission(ctx context.Context, perm *model.Permission) error {
	return GetDB(ctx, r.db).Model(perm).Update("description", perm.Description).Error
}

func (r *roleRepository) FindPermissionByID(ctx context.Context, id uuid.UUID) (*model.Permission, error) {
	var perm model.Permission
	if err := GetDB(ctx, r.db).First(&perm, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &perm, nil
}

func (r *roleRepository) FindPermissionByCode(ctx context.Context, code string) (*model.Permission, error) {
	var perm model.Permission
	if err := GetDB(ctx, r.db).First(&perm, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &perm, nil
}

func (r *roleRepository) FindPermissionsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Permission, error) {
	var perms []model.Permission
	if len(ids) == 0 {
		return perms, nil
	}
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *roleRepository) FindOrCreatePermission(ctx context.Context, perm *model.Permission) error {
	return GetDB(ctx, r.db).
		Where("code = ?", perm.Code).
		FirstOrCreate(perm).Error
}

func (r *roleRepository) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	var perms []model.Permission
	if err := GetDB(ctx, r.db).Order("module asc, action asc").Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

// ResolveUserPermissionCodes walks user -> roles -> permissions
func (r *roleRepository) ResolveUserPermissionCodes(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var codes []string
	err := GetDB(ctx, r.db).Raw(`
		SELECT DISTINCT p.code FROM permissions p
		INNER JOIN role_permissions rp ON rp.permission_id = p.id
		INNER JOIN user_roles ur ON ur.role_id = rp.role_id
		WHERE ur.user_id = ?
	`, userID).Scan(&codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}
