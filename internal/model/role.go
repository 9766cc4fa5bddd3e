package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is a company scoped bundle of permissions. CompanyID nil marks a system role.
// idx_roles_system_name keeps system role names unique; the composite index treats NULL companies as distinct.
type Role struct {
	ID          uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID   *uuid.UUID   `gorm:"type:uuid;uniqueIndex:idx_roles_company_name" json:"companyId"`
	Name        string       `gorm:"type:varchar(50);uniqueIndex:idx_roles_company_name;uniqueIndex:idx_roles_system_name,where:company_id IS NULL;not null" json:"name"`
	DisplayName string       `gorm:"type:varchar(100);not null" json:"displayName"`
	Description string       `gorm:"type:text" json:"description"`
	IsSystem    bool         `gorm:"default:false" json:"isSystem"` // seeded, not deletable by tenants
	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Permission is a single grantable capability identified by "module.action"
type Permission struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Module      string    `gorm:"type:varchar(50);not null;index" json:"module"`
	Action      string    `gorm:"type:varchar(50);not null" json:"action"`
	Code        string    `gorm:"type:varchar(101);uniqueIndex;not null" json:"code"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RolePermission is the explicit role <-> permission assignment row
type RolePermission struct {
	RoleID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	PermissionID uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt    time.Time
}

// PermissionCode builds the canonical code of a permission
func PermissionCode(module, action string) string {
	return module + "." + action
}

// PermRolesManage guards role and permission administration
const PermRolesManage = "roles.manage"

// Role tags allowed on the reconciliation surface
const (
	RoleAdmin    = "admin"
	RoleFinance  = "finance"
	RoleAccounts = "accounts"
)
