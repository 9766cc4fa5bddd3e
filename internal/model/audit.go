package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionReconciliationRun     = "RECONCILIATION_RUN"
	ActionReconciliationFailed  = "RECONCILIATION_FAILED"
	ActionReconciliationResolve = "RECONCILIATION_ITEM_RESOLVE"
	ActionCreateRole            = "CREATE_ROLE"
	ActionUpdateRole            = "UPDATE_ROLE"
	ActionDeleteRole            = "DELETE_ROLE"
	ActionUpdateRolePermissions = "UPDATE_ROLE_PERMISSIONS"
	ActionCreatePermission      = "CREATE_PERMISSION"
	ActionCreateUser            = "CREATE_USER"
	ActionAssignUserRoles       = "ASSIGN_USER_ROLES"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID  *uuid.UUID `gorm:"type:uuid;index" json:"companyId"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"userId"` // nil for seeding and other automation
	User       *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityType string     `gorm:"type:varchar(50)" json:"entityType"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entityId"`
	Details    string     `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time  `gorm:"index" json:"createdAt"`
}
