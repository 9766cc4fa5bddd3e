package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultRoleTag = "employee"

// User is a login identity, optionally bound to a company and an employee record
type User struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID    *uuid.UUID     `gorm:"type:uuid;index" json:"companyId"`
	EmployeeID   *uuid.UUID     `gorm:"type:uuid;index" json:"employeeId"`
	Name         string         `gorm:"type:varchar(255);not null" json:"name"`
	Email        string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Phone        string         `gorm:"type:varchar(20)" json:"phone"`
	Password     string         `gorm:"type:varchar(255);not null" json:"-"`
	IsSuperAdmin bool           `gorm:"default:false" json:"isSuperAdmin"`
	IsActive     bool           `gorm:"default:true" json:"isActive"`
	Roles        []Role         `gorm:"many2many:user_roles;" json:"roles,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// UserRole is the explicit user <-> role assignment row
type UserRole struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoleID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
}

// PrimaryRole is the role tag carried in tokens: the first assigned role by name
func (u *User) PrimaryRole() string {
	if len(u.Roles) == 0 {
		return DefaultRoleTag
	}
	primary := u.Roles[0].Name
	for _, r := range u.Roles[1:] {
		if r.Name < primary {
			primary = r.Name
		}
	}
	return primary
}
