package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayrollCycle is one pay period of a company
type PayrollCycle struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID   uuid.UUID `gorm:"type:uuid;not null;index" json:"companyId"`
	Name        string    `gorm:"type:varchar(100);not null" json:"name"`
	PeriodStart time.Time `gorm:"type:date;not null" json:"periodStart"`
	PeriodEnd   time.Time `gorm:"type:date;not null" json:"periodEnd"`
	Status      string    `gorm:"type:varchar(20);default:'draft'" json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PayrollPayment is a payment the ERP expects the bank to have executed
type PayrollPayment struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"companyId"`
	PayrollCycleID uuid.UUID       `gorm:"type:uuid;not null;index" json:"payrollCycleId"`
	PayslipID      string          `gorm:"type:varchar(64);not null" json:"payslipId"`
	EmployeeID     string          `gorm:"type:varchar(64);not null;index" json:"employeeId"`
	EmployeeName   string          `gorm:"type:varchar(255)" json:"employeeName"`
	Amount         decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"amount"`
	UTR            string          `gorm:"column:utr;type:varchar(64);index" json:"utr,omitempty"`
	PaymentDate    *time.Time      `json:"paymentDate,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}
