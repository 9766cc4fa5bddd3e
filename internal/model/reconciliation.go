package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reconciliation record statuses
const (
	ReconciliationPending    = "pending"
	ReconciliationInProgress = "in_progress"
	ReconciliationCompleted  = "completed"
	ReconciliationFailed     = "failed"
)

// Item statuses that close an item; every other status needs a decision
const (
	ItemMatched  = "matched"
	ItemResolved = "resolved"
)

// Resolution codes a reviewer may pick for a discrepancy
const (
	ResolutionAcceptBank       = "accept_bank_amount"
	ResolutionAcceptERP        = "accept_erp_amount"
	ResolutionManualAdjustment = "manual_adjustment_required"
	ResolutionIgnoreDuplicate  = "ignore_duplicate"
)

// Reconciliation is one bank-vs-ERP matching run for a payroll cycle
type Reconciliation struct {
	ID             uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID      uuid.UUID            `gorm:"type:uuid;not null;index" json:"companyId"`
	PayrollCycleID uuid.UUID            `gorm:"type:uuid;not null;index" json:"payrollCycleId"`
	Status         string               `gorm:"type:varchar(20);not null;index" json:"status"`
	PerformedBy    uuid.UUID            `gorm:"type:uuid;not null" json:"performedBy"`
	PerformedAt    time.Time            `gorm:"not null;index" json:"performedAt"`
	TotalItems     int                  `json:"totalItems"`
	MatchedCount   int                  `json:"matchedCount"`
	MismatchCount  int                  `json:"mismatchCount"`
	MissingBank    int                  `json:"missingInBankCount"`
	MissingERP     int                  `gorm:"column:missing_erp" json:"missingInErpCount"`
	DuplicateCount int                  `json:"duplicateCount"`
	FailureReason  string               `gorm:"type:text" json:"failureReason,omitempty"`
	Items          []ReconciliationItem `gorm:"foreignKey:ReconciliationID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

// ReconciliationItem is one pairing (or non-pairing) of a bank line and an expected payment
type ReconciliationItem struct {
	ID               uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ReconciliationID uuid.UUID           `gorm:"type:uuid;not null;index" json:"reconciliationId"`
	CompanyID        uuid.UUID           `gorm:"type:uuid;not null;index" json:"companyId"`
	Position         int                 `gorm:"not null" json:"position"`
	Status           string              `gorm:"type:varchar(20);not null;index" json:"status"`
	OriginalStatus   string              `gorm:"type:varchar(20);not null" json:"originalStatus"`
	BankReference    string              `gorm:"type:varchar(64)" json:"bankReference,omitempty"`
	BankAmount       decimal.NullDecimal `gorm:"type:numeric(15,2)" json:"bankAmount"`
	BankValueDate    *time.Time          `json:"bankValueDate,omitempty"`
	Payee            string              `gorm:"type:varchar(255)" json:"payee,omitempty"`
	PayslipID        string              `gorm:"type:varchar(64)" json:"payslipId,omitempty"`
	EmployeeID       string              `gorm:"type:varchar(64)" json:"employeeId,omitempty"`
	EmployeeName     string              `gorm:"type:varchar(255)" json:"employeeName,omitempty"`
	ERPAmount        decimal.NullDecimal `gorm:"column:erp_amount;type:numeric(15,2)" json:"erpAmount"`
	ERPUTR           string              `gorm:"column:erp_utr;type:varchar(64)" json:"erpUtr,omitempty"`
	Difference       decimal.Decimal     `gorm:"type:numeric(15,2);not null;default:0" json:"difference"`
	LowConfidence    bool                `gorm:"default:false" json:"lowConfidence"`
	Score            float64             `json:"score"`
	Note             string              `gorm:"type:text" json:"note,omitempty"`
	Resolution       string              `gorm:"type:varchar(50)" json:"resolution,omitempty"`
	Remarks          string              `gorm:"type:text" json:"remarks,omitempty"`
	ResolvedBy       *uuid.UUID          `gorm:"type:uuid" json:"resolvedBy,omitempty"`
	ResolvedAt       *time.Time          `json:"resolvedAt,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}
