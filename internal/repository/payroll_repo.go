package repository

import (
	"context"

	"hrms/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PayrollRepository interface {
	FindCycleByID(ctx context.Context, id uuid.UUID) (*model.PayrollCycle, error)
	ListPayments(ctx context.Context, cycleID uuid.UUID, offset, limit int) ([]model.PayrollPayment, int64, error)
	AllPayments(ctx context.Context, cycleID uuid.UUID) ([]model.PayrollPayment, error)
}

type payrollRepository struct {
	db *gorm.DB
}

func NewPayrollRepository(db *gorm.DB) PayrollRepository {
	return &payrollRepository{db: db}
}

// FindCycleByID bypasses the tenant guard; callers check the company on the loaded cycle
func (r *payrollRepository) FindCycleByID(ctx context.Context, id uuid.UUID) (*model.PayrollCycle, error) {
	var cycle model.PayrollCycle
	if err := GetDB(WithoutCompanyScope(ctx), r.db).First(&cycle, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &cycle, nil
}

func (r *payrollRepository) ListPayments(ctx context.Context, cycleID uuid.UUID, offset, limit int) ([]model.PayrollPayment, int64, error) {
	var payments []model.PayrollPayment
	var total int64

	q := GetDB(ctx, r.db).Model(&model.PayrollPayment{}).Where("payroll_cycle_id = ?", cycleID).Session(&gorm.Session{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := q.Order("payslip_id asc").Offset(offset).Limit(limit).Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// AllPayments returns the cycle's expected payments in a stable order
func (r *payrollRepository) AllPayments(ctx context.Context, cycleID uuid.UUID) ([]model.PayrollPayment, error) {
	var payments []model.PayrollPayment
	err := GetDB(ctx, r.db).
		Where("payroll_cycle_id = ?", cycleID).
		Order("payslip_id asc, id asc").
		Find(&payments).Error
	return payments, err
}
