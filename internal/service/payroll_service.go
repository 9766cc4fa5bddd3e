package service

import (
	"context"
	"errors"
	"fmt"

	"hrms/internal/apperror"
	"hrms/internal/auth"
	"hrms/internal/authz"
	"hrms/internal/model"
	"hrms/internal/repository"
	"hrms/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PayrollService interface {
	ListPayments(ctx context.Context, claims *auth.Claims, cycleID uuid.UUID, params pagination.Params) ([]model.PayrollPayment, int64, error)
}

type payrollService struct {
	repo   repository.PayrollRepository
	engine *authz.Engine
}

func NewPayrollService(repo repository.PayrollRepository, engine *authz.Engine) PayrollService {
	return &payrollService{repo: repo, engine: engine}
}

// ListPayments returns the expected payments the auto-match pass reads for a cycle
func (s *payrollService) ListPayments(ctx context.Context, claims *auth.Claims, cycleID uuid.UUID, params pagination.Params) ([]model.PayrollPayment, int64, error) {
	cycle, err := s.repo.FindCycleByID(ctx, cycleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, apperror.NotFound("payroll cycle not found")
		}
		return nil, 0, fmt.Errorf("failed to load payroll cycle: %w", err)
	}
	if d := s.engine.CheckCompany(claims, &cycle.CompanyID); !d.Allowed {
		return nil, 0, d.Err
	}

	payments, total, err := s.repo.ListPayments(ctx, cycleID, params.Offset, params.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch payroll payments: %w", err)
	}
	return payments, total, nil
}
