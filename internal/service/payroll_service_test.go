package service

import (
	"context"
	"testing"

	"hrms/internal/apperror"
	"hrms/internal/authz"
	"hrms/internal/model"
	"hrms/pkg/pagination"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPayments(t *testing.T) {
	company, cycle := uuid.New(), uuid.New()
	repo := &fakePayrollRepo{
		cycles: map[uuid.UUID]model.PayrollCycle{
			cycle: {ID: cycle, CompanyID: company, Name: "2026-09"},
		},
		payments: map[uuid.UUID][]model.PayrollPayment{
			cycle: {
				{PayslipID: "PS-1", EmployeeID: "E1", Amount: amount(1000)},
				{PayslipID: "PS-2", EmployeeID: "E2", Amount: amount(800)},
			},
		},
	}
	svc := NewPayrollService(repo, newEngine(newFakeDB()))
	ctx := context.Background()
	params := pagination.New(1, 50, 50)

	payments, total, err := svc.ListPayments(ctx, tenantClaims(company, model.RoleFinance), cycle, params)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, payments, 2)

	_, _, err = svc.ListPayments(ctx, tenantClaims(uuid.New(), model.RoleFinance), cycle, params)
	assert.ErrorIs(t, err, authz.ErrCompanyAccessDenied)

	_, total, err = svc.ListPayments(ctx, superAdminClaims(), cycle, params)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	_, _, err = svc.ListPayments(ctx, tenantClaims(company, model.RoleFinance), uuid.New(), params)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}
