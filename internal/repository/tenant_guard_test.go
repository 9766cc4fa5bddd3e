package repository

import (
	"context"
	"testing"

	"hrms/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

func TestCompanyScope(t *testing.T) {
	company := uuid.New()
	ctx := WithCompanyScope(context.Background(), company)

	got, ok := CompanyScope(ctx)
	assert.True(t, ok)
	assert.Equal(t, company, got)

	_, ok = CompanyScope(WithoutCompanyScope(ctx))
	assert.False(t, ok)

	_, ok = CompanyScope(context.Background())
	assert.False(t, ok)

	_, ok = CompanyScope(WithCompanyScope(context.Background(), uuid.Nil))
	assert.False(t, ok)
}

func TestWhereHasCompany(t *testing.T) {
	tests := []struct {
		name string
		expr clause.Expression
		want bool
	}{
		{"eq on column", clause.Eq{Column: clause.Column{Name: "company_id"}, Value: 1}, true},
		{"eq on qualified string", clause.Eq{Column: "reconciliations.company_id", Value: 1}, true},
		{"raw sql", clause.Expr{SQL: "company_id = ? OR company_id IS NULL"}, true},
		{"nested and", clause.AndConditions{Exprs: []clause.Expression{
			clause.Eq{Column: "status", Value: "x"},
			clause.IN{Column: clause.Column{Name: "company_id"}},
		}}, true},
		{"other column", clause.Eq{Column: clause.Column{Name: "status"}, Value: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := clause.Clause{Expression: clause.Where{Exprs: []clause.Expression{tt.expr}}}
			assert.Equal(t, tt.want, whereHasCompany(c))
		})
	}
	assert.False(t, whereHasCompany(clause.Clause{}))
}

func TestInTx(t *testing.T) {
	assert.False(t, InTx(context.Background()))
}

// newDryRunDB builds a guarded postgres dialect DB that only renders SQL
func newDryRunDB(t *testing.T) (*gorm.DB, *[]string) {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=hrms dbname=hrms sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               gormlogger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, db.Use(NewTenantGuardPlugin("payroll_cycles", "reconciliations", "reconciliation_items")))

	var statements []string
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:capture", func(tx *gorm.DB) {
		statements = append(statements, tx.Statement.SQL.String())
	}))
	return db, &statements
}

func TestLookupsByIDAreNotTenantScoped(t *testing.T) {
	db, statements := newDryRunDB(t)
	ctx := WithCompanyScope(context.Background(), uuid.New())
	recs := NewReconciliationRepository(db)

	_, err := recs.FindByID(ctx, uuid.New(), false)
	require.NoError(t, err)
	_, err = recs.FindItemByID(ctx, uuid.New())
	require.NoError(t, err)
	_, err = NewPayrollRepository(db).FindCycleByID(ctx, uuid.New())
	require.NoError(t, err)

	require.Len(t, *statements, 3)
	for _, sql := range *statements {
		assert.NotContains(t, sql, "company_id")
	}

	*statements = nil
	_, _, err = recs.List(ctx, ReconciliationFilter{}, 0, 10)
	require.NoError(t, err)
	require.NotEmpty(t, *statements)
	assert.Contains(t, (*statements)[len(*statements)-1], `"reconciliations"."company_id"`)
}

func TestGuardScopesTenantTablesOnly(t *testing.T) {
	db, statements := newDryRunDB(t)
	ctx := WithCompanyScope(context.Background(), uuid.New())

	require.NoError(t, db.WithContext(ctx).Find(&[]model.PayrollCycle{}).Error)
	require.NoError(t, db.WithContext(ctx).Find(&[]model.Role{}).Error)
	require.NoError(t, db.WithContext(WithoutCompanyScope(ctx)).Find(&[]model.PayrollCycle{}).Error)

	require.Len(t, *statements, 3)
	assert.Contains(t, (*statements)[0], `"payroll_cycles"."company_id"`)
	assert.NotContains(t, (*statements)[1], "company_id =")
	assert.NotContains(t, (*statements)[2], "company_id")
}
