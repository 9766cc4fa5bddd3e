package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const tenantColumn = "company_id"

type companyScopeKey struct{}
type skipScopeKey struct{}

// WithCompanyScope makes every guarded query on ctx filter on companyID
func WithCompanyScope(ctx context.Context, companyID uuid.UUID) context.Context {
	return context.WithValue(ctx, companyScopeKey{}, companyID)
}

// WithoutCompanyScope disables the guard, e.g. for super-admins and seeding
func WithoutCompanyScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipScopeKey{}, true)
}

// CompanyScope returns the company the context is scoped to
func CompanyScope(ctx context.Context) (uuid.UUID, bool) {
	if skip, _ := ctx.Value(skipScopeKey{}).(bool); skip {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(companyScopeKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// TenantGuardPlugin scopes queries, updates and deletes of the guarded tables
// to the context's company. Raw SQL is not covered and must filter by hand.
type TenantGuardPlugin struct {
	tables map[string]struct{}
}

func NewTenantGuardPlugin(tables ...string) *TenantGuardPlugin {
	p := &TenantGuardPlugin{tables: make(map[string]struct{}, len(tables))}
	for _, t := range tables {
		p.tables[t] = struct{}{}
	}
	return p
}

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("tenant_guard:query", p.guard); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("tenant_guard:row", p.guard); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("tenant_guard:update", p.guard); err != nil {
		return err
	}
	return db.Callback().Delete().Before("gorm:delete").Register("tenant_guard:delete", p.guard)
}

func (p *TenantGuardPlugin) guard(db *gorm.DB) {
	if db == nil || db.Statement == nil || db.Statement.Context == nil {
		return
	}
	companyID, ok := CompanyScope(db.Statement.Context)
	if !ok {
		return
	}
	if _, guarded := p.tables[db.Statement.Table]; !guarded {
		return
	}
	if whereHasCompany(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: tenantColumn},
				Value:  companyID,
			},
		},
	})
}

func whereHasCompany(c clause.Clause) bool {
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasCompany(e) {
			return true
		}
	}
	return false
}

func exprHasCompany(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return isCompanyColumn(v.Column)
	case clause.IN:
		return isCompanyColumn(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasCompany(x) {
				return true
			}
		}
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasCompany(x) {
				return true
			}
		}
	case clause.Expr:
		return strings.Contains(strings.ToLower(v.SQL), tenantColumn)
	}
	return false
}

func isCompanyColumn(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, tenantColumn) || strings.HasSuffix(strings.ToLower(c), "."+tenantColumn)
	case clause.Column:
		return strings.EqualFold(c.Name, tenantColumn)
	}
	return false
}
