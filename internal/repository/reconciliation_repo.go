package repository

import (
	"context"
	"time"

	"hrms/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReconciliationFilter narrows list and stats queries; zero fields are ignored
type ReconciliationFilter struct {
	CompanyID      *uuid.UUID
	PayrollCycleID *uuid.UUID
	Status         string
	From           *time.Time
	To             *time.Time
}

func (f ReconciliationFilter) apply(q *gorm.DB) *gorm.DB {
	if f.CompanyID != nil {
		q = q.Where("reconciliations.company_id = ?", *f.CompanyID)
	}
	if f.PayrollCycleID != nil {
		q = q.Where("reconciliations.payroll_cycle_id = ?", *f.PayrollCycleID)
	}
	if f.Status != "" {
		q = q.Where("reconciliations.status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("reconciliations.performed_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("reconciliations.performed_at <= ?", *f.To)
	}
	return q
}

type ReconciliationRepository interface {
	Create(ctx context.Context, rec *model.Reconciliation) error
	AddItems(ctx context.Context, rec *model.Reconciliation, items []model.ReconciliationItem) error
	UpdateSummary(ctx context.Context, rec *model.Reconciliation) error
	FindByID(ctx context.Context, id uuid.UUID, withItems bool) (*model.Reconciliation, error)
	List(ctx context.Context, filter ReconciliationFilter, offset, limit int) ([]model.Reconciliation, int64, error)
	FindItemByID(ctx context.Context, id uuid.UUID) (*model.ReconciliationItem, error)
	UpdateItem(ctx context.Context, item *model.ReconciliationItem) error
	CountOpenItems(ctx context.Context, reconciliationID uuid.UUID) (int64, error)
}

type reconciliationRepository struct {
	db *gorm.DB
}

func NewReconciliationRepository(db *gorm.DB) ReconciliationRepository {
	return &reconciliationRepository{db: db}
}

// Create inserts the record and any items already attached to it
func (r *reconciliationRepository) Create(ctx context.Context, rec *model.Reconciliation) error {
	items := rec.Items
	rec.Items = nil
	if err := GetDB(ctx, r.db).Create(rec).Error; err != nil {
		rec.Items = items
		return err
	}
	return r.AddItems(ctx, rec, items)
}

// AddItems attaches items to an existing record, stamping the record and company ids
func (r *reconciliationRepository) AddItems(ctx context.Context, rec *model.Reconciliation, items []model.ReconciliationItem) error {
	for i := range items {
		items[i].ReconciliationID = rec.ID
		items[i].CompanyID = rec.CompanyID
	}
	rec.Items = items
	if len(items) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).CreateInBatches(&rec.Items, 200).Error
}

func (r *reconciliationRepository) UpdateSummary(ctx context.Context, rec *model.Reconciliation) error {
	return GetDB(ctx, r.db).Model(rec).Omit(clause.Associations).Select(
		"status", "total_items", "matched_count", "mismatch_count", "missing_bank",
		"missing_erp", "duplicate_count", "failure_reason", "updated_at",
	).Updates(rec).Error
}

// FindByID bypasses the tenant guard; callers check the company on the loaded record
func (r *reconciliationRepository) FindByID(ctx context.Context, id uuid.UUID, withItems bool) (*model.Reconciliation, error) {
	var rec model.Reconciliation
	q := GetDB(WithoutCompanyScope(ctx), r.db)
	if withItems {
		q = q.Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position asc")
		})
	}
	if err := q.First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *reconciliationRepository) List(ctx context.Context, filter ReconciliationFilter, offset, limit int) ([]model.Reconciliation, int64, error) {
	var recs []model.Reconciliation
	var total int64

	q := filter.apply(GetDB(ctx, r.db).Model(&model.Reconciliation{})).Session(&gorm.Session{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := q.Order("performed_at desc").Offset(offset).Limit(limit).Find(&recs).Error; err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// FindItemByID locks the row when called inside a transaction.
// Like FindByID it is unscoped so a foreign item is denied rather than missing.
func (r *reconciliationRepository) FindItemByID(ctx context.Context, id uuid.UUID) (*model.ReconciliationItem, error) {
	var item model.ReconciliationItem
	q := GetDB(WithoutCompanyScope(ctx), r.db)
	if InTx(ctx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *reconciliationRepository) UpdateItem(ctx context.Context, item *model.ReconciliationItem) error {
	return GetDB(ctx, r.db).Model(item).Select(
		"status", "resolution", "remarks", "resolved_by", "resolved_at", "updated_at",
	).Updates(item).Error
}

// CountOpenItems counts items still waiting for a human decision
func (r *reconciliationRepository) CountOpenItems(ctx context.Context, reconciliationID uuid.UUID) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.ReconciliationItem{}).
		Where("reconciliation_id = ? AND status NOT IN ?", reconciliationID,
			[]string{model.ItemMatched, model.ItemResolved}).
		Count(&n).Error
	return n, err
}
