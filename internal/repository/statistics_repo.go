package repository

import (
	"context"
	"fmt"

	"hrms/internal/model"

	"gorm.io/gorm"
)

type StatisticsRepository interface {
	CountRecordsByStatus(ctx context.Context, filter ReconciliationFilter) ([]model.StatusCount, error)
	CountItemsByStatus(ctx context.Context, filter ReconciliationFilter) ([]model.StatusCount, error)
	CountLowConfidenceMatches(ctx context.Context, filter ReconciliationFilter) (int64, error)
	// CountItemsByPeriod buckets items by DATE_TRUNC(groupBy, performed_at); groupBy is day, week or month
	CountItemsByPeriod(ctx context.Context, filter ReconciliationFilter, groupBy string) ([]model.PeriodStatusCount, error)
}

type statisticsRepository struct {
	db *gorm.DB
}

func NewStatisticsRepository(db *gorm.DB) StatisticsRepository {
	return &statisticsRepository{db: db}
}

func (r *statisticsRepository) CountRecordsByStatus(ctx context.Context, filter ReconciliationFilter) ([]model.StatusCount, error) {
	var rows []model.StatusCount
	q := GetDB(ctx, r.db).Table("reconciliations").
		Select("reconciliations.status as status, COUNT(*) as count")
	if err := filter.apply(q).Group("reconciliations.status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count reconciliations: %w", err)
	}
	return rows, nil
}

func (r *statisticsRepository) CountItemsByStatus(ctx context.Context, filter ReconciliationFilter) ([]model.StatusCount, error) {
	var rows []model.StatusCount
	q := GetDB(ctx, r.db).Table("reconciliation_items").
		Select("reconciliation_items.status as status, COUNT(*) as count").
		Joins("JOIN reconciliations ON reconciliations.id = reconciliation_items.reconciliation_id")
	if err := filter.apply(q).Group("reconciliation_items.status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count reconciliation items: %w", err)
	}
	return rows, nil
}

func (r *statisticsRepository) CountLowConfidenceMatches(ctx context.Context, filter ReconciliationFilter) (int64, error) {
	var n int64
	q := GetDB(ctx, r.db).Table("reconciliation_items").
		Joins("JOIN reconciliations ON reconciliations.id = reconciliation_items.reconciliation_id").
		Where("reconciliation_items.low_confidence = ?", true)
	if err := filter.apply(q).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count low confidence matches: %w", err)
	}
	return n, nil
}

func (r *statisticsRepository) CountItemsByPeriod(ctx context.Context, filter ReconciliationFilter, groupBy string) ([]model.PeriodStatusCount, error) {
	var rows []model.PeriodStatusCount
	q := GetDB(ctx, r.db).Table("reconciliation_items").
		Select("TO_CHAR(DATE_TRUNC(?, reconciliations.performed_at), 'YYYY-MM-DD') AS period, reconciliation_items.status AS status, COUNT(*) AS count", groupBy).
		Joins("JOIN reconciliations ON reconciliations.id = reconciliation_items.reconciliation_id")
	if err := filter.apply(q).Group("period, reconciliation_items.status").Order("period").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to bucket reconciliation items: %w", err)
	}
	return rows, nil
}
